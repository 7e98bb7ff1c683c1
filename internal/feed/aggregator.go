package feed

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"github.com/kosty-cloud/kosty/internal/models"
)

// topAlertCount is how many alerts the summary highlights.
const topAlertCount = 10

// idlePatterns identify checks that describe idle or abandoned resources.
var idlePatterns = []string{"idle", "unused", "stopped", "empty", "orphan", "unattached"}

// Aggregator turns raw audit findings into a classified, deduplicated,
// ranked alert feed. It is stateless apart from the threshold store; every
// feed is rebuilt from scratch.
type Aggregator struct {
	store *ThresholdStore
	now   func() time.Time
}

func NewAggregator(store *ThresholdStore) *Aggregator {
	return &Aggregator{store: store, now: time.Now}
}

// BuildFeed classifies the findings and assembles the feed. For the daily
// flavour FeedDate is the generation date.
func (a *Aggregator) BuildFeed(feedType models.FeedType, findings []models.Finding) models.AlertFeed {
	thresholds := a.store.Snapshot()
	generated := a.now().UTC()

	var alerts []models.Alert
	for _, f := range findings {
		if alert, ok := a.classify(f, thresholds, generated); ok {
			alerts = append(alerts, alert)
		}
	}
	alerts = dedupe(alerts)
	alerts = mergeCombined(alerts)
	sortAlerts(alerts)

	feed := models.AlertFeed{
		FeedType:        feedType,
		GeneratedAt:     generated,
		Summary:         summarize(alerts),
		Alerts:          alerts,
		Recommendations: recommendationsFor(alerts),
	}
	if feedType == models.FeedDaily {
		feed.FeedDate = generated.Format("2006-01-02")
	}
	return feed
}

// FilterFeed narrows a built feed to the requested alert types and minimum
// severity and recomputes the summary and recommendations over what remains.
// Empty filters pass everything through.
func (a *Aggregator) FilterFeed(feed models.AlertFeed, types []models.AlertType, severityMin models.Severity) models.AlertFeed {
	if len(types) == 0 && severityMin == "" {
		return feed
	}

	wanted := map[models.AlertType]bool{}
	for _, t := range types {
		wanted[t] = true
	}
	minRank := models.SeverityRank(severityMin)

	var kept []models.Alert
	for _, alert := range feed.Alerts {
		if len(types) > 0 && !wanted[alert.Type] {
			continue
		}
		if severityMin != "" && models.SeverityRank(alert.Severity) < minRank {
			continue
		}
		kept = append(kept, alert)
	}

	feed.Alerts = kept
	feed.Summary = summarize(kept)
	feed.Recommendations = recommendationsFor(kept)
	return feed
}

// classify maps one finding to at most one alert. Rule order matters:
// security findings always outrank cost classifications, and the named
// monitor checks outrank pattern matching.
func (a *Aggregator) classify(f models.Finding, thresholds models.Thresholds, ts time.Time) (models.Alert, bool) {
	if f.Type == models.FindingTypeInfo || f.Type == models.FindingTypeError {
		return models.Alert{}, false
	}

	var alertType models.AlertType
	severity := f.Severity
	switch {
	case f.Type == models.FindingTypeSecurity:
		// Only high and critical security findings surface in the feed;
		// lower severities stay in the audit report.
		if models.SeverityRank(severity) < models.SeverityRank(models.SeverityHigh) {
			return models.Alert{}, false
		}
		alertType = models.AlertSecurityHigh
	case f.Check == "budget_threshold":
		alertType = models.AlertBudgetThreshold
	case f.Check == "cost_anomalies":
		alertType = models.AlertCostAnomaly
	case isIdleCheck(f.Check):
		alertType = models.AlertIdleResource
	case f.Type == models.FindingTypeCost && f.MonthlyCost >= thresholds.CostSpikeUSD:
		alertType = models.AlertCostSpike
		if models.SeverityRank(severity) < models.SeverityRank(models.SeverityHigh) {
			severity = models.SeverityHigh
		}
	default:
		return models.Alert{}, false
	}

	return models.Alert{
		ID:             alertID(alertType, f),
		Timestamp:      ts,
		AccountID:      f.AccountID,
		Service:        f.Service,
		Region:         f.Region,
		Type:           alertType,
		TypeLabel:      models.AlertTypeLabels[alertType],
		Severity:       severity,
		Title:          alertTitle(alertType, f),
		Description:    f.Issue,
		ResourceID:     f.ResourceID,
		ResourceName:   f.ResourceName,
		MonthlyCost:    f.MonthlyCost,
		Recommendation: f.Recommendation,
		Check:          f.Check,
		IsMock:         f.IsMock,
	}, true
}

func isIdleCheck(check string) bool {
	for _, p := range idlePatterns {
		if strings.Contains(check, p) {
			return true
		}
	}
	return false
}

func alertID(alertType models.AlertType, f models.Finding) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s", alertType, f.AccountID, f.Region, f.ResourceID, f.Check)
	return fmt.Sprintf("%s-%016x", alertType, h.Sum64())
}

func alertTitle(alertType models.AlertType, f models.Finding) string {
	name := f.ResourceName
	if name == "" {
		name = f.ResourceID
	}
	if name == "" {
		name = f.Service
	}
	return fmt.Sprintf("%s: %s", models.AlertTypeLabels[alertType], name)
}

// dedupe collapses alerts sharing (resource, check), keeping the most severe
// and, on ties, the costliest. First occurrence wins remaining ties.
func dedupe(alerts []models.Alert) []models.Alert {
	type key struct{ resource, check string }
	index := make(map[key]int)
	var out []models.Alert
	for _, alert := range alerts {
		k := key{alert.ResourceID, alert.Check}
		if i, seen := index[k]; seen {
			kept := out[i]
			if models.SeverityRank(alert.Severity) > models.SeverityRank(kept.Severity) ||
				(models.SeverityRank(alert.Severity) == models.SeverityRank(kept.Severity) && alert.MonthlyCost > kept.MonthlyCost) {
				out[i] = alert
			}
			continue
		}
		index[k] = len(out)
		out = append(out, alert)
	}
	return out
}

// mergeCombined replaces a resource's cost and security alerts with a single
// critical combined alert. Only resources with a non-empty ID merge.
func mergeCombined(alerts []models.Alert) []models.Alert {
	costTypes := map[models.AlertType]bool{
		models.AlertCostSpike:    true,
		models.AlertIdleResource: true,
	}

	hasCost := map[string]bool{}
	hasSecurity := map[string]bool{}
	for _, alert := range alerts {
		if alert.ResourceID == "" {
			continue
		}
		if costTypes[alert.Type] {
			hasCost[alert.ResourceID] = true
		}
		if alert.Type == models.AlertSecurityHigh {
			hasSecurity[alert.ResourceID] = true
		}
	}

	var out []models.Alert
	merged := map[string]int{}
	for _, alert := range alerts {
		combine := alert.ResourceID != "" && hasCost[alert.ResourceID] && hasSecurity[alert.ResourceID] &&
			(costTypes[alert.Type] || alert.Type == models.AlertSecurityHigh)
		if !combine {
			out = append(out, alert)
			continue
		}
		if i, seen := merged[alert.ResourceID]; seen {
			prior := out[i]
			if prior.MonthlyCost < alert.MonthlyCost {
				prior.MonthlyCost = alert.MonthlyCost
			}
			prior.Description = prior.Description + "; " + alert.Description
			out[i] = prior
			continue
		}
		alert.Type = models.AlertCombined
		alert.TypeLabel = models.AlertTypeLabels[models.AlertCombined]
		alert.Severity = models.SeverityCritical
		alert.ID = combinedAlertID(alert)
		alert.Title = fmt.Sprintf("%s: %s", models.AlertTypeLabels[models.AlertCombined], alertDisplayName(alert))
		merged[alert.ResourceID] = len(out)
		out = append(out, alert)
	}
	return out
}

func combinedAlertID(alert models.Alert) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%s", models.AlertCombined, alert.AccountID, alert.Region, alert.ResourceID)
	return fmt.Sprintf("%s-%016x", models.AlertCombined, h.Sum64())
}

func alertDisplayName(alert models.Alert) string {
	if alert.ResourceName != "" {
		return alert.ResourceName
	}
	return alert.ResourceID
}

// sortAlerts orders by monthly cost descending, then severity descending.
// The sort is stable so classification order breaks remaining ties.
func sortAlerts(alerts []models.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].MonthlyCost != alerts[j].MonthlyCost {
			return alerts[i].MonthlyCost > alerts[j].MonthlyCost
		}
		return models.SeverityRank(alerts[i].Severity) > models.SeverityRank(alerts[j].Severity)
	})
}

func summarize(alerts []models.Alert) models.FeedSummary {
	summary := models.FeedSummary{
		TotalAlerts: len(alerts),
		ByType:      map[models.AlertType]int{},
		BySeverity:  map[models.Severity]int{},
		ByService:   map[string]int{},
	}
	for _, alert := range alerts {
		summary.ByType[alert.Type]++
		summary.BySeverity[alert.Severity]++
		summary.ByService[alert.Service]++
		summary.TotalMonthlyCostImpact += alert.MonthlyCost
	}
	top := len(alerts)
	if top > topAlertCount {
		top = topAlertCount
	}
	summary.TopAlerts = append([]models.Alert(nil), alerts[:top]...)
	return summary
}

// typeRecommendations are the per-type feed recommendations, emitted in this
// fixed order when the type is present.
var typeRecommendations = []struct {
	alertType models.AlertType
	text      string
}{
	{models.AlertCombined, "Resources flagged for both cost and security need immediate attention; remediate before optimizing"},
	{models.AlertSecurityHigh, "Address high severity security findings first; cost savings mean little after an incident"},
	{models.AlertBudgetThreshold, "One or more budgets are at or over their limit; review the spend drivers before month end"},
	{models.AlertCostAnomaly, "Investigate detected cost anomalies in Cost Explorer and stop runaway resources"},
	{models.AlertCostSpike, "Rightsize or terminate the resources driving cost spikes"},
	{models.AlertIdleResource, "Clean up idle and unused resources to cut recurring monthly spend"},
}

func recommendationsFor(alerts []models.Alert) []string {
	present := map[models.AlertType]bool{}
	for _, alert := range alerts {
		present[alert.Type] = true
	}
	var out []string
	for _, rec := range typeRecommendations {
		if present[rec.alertType] {
			out = append(out, rec.text)
		}
	}
	if len(out) == 0 {
		out = []string{"No active alerts; keep scheduled audits running to stay ahead of drift"}
	}
	return out
}
