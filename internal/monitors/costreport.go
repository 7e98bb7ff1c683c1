package monitors

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"

	"github.com/kosty-cloud/kosty/internal/awsauth"
	"github.com/kosty-cloud/kosty/internal/models"
)

// CostPeriod selects the analysis window for a cost-by-service report.
type CostPeriod string

const (
	PeriodDaily   CostPeriod = "DAILY"
	PeriodWeekly  CostPeriod = "WEEKLY"
	PeriodMonthly CostPeriod = "MONTHLY"
)

// ParseCostPeriod validates a period string, defaulting empty to monthly.
func ParseCostPeriod(s string) (CostPeriod, error) {
	switch CostPeriod(s) {
	case "":
		return PeriodMonthly, nil
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return CostPeriod(s), nil
	}
	return "", fmt.Errorf("invalid cost period %q", s)
}

// costReportFloorUSD drops services whose spend over the window never reached
// a dollar.
const costReportFloorUSD = 1.0

// trendStablePct is the band within which a service's spend counts as stable.
const trendStablePct = 10.0

// CostReporter breaks account spend down by AWS service over a daily, weekly
// or monthly window. Accounts without Cost Explorer access fall back to a
// synthetic breakdown so the report shape stays usable in demos and tests.
type CostReporter struct {
	newCE func(aws.Config) CostUsageAPI
	now   func() time.Time
}

func NewCostReporter() *CostReporter {
	return &CostReporter{newCE: newCostUsageClient, now: time.Now}
}

// Report returns one informational finding per service that spent at least a
// dollar over the window, carrying the total, a trend classification and the
// per-interval data points.
func (r *CostReporter) Report(ctx context.Context, cfg aws.Config, accountID string, period CostPeriod) ([]models.Finding, error) {
	client := r.newCE(cfg)

	days, granularity := periodWindow(period)
	end := r.now()
	start := end.Add(-time.Duration(days) * 24 * time.Hour)

	results, err := r.costAndUsage(ctx, client, start, end, granularity)
	if err != nil {
		if awsauth.IsOptInRequired(err) || awsauth.IsAccessDenied(err) {
			return r.mockReport(accountID, period, days), nil
		}
		return nil, fmt.Errorf("fetching cost and usage: %w", err)
	}

	return r.buildFindings(accountID, period, days, results), nil
}

func periodWindow(period CostPeriod) (days int, granularity cetypes.Granularity) {
	switch period {
	case PeriodDaily:
		return 7, cetypes.GranularityDaily
	case PeriodWeekly:
		return 28, cetypes.GranularityDaily
	default:
		return 90, cetypes.GranularityMonthly
	}
}

func (r *CostReporter) costAndUsage(ctx context.Context, client CostUsageAPI, start, end time.Time, granularity cetypes.Granularity) ([]cetypes.ResultByTime, error) {
	var results []cetypes.ResultByTime
	var token *string
	for {
		out, err := client.GetCostAndUsage(ctx, &costexplorer.GetCostAndUsageInput{
			TimePeriod: &cetypes.DateInterval{
				Start: aws.String(start.Format("2006-01-02")),
				End:   aws.String(end.Format("2006-01-02")),
			},
			Granularity: granularity,
			Metrics:     []string{"UnblendedCost", "UsageQuantity"},
			GroupBy: []cetypes.GroupDefinition{{
				Type: cetypes.GroupDefinitionTypeDimension,
				Key:  aws.String("SERVICE"),
			}},
			NextPageToken: token,
		})
		if err != nil {
			return nil, err
		}
		results = append(results, out.ResultsByTime...)
		if out.NextPageToken == nil || aws.ToString(out.NextPageToken) == "" {
			return results, nil
		}
		token = out.NextPageToken
	}
}

type costPoint struct {
	Date string  `json:"date"`
	Cost float64 `json:"cost"`
}

func (r *CostReporter) buildFindings(accountID string, period CostPeriod, days int, results []cetypes.ResultByTime) []models.Finding {
	totals := map[string]float64{}
	points := map[string][]costPoint{}
	var order []string

	for _, byTime := range results {
		date := ""
		if byTime.TimePeriod != nil {
			date = aws.ToString(byTime.TimePeriod.Start)
		}
		for _, group := range byTime.Groups {
			if len(group.Keys) == 0 {
				continue
			}
			service := group.Keys[0]
			cost := metricAmount(group.Metrics, "UnblendedCost")
			if _, seen := totals[service]; !seen {
				order = append(order, service)
			}
			totals[service] += cost
			points[service] = append(points[service], costPoint{Date: date, Cost: cost})
		}
	}

	var findings []models.Finding
	for _, service := range order {
		total := totals[service]
		if total <= costReportFloorUSD {
			continue
		}
		trend, trendPct := costTrend(points[service])
		findings = append(findings, models.Finding{
			AccountID:    accountID,
			Service:      "costexplorer",
			Check:        "cost_by_service",
			Region:       "global",
			ResourceID:   service,
			ResourceName: service,
			Issue:        fmt.Sprintf("%s spent $%.2f over the %s window", service, total, strings.ToLower(string(period))),
			Type:         models.FindingTypeInfo,
			Severity:     models.SeverityInfo,
			MonthlyCost:  monthlyEquivalent(total, period, days),
			Details: map[string]any{
				"aws_service":      service,
				"total_cost":       round2(total),
				"period":           string(period),
				"trend":            trend,
				"trend_percentage": round2(trendPct),
				"data_points":      points[service],
			},
			DetectedAt: r.now().UTC(),
		})
	}
	return findings
}

// monthlyEquivalent normalizes a window total to a monthly figure so the
// report is comparable across periods.
func monthlyEquivalent(total float64, period CostPeriod, days int) float64 {
	if period == PeriodMonthly {
		return round2(total)
	}
	return round2(total * 30 / float64(days))
}

// costTrend compares the average of the last three data points against the
// first three. Fewer than two points cannot establish a direction.
func costTrend(points []costPoint) (string, float64) {
	if len(points) < 2 {
		return "unknown", 0
	}
	recent := avgCost(points[max(0, len(points)-3):])
	older := avgCost(points[:min(3, len(points))])
	if older <= 0 {
		return "stable", 0
	}
	pct := (recent - older) / older * 100
	switch {
	case pct > trendStablePct:
		return "increasing", pct
	case pct < -trendStablePct:
		return "decreasing", pct
	}
	return "stable", pct
}

func avgCost(points []costPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range points {
		sum += p.Cost
	}
	return sum / float64(len(points))
}

func metricAmount(metrics map[string]cetypes.MetricValue, key string) float64 {
	m, ok := metrics[key]
	if !ok || m.Amount == nil {
		return 0
	}
	v, err := strconv.ParseFloat(aws.ToString(m.Amount), 64)
	if err != nil {
		return 0
	}
	return v
}

// mockCostTable mirrors typical spend for a small production account, used
// when Cost Explorer is unreachable.
var mockCostTable = []struct {
	service string
	daily   float64
	weekly  float64
	monthly float64
}{
	{"Amazon Elastic Compute Cloud - Compute", 15.50, 108.50, 465.00},
	{"Amazon Simple Storage Service", 3.20, 22.40, 96.00},
	{"AWS Lambda", 0.85, 5.95, 25.50},
	{"Amazon Relational Database Service", 12.00, 84.00, 360.00},
	{"Amazon CloudFront", 2.10, 14.70, 63.00},
	{"Amazon API Gateway", 0.45, 3.15, 13.50},
	{"Amazon DynamoDB", 1.80, 12.60, 54.00},
}

func (r *CostReporter) mockReport(accountID string, period CostPeriod, days int) []models.Finding {
	var findings []models.Finding
	for _, entry := range mockCostTable {
		total := entry.monthly
		switch period {
		case PeriodDaily:
			total = entry.daily
		case PeriodWeekly:
			total = entry.weekly
		}
		if total <= costReportFloorUSD {
			continue
		}
		findings = append(findings, models.Finding{
			AccountID:    accountID,
			Service:      "costexplorer",
			Check:        "cost_by_service",
			Region:       "global",
			ResourceID:   entry.service,
			ResourceName: entry.service,
			Issue:        fmt.Sprintf("%s spent $%.2f over the %s window (MOCK DATA)", entry.service, total, strings.ToLower(string(period))),
			Type:         models.FindingTypeInfo,
			Severity:     models.SeverityInfo,
			MonthlyCost:  monthlyEquivalent(total, period, days),
			IsMock:       true,
			Details: map[string]any{
				"aws_service": entry.service,
				"total_cost":  total,
				"period":      string(period),
				"trend":       "stable",
			},
			DetectedAt: r.now().UTC(),
		})
	}
	return findings
}
