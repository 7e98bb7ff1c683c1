package monitors

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"

	"github.com/kosty-cloud/kosty/internal/awsauth"
	"github.com/kosty-cloud/kosty/internal/models"
)

// anomalyWindowDays is how far back anomalies are collected.
const anomalyWindowDays = 30

// anomalyHighImpactUSD is the impact at or above which an anomaly is high
// severity rather than medium.
const anomalyHighImpactUSD = 100.0

// AnomalyMonitor surfaces Cost Explorer anomalies above the configured
// impact floor. Cost Explorer is account-global, so the engine runs this once
// per account.
type AnomalyMonitor struct {
	newCE func(aws.Config) CostExplorerAPI
	now   func() time.Time
}

func NewAnomalyMonitor() *AnomalyMonitor {
	return &AnomalyMonitor{newCE: newCEClient, now: time.Now}
}

// Collect returns one finding per qualifying anomaly. Impacts below
// thresholds.AnomalyMinUSD are dropped; the floor itself qualifies. An
// account with no anomaly monitors gets a single informational finding, and
// an account not opted in to Cost Explorer gets an informational note rather
// than an error.
func (m *AnomalyMonitor) Collect(ctx context.Context, cfg aws.Config, accountID string, thresholds models.Thresholds) ([]models.Finding, error) {
	client := m.newCE(cfg)

	monitors, err := client.GetAnomalyMonitors(ctx, &costexplorer.GetAnomalyMonitorsInput{})
	if err != nil {
		if awsauth.IsOptInRequired(err) {
			return []models.Finding{m.infoFinding(accountID, "cost_anomalies",
				"Cost Explorer is not enabled for this account",
				"Enable Cost Explorer to get anomaly detection and spend visibility")}, nil
		}
		return nil, fmt.Errorf("listing anomaly monitors: %w", err)
	}
	if len(monitors.AnomalyMonitors) == 0 {
		return []models.Finding{m.infoFinding(accountID, "cost_anomalies",
			"No cost anomaly monitors are configured",
			"Create an AWS-services anomaly monitor to catch unexpected spend spikes")}, nil
	}

	end := m.now()
	start := end.Add(-anomalyWindowDays * 24 * time.Hour)
	anomalies, err := m.listAnomalies(ctx, client, start, end)
	if err != nil {
		return nil, err
	}

	var findings []models.Finding
	for _, anomaly := range anomalies {
		impact := 0.0
		if anomaly.Impact != nil {
			impact = anomaly.Impact.TotalImpact
		}
		if impact < thresholds.AnomalyMinUSD {
			continue
		}
		severity := models.SeverityMedium
		if impact >= anomalyHighImpactUSD {
			severity = models.SeverityHigh
		}
		service := aws.ToString(anomaly.DimensionValue)
		if service == "" {
			service = "unknown"
		}
		findings = append(findings, models.Finding{
			AccountID:      accountID,
			Service:        "costexplorer",
			Check:          "cost_anomalies",
			Region:         "global",
			ResourceID:     aws.ToString(anomaly.AnomalyId),
			ResourceName:   service,
			Issue:          fmt.Sprintf("Cost anomaly in %s with $%.2f total impact", service, impact),
			Type:           models.FindingTypeCost,
			Severity:       severity,
			MonthlyCost:    impact,
			AnnualCost:     round2(impact * 12),
			Recommendation: "Review the anomaly root cause in Cost Explorer and stop the responsible resources",
			Details: map[string]any{
				"impact_usd":       impact,
				"impacted_service": service,
			},
			DetectedAt: m.now().UTC(),
		})
	}
	return findings, nil
}

// listAnomalies walks every GetAnomalies page; the API caps a single page at
// 100 anomalies.
func (m *AnomalyMonitor) listAnomalies(ctx context.Context, client CostExplorerAPI, start, end time.Time) ([]cetypes.Anomaly, error) {
	var anomalies []cetypes.Anomaly
	var token *string
	for {
		out, err := client.GetAnomalies(ctx, &costexplorer.GetAnomaliesInput{
			DateInterval: &cetypes.AnomalyDateInterval{
				StartDate: aws.String(start.Format("2006-01-02")),
				EndDate:   aws.String(end.Format("2006-01-02")),
			},
			NextPageToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("listing anomalies: %w", err)
		}
		anomalies = append(anomalies, out.Anomalies...)
		if out.NextPageToken == nil || aws.ToString(out.NextPageToken) == "" {
			return anomalies, nil
		}
		token = out.NextPageToken
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (m *AnomalyMonitor) infoFinding(accountID, check, issue, recommendation string) models.Finding {
	return models.Finding{
		AccountID:      accountID,
		Service:        "costexplorer",
		Check:          check,
		Region:         "global",
		Issue:          issue,
		Type:           models.FindingTypeInfo,
		Severity:       models.SeverityInfo,
		Recommendation: recommendation,
		DetectedAt:     m.now().UTC(),
	}
}
