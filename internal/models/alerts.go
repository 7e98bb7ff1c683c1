package models

import "time"

// AlertType is the single classification assigned to every alert.
type AlertType string

const (
	AlertCostSpike       AlertType = "cost_spike"
	AlertIdleResource    AlertType = "idle_resource"
	AlertSecurityHigh    AlertType = "security_high"
	AlertBudgetThreshold AlertType = "budget_threshold"
	AlertCostAnomaly     AlertType = "cost_anomaly"
	AlertCombined        AlertType = "combined"
)

// AlertTypeLabels maps alert types to display labels.
var AlertTypeLabels = map[AlertType]string{
	AlertCostSpike:       "Cost Spike",
	AlertIdleResource:    "Idle/Unused Resource",
	AlertSecurityHigh:    "High Severity Security",
	AlertBudgetThreshold: "Budget Threshold Exceeded",
	AlertCostAnomaly:     "Cost Anomaly Detected",
	AlertCombined:        "Combined Cost & Security",
}

// Alert is a classified, deduplicated view of one or more findings. Every
// alert carries exactly one AlertType; classification is a pure function of
// the underlying finding and the active thresholds.
type Alert struct {
	ID             string    `json:"alert_id"`
	Timestamp      time.Time `json:"timestamp"`
	AccountID      string    `json:"account_id"`
	Service        string    `json:"service"`
	Region         string    `json:"region"`
	Type           AlertType `json:"alert_type"`
	TypeLabel      string    `json:"alert_type_label"`
	Severity       Severity  `json:"severity"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	ResourceID     string    `json:"resource_id"`
	ResourceName   string    `json:"resource_name"`
	MonthlyCost    float64   `json:"monthly_cost"`
	Recommendation string    `json:"recommendation,omitempty"`
	Check          string    `json:"check"`
	IsMock         bool      `json:"is_mock,omitempty"`
}

// FeedSummary is the aggregate view over one alert set.
type FeedSummary struct {
	TotalAlerts            int               `json:"total_alerts"`
	ByType                 map[AlertType]int `json:"by_type"`
	BySeverity             map[Severity]int  `json:"by_severity"`
	ByService              map[string]int    `json:"by_service"`
	TotalMonthlyCostImpact float64           `json:"total_monthly_cost_impact"`
	TopAlerts              []Alert           `json:"top_alerts"`
}

// FeedType selects the alert feed flavour.
type FeedType string

const (
	FeedDaily    FeedType = "daily"
	FeedRealtime FeedType = "realtime"
)

// AlertFeed is the full classified, ranked, summarized alert set for one
// request. It is rebuilt fresh on every request and never partially cached.
type AlertFeed struct {
	FeedType        FeedType    `json:"feed_type"`
	FeedDate        string      `json:"feed_date,omitempty"`
	GeneratedAt     time.Time   `json:"generated_at"`
	Summary         FeedSummary `json:"summary"`
	Alerts          []Alert     `json:"alerts"`
	Recommendations []string    `json:"recommendations"`
}
