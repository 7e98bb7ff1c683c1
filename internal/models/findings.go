package models

import "time"

// Severity represents the impact level of a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// severityRank maps Severity values to numeric priorities (higher = more severe).
var severityRank = map[Severity]int{
	SeverityCritical: 5,
	SeverityHigh:     4,
	SeverityMedium:   3,
	SeverityLow:      2,
	SeverityInfo:     1,
}

// SeverityRank returns the numeric priority for s. Unknown severities rank
// below info so they never outrank a real classification.
func SeverityRank(s Severity) int {
	return severityRank[s]
}

// FindingType categorises what kind of observation a finding carries.
type FindingType string

const (
	// FindingTypeCost marks findings with a dollar-cost impact.
	FindingTypeCost FindingType = "cost"

	// FindingTypeSecurity marks findings from a threat-detection source.
	FindingTypeSecurity FindingType = "security"

	// FindingTypeRecommendation marks advisory findings with no direct
	// resource issue (e.g. "enable anomaly detection").
	FindingTypeRecommendation FindingType = "recommendation"

	// FindingTypeInfo marks purely informational findings. They are excluded
	// from issue counts.
	FindingTypeInfo FindingType = "info"

	// FindingTypeError marks a failed check or target. The scan continues;
	// the error is surfaced as data instead of aborting siblings.
	FindingTypeError FindingType = "error"
)

// Finding is one raw observation (cost waste or security issue) about one
// resource in one account and region. It is the atomic output unit of every
// check and monitor. Findings are never mutated after creation except by the
// cost quantifier attaching the cost fields.
type Finding struct {
	AccountID    string      `json:"account_id"`
	Service      string      `json:"service"`
	Check        string      `json:"check"`
	Region       string      `json:"region"`
	ResourceID   string      `json:"resource_id"`
	ResourceName string      `json:"resource_name,omitempty"`
	Issue        string      `json:"issue"`
	Type         FindingType `json:"type"`
	Severity     Severity    `json:"severity"`

	// MonthlyCost is the estimated monthly cost impact in USD. Zero means no
	// cost could be attached; it is never negative. AnnualCost is always
	// MonthlyCost × 12 when MonthlyCost is set.
	MonthlyCost float64 `json:"monthly_cost,omitempty"`
	AnnualCost  float64 `json:"annual_cost,omitempty"`

	// IsMock flags synthetic cost data substituted when the live pricing
	// source was unavailable. Mock findings also carry a "(MOCK DATA)"
	// suffix in Issue so they are never silently blended with live figures.
	IsMock bool `json:"is_mock,omitempty"`

	Recommendation string         `json:"recommendation,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	DetectedAt     time.Time      `json:"detected_at"`
}

// IsIssue reports whether the finding counts toward total_issues.
// Informational findings describe state, not problems.
func (f Finding) IsIssue() bool {
	return f.Type != FindingTypeInfo
}
