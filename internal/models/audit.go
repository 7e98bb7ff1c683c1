package models

import "time"

// ScanTarget is the (account, region, credential) unit the engine schedules
// work against. Created once per fan-out expansion and never mutated; it is
// the unit of isolation for failures.
type ScanTarget struct {
	AccountID  string `json:"account_id"`
	Region     string `json:"region"`
	RoleARN    string `json:"role_arn,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
}

// Key returns the cache/grouping key for the target's credentials.
func (t ScanTarget) Key() string {
	return t.AccountID + "/" + t.Region + "/" + t.RoleARN
}

// Thresholds holds the tunable alert limits read by classification and the
// monitors. All values are configuration-overridable; the zero value is not
// usable — construct via DefaultThresholds.
type Thresholds struct {
	// BudgetPct is the actual-spend percentage of a budget limit at which a
	// budget alert fires.
	BudgetPct float64 `json:"budget_threshold_percentage"`

	// ForecastPct is the forecasted-spend percentage of a budget limit at
	// which a budget alert fires.
	ForecastPct float64 `json:"forecast_threshold_percentage"`

	// CostSpikeUSD is the monthly cost impact above which a finding is
	// classified as a cost spike.
	CostSpikeUSD float64 `json:"cost_spike_threshold"`

	// AnomalyMinUSD is the noise floor for cost anomalies; anomalies with a
	// smaller total impact are discarded.
	AnomalyMinUSD float64 `json:"anomaly_min_impact"`

	// IdleDays is the inactivity window before a resource counts as idle.
	IdleDays int `json:"idle_days_threshold"`

	// SecurityScoreMin is the minimum detector severity score (0–10 scale)
	// for a security finding to pass the translator filter.
	SecurityScoreMin float64 `json:"security_score_min"`
}

// DefaultThresholds returns the documented default limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BudgetPct:        80,
		ForecastPct:      100,
		CostSpikeUSD:     100,
		AnomalyMinUSD:    10,
		IdleDays:         7,
		SecurityScoreMin: 7.0,
	}
}

// AuditSummary aggregates issue counts and savings totals across all findings.
type AuditSummary struct {
	TotalIssues         int     `json:"total_issues"`
	TotalMonthlySavings float64 `json:"total_monthly_savings"`
	TotalAnnualSavings  float64 `json:"total_annual_savings"`
}

// AccountResults maps service name → findings for one account.
type AccountResults map[string][]Finding

// AuditResult is the top-level output of one audit run: a timestamped
// per-account, per-service finding map plus the rolled-up summary.
// It is built once per request, returned, and discarded; the engine keeps
// no state between runs.
type AuditResult struct {
	ScanTimestamp time.Time                 `json:"scan_timestamp"`
	Organization  bool                      `json:"organization"`
	OrgAdminID    string                    `json:"org_admin_account_id,omitempty"`
	Results       map[string]AccountResults `json:"results"`
	Summary       AuditSummary              `json:"summary"`
	Partial       bool                      `json:"partial,omitempty"`
	FailedTargets []string                  `json:"failed_targets,omitempty"`
}

// AllFindings flattens the nested result map into a single slice.
// Ordering follows map iteration and is not stable; callers that need a
// deterministic order must sort.
func (r *AuditResult) AllFindings() []Finding {
	var out []Finding
	for _, account := range r.Results {
		for _, findings := range account {
			out = append(out, findings...)
		}
	}
	return out
}

// ProfileResult is one configuration profile's outcome in a multi-profile run.
// Failed profiles carry Error and a nil Result; the run never aborts for a
// single bad profile.
type ProfileResult struct {
	Profile   string       `json:"profile"`
	AccountID string       `json:"account_id,omitempty"`
	Error     string       `json:"error,omitempty"`
	Result    *AuditResult `json:"result,omitempty"`
}

// MultiProfileResult aggregates per-profile audit outcomes and a combined
// summary over the profiles that succeeded.
type MultiProfileResult struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Profiles    []ProfileResult `json:"profiles"`
	Summary     AuditSummary    `json:"summary"`
}
