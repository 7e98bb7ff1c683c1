package engine

import (
	"math"
	"sort"
	"time"

	"github.com/kosty-cloud/kosty/internal/models"
)

// assemble groups raw findings into the per-account, per-service result map
// and computes the summary rollup. Pure function of its inputs; given the
// same findings it always produces the same result.
func assemble(findings []models.Finding, started time.Time, organization bool, adminID string, failed []string) *models.AuditResult {
	sortFindings(findings)

	results := make(map[string]models.AccountResults)
	for _, f := range findings {
		account := results[f.AccountID]
		if account == nil {
			account = make(models.AccountResults)
			results[f.AccountID] = account
		}
		account[f.Service] = append(account[f.Service], f)
	}

	sort.Strings(failed)
	return &models.AuditResult{
		ScanTimestamp: started.UTC(),
		Organization:  organization,
		OrgAdminID:    adminID,
		Results:       results,
		Summary:       summarizeFindings(findings),
		Partial:       len(failed) > 0,
		FailedTargets: failed,
	}
}

// summarizeFindings computes the issue count and savings totals. Only
// informational findings are excluded from the issue count; only cost
// findings contribute savings. The annual total is always twelve times the
// monthly total.
func summarizeFindings(findings []models.Finding) models.AuditSummary {
	var summary models.AuditSummary
	for _, f := range findings {
		if f.IsIssue() {
			summary.TotalIssues++
		}
		if f.Type == models.FindingTypeCost {
			summary.TotalMonthlySavings += f.MonthlyCost
		}
	}
	summary.TotalMonthlySavings = round2(summary.TotalMonthlySavings)
	summary.TotalAnnualSavings = round2(summary.TotalMonthlySavings * 12)
	return summary
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
