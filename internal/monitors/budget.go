package monitors

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/budgets"
	budgettypes "github.com/aws/aws-sdk-go-v2/service/budgets/types"

	"github.com/kosty-cloud/kosty/internal/models"
)

// BudgetMonitor reports budgets whose actual spend crosses the alert
// percentage or whose forecast crosses the limit.
type BudgetMonitor struct {
	newBudgets func(aws.Config) BudgetsAPI
	now        func() time.Time
}

func NewBudgetMonitor() *BudgetMonitor {
	return &BudgetMonitor{newBudgets: newBudgetsClient, now: time.Now}
}

// Collect inspects every budget in the account. A budget alerts when actual
// spend reaches thresholds.BudgetPct of the limit or forecasted spend reaches
// thresholds.ForecastPct, both inclusive. An account with no budgets gets a
// single recommendation finding.
func (m *BudgetMonitor) Collect(ctx context.Context, cfg aws.Config, accountID string, thresholds models.Thresholds) ([]models.Finding, error) {
	client := m.newBudgets(cfg)

	out, err := client.DescribeBudgets(ctx, &budgets.DescribeBudgetsInput{
		AccountId: aws.String(accountID),
	})
	if err != nil {
		return nil, fmt.Errorf("describing budgets: %w", err)
	}
	if len(out.Budgets) == 0 {
		return []models.Finding{{
			AccountID:      accountID,
			Service:        "budgets",
			Check:          "budget_threshold",
			Region:         "global",
			Issue:          "No budgets are configured for this account",
			Type:           models.FindingTypeRecommendation,
			Severity:       models.SeverityLow,
			Recommendation: "Create a monthly cost budget so overspend is caught before the invoice",
			DetectedAt:     m.now().UTC(),
		}}, nil
	}

	var findings []models.Finding
	for _, budget := range out.Budgets {
		f, ok := m.evaluate(budget, accountID, thresholds)
		if ok {
			findings = append(findings, f)
		}
	}
	return findings, nil
}

func (m *BudgetMonitor) evaluate(budget budgettypes.Budget, accountID string, thresholds models.Thresholds) (models.Finding, bool) {
	name := aws.ToString(budget.BudgetName)
	limit := spendAmount(budget.BudgetLimit)
	if limit <= 0 || budget.CalculatedSpend == nil {
		return models.Finding{}, false
	}
	actual := spendAmount(budget.CalculatedSpend.ActualSpend)
	forecast := spendAmount(budget.CalculatedSpend.ForecastedSpend)

	actualPct := actual / limit * 100
	forecastPct := forecast / limit * 100
	if actualPct < thresholds.BudgetPct && forecastPct < thresholds.ForecastPct {
		return models.Finding{}, false
	}

	severity := models.SeverityMedium
	switch {
	case actualPct >= 100:
		severity = models.SeverityCritical
	case actualPct >= 90:
		severity = models.SeverityHigh
	}

	issue := fmt.Sprintf("Budget %s is at %.1f%% of its $%.2f limit", name, actualPct, limit)
	if actualPct < thresholds.BudgetPct {
		issue = fmt.Sprintf("Budget %s is forecast to reach %.1f%% of its $%.2f limit", name, forecastPct, limit)
	}

	return models.Finding{
		AccountID:      accountID,
		Service:        "budgets",
		Check:          "budget_threshold",
		Region:         "global",
		ResourceID:     name,
		ResourceName:   name,
		Issue:          issue,
		Type:           models.FindingTypeCost,
		Severity:       severity,
		Recommendation: "Review the spend drivers for this budget and raise the limit only if the growth is intentional",
		Details: map[string]any{
			"limit_usd":    limit,
			"actual_usd":   actual,
			"forecast_usd": forecast,
			"actual_pct":   actualPct,
			"forecast_pct": forecastPct,
		},
		DetectedAt: m.now().UTC(),
	}, true
}

func spendAmount(s *budgettypes.Spend) float64 {
	if s == nil || s.Amount == nil {
		return 0
	}
	v, err := strconv.ParseFloat(aws.ToString(s.Amount), 64)
	if err != nil {
		return 0
	}
	return v
}
