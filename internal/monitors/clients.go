package monitors

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/budgets"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
)

// CostExplorerAPI is the slice of Cost Explorer used for anomaly detection.
type CostExplorerAPI interface {
	GetAnomalyMonitors(ctx context.Context, params *costexplorer.GetAnomalyMonitorsInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetAnomalyMonitorsOutput, error)
	GetAnomalies(ctx context.Context, params *costexplorer.GetAnomaliesInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetAnomaliesOutput, error)
}

// CostUsageAPI is the slice of Cost Explorer used for spend breakdowns.
type CostUsageAPI interface {
	GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
}

// BudgetsAPI is the slice of the Budgets service used for threshold alerts.
type BudgetsAPI interface {
	DescribeBudgets(ctx context.Context, params *budgets.DescribeBudgetsInput, optFns ...func(*budgets.Options)) (*budgets.DescribeBudgetsOutput, error)
}

func newCEClient(cfg aws.Config) CostExplorerAPI     { return costexplorer.NewFromConfig(cfg) }
func newCostUsageClient(cfg aws.Config) CostUsageAPI { return costexplorer.NewFromConfig(cfg) }
func newBudgetsClient(cfg aws.Config) BudgetsAPI     { return budgets.NewFromConfig(cfg) }
