package monitors

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/smithy-go"

	"github.com/kosty-cloud/kosty/internal/models"
)

type fakeCE struct {
	monitors    []cetypes.AnomalyMonitor
	anomalies   []cetypes.Anomaly
	pageSize    int
	monitorsErr error
}

func (f *fakeCE) GetAnomalyMonitors(ctx context.Context, params *costexplorer.GetAnomalyMonitorsInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetAnomalyMonitorsOutput, error) {
	if f.monitorsErr != nil {
		return nil, f.monitorsErr
	}
	return &costexplorer.GetAnomalyMonitorsOutput{AnomalyMonitors: f.monitors}, nil
}

// GetAnomalies serves f.anomalies in pages of pageSize (everything at once
// when zero), using the offset into the slice as the page token.
func (f *fakeCE) GetAnomalies(ctx context.Context, params *costexplorer.GetAnomaliesInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetAnomaliesOutput, error) {
	if f.pageSize <= 0 {
		return &costexplorer.GetAnomaliesOutput{Anomalies: f.anomalies}, nil
	}
	offset := 0
	if params.NextPageToken != nil {
		fmt.Sscanf(aws.ToString(params.NextPageToken), "%d", &offset)
	}
	end := offset + f.pageSize
	if end > len(f.anomalies) {
		end = len(f.anomalies)
	}
	out := &costexplorer.GetAnomaliesOutput{Anomalies: f.anomalies[offset:end]}
	if end < len(f.anomalies) {
		out.NextPageToken = aws.String(fmt.Sprintf("%d", end))
	}
	return out, nil
}

func anomaly(id, service string, impact float64) cetypes.Anomaly {
	return cetypes.Anomaly{
		AnomalyId:      aws.String(id),
		DimensionValue: aws.String(service),
		Impact:         &cetypes.Impact{TotalImpact: impact},
	}
}

func testAnomalyMonitor(ce CostExplorerAPI) *AnomalyMonitor {
	return &AnomalyMonitor{
		newCE: func(aws.Config) CostExplorerAPI { return ce },
		now:   func() time.Time { return time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC) },
	}
}

func TestAnomalyCollectAppliesImpactFloor(t *testing.T) {
	m := testAnomalyMonitor(&fakeCE{
		monitors: []cetypes.AnomalyMonitor{{MonitorName: aws.String("all-services")}},
		anomalies: []cetypes.Anomaly{
			anomaly("a-small", "Amazon EC2", 9.99),
			anomaly("a-floor", "Amazon S3", 10.00),
			anomaly("a-big", "Amazon RDS", 250.00),
		},
	})

	findings, err := m.Collect(context.Background(), aws.Config{}, "111122223333", models.DefaultThresholds())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(findings) != 2 {
		t.Fatalf("got %d findings, want 2 (floor is inclusive): %+v", len(findings), findings)
	}

	if findings[0].ResourceID != "a-floor" || findings[0].Severity != models.SeverityMedium {
		t.Errorf("floor anomaly: got %s/%s, want a-floor/medium", findings[0].ResourceID, findings[0].Severity)
	}
	if findings[1].ResourceID != "a-big" || findings[1].Severity != models.SeverityHigh {
		t.Errorf("large anomaly: got %s/%s, want a-big/high", findings[1].ResourceID, findings[1].Severity)
	}
	if findings[1].MonthlyCost != 250.00 {
		t.Errorf("anomaly cost = %.2f, want impact 250.00", findings[1].MonthlyCost)
	}
	for _, f := range findings {
		if f.AnnualCost != f.MonthlyCost*12 {
			t.Errorf("anomaly %s annual cost = %.2f, want %.2f", f.ResourceID, f.AnnualCost, f.MonthlyCost*12)
		}
	}
}

func TestAnomalyCollectWalksEveryPage(t *testing.T) {
	var all []cetypes.Anomaly
	for i := 0; i < 7; i++ {
		all = append(all, anomaly(fmt.Sprintf("a-%d", i), "Amazon EC2", 50.00))
	}
	m := testAnomalyMonitor(&fakeCE{
		monitors:  []cetypes.AnomalyMonitor{{MonitorName: aws.String("all-services")}},
		anomalies: all,
		pageSize:  3,
	})

	findings, err := m.Collect(context.Background(), aws.Config{}, "111122223333", models.DefaultThresholds())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(findings) != 7 {
		t.Fatalf("got %d findings, want 7 (all pages collected)", len(findings))
	}
	seen := map[string]bool{}
	for _, f := range findings {
		seen[f.ResourceID] = true
	}
	if len(seen) != 7 {
		t.Errorf("distinct anomalies = %d, want 7", len(seen))
	}
}

func TestAnomalyCollectWithoutMonitorsIsInformational(t *testing.T) {
	m := testAnomalyMonitor(&fakeCE{})

	findings, err := m.Collect(context.Background(), aws.Config{}, "111122223333", models.DefaultThresholds())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("got %d findings, want 1", len(findings))
	}
	if findings[0].Type != models.FindingTypeInfo {
		t.Errorf("finding type = %q, want info", findings[0].Type)
	}
	if findings[0].IsIssue() {
		t.Error("informational finding counted as issue")
	}
}

func TestAnomalyCollectNotOptedIn(t *testing.T) {
	m := testAnomalyMonitor(&fakeCE{
		monitorsErr: &smithy.GenericAPIError{Code: "OptInRequired", Message: "not subscribed"},
	})

	findings, err := m.Collect(context.Background(), aws.Config{}, "111122223333", models.DefaultThresholds())
	if err != nil {
		t.Fatalf("Collect returned error for opt-in condition: %v", err)
	}
	if len(findings) != 1 || findings[0].Type != models.FindingTypeInfo {
		t.Fatalf("want single info finding, got %+v", findings)
	}
}
