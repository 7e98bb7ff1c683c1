package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/kosty-cloud/kosty/internal/models"
)

// idleCPUThreshold is the average CPU percentage below which a running
// instance is reported as idle.
const idleCPUThreshold = 5.0

// EC2Check finds stopped instances and running instances with sustained low
// CPU utilization.
type EC2Check struct {
	newEC2 func(aws.Config) EC2API
	newCW  func(aws.Config) CloudWatchAPI
	now    func() time.Time
}

func NewEC2Check() *EC2Check {
	return &EC2Check{newEC2: newEC2Client, newCW: newCWClient, now: time.Now}
}

func (c *EC2Check) Service() string { return "ec2" }
func (c *EC2Check) Name() string    { return "EC2 Instances" }

func (c *EC2Check) Inspect(ctx context.Context, cfg aws.Config, opts Options) ([]models.Finding, error) {
	client := c.newEC2(cfg)
	cw := c.newCW(cfg)

	var findings []models.Finding
	paginator := ec2.NewDescribeInstancesPaginator(client, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("instance-state-name"), Values: []string{"running", "stopped"}},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describing instances: %w", err)
		}
		for _, reservation := range page.Reservations {
			for _, inst := range reservation.Instances {
				f, err := c.inspectInstance(ctx, cw, inst, opts)
				if err != nil {
					return nil, err
				}
				if f != nil {
					findings = append(findings, *f)
				}
			}
		}
	}
	return findings, nil
}

func (c *EC2Check) inspectInstance(ctx context.Context, cw CloudWatchAPI, inst ec2types.Instance, opts Options) (*models.Finding, error) {
	id := aws.ToString(inst.InstanceId)
	instanceType := string(inst.InstanceType)
	state := ""
	if inst.State != nil {
		state = string(inst.State.Name)
	}

	base := models.Finding{
		AccountID:    opts.AccountID,
		Service:      "ec2",
		Region:       opts.Region,
		ResourceID:   id,
		ResourceName: instanceName(inst),
		Type:         models.FindingTypeCost,
		Severity:     models.SeverityMedium,
		Details: map[string]any{
			DetailResourceType: "ec2_instance",
			DetailResourceSize: instanceType,
			"instance_type":    instanceType,
			"state":            state,
		},
	}

	switch state {
	case "stopped":
		base.Check = "stopped_instances"
		base.Issue = fmt.Sprintf("EC2 instance %s is stopped but still accruing storage charges", id)
		base.Recommendation = "Terminate the instance or create an AMI and remove it if no longer needed"
		return &base, nil
	case "running":
		avg, ok, err := c.averageCPU(ctx, cw, id, opts.IdleDays)
		if err != nil {
			return nil, fmt.Errorf("fetching CPU metrics for %s: %w", id, err)
		}
		if !ok || avg >= idleCPUThreshold {
			return nil, nil
		}
		base.Check = "idle_instances"
		base.Issue = fmt.Sprintf("EC2 instance %s averaged %.1f%% CPU over the last %d days", id, avg, opts.IdleDays)
		base.Recommendation = "Stop or downsize the instance, or move the workload to a smaller instance type"
		base.Details["avg_cpu_percent"] = avg
		return &base, nil
	}
	return nil, nil
}

// averageCPU returns the mean CPU utilization over the idle window. The
// second return is false when CloudWatch has no datapoints for the period.
func (c *EC2Check) averageCPU(ctx context.Context, cw CloudWatchAPI, instanceID string, idleDays int) (float64, bool, error) {
	end := c.now()
	start := end.Add(-time.Duration(idleDays) * 24 * time.Hour)
	out, err := cw.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String("AWS/EC2"),
		MetricName: aws.String("CPUUtilization"),
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String("InstanceId"), Value: aws.String(instanceID)},
		},
		StartTime:  aws.Time(start),
		EndTime:    aws.Time(end),
		Period:     aws.Int32(86400),
		Statistics: []cwtypes.Statistic{cwtypes.StatisticAverage},
	})
	if err != nil {
		return 0, false, err
	}
	if len(out.Datapoints) == 0 {
		return 0, false, nil
	}
	var sum float64
	for _, dp := range out.Datapoints {
		sum += aws.ToFloat64(dp.Average)
	}
	return sum / float64(len(out.Datapoints)), true, nil
}

func instanceName(inst ec2types.Instance) string {
	for _, tag := range inst.Tags {
		if aws.ToString(tag.Key) == "Name" {
			return aws.ToString(tag.Value)
		}
	}
	return ""
}
