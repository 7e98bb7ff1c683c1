package checks

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/kosty-cloud/kosty/internal/models"
)

// LBCheck finds load balancers with no registered healthy targets. They bill
// hourly whether or not they route traffic.
type LBCheck struct {
	newELB func(aws.Config) ELBAPI
}

func NewLBCheck() *LBCheck {
	return &LBCheck{newELB: newELBClient}
}

func (c *LBCheck) Service() string { return "lb" }
func (c *LBCheck) Name() string    { return "Load Balancers" }

func (c *LBCheck) Inspect(ctx context.Context, cfg aws.Config, opts Options) ([]models.Finding, error) {
	client := c.newELB(cfg)

	var findings []models.Finding
	paginator := elbv2.NewDescribeLoadBalancersPaginator(client, &elbv2.DescribeLoadBalancersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describing load balancers: %w", err)
		}
		for _, lb := range page.LoadBalancers {
			arn := aws.ToString(lb.LoadBalancerArn)
			name := aws.ToString(lb.LoadBalancerName)

			healthy, err := c.hasHealthyTargets(ctx, client, arn)
			if err != nil {
				return nil, err
			}
			if healthy {
				continue
			}
			findings = append(findings, models.Finding{
				AccountID:      opts.AccountID,
				Service:        "lb",
				Check:          "unused_load_balancers",
				Region:         opts.Region,
				ResourceID:     arn,
				ResourceName:   name,
				Issue:          fmt.Sprintf("Load balancer %s has no healthy targets", name),
				Type:           models.FindingTypeCost,
				Severity:       models.SeverityMedium,
				Recommendation: "Delete the load balancer or register the intended targets",
				Details: map[string]any{
					DetailResourceType: "load_balancer",
					"lb_type":          string(lb.Type),
				},
			})
		}
	}
	return findings, nil
}

func (c *LBCheck) hasHealthyTargets(ctx context.Context, client ELBAPI, lbARN string) (bool, error) {
	groups, err := client.DescribeTargetGroups(ctx, &elbv2.DescribeTargetGroupsInput{
		LoadBalancerArn: aws.String(lbARN),
	})
	if err != nil {
		return false, fmt.Errorf("describing target groups for %s: %w", lbARN, err)
	}
	for _, tg := range groups.TargetGroups {
		health, err := client.DescribeTargetHealth(ctx, &elbv2.DescribeTargetHealthInput{
			TargetGroupArn: tg.TargetGroupArn,
		})
		if err != nil {
			return false, fmt.Errorf("describing target health for %s: %w", aws.ToString(tg.TargetGroupArn), err)
		}
		for _, desc := range health.TargetHealthDescriptions {
			if desc.TargetHealth != nil && desc.TargetHealth.State == elbv2types.TargetHealthStateEnumHealthy {
				return true, nil
			}
		}
	}
	return false, nil
}
