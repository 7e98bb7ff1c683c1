package checks

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/kosty-cloud/kosty/internal/models"
)

// EIPCheck finds Elastic IPs that are allocated but not associated with any
// instance or network interface. AWS charges for unattached addresses.
type EIPCheck struct {
	newEC2 func(aws.Config) EC2API
}

func NewEIPCheck() *EIPCheck {
	return &EIPCheck{newEC2: newEC2Client}
}

func (c *EIPCheck) Service() string { return "eip" }
func (c *EIPCheck) Name() string    { return "Elastic IPs" }

func (c *EIPCheck) Inspect(ctx context.Context, cfg aws.Config, opts Options) ([]models.Finding, error) {
	client := c.newEC2(cfg)

	// DescribeAddresses is not paginated.
	out, err := client.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{})
	if err != nil {
		return nil, fmt.Errorf("describing addresses: %w", err)
	}

	var findings []models.Finding
	for _, addr := range out.Addresses {
		if addr.AssociationId != nil {
			continue
		}
		id := aws.ToString(addr.AllocationId)
		ip := aws.ToString(addr.PublicIp)
		findings = append(findings, models.Finding{
			AccountID:      opts.AccountID,
			Service:        "eip",
			Check:          "unattached_eips",
			Region:         opts.Region,
			ResourceID:     id,
			ResourceName:   ip,
			Issue:          fmt.Sprintf("Elastic IP %s is allocated but not attached", ip),
			Type:           models.FindingTypeCost,
			Severity:       models.SeverityLow,
			Recommendation: "Release the address if it is no longer needed",
			Details: map[string]any{
				DetailResourceType: "elastic_ip",
				"public_ip":        ip,
			},
		})
	}
	return findings, nil
}
