package checks

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"

	"github.com/kosty-cloud/kosty/internal/models"
)

// RDSCheck reports stopped database instances (still billed for storage) and
// publicly accessible ones.
type RDSCheck struct {
	newRDS func(aws.Config) RDSAPI
}

func NewRDSCheck() *RDSCheck {
	return &RDSCheck{newRDS: newRDSClient}
}

func (c *RDSCheck) Service() string { return "rds" }
func (c *RDSCheck) Name() string    { return "RDS Databases" }

func (c *RDSCheck) Inspect(ctx context.Context, cfg aws.Config, opts Options) ([]models.Finding, error) {
	client := c.newRDS(cfg)

	var findings []models.Finding
	paginator := rds.NewDescribeDBInstancesPaginator(client, &rds.DescribeDBInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describing DB instances: %w", err)
		}
		for _, db := range page.DBInstances {
			id := aws.ToString(db.DBInstanceIdentifier)
			class := aws.ToString(db.DBInstanceClass)
			status := aws.ToString(db.DBInstanceStatus)

			if status == "stopped" {
				findings = append(findings, models.Finding{
					AccountID:      opts.AccountID,
					Service:        "rds",
					Check:          "stopped_databases",
					Region:         opts.Region,
					ResourceID:     id,
					ResourceName:   id,
					Issue:          fmt.Sprintf("RDS instance %s is stopped but still billed for storage", id),
					Type:           models.FindingTypeCost,
					Severity:       models.SeverityMedium,
					Recommendation: "Take a final snapshot and delete the instance if it is no longer used",
					Details: map[string]any{
						DetailResourceType: "rds_instance",
						DetailResourceSize: class,
						"engine":           aws.ToString(db.Engine),
					},
				})
			}

			if aws.ToBool(db.PubliclyAccessible) {
				findings = append(findings, models.Finding{
					AccountID:      opts.AccountID,
					Service:        "rds",
					Check:          "public_databases",
					Region:         opts.Region,
					ResourceID:     id,
					ResourceName:   id,
					Issue:          fmt.Sprintf("RDS instance %s is publicly accessible", id),
					Type:           models.FindingTypeSecurity,
					Severity:       models.SeverityHigh,
					Recommendation: "Disable public access and route connections through a VPC endpoint or bastion",
					Details: map[string]any{
						"engine": aws.ToString(db.Engine),
						"status": status,
					},
				})
			}
		}
	}
	return findings, nil
}
