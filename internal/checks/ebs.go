package checks

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/kosty-cloud/kosty/internal/models"
)

// EBSCheck finds volumes in the "available" state, meaning they are not
// attached to any instance but still billed for provisioned storage.
type EBSCheck struct {
	newEC2 func(aws.Config) EC2API
}

func NewEBSCheck() *EBSCheck {
	return &EBSCheck{newEC2: newEC2Client}
}

func (c *EBSCheck) Service() string { return "ebs" }
func (c *EBSCheck) Name() string    { return "EBS Volumes" }

func (c *EBSCheck) Inspect(ctx context.Context, cfg aws.Config, opts Options) ([]models.Finding, error) {
	client := c.newEC2(cfg)

	var findings []models.Finding
	paginator := ec2.NewDescribeVolumesPaginator(client, &ec2.DescribeVolumesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("status"), Values: []string{"available"}},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describing volumes: %w", err)
		}
		for _, vol := range page.Volumes {
			id := aws.ToString(vol.VolumeId)
			sizeGB := aws.ToInt32(vol.Size)
			findings = append(findings, models.Finding{
				AccountID:      opts.AccountID,
				Service:        "ebs",
				Check:          "orphan_volumes",
				Region:         opts.Region,
				ResourceID:     id,
				Issue:          fmt.Sprintf("EBS volume %s (%d GiB) is unattached", id, sizeGB),
				Type:           models.FindingTypeCost,
				Severity:       models.SeverityMedium,
				Recommendation: "Snapshot the volume if the data matters, then delete it",
				Details: map[string]any{
					DetailResourceType: "ebs_volume",
					DetailResourceSize: fmt.Sprintf("%d", sizeGB),
					"volume_type":      string(vol.VolumeType),
					"size_gb":          int(sizeGB),
				},
			})
		}
	}
	return findings, nil
}
