package checks

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kosty-cloud/kosty/internal/models"
)

// S3Check finds buckets that contain no objects. Empty buckets are usually
// abandoned provisioning leftovers.
type S3Check struct {
	newS3 func(aws.Config) S3API
}

func NewS3Check() *S3Check {
	return &S3Check{newS3: newS3Client}
}

func (c *S3Check) Service() string { return "s3" }
func (c *S3Check) Name() string    { return "S3 Buckets" }

func (c *S3Check) Inspect(ctx context.Context, cfg aws.Config, opts Options) ([]models.Finding, error) {
	client := c.newS3(cfg)

	buckets, err := client.ListBuckets(ctx, &s3.ListBucketsInput{
		BucketRegion: aws.String(opts.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("listing buckets: %w", err)
	}

	var findings []models.Finding
	for _, bucket := range buckets.Buckets {
		name := aws.ToString(bucket.Name)
		objects, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:  aws.String(name),
			MaxKeys: aws.Int32(1),
		})
		if err != nil {
			// Bucket-level errors (e.g. policy denies ListObjects on one
			// bucket) should not sink the whole region.
			continue
		}
		if aws.ToInt32(objects.KeyCount) > 0 {
			continue
		}
		findings = append(findings, models.Finding{
			AccountID:      opts.AccountID,
			Service:        "s3",
			Check:          "empty_buckets",
			Region:         opts.Region,
			ResourceID:     name,
			ResourceName:   name,
			Issue:          fmt.Sprintf("S3 bucket %s contains no objects", name),
			Type:           models.FindingTypeCost,
			Severity:       models.SeverityLow,
			Recommendation: "Delete the bucket if it is no longer part of any workflow",
			Details: map[string]any{
				DetailResourceType: "s3_bucket",
			},
		})
	}
	return findings, nil
}
