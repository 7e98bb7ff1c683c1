package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/kosty-cloud/kosty/internal/models"
)

// staleKeyAge is how old an active access key may be before it is flagged.
const staleKeyAge = 90 * 24 * time.Hour

// IAMCheck flags active access keys older than the rotation window. IAM is a
// global service; the engine schedules it once per account.
type IAMCheck struct {
	newIAM func(aws.Config) IAMAPI
	now    func() time.Time
}

func NewIAMCheck() *IAMCheck {
	return &IAMCheck{newIAM: newIAMClient, now: time.Now}
}

func (c *IAMCheck) Service() string { return "iam" }
func (c *IAMCheck) Name() string    { return "IAM Credentials" }

func (c *IAMCheck) Inspect(ctx context.Context, cfg aws.Config, opts Options) ([]models.Finding, error) {
	client := c.newIAM(cfg)

	var findings []models.Finding
	paginator := iam.NewListUsersPaginator(client, &iam.ListUsersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing users: %w", err)
		}
		for _, user := range page.Users {
			userFindings, err := c.inspectUser(ctx, client, user, opts)
			if err != nil {
				return nil, err
			}
			findings = append(findings, userFindings...)
		}
	}
	return findings, nil
}

func (c *IAMCheck) inspectUser(ctx context.Context, client IAMAPI, user iamtypes.User, opts Options) ([]models.Finding, error) {
	userName := aws.ToString(user.UserName)
	keys, err := client.ListAccessKeys(ctx, &iam.ListAccessKeysInput{
		UserName: user.UserName,
	})
	if err != nil {
		return nil, fmt.Errorf("listing access keys for %s: %w", userName, err)
	}

	var findings []models.Finding
	for _, key := range keys.AccessKeyMetadata {
		if key.Status != iamtypes.StatusTypeActive || key.CreateDate == nil {
			continue
		}
		age := c.now().Sub(*key.CreateDate)
		if age < staleKeyAge {
			continue
		}
		keyID := aws.ToString(key.AccessKeyId)
		findings = append(findings, models.Finding{
			AccountID:      opts.AccountID,
			Service:        "iam",
			Check:          "old_access_keys",
			Region:         opts.Region,
			ResourceID:     keyID,
			ResourceName:   userName,
			Issue:          fmt.Sprintf("Access key %s for user %s is %d days old", keyID, userName, int(age.Hours()/24)),
			Type:           models.FindingTypeSecurity,
			Severity:       models.SeverityMedium,
			Recommendation: "Rotate the access key and deactivate the old one",
			Details: map[string]any{
				"user":     userName,
				"age_days": int(age.Hours() / 24),
			},
		})
	}
	return findings, nil
}
