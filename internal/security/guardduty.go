package security

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/guardduty"
	gdtypes "github.com/aws/aws-sdk-go-v2/service/guardduty/types"

	"github.com/kosty-cloud/kosty/internal/models"
)

// criticalScore is the GuardDuty severity at or above which a finding is
// translated as critical instead of high.
const criticalScore = 9.0

// getFindingsBatchSize is the GuardDuty GetFindings request limit.
const getFindingsBatchSize = 50

// GuardDutyAPI is the slice of GuardDuty the translator calls.
type GuardDutyAPI interface {
	ListDetectors(ctx context.Context, params *guardduty.ListDetectorsInput, optFns ...func(*guardduty.Options)) (*guardduty.ListDetectorsOutput, error)
	GetDetector(ctx context.Context, params *guardduty.GetDetectorInput, optFns ...func(*guardduty.Options)) (*guardduty.GetDetectorOutput, error)
	ListFindings(ctx context.Context, params *guardduty.ListFindingsInput, optFns ...func(*guardduty.Options)) (*guardduty.ListFindingsOutput, error)
	GetFindings(ctx context.Context, params *guardduty.GetFindingsInput, optFns ...func(*guardduty.Options)) (*guardduty.GetFindingsOutput, error)
}

func newGuardDutyClient(cfg aws.Config) GuardDutyAPI { return guardduty.NewFromConfig(cfg) }

// Translator converts GuardDuty threat findings into the common finding
// shape. Findings below the score threshold are dropped so the report only
// carries actionable threats.
type Translator struct {
	newGD func(aws.Config) GuardDutyAPI
	now   func() time.Time
}

func NewTranslator() *Translator {
	return &Translator{newGD: newGuardDutyClient, now: time.Now}
}

// Collect reports the region's detector status and translates its findings.
// A region without GuardDuty enabled yields one high severity security
// finding instead of an error.
func (t *Translator) Collect(ctx context.Context, cfg aws.Config, accountID, region string, thresholds models.Thresholds) ([]models.Finding, error) {
	client := t.newGD(cfg)

	detectors, err := client.ListDetectors(ctx, &guardduty.ListDetectorsInput{})
	if err != nil {
		return nil, fmt.Errorf("listing detectors: %w", err)
	}
	if len(detectors.DetectorIds) == 0 {
		return []models.Finding{{
			AccountID:      accountID,
			Service:        "guardduty",
			Check:          "guardduty_enabled",
			Region:         region,
			ResourceID:     "guardduty-" + region,
			ResourceName:   fmt.Sprintf("GuardDuty (%s)", region),
			Issue:          "GuardDuty is not enabled in this region",
			Type:           models.FindingTypeSecurity,
			Severity:       models.SeverityHigh,
			Recommendation: "Enable GuardDuty for managed threat detection. Cost: ~$4.66/month for most accounts",
			DetectedAt:     t.now().UTC(),
		}}, nil
	}

	var findings []models.Finding
	for _, detectorID := range detectors.DetectorIds {
		status, err := t.detectorStatus(ctx, client, detectorID, accountID, region)
		if err != nil {
			return nil, err
		}
		findings = append(findings, status)
	}
	detectorID := detectors.DetectorIds[0]

	ids, err := t.listFindingIDs(ctx, client, detectorID)
	if err != nil {
		return nil, err
	}

	for start := 0; start < len(ids); start += getFindingsBatchSize {
		end := start + getFindingsBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		out, err := client.GetFindings(ctx, &guardduty.GetFindingsInput{
			DetectorId: aws.String(detectorID),
			FindingIds: ids[start:end],
		})
		if err != nil {
			return nil, fmt.Errorf("fetching findings: %w", err)
		}
		for _, gd := range out.Findings {
			if f, ok := t.translate(gd, accountID, region, thresholds.SecurityScoreMin); ok {
				findings = append(findings, f)
			}
		}
	}
	return findings, nil
}

// detectorStatus inspects one detector. A detector that exists but is not
// actively monitoring (suspended or disabled) is reported like a missing one;
// a healthy detector yields an informational status finding.
func (t *Translator) detectorStatus(ctx context.Context, client GuardDutyAPI, detectorID, accountID, region string) (models.Finding, error) {
	out, err := client.GetDetector(ctx, &guardduty.GetDetectorInput{DetectorId: aws.String(detectorID)})
	if err != nil {
		return models.Finding{}, fmt.Errorf("describing detector %s: %w", detectorID, err)
	}

	if out.Status != gdtypes.DetectorStatusEnabled {
		return models.Finding{
			AccountID:      accountID,
			Service:        "guardduty",
			Check:          "guardduty_enabled",
			Region:         region,
			ResourceID:     detectorID,
			ResourceName:   fmt.Sprintf("GuardDuty (%s)", region),
			Issue:          fmt.Sprintf("GuardDuty detector is %s", out.Status),
			Type:           models.FindingTypeSecurity,
			Severity:       models.SeverityHigh,
			Recommendation: "Re-enable the GuardDuty detector so the region is actively monitored",
			DetectedAt:     t.now().UTC(),
		}, nil
	}

	return models.Finding{
		AccountID:    accountID,
		Service:      "guardduty",
		Check:        "guardduty_status",
		Region:       region,
		ResourceID:   detectorID,
		ResourceName: fmt.Sprintf("GuardDuty (%s)", region),
		Issue:        "GuardDuty is enabled and monitoring",
		Type:         models.FindingTypeInfo,
		Severity:     models.SeverityInfo,
		Details: map[string]any{
			"detector_id":                  detectorID,
			"status":                       string(out.Status),
			"finding_publishing_frequency": string(out.FindingPublishingFrequency),
			"created_at":                   aws.ToString(out.CreatedAt),
			"updated_at":                   aws.ToString(out.UpdatedAt),
		},
		DetectedAt: t.now().UTC(),
	}, nil
}

func (t *Translator) listFindingIDs(ctx context.Context, client GuardDutyAPI, detectorID string) ([]string, error) {
	var ids []string
	var token *string
	for {
		out, err := client.ListFindings(ctx, &guardduty.ListFindingsInput{
			DetectorId: aws.String(detectorID),
			NextToken:  token,
		})
		if err != nil {
			return nil, fmt.Errorf("listing findings: %w", err)
		}
		ids = append(ids, out.FindingIds...)
		if out.NextToken == nil || aws.ToString(out.NextToken) == "" {
			return ids, nil
		}
		token = out.NextToken
	}
}

// translate maps one GuardDuty finding to the common shape. Findings scoring
// below minScore are dropped; minScore itself passes.
func (t *Translator) translate(gd gdtypes.Finding, accountID, region string, minScore float64) (models.Finding, bool) {
	score := aws.ToFloat64(gd.Severity)
	if score < minScore {
		return models.Finding{}, false
	}

	severity := models.SeverityHigh
	if score >= criticalScore {
		severity = models.SeverityCritical
	}

	findingType := aws.ToString(gd.Type)
	return models.Finding{
		AccountID:      accountID,
		Service:        "guardduty",
		Check:          "guardduty_findings",
		Region:         region,
		ResourceID:     aws.ToString(gd.Id),
		ResourceName:   threatResourceName(gd),
		Issue:          aws.ToString(gd.Title),
		Type:           models.FindingTypeSecurity,
		Severity:       severity,
		Recommendation: actionFor(findingType),
		Details: map[string]any{
			"finding_type": findingType,
			"score":        score,
			"description":  aws.ToString(gd.Description),
		},
		DetectedAt: t.now().UTC(),
	}, true
}

func threatResourceName(gd gdtypes.Finding) string {
	if gd.Resource == nil {
		return ""
	}
	if gd.Resource.InstanceDetails != nil && gd.Resource.InstanceDetails.InstanceId != nil {
		return aws.ToString(gd.Resource.InstanceDetails.InstanceId)
	}
	if gd.Resource.AccessKeyDetails != nil && gd.Resource.AccessKeyDetails.UserName != nil {
		return aws.ToString(gd.Resource.AccessKeyDetails.UserName)
	}
	if gd.Resource.S3BucketDetails != nil && len(gd.Resource.S3BucketDetails) > 0 {
		return aws.ToString(gd.Resource.S3BucketDetails[0].Name)
	}
	return ""
}
