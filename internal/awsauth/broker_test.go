package awsauth

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/kosty-cloud/kosty/internal/models"
)

// staticProvider returns fixed credentials or a fixed error.
func staticProvider(err error) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		if err != nil {
			return aws.Credentials{}, err
		}
		return aws.Credentials{AccessKeyID: "AKIATEST", SecretAccessKey: "secret"}, nil
	})
}

func testBroker(assumeErr error) *Broker {
	b := NewBrokerFromConfig(aws.Config{Region: "us-east-1"},
		WithRetryPolicy(RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}))
	b.assume = func(cfg aws.Config, target models.ScanTarget, mfaSerial string) aws.CredentialsProvider {
		return staticProvider(assumeErr)
	}
	return b
}

func TestSessionFor_AmbientCredentialsWithoutRole(t *testing.T) {
	b := testBroker(nil)
	target := models.ScanTarget{AccountID: "111122223333", Region: "eu-west-1"}

	cfg, err := b.SessionFor(context.Background(), target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Region != "eu-west-1" {
		t.Errorf("region = %q; want eu-west-1", cfg.Region)
	}
}

func TestSessionFor_AssumesRoleAndCaches(t *testing.T) {
	assumed := 0
	b := NewBrokerFromConfig(aws.Config{Region: "us-east-1"})
	b.assume = func(cfg aws.Config, target models.ScanTarget, mfaSerial string) aws.CredentialsProvider {
		assumed++
		if target.ExternalID != "ext-123" {
			t.Errorf("external ID = %q; want ext-123", target.ExternalID)
		}
		return staticProvider(nil)
	}

	target := models.ScanTarget{
		AccountID:  "444455556666",
		Region:     "us-west-2",
		RoleARN:    "arn:aws:iam::444455556666:role/AuditRole",
		ExternalID: "ext-123",
	}

	ctx := context.Background()
	first, err := b.SessionFor(ctx, target)
	if err != nil {
		t.Fatalf("first SessionFor: %v", err)
	}
	if first.Credentials == nil {
		t.Fatal("role target must carry assumed credentials")
	}

	if _, err := b.SessionFor(ctx, target); err != nil {
		t.Fatalf("second SessionFor: %v", err)
	}
	if assumed != 1 {
		t.Errorf("assume calls = %d; want 1 (second call must hit the cache)", assumed)
	}
}

func TestSessionFor_DeniedRoleIsAuthenticationError(t *testing.T) {
	b := testBroker(apiErr("AccessDenied"))
	target := models.ScanTarget{
		AccountID: "444455556666",
		Region:    "us-east-1",
		RoleARN:   "arn:aws:iam::444455556666:role/AuditRole",
	}

	_, err := b.SessionFor(context.Background(), target)
	if err == nil {
		t.Fatal("expected error for denied role")
	}
	if !IsAuthenticationError(err) {
		t.Errorf("err = %v; want *AuthenticationError", err)
	}

	// A denied target must not be cached: the failure belongs to this attempt.
	if len(b.cache) != 0 {
		t.Errorf("cache size = %d; want 0", len(b.cache))
	}
}

func TestSessionFor_ThrottledRoleNotAuthenticationError(t *testing.T) {
	b := testBroker(apiErr("Throttling"))
	target := models.ScanTarget{
		AccountID: "444455556666",
		Region:    "us-east-1",
		RoleARN:   "arn:aws:iam::444455556666:role/AuditRole",
	}

	_, err := b.SessionFor(context.Background(), target)
	if err == nil {
		t.Fatal("expected error after retry exhaustion")
	}
	if IsAuthenticationError(err) {
		t.Error("throttling exhaustion must not be classified as an authentication failure")
	}
	if !IsThrottling(err) {
		t.Errorf("err = %v; want throttling error preserved in chain", err)
	}
}

type fakeSTS struct {
	account string
	err     error
	calls   int
}

func (f *fakeSTS) GetCallerIdentity(
	ctx context.Context,
	params *sts.GetCallerIdentityInput,
	optFns ...func(*sts.Options),
) (*sts.GetCallerIdentityOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &sts.GetCallerIdentityOutput{Account: aws.String(f.account)}, nil
}

func TestCallerAccountID(t *testing.T) {
	b := testBroker(nil)
	stub := &fakeSTS{account: "111122223333"}
	b.stsNew = func(aws.Config) STSAPI { return stub }

	got, err := b.CallerAccountID(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "111122223333" {
		t.Errorf("account = %q; want 111122223333", got)
	}
}

func TestCallerAccountID_RetriesThrottling(t *testing.T) {
	b := testBroker(nil)
	stub := &fakeSTS{err: apiErr("Throttling")}
	b.stsNew = func(aws.Config) STSAPI { return stub }

	if _, err := b.CallerAccountID(context.Background()); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if stub.calls != 2 {
		t.Errorf("STS calls = %d; want 2 (one retry)", stub.calls)
	}
}
