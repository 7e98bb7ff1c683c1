package awsauth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/kosty-cloud/kosty/internal/models"
)

// STSAPI is the subset of STS operations used by the broker. Narrow interface
// so tests can substitute a mock without importing the SDK client.
type STSAPI interface {
	GetCallerIdentity(
		ctx context.Context,
		params *sts.GetCallerIdentityInput,
		optFns ...func(*sts.Options),
	) (*sts.GetCallerIdentityOutput, error)
}

// assumeRoleFunc builds the temporary-credentials provider for a role target.
// Swapped in tests to avoid real STS calls.
type assumeRoleFunc func(cfg aws.Config, target models.ScanTarget, mfaSerial string) aws.CredentialsProvider

// Broker obtains a usable AWS session per scan target. Targets without a role
// ARN get the ambient (default-chain or profile) credentials; targets with a
// role ARN get temporary credentials via STS AssumeRole, using the external
// ID when present and an MFA device serial when configured.
//
// Sessions are cached per target for the lifetime of the broker, which is
// constructed once per audit request. SessionFor is safe for concurrent use
// by the fan-out workers.
type Broker struct {
	base      aws.Config
	mfaSerial string
	retry     RetryPolicy
	assume    assumeRoleFunc
	stsNew    func(aws.Config) STSAPI

	mu    sync.Mutex
	cache map[string]aws.Config
}

// BrokerOption customises broker construction.
type BrokerOption func(*Broker)

// WithMFASerial sets the MFA device serial used during role assumption.
func WithMFASerial(serial string) BrokerOption {
	return func(b *Broker) { b.mfaSerial = serial }
}

// WithRetryPolicy overrides the throttling retry policy.
func WithRetryPolicy(p RetryPolicy) BrokerOption {
	return func(b *Broker) { b.retry = p }
}

// NewBroker loads the ambient AWS configuration for the named profile (empty
// string means the default credential chain) and returns a ready broker.
func NewBroker(ctx context.Context, profile string, opts ...BrokerOption) (*Broker, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config for profile %q: %w", profileDisplayName(profile), err)
	}
	// All SDK clients need some region to be constructible; individual scan
	// targets override it anyway.
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	return NewBrokerFromConfig(cfg, opts...), nil
}

// NewBrokerFromConfig wraps an already-loaded aws.Config. Used by tests and
// by callers that manage configuration loading themselves.
func NewBrokerFromConfig(cfg aws.Config, opts ...BrokerOption) *Broker {
	b := &Broker{
		base:   cfg,
		retry:  DefaultRetryPolicy(),
		assume: stsAssumeRole,
		stsNew: func(c aws.Config) STSAPI { return sts.NewFromConfig(c) },
		cache:  make(map[string]aws.Config),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SessionFor returns a region-scoped aws.Config for the target, assuming the
// target's role when one is set. Permanent failures (role assumption denied)
// return an *AuthenticationError and are never retried; throttling is retried
// under the broker's RetryPolicy and surfaced only once exhausted.
func (b *Broker) SessionFor(ctx context.Context, target models.ScanTarget) (aws.Config, error) {
	key := target.Key()

	b.mu.Lock()
	if cached, ok := b.cache[key]; ok {
		b.mu.Unlock()
		return cached, nil
	}
	b.mu.Unlock()

	cfg := b.base.Copy()
	cfg.Region = target.Region

	if target.RoleARN != "" {
		provider := aws.NewCredentialsCache(b.assume(cfg, target, b.mfaSerial))

		// Resolve now rather than lazily so a denied role surfaces here as
		// one error finding for this target instead of failing inside every
		// check that later touches the session.
		err := b.retry.Do(ctx, func() error {
			_, retrieveErr := provider.Retrieve(ctx)
			return retrieveErr
		})
		if err != nil {
			if IsThrottling(err) {
				return aws.Config{}, fmt.Errorf("assume role %s: retries exhausted: %w", target.RoleARN, err)
			}
			return aws.Config{}, &AuthenticationError{
				Target:  key,
				Message: fmt.Sprintf("assume role %s", target.RoleARN),
				Cause:   err,
			}
		}
		cfg.Credentials = provider
	}

	b.mu.Lock()
	b.cache[key] = cfg
	b.mu.Unlock()
	return cfg, nil
}

// CallerAccountID resolves the account ID behind the broker's ambient
// credentials via STS GetCallerIdentity.
func (b *Broker) CallerAccountID(ctx context.Context) (string, error) {
	client := b.stsNew(b.base)

	var out *sts.GetCallerIdentityOutput
	err := b.retry.Do(ctx, func() error {
		var callErr error
		out, callErr = client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("STS GetCallerIdentity: %w", err)
	}
	if out.Account == nil {
		return "", fmt.Errorf("STS GetCallerIdentity returned nil account")
	}
	return aws.ToString(out.Account), nil
}

// stsAssumeRole is the production assumeRoleFunc backed by stscreds.
func stsAssumeRole(cfg aws.Config, target models.ScanTarget, mfaSerial string) aws.CredentialsProvider {
	client := sts.NewFromConfig(cfg)
	return stscreds.NewAssumeRoleProvider(client, target.RoleARN, func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = "kosty-audit"
		o.Duration = time.Hour
		if target.ExternalID != "" {
			o.ExternalID = aws.String(target.ExternalID)
		}
		if mfaSerial != "" {
			o.SerialNumber = aws.String(mfaSerial)
			o.TokenProvider = stscreds.StdinTokenProvider
		}
	})
}
