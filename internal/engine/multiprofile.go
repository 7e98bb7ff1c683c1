package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kosty-cloud/kosty/internal/awsauth"
	"github.com/kosty-cloud/kosty/internal/checks"
	"github.com/kosty-cloud/kosty/internal/models"
	"github.com/kosty-cloud/kosty/internal/pricing"
)

// maxConcurrentProfiles caps parallel profile audits so outbound AWS API
// concurrency stays predictable when many profiles are configured.
const maxConcurrentProfiles = 3

// profileAuditor runs one full audit under a named configuration profile and
// returns the result plus the resolved account ID.
type profileAuditor func(ctx context.Context, profile string, opts Options) (*models.AuditResult, string, error)

// ProfileRunner audits every configured AWS profile, continuing past
// individual profile failures. A profile that cannot authenticate appears in
// the output with its error; it never aborts the siblings.
type ProfileRunner struct {
	audit profileAuditor
	now   func() time.Time
}

// NewProfileRunner builds a runner whose per-profile audits use a fresh
// credential broker and the default collectors.
func NewProfileRunner() *ProfileRunner {
	return &ProfileRunner{audit: auditProfile, now: time.Now}
}

func auditProfile(ctx context.Context, profile string, opts Options) (*models.AuditResult, string, error) {
	broker, err := awsauth.NewBroker(ctx, profile)
	if err != nil {
		return nil, "", fmt.Errorf("loading profile %q: %w", profile, err)
	}
	accountID, err := broker.CallerAccountID(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("resolving account for profile %q: %w", profile, err)
	}
	eng := New(broker, checks.DefaultRegistry(), pricing.NewQuantifier(pricing.NewStaticSource()))
	result, err := eng.Run(ctx, opts)
	if err != nil {
		return nil, accountID, err
	}
	return result, accountID, nil
}

// RunAll audits the named profiles, at most maxConcurrentProfiles at a time,
// and merges the per-profile outcomes. The combined summary covers only the
// profiles that succeeded.
func (r *ProfileRunner) RunAll(ctx context.Context, profiles []string, opts Options) (*models.MultiProfileResult, error) {
	if len(profiles) == 0 {
		discovered, err := awsauth.DiscoverProfiles()
		if err != nil {
			return nil, fmt.Errorf("discovering profiles: %w", err)
		}
		if len(discovered) == 0 {
			return nil, fmt.Errorf("no AWS profiles found")
		}
		profiles = discovered
	}

	log := zerolog.Ctx(ctx)
	outcomes := make([]models.ProfileResult, len(profiles))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProfiles)
	for i, profile := range profiles {
		i, profile := i, profile
		g.Go(func() error {
			result, accountID, err := r.audit(gctx, profile, opts)
			outcome := models.ProfileResult{Profile: profile, AccountID: accountID}
			if err != nil {
				log.Warn().Err(err).Str("profile", profile).Msg("profile audit failed; continuing")
				outcome.Error = err.Error()
			} else {
				outcome.Result = result
			}
			mu.Lock()
			outcomes[i] = outcome
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	combined := models.AuditSummary{}
	for _, outcome := range outcomes {
		if outcome.Result == nil {
			continue
		}
		combined.TotalIssues += outcome.Result.Summary.TotalIssues
		combined.TotalMonthlySavings += outcome.Result.Summary.TotalMonthlySavings
	}
	combined.TotalMonthlySavings = round2(combined.TotalMonthlySavings)
	combined.TotalAnnualSavings = round2(combined.TotalMonthlySavings * 12)

	return &models.MultiProfileResult{
		GeneratedAt: r.now().UTC(),
		Profiles:    outcomes,
		Summary:     combined,
	}, nil
}
