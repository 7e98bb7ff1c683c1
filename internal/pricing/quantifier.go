package pricing

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kosty-cloud/kosty/internal/awsauth"
	"github.com/kosty-cloud/kosty/internal/checks"
	"github.com/kosty-cloud/kosty/internal/models"
)

// mockSuffix marks findings whose cost came from synthetic data.
const mockSuffix = " (MOCK DATA)"

// Quantifier attaches monthly and annual cost estimates to findings. It asks
// the live source first; when the live source reports itself unavailable the
// synthetic per-service figure is used instead and the finding is labeled as
// mock data. Other live-source errors leave the finding unquantified.
type Quantifier struct {
	live      Source
	mock      *MockSource
	forceMock bool
}

type QuantifierOption func(*Quantifier)

// WithForcedMock makes every quote come from the synthetic table, bypassing
// the live source entirely.
func WithForcedMock() QuantifierOption {
	return func(q *Quantifier) { q.forceMock = true }
}

func NewQuantifier(live Source, opts ...QuantifierOption) *Quantifier {
	q := &Quantifier{live: live, mock: NewMockSource()}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Attach returns the finding with cost fields populated. Findings that
// already carry a monthly cost only get the annual figure recomputed.
func (q *Quantifier) Attach(ctx context.Context, f models.Finding) models.Finding {
	if f.MonthlyCost > 0 {
		f.AnnualCost = round2(f.MonthlyCost * 12)
		return f
	}
	if f.Type != models.FindingTypeCost {
		return f
	}

	if q.forceMock {
		return q.applyMock(f)
	}

	resourceType, _ := f.Details[checks.DetailResourceType].(string)
	if resourceType == "" {
		return f
	}
	size, _ := f.Details[checks.DetailResourceSize].(string)

	cost, err := q.live.Quote(ctx, resourceType, f.Region, size)
	switch {
	case err == nil:
		f.MonthlyCost = round2(cost)
		f.AnnualCost = round2(cost * 12)
		return f
	case errors.Is(err, ErrSourceUnavailable) || awsauth.IsOptInRequired(err):
		return q.applyMock(f)
	default:
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("service", f.Service).
			Str("resource", f.ResourceID).
			Msg("cost quote failed; leaving finding unquantified")
		return f
	}
}

// AttachAll quantifies a slice of findings in place order.
func (q *Quantifier) AttachAll(ctx context.Context, findings []models.Finding) []models.Finding {
	out := make([]models.Finding, 0, len(findings))
	for _, f := range findings {
		out = append(out, q.Attach(ctx, f))
	}
	return out
}

func (q *Quantifier) applyMock(f models.Finding) models.Finding {
	cost := q.mock.CostFor(f.Service)
	f.MonthlyCost = cost
	f.AnnualCost = round2(cost * 12)
	f.IsMock = true
	if !strings.HasSuffix(f.Issue, mockSuffix) {
		f.Issue += mockSuffix
	}
	return f
}
