package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog"

	"github.com/kosty-cloud/kosty/internal/checks"
	"github.com/kosty-cloud/kosty/internal/models"
	"github.com/kosty-cloud/kosty/internal/monitors"
	"github.com/kosty-cloud/kosty/internal/pricing"
	"github.com/kosty-cloud/kosty/internal/security"
)

// AuditType selects which collector families a run includes.
type AuditType string

const (
	AuditTypeCost     AuditType = "cost"
	AuditTypeSecurity AuditType = "security"
	AuditTypeAll      AuditType = "all"
)

// Defaults applied when Options leaves the knobs zero.
const (
	defaultMaxWorkers   = 8
	defaultCheckTimeout = 2 * time.Minute
	defaultOrgRole      = "OrganizationAccountAccessRole"
)

// globalRegion is where account-global collectors (IAM, Cost Explorer,
// Budgets) are scheduled. They run once per account regardless of the region
// list.
const globalRegion = "us-east-1"

// Options configures a single audit run. It is the sole input to Engine.Run.
type Options struct {
	// Type selects cost checks, security collectors, or both.
	Type AuditType

	// Regions is the explicit region list to scan. Must be non-empty.
	Regions []string

	// Services restricts the cost checks to a subset of registry keys.
	// Empty means every registered check.
	Services []string

	// Organization, when true, expands the scan to every active member
	// account discovered through AWS Organizations.
	Organization bool

	// OrgRole is the role name assumed in member accounts. Defaults to
	// OrganizationAccountAccessRole.
	OrgRole string

	// ExternalID is passed on every cross-account role assumption.
	ExternalID string

	// Thresholds are the active alert limits for this run.
	Thresholds models.Thresholds

	// MaxWorkers bounds concurrent target/service tasks.
	MaxWorkers int

	// CheckTimeout bounds each individual check invocation.
	CheckTimeout time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.Type == "" {
		out.Type = AuditTypeAll
	}
	if out.OrgRole == "" {
		out.OrgRole = defaultOrgRole
	}
	if out.MaxWorkers <= 0 {
		out.MaxWorkers = defaultMaxWorkers
	}
	if out.CheckTimeout <= 0 {
		out.CheckTimeout = defaultCheckTimeout
	}
	if out.Thresholds == (models.Thresholds{}) {
		out.Thresholds = models.DefaultThresholds()
	}
	return out
}

// sessionSource resolves credentials for a scan target. Satisfied by
// awsauth.Broker; tests substitute fakes.
type sessionSource interface {
	SessionFor(ctx context.Context, target models.ScanTarget) (aws.Config, error)
	CallerAccountID(ctx context.Context) (string, error)
}

// accountCollector gathers account-global findings (anomalies, budgets).
type accountCollector interface {
	Collect(ctx context.Context, cfg aws.Config, accountID string, thresholds models.Thresholds) ([]models.Finding, error)
}

// threatCollector gathers per-region security findings.
type threatCollector interface {
	Collect(ctx context.Context, cfg aws.Config, accountID, region string, thresholds models.Thresholds) ([]models.Finding, error)
}

// costReporter breaks spend down by AWS service.
type costReporter interface {
	Report(ctx context.Context, cfg aws.Config, accountID string, period monitors.CostPeriod) ([]models.Finding, error)
}

// Engine orchestrates one audit: expand targets, fan out bounded workers,
// run checks and monitors in isolation, quantify costs, assemble the result.
// It holds no per-run state; Run may be called concurrently.
type Engine struct {
	sessions   sessionSource
	registry   *checks.Registry
	quantifier *pricing.Quantifier
	anomaly    accountCollector
	budget     accountCollector
	threats    threatCollector
	costs      costReporter
	orgs       orgLister
	now        func() time.Time
}

// New wires an Engine to production collectors.
func New(sessions sessionSource, registry *checks.Registry, quantifier *pricing.Quantifier) *Engine {
	return &Engine{
		sessions:   sessions,
		registry:   registry,
		quantifier: quantifier,
		anomaly:    monitors.NewAnomalyMonitor(),
		budget:     monitors.NewBudgetMonitor(),
		threats:    security.NewTranslator(),
		costs:      monitors.NewCostReporter(),
		orgs:       &organizationsLister{},
		now:        time.Now,
	}
}

// Run executes one full audit and returns the assembled result. Individual
// target or check failures never abort the run; they surface as error
// findings and the Partial flag.
func (e *Engine) Run(ctx context.Context, opts Options) (*models.AuditResult, error) {
	opts = opts.withDefaults()
	if len(opts.Regions) == 0 {
		return nil, fmt.Errorf("no regions to scan")
	}

	log := zerolog.Ctx(ctx)
	started := e.now()

	adminID, err := e.sessions.CallerAccountID(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving caller account: %w", err)
	}

	accounts := []orgAccount{{ID: adminID}}
	if opts.Organization {
		members, err := e.listMemberAccounts(ctx, adminID, opts)
		if err != nil {
			return nil, fmt.Errorf("listing organization accounts: %w", err)
		}
		accounts = members
	}

	tasks := e.expand(accounts, adminID, opts)
	log.Info().
		Int("accounts", len(accounts)).
		Int("regions", len(opts.Regions)).
		Int("tasks", len(tasks)).
		Str("type", string(opts.Type)).
		Msg("audit fan-out expanded")

	findings, failed := e.fanOut(ctx, tasks, opts)

	result := assemble(findings, started, opts.Organization, adminID, failed)
	log.Info().
		Int("findings", len(findings)).
		Int("issues", result.Summary.TotalIssues).
		Float64("monthly_savings", result.Summary.TotalMonthlySavings).
		Bool("partial", result.Partial).
		Msg("audit complete")
	return result, nil
}

// CostReport breaks the caller account's spend down by AWS service over the
// requested period. It uses the same credential broker as Run so cross-account
// external IDs apply.
func (e *Engine) CostReport(ctx context.Context, opts Options, period monitors.CostPeriod) ([]models.Finding, error) {
	adminID, err := e.sessions.CallerAccountID(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving caller account: %w", err)
	}
	cfg, err := e.sessions.SessionFor(ctx, models.ScanTarget{
		AccountID:  adminID,
		Region:     globalRegion,
		ExternalID: opts.ExternalID,
	})
	if err != nil {
		return nil, fmt.Errorf("resolving session: %w", err)
	}
	return e.costs.Report(ctx, cfg, adminID, period)
}

// serviceFilter returns the registry keys this run covers, preserving
// registry order.
func (e *Engine) serviceFilter(opts Options) []string {
	all := e.registry.Services()
	if len(opts.Services) == 0 {
		return all
	}
	wanted := make(map[string]bool, len(opts.Services))
	for _, s := range opts.Services {
		wanted[s] = true
	}
	var out []string
	for _, s := range all {
		if wanted[s] {
			out = append(out, s)
		}
	}
	return out
}

// sortFindings orders findings for stable output: severity descending, then
// monthly cost descending, then resource ID.
func sortFindings(findings []models.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		ri, rj := models.SeverityRank(findings[i].Severity), models.SeverityRank(findings[j].Severity)
		if ri != rj {
			return ri > rj
		}
		if findings[i].MonthlyCost != findings[j].MonthlyCost {
			return findings[i].MonthlyCost > findings[j].MonthlyCost
		}
		return findings[i].ResourceID < findings[j].ResourceID
	})
}
