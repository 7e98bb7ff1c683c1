package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kosty-cloud/kosty/internal/awsauth"
	"github.com/kosty-cloud/kosty/internal/checks"
	"github.com/kosty-cloud/kosty/internal/models"
)

// taskKind identifies which collector a task invokes.
type taskKind int

const (
	taskCheck taskKind = iota
	taskThreats
	taskAnomaly
	taskBudget
)

// task is one schedulable unit: a single collector against a single target.
// It is the isolation boundary for failures.
type task struct {
	kind    taskKind
	target  models.ScanTarget
	service string // registry key, set for taskCheck only
}

// expand produces the full task list: every cost check for every account and
// region, the account-global collectors once per account, and the threat
// collector per account and region. Account-global services (IAM, Cost
// Explorer, Budgets) are pinned to one region so they run exactly once.
func (e *Engine) expand(accounts []orgAccount, adminID string, opts Options) []task {
	includeCost := opts.Type == AuditTypeCost || opts.Type == AuditTypeAll
	includeSecurity := opts.Type == AuditTypeSecurity || opts.Type == AuditTypeAll
	services := e.serviceFilter(opts)

	var tasks []task
	for _, acct := range accounts {
		base := models.ScanTarget{
			AccountID:  acct.ID,
			RoleARN:    acct.RoleARN,
			ExternalID: opts.ExternalID,
		}

		if includeCost {
			for _, service := range services {
				if service == "iam" {
					target := base
					target.Region = globalRegion
					tasks = append(tasks, task{kind: taskCheck, target: target, service: service})
					continue
				}
				for _, region := range opts.Regions {
					target := base
					target.Region = region
					tasks = append(tasks, task{kind: taskCheck, target: target, service: service})
				}
			}
			global := base
			global.Region = globalRegion
			tasks = append(tasks, task{kind: taskAnomaly, target: global})
			tasks = append(tasks, task{kind: taskBudget, target: global})
		}

		if includeSecurity {
			for _, region := range opts.Regions {
				target := base
				target.Region = region
				tasks = append(tasks, task{kind: taskThreats, target: target})
			}
		}
	}
	return tasks
}

// fanOut runs the task list on a bounded worker pool. Task failures never
// cancel siblings; each failure becomes an error finding and, for credential
// failures, an entry in the failed-target set.
func (e *Engine) fanOut(ctx context.Context, tasks []task, opts Options) ([]models.Finding, []string) {
	var (
		mu       sync.Mutex
		findings []models.Finding
		failed   = make(map[string]struct{})
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.MaxWorkers)
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			out, failedTarget := e.runTask(gctx, t, opts)
			mu.Lock()
			findings = append(findings, out...)
			if failedTarget {
				failed[t.target.AccountID+"/"+t.target.Region] = struct{}{}
			}
			mu.Unlock()
			return nil
		})
	}
	// Workers always return nil; Wait only joins them.
	_ = g.Wait()

	keys := make([]string, 0, len(failed))
	for k := range failed {
		keys = append(keys, k)
	}
	return findings, keys
}

// runTask resolves credentials and invokes one collector under the check
// timeout. The boolean reports a target-level credential failure.
func (e *Engine) runTask(ctx context.Context, t task, opts Options) ([]models.Finding, bool) {
	log := zerolog.Ctx(ctx).With().
		Str("account", t.target.AccountID).
		Str("region", t.target.Region).
		Logger()

	cfg, err := e.sessions.SessionFor(ctx, t.target)
	if err != nil {
		if awsauth.IsAuthenticationError(err) {
			log.Warn().Err(err).Msg("target credentials unavailable; skipping target task")
		} else {
			log.Warn().Err(err).Msg("session setup failed")
		}
		return []models.Finding{e.errorFinding(t, fmt.Sprintf("could not access target: %v", err))}, true
	}

	runCtx, cancel := context.WithTimeout(ctx, opts.CheckTimeout)
	defer cancel()

	var out []models.Finding
	switch t.kind {
	case taskCheck:
		check, ok := e.registry.Get(t.service)
		if !ok {
			return nil, false
		}
		out, err = check.Inspect(runCtx, cfg, checks.Options{
			AccountID: t.target.AccountID,
			Region:    t.target.Region,
			IdleDays:  opts.Thresholds.IdleDays,
		})
		if err == nil {
			out = e.quantifier.AttachAll(runCtx, out)
		}
	case taskThreats:
		out, err = e.threats.Collect(runCtx, cfg, t.target.AccountID, t.target.Region, opts.Thresholds)
	case taskAnomaly:
		out, err = e.anomaly.Collect(runCtx, cfg, t.target.AccountID, opts.Thresholds)
	case taskBudget:
		out, err = e.budget.Collect(runCtx, cfg, t.target.AccountID, opts.Thresholds)
	}
	if err != nil {
		log.Warn().Err(err).Str("service", taskService(t)).Msg("collector failed; continuing with siblings")
		return []models.Finding{e.errorFinding(t, fmt.Sprintf("check failed: %v", err))}, false
	}

	now := e.now().UTC()
	for i := range out {
		if out[i].DetectedAt.IsZero() {
			out[i].DetectedAt = now
		}
	}
	return out, false
}

// errorFinding converts a task failure into data so the scan result records
// what could not be inspected.
func (e *Engine) errorFinding(t task, issue string) models.Finding {
	return models.Finding{
		AccountID:  t.target.AccountID,
		Service:    taskService(t),
		Check:      "scan_error",
		Region:     t.target.Region,
		Issue:      issue,
		Type:       models.FindingTypeError,
		Severity:   models.SeverityMedium,
		DetectedAt: e.now().UTC(),
	}
}

func taskService(t task) string {
	switch t.kind {
	case taskThreats:
		return "guardduty"
	case taskAnomaly:
		return "costexplorer"
	case taskBudget:
		return "budgets"
	default:
		return t.service
	}
}
