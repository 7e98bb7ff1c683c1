package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosty-cloud/kosty/internal/checks"
	"github.com/kosty-cloud/kosty/internal/engine"
	"github.com/kosty-cloud/kosty/internal/feed"
	"github.com/kosty-cloud/kosty/internal/models"
	"github.com/kosty-cloud/kosty/internal/monitors"
)

type fakeAuditor struct {
	lastOpts   engine.Options
	lastPeriod monitors.CostPeriod
	result     *models.AuditResult
	costs      []models.Finding
	err        error
}

func (f *fakeAuditor) Run(_ context.Context, opts engine.Options) (*models.AuditResult, error) {
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeAuditor) CostReport(_ context.Context, opts engine.Options, period monitors.CostPeriod) ([]models.Finding, error) {
	f.lastOpts = opts
	f.lastPeriod = period
	if f.err != nil {
		return nil, f.err
	}
	return f.costs, nil
}

func auditResultFixture() *models.AuditResult {
	return &models.AuditResult{
		ScanTimestamp: time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC),
		Results: map[string]models.AccountResults{
			"111122223333": {
				"ec2": []models.Finding{{
					AccountID:   "111122223333",
					Service:     "ec2",
					Check:       "idle_instances",
					Region:      "us-east-1",
					ResourceID:  "i-1",
					Issue:       "idle",
					Type:        models.FindingTypeCost,
					Severity:    models.SeverityMedium,
					MonthlyCost: 93.44,
				}},
			},
		},
		Summary: models.AuditSummary{TotalIssues: 1, TotalMonthlySavings: 93.44, TotalAnnualSavings: 1121.28},
	}
}

func testAPI(a *fakeAuditor, debug bool) *WebAPI {
	return NewWebAPI(zerolog.Nop(), Config{
		Addr:  ":0",
		Debug: debug,
		AuditDefaults: engine.Options{
			Type:    engine.AuditTypeAll,
			Regions: []string{"us-east-1"},
		},
	}, a, checks.DefaultRegistry(), feed.NewThresholdStore(models.DefaultThresholds()))
}

func doRequest(t *testing.T, api *WebAPI, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := doRequest(t, testAPI(&fakeAuditor{}, false), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServicesCatalog(t *testing.T) {
	rec := doRequest(t, testAPI(&fakeAuditor{}, false), http.MethodGet, "/api/services", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Services []struct {
			Service string `json:"service"`
			Name    string `json:"name"`
		} `json:"services"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Services)
	assert.Equal(t, "ec2", body.Services[0].Service)
}

func TestAuditMergesRequestOntoDefaults(t *testing.T) {
	a := &fakeAuditor{result: auditResultFixture()}
	api := testAPI(a, false)

	rec := doRequest(t, api, http.MethodPost, "/api/audit", map[string]any{
		"type":     "cost",
		"regions":  []string{"eu-west-1"},
		"services": []string{"ec2"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, engine.AuditTypeCost, a.lastOpts.Type)
	assert.Equal(t, []string{"eu-west-1"}, a.lastOpts.Regions)
	assert.Equal(t, []string{"ec2"}, a.lastOpts.Services)

	var result models.AuditResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Summary.TotalIssues)
}

func TestAuditRejectsUnknownType(t *testing.T) {
	rec := doRequest(t, testAPI(&fakeAuditor{}, false), http.MethodPost, "/api/audit", map[string]any{
		"type": "compliance",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditErrorDetailGatedByDebug(t *testing.T) {
	cause := errors.New("role assumption denied for 444455556666")

	rec := doRequest(t, testAPI(&fakeAuditor{err: cause}, false), http.MethodPost, "/api/audit", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "444455556666", "production mode must not leak detail")

	rec = doRequest(t, testAPI(&fakeAuditor{err: cause}, true), http.MethodPost, "/api/audit", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "444455556666")
}

func TestCostsDefaultsToMonthly(t *testing.T) {
	a := &fakeAuditor{costs: []models.Finding{{
		AccountID:   "111122223333",
		Service:     "costexplorer",
		Check:       "cost_by_service",
		Region:      "global",
		ResourceID:  "Amazon Elastic Compute Cloud - Compute",
		Type:        models.FindingTypeInfo,
		Severity:    models.SeverityInfo,
		MonthlyCost: 465.00,
	}}}

	rec := doRequest(t, testAPI(a, false), http.MethodPost, "/api/costs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, monitors.PeriodMonthly, a.lastPeriod)

	var body struct {
		Period        string           `json:"period"`
		Costs         []models.Finding `json:"costs"`
		TotalServices int              `json:"total_services"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "MONTHLY", body.Period)
	assert.Equal(t, 1, body.TotalServices)
	require.Len(t, body.Costs, 1)
	assert.Equal(t, "cost_by_service", body.Costs[0].Check)
}

func TestCostsForwardsPeriodAndExternalID(t *testing.T) {
	a := &fakeAuditor{}
	rec := doRequest(t, testAPI(a, false), http.MethodPost, "/api/costs", map[string]any{
		"period":      "DAILY",
		"external_id": "ext-42",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, monitors.PeriodDaily, a.lastPeriod)
	assert.Equal(t, "ext-42", a.lastOpts.ExternalID)
}

func TestCostsRejectsUnknownPeriod(t *testing.T) {
	rec := doRequest(t, testAPI(&fakeAuditor{}, false), http.MethodPost, "/api/costs", map[string]any{
		"period": "QUARTERLY",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCostsUpstreamFailure(t *testing.T) {
	a := &fakeAuditor{err: errors.New("cost explorer unreachable")}
	rec := doRequest(t, testAPI(a, false), http.MethodPost, "/api/costs", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestFeedClassifiesAuditFindings(t *testing.T) {
	a := &fakeAuditor{result: auditResultFixture()}
	rec := doRequest(t, testAPI(a, false), http.MethodPost, "/api/alerts/feed", map[string]any{
		"feed_type": "daily",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var built models.AlertFeed
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &built))
	assert.Equal(t, models.FeedDaily, built.FeedType)
	require.Len(t, built.Alerts, 1)
	assert.Equal(t, models.AlertIdleResource, built.Alerts[0].Type)
	assert.NotEmpty(t, built.FeedDate)
}

func TestFeedBodyScopesAudit(t *testing.T) {
	a := &fakeAuditor{result: auditResultFixture()}
	rec := doRequest(t, testAPI(a, false), http.MethodPost, "/api/alerts/feed", map[string]any{
		"feed_type": "realtime",
		"regions":   []string{"eu-west-1"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"eu-west-1"}, a.lastOpts.Regions)

	var built models.AlertFeed
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &built))
	assert.Equal(t, models.FeedRealtime, built.FeedType)
	assert.Empty(t, built.FeedDate)
}

func TestFeedFiltersByAlertType(t *testing.T) {
	a := &fakeAuditor{result: auditResultFixture()}
	rec := doRequest(t, testAPI(a, false), http.MethodPost, "/api/alerts/feed", map[string]any{
		"alert_types": []string{"security_high"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var built models.AlertFeed
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &built))
	assert.Empty(t, built.Alerts, "idle alert filtered out by type")
	assert.Equal(t, 0, built.Summary.TotalAlerts)
}

func TestFeedRejectsUnknownSeverityMin(t *testing.T) {
	rec := doRequest(t, testAPI(&fakeAuditor{}, false), http.MethodPost, "/api/alerts/feed", map[string]any{
		"severity_min": "catastrophic",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeedRejectsUnknownType(t *testing.T) {
	rec := doRequest(t, testAPI(&fakeAuditor{}, false), http.MethodPost, "/api/alerts/feed", map[string]any{
		"feed_type": "hourly",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummaryEndpoint(t *testing.T) {
	a := &fakeAuditor{result: auditResultFixture()}
	rec := doRequest(t, testAPI(a, false), http.MethodPost, "/api/alerts/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary models.FeedSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.TotalAlerts)
	assert.Equal(t, 93.44, summary.TotalMonthlyCostImpact)
}

func TestConfigureUpdatesThresholdsForSubsequentAudits(t *testing.T) {
	a := &fakeAuditor{result: auditResultFixture()}
	api := testAPI(a, false)

	rec := doRequest(t, api, http.MethodPost, "/api/alerts/configure", map[string]any{
		"cost_spike_threshold": 250,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	doRequest(t, api, http.MethodPost, "/api/audit", nil)
	assert.Equal(t, 250.0, a.lastOpts.Thresholds.CostSpikeUSD)
	assert.Equal(t, 80.0, a.lastOpts.Thresholds.BudgetPct)
}

func TestConfigureRejectsNegativeValues(t *testing.T) {
	rec := doRequest(t, testAPI(&fakeAuditor{}, false), http.MethodPost, "/api/alerts/configure", map[string]any{
		"anomaly_min_impact": -1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
