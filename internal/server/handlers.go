package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/kosty-cloud/kosty/internal/engine"
	"github.com/kosty-cloud/kosty/internal/feed"
	"github.com/kosty-cloud/kosty/internal/models"
	"github.com/kosty-cloud/kosty/internal/monitors"
	"github.com/kosty-cloud/kosty/internal/version"
)

// auditRequest narrows one HTTP-triggered audit. Absent fields inherit the
// server's audit defaults.
type auditRequest struct {
	Type         string   `json:"type,omitempty"`
	Regions      []string `json:"regions,omitempty"`
	Services     []string `json:"services,omitempty"`
	Organization *bool    `json:"organization,omitempty"`
}

func (w *WebAPI) handleHealth(rw http.ResponseWriter, req *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (w *WebAPI) handleServices(rw http.ResponseWriter, req *http.Request) {
	type serviceInfo struct {
		Service string `json:"service"`
		Name    string `json:"name"`
	}
	var services []serviceInfo
	for _, c := range w.registry.All() {
		services = append(services, serviceInfo{Service: c.Service(), Name: c.Name()})
	}
	writeJSON(rw, http.StatusOK, map[string]any{"services": services})
}

func (w *WebAPI) handleAudit(rw http.ResponseWriter, req *http.Request) {
	opts, ok := w.auditOptions(rw, req)
	if !ok {
		return
	}
	result, err := w.auditor.Run(req.Context(), opts)
	if err != nil {
		w.writeError(rw, req, http.StatusBadGateway, "audit failed", err)
		return
	}
	writeJSON(rw, http.StatusOK, result)
}

// costsRequest scopes one cost-by-service report.
type costsRequest struct {
	Period     string `json:"period,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
}

func (w *WebAPI) handleCosts(rw http.ResponseWriter, req *http.Request) {
	var body costsRequest
	if req.Body != nil && req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			w.writeError(rw, req, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}
	period, err := monitors.ParseCostPeriod(body.Period)
	if err != nil {
		w.writeError(rw, req, http.StatusBadRequest, "invalid period", err)
		return
	}

	opts := w.cfg.AuditDefaults
	if body.ExternalID != "" {
		opts.ExternalID = body.ExternalID
	}
	costs, err := w.auditor.CostReport(req.Context(), opts, period)
	if err != nil {
		w.writeError(rw, req, http.StatusBadGateway, "cost analysis failed", err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{
		"period":         string(period),
		"costs":          costs,
		"total_services": len(costs),
	})
}

// feedRequest scopes one feed or summary request. Absent fields inherit the
// server's audit defaults.
type feedRequest struct {
	FeedType    string             `json:"feed_type,omitempty"`
	Regions     []string           `json:"regions,omitempty"`
	ExternalID  string             `json:"external_id,omitempty"`
	AlertTypes  []models.AlertType `json:"alert_types,omitempty"`
	SeverityMin models.Severity    `json:"severity_min,omitempty"`
}

func (w *WebAPI) handleFeed(rw http.ResponseWriter, req *http.Request) {
	body, opts, ok := w.feedOptions(rw, req)
	if !ok {
		return
	}
	feedType := models.FeedDaily
	if body.FeedType == string(models.FeedRealtime) {
		feedType = models.FeedRealtime
	}
	result, err := w.auditor.Run(req.Context(), opts)
	if err != nil {
		w.writeError(rw, req, http.StatusBadGateway, "audit failed", err)
		return
	}
	built := w.aggregator.BuildFeed(feedType, result.AllFindings())
	built = w.aggregator.FilterFeed(built, body.AlertTypes, body.SeverityMin)
	writeJSON(rw, http.StatusOK, built)
}

func (w *WebAPI) handleSummary(rw http.ResponseWriter, req *http.Request) {
	_, opts, ok := w.feedOptions(rw, req)
	if !ok {
		return
	}
	result, err := w.auditor.Run(req.Context(), opts)
	if err != nil {
		w.writeError(rw, req, http.StatusBadGateway, "audit failed", err)
		return
	}
	built := w.aggregator.BuildFeed(models.FeedRealtime, result.AllFindings())
	writeJSON(rw, http.StatusOK, built.Summary)
}

// feedOptions decodes and validates the request body and merges its audit
// scope onto the server's defaults.
func (w *WebAPI) feedOptions(rw http.ResponseWriter, req *http.Request) (feedRequest, engine.Options, bool) {
	opts := w.cfg.AuditDefaults
	opts.Thresholds = w.thresholds.Snapshot()

	var body feedRequest
	if req.Body == nil || req.ContentLength == 0 {
		return body, opts, true
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		w.writeError(rw, req, http.StatusBadRequest, "invalid request body", err)
		return body, engine.Options{}, false
	}

	switch body.FeedType {
	case "", string(models.FeedDaily), string(models.FeedRealtime):
	default:
		w.writeError(rw, req, http.StatusBadRequest, "invalid feed type", nil)
		return body, engine.Options{}, false
	}
	if body.SeverityMin != "" && models.SeverityRank(body.SeverityMin) == 0 {
		w.writeError(rw, req, http.StatusBadRequest, "invalid severity_min", nil)
		return body, engine.Options{}, false
	}
	if len(body.Regions) > 0 {
		opts.Regions = body.Regions
	}
	if body.ExternalID != "" {
		opts.ExternalID = body.ExternalID
	}
	return body, opts, true
}

func (w *WebAPI) handleConfigure(rw http.ResponseWriter, req *http.Request) {
	var update feed.ThresholdUpdate
	if err := json.NewDecoder(req.Body).Decode(&update); err != nil {
		w.writeError(rw, req, http.StatusBadRequest, "invalid request body", err)
		return
	}
	updated, err := w.thresholds.Configure(update)
	if err != nil {
		w.writeError(rw, req, http.StatusBadRequest, "invalid thresholds", err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{
		"status":     "updated",
		"thresholds": updated,
	})
}

// auditOptions merges the request body onto the server's audit defaults.
func (w *WebAPI) auditOptions(rw http.ResponseWriter, req *http.Request) (engine.Options, bool) {
	opts := w.cfg.AuditDefaults
	opts.Thresholds = w.thresholds.Snapshot()

	if req.Body == nil || req.ContentLength == 0 {
		return opts, true
	}
	var body auditRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		w.writeError(rw, req, http.StatusBadRequest, "invalid request body", err)
		return engine.Options{}, false
	}

	switch body.Type {
	case "":
	case string(engine.AuditTypeCost), string(engine.AuditTypeSecurity), string(engine.AuditTypeAll):
		opts.Type = engine.AuditType(body.Type)
	default:
		w.writeError(rw, req, http.StatusBadRequest, "invalid audit type", nil)
		return engine.Options{}, false
	}
	if len(body.Regions) > 0 {
		opts.Regions = body.Regions
	}
	if len(body.Services) > 0 {
		opts.Services = body.Services
	}
	if body.Organization != nil {
		opts.Organization = *body.Organization
	}
	return opts, true
}

// writeError logs the cause and returns a sanitized body. Internal detail is
// only exposed when the server runs in debug mode.
func (w *WebAPI) writeError(rw http.ResponseWriter, req *http.Request, status int, message string, err error) {
	zerolog.Ctx(req.Context()).Error().Err(err).Int("status", status).Msg(message)
	body := map[string]string{"error": message}
	if w.cfg.Debug && err != nil {
		body["detail"] = err.Error()
	}
	writeJSON(rw, status, body)
}

func writeJSON(rw http.ResponseWriter, status int, payload any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(payload)
}
