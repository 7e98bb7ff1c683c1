package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kosty-cloud/kosty/internal/config"
	"github.com/kosty-cloud/kosty/internal/engine"
	"github.com/kosty-cloud/kosty/internal/models"
)

// ── command tree ─────────────────────────────────────────────────────────────

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	want := []string{"audit", "feed", "costs", "serve", "services", "doctor", "version"}
	got := map[string]bool{}
	for _, c := range root.Commands() {
		got[c.Name()] = true
	}
	for _, name := range want {
		if !got[name] {
			t.Errorf("root command missing subcommand %q", name)
		}
	}
}

func TestServicesCmd_ListsCatalog(t *testing.T) {
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"services"})
	if err := root.Execute(); err != nil {
		t.Fatalf("services command failed: %v", err)
	}
	out := buf.String()
	for _, svc := range []string{"ec2", "ebs", "eip", "s3", "rds", "lb", "iam"} {
		if !strings.Contains(out, svc) {
			t.Errorf("services output missing %q;\ngot:\n%s", svc, out)
		}
	}
}

func TestVersionCmd_Output(t *testing.T) {
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(buf.String(), "kosty version") {
		t.Errorf("expected version banner; got:\n%s", buf.String())
	}
}

// ── engineOptions ────────────────────────────────────────────────────────────

func TestEngineOptions_ConfigFallbacks(t *testing.T) {
	cfg := &config.Config{
		AWS: config.AWSConfig{
			Regions:    []string{"eu-west-1", "eu-central-1"},
			OrgRole:    "AuditRole",
			ExternalID: "cfg-ext",
		},
		Audit: config.AuditConfig{
			MaxWorkers:   4,
			CheckTimeout: 30 * time.Second,
		},
	}

	opts := engineOptions(cfg, "cost", nil, nil, false, "")
	if opts.Type != engine.AuditTypeCost {
		t.Errorf("Type = %q; want cost", opts.Type)
	}
	if len(opts.Regions) != 2 || opts.Regions[0] != "eu-west-1" {
		t.Errorf("Regions = %v; want config regions", opts.Regions)
	}
	if opts.OrgRole != "AuditRole" {
		t.Errorf("OrgRole = %q; want AuditRole", opts.OrgRole)
	}
	if opts.ExternalID != "cfg-ext" {
		t.Errorf("ExternalID = %q; want cfg-ext", opts.ExternalID)
	}
	if opts.MaxWorkers != 4 || opts.CheckTimeout != 30*time.Second {
		t.Errorf("worker knobs not forwarded: %+v", opts)
	}
	if opts.Thresholds.BudgetPct != 80 {
		t.Errorf("Thresholds.BudgetPct = %v; want default 80", opts.Thresholds.BudgetPct)
	}
}

func TestEngineOptions_FlagsWin(t *testing.T) {
	cfg := &config.Config{
		AWS: config.AWSConfig{
			Regions:    []string{"us-east-1"},
			ExternalID: "cfg-ext",
		},
	}

	opts := engineOptions(cfg, "security", []string{"ap-south-1"}, []string{"ec2"}, true, "flag-ext")
	if len(opts.Regions) != 1 || opts.Regions[0] != "ap-south-1" {
		t.Errorf("Regions = %v; want flag regions", opts.Regions)
	}
	if opts.ExternalID != "flag-ext" {
		t.Errorf("ExternalID = %q; flag must override config", opts.ExternalID)
	}
	if !opts.Organization {
		t.Error("Organization flag not forwarded")
	}
	if len(opts.Services) != 1 || opts.Services[0] != "ec2" {
		t.Errorf("Services = %v; want [ec2]", opts.Services)
	}
}

func TestEngineOptions_ThresholdOverrides(t *testing.T) {
	cfg := &config.Config{
		Thresholds: config.ThresholdsConfig{CostSpikeUSD: 250},
	}
	opts := engineOptions(cfg, "all", nil, nil, false, "")
	if opts.Thresholds.CostSpikeUSD != 250 {
		t.Errorf("CostSpikeUSD = %v; want 250", opts.Thresholds.CostSpikeUSD)
	}
	if opts.Thresholds.AnomalyMinUSD != 10 {
		t.Errorf("AnomalyMinUSD = %v; unset values keep defaults", opts.Thresholds.AnomalyMinUSD)
	}
}

// ── writeResult ──────────────────────────────────────────────────────────────

func resultFixture() *models.AuditResult {
	return &models.AuditResult{
		ScanTimestamp: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC),
		Results: map[string]models.AccountResults{
			"111122223333": {
				"ec2": []models.Finding{{
					Type:        models.FindingTypeCost,
					Service:     "ec2",
					Check:       "idle_instances",
					ResourceID:  "i-0abc",
					Region:      "us-east-1",
					AccountID:   "111122223333",
					Severity:    models.SeverityHigh,
					Issue:       "Instance idle for 7 days",
					MonthlyCost: 93.44,
					AnnualCost:  1121.28,
				}},
			},
		},
		Summary: models.AuditSummary{
			TotalIssues:         1,
			TotalMonthlySavings: 93.44,
			TotalAnnualSavings:  1121.28,
		},
	}
}

func TestWriteResult_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	result := resultFixture()
	if err := writeResult(result, "table", path, result); err != nil {
		t.Fatalf("writeResult: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("report file not written: %v", err)
	}
	var parsed models.AuditResult
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("report file is not valid JSON: %v", err)
	}
	if parsed.Summary.TotalIssues != 1 {
		t.Errorf("TotalIssues = %d; want 1", parsed.Summary.TotalIssues)
	}
	if parsed.Summary.TotalMonthlySavings != 93.44 {
		t.Errorf("TotalMonthlySavings = %v; want 93.44", parsed.Summary.TotalMonthlySavings)
	}
}
