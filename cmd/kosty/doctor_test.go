package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ── broker fakes ─────────────────────────────────────────────────────────────

// fakeProbe implements sessionProbe with canned STS results. It records the
// profile passed to its factory so tests can assert the flag is forwarded.
type fakeProbe struct {
	accountID string
	stsErr    error
}

func (p *fakeProbe) CallerAccountID(context.Context) (string, error) {
	return p.accountID, p.stsErr
}

func probeFactory(probe *fakeProbe, buildErr error, lastProfile *string) brokerFactory {
	return func(_ context.Context, profile string) (sessionProbe, error) {
		if lastProfile != nil {
			*lastProfile = profile
		}
		if buildErr != nil {
			return nil, buildErr
		}
		return probe, nil
	}
}

func goodDiscover() ([]string, error) { return []string{"default", "prod"}, nil }

// runDoctorInTmp changes to a fresh temp directory (no kosty.yaml), points
// HOME at it so the config search finds nothing, runs runDoctor, restores the
// working directory, and returns the captured output, the DoctorResult, and
// any rendering error.
func runDoctorInTmp(t *testing.T, newBroker brokerFactory, discover func() ([]string, error), format, profile string) (string, DoctorResult, error) {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	origDir, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(tmp); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	var buf bytes.Buffer
	result, runErr := runDoctor(context.Background(), newBroker, discover, &buf, format, profile, "")
	return buf.String(), result, runErr
}

// ── table format tests ───────────────────────────────────────────────────────

func TestDoctorAllOK(t *testing.T) {
	factory := probeFactory(&fakeProbe{accountID: "123456789012"}, nil, nil)
	out, result, err := runDoctorInTmp(t, factory, goodDiscover, "table", "")
	if err != nil {
		t.Fatalf("unexpected render error: %v", err)
	}
	if !result.OverallHealthy {
		t.Error("expected OverallHealthy=true")
	}
	for _, want := range []string{
		"Credentials: OK",
		"STS Identity: OK (Account: 123456789012)",
		"Shared config: OK (2 profile(s))",
		"Not found (defaults in effect)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q;\ngot:\n%s", want, out)
		}
	}
}

func TestDoctorCredentialsFail(t *testing.T) {
	factory := probeFactory(nil, errors.New("no credentials configured"), nil)
	out, result, err := runDoctorInTmp(t, factory, goodDiscover, "table", "")
	if err != nil {
		t.Fatalf("unexpected render error: %v", err)
	}
	if result.OverallHealthy {
		t.Error("expected OverallHealthy=false")
	}
	if !strings.Contains(out, "Credentials: FAIL") {
		t.Errorf("expected 'Credentials: FAIL'; got:\n%s", out)
	}
	if !strings.Contains(out, "STS Identity: FAIL (skipped)") {
		t.Errorf("expected skipped STS line; got:\n%s", out)
	}
}

func TestDoctorSTSFail(t *testing.T) {
	factory := probeFactory(&fakeProbe{stsErr: errors.New("InvalidClientTokenId")}, nil, nil)
	out, result, err := runDoctorInTmp(t, factory, goodDiscover, "table", "")
	if err != nil {
		t.Fatalf("unexpected render error: %v", err)
	}
	if result.OverallHealthy {
		t.Error("expected OverallHealthy=false")
	}
	if result.AWS.Credentials {
		t.Error("expected AWS.Credentials=false when STS rejects the token")
	}
	if !strings.Contains(out, "InvalidClientTokenId") {
		t.Errorf("expected STS error detail in output; got:\n%s", out)
	}
}

func TestDoctorProfileDiscoveryFail(t *testing.T) {
	factory := probeFactory(&fakeProbe{accountID: "123456789012"}, nil, nil)
	discover := func() ([]string, error) { return nil, errors.New("shared config unreadable") }
	out, result, err := runDoctorInTmp(t, factory, discover, "table", "")
	if err != nil {
		t.Fatalf("unexpected render error: %v", err)
	}
	// Profile discovery is informational only.
	if !result.OverallHealthy {
		t.Error("expected OverallHealthy=true (profile discovery is not fatal)")
	}
	if !strings.Contains(out, "Shared config: FAIL (shared config unreadable)") {
		t.Errorf("expected shared config failure line; got:\n%s", out)
	}
}

func TestDoctorConfigValid(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	path := filepath.Join(tmp, "kosty.yaml")
	if err := os.WriteFile(path, []byte("aws:\n  regions: [eu-west-1]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	factory := probeFactory(&fakeProbe{accountID: "123456789012"}, nil, nil)
	var buf bytes.Buffer
	result, err := runDoctor(context.Background(), factory, goodDiscover, &buf, "table", "", path)
	if err != nil {
		t.Fatalf("unexpected render error: %v", err)
	}
	if !result.OverallHealthy {
		t.Error("expected OverallHealthy=true")
	}
	if !result.Config.Present || !result.Config.Valid {
		t.Errorf("expected present+valid config; got %+v", result.Config)
	}
	if !strings.Contains(buf.String(), "kosty.yaml: OK") {
		t.Errorf("expected 'kosty.yaml: OK'; got:\n%s", buf.String())
	}
}

func TestDoctorConfigInvalid(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	path := filepath.Join(tmp, "kosty.yaml")
	if err := os.WriteFile(path, []byte("aws: [not a mapping\n"), 0644); err != nil {
		t.Fatal(err)
	}

	factory := probeFactory(&fakeProbe{accountID: "123456789012"}, nil, nil)
	var buf bytes.Buffer
	result, err := runDoctor(context.Background(), factory, goodDiscover, &buf, "table", "", path)
	if err != nil {
		t.Fatalf("unexpected render error: %v", err)
	}
	if result.OverallHealthy {
		t.Error("expected OverallHealthy=false for unparseable config")
	}
	if !strings.Contains(buf.String(), "kosty.yaml: FAIL") {
		t.Errorf("expected 'kosty.yaml: FAIL'; got:\n%s", buf.String())
	}
}

// ── JSON format tests ────────────────────────────────────────────────────────

func TestDoctorJSON_AllOK(t *testing.T) {
	factory := probeFactory(&fakeProbe{accountID: "123456789012"}, nil, nil)
	out, result, err := runDoctorInTmp(t, factory, goodDiscover, "json", "")
	if err != nil {
		t.Fatalf("unexpected render error: %v", err)
	}
	if !result.OverallHealthy {
		t.Error("expected OverallHealthy=true")
	}

	var parsed DoctorResult
	if jsonErr := json.Unmarshal([]byte(out), &parsed); jsonErr != nil {
		t.Fatalf("invalid JSON output: %v\nraw:\n%s", jsonErr, out)
	}
	if !parsed.AWS.Credentials {
		t.Error("expected AWS.Credentials=true")
	}
	if parsed.AWS.AccountID != "123456789012" {
		t.Errorf("expected AccountID=123456789012; got %q", parsed.AWS.AccountID)
	}
	if parsed.Profiles.Discovered != 2 {
		t.Errorf("expected 2 discovered profiles; got %d", parsed.Profiles.Discovered)
	}
}

// TestDoctorJSON_Failure verifies that when the environment is unhealthy
// runDoctor still returns (result, nil) and the output is exactly one clean
// JSON blob with no cobra noise, so CI consumers can parse it.
func TestDoctorJSON_Failure(t *testing.T) {
	factory := probeFactory(nil, errors.New("no credentials configured"), nil)
	out, result, err := runDoctorInTmp(t, factory, goodDiscover, "json", "")
	if err != nil {
		t.Fatalf("runDoctor must not return error for unhealthy result; got: %v", err)
	}
	if result.OverallHealthy {
		t.Error("expected OverallHealthy=false")
	}

	var parsed DoctorResult
	if jsonErr := json.Unmarshal([]byte(out), &parsed); jsonErr != nil {
		t.Fatalf("invalid JSON output: %v\nraw:\n%s", jsonErr, out)
	}
	if parsed.AWS.Error == "" {
		t.Error("expected AWS.Error to be non-empty")
	}

	want, _ := json.Marshal(result)
	if strings.TrimSpace(out) != string(want) {
		t.Errorf("JSON output has unexpected trailing content;\ngot:  %q\nwant: %q",
			strings.TrimSpace(out), string(want))
	}
	for _, noisy := range []string{"Error:", "Usage:"} {
		if strings.Contains(out, noisy) {
			t.Errorf("cobra noise %q must not appear in JSON output; got:\n%s", noisy, out)
		}
	}
}

// TestDoctorCmd_CobraCleanOutput verifies that newDoctorCmd sets SilenceErrors
// and SilenceUsage so Cobra does not append "Error: ..." or the usage block
// when RunE fails. That keeps --format=json output clean for CI consumers.
func TestDoctorCmd_CobraCleanOutput(t *testing.T) {
	configPath := ""
	cmd := newDoctorCmd(&configPath)
	if !cmd.SilenceErrors {
		t.Error("doctor command must have SilenceErrors=true")
	}
	if !cmd.SilenceUsage {
		t.Error("doctor command must have SilenceUsage=true")
	}
}

// ── profile flag tests ───────────────────────────────────────────────────────

func TestDoctorProfile_Forwarded(t *testing.T) {
	var lastProfile string
	factory := probeFactory(&fakeProbe{accountID: "999999999999"}, nil, &lastProfile)
	out, result, err := runDoctorInTmp(t, factory, goodDiscover, "table", "prod")
	if err != nil {
		t.Fatalf("unexpected render error: %v", err)
	}
	if result.AWS.Profile != "prod" {
		t.Errorf("expected AWS.Profile=prod; got %q", result.AWS.Profile)
	}
	if lastProfile != "prod" {
		t.Errorf("broker factory called with %q; want prod", lastProfile)
	}
	if !strings.Contains(out, "prod") {
		t.Errorf("expected profile 'prod' in output; got:\n%s", out)
	}
}
