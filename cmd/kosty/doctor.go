package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kosty-cloud/kosty/internal/awsauth"
	"github.com/kosty-cloud/kosty/internal/config"
)

// DoctorResult is the structured output of kosty doctor. It can be serialised
// to JSON via --format=json or rendered as a human-readable table (default).
type DoctorResult struct {
	AWS struct {
		Profile     string `json:"profile,omitempty"`
		Credentials bool   `json:"credentials_ok"`
		AccountID   string `json:"account_id,omitempty"`
		Error       string `json:"error,omitempty"`
	} `json:"aws"`

	Profiles struct {
		Discovered int    `json:"discovered"`
		Error      string `json:"error,omitempty"`
	} `json:"profiles"`

	Config struct {
		Present bool   `json:"present"`
		Valid   bool   `json:"valid"`
		Path    string `json:"path,omitempty"`
		Error   string `json:"error,omitempty"`
	} `json:"config"`

	OverallHealthy bool `json:"overall_healthy"`
}

// sessionProbe is the slice of the credential broker doctor needs.
type sessionProbe interface {
	CallerAccountID(ctx context.Context) (string, error)
}

// brokerFactory lets tests substitute a fake broker.
type brokerFactory func(ctx context.Context, profile string) (sessionProbe, error)

func defaultBrokerFactory(ctx context.Context, profile string) (sessionProbe, error) {
	return awsauth.NewBroker(ctx, profile)
}

func newDoctorCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "doctor",
		Short:         "Run environment diagnostics",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			profile, _ := cmd.Flags().GetString("profile")
			result, err := runDoctor(
				context.Background(),
				defaultBrokerFactory,
				awsauth.DiscoverProfiles,
				cmd.OutOrStdout(),
				format,
				profile,
				*configPath,
			)
			if err != nil {
				// Rendering failure, let Cobra/main handle it.
				return err
			}
			if !result.OverallHealthy {
				// Exit directly so no error text reaches main.go's
				// fmt.Fprintln(os.Stderr, err) path.
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().String("format", "table", `Output format: "table" or "json"`)
	cmd.Flags().String("profile", "", "AWS profile to use (default: credential chain)")
	return cmd
}

// runDoctor collects all diagnostic results, renders them to w in the
// requested format, and returns the result.
// The returned error covers only rendering failures (e.g. JSON encode error).
// Callers must inspect result.OverallHealthy to determine whether the
// environment is healthy.
func runDoctor(ctx context.Context, newBroker brokerFactory, discover func() ([]string, error), w io.Writer, format, profile, configPath string) (DoctorResult, error) {
	result := collectDoctorResult(ctx, newBroker, discover, profile, configPath)

	switch format {
	case "json":
		if err := json.NewEncoder(w).Encode(result); err != nil {
			return result, fmt.Errorf("encode doctor result: %w", err)
		}
	default:
		renderDoctorTable(result, w)
	}

	return result, nil
}

// collectDoctorResult runs all environment checks and populates a DoctorResult.
// It performs no rendering; callers decide how to present the result.
func collectDoctorResult(ctx context.Context, newBroker brokerFactory, discover func() ([]string, error), profile, configPath string) DoctorResult {
	var result DoctorResult

	// AWS: credential chain → STS caller identity.
	// An empty profile string selects the default credential chain.
	if profile != "" {
		result.AWS.Profile = profile
	}
	broker, err := newBroker(ctx, profile)
	if err != nil {
		result.AWS.Error = err.Error()
	} else {
		accountID, err := broker.CallerAccountID(ctx)
		if err != nil {
			result.AWS.Error = err.Error()
		} else {
			result.AWS.Credentials = true
			result.AWS.AccountID = accountID
		}
	}

	// Shared config/credentials file profiles, informational only.
	profiles, err := discover()
	if err != nil {
		result.Profiles.Error = err.Error()
	} else {
		result.Profiles.Discovered = len(profiles)
	}

	// Config: the file is optional, but when named or found it must parse.
	if configPath != "" {
		result.Config.Present = true
		result.Config.Path = configPath
	}
	if _, err := config.Load(configPath); err != nil {
		result.Config.Present = true
		result.Config.Error = err.Error()
	} else {
		result.Config.Valid = true
	}

	result.OverallHealthy = result.AWS.Credentials && result.Config.Valid
	return result
}

// renderDoctorTable writes the human-readable diagnostic output from result to w.
func renderDoctorTable(result DoctorResult, w io.Writer) {
	fmt.Fprintln(w, "Environment Diagnostics")

	if result.AWS.Profile != "" {
		fmt.Fprintf(w, "\nAWS (profile: %s):\n", result.AWS.Profile)
	} else {
		fmt.Fprintln(w, "\nAWS:")
	}
	if !result.AWS.Credentials {
		doctorPrint(w, "Credentials", "FAIL", result.AWS.Error)
		doctorPrint(w, "STS Identity", "FAIL", "skipped")
	} else {
		doctorPrint(w, "Credentials", "OK", "")
		doctorPrint(w, "STS Identity", "OK", "Account: "+result.AWS.AccountID)
	}

	fmt.Fprintln(w, "\nProfiles:")
	if result.Profiles.Error != "" {
		doctorPrint(w, "Shared config", "FAIL", result.Profiles.Error)
	} else {
		doctorPrint(w, "Shared config", "OK", fmt.Sprintf("%d profile(s)", result.Profiles.Discovered))
	}

	fmt.Fprintln(w, "\nConfig:")
	if !result.Config.Present && result.Config.Valid {
		doctorPrint(w, "kosty.yaml", "Not found (defaults in effect)", "")
	} else if result.Config.Valid {
		doctorPrint(w, "kosty.yaml", "OK", result.Config.Path)
	} else {
		doctorPrint(w, "kosty.yaml", "FAIL", result.Config.Error)
	}
}

// doctorPrint writes a single diagnostic check line to w.
// When detail is non-empty it is appended in parentheses.
func doctorPrint(w io.Writer, label, status, detail string) {
	if detail != "" {
		fmt.Fprintf(w, "  %s: %s (%s)\n", label, status, detail)
	} else {
		fmt.Fprintf(w, "  %s: %s\n", label, status)
	}
}
