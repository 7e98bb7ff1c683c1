package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kosty-cloud/kosty/internal/awsauth"
	"github.com/kosty-cloud/kosty/internal/checks"
	"github.com/kosty-cloud/kosty/internal/config"
	"github.com/kosty-cloud/kosty/internal/engine"
	"github.com/kosty-cloud/kosty/internal/feed"
	"github.com/kosty-cloud/kosty/internal/models"
	"github.com/kosty-cloud/kosty/internal/monitors"
	"github.com/kosty-cloud/kosty/internal/output"
	"github.com/kosty-cloud/kosty/internal/pricing"
	"github.com/kosty-cloud/kosty/internal/server"
	"github.com/kosty-cloud/kosty/internal/version"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "kosty",
		Short:         "kosty — AWS cost waste and security audit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to kosty.yaml (default: search . and $HOME)")

	root.AddCommand(newAuditCmd(&configPath))
	root.AddCommand(newFeedCmd(&configPath))
	root.AddCommand(newCostsCmd(&configPath))
	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newServicesCmd())
	root.AddCommand(newDoctorCmd(&configPath))
	root.AddCommand(newVersionCmd())
	return root
}

// loadRuntime reads the config file and builds the logger context every
// command runs under.
func loadRuntime(configPath string) (*config.Config, context.Context, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	if cfg.Logging.Pretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return cfg, logger.WithContext(context.Background()), nil
}

// buildEngine wires a production engine for the given profile.
func buildEngine(ctx context.Context, cfg *config.Config, profile string, mock bool) (*engine.Engine, error) {
	var brokerOpts []awsauth.BrokerOption
	if cfg.AWS.MFASerial != "" {
		brokerOpts = append(brokerOpts, awsauth.WithMFASerial(cfg.AWS.MFASerial))
	}
	broker, err := awsauth.NewBroker(ctx, profile, brokerOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS credentials: %w", err)
	}

	var quantifier *pricing.Quantifier
	if mock || cfg.Audit.MockPricing {
		quantifier = pricing.NewQuantifier(pricing.NewStaticSource(), pricing.WithForcedMock())
	} else {
		quantifier = pricing.NewQuantifier(pricing.NewStaticSource())
	}
	return engine.New(broker, checks.DefaultRegistry(), quantifier), nil
}

// engineOptions translates config plus flags into engine options.
func engineOptions(cfg *config.Config, auditType string, regions, services []string, org bool, externalID string) engine.Options {
	if len(regions) == 0 {
		regions = cfg.AWS.Regions
	}
	if externalID == "" {
		externalID = cfg.AWS.ExternalID
	}
	return engine.Options{
		Type:         engine.AuditType(auditType),
		Regions:      regions,
		Services:     services,
		Organization: org,
		OrgRole:      cfg.AWS.OrgRole,
		ExternalID:   externalID,
		Thresholds:   cfg.ActiveThresholds(),
		MaxWorkers:   cfg.Audit.MaxWorkers,
		CheckTimeout: cfg.Audit.CheckTimeout,
	}
}

func newAuditCmd(configPath *string) *cobra.Command {
	var (
		profile     string
		allProfiles bool
		auditType   string
		regions     []string
		services    []string
		org         bool
		externalID  string
		mock        bool
		format      string
		outPath     string
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Scan AWS accounts for cost waste and security issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			if profile == "" {
				profile = cfg.AWS.Profile
			}
			opts := engineOptions(cfg, auditType, regions, services, org, externalID)

			if allProfiles {
				runner := engine.NewProfileRunner()
				result, err := runner.RunAll(ctx, nil, opts)
				if err != nil {
					return err
				}
				return writeResult(result, format, outPath, nil)
			}

			eng, err := buildEngine(ctx, cfg, profile, mock)
			if err != nil {
				return err
			}
			result, err := eng.Run(ctx, opts)
			if err != nil {
				return err
			}
			return writeResult(result, format, outPath, result)
		},
	}

	cmd.Flags().StringVar(&profile, "profile", "", "AWS profile to use")
	cmd.Flags().BoolVar(&allProfiles, "all-profiles", false, "audit every configured AWS profile")
	cmd.Flags().StringVar(&auditType, "type", string(engine.AuditTypeAll), "audit type: cost, security, or all")
	cmd.Flags().StringSliceVar(&regions, "regions", nil, "regions to scan (default from config)")
	cmd.Flags().StringSliceVar(&services, "services", nil, "restrict cost checks to these services")
	cmd.Flags().BoolVar(&org, "org", false, "scan every active organization member account")
	cmd.Flags().StringVar(&externalID, "external-id", "", "external ID for cross-account role assumption")
	cmd.Flags().BoolVar(&mock, "mock", false, "use synthetic cost figures instead of live pricing")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table or json")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write the JSON report to a file")
	return cmd
}

// writeResult renders the audit outcome. The table view only applies to
// single-account results; everything else prints JSON.
func writeResult(payload any, format, outPath string, tableResult *models.AuditResult) error {
	if outPath != "" {
		raw, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		if err := os.WriteFile(outPath, raw, 0o644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		fmt.Printf("Report written to %s\n", outPath)
		return nil
	}

	if format == "table" && tableResult != nil {
		findings := tableResult.AllFindings()
		multiAccount := len(tableResult.Results) > 1
		output.RenderTable(os.Stdout, findings, output.TableOptions{
			Colored:        true,
			IncludeCost:    true,
			IncludeAccount: multiAccount,
		})
		output.RenderSummary(os.Stdout, tableResult.Summary, tableResult.Partial)
		return nil
	}
	return printJSON(payload)
}

func printJSON(payload any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func newFeedCmd(configPath *string) *cobra.Command {
	var (
		profile     string
		feedType    string
		regions     []string
		alertTypes  []string
		severityMin string
		mock        bool
	)

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Run an audit and print the classified alert feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			if feedType != string(models.FeedDaily) && feedType != string(models.FeedRealtime) {
				return fmt.Errorf("invalid feed type %q: want daily or realtime", feedType)
			}
			if severityMin != "" && models.SeverityRank(models.Severity(severityMin)) == 0 {
				return fmt.Errorf("invalid severity %q", severityMin)
			}
			if profile == "" {
				profile = cfg.AWS.Profile
			}

			eng, err := buildEngine(ctx, cfg, profile, mock)
			if err != nil {
				return err
			}
			result, err := eng.Run(ctx, engineOptions(cfg, string(engine.AuditTypeAll), regions, nil, false, ""))
			if err != nil {
				return err
			}

			aggregator := feed.NewAggregator(feed.NewThresholdStore(cfg.ActiveThresholds()))
			built := aggregator.BuildFeed(models.FeedType(feedType), result.AllFindings())

			var typeFilter []models.AlertType
			for _, t := range alertTypes {
				typeFilter = append(typeFilter, models.AlertType(t))
			}
			built = aggregator.FilterFeed(built, typeFilter, models.Severity(severityMin))
			return printJSON(built)
		},
	}

	cmd.Flags().StringVar(&profile, "profile", "", "AWS profile to use")
	cmd.Flags().StringVar(&feedType, "type", string(models.FeedDaily), "feed type: daily or realtime")
	cmd.Flags().StringSliceVar(&regions, "regions", nil, "regions to scan (default from config)")
	cmd.Flags().StringSliceVar(&alertTypes, "alert-types", nil, "only include these alert types")
	cmd.Flags().StringVar(&severityMin, "severity-min", "", "drop alerts below this severity")
	cmd.Flags().BoolVar(&mock, "mock", false, "use synthetic cost figures instead of live pricing")
	return cmd
}

func newCostsCmd(configPath *string) *cobra.Command {
	var (
		profile    string
		period     string
		externalID string
	)

	cmd := &cobra.Command{
		Use:   "costs",
		Short: "Break account spend down by AWS service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			costPeriod, err := monitors.ParseCostPeriod(period)
			if err != nil {
				return err
			}
			if profile == "" {
				profile = cfg.AWS.Profile
			}

			eng, err := buildEngine(ctx, cfg, profile, false)
			if err != nil {
				return err
			}
			costs, err := eng.CostReport(ctx, engineOptions(cfg, string(engine.AuditTypeCost), nil, nil, false, externalID), costPeriod)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"period":         string(costPeriod),
				"costs":          costs,
				"total_services": len(costs),
			})
		},
	}

	cmd.Flags().StringVar(&profile, "profile", "", "AWS profile to use")
	cmd.Flags().StringVar(&period, "period", string(monitors.PeriodMonthly), "analysis window: DAILY, WEEKLY or MONTHLY")
	cmd.Flags().StringVar(&externalID, "external-id", "", "external ID for cross-account role assumption")
	return cmd
}

func newServeCmd(configPath *string) *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the audit and alert feed HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			if profile == "" {
				profile = cfg.AWS.Profile
			}
			eng, err := buildEngine(ctx, cfg, profile, cfg.Audit.MockPricing)
			if err != nil {
				return err
			}

			api := server.NewWebAPI(*zerolog.Ctx(ctx), server.Config{
				Addr:            cfg.Server.Addr,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
				Debug:           cfg.Server.Debug,
				AuditDefaults:   engineOptions(cfg, string(engine.AuditTypeAll), nil, nil, false, ""),
			}, eng, checks.DefaultRegistry(), feed.NewThresholdStore(cfg.ActiveThresholds()))
			return api.Start()
		},
	}

	cmd.Flags().StringVar(&profile, "profile", "", "AWS profile to use")
	return cmd
}

func newServicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List the services the cost checks cover",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := checks.DefaultRegistry()
			var rows []string
			for _, c := range registry.All() {
				rows = append(rows, fmt.Sprintf("%-8s %s", c.Service(), c.Name()))
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(rows, "\n"))
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), version.Info())
		},
	}
}
