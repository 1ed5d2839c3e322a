package main

import (
	"github.com/spf13/cobra"

	"jira2redmine/internal/config"
	"jira2redmine/internal/jira"
	"jira2redmine/internal/logging"
	"jira2redmine/internal/migrate"
	"jira2redmine/internal/redmine"
	"jira2redmine/internal/storage"
	"jira2redmine/internal/telemetry"
)

// version is stamped by the release build via -ldflags.
var version = "dev"

type rootFlags struct {
	configPath     string
	phases         string
	skip           string
	project        string
	reExtract      bool
	dryRun         bool
	confirmPush    bool
	useExtendedAPI bool
	logFile        string
	verbose        bool
	quiet          bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "jira2redmine",
		Short: "Migrate Jira Cloud issues into Redmine",
		Long: `jira2redmine runs the issue migration pipeline against a MySQL staging
database: extract Jira issues into staging, transform them into Redmine
proposals on the mapping table, and push ready proposals to Redmine.

Without --confirm-push the push phase only previews what it would create.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "./config.yaml", "configuration file")
	cmd.Flags().StringVar(&flags.phases, "phases", "", "comma-separated phases to run: jira,transform,push (default all)")
	cmd.Flags().StringVar(&flags.skip, "skip", "", "comma-separated phases to skip")
	cmd.Flags().StringVar(&flags.project, "project", "", "restrict extraction to one Jira project key")
	cmd.Flags().BoolVar(&flags.reExtract, "re-extract", false, "extract projects already stamped as extracted")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "print Redmine payloads instead of creating issues")
	cmd.Flags().BoolVar(&flags.confirmPush, "confirm-push", false, "actually create Redmine issues")
	cmd.Flags().BoolVar(&flags.useExtendedAPI, "use-extended-api", false, "route creation through the Redmine Extended API plugin")
	cmd.Flags().StringVar(&flags.logFile, "log-file", "", "mirror log output into this rotating file")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "warnings and errors only")
	cmd.Flags().BoolP("version", "V", false, "print version and exit")

	return cmd
}

func run(cmd *cobra.Command, flags *rootFlags) error {
	ctx := cmd.Context()

	phases, err := migrate.ParsePhases(flags.phases, flags.skip)
	if err != nil {
		return err
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if err := cfg.PromptMissingPassword(); err != nil {
		return err
	}

	log := logging.New(logging.Options{
		Verbose: flags.verbose,
		Quiet:   flags.quiet,
		File:    flags.logFile,
	})
	defer log.Close()

	if err := telemetry.Init(ctx, version); err != nil {
		return err
	}
	defer telemetry.Shutdown(ctx)

	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	extended := cfg.Redmine.ExtendedAPI.Enabled || flags.useExtendedAPI

	runner := &migrate.Runner{
		Store:   store,
		Jira:    jira.NewClient(cfg.Jira.BaseURL, cfg.Jira.Username, cfg.Jira.APIToken),
		Redmine: redmine.NewClient(cfg.Redmine.BaseURL, cfg.Redmine.APIKey, cfg.Redmine.ExtendedAPI.Prefix, extended),
		Cfg:     cfg,
		Log:     log,
		Metrics: telemetry.NewPhaseMetrics(),
		Opts: migrate.Options{
			Phases:      phases,
			ProjectKey:  flags.project,
			ReExtract:   flags.reExtract,
			DryRun:      flags.dryRun,
			ConfirmPush: flags.confirmPush,
		},
	}
	return runner.Run(ctx)
}
