package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/naka-gawa/gitlab-report/internal/config"
	"github.com/naka-gawa/gitlab-report/internal/gateway"
	"github.com/naka-gawa/gitlab-report/internal/logger"
	"github.com/naka-gawa/gitlab-report/internal/notify"
	"github.com/naka-gawa/gitlab-report/internal/report"
	"github.com/naka-gawa/gitlab-report/internal/summary"
	"github.com/naka-gawa/gitlab-report/internal/usecase"
)

var errNoReports = errors.New("no project produced a report")

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Fetches recent GitLab activity and writes a report per project",
	Long: `Fetches commits, merge requests and issues updated within the lookback window for
every project in GITLAB_PROJECT_IDS, writes gitlab_changes_report_<project>.md for
each project with activity, and delivers it to DISCORD_WEBHOOK_URL when set.
Exits non-zero when no report was produced.`,
	RunE: runReport,
}

func runReport(cmd *cobra.Command, args []string) error {
	// Get the verbose flag from the root command to set up the logger.
	verbose, _ := cmd.InheritedFlags().GetBool("verbose")
	envFiles, _ := cmd.Flags().GetStringSlice("env-file")

	cfg, err := config.Load(envFiles...)
	if err != nil {
		return err
	}
	if err := applyFlagOverrides(cmd, cfg); err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format, verbose)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Inject dependencies and run the main business logic.
	gitlabGateway, err := gateway.NewGitLabGateway(ctx, gateway.OptionsFromConfig(cfg.GitLab), log)
	if err != nil {
		return err
	}

	var opts []usecase.Option
	noSummary, _ := cmd.Flags().GetBool("no-summary")
	if cfg.SummaryEnabled() && !noSummary {
		opts = append(opts, usecase.WithSummarizer(summary.NewOpenAISummarizer(summary.OptionsFromConfig(cfg.OpenAI), log)))
	}
	noNotify, _ := cmd.Flags().GetBool("no-notify")
	if !noNotify {
		opts = append(opts, usecase.WithNotifier(notify.NewDiscordNotifier(cfg.Discord.WebhookURL, nil, log)))
	}

	renderer := report.NewRenderer(cfg.Report.OutputDir, report.Format(cfg.Report.Format))
	pipeline := usecase.NewPipeline(gitlabGateway, renderer, log, opts...)

	result := pipeline.Run(ctx, cfg.Projects())
	printResults(cmd.OutOrStdout(), result)

	if !result.Succeeded() {
		return errNoReports
	}
	return nil
}

// applyFlagOverrides lets explicitly set flags take precedence over the environment.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("days") {
		cfg.GitLab.Days, _ = flags.GetInt("days")
	}
	if flags.Changed("format") {
		cfg.Report.Format, _ = flags.GetString("format")
	}
	if flags.Changed("output-dir") {
		cfg.Report.OutputDir, _ = flags.GetString("output-dir")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func printResults(w io.Writer, result usecase.RunResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECT\tNAME\tOUTCOME\tDELIVERY\tREPORT")
	for _, p := range result.Projects {
		name := p.ProjectName
		if name == "" {
			name = "-"
		}
		path := p.ReportPath
		if path == "" {
			path = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ProjectID, name, p.Outcome, p.Delivery, path)
	}
	tw.Flush()
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().Int("days", config.DefaultDays, "Lookback window in days (overrides GITLAB_DAYS)")
	reportCmd.Flags().String("format", config.DefaultReportFormat, "Report format: detailed or summary (overrides REPORT_FORMAT)")
	reportCmd.Flags().String("output-dir", config.DefaultOutputDir, "Directory for report files (overrides REPORT_OUTPUT_DIR)")
	reportCmd.Flags().Bool("no-summary", false, "Skip the language-model summary even when OPENAI_API_KEY is set")
	reportCmd.Flags().Bool("no-notify", false, "Skip Discord delivery even when DISCORD_WEBHOOK_URL is set")
	reportCmd.Flags().StringSlice("env-file", []string{".env"}, "Env files to load before reading the environment")
}
