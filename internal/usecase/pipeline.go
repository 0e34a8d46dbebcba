// Package usecase contains the business logic of the application.
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/naka-gawa/gitlab-report/internal/config"
	"github.com/naka-gawa/gitlab-report/internal/domain"
	"github.com/naka-gawa/gitlab-report/internal/gateway"
	"github.com/naka-gawa/gitlab-report/internal/notify"
	"github.com/naka-gawa/gitlab-report/internal/summary"
)

// Outcome is how far a project got through the pipeline.
type Outcome string

const (
	OutcomeReported     Outcome = "reported"
	OutcomeEmpty        Outcome = "empty"
	OutcomeFetchFailed  Outcome = "fetch_failed"
	OutcomeRenderFailed Outcome = "render_failed"
)

// Delivery is the result of the notification step.
type Delivery string

const (
	DeliveryNone      Delivery = "none" // no report to deliver
	DeliveryDelivered Delivery = "delivered"
	DeliverySkipped   Delivery = "skipped"
	DeliveryFailed    Delivery = "failed"
)

// ReportRenderer writes a report for a snapshot and returns its path.
type ReportRenderer interface {
	Render(snapshot *domain.ActivitySnapshot, narrative string) (string, error)
}

// ProjectResult records what happened to one project during a run.
type ProjectResult struct {
	ProjectID   string
	ProjectName string
	Outcome     Outcome
	ReportPath  string
	Narrative   bool
	Delivery    Delivery
	Err         error // cause of a soft failure in any stage, if one occurred
}

// RunResult aggregates the per-project results of a run.
type RunResult struct {
	Projects []ProjectResult
}

// Succeeded reports whether at least one project produced a report.
func (r RunResult) Succeeded() bool {
	for _, p := range r.Projects {
		if p.Outcome == OutcomeReported {
			return true
		}
	}
	return false
}

// Reports returns the paths of all reports written during the run.
func (r RunResult) Reports() []string {
	var paths []string
	for _, p := range r.Projects {
		if p.Outcome == OutcomeReported {
			paths = append(paths, p.ReportPath)
		}
	}
	return paths
}

// Pipeline is the use case for producing activity reports.
// It orchestrates fetch, summarize, render and notify for each project in turn.
type Pipeline struct {
	fetcher    gateway.ActivityFetcher
	renderer   ReportRenderer
	summarizer summary.Summarizer
	notifier   notify.Notifier
	logger     zerolog.Logger
	now        func() time.Time
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithSummarizer enables the narrative stage.
func WithSummarizer(s summary.Summarizer) Option {
	return func(p *Pipeline) { p.summarizer = s }
}

// WithNotifier enables the delivery stage.
func WithNotifier(n notify.Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithClock overrides the time source used to compute the window cutoff.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates a new Pipeline instance.
func NewPipeline(fetcher gateway.ActivityFetcher, renderer ReportRenderer, logger zerolog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		fetcher:  fetcher,
		renderer: renderer,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes projects sequentially. A failure in one project is recorded in its
// result and never stops the run.
func (p *Pipeline) Run(ctx context.Context, projects []config.ProjectConfig) RunResult {
	p.logger.Info().Int("projects", len(projects)).Msg("Usecase: Starting report run...")

	var result RunResult
	for i, project := range projects {
		if err := ctx.Err(); err != nil {
			p.logger.Warn().Err(err).Msg("Run cancelled")
			break
		}
		log := p.logger.With().Str("project", project.ProjectID).Int("index", i+1).Logger()
		res := p.processProject(ctx, project, log)
		result.Projects = append(result.Projects, res)
	}

	p.logger.Info().Int("reports", len(result.Reports())).Msg("Usecase: Report run complete.")
	return result
}

func (p *Pipeline) processProject(ctx context.Context, project config.ProjectConfig, log zerolog.Logger) ProjectResult {
	res := ProjectResult{ProjectID: project.ProjectID, Delivery: DeliveryNone}

	since := p.now().AddDate(0, 0, -project.Days)
	snapshot, err := p.fetcher.FetchSnapshot(ctx, project.ProjectID, since)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch project activity")
		res.Outcome = OutcomeFetchFailed
		res.Err = err
		return res
	}
	res.ProjectName = snapshot.ProjectName
	log = log.With().Str("name", snapshot.ProjectName).Logger()

	if snapshot.IsEmpty() {
		log.Info().Int("days", project.Days).Msg("No activity in window, skipping report")
		res.Outcome = OutcomeEmpty
		return res
	}

	narrative := p.summarize(ctx, snapshot, log, &res)

	path, err := p.renderer.Render(snapshot, narrative)
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate report")
		res.Outcome = OutcomeRenderFailed
		res.Err = err
		return res
	}
	res.Outcome = OutcomeReported
	res.ReportPath = path
	log.Info().Str("file", path).Msg("Report generated successfully")

	res.Delivery = p.deliver(ctx, snapshot.ProjectName, path, project.Days, log, &res)
	return res
}

func (p *Pipeline) summarize(ctx context.Context, snapshot *domain.ActivitySnapshot, log zerolog.Logger, res *ProjectResult) string {
	if p.summarizer == nil {
		return ""
	}
	narrative, err := p.summarizer.Summarize(ctx, snapshot)
	if err != nil {
		log.Warn().Err(err).Msg("Summary failed, continuing without narrative")
		res.Err = err
		return ""
	}
	res.Narrative = narrative != ""
	return narrative
}

func (p *Pipeline) deliver(ctx context.Context, projectName, path string, days int, log zerolog.Logger, res *ProjectResult) Delivery {
	if p.notifier == nil {
		log.Debug().Msg("Delivery disabled")
		return DeliverySkipped
	}
	err := p.notifier.Deliver(ctx, projectName, path, days)
	switch {
	case err == nil:
		return DeliveryDelivered
	case errors.Is(err, notify.ErrNotConfigured):
		log.Info().Msg("Discord webhook not configured, skipping delivery")
		return DeliverySkipped
	default:
		log.Warn().Err(err).Msg("Failed to deliver report")
		res.Err = err
		return DeliveryFailed
	}
}
