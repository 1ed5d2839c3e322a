package migrate

import (
	"context"
	"fmt"
	"strings"

	"jira2redmine/internal/config"
	"jira2redmine/internal/jira"
	"jira2redmine/internal/logging"
	"jira2redmine/internal/redmine"
	"jira2redmine/internal/storage"
	"jira2redmine/internal/telemetry"
)

// Phases selects which pipeline phases a run executes.
type Phases struct {
	Extract   bool
	Transform bool
	Push      bool
}

// ParsePhases resolves the --phases and --skip flags. An empty phases value
// means all three; "jira" is the extraction phase ("extract" is accepted as
// an alias).
func ParsePhases(phases, skip string) (Phases, error) {
	p := Phases{Extract: true, Transform: true, Push: true}
	if phases != "" {
		p = Phases{}
		if err := applyPhaseList(phases, &p, true); err != nil {
			return Phases{}, err
		}
	}
	if skip != "" {
		if err := applyPhaseList(skip, &p, false); err != nil {
			return Phases{}, err
		}
	}
	if !p.Extract && !p.Transform && !p.Push {
		return Phases{}, fmt.Errorf("no phases left to run")
	}
	return p, nil
}

func applyPhaseList(list string, p *Phases, value bool) error {
	for _, name := range strings.Split(list, ",") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "":
		case "jira", "extract":
			p.Extract = value
		case "transform":
			p.Transform = value
		case "push":
			p.Push = value
		default:
			return fmt.Errorf("unknown phase %q (want jira, transform, or push)", name)
		}
	}
	return nil
}

// Options carries the per-run flags into the phase engines.
type Options struct {
	Phases      Phases
	ProjectKey  string
	ReExtract   bool
	DryRun      bool
	ConfirmPush bool
}

// Runner wires the configured clients and store into the selected phases and
// runs them in pipeline order.
type Runner struct {
	Store   *storage.Store
	Jira    *jira.Client
	Redmine *redmine.Client
	Cfg     *config.Config
	Log     *logging.Logger
	Metrics *telemetry.PhaseMetrics
	Opts    Options
}

// Run executes the selected phases in order. The first phase failure aborts
// the run; per-item failures were already absorbed into row state by then.
func (r *Runner) Run(ctx context.Context) error {
	if r.Metrics == nil {
		r.Metrics = telemetry.NewPhaseMetrics()
	}

	if r.Opts.Phases.Extract {
		if err := r.runExtract(ctx); err != nil {
			return fmt.Errorf("extract: %w", err)
		}
	}
	if r.Opts.Phases.Transform {
		if err := r.runTransform(ctx); err != nil {
			return fmt.Errorf("transform: %w", err)
		}
	}
	if r.Opts.Phases.Push {
		if err := r.runPush(ctx); err != nil {
			return fmt.Errorf("push: %w", err)
		}
	}
	return nil
}

func (r *Runner) runExtract(ctx context.Context) error {
	ctx, span := r.Metrics.StartPhase(ctx, "extract")
	e := &Extractor{
		Store:      r.Store,
		Jira:       r.Jira,
		Log:        r.Log,
		Metrics:    r.Metrics,
		Issues:     r.Cfg.Migration.Issues,
		ProjectKey: r.Opts.ProjectKey,
		ReExtract:  r.Opts.ReExtract,
	}
	sum, err := e.Run(ctx)
	r.Metrics.EndPhase(span, err)
	if sum != nil {
		r.Log.Summary("extract", sum.Buckets())
	}
	return err
}

func (r *Runner) runTransform(ctx context.Context) error {
	ctx, span := r.Metrics.StartPhase(ctx, "transform")
	t := &Transformer{
		Store:       r.Store,
		Log:         r.Log,
		Metrics:     r.Metrics,
		Issues:      r.Cfg.Migration.Issues,
		JiraBaseURL: r.Cfg.Attachments.JiraBaseURL,
	}
	sum, err := t.Run(ctx)
	r.Metrics.EndPhase(span, err)
	if sum != nil {
		r.Log.Summary("transform", sum.Buckets())
	}
	return err
}

func (r *Runner) runPush(ctx context.Context) error {
	ctx, span := r.Metrics.StartPhase(ctx, "push")
	p := &Pusher{
		Store:          r.Store,
		Redmine:        r.Redmine,
		Log:            r.Log,
		Metrics:        r.Metrics,
		DryRun:         r.Opts.DryRun,
		ConfirmPush:    r.Opts.ConfirmPush,
		Extended:       r.Redmine.Extended,
		SharePointNote: r.Cfg.SharePoint.LinkNote,
	}
	sum, err := p.Run(ctx)
	r.Metrics.EndPhase(span, err)
	if sum != nil {
		r.Log.Summary("push", sum.Buckets())
	}
	return err
}
