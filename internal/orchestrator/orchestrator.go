// Package orchestrator runs one monitoring pass over every configured document.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/changelog-watch/internal/changelog"
	"github.com/JakeFAU/changelog-watch/internal/history"
	"github.com/JakeFAU/changelog-watch/internal/notifier"
	"github.com/JakeFAU/changelog-watch/internal/output"
	"github.com/JakeFAU/changelog-watch/internal/retrieval"
	"github.com/JakeFAU/changelog-watch/internal/seen"
	"github.com/JakeFAU/changelog-watch/internal/summarizer"
)

// Loader retrieves page text for a URL.
type Loader interface {
	Load(ctx context.Context, url string) (retrieval.Outcome, error)
}

// Archiver keeps a copy of retrieved text.
type Archiver interface {
	Save(ctx context.Context, runID string, doc changelog.Document, text string) (string, error)
}

// Clock supplies "today" for the recency filter.
type Clock interface {
	Now() time.Time
}

// IDGenerator issues run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Metrics receives run-level observations.
type Metrics interface {
	ObserveDocument(status string, duration time.Duration)
	ObserveNotified(n int)
	ObserveSuppressed(n int)
	ObserveNotifyFailure()
	ObserveRunFinished(at time.Time)
}

// Deps are the collaborators of a run. Seen, Archiver, History and Metrics are optional.
type Deps struct {
	Loader     Loader
	Summarizer summarizer.Summarizer
	Notifier   notifier.Notifier
	Output     output.Writer
	Seen       seen.Store
	Archiver   Archiver
	History    history.Recorder
	Metrics    Metrics
	Clock      Clock
	IDs        IDGenerator
	Logger     *zap.Logger
}

// Config tunes a run.
type Config struct {
	// NumDays is the recency window; changes older than today minus NumDays are dropped.
	NumDays int
	// TrimLen caps the text handed to the summarizer, in runes. Zero disables trimming.
	TrimLen int
	// Prompt overrides summarizer.DefaultPrompt.
	Prompt string
	// Concurrency bounds in-flight documents. Zero means one goroutine per document.
	Concurrency int
}

// Result is the outcome of one document task.
type Result struct {
	Document   changelog.Document  `json:"document"`
	Changelog  changelog.Changelog `json:"changelog"`
	Strategy   string              `json:"strategy,omitempty"`
	TextLength int                 `json:"text_length"`
	ArchiveURI string              `json:"archive_uri,omitempty"`
	Error      string              `json:"error,omitempty"`
	Duration   time.Duration       `json:"duration"`
	Err        error               `json:"-"`
}

// Failed reports whether retrieval or summarization failed.
func (r Result) Failed() bool { return r.Err != nil }

// Report summarises a run.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Documents  int       `json:"documents"`
	Failed     int       `json:"failed"`
	Changes    int       `json:"changes"`
	Notified   int       `json:"notified"`
	Suppressed int       `json:"suppressed"`
	Results    []Result  `json:"results"`
}

// Orchestrator fans documents out to tasks and publishes the aggregate.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New validates deps and returns an Orchestrator.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	switch {
	case deps.Loader == nil:
		return nil, fmt.Errorf("loader is required")
	case deps.Summarizer == nil:
		return nil, fmt.Errorf("summarizer is required")
	case deps.Notifier == nil:
		return nil, fmt.Errorf("notifier is required")
	case deps.Output == nil:
		return nil, fmt.Errorf("output writer is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	if cfg.NumDays < 0 {
		return nil, fmt.Errorf("num_days must be >= 0")
	}
	if cfg.TrimLen < 0 {
		return nil, fmt.Errorf("trim_len must be >= 0")
	}
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("concurrency must be >= 0")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{deps: deps, cfg: cfg, logger: logger.Named("orchestrator")}, nil
}

// Run processes docs concurrently, writes the output file once and notifies.
// The error is non-nil only when the output file cannot be written; document
// failures are reported in the Report.
func (o *Orchestrator) Run(ctx context.Context, docs []changelog.Document) (Report, error) {
	runID, err := o.deps.IDs.NewID()
	if err != nil {
		return Report{}, fmt.Errorf("generate run id: %w", err)
	}
	report := Report{RunID: runID, StartedAt: o.deps.Clock.Now(), Documents: len(docs)}
	logger := o.logger.With(zap.String("run_id", runID))
	logger.Info("run started", zap.Int("documents", len(docs)))

	results := make([]Result, len(docs))
	var g errgroup.Group
	if o.cfg.Concurrency > 0 {
		g.SetLimit(o.cfg.Concurrency)
	}
	for i, doc := range docs {
		g.Go(func() error {
			results[i] = o.process(ctx, runID, doc)
			return nil
		})
	}
	_ = g.Wait()
	report.Results = results

	sections := make([]string, 0, len(results))
	for _, res := range results {
		sections = append(sections, changelog.RenderMarkdown(res.Document, res.Changelog))
		if res.Failed() {
			report.Failed++
		}
		report.Changes += len(res.Changelog.Changes)
	}
	if err := o.deps.Output.Write(changelog.RenderFile(sections)); err != nil {
		report.FinishedAt = o.deps.Clock.Now()
		return report, fmt.Errorf("write output: %w", err)
	}

	report.Notified, report.Suppressed = o.notify(ctx, runID, results, logger)
	report.FinishedAt = o.deps.Clock.Now()
	if o.deps.Metrics != nil {
		o.deps.Metrics.ObserveNotified(report.Notified)
		o.deps.Metrics.ObserveSuppressed(report.Suppressed)
		o.deps.Metrics.ObserveRunFinished(report.FinishedAt)
	}
	logger.Info("run finished",
		zap.Int("documents", report.Documents),
		zap.Int("failed", report.Failed),
		zap.Int("changes", report.Changes),
		zap.Int("notified", report.Notified),
		zap.Int("suppressed", report.Suppressed),
	)
	return report, nil
}
