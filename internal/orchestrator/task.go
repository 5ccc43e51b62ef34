package orchestrator

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/changelog-watch/internal/changelog"
	"github.com/JakeFAU/changelog-watch/internal/history"
	"github.com/JakeFAU/changelog-watch/internal/metrics"
	"github.com/JakeFAU/changelog-watch/internal/summarizer"
)

// process never panics and never returns an error; failures become an empty
// changelog plus a failure notification.
func (o *Orchestrator) process(ctx context.Context, runID string, doc changelog.Document) (res Result) {
	started := time.Now()
	startedAt := o.deps.Clock.Now()
	logger := o.logger.With(zap.String("run_id", runID), zap.String("document", doc.Name), zap.String("url", doc.URL))
	res = Result{Document: doc}

	defer func() {
		if r := recover(); r != nil {
			res = o.fail(ctx, logger, Result{Document: doc, Strategy: res.Strategy, TextLength: res.TextLength},
				fmt.Errorf("panic: %v", r))
		}
		res.Duration = time.Since(started)
		o.record(ctx, logger, runID, res, startedAt)
	}()

	outcome, err := o.deps.Loader.Load(ctx, doc.URL)
	if err != nil {
		return o.fail(ctx, logger, res, err)
	}
	res.Strategy = outcome.Strategy
	text := trimRunes(outcome.Text, o.cfg.TrimLen)
	res.TextLength = utf8.RuneCountInString(text)
	logger.Info("document retrieved", zap.String("strategy", outcome.Strategy), zap.Int("runes", res.TextLength))

	if o.deps.Archiver != nil {
		uri, err := o.deps.Archiver.Save(ctx, runID, doc, outcome.Text)
		if err != nil {
			logger.Warn("archive snapshot failed", zap.Error(err))
		} else {
			res.ArchiveURI = uri
		}
	}

	cl, err := o.deps.Summarizer.Summarize(ctx, text, summarizer.Instructions(o.cfg.Prompt))
	if err != nil {
		return o.fail(ctx, logger, res, err)
	}
	total := len(cl.Changes)
	for _, dropped := range cl.SelectRecent(o.cfg.NumDays, o.deps.Clock.Now()) {
		logger.Warn("dropping change with unparseable date", zap.Error(dropped))
	}
	res.Changelog = cl
	logger.Info("document summarized", zap.Int("changes", total), zap.Int("recent", len(cl.Changes)))
	return res
}

func (o *Orchestrator) fail(ctx context.Context, logger *zap.Logger, res Result, err error) Result {
	logger.Error("unable to extract changelog", zap.Error(err))
	res.Changelog = changelog.Changelog{}
	res.Err = err
	res.Error = err.Error()
	msg := fmt.Sprintf("unable to extract changelog for %s, got: %v", res.Document.Name, err)
	if postErr := o.deps.Notifier.Post(ctx, msg); postErr != nil {
		logger.Error("failure notification failed", zap.Error(postErr))
		if o.deps.Metrics != nil {
			o.deps.Metrics.ObserveNotifyFailure()
		}
	}
	return res
}

func (o *Orchestrator) record(ctx context.Context, logger *zap.Logger, runID string, res Result, startedAt time.Time) {
	status := history.StatusOK
	if res.Failed() {
		status = history.StatusFailed
	}
	if o.deps.Metrics != nil {
		metricStatus := metrics.StatusOK
		if res.Failed() {
			metricStatus = metrics.StatusFailed
		}
		o.deps.Metrics.ObserveDocument(metricStatus, res.Duration)
	}
	if o.deps.History == nil {
		return
	}
	rec := history.Record{
		RunID:        runID,
		DocumentName: res.Document.Name,
		URL:          res.Document.URL,
		Strategy:     res.Strategy,
		TextLength:   res.TextLength,
		ChangeCount:  len(res.Changelog.Changes),
		Status:       status,
		ErrorText:    res.Error,
		StartedAt:    startedAt,
		FinishedAt:   o.deps.Clock.Now(),
	}
	if err := o.deps.History.RecordRun(ctx, rec); err != nil {
		logger.Warn("record history failed", zap.Error(err))
	}
}

// trimRunes cuts text to at most n runes. n <= 0 keeps everything.
func trimRunes(text string, n int) string {
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}
