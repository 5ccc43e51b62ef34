package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/changelog-watch/internal/changelog"
)

// notify posts every non-empty changelog. With a seen-store, changes already
// announced are filtered out and posted keys are marked only after the post
// succeeds. A store error turns dedup off for the rest of the run.
func (o *Orchestrator) notify(ctx context.Context, runID string, results []Result, logger *zap.Logger) (notified, suppressed int) {
	dedup := o.deps.Seen != nil
	for _, res := range results {
		if res.Failed() || res.Changelog.Empty() {
			continue
		}
		cl := res.Changelog
		var keys []string
		if dedup {
			var skipped int
			cl, keys, skipped, dedup = o.filterSeen(ctx, res.Document, cl, logger)
			suppressed += skipped
		}
		if cl.Empty() {
			logger.Debug("nothing new to announce", zap.String("document", res.Document.Name))
			continue
		}
		if err := o.deps.Notifier.Post(ctx, changelog.RenderSlack(res.Document, cl)); err != nil {
			logger.Error("notification failed", zap.String("document", res.Document.Name), zap.Error(err))
			if o.deps.Metrics != nil {
				o.deps.Metrics.ObserveNotifyFailure()
			}
			continue
		}
		notified += len(cl.Changes)
		for _, key := range keys {
			if err := o.deps.Seen.Set(ctx, key, runID); err != nil {
				logger.Warn("mark seen failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return notified, suppressed
}

// filterSeen drops changes whose key exists or repeats a key already kept in
// this changelog. On a store error the current and remaining changes pass
// through unfiltered, no keys are returned and ok is false.
func (o *Orchestrator) filterSeen(
	ctx context.Context,
	doc changelog.Document,
	cl changelog.Changelog,
	logger *zap.Logger,
) (out changelog.Changelog, keys []string, suppressed int, ok bool) {
	out = changelog.Changelog{Upcoming: cl.Upcoming}
	pending := make(map[string]struct{}, len(cl.Changes))
	for i, change := range cl.Changes {
		key := changelog.SeenKey(doc, change)
		if _, dup := pending[key]; dup {
			suppressed++
			continue
		}
		exists, err := o.deps.Seen.Exists(ctx, key)
		if err != nil {
			logger.Warn("seen store unavailable, deduplication disabled for this run", zap.Error(err))
			out.Changes = append(out.Changes, cl.Changes[i:]...)
			return out, nil, suppressed, false
		}
		if exists {
			suppressed++
			continue
		}
		pending[key] = struct{}{}
		out.Changes = append(out.Changes, change)
		keys = append(keys, key)
	}
	return out, keys, suppressed, true
}
