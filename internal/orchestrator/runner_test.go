package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRunnerRejectsOverlappingRuns(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	r := NewRunner(context.Background(), func(context.Context) (Report, error) {
		close(started)
		<-release
		return Report{RunID: "run-1", Documents: 2}, nil
	}, zaptest.NewLogger(t))

	_, ok := r.Latest()
	assert.False(t, ok)

	require.NoError(t, r.Start())
	<-started
	assert.True(t, r.Running())
	assert.ErrorIs(t, r.Start(), ErrRunInProgress)

	close(release)
	r.Wait()

	assert.False(t, r.Running())
	report, ok := r.Latest()
	require.True(t, ok)
	require.NoError(t, r.LastError())
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 2, report.Documents)
}

func TestRunnerKeepsReportOnOutputFailure(t *testing.T) {
	t.Parallel()

	calls := 0
	r := NewRunner(context.Background(), func(context.Context) (Report, error) {
		calls++
		if calls == 1 {
			return Report{}, errors.New("generate run id")
		}
		return Report{RunID: "run-2"}, errors.New("write output: disk full")
	}, nil)

	require.NoError(t, r.Start())
	r.Wait()
	_, ok := r.Latest()
	assert.False(t, ok)
	assert.EqualError(t, r.LastError(), "generate run id")

	require.NoError(t, r.Start())
	r.Wait()
	report, ok := r.Latest()
	assert.True(t, ok)
	assert.Equal(t, "run-2", report.RunID)
	assert.ErrorContains(t, r.LastError(), "disk full")
}

func TestRunnerPassesBaseContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRunner(ctx, func(ctx context.Context) (Report, error) {
		return Report{RunID: "r"}, ctx.Err()
	}, nil)

	require.NoError(t, r.Start())
	r.Wait()
	assert.ErrorIs(t, r.LastError(), context.Canceled)
}
