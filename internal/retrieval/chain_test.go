package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestChainShortCircuitsOnFirstNonEmptyText(t *testing.T) {
	t.Parallel()

	var calls callLog
	stealth := &fakeStrategy{name: "stealth", err: errors.New("connection reset"), calls: &calls}
	direct := &fakeStrategy{name: "direct", text: "", calls: &calls}
	browser := &fakeStrategy{name: "chromedp", text: "# Title\nChangelog body", calls: &calls}
	capture := &fakeStrategy{name: "singlefile", text: "never", calls: &calls}
	observer := &fakeObserver{}

	chain := NewChain([]Strategy{stealth, direct, browser, capture}, observer, zap.NewNop())
	out, err := chain.Load(context.Background(), "https://example.com/changelog")

	require.NoError(t, err)
	require.Equal(t, "# Title\nChangelog body", out.Text)
	require.Equal(t, "chromedp", out.Strategy)
	require.Equal(t, []string{"stealth", "direct", "chromedp"}, calls.names())
	require.Zero(t, capture.count())
	require.Equal(t, []string{"stealth:error", "direct:empty", "chromedp:success"}, observer.outcomes())
}

func TestChainExhaustedInvokesEveryStrategy(t *testing.T) {
	t.Parallel()

	var calls callLog
	boom := errors.New("status 403")
	strategies := []Strategy{
		&fakeStrategy{name: "stealth", err: boom, calls: &calls},
		&fakeStrategy{name: "direct", text: "", calls: &calls},
		&fakeStrategy{name: "chromedp", err: context.DeadlineExceeded, calls: &calls},
	}

	chain := NewChain(strategies, nil, nil)
	_, err := chain.Load(context.Background(), "https://example.com")

	var exhausted *ChainExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, "https://example.com", exhausted.URL)
	require.Len(t, exhausted.Attempts, len(strategies))
	require.Equal(t, len(strategies), len(calls.names()))
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, err, ErrEmptyText)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Contains(t, err.Error(), "https://example.com")

	var serr *Error
	require.ErrorAs(t, err, &serr)
	require.Equal(t, "stealth", serr.Strategy)
}

func TestChainKeepsTypedStrategyErrors(t *testing.T) {
	t.Parallel()

	inner := NewError("singlefile", "https://example.com", errors.New("exit status 1"))
	chain := NewChain([]Strategy{&fakeStrategy{name: "singlefile", err: inner, calls: &callLog{}}}, nil, nil)

	_, err := chain.Load(context.Background(), "https://example.com")

	var exhausted *ChainExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Same(t, inner, exhausted.Attempts[0])
}

func TestChainWithoutStrategies(t *testing.T) {
	t.Parallel()

	_, err := NewChain(nil, nil, nil).Load(context.Background(), "https://example.com")

	var exhausted *ChainExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Contains(t, err.Error(), "no strategies configured")
}

func TestChainStrategies(t *testing.T) {
	t.Parallel()

	chain := NewChain([]Strategy{&fakeStrategy{name: "direct"}, &fakeStrategy{name: "rod"}}, nil, nil)
	require.Equal(t, []string{"direct", "rod"}, chain.Strategies())
}

type callLog struct {
	mu    sync.Mutex
	order []string
}

func (c *callLog) add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = append(c.order, name)
}

func (c *callLog) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

type fakeStrategy struct {
	name  string
	text  string
	err   error
	calls *callLog
	mu    sync.Mutex
	n     int
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Attempt(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	f.n++
	f.mu.Unlock()
	if f.calls != nil {
		f.calls.add(f.name)
	}
	return f.text, f.err
}

func (f *fakeStrategy) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

type fakeObserver struct {
	mu   sync.Mutex
	seen []string
}

func (o *fakeObserver) ObserveAttempt(strategy, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, strategy+":"+outcome)
}

func (o *fakeObserver) outcomes() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.seen...)
}
