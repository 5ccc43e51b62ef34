package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	fetcher, err := NewChromedp(Config{MaxParallel: 2, Headless: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = fetcher.Close() })
	require.Equal(t, 2, cap(fetcher.limiter))
	require.Equal(t, defaultNavTimeout, fetcher.cfg.NavigationTimeout)
	require.Equal(t, defaultNavTimeout/3, fetcher.cfg.IdleTimeout)
	require.Equal(t, NameChromedp, fetcher.Name())
}

func TestFetcherNavTimeoutDefault(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{}
	require.Equal(t, defaultNavTimeout, fetcher.navTimeout())
	fetcher.cfg.NavigationTimeout = time.Second
	require.Equal(t, time.Second, fetcher.navTimeout())
}

func TestAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{limiter: make(chan struct{}, 1)}
	require.NoError(t, fetcher.acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, fetcher.acquire(ctx), context.DeadlineExceeded)

	fetcher.release()
	require.NoError(t, fetcher.acquire(context.Background()))
}

func TestToNetworkHeaders(t *testing.T) {
	t.Parallel()

	netHeaders := toNetworkHeaders(http.Header{"X-Test": {"a", "b"}, "Accept-Language": {"en"}, "Empty": nil})
	require.Equal(t, []string{"a", "b"}, netHeaders["X-Test"])
	require.Equal(t, "en", netHeaders["Accept-Language"])
	require.NotContains(t, netHeaders, "Empty")
}

func TestResponseMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  403,
			URL:     "https://example.com/rendered",
			Headers: network.Headers{"X-Request-ID": "abc"},
		},
	})
	status, headers, url := meta.snapshotWithFallbacks("https://req", "")
	require.Equal(t, 403, status)
	require.Equal(t, "abc", headers.Get("X-Request-ID"))
	require.Equal(t, "https://example.com/rendered", url)

	meta = newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{Type: network.ResourceTypeScript, Response: &network.Response{Status: 500}})
	status, _, url = meta.snapshotWithFallbacks("https://req", "https://final")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "https://final", url)
}

func TestResponseMetaTracksInflightRequests(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventRequestWillBeSent{RequestID: "1"})
	meta.captureEvent(&network.EventRequestWillBeSent{RequestID: "2"})
	require.Zero(t, meta.idleFor())

	meta.captureEvent(&network.EventLoadingFinished{RequestID: "1"})
	require.Zero(t, meta.idleFor())

	meta.captureEvent(&network.EventLoadingFailed{RequestID: "2"})
	time.Sleep(20 * time.Millisecond)
	require.Greater(t, meta.idleFor(), time.Duration(0))
}
