// Package headless contains retrieval strategies that execute JavaScript via browsers.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/changelog-watch/internal/htmltext"
)

// NameChromedp is the strategy name registered for the chromedp fetcher.
const NameChromedp = "chromedp"

const (
	defaultNavTimeout = 45 * time.Second
	idleQuiet         = 500 * time.Millisecond
	idlePoll          = 100 * time.Millisecond
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	Headless          bool
	MaxParallel       int
	UserAgent         string
	AcceptLanguage    string
	NavigationTimeout time.Duration
	// IdleTimeout bounds the wait for network idle after load. When it
	// elapses the page is captured as-is.
	IdleTimeout     time.Duration
	MainContentOnly bool
}

// Fetcher implements retrieval.Strategy using chromedp and headless Chrome.
type Fetcher struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless fetcher backed by chromedp. Chrome is
// started lazily on the first attempt.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = cfg.NavigationTimeout / 3
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Name implements retrieval.Strategy.
func (f *Fetcher) Name() string { return NameChromedp }

// Close cancels the allocator context and stops Chrome.
func (f *Fetcher) Close() error {
	f.allocCancel()
	return nil
}

// Attempt navigates with a headless browser and converts the rendered DOM to text.
func (f *Fetcher) Attempt(ctx context.Context, rawURL string) (string, error) {
	if err := f.acquire(ctx); err != nil {
		return "", err
	}
	defer f.release()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.navTimeout())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	html, finalURL, err := f.runHeadless(taskCtx, rawURL, meta)
	if err != nil {
		return "", err
	}

	status, _, responseURL := meta.snapshotWithFallbacks(rawURL, finalURL)
	if status >= http.StatusBadRequest {
		return "", fmt.Errorf("status %d", status)
	}

	opts := htmltext.Options{MainContentOnly: f.cfg.MainContentOnly}
	if u, err := url.Parse(responseURL); err == nil {
		opts.PageURL = u
	}
	return htmltext.ToMarkdown(html, opts)
}

func (f *Fetcher) runHeadless(ctx context.Context, rawURL string, meta *responseMeta) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		f.waitNetworkIdle(meta),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			override := emulation.SetUserAgentOverride(f.cfg.UserAgent)
			if f.cfg.AcceptLanguage != "" {
				override = override.WithAcceptLanguage(f.cfg.AcceptLanguage)
			}
			if err := override.Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if f.cfg.AcceptLanguage != "" {
			headers := http.Header{"Accept-Language": {f.cfg.AcceptLanguage}}
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

// waitNetworkIdle waits until no requests have been in flight for idleQuiet.
// Pages that never settle are captured once IdleTimeout elapses.
func (f *Fetcher) waitNetworkIdle(meta *responseMeta) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		deadline := time.NewTimer(f.cfg.IdleTimeout)
		defer deadline.Stop()
		ticker := time.NewTicker(idlePoll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return fmt.Errorf("wait for network idle: %w", ctx.Err())
			case <-deadline.C:
				return nil
			case <-ticker.C:
				if meta.idleFor() >= idleQuiet {
					return nil
				}
			}
		}
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavTimeout
}

type responseMeta struct {
	mu         sync.RWMutex
	status     int
	headers    http.Header
	url        string
	inflight   map[network.RequestID]struct{}
	lastChange time.Time
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers:    http.Header{},
		inflight:   make(map[network.RequestID]struct{}),
		lastChange: time.Now(),
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []interface{}:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) track(id network.RequestID, started bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if started {
		m.inflight[id] = struct{}{}
	} else {
		delete(m.inflight, id)
	}
	m.lastChange = time.Now()
}

// idleFor reports how long the page has had no requests in flight.
func (m *responseMeta) idleFor() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.inflight) > 0 {
		return 0
	}
	return time.Since(m.lastChange)
}

func (m *responseMeta) snapshot() (int, http.Header, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.headers.Clone(), m.url
}

func (m *responseMeta) captureEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventResponseReceived:
		m.capture(e)
	case *network.EventRequestWillBeSent:
		m.track(e.RequestID, true)
	case *network.EventLoadingFinished:
		m.track(e.RequestID, false)
	case *network.EventLoadingFailed:
		m.track(e.RequestID, false)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	status, headers, url := m.snapshot()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}

	if status == 0 {
		status = http.StatusOK
	}
	return status, headers, url
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
