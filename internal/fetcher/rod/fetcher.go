// Package rodfetcher renders pages with go-rod as a second, independently
// launched browser strategy.
package rodfetcher

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/JakeFAU/changelog-watch/internal/htmltext"
)

// Name is the strategy name registered for this fetcher.
const Name = "rod"

const (
	defaultTimeout = 45 * time.Second
	idleQuiet      = 500 * time.Millisecond
)

// Config controls browser launch and navigation.
type Config struct {
	Headless bool
	// Bin overrides the browser binary. Empty uses rod's managed browser.
	Bin string
	// ControlURL connects to an already running browser instead of launching one.
	ControlURL      string
	Timeout         time.Duration
	IdleTimeout     time.Duration
	UserAgent       string
	AcceptLanguage  string
	MainContentOnly bool
}

// Fetcher implements retrieval.Strategy with a lazily started rod browser.
type Fetcher struct {
	cfg Config

	mu       sync.Mutex
	browser  *rod.Browser
	launched *launcher.Launcher
}

// New returns a fetcher; the browser starts on the first attempt.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = cfg.Timeout / 3
	}
	return &Fetcher{cfg: cfg}
}

// Name implements retrieval.Strategy.
func (f *Fetcher) Name() string { return Name }

// Attempt opens url in a fresh incognito context and converts the rendered DOM to text.
func (f *Fetcher) Attempt(ctx context.Context, rawURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("rod attempt canceled: %w", err)
	}
	browser, err := f.ensureBrowser(ctx)
	if err != nil {
		return "", err
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return "", fmt.Errorf("incognito context: %w", err)
	}
	defer func() { _ = incognito.Close() }()

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	page = page.Context(ctx).Timeout(f.cfg.Timeout)

	if f.cfg.UserAgent != "" || f.cfg.AcceptLanguage != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      f.cfg.UserAgent,
			AcceptLanguage: f.cfg.AcceptLanguage,
		}); err != nil {
			return "", fmt.Errorf("set user agent: %w", err)
		}
	}

	waitIdle := page.Timeout(f.cfg.IdleTimeout).WaitRequestIdle(idleQuiet, nil, nil, nil)
	if err := page.Navigate(rawURL); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load: %w", err)
	}
	// Returns on idle or when IdleTimeout elapses; either way the page is captured.
	waitIdle()

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}

	opts := htmltext.Options{MainContentOnly: f.cfg.MainContentOnly}
	if info, err := page.Info(); err == nil {
		if u, err := url.Parse(info.URL); err == nil {
			opts.PageURL = u
		}
	}
	return htmltext.ToMarkdown(html, opts)
}

// Close shuts the browser down if it was started.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if f.browser != nil {
		err = f.browser.Close()
		f.browser = nil
	}
	if f.launched != nil {
		f.launched.Cleanup()
		f.launched = nil
	}
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

func (f *Fetcher) ensureBrowser(ctx context.Context) (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser != nil {
		return f.browser, nil
	}

	controlURL := f.cfg.ControlURL
	var l *launcher.Launcher
	if controlURL == "" {
		l = f.launcher()
		u, err := l.Context(ctx).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
	}

	// The browser outlives the attempt that started it.
	browser := rod.New().ControlURL(controlURL).Context(context.WithoutCancel(ctx))
	if err := browser.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	f.browser = browser
	f.launched = l
	return browser, nil
}

func (f *Fetcher) launcher() *launcher.Launcher {
	l := launcher.New().Headless(f.cfg.Headless).Leakless(false)
	if f.cfg.Bin != "" {
		l = l.Bin(f.cfg.Bin)
	}
	return l.Set("disable-blink-features", "AutomationControlled")
}
