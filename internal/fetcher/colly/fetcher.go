// Package collyfetcher implements plain and browser-mimicking HTTP retrieval strategies using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	neturl "net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"

	"github.com/JakeFAU/changelog-watch/internal/headless/detector"
	"github.com/JakeFAU/changelog-watch/internal/htmltext"
)

// Strategy names registered by this package.
const (
	NameDirect  = "direct"
	NameStealth = "stealth"
)

const defaultTimeout = 30 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent       string
	AcceptLanguage  string
	Timeout         time.Duration
	MainContentOnly bool
	// Detector rejects pages that only render with JavaScript so the chain can
	// fall through to a browser strategy. Optional.
	Detector ShellDetector
}

// ShellDetector recognizes unrendered client-side application pages.
type ShellDetector interface {
	NeedsBrowser(body []byte, text string) bool
}

// Fetcher implements retrieval.Strategy using the Colly collector.
type Fetcher struct {
	name      string
	stealth   bool
	cfg       Config
	transport http.RoundTripper
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type page struct {
	body        []byte
	contentType string
	finalURL    string
}

// NewDirect builds a single plain GET strategy.
func NewDirect(cfg Config) *Fetcher {
	return &Fetcher{name: NameDirect, cfg: cfg, transport: newHTTPTransport()}
}

// NewStealth builds a strategy that presents browser-like headers, a rotating
// user agent, a referer, and a per-attempt cookie jar.
func NewStealth(cfg Config) *Fetcher {
	return &Fetcher{name: NameStealth, stealth: true, cfg: cfg, transport: newHTTPTransport()}
}

// Name implements retrieval.Strategy.
func (f *Fetcher) Name() string { return f.name }

// Attempt fetches url and converts the response to text.
func (f *Fetcher) Attempt(ctx context.Context, url string) (string, error) {
	var (
		result   page
		fetchErr error
	)
	collector, err := f.buildCollector(ctx, &result, &fetchErr)
	if err != nil {
		return "", err
	}
	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return "", err
	}
	return f.toText(result)
}

func (f *Fetcher) buildCollector(ctx context.Context, result *page, fetchErr *error) (*colly.Collector, error) {
	collector := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.WithTransport(f.transport)
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	collector.SetRequestTimeout(timeout)

	if f.stealth {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		collector.SetCookieJar(jar)
		if f.cfg.UserAgent == "" {
			extensions.RandomUserAgent(collector)
		}
		extensions.Referer(collector)
	}

	f.configureCollectorHooks(collector, result, fetchErr)
	return collector, nil
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *page, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		f.setHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = page{
			body:     append([]byte(nil), r.Body...),
			finalURL: r.Request.URL.String(),
		}
		if r.Headers != nil {
			result.contentType = r.Headers.Get("Content-Type")
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func (f *Fetcher) setHeaders(r *colly.Request) {
	if f.cfg.AcceptLanguage != "" {
		r.Headers.Set("Accept-Language", f.cfg.AcceptLanguage)
	}
	if !f.stealth {
		return
	}
	r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if r.Headers.Get("Accept-Language") == "" {
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	}
	r.Headers.Set("Upgrade-Insecure-Requests", "1")
	r.Headers.Set("Sec-Fetch-Dest", "document")
	r.Headers.Set("Sec-Fetch-Mode", "navigate")
	r.Headers.Set("Sec-Fetch-Site", "none")
	r.Headers.Set("Sec-Fetch-User", "?1")
}

func (f *Fetcher) toText(p page) (string, error) {
	body, err := htmltext.Decode(p.body, p.contentType)
	if err != nil {
		return "", err
	}
	if !htmltext.IsHTML(p.contentType, body) {
		return htmltext.NormalizeWhitespace(htmltext.RemoveBase64Images(body)), nil
	}
	opts := htmltext.Options{MainContentOnly: f.cfg.MainContentOnly}
	if u, err := neturl.Parse(p.finalURL); err == nil {
		opts.PageURL = u
	}
	text, err := htmltext.ToMarkdown(body, opts)
	if err != nil {
		return "", err
	}
	if f.cfg.Detector != nil && f.cfg.Detector.NeedsBrowser(p.body, text) {
		return "", detector.ErrNeedsBrowser
	}
	return text, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
