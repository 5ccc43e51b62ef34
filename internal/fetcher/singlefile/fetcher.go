// Package singlefile captures pages with the SingleFile CLI, which drives a
// real browser and inlines the rendered document into one HTML file.
package singlefile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/changelog-watch/internal/htmltext"
)

// Name is the strategy name registered for this fetcher.
const Name = "singlefile"

const (
	defaultPath    = "single-file"
	defaultTimeout = 60 * time.Second
	maxStderr      = 512
)

// ErrCookiesFileMissing is returned when a configured cookies file does not exist.
var ErrCookiesFileMissing = errors.New("cookies file not found")

// Config controls the SingleFile invocation.
type Config struct {
	Path            string
	CookiesFile     string
	Timeout         time.Duration
	Headless        bool
	MainContentOnly bool
}

// Fetcher implements retrieval.Strategy by shelling out to SingleFile.
type Fetcher struct {
	cfg Config
}

// New returns a fetcher with defaults applied.
func New(cfg Config) *Fetcher {
	if cfg.Path == "" {
		cfg.Path = defaultPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Fetcher{cfg: cfg}
}

// Name implements retrieval.Strategy.
func (f *Fetcher) Name() string { return Name }

// Attempt saves url into a temporary file and converts it to text.
func (f *Fetcher) Attempt(ctx context.Context, url string) (string, error) {
	dir, err := os.MkdirTemp("", "changelog-singlefile-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	out := filepath.Join(dir, "page.html")
	args, err := f.args(url, out)
	if err != nil {
		return "", err
	}

	runCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, f.cfg.Path, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := runCtx.Err(); ctxErr != nil {
			return "", fmt.Errorf("single-file timed out: %w", ctxErr)
		}
		return "", fmt.Errorf("single-file failed: %w: %s", err, tail(stderr.String()))
	}

	body, err := os.ReadFile(out)
	if err != nil {
		return "", fmt.Errorf("read single-file output: %w", err)
	}
	html, err := htmltext.Decode(body, "text/html")
	if err != nil {
		return "", err
	}
	return htmltext.ToMarkdown(html, htmltext.Options{MainContentOnly: f.cfg.MainContentOnly})
}

func (f *Fetcher) args(url, out string) ([]string, error) {
	var args []string
	if f.cfg.CookiesFile != "" {
		if _, err := os.Stat(f.cfg.CookiesFile); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrCookiesFileMissing, f.cfg.CookiesFile)
		}
		args = append(args, "--browser-cookies-file="+f.cfg.CookiesFile)
	}
	args = append(args,
		"--browser-load-max-time="+strconv.FormatInt(f.cfg.Timeout.Milliseconds(), 10),
		"--browser-headless="+strconv.FormatBool(f.cfg.Headless),
		"--filename-conflict-action=overwrite",
		url,
		out,
	)
	return args, nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		s = s[len(s)-maxStderr:]
	}
	return s
}
