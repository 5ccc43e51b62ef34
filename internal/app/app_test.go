package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/changelog-watch/internal/changelog"
	"github.com/JakeFAU/changelog-watch/internal/config"
	"github.com/JakeFAU/changelog-watch/internal/notifier"
	"github.com/JakeFAU/changelog-watch/internal/policy/ratelimit"
)

type upstream struct {
	*httptest.Server
	mu    sync.Mutex
	posts []string
}

func newUpstream(t *testing.T, today string) *upstream {
	t.Helper()
	u := &upstream{}
	mux := http.NewServeMux()
	mux.HandleFunc("/changelog", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><body><h1>Changelog</h1><h2>%s</h2><ul><li>Added webhooks</li></ul></body></html>", today)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusInternalServerError)
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, _ *http.Request) {
		content := fmt.Sprintf(`{"changes":[{"date":%q,"content":"Added webhooks","keywords":["webhooks"],"categories":["feature"]}],"upcoming_changes":""}`, today)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-test",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	})
	mux.HandleFunc("/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		u.mu.Lock()
		u.posts = append(u.posts, r.PostForm.Get("text"))
		u.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1700000000.000100"}`))
	})
	u.Server = httptest.NewServer(mux)
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) Posts() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.posts...)
}

func testConfig(t *testing.T, srvURL string) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Docs = []changelog.Document{
		{Name: "Widget API", URL: srvURL + "/changelog"},
		{Name: "Gadget SDK", URL: srvURL + "/broken"},
	}
	cfg.Retrieval.Strategies = []string{"direct"}
	cfg.Retrieval.HTTPTimeout = 5 * time.Second
	cfg.Timezone = "UTC"
	cfg.Summarizer.Provider = config.ProviderOpenAI
	cfg.Summarizer.OpenAI.APIKey = "sk-test"
	cfg.Summarizer.OpenAI.BaseURL = srvURL + "/v1"
	cfg.Summarizer.OpenAI.AzureAPIKey = ""
	cfg.Seen.RedisURL = ""
	cfg.Notifier.Slack = config.SlackConfig{Token: "xoxb-test", Channel: "#releases", APIURL: srvURL + "/"}
	cfg.NotifyChannel = ""
	cfg.Notifier.PubSub = config.PubSubConfig{}
	cfg.History.DSN = ""
	cfg.Archive.Provider = config.ArchiveNone
	return cfg
}

func TestRunOnceEndToEnd(t *testing.T) {
	t.Parallel()

	today := time.Now().UTC().Format(changelog.DateLayout)
	srv := newUpstream(t, today)
	mr := miniredis.RunT(t)
	dir := t.TempDir()

	cfg := testConfig(t, srv.URL)
	cfg.Seen.RedisURL = "redis://" + mr.Addr()
	cfg.Archive.Provider = config.ArchiveLocal
	cfg.Archive.Local.BaseDir = filepath.Join(dir, "archive")
	cfg.Archive.Prefix = "snapshots"
	cfg.Metrics.Textfile = filepath.Join(dir, "changelog.prom")
	outPath := filepath.Join(dir, "changelog.md")

	a, err := Build(context.Background(), cfg, zaptest.NewLogger(t), outPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	report, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Documents)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Changes)
	assert.Equal(t, 1, report.Notified)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "direct", report.Results[0].Strategy)
	assert.NotEmpty(t, report.Results[0].ArchiveURI)

	out, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(out), "# [Widget API]("+srv.URL+"/changelog)")
	assert.Contains(t, string(out), "Added webhooks")

	snapshots, err := filepath.Glob(filepath.Join(dir, "archive", "snapshots", "widget-api", report.RunID, "*.md"))
	require.NoError(t, err)
	assert.Len(t, snapshots, 1)

	prom, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "changelog_documents_total")

	posts := srv.Posts()
	require.Len(t, posts, 2)
	var failures int
	for _, p := range posts {
		if strings.Contains(p, "unable to extract changelog for Gadget SDK") {
			failures++
		}
	}
	assert.Equal(t, 1, failures)

	// The same change is not announced twice.
	second, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Notified)
	assert.Equal(t, 1, second.Suppressed)
	assert.Len(t, srv.Posts(), 3)
}

func TestBuildRejectsUnknownStrategy(t *testing.T) {
	t.Parallel()

	srv := newUpstream(t, "2024-01-01")
	cfg := testConfig(t, srv.URL)
	cfg.Retrieval.Strategies = []string{"direct", "carrier-pigeon"}

	_, err := Build(context.Background(), cfg, zaptest.NewLogger(t), filepath.Join(t.TempDir(), "out.md"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestBuildRequiresOutputPath(t *testing.T) {
	t.Parallel()

	srv := newUpstream(t, "2024-01-01")
	_, err := Build(context.Background(), testConfig(t, srv.URL), nil, "")
	require.Error(t, err)
}

func TestRegistryNames(t *testing.T) {
	t.Parallel()

	reg := newRegistry(config.RetrievalConfig{}, nil)
	assert.ElementsMatch(t, []string{"direct", "stealth", "chromedp", "rod", "singlefile"}, reg.Names())

	strategies, err := reg.Build([]string{"stealth", "direct", "rod", "singlefile"})
	require.NoError(t, err)
	names := make([]string, 0, len(strategies))
	for _, s := range strategies {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"stealth", "direct", "rod", "singlefile"}, names)
}

func TestRegistryWrapsStrategiesWithLimiter(t *testing.T) {
	t.Parallel()

	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: 1})
	strategies, err := newRegistry(config.RetrievalConfig{}, limiter).Build([]string{"direct"})
	require.NoError(t, err)
	require.Len(t, strategies, 1)
	assert.Equal(t, "direct", strategies[0].Name())
	assert.NotEqual(t, "*collyfetcher.Fetcher", fmt.Sprintf("%T", strategies[0]))
}

func TestSetupSummarizer(t *testing.T) {
	t.Parallel()

	s, err := setupSummarizer(context.Background(), config.SummarizerConfig{
		Provider: config.ProviderOpenAI,
		OpenAI:   config.OpenAIConfig{APIKey: "sk-test"},
	})
	require.NoError(t, err)
	assert.NotNil(t, s)

	s, err = setupSummarizer(context.Background(), config.SummarizerConfig{
		Provider: config.ProviderGemini,
		Gemini:   config.GeminiConfig{APIKey: "g-test"},
	})
	require.NoError(t, err)
	assert.NotNil(t, s)

	_, err = setupSummarizer(context.Background(), config.SummarizerConfig{Provider: config.ProviderOpenAI})
	require.Error(t, err)

	_, err = setupSummarizer(context.Background(), config.SummarizerConfig{Provider: "claude"})
	require.EqualError(t, err, `unknown summarizer provider "claude"`)
}

func TestSetupNotifierFallsBackToLog(t *testing.T) {
	t.Parallel()

	a := &App{cfg: config.Config{}, logger: zaptest.NewLogger(t)}
	n, err := setupNotifier(context.Background(), a)
	require.NoError(t, err)
	assert.IsType(t, notifier.Log{}, n)
}

func TestSetupNotifierUsesNotifyChannel(t *testing.T) {
	t.Parallel()

	srv := newUpstream(t, "2024-01-01")
	a := &App{
		cfg: config.Config{
			NotifyChannel: "#override",
			Notifier: config.NotifierConfig{
				Slack: config.SlackConfig{Token: "xoxb-test", APIURL: srv.URL + "/"},
			},
		},
		logger: zaptest.NewLogger(t),
	}
	n, err := setupNotifier(context.Background(), a)
	require.NoError(t, err)
	require.NoError(t, n.Post(context.Background(), "hello"))
	assert.Equal(t, []string{"hello"}, srv.Posts())
}

func TestSetupArchiveNone(t *testing.T) {
	t.Parallel()

	a := &App{cfg: config.Config{Archive: config.ArchiveConfig{Provider: config.ArchiveNone}}, logger: zaptest.NewLogger(t)}
	archiver, err := setupArchive(context.Background(), a)
	require.NoError(t, err)
	assert.Nil(t, archiver)
}

func TestSetupArchiveMemory(t *testing.T) {
	t.Parallel()

	a := &App{cfg: config.Config{Archive: config.ArchiveConfig{Provider: config.ArchiveMemory, Prefix: "snap"}}, logger: zaptest.NewLogger(t)}
	archiver, err := setupArchive(context.Background(), a)
	require.NoError(t, err)
	require.NotNil(t, archiver)

	uri, err := archiver.Save(context.Background(), "run-1", changelog.Document{Name: "Acme API", URL: "https://acme.test"}, "text")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "memory://snap/acme-api/run-1/"), uri)
}
