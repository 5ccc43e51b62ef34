package singlefile

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeSingleFile writes a script that mimics the CLI: the last argument is the
// output file and the rest are recorded to args.txt. Tests that exec it stay
// serial to avoid ETXTBSY from concurrent forks.
func fakeSingleFile(t *testing.T, body string) (string, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a POSIX shell")
	}
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")
	script := "#!/bin/sh\nfor a in \"$@\"; do echo \"$a\" >> " + argsFile + "; out=\"$a\"; done\n" + body + "\n"
	path := filepath.Join(dir, "single-file")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path, argsFile
}

func TestAttemptConvertsSavedPage(t *testing.T) {
	bin, argsFile := fakeSingleFile(t, `printf '<html><body><h2>2024-10-18</h2><p>Added <img src="data:image/png;base64,AAAA">feature</p></body></html>' > "$out"`)
	cookies := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(cookies, []byte("[]"), 0o600))

	f := New(Config{Path: bin, CookiesFile: cookies, Timeout: 5 * time.Second, Headless: true})
	text, err := f.Attempt(context.Background(), "https://example.com/changelog")

	require.NoError(t, err)
	require.Equal(t, "## 2024-10-18\nAdded feature", text)

	recorded, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	require.Contains(t, string(recorded), "--browser-cookies-file="+cookies)
	require.Contains(t, string(recorded), "--browser-load-max-time=5000")
	require.Contains(t, string(recorded), "--browser-headless=true")
	require.Contains(t, string(recorded), "--filename-conflict-action=overwrite")
	require.Contains(t, string(recorded), "https://example.com/changelog")
}

func TestAttemptCommandFailure(t *testing.T) {
	bin, _ := fakeSingleFile(t, `echo "browser crashed" >&2; exit 3`)

	_, err := New(Config{Path: bin, Timeout: 5 * time.Second}).Attempt(context.Background(), "https://example.com")

	require.Error(t, err)
	require.Contains(t, err.Error(), "browser crashed")
}

func TestAttemptTimeout(t *testing.T) {
	bin, _ := fakeSingleFile(t, `exec sleep 5`)

	start := time.Now()
	_, err := New(Config{Path: bin, Timeout: 100 * time.Millisecond}).Attempt(context.Background(), "https://example.com")

	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 4*time.Second)
}

func TestAttemptMissingCookiesFile(t *testing.T) {
	t.Parallel()

	f := New(Config{Path: "/nonexistent/single-file", CookiesFile: filepath.Join(t.TempDir(), "missing.json")})
	_, err := f.Attempt(context.Background(), "https://example.com")

	require.ErrorIs(t, err, ErrCookiesFileMissing)
}

func TestAttemptMissingBinary(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Path: filepath.Join(t.TempDir(), "nope")}).Attempt(context.Background(), "https://example.com")
	require.Error(t, err)
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	require.Equal(t, "single-file", f.cfg.Path)
	require.Equal(t, 60*time.Second, f.cfg.Timeout)
	require.Equal(t, Name, f.Name())
}
