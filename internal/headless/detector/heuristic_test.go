package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeuristic_NeedsBrowser_EmptyBody(t *testing.T) {
	t.Parallel()

	require.True(t, NewHeuristic(100).NeedsBrowser([]byte("  "), ""))
}

func TestHeuristic_NeedsBrowser_SPAMarkers(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.True(t, h.NeedsBrowser([]byte(`<div id="__next"></div>`), "Loading"))
	require.True(t, h.NeedsBrowser([]byte(`<app-root ng-version="17.0.0"></app-root>`), ""))
}

func TestHeuristic_NeedsBrowser_ScriptDensity(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000)
	require.True(t, h.NeedsBrowser([]byte(`<html><script>var a=1;</script><p>t</p></html>`), "t"))
}

func TestHeuristic_NeedsBrowser_NoscriptHint(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><body><noscript>You need to enable JavaScript to run this app.</noscript></body></html>`)
	require.True(t, NewHeuristic(0).NeedsBrowser(body, "You need to enable JavaScript to run this app."))
}

func TestHeuristic_NeedsBrowser_AcceptsLongText(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("Added webhooks. ", 20)
	body := []byte(`<div id="root"><script>hydrate()</script>` + text + `</div>`)
	require.False(t, NewHeuristic(0).NeedsBrowser(body, text))
}

func TestHeuristic_NeedsBrowser_AcceptsShortStaticPage(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><body><h1>Changelog</h1><h2>2024-10-18</h2><ul><li>Added webhooks</li></ul></body></html>`)
	require.False(t, NewHeuristic(0).NeedsBrowser(body, "# Changelog\n## 2024-10-18\n- Added webhooks"))
}

func TestScriptDensityHigh(t *testing.T) {
	t.Parallel()

	require.False(t, scriptDensityHigh([]byte("")))
	require.False(t, scriptDensityHigh([]byte("<p>plain text only</p>")))
	require.True(t, scriptDensityHigh([]byte("<p>x</p><script src=a.js")))
	require.True(t, scriptDensityHigh([]byte("<script>unterminated")))
}
