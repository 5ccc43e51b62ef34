// Package detector recognizes HTML shells that only render in a browser.
package detector

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrNeedsBrowser is returned by plain HTTP strategies for pages whose
// content is produced by client-side scripts.
var ErrNeedsBrowser = errors.New("page needs a javascript-capable browser")

const defaultTextThreshold = 200

// Heuristic flags short extractions from script-heavy or SPA pages.
type Heuristic struct {
	// TextThreshold is the extracted text length, in runes, at or above which
	// a page is always accepted.
	TextThreshold int
}

// NewHeuristic creates a new detector. A zero threshold uses 200 runes.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = defaultTextThreshold
	}
	return &Heuristic{TextThreshold: threshold}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
}

var noscriptHints = []string{
	"enable javascript",
	"javascript is required",
	"javascript to run this app",
}

// NeedsBrowser reports whether body, whose extracted text is text, looks like
// an unrendered client-side application.
func (h *Heuristic) NeedsBrowser(body []byte, text string) bool {
	if utf8.RuneCountInString(strings.TrimSpace(text)) >= h.TextThreshold {
		return false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	lowerText := strings.ToLower(text)
	for _, hint := range noscriptHints {
		if strings.Contains(lowerText, hint) {
			return true
		}
	}
	if scriptDensityHigh(body) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := strings.Index(lower[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Treat the rest of the document as part of the malformed script.
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		relativeEnd := strings.Index(lower[contentStart:], closeTag)
		var nextSearch int
		if relativeEnd == -1 {
			// Script tag never closes; count the rest.
			nextSearch = total
		} else {
			nextSearch = contentStart + relativeEnd + len(closeTag)
		}

		scriptCoverage += nextSearch - start
		searchPos = nextSearch
	}

	if scriptCoverage == 0 {
		return false
	}
	return scriptCoverage*100/total >= 25
}
