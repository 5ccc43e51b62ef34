// Package htmltext turns fetched pages into compact markdown-ish text for summarization.
package htmltext

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// minArticleRunes is the shortest readability extraction accepted before
// falling back to the whole page.
const minArticleRunes = 200

var (
	base64ImageMarkdown = regexp.MustCompile(`!\[[^\]]*\]\(data:image/[^)]*\)`)
	base64ImageURI      = regexp.MustCompile(`data:image/[a-zA-Z0-9.+-]+;base64,[A-Za-z0-9+/=]+`)
	inlineSpace         = regexp.MustCompile(`[ \t\f\v\p{Zs}]+`)
)

// Options tunes ToMarkdown.
type Options struct {
	// MainContentOnly runs a readability pass first and converts only the article body.
	MainContentOnly bool
	// PageURL resolves relative references during readability extraction. Optional.
	PageURL *url.URL
}

// Decode converts body to UTF-8 using the charset in contentType, or by
// sniffing meta tags when the header has none.
func Decode(body []byte, contentType string) (string, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return "", fmt.Errorf("charset reader: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decode body: %w", err)
	}
	return string(out), nil
}

// IsHTML reports whether a response should be converted from HTML.
// Missing content types are sniffed from the body.
func IsHTML(contentType, body string) bool {
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			return mediaType == "text/html" || mediaType == "application/xhtml+xml"
		}
	}
	head := strings.ToLower(strings.TrimSpace(body))
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.HasPrefix(head, "<!doctype html") || strings.Contains(head, "<html") || strings.Contains(head, "<body")
}

// ToMarkdown renders rawHTML as markdown text. Links keep their text only,
// images are dropped, and whitespace is normalized line by line.
func ToMarkdown(rawHTML string, opts Options) (string, error) {
	source := rawHTML
	if opts.MainContentOnly {
		if article, ok := extractArticle(rawHTML, opts.PageURL); ok {
			source = article
		}
	}

	page, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	page.Find("head, script, style, noscript, svg, iframe, template").Remove()
	stripped, err := goquery.OuterHtml(page.Selection)
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}

	sanitized := bluemonday.UGCPolicy().Sanitize(stripped)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(sanitized))
	if err != nil {
		return "", fmt.Errorf("parse sanitized html: %w", err)
	}

	w := &writer{}
	for _, n := range doc.Nodes {
		w.walk(n)
	}
	return NormalizeWhitespace(RemoveBase64Images(w.String())), nil
}

// NormalizeWhitespace trims every line and drops blank ones.
func NormalizeWhitespace(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(inlineSpace.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// RemoveBase64Images strips inline data URI images, which are large and carry no text.
func RemoveBase64Images(text string) string {
	text = base64ImageMarkdown.ReplaceAllString(text, "")
	return base64ImageURI.ReplaceAllString(text, "")
}

func extractArticle(rawHTML string, pageURL *url.URL) (string, bool) {
	article, err := readability.FromReader(strings.NewReader(rawHTML), pageURL)
	if err != nil {
		return "", false
	}
	var text strings.Builder
	if err := article.RenderText(&text); err != nil {
		return "", false
	}
	if utf8.RuneCountInString(strings.TrimSpace(text.String())) < minArticleRunes {
		return "", false
	}
	var buf strings.Builder
	if err := article.RenderHTML(&buf); err != nil {
		return "", false
	}
	out := strings.TrimSpace(buf.String())
	return out, out != ""
}

var skipped = map[string]bool{
	"script": true, "style": true, "noscript": true, "svg": true,
	"iframe": true, "head": true, "img": true, "picture": true,
	"video": true, "audio": true, "template": true, "button": true,
	"form": true, "input": true, "select": true, "textarea": true,
}

var blocks = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"header": true, "footer": true, "nav": true, "aside": true, "ul": true,
	"ol": true, "dl": true, "dt": true, "dd": true, "table": true, "thead": true,
	"tbody": true, "tr": true, "blockquote": true, "figure": true,
	"figcaption": true, "details": true, "summary": true,
}

type writer struct {
	b   strings.Builder
	pre int
}

func (w *writer) String() string { return w.b.String() }

func (w *writer) newline() { w.b.WriteByte('\n') }

func (w *writer) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if w.pre > 0 {
			w.b.WriteString(n.Data)
			return
		}
		w.b.WriteString(collapse(n.Data))
		return
	case html.DocumentNode:
		w.children(n)
		return
	case html.ElementNode:
	default:
		return
	}

	tag := n.Data
	if skipped[tag] {
		return
	}
	switch tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		w.newline()
		w.b.WriteString(strings.Repeat("#", int(tag[1]-'0')))
		w.b.WriteByte(' ')
		w.children(n)
		w.newline()
	case "li":
		w.newline()
		w.b.WriteString("- ")
		w.children(n)
		w.newline()
	case "br", "hr":
		w.newline()
	case "td", "th":
		w.children(n)
		w.b.WriteString(" | ")
	case "pre":
		w.newline()
		w.pre++
		w.children(n)
		w.pre--
		w.newline()
	case "code":
		if w.pre > 0 {
			w.children(n)
			return
		}
		w.b.WriteByte('`')
		w.children(n)
		w.b.WriteByte('`')
	case "strong", "b":
		w.wrap(n, "**")
	case "em", "i":
		w.wrap(n, "_")
	default:
		if blocks[tag] {
			w.newline()
			w.children(n)
			w.newline()
			return
		}
		w.children(n)
	}
}

func (w *writer) wrap(n *html.Node, marker string) {
	inner := &writer{pre: w.pre}
	inner.children(n)
	text := strings.TrimSpace(inner.String())
	if text == "" {
		return
	}
	w.b.WriteString(marker + text + marker + " ")
}

func (w *writer) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

// collapse folds runs of whitespace to one space and keeps a single space at
// either edge so adjacent inline elements stay separated.
func collapse(s string) string {
	if s == "" {
		return ""
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return " "
	}
	out := strings.Join(fields, " ")
	first, _ := utf8.DecodeRuneInString(s)
	last, _ := utf8.DecodeLastRuneInString(s)
	if unicode.IsSpace(first) {
		out = " " + out
	}
	if unicode.IsSpace(last) {
		out += " "
	}
	return out
}
