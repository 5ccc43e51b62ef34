package changelog

import (
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NoChangesPlaceholder is written under a document heading when nothing recent was found.
const NoChangesPlaceholder = "_No recent changes._"

var strict = bluemonday.StrictPolicy()

// RenderMarkdown renders one output-file section for doc.
func RenderMarkdown(doc Document, cl Changelog) string {
	return render(doc, cl, markdownStyle)
}

// RenderSlack renders a chat message for doc using Slack mrkdwn links.
func RenderSlack(doc Document, cl Changelog) string {
	return render(doc, cl, slackStyle)
}

// RenderFile joins the per-document sections of a whole run.
func RenderFile(sections []string) string {
	return strings.Join(sections, "\n\n")
}

type style struct {
	heading func(name, url string) string
	date    func(date string) string
}

var markdownStyle = style{
	heading: func(name, url string) string { return fmt.Sprintf("# [%s](%s)", name, url) },
	date:    func(date string) string { return fmt.Sprintf("📅*%s*", date) },
}

var slackStyle = style{
	heading: func(name, url string) string { return fmt.Sprintf("*<%s|%s>*", url, name) },
	date:    func(date string) string { return fmt.Sprintf("📅*<%s>*", date) },
}

func render(doc Document, cl Changelog, s style) string {
	var parts []string
	if doc.Name != "" && doc.URL != "" {
		parts = append(parts, s.heading(doc.Name, doc.URL))
	}
	if upcoming := clean(cl.Upcoming); upcoming != "" {
		parts = append(parts, "🔜*Upcoming Changes*", upcoming)
	}
	for _, change := range cl.Changes {
		parts = append(parts, renderChange(change, s))
	}
	if len(cl.Changes) == 0 && clean(cl.Upcoming) == "" {
		parts = append(parts, NoChangesPlaceholder)
	}
	return strings.Join(parts, "\n\n")
}

func renderChange(change Change, s style) string {
	lines := []string{s.date(change.Date)}
	if content := clean(change.Content); content != "" {
		lines = append(lines, content)
	}
	if len(change.Keywords) > 0 {
		tags := make([]string, 0, len(change.Keywords))
		for _, kw := range change.Keywords {
			if kw = clean(kw); kw != "" {
				tags = append(tags, "🏷️"+kw)
			}
		}
		lines = append(lines, strings.Join(tags, " "))
	}
	if len(change.Categories) > 0 {
		cats := make([]string, 0, len(change.Categories))
		for _, c := range change.Categories {
			cats = append(cats, c.Emoji()+string(c))
		}
		lines = append(lines, strings.Join(cats, " "))
	}
	return strings.Join(lines, "\n\n")
}

// clean strips any markup the summarizer echoed back from the page.
func clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}
