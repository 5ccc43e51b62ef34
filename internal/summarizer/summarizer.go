// Package summarizer defines the LLM collaborator that turns page text into
// structured change records, plus the prompt and schema shared by providers.
package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JakeFAU/changelog-watch/internal/changelog"
)

// Summarizer extracts a changelog from page text.
type Summarizer interface {
	Summarize(ctx context.Context, text, instructions string) (changelog.Changelog, error)
}

// DefaultPrompt is used when no prompt is configured.
const DefaultPrompt = `You will be provided with content from an API documentation page in Markdown format.
Extract up to 10 changes or release notes, prioritizing the most recent dates in the changelog or release notes section.
Also extract upcoming changes: if a heading such as "Upcoming Changes" is present, summarize the content beneath it; otherwise leave the field empty.

Instructions:
- Dates must use the format YYYY-MM-DD (convert "2024-Sep-20" to "2024-09-20"). Dates must be real, not placeholders.
- Only extract dates that have actual changes or release notes associated with them.
- Skip entries without substantive information and dates that serve as examples.
- Use only information present in the input. Do not invent details.

For each entry provide:
- date: the release or change date.
- content: the change details as a short markdown bullet list.
- keywords: relevant keywords summarizing the entry, excluding category names.
- categories: any of BREAKING_CHANGES, NEW_FEATURES, DEPRECATIONS, BUG_FIXES, PERFORMANCE_IMPROVEMENTS, SECURITY_UPDATES.`

// SchemaName names the structured output schema for providers that require one.
const SchemaName = "changelog"

// Schema is the JSON schema of a changelog.Changelog as returned by providers.
var Schema = json.RawMessage(`{
  "type": "object",
  "additionalProperties": false,
  "required": ["changes", "upcoming_changes"],
  "properties": {
    "changes": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["date", "content", "keywords", "categories"],
        "properties": {
          "date": {"type": "string"},
          "content": {"type": "string"},
          "keywords": {"type": "array", "items": {"type": "string"}},
          "categories": {
            "type": "array",
            "items": {"type": "string", "enum": ["BREAKING_CHANGES", "NEW_FEATURES", "DEPRECATIONS", "BUG_FIXES", "PERFORMANCE_IMPROVEMENTS", "SECURITY_UPDATES"]}
          }
        }
      }
    },
    "upcoming_changes": {"type": "string"}
  }
}`)

// Error is returned when a provider call or its response fails.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("summarizer %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Instructions returns instructions, or DefaultPrompt when blank.
func Instructions(instructions string) string {
	if s := strings.TrimSpace(instructions); s != "" {
		return s
	}
	return DefaultPrompt
}

// UserMessage wraps page text the way both providers send it.
func UserMessage(text string) string {
	return "Input:\n\"\"\"\n" + text + "\n\"\"\"\n"
}

// Parse decodes a provider's JSON answer and normalizes it. Unknown
// categories are dropped and strings are trimmed.
func Parse(provider, raw string) (changelog.Changelog, error) {
	raw = stripCodeFence(raw)
	if raw == "" {
		return changelog.Changelog{}, &Error{Provider: provider, Err: fmt.Errorf("empty response")}
	}
	var out changelog.Changelog
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return changelog.Changelog{}, &Error{Provider: provider, Err: fmt.Errorf("decode response: %w", err)}
	}
	out.Upcoming = strings.TrimSpace(out.Upcoming)
	for i := range out.Changes {
		c := &out.Changes[i]
		c.Date = strings.TrimSpace(c.Date)
		c.Content = strings.TrimSpace(c.Content)
		c.Categories = normalizeCategories(c.Categories)
		keywords := c.Keywords[:0]
		for _, kw := range c.Keywords {
			if kw = strings.TrimSpace(kw); kw != "" {
				keywords = append(keywords, kw)
			}
		}
		c.Keywords = keywords
	}
	return out, nil
}

func normalizeCategories(in []changelog.Category) []changelog.Category {
	out := in[:0]
	for _, c := range in {
		norm := changelog.Category(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(string(c)), " ", "_")))
		if norm.Valid() {
			out = append(out, norm)
		}
	}
	return out
}

// stripCodeFence removes a ```json fence some models wrap around JSON answers.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
