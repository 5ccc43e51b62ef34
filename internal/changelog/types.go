// Package changelog defines the documents being watched and the structured
// change records extracted from them.
package changelog

import "fmt"

// DateLayout is the only date format accepted on change records.
const DateLayout = "2006-01-02"

// Document is a named page to monitor.
type Document struct {
	Name string `json:"name" mapstructure:"name"`
	URL  string `json:"url" mapstructure:"url"`
}

// Category classifies a change record.
type Category string

// Category values understood by the summarizer schema.
const (
	CategoryBreakingChanges         Category = "BREAKING_CHANGES"
	CategoryNewFeatures             Category = "NEW_FEATURES"
	CategoryDeprecations            Category = "DEPRECATIONS"
	CategoryBugFixes                Category = "BUG_FIXES"
	CategoryPerformanceImprovements Category = "PERFORMANCE_IMPROVEMENTS"
	CategorySecurityUpdates         Category = "SECURITY_UPDATES"
)

// Categories lists every known category in schema order.
var Categories = []Category{
	CategoryBreakingChanges,
	CategoryNewFeatures,
	CategoryDeprecations,
	CategoryBugFixes,
	CategoryPerformanceImprovements,
	CategorySecurityUpdates,
}

var categoryEmoji = map[Category]string{
	CategoryBreakingChanges:         "💥",
	CategoryNewFeatures:             "✨",
	CategoryDeprecations:            "🗑️",
	CategoryBugFixes:                "🐛",
	CategoryPerformanceImprovements: "⚡",
	CategorySecurityUpdates:         "🔒",
}

// Emoji returns the marker shown next to the category, or "" when unknown.
func (c Category) Emoji() string {
	return categoryEmoji[c]
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := categoryEmoji[c]
	return ok
}

// Change is one dated unit of change information.
type Change struct {
	Date       string     `json:"date"`
	Content    string     `json:"content"`
	Keywords   []string   `json:"keywords"`
	Categories []Category `json:"categories"`
}

// Changelog is the summarizer output for a single document.
type Changelog struct {
	Changes  []Change `json:"changes"`
	Upcoming string   `json:"upcoming_changes"`
}

// Empty reports whether there is nothing worth notifying about.
func (c Changelog) Empty() bool {
	return len(c.Changes) == 0
}

// SeenKey is the deduplication key for a change published for doc.
func SeenKey(doc Document, change Change) string {
	return fmt.Sprintf("changelog:%s:%s", doc.Name, change.Date)
}
