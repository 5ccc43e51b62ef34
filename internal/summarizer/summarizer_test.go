package summarizer

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/changelog-watch/internal/changelog"
)

func TestParseNormalizes(t *testing.T) {
	t.Parallel()

	raw := "```json\n" + `{
	  "changes": [{
	    "date": " 2024-10-18 ",
	    "content": "- Added batch endpoints\n",
	    "keywords": ["batch", " ", "orders "],
	    "categories": ["new features", "BUG_FIXES", "MARKETING"]
	  }],
	  "upcoming_changes": "  v3 sunset in December "
	}` + "\n```"

	got, err := Parse("openai", raw)

	require.NoError(t, err)
	want := changelog.Changelog{
		Changes: []changelog.Change{{
			Date:       "2024-10-18",
			Content:    "- Added batch endpoints",
			Keywords:   []string{"batch", "orders"},
			Categories: []changelog.Category{changelog.CategoryNewFeatures, changelog.CategoryBugFixes},
		}},
		Upcoming: "v3 sunset in December",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("changelog mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	_, err := Parse("gemini", "   ")
	var serr *Error
	require.ErrorAs(t, err, &serr)
	require.Equal(t, "gemini", serr.Provider)

	_, err = Parse("openai", "{not json")
	require.ErrorAs(t, err, &serr)
	var syntax *json.SyntaxError
	require.True(t, errors.As(err, &syntax))
}

func TestInstructions(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultPrompt, Instructions(""))
	require.Equal(t, DefaultPrompt, Instructions(" \n"))
	require.Equal(t, "only breaking changes", Instructions("  only breaking changes "))
}

func TestSchemaIsValidJSON(t *testing.T) {
	t.Parallel()

	var doc map[string]any
	require.NoError(t, json.Unmarshal(Schema, &doc))
	require.Equal(t, "object", doc["type"])

	props := doc["properties"].(map[string]any)
	items := props["changes"].(map[string]any)["items"].(map[string]any)
	enum := items["properties"].(map[string]any)["categories"].(map[string]any)["items"].(map[string]any)["enum"].([]any)
	require.Len(t, enum, len(changelog.Categories))
	for i, c := range changelog.Categories {
		require.Equal(t, string(c), enum[i])
	}
}

func TestUserMessage(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Input:\n\"\"\"\n# Title\n\"\"\"\n", UserMessage("# Title"))
}
