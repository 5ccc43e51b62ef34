package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/changelog-watch/internal/changelog"
	"github.com/JakeFAU/changelog-watch/internal/hash/sha256"
	"github.com/JakeFAU/changelog-watch/internal/storage/local"
)

func TestSaveBuildsObjectPath(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	a, err := New(store, sha256.New(), "/snapshots/")
	require.NoError(t, err)

	uri, err := a.Save(context.Background(), "run-1", changelog.Document{Name: "OpenAI API", URL: "https://example.com"}, "# Changelog")

	require.NoError(t, err)
	want := "snapshots/openai-api/run-1/" + sha256.New().Sum("# Changelog") + ".md"
	assert.Equal(t, want, store.path)
	assert.Equal(t, ContentType, store.contentType)
	assert.Equal(t, "# Changelog", store.body)
	assert.Equal(t, "mem://"+want, uri)
}

func TestSaveToLocalStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	a, err := New(store, sha256.New(), "")
	require.NoError(t, err)

	_, err = a.Save(context.Background(), "run-2", changelog.Document{Name: "Gemini"}, "body")
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dir, "gemini", "run-2", sha256.New().Sum("body")+".md"))
	require.NoError(t, err)
	assert.Equal(t, "body", string(got))
}

func TestSaveErrors(t *testing.T) {
	t.Parallel()

	a, err := New(&fakeStore{err: errors.New("bucket gone")}, sha256.New(), "p")
	require.NoError(t, err)

	_, err = a.Save(context.Background(), "", changelog.Document{Name: "x"}, "t")
	assert.Error(t, err)

	_, err = a.Save(context.Background(), "run", changelog.Document{Name: "x"}, "t")
	assert.ErrorContains(t, err, "bucket gone")

	_, err = New(nil, sha256.New(), "")
	assert.Error(t, err)
	_, err = New(&fakeStore{}, nil, "")
	assert.Error(t, err)
}

func TestSlug(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"OpenAI API":          "openai-api",
		"  Anthropic / Docs ": "anthropic-docs",
		"v2.0--beta":          "v2-0-beta",
		"../../etc":           "etc",
		"":                    "document",
		"Café Notes":          "café-notes",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slug(in), in)
	}
}

type fakeStore struct {
	path        string
	contentType string
	body        string
	err         error
}

func (f *fakeStore) PutObject(_ context.Context, path, contentType string, r io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.path, f.contentType, f.body = path, contentType, string(b)
	return "mem://" + path, nil
}
