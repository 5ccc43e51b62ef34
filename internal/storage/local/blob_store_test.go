package local_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/changelog-watch/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "a", "b")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.DirExists(t, dir)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})

	t.Run("BaseDirNotWritable", func(t *testing.T) {
		if runtime.GOOS == "windows" || os.Geteuid() == 0 {
			t.Skip("permission bits are not enforced")
		}
		tempDir := t.TempDir()
		// #nosec G302 -- directory permissions adjusted intentionally for test coverage.
		require.NoError(t, os.Chmod(tempDir, 0o500))
		t.Cleanup(func() { _ = os.Chmod(tempDir, 0o700) })

		_, err := local.New(local.Config{BaseDir: tempDir})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	base := t.TempDir()
	store, err := local.New(local.Config{BaseDir: base})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("WritesNestedPath", func(t *testing.T) {
		uri, err := store.PutObject(ctx, "snapshots/acme/run-1/abc.md", "text/markdown", strings.NewReader("# Changelog"))
		require.NoError(t, err)
		full := filepath.Join(base, "snapshots", "acme", "run-1", "abc.md")
		assert.Equal(t, "file://"+filepath.ToSlash(full), uri)
		got, err := os.ReadFile(full)
		require.NoError(t, err)
		assert.Equal(t, "# Changelog", string(got))
	})

	t.Run("Overwrites", func(t *testing.T) {
		_, err := store.PutObject(ctx, "x.md", "", strings.NewReader("one"))
		require.NoError(t, err)
		_, err = store.PutObject(ctx, "x.md", "", strings.NewReader("two"))
		require.NoError(t, err)
		got, err := os.ReadFile(filepath.Join(base, "x.md"))
		require.NoError(t, err)
		assert.Equal(t, "two", string(got))
	})

	t.Run("RejectsTraversal", func(t *testing.T) {
		_, err := store.PutObject(ctx, "../escape.md", "", strings.NewReader("x"))
		assert.ErrorContains(t, err, "path traversal")
	})

	t.Run("RejectsEmptyPath", func(t *testing.T) {
		_, err := store.PutObject(ctx, " ", "", strings.NewReader("x"))
		assert.Error(t, err)
	})

	t.Run("ReaderError", func(t *testing.T) {
		_, err := store.PutObject(ctx, "broken.md", "", errReader{})
		assert.Error(t, err)
		assert.NoFileExists(t, filepath.Join(base, "broken.md"))
	})
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("read failed") }
