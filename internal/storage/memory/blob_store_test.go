package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "acme/run-1/abc.md", "text/markdown", strings.NewReader("content"))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://acme/run-1/abc.md" {
		t.Fatalf("unexpected uri %s", uri)
	}

	got, ok := store.Get("acme/run-1/abc.md")
	if !ok || string(got) != "content" {
		t.Fatalf("Get() = %q, %v", got, ok)
	}
	got[0] = 'C'
	again, _ := store.Get("acme/run-1/abc.md")
	if string(again) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", again)
	}
}

func TestBlobStorePaths(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, p := range []string{"b/2.md", "a/1.md"} {
		if _, err := store.PutObject(context.Background(), p, "", strings.NewReader(p)); err != nil {
			t.Fatalf("PutObject(%s) error = %v", p, err)
		}
	}
	if got := strings.Join(store.Paths(), ","); got != "a/1.md,b/2.md" {
		t.Fatalf("Paths() = %s", got)
	}
	if _, ok := store.Get("missing"); ok {
		t.Fatal("expected missing object")
	}
}

func TestBlobStorePutObjectErrors(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	if _, err := store.PutObject(context.Background(), "", "", strings.NewReader("x")); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := store.PutObject(context.Background(), "p", "", errReader{}); err == nil {
		t.Fatal("expected reader error")
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("boom") }
