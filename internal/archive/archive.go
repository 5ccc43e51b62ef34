// Package archive keeps a copy of every retrieved page so summaries can be
// audited against the text the model actually saw.
package archive

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode"

	"github.com/JakeFAU/changelog-watch/internal/changelog"
)

// ContentType is attached to every archived snapshot.
const ContentType = "text/markdown; charset=utf-8"

// BlobStore persists a blob and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error)
}

// Hasher computes content digests used as object names.
type Hasher interface {
	Sum(text string) string
}

// Archiver writes snapshots to a blob store.
type Archiver struct {
	store  BlobStore
	hasher Hasher
	prefix string
}

// New builds an Archiver. An empty prefix writes at the store root.
func New(store BlobStore, hasher Hasher, prefix string) (*Archiver, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	return &Archiver{store: store, hasher: hasher, prefix: strings.Trim(prefix, "/")}, nil
}

// Save stores text under {prefix}/{doc slug}/{runID}/{digest}.md and returns the blob URI.
func (a *Archiver) Save(ctx context.Context, runID string, doc changelog.Document, text string) (string, error) {
	if strings.TrimSpace(runID) == "" {
		return "", fmt.Errorf("run id is required")
	}
	key := path.Join(a.prefix, Slug(doc.Name), runID, a.hasher.Sum(text)+".md")
	uri, err := a.store.PutObject(ctx, key, ContentType, strings.NewReader(text))
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", doc.Name, err)
	}
	return uri, nil
}

// Slug lowercases name and replaces every run of non-alphanumerics with a dash.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "document"
	}
	return out
}
