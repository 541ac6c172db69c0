package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
	"unicode/utf8"
)

// defaultSkipDirs are directories never scanned for knowledge documents.
var defaultSkipDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"__pycache__":  true,
	".idea":        true,
	".vscode":      true,
	".cache":       true,
}

// textExtensions are the document types indexed from a knowledge directory.
var textExtensions = map[string]bool{
	".md":   true,
	".txt":  true,
	".json": true,
	".yaml": true,
	".yml":  true,
	".rst":  true,
}

// SourceDoc describes one document in a corpus, for change detection.
type SourceDoc struct {
	ID      string
	ModTime time.Time
}

// SourceLister enumerates and reads a document corpus. The refresher polls
// List to detect added, changed, and removed documents.
type SourceLister interface {
	// List returns the corpus's current documents with modification times.
	List(ctx context.Context) ([]SourceDoc, error)

	// Read returns the full text of one document.
	Read(ctx context.Context, id string) (string, error)
}

// FSSource lists text documents under a directory tree. Document ids are
// slash-separated paths relative to the root.
type FSSource struct {
	root        string
	maxFileSize int64
}

// NewFSSource creates a filesystem source over the given directory.
func NewFSSource(root string, maxFileSize int64) (*FSSource, error) {
	if root == "" {
		return nil, fmt.Errorf("knowledge directory cannot be empty")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("knowledge directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("knowledge path is not a directory: %s", root)
	}
	if maxFileSize <= 0 {
		maxFileSize = 1024 * 1024
	}
	return &FSSource{root: root, maxFileSize: maxFileSize}, nil
}

// List walks the tree and returns eligible documents in stable id order.
func (s *FSSource) List(ctx context.Context) ([]SourceDoc, error) {
	var docs []SourceDoc

	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if defaultSkipDirs[filepath.Base(path)] {
				return filepath.SkipDir
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !textExtensions[filepath.Ext(path)] {
			return nil
		}
		if info.Size() > s.maxFileSize {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}
		docs = append(docs, SourceDoc{
			ID:      filepath.ToSlash(rel),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking knowledge directory: %w", err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// Read returns a document's content. Binary (non-UTF-8) files are rejected.
func (s *FSSource) Read(ctx context.Context, id string) (string, error) {
	path := filepath.Join(s.root, filepath.FromSlash(id))

	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == ".." || len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator) {
		return "", fmt.Errorf("document id escapes knowledge directory: %s", id)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading document %s: %w", id, err)
	}
	if !utf8.Valid(content) {
		return "", fmt.Errorf("document %s is not valid UTF-8", id)
	}
	return string(content), nil
}
