package knowledge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// stubEmbedder maps texts onto fixed unit vectors by keyword so similarity
// ordering in tests is deterministic: "alpha" and "beta" texts are
// orthogonal, everything else lands on a third axis.
type stubEmbedder struct {
	version string
	fail    bool
}

var _ Embedder = (*stubEmbedder)(nil)

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{version: "stub/v1"}
}

func embedText(text string) []float32 {
	switch {
	case strings.Contains(text, "alpha"):
		return []float32{1, 0, 0}
	case strings.Contains(text, "beta"):
		return []float32{0, 1, 0}
	default:
		return []float32{0, 0, 1}
	}
}

func (s *stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if s.fail {
		return nil, errors.New("embedding endpoint down")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = embedText(t)
	}
	return out, nil
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if s.fail {
		return nil, errors.New("embedding endpoint down")
	}
	return embedText(text), nil
}

func (s *stubEmbedder) Version() string { return s.version }

// stubSource is an in-memory corpus for refresher tests.
type stubSource struct {
	mu      sync.Mutex
	docs    map[string]SourceDoc
	content map[string]string
	readErr map[string]error
}

var _ SourceLister = (*stubSource)(nil)

func newStubSource() *stubSource {
	return &stubSource{
		docs:    make(map[string]SourceDoc),
		content: make(map[string]string),
		readErr: make(map[string]error),
	}
}

func (s *stubSource) put(id, text string, mod time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id] = SourceDoc{ID: id, ModTime: mod}
	s.content[id] = text
}

func (s *stubSource) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	delete(s.content, id)
}

func (s *stubSource) List(ctx context.Context) ([]SourceDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SourceDoc, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d)
	}
	return out, nil
}

func (s *stubSource) Read(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readErr[id]; err != nil {
		return "", err
	}
	return s.content[id], nil
}
