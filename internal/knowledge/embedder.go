package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/Hipson47/Worm/internal/config"
)

// Sentinel errors for index operations.
var (
	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrIndexCorruption indicates an embedding-version mismatch.
	// The index must be rebuilt; mixing embedding versions is forbidden.
	ErrIndexCorruption = errors.New("index corruption: embedding version mismatch")

	// ErrInvalidQuery indicates a malformed search request.
	ErrInvalidQuery = errors.New("invalid query")
)

// Embedder generates vector embeddings from text.
//
// Embeddings are dense numerical representations that capture semantic
// meaning, enabling similarity search. Implementations can use a local TEI
// server or a cloud API (both speak the OpenAI embeddings protocol).
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Version identifies the embedding function. An index stores exactly one
	// version; opening it with a different one is a corruption error.
	Version() string
}

// langchainEmbedder wraps langchaingo's embedder for OpenAI-compatible
// endpoints (OpenAI or TEI).
type langchainEmbedder struct {
	impl    *embeddings.EmbedderImpl
	version string
}

// NewEmbedder creates an embedder from the embeddings configuration.
func NewEmbedder(cfg config.EmbeddingsConfig) (Embedder, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("embeddings base_url required")
	}
	if cfg.Model == "" {
		return nil, errors.New("embeddings model required")
	}

	// langchaingo requires a token; TEI ignores it.
	apiKey := "placeholder"
	if cfg.APIKey.IsSet() {
		apiKey = cfg.APIKey.Value()
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating embeddings client: %w", err)
	}

	impl, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &langchainEmbedder{
		impl:    impl,
		version: "openai/" + cfg.Model,
	}, nil
}

func (e *langchainEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts", ErrEmbeddingFailed)
	}
	vectors, err := e.impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vectors, nil
}

func (e *langchainEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := e.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vector, nil
}

func (e *langchainEmbedder) Version() string {
	return e.version
}
