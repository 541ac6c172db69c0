package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

// indexTracer for OpenTelemetry instrumentation.
var indexTracer = otel.Tracer("worm.knowledge.index")

// versionMarker is the file recording the embedding version of a
// persistent index.
const versionMarker = "embedding_version"

// manifestFile records the per-document state of a persistent index so a
// reopened index knows what it holds.
const manifestFile = "documents.json"

// IndexConfig holds configuration for the knowledge index.
type IndexConfig struct {
	// Path is the directory for persistent storage. Empty means in-memory.
	Path string

	// Collection is the vector collection name.
	// Default: "worm_knowledge"
	Collection string

	// Chunker configures document splitting.
	Chunker ChunkerConfig
}

// ApplyDefaults sets default values for unset fields.
func (c *IndexConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "worm_knowledge"
	}
	if c.Chunker.Size == 0 {
		c.Chunker = DefaultChunkerConfig()
	}
}

// Chunk is one indexed slice of a source document. Identity is
// (SourceID, Sequence); chunks are recreated, never mutated.
type Chunk struct {
	SourceID  string    `json:"source_id"`
	Sequence  int       `json:"sequence"`
	Text      string    `json:"text"`
	IndexedAt time.Time `json:"indexed_at"`
}

// Result is a chunk returned from a search, with its similarity score.
type Result struct {
	Chunk
	Score float32 `json:"score"`
}

// docState tracks what the index holds for one source document. For a
// persistent index the whole map is mirrored to the manifest file, so the
// counts survive a restart.
type docState struct {
	Chunks    int       `json:"chunks"`
	IndexedAt time.Time `json:"indexed_at"`
}

// Index maintains the queryable chunk set for a document corpus.
//
// All mutation goes through Ingest/Remove, which swap a document's chunk set
// in as a unit: concurrent readers observe either the old or the fully
// updated version of a document, never a half-updated one. Embeddings are
// computed before the write lock is taken, so readers are blocked for at
// most the time of one document's store mutation.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   Embedder
	chunker    *Chunker
	config     IndexConfig
	logger     *zap.Logger

	mu   sync.RWMutex
	docs map[string]docState
}

// NewIndex creates a knowledge index backed by chromem-go.
//
// When config.Path is set the index is persistent; the embedding version is
// recorded alongside it and enforced on reopen (ErrIndexCorruption on
// mismatch — the index must be rebuilt, not mixed).
func NewIndex(cfg IndexConfig, embedder Embedder, logger *zap.Logger) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	chunker, err := NewChunker(cfg.Chunker)
	if err != nil {
		return nil, fmt.Errorf("invalid chunker config: %w", err)
	}

	var db *chromem.DB
	docs := make(map[string]docState)
	if cfg.Path != "" {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("creating index directory %s: %w", cfg.Path, err)
		}
		if err := checkEmbeddingVersion(cfg.Path, embedder.Version()); err != nil {
			return nil, err
		}
		db, err = chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, fmt.Errorf("opening persistent index: %w", err)
		}
		docs, err = readManifest(cfg.Path)
		if err != nil {
			return nil, err
		}
	} else {
		db = chromem.NewDB()
	}

	idx := &Index{
		db:       db,
		embedder: embedder,
		chunker:  chunker,
		config:   cfg,
		logger:   logger,
		docs:     docs,
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection,
		map[string]string{versionMarker: embedder.Version()}, idx.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", cfg.Collection, err)
	}
	idx.collection = collection

	logger.Info("knowledge index initialized",
		zap.String("collection", cfg.Collection),
		zap.String("embedding_version", embedder.Version()),
		zap.Bool("persistent", cfg.Path != ""),
	)

	return idx, nil
}

// checkEmbeddingVersion enforces a single embedding version per index.
func checkEmbeddingVersion(path, version string) error {
	marker := filepath.Join(path, versionMarker)
	content, err := os.ReadFile(marker)
	if err != nil {
		if os.IsNotExist(err) {
			if werr := os.WriteFile(marker, []byte(version), 0o644); werr != nil {
				return fmt.Errorf("writing version marker: %w", werr)
			}
			return nil
		}
		return fmt.Errorf("reading version marker: %w", err)
	}
	if stored := string(content); stored != version {
		return fmt.Errorf("%w: index has %q, embedder is %q", ErrIndexCorruption, stored, version)
	}
	return nil
}

// readManifest restores the per-document state of a persistent index.
// A missing manifest is an empty index, not an error.
func readManifest(path string) (map[string]docState, error) {
	docs := make(map[string]docState)
	content, err := os.ReadFile(filepath.Join(path, manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return docs, nil
		}
		return nil, fmt.Errorf("reading index manifest: %w", err)
	}
	if err := json.Unmarshal(content, &docs); err != nil {
		return nil, fmt.Errorf("parsing index manifest: %w", err)
	}
	return docs, nil
}

// saveManifest mirrors the document map to disk. Caller holds the write
// lock. In-memory indexes skip it.
func (i *Index) saveManifest() error {
	if i.config.Path == "" {
		return nil
	}
	data, err := json.Marshal(i.docs)
	if err != nil {
		return fmt.Errorf("encoding index manifest: %w", err)
	}
	target := filepath.Join(i.config.Path, manifestFile)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing index manifest: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("writing index manifest: %w", err)
	}
	return nil
}

// embeddingFunc adapts the Embedder to chromem's query-time embedding hook.
func (i *Index) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return i.embedder.EmbedQuery(ctx, text)
	}
}

func chunkID(sourceID string, seq int) string {
	return sourceID + "#" + strconv.Itoa(seq)
}

// Ingest splits, embeds, and upserts a document, replacing any prior chunks
// for the same id entirely so no stale fragments remain. Returns the number
// of chunks stored. Empty or whitespace-only text removes the document.
func (i *Index) Ingest(ctx context.Context, sourceID, text string) (int, error) {
	ctx, span := indexTracer.Start(ctx, "Index.Ingest")
	defer span.End()
	span.SetAttributes(attribute.String("source_id", sourceID))

	if sourceID == "" {
		return 0, fmt.Errorf("source id cannot be empty")
	}

	chunks := i.chunker.Split(text)
	if len(chunks) == 0 {
		if err := i.Remove(ctx, sourceID); err != nil {
			return 0, err
		}
		return 0, nil
	}

	// Embed outside the lock: readers stay unblocked during the slow part.
	vectors, err := i.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("%w: got %d vectors for %d chunks", ErrEmbeddingFailed, len(vectors), len(chunks))
	}

	now := timeNow()
	docs := make([]chromem.Document, len(chunks))
	for seq, text := range chunks {
		docs[seq] = chromem.Document{
			ID:      chunkID(sourceID, seq),
			Content: text,
			Metadata: map[string]string{
				"source_id":  sourceID,
				"sequence":   strconv.Itoa(seq),
				"indexed_at": strconv.FormatInt(now.UnixNano(), 10),
			},
			Embedding: vectors[seq],
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	// Swap the document's chunk set as a unit: the write lock holds readers
	// off between the delete and the add, so they see old or new, never a mix.
	// Deleting by metadata filter clears stale chunks even when the in-memory
	// bookkeeping is behind the store, as after reopening a persistent index.
	prior := i.docs[sourceID].Chunks
	if err := i.collection.Delete(ctx, map[string]string{"source_id": sourceID}, nil); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("removing stale chunks for %s: %w", sourceID, err)
	}
	if err := i.collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("storing chunks for %s: %w", sourceID, err)
	}

	i.docs[sourceID] = docState{Chunks: len(chunks), IndexedAt: now}
	if err := i.saveManifest(); err != nil {
		span.RecordError(err)
		return 0, err
	}

	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))
	span.SetStatus(codes.Ok, "success")

	i.logger.Debug("ingested document",
		zap.String("source_id", sourceID),
		zap.Int("chunks", len(chunks)),
		zap.Int("replaced", prior),
	)

	return len(chunks), nil
}

// Remove deletes all chunks for a document. Idempotent: removing an unknown
// document is a no-op.
func (i *Index) Remove(ctx context.Context, sourceID string) error {
	ctx, span := indexTracer.Start(ctx, "Index.Remove")
	defer span.End()
	span.SetAttributes(attribute.String("source_id", sourceID))

	i.mu.Lock()
	defer i.mu.Unlock()

	// Filter delete, so stale chunks go even when the bookkeeping lost track
	// of them across a restart.
	if err := i.collection.Delete(ctx, map[string]string{"source_id": sourceID}, nil); err != nil {
		span.RecordError(err)
		return fmt.Errorf("removing chunks for %s: %w", sourceID, err)
	}

	state, ok := i.docs[sourceID]
	if !ok {
		return nil
	}
	delete(i.docs, sourceID)
	if err := i.saveManifest(); err != nil {
		span.RecordError(err)
		return err
	}

	span.SetStatus(codes.Ok, "success")
	i.logger.Debug("removed document", zap.String("source_id", sourceID), zap.Int("chunks", state.Chunks))
	return nil
}

// Search returns the top-k chunks most similar to the query, ordered by
// descending score with ties broken by most-recently-indexed first.
// An empty index yields an empty result, not an error.
func (i *Index) Search(ctx context.Context, query string, k int) ([]Result, error) {
	ctx, span := indexTracer.Start(ctx, "Index.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", ErrInvalidQuery, k)
	}
	if query == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrInvalidQuery)
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	// chromem requires nResults <= stored document count.
	total := i.collection.Count()
	if total == 0 {
		return []Result{}, nil
	}
	if k > total {
		k = total
	}

	hits, err := i.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	results := make([]Result, len(hits))
	for n, h := range hits {
		results[n] = Result{
			Chunk: Chunk{
				SourceID:  h.Metadata["source_id"],
				Sequence:  atoiSafe(h.Metadata["sequence"]),
				Text:      h.Content,
				IndexedAt: time.Unix(0, parseInt64(h.Metadata["indexed_at"])),
			},
			Score: h.Similarity,
		}
	}

	sort.SliceStable(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}
		return results[a].IndexedAt.After(results[b].IndexedAt)
	})

	span.SetAttributes(attribute.Int("results", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// DocumentCount returns the number of indexed source documents.
func (i *Index) DocumentCount() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.docs)
}

// ChunkCount returns the number of stored chunks.
func (i *Index) ChunkCount() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.collection.Count()
}

// IndexedAt returns when a document was last ingested, if it is indexed.
func (i *Index) IndexedAt(sourceID string) (time.Time, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	state, ok := i.docs[sourceID]
	return state.IndexedAt, ok
}

// EmbeddingVersion returns the embedding function version this index stores.
func (i *Index) EmbeddingVersion() string {
	return i.embedder.Version()
}

func atoiSafe(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
