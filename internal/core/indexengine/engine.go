package indexengine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yuchen-w/papyra/internal/core"
	"github.com/yuchen-w/papyra/internal/models"
)

// ChunkStore is the slice of persistence the engine needs.
type ChunkStore interface {
	InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error
	DeleteChunksByDocument(ctx context.Context, documentID string) error
}

// Metadata identifies the document a text belongs to.
type Metadata struct {
	DocumentID string
	FileName   string
}

// Config tunes the streaming pipeline.
//
// TargetTokens:  approximate tokens per chunk (e.g., 500).
// OverlapTokens: token overlap between consecutive chunks for context bleed.
// BatchSize:     how many chunks to embed/write in one batch.
// EmbedDim:      embedding dimension, used for the zero-vector fallback.
type Config struct {
	TargetTokens  int
	OverlapTokens int
	BatchSize     int
	EmbedDim      int
}

// Engine implements the indexing side of the pipeline: it chunks a
// cleaned document, embeds the chunks in batches and persists them as
// pgvector rows. Embedding goes through the SafeEmbedder circuit
// breaker so one numerically unstable document cannot fail ingestion.
type Engine struct {
	store    ChunkStore
	embedder *SafeEmbedder
	cfg      Config
}

func NewEngine(store ChunkStore, emb core.EmbeddingProvider, cfg Config) *Engine {
	if cfg.TargetTokens <= 0 {
		cfg.TargetTokens = 500
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	return &Engine{
		store:    store,
		embedder: NewSafeEmbedder(emb, cfg.EmbedDim),
		cfg:      cfg,
	}
}

// Insert indexes one document's text. The text is tagged with a
// document marker so chunks remain traceable to their source, any
// previously indexed chunks are dropped first (reprocessing after a
// failed attempt must not double-index), then the chunk/embed/persist
// stages stream through an errgroup.
func (e *Engine) Insert(ctx context.Context, text string, meta Metadata) error {
	tagged := fmt.Sprintf("[DOC_ID:%s][FILENAME:%s]\n\n%s", meta.DocumentID, meta.FileName, text)

	e.embedder.Reset(meta.DocumentID)

	if err := e.store.DeleteChunksByDocument(ctx, meta.DocumentID); err != nil {
		return fmt.Errorf("clear old chunks: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	fragCh := streamFragments(gctx, g, tagged)
	chunkCh := e.streamChunk(gctx, g, fragCh, e.cfg.TargetTokens, e.cfg.OverlapTokens)

	g.Go(func() error {
		return e.embedAndPersist(gctx, meta.DocumentID, chunkCh, e.cfg.BatchSize)
	})

	return g.Wait()
}

// embedAndPersist consumes chunks, embeds them in batches, and writes to DB.
func (e *Engine) embedAndPersist(
	ctx context.Context,
	docID string,
	in <-chan chunk,
	batchSize int,
) error {
	batch := make([]chunk, 0, batchSize)

	// flush embeds the current batch and inserts it into the database.
	flush := func(items []chunk) error {
		if len(items) == 0 {
			return nil
		}

		texts := make([]string, len(items))
		for idx := range items {
			texts[idx] = items[idx].Text
		}

		vecs, err := e.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed: %w", err)
		}
		if len(vecs) != len(items) {
			return fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(items))
		}

		rows := make([]models.DocumentChunk, len(items))
		for k := range items {
			rows[k] = models.DocumentChunk{
				ID:         uuid.NewString(),
				DocumentID: docID,
				Text:       items[k].Text,
				Embedding:  vecs[k],
				Position:   items[k].Pos,
				TokenCount: items[k].TokenCnt,
				CreatedAt:  time.Now(),
			}
		}
		if err := e.store.InsertDocumentChunks(ctx, rows); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		return nil
	}

	for c := range in {
		batch = append(batch, c)
		if len(batch) == batchSize {
			if err := flush(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	// Final tail.
	return flush(batch)
}
