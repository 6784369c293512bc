package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/panjf2000/ants/v2"

	"github.com/yuchen-w/papyra/internal/core"
	"github.com/yuchen-w/papyra/internal/core/indexengine"
	"github.com/yuchen-w/papyra/internal/core/normalizer"
	"github.com/yuchen-w/papyra/internal/models"
)

// DocumentStore is the slice of persistence the orchestrator needs.
// Each Mark* call commits its own transaction and returns false when
// the record is gone or the transition is illegal.
type DocumentStore interface {
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	MarkDocumentProcessing(ctx context.Context, id string) (bool, error)
	MarkDocumentCompleted(ctx context.Context, id string, summary string) (bool, error)
	MarkDocumentFailed(ctx context.Context, id string, errMsg string) (bool, error)
}

// ObjectStore fetches a document's original bytes.
type ObjectStore interface {
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
}

// Indexer is the downstream indexing engine's insert contract.
type Indexer interface {
	Insert(ctx context.Context, text string, meta indexengine.Metadata) error
}

// Config tunes the orchestrator.
type Config struct {
	Bucket         string
	MaxErrorLength int // stored error messages are truncated to this many chars
	Workers        int
	QueueSize      int
}

// Orchestrator runs one document's ingestion end to end: mark
// processing, fetch bytes, extract, normalize, summarize (best
// effort), index, mark completed. Every failure after the processing
// mark is caught exactly once here and becomes a durable failed
// status; nothing escapes past this boundary.
type Orchestrator struct {
	db         DocumentStore
	storage    ObjectStore
	extractor  core.Extractor
	normalizer *normalizer.Normalizer
	indexer    Indexer
	summarizer core.LLMProvider

	pool *ants.Pool
	jobs chan string
	cfg  Config
}

// New constructs the orchestrator with a bounded worker pool consuming
// a buffered queue of document IDs.
func New(
	db DocumentStore,
	storage ObjectStore,
	extractor core.Extractor,
	norm *normalizer.Normalizer,
	indexer Indexer,
	summarizer core.LLMProvider,
	cfg Config,
) (*Orchestrator, error) {
	if cfg.MaxErrorLength <= 0 {
		cfg.MaxErrorLength = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("worker pool: %w", err)
	}

	return &Orchestrator{
		db:         db,
		storage:    storage,
		extractor:  extractor,
		normalizer: norm,
		indexer:    indexer,
		summarizer: summarizer,
		pool:       pool,
		jobs:       make(chan string, cfg.QueueSize),
		cfg:        cfg,
	}, nil
}

// Start runs the dispatcher until ctx is cancelled. Each queued
// document ID is handed to the pool; documents process concurrently
// with no ordering between them, strictly sequentially within one.
func (o *Orchestrator) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				log.Println("pipeline: dispatcher shutting down")
				return
			case docID := <-o.jobs:
				id := docID
				if err := o.pool.Submit(func() {
					_ = o.ProcessOne(ctx, id)
				}); err != nil {
					log.Printf("pipeline: submit %s: %v", id, err)
				}
			}
		}
	}()
}

// Enqueue schedules a document ID for ingestion.
// If the queue is full, this call will block until space frees up.
func (o *Orchestrator) Enqueue(docID string) {
	o.jobs <- docID
}

// Release drains the worker pool. Call after the dispatcher context is
// cancelled.
func (o *Orchestrator) Release() {
	o.pool.Release()
}

// ProcessOne is the terminal, isolated unit of work for one document.
// The returned error is for callers that want to observe it (tests);
// by the time it returns the document's status is already durable.
func (o *Orchestrator) ProcessOne(ctx context.Context, docID string) error {
	doc, err := o.db.GetDocumentByID(ctx, docID)
	if err != nil {
		log.Printf("pipeline: load %s: %v", docID, err)
		return err
	}
	if doc == nil {
		log.Printf("pipeline: document %s no longer exists, skipping", docID)
		return nil
	}

	ok, err := o.db.MarkDocumentProcessing(ctx, docID)
	if err != nil {
		log.Printf("pipeline: mark processing %s: %v", docID, err)
		return err
	}
	if !ok {
		// Record vanished or was already picked up; there is nothing to
		// report to, so abort before any slow work.
		log.Printf("pipeline: document %s not in a processable state, skipping", docID)
		return nil
	}

	if err := o.run(ctx, doc); err != nil {
		log.Printf("pipeline: document %s failed: %v", docID, err)
		msg := truncate(err.Error(), o.cfg.MaxErrorLength)
		if _, ferr := o.db.MarkDocumentFailed(ctx, docID, msg); ferr != nil {
			log.Printf("pipeline: mark failed %s: %v", docID, ferr)
		}
		return err
	}
	return nil
}

// run executes the phases between the processing and completed marks.
func (o *Orchestrator) run(ctx context.Context, doc *models.Document) error {
	data, err := o.storage.GetFile(ctx, o.cfg.Bucket, doc.StoragePath)
	if err != nil {
		return fmt.Errorf("fetch stored bytes: %w", err)
	}

	raw, err := o.extractor.Extract(ctx, doc.FileName, data)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	text, err := o.normalizer.Clean(raw)
	if err != nil {
		return err
	}

	summary := o.summarize(ctx, doc, text)

	if err := o.indexer.Insert(ctx, text, indexengine.Metadata{
		DocumentID: doc.ID,
		FileName:   doc.FileName,
	}); err != nil {
		return fmt.Errorf("index: %w", err)
	}

	ok, err := o.db.MarkDocumentCompleted(ctx, doc.ID, summary)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if !ok {
		log.Printf("pipeline: document %s vanished before completion mark", doc.ID)
	}
	return nil
}

const summarySystemPrompt = "You summarize academic documents. " +
	"Write a concise abstract of at most 120 words covering the document's topic, method and findings."

// summarize is best-effort: a summarizer failure only loses the
// summary, never the document.
func (o *Orchestrator) summarize(ctx context.Context, doc *models.Document, text string) string {
	if o.summarizer == nil {
		return ""
	}

	excerpt := text
	if r := []rune(excerpt); len(r) > 8000 {
		excerpt = string(r[:8000])
	}

	summary, err := o.summarizer.Generate(ctx, summarySystemPrompt, excerpt)
	if err != nil {
		log.Printf("pipeline: summarize %s failed (continuing without): %v", doc.ID, err)
		return ""
	}
	return summary
}

// truncate bounds a stored error message to max characters.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
