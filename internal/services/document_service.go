package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yuchen-w/papyra/internal/core"
	"github.com/yuchen-w/papyra/internal/models"
)

// pdfMagic is the signature every accepted upload must start with.
var pdfMagic = []byte("%PDF-")

// DocumentStore is the slice of persistence the fingerprint gate needs.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	GetDocumentByFingerprint(ctx context.Context, sha256 string) (*models.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]models.Document, int, error)
	ResetDocumentForRetry(ctx context.Context, id string) (bool, error)
}

// Enqueuer schedules a document for background processing.
type Enqueuer interface {
	Enqueue(docID string)
}

// DocumentService is the content fingerprint gate: it validates
// uploads, deduplicates them by SHA-256 and decides whether a
// submission creates a record, is a no-op, or re-schedules a failed
// document.
type DocumentService struct {
	db             DocumentStore
	storage        core.ObjectClient
	queue          Enqueuer
	bucket         string
	maxUploadBytes int64
}

func NewDocumentService(db DocumentStore, storage core.ObjectClient, queue Enqueuer, bucket string, maxUploadMB int) *DocumentService {
	return &DocumentService{
		db:             db,
		storage:        storage,
		queue:          queue,
		bucket:         bucket,
		maxUploadBytes: int64(maxUploadMB) << 20,
	}
}

// Submit accepts raw uploaded bytes. Identical content (by fingerprint)
// maps to exactly one record: a re-submission returns the existing
// record untouched unless it failed, in which case it is reset to
// pending and re-queued against the originally stored bytes. The
// storage path and fingerprint never change across retries. The bool
// reports whether a new record was created.
func (s *DocumentService) Submit(ctx context.Context, filename string, data []byte) (*models.Document, bool, error) {
	if err := s.validate(filename, data); err != nil {
		return nil, false, err
	}

	sum := sha256.Sum256(data)
	fingerprint := hex.EncodeToString(sum[:])

	existing, err := s.db.GetDocumentByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, false, fmt.Errorf("fingerprint lookup: %w", err)
	}
	if existing != nil {
		if existing.Status != models.StatusFailed {
			// Idempotent re-submission; no new processing.
			return existing, false, nil
		}
		doc, err := s.requeueFailed(ctx, existing)
		return doc, false, err
	}

	// New content: store the bytes at a key derived from the
	// fingerprint, so the path is deterministic and collision-free.
	key := path.Join("documents", fingerprint+".pdf")
	if _, err := s.storage.UploadFile(ctx, s.bucket, key, data, "application/pdf"); err != nil {
		return nil, false, fmt.Errorf("store upload: %w", err)
	}

	now := time.Now()
	doc := &models.Document{
		ID:          uuid.NewString(),
		FileName:    filename,
		StoragePath: key,
		SHA256:      fingerprint,
		SizeBytes:   int64(len(data)),
		Status:      models.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		return nil, false, fmt.Errorf("create document: %w", err)
	}

	s.queue.Enqueue(doc.ID)
	log.Printf("documents: accepted %s | id=%s size=%d", filename, doc.ID, doc.SizeBytes)
	return doc, true, nil
}

// Retry resets a failed document to pending and re-queues it. The
// original stored bytes are reused; nothing is re-uploaded.
func (s *DocumentService) Retry(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.db.GetDocumentByID(ctx, id)
	if err != nil || doc == nil {
		return nil, err
	}
	if doc.Status != models.StatusFailed {
		return nil, ErrNotFailed
	}
	return s.requeueFailed(ctx, doc)
}

func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	return s.db.GetDocumentByID(ctx, id)
}

func (s *DocumentService) List(ctx context.Context, offset, limit int) ([]models.Document, int, error) {
	return s.db.ListDocuments(ctx, offset, limit)
}

func (s *DocumentService) requeueFailed(ctx context.Context, doc *models.Document) (*models.Document, error) {
	ok, err := s.db.ResetDocumentForRetry(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("reset for retry: %w", err)
	}
	if ok {
		s.queue.Enqueue(doc.ID)
		log.Printf("documents: re-queued failed document %s", doc.ID)
	}

	fresh, err := s.db.GetDocumentByID(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		fresh = doc
	}
	return fresh, nil
}

// validate runs the pre-dedup checks: emptiness, size cap, and the PDF
// extension/magic signature.
func (s *DocumentService) validate(filename string, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyFile
	}
	if s.maxUploadBytes > 0 && int64(len(data)) > s.maxUploadBytes {
		return fmt.Errorf("%w: %d bytes", ErrFileTooLarge, len(data))
	}
	if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return ErrNotPDF
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return ErrNotPDF
	}
	return nil
}
