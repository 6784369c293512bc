package core

import (
	"context"

	"github.com/yuchen-w/papyra/internal/models"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
//
// Every status-transition method runs as its own short, autocommitted
// transaction and reports (false, nil) when the record no longer exists
// or the transition is not legal from the record's current status. This
// keeps the last committed status trustworthy even if the process dies
// in the middle of slow extraction work.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) (err error)
	GetUserByEmail(ctx context.Context, email string) (user *models.User, err error)

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	GetDocumentByFingerprint(ctx context.Context, sha256 string) (*models.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]models.Document, int, error)

	MarkDocumentProcessing(ctx context.Context, id string) (bool, error)
	MarkDocumentCompleted(ctx context.Context, id string, summary string) (bool, error)
	MarkDocumentFailed(ctx context.Context, id string, errMsg string) (bool, error)
	ResetDocumentForRetry(ctx context.Context, id string) (bool, error)

	InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error
	DeleteChunksByDocument(ctx context.Context, documentID string) error

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
// It’s abstract so you can replace AWS with MinIO, GCP, etc. easily.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
}
