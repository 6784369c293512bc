package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuchen-w/papyra/internal/core/indexengine"
	"github.com/yuchen-w/papyra/internal/core/normalizer"
	"github.com/yuchen-w/papyra/internal/models"
)

// testStore implements DocumentStore and records every transition.
type testStore struct {
	mu            sync.Mutex
	doc           *models.Document
	processable   bool
	processedIDs  []string
	completed     []string
	completedSumm string
	failed        []string
	failedMsg     string
}

func (s *testStore) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil || s.doc.ID != id {
		return nil, nil
	}
	cp := *s.doc
	return &cp, nil
}

func (s *testStore) MarkDocumentProcessing(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.processable {
		return false, nil
	}
	s.processedIDs = append(s.processedIDs, id)
	return true, nil
}

func (s *testStore) MarkDocumentCompleted(ctx context.Context, id string, summary string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, id)
	s.completedSumm = summary
	return true, nil
}

func (s *testStore) MarkDocumentFailed(ctx context.Context, id string, errMsg string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, id)
	s.failedMsg = errMsg
	return true, nil
}

func (s *testStore) completedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed)
}

type testObjects struct {
	data []byte
	err  error
}

func (o *testObjects) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	return o.data, o.err
}

type testExtractor struct {
	text  string
	err   error
	calls int
}

func (e *testExtractor) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	e.calls++
	return e.text, e.err
}

type testIndexer struct {
	texts []string
	metas []indexengine.Metadata
	err   error
}

func (i *testIndexer) Insert(ctx context.Context, text string, meta indexengine.Metadata) error {
	if i.err != nil {
		return i.err
	}
	i.texts = append(i.texts, text)
	i.metas = append(i.metas, meta)
	return nil
}

type testSummarizer struct {
	summary string
	err     error
}

func (l *testSummarizer) Generate(ctx context.Context, system, user string) (string, error) {
	return l.summary, l.err
}

const extractedBody = "This is a long enough body of extracted text to survive the length gate comfortably."

func fixtureDoc() *models.Document {
	return &models.Document{
		ID:          "doc-1",
		FileName:    "paper.pdf",
		StoragePath: "documents/abc.pdf",
		Status:      models.StatusPending,
	}
}

type fixture struct {
	orch       *Orchestrator
	store      *testStore
	extractor  *testExtractor
	indexer    *testIndexer
	summarizer *testSummarizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:      &testStore{doc: fixtureDoc(), processable: true},
		extractor:  &testExtractor{text: extractedBody},
		indexer:    &testIndexer{},
		summarizer: &testSummarizer{summary: "a summary"},
	}

	orch, err := New(
		f.store,
		&testObjects{data: []byte("%PDF- raw bytes")},
		f.extractor,
		normalizer.New(10),
		f.indexer,
		f.summarizer,
		Config{Bucket: "papers", MaxErrorLength: 1000, Workers: 1},
	)
	require.NoError(t, err)
	t.Cleanup(orch.Release)

	f.orch = orch
	return f
}

func TestProcessOneHappyPath(t *testing.T) {
	f := newFixture(t)

	err := f.orch.ProcessOne(context.Background(), "doc-1")

	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1"}, f.store.processedIDs)
	assert.Equal(t, []string{"doc-1"}, f.store.completed)
	assert.Equal(t, "a summary", f.store.completedSumm)
	assert.Empty(t, f.store.failed)

	require.Len(t, f.indexer.texts, 1)
	assert.Equal(t, extractedBody, f.indexer.texts[0])
	assert.Equal(t, indexengine.Metadata{DocumentID: "doc-1", FileName: "paper.pdf"}, f.indexer.metas[0])
}

func TestProcessOneFailureIsDurable(t *testing.T) {
	f := newFixture(t)
	f.extractor.err = errors.New("extraction service exploded")

	err := f.orch.ProcessOne(context.Background(), "doc-1")

	require.Error(t, err)
	assert.Equal(t, []string{"doc-1"}, f.store.failed)
	assert.Contains(t, f.store.failedMsg, "extraction service exploded")
	assert.Empty(t, f.store.completed)
}

func TestProcessOneTruncatesLongErrors(t *testing.T) {
	f := newFixture(t)
	f.extractor.err = errors.New(strings.Repeat("很长的错误", 500))

	err := f.orch.ProcessOne(context.Background(), "doc-1")

	require.Error(t, err)
	assert.Equal(t, 1000, len([]rune(f.store.failedMsg)))
}

func TestProcessOneSkipsVanishedDocument(t *testing.T) {
	f := newFixture(t)
	f.store.doc = nil

	err := f.orch.ProcessOne(context.Background(), "doc-1")

	require.NoError(t, err)
	assert.Empty(t, f.store.processedIDs)
	assert.Empty(t, f.store.failed)
	assert.Zero(t, f.extractor.calls)
}

func TestProcessOneSkipsUnprocessableDocument(t *testing.T) {
	f := newFixture(t)
	f.store.processable = false

	err := f.orch.ProcessOne(context.Background(), "doc-1")

	require.NoError(t, err)
	assert.Zero(t, f.extractor.calls)
	assert.Empty(t, f.store.completed)
	assert.Empty(t, f.store.failed)
}

func TestProcessOneSummaryIsBestEffort(t *testing.T) {
	f := newFixture(t)
	f.summarizer.err = errors.New("model unavailable")

	err := f.orch.ProcessOne(context.Background(), "doc-1")

	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1"}, f.store.completed)
	assert.Empty(t, f.store.completedSumm)
}

func TestProcessOneShortTextFails(t *testing.T) {
	f := newFixture(t)
	f.extractor.text = "tiny"

	err := f.orch.ProcessOne(context.Background(), "doc-1")

	require.Error(t, err)
	assert.ErrorIs(t, err, normalizer.ErrTextTooShort)
	require.Len(t, f.store.failed, 1)
	assert.Contains(t, f.store.failedMsg, "too short")
}

func TestProcessOneIndexFailure(t *testing.T) {
	f := newFixture(t)
	f.indexer.err = errors.New("chunk persist failed")

	err := f.orch.ProcessOne(context.Background(), "doc-1")

	require.Error(t, err)
	assert.Equal(t, []string{"doc-1"}, f.store.failed)
	assert.Contains(t, f.store.failedMsg, "chunk persist failed")
}

func TestEnqueueFlowsThroughDispatcher(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.orch.Start(ctx)

	f.orch.Enqueue("doc-1")

	require.Eventually(t, func() bool {
		return f.store.completedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}
