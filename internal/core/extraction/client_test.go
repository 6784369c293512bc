package extraction

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipWithFiles(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// extractionServer fakes the remote service's three endpoints. The poll
// handler walks through states, one per call, sticking on the last.
type extractionServer struct {
	*httptest.Server
	states      []string
	pollCalls   atomic.Int32
	submitCalls atomic.Int32
	submitFails int32 // first N submit calls answer 500
	archive     []byte
	errMsg      string
}

func newExtractionServer(t *testing.T, states []string, archive []byte) *extractionServer {
	t.Helper()
	s := &extractionServer{states: states, archive: archive}

	mux := http.NewServeMux()
	mux.HandleFunc("/file-urls/batch", func(w http.ResponseWriter, r *http.Request) {
		n := s.submitCalls.Add(1)
		if n <= s.submitFails {
			http.Error(w, "temporarily unavailable", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{
				"batch_id":  "job-1",
				"file_urls": []string{s.URL + "/upload/1"},
			},
		})
	})
	mux.HandleFunc("/upload/1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/extract-results/batch/job-1", func(w http.ResponseWriter, r *http.Request) {
		i := int(s.pollCalls.Add(1)) - 1
		if i >= len(s.states) {
			i = len(s.states) - 1
		}
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{
				"extract_result": []map[string]any{{
					"file_name":    "paper.pdf",
					"state":        s.states[i],
					"full_zip_url": s.URL + "/result.zip",
					"err_msg":      s.errMsg,
				}},
			},
		})
	})
	mux.HandleFunc("/result.zip", func(w http.ResponseWriter, r *http.Request) {
		w.Write(s.archive)
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:      baseURL,
		APIKey:       "test-key",
		MaxRetries:   3,
		RetryDelay:   time.Millisecond,
		PollInterval: 5 * time.Millisecond,
		MaxPollTime:  500 * time.Millisecond,
	}
}

func TestExtractHappyPath(t *testing.T) {
	archive := zipWithFiles(t, map[string]string{
		"layout.json": "{}",
		"full.md":     "# Extracted\n\nbody text",
	})
	srv := newExtractionServer(t, []string{"pending", "running", "done"}, archive)
	c := NewClient(testConfig(srv.URL))

	text, err := c.Extract(context.Background(), "paper.pdf", []byte("%PDF-1.4 data"))

	require.NoError(t, err)
	assert.Equal(t, "# Extracted\n\nbody text", text)
	assert.GreaterOrEqual(t, srv.pollCalls.Load(), int32(3))
}

func TestExtractPrefersFullMarkdownMember(t *testing.T) {
	archive := zipWithFiles(t, map[string]string{
		"aux.md":         "wrong artifact",
		"images/full.md": "right artifact",
	})
	srv := newExtractionServer(t, []string{"done"}, archive)
	c := NewClient(testConfig(srv.URL))

	text, err := c.Extract(context.Background(), "paper.pdf", []byte("%PDF-"))

	require.NoError(t, err)
	assert.Equal(t, "right artifact", text)
}

func TestExtractRetriesSubmitOnServerError(t *testing.T) {
	archive := zipWithFiles(t, map[string]string{"full.md": "ok"})
	srv := newExtractionServer(t, []string{"done"}, archive)
	srv.submitFails = 2

	c := NewClient(testConfig(srv.URL))
	text, err := c.Extract(context.Background(), "paper.pdf", []byte("%PDF-"))

	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), srv.submitCalls.Load())
}

func TestExtractSubmitExhaustsRetries(t *testing.T) {
	srv := newExtractionServer(t, []string{"done"}, nil)
	srv.submitFails = 100

	c := NewClient(testConfig(srv.URL))
	_, err := c.Extract(context.Background(), "paper.pdf", []byte("%PDF-"))

	require.Error(t, err)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, int32(3), srv.submitCalls.Load())
}

func TestExtractRejectionIsTerminalWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(testConfig(srv.URL))
	_, err := c.Extract(context.Background(), "paper.pdf", []byte("%PDF-"))

	require.Error(t, err)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestExtractJobFailure(t *testing.T) {
	srv := newExtractionServer(t, []string{"running", "failed"}, nil)
	srv.errMsg = "unsupported encryption"

	c := NewClient(testConfig(srv.URL))
	_, err := c.Extract(context.Background(), "paper.pdf", []byte("%PDF-"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported encryption")
	assert.False(t, IsRetryable(err))
}

func TestExtractPollTimeout(t *testing.T) {
	srv := newExtractionServer(t, []string{"running"}, nil)

	cfg := testConfig(srv.URL)
	cfg.MaxPollTime = 25 * time.Millisecond
	c := NewClient(cfg)

	start := time.Now()
	_, err := c.Extract(context.Background(), "paper.pdf", []byte("%PDF-"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExtractUnknownStateKeepsWaiting(t *testing.T) {
	archive := zipWithFiles(t, map[string]string{"full.md": "eventually"})
	srv := newExtractionServer(t, []string{"mystery-state", "done"}, archive)

	c := NewClient(testConfig(srv.URL))
	text, err := c.Extract(context.Background(), "paper.pdf", []byte("%PDF-"))

	require.NoError(t, err)
	assert.Equal(t, "eventually", text)
}

func TestExtractMissingArtifact(t *testing.T) {
	archive := zipWithFiles(t, map[string]string{"layout.json": "{}"})
	srv := newExtractionServer(t, []string{"done"}, archive)

	c := NewClient(testConfig(srv.URL))
	_, err := c.Extract(context.Background(), "paper.pdf", []byte("%PDF-"))

	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestExtractContextCancellation(t *testing.T) {
	srv := newExtractionServer(t, []string{"running"}, nil)
	c := NewClient(testConfig(srv.URL))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Extract(ctx, "paper.pdf", []byte("%PDF-"))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseStateMapping(t *testing.T) {
	cases := map[string]JobState{
		"pending":      StatePending,
		"queued":       StatePending,
		"running":      StateRunning,
		"converting":   StateRunning,
		"waiting-file": StateRunning,
		"done":         StateDone,
		"failed":       StateFailed,
		"gibberish":    StateUnknown,
	}
	for raw, want := range cases {
		assert.Equal(t, want, parseState(raw), fmt.Sprintf("state %q", raw))
	}
}
