package indexengine

import (
	"context"
	"log"
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/yuchen-w/papyra/internal/core"
)

var docMarkerRe = regexp.MustCompile(`\[DOC_ID:([^\]]+)\]`)

// SafeEmbedder is the circuit breaker around the embedding provider.
// Some models numerically diverge (return NaN, or crash server-side
// with a 500) on specific rare inputs even after sanitization. When
// that happens the whole batch is replaced with zero vectors so the
// pipeline keeps moving, and the degradation is logged at most once
// per document to avoid flooding across repeated chunks of the same
// faulty file.
type SafeEmbedder struct {
	inner core.EmbeddingProvider
	dim   int

	mu     sync.Mutex
	warned map[string]struct{}
}

func NewSafeEmbedder(inner core.EmbeddingProvider, dim int) *SafeEmbedder {
	if dim <= 0 {
		dim = 768
	}
	return &SafeEmbedder{
		inner:  inner,
		dim:    dim,
		warned: make(map[string]struct{}),
	}
}

var _ core.EmbeddingProvider = (*SafeEmbedder)(nil)

func (s *SafeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := s.inner.EmbedTexts(ctx, texts)
	if err != nil {
		if !isNumericFailure(err) {
			// Network faults and the like still propagate.
			return nil, err
		}
		s.warnOnce(texts, err.Error())
		return s.zeroBatch(len(texts)), nil
	}

	for _, v := range vecs {
		if !finite(v) {
			s.warnOnce(texts, "non-finite values in embedding response")
			return s.zeroBatch(len(texts)), nil
		}
	}
	return vecs, nil
}

// Reset clears the warning marker for a document so a later
// reprocessing attempt reports degradation again.
func (s *SafeEmbedder) Reset(docID string) {
	s.mu.Lock()
	delete(s.warned, docID)
	s.mu.Unlock()
}

func (s *SafeEmbedder) zeroBatch(n int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, s.dim)
	}
	return out
}

// warnOnce logs the degradation keyed by the batch's document marker,
// falling back to the leading content when no marker is present.
func (s *SafeEmbedder) warnOnce(texts []string, cause string) {
	key := logKey(texts)

	s.mu.Lock()
	_, seen := s.warned[key]
	if !seen {
		s.warned[key] = struct{}{}
	}
	s.mu.Unlock()

	if !seen {
		log.Printf("indexengine: embedding degraded, substituting zero vectors | doc=%s cause=%s", key, cause)
	}
}

func logKey(texts []string) string {
	for _, t := range texts {
		if m := docMarkerRe.FindStringSubmatch(t); m != nil {
			return m[1]
		}
	}
	if len(texts) == 0 {
		return "unknown"
	}
	head := texts[0]
	if r := []rune(head); len(r) > 50 {
		head = string(r[:50])
	}
	return head
}

// isNumericFailure recognizes the error shapes embedding backends emit
// when the model produces NaN: a JSON encode failure or a bare 500.
func isNumericFailure(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "NaN") ||
		strings.Contains(msg, "500") ||
		strings.Contains(strings.ToLower(msg), "json")
}

func finite(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
