package extraction

import (
	"bytes"
	"context"
	"fmt"

	"code.sajari.com/docconv"

	"github.com/yuchen-w/papyra/internal/core"
)

// LocalExtractor converts PDFs in-process with docconv. It serves
// deployments without a remote extraction service; quality is lower
// (no OCR, no layout analysis) but the interface is the same.
type LocalExtractor struct {
	useReadability bool
}

func NewLocalExtractor(useReadability bool) *LocalExtractor {
	return &LocalExtractor{useReadability: useReadability}
}

var _ core.Extractor = (*LocalExtractor)(nil)

func (e *LocalExtractor) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	res, err := docconv.Convert(bytes.NewReader(data), "application/pdf", e.useReadability)
	if err != nil {
		return "", terminalErr("docconv: %v", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if res.Body == "" {
		return "", terminalErr("docconv: extracted empty text from %s", filename)
	}
	return res.Body, nil
}

// String identifies the extractor in startup logs.
func (e *LocalExtractor) String() string {
	return fmt.Sprintf("docconv(readability=%t)", e.useReadability)
}
