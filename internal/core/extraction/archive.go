package extraction

import (
	"archive/zip"
	"bytes"
	"io"
	"path"
	"strings"
)

// markdownFromArchive pulls the primary text artifact out of a result
// bundle. The service packs one markdown file per document (usually
// full.md) alongside images and layout JSON; the markdown is the only
// member the pipeline needs.
func markdownFromArchive(archive []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return "", terminalErr("open result archive: %v", err)
	}

	var candidate *zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(f.Name), ".md") {
			continue
		}
		if path.Base(f.Name) == "full.md" {
			candidate = f
			break
		}
		if candidate == nil {
			candidate = f
		}
	}
	if candidate == nil {
		return "", terminalErr("result archive contains no markdown artifact")
	}

	rc, err := candidate.Open()
	if err != nil {
		return "", terminalErr("open artifact %s: %v", candidate.Name, err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", terminalErr("read artifact %s: %v", candidate.Name, err)
	}
	return string(raw), nil
}
