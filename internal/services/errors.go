package services

import "errors"

var (
	// ErrEmptyFile is returned when an uploaded file has no content.
	ErrEmptyFile = errors.New("file is empty")

	// ErrFileTooLarge is returned when an upload exceeds the configured maximum size.
	ErrFileTooLarge = errors.New("file exceeds the maximum upload size")

	// ErrNotPDF is returned when the upload is not a PDF (wrong extension or magic bytes).
	ErrNotPDF = errors.New("only PDF files are supported")

	// ErrNotFailed is returned when retrying a document that is not in a failed state.
	ErrNotFailed = errors.New("document is not in a failed state")
)
