package store

import "errors"

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDocumentNotReady is returned when a chat operation targets a
	// document that has not finished processing.
	ErrDocumentNotReady = errors.New("document is not ready for chat")
)
