// Package apperr holds the error taxonomy shared across features. Callers
// classify with errors.Is and wrap with fmt.Errorf("%w: ...").
package apperr

import "errors"

var (
	// ErrNotFound - an object or document that was asked for does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation - bad input: empty query, wrong file type, oversize upload.
	ErrValidation = errors.New("validation failed")

	// ErrAlreadyExists - a document for the same storage locator already
	// exists. Raised by the unique index on documents.file_path, so it is the
	// expected "already ingested" signal, not a failure.
	ErrAlreadyExists = errors.New("already exists")

	// ErrExternal - a call to storage, the database, the vector index or a
	// model provider failed.
	ErrExternal = errors.New("external service error")

	// ErrPartialFailure - some items in a batch succeeded and some did not.
	ErrPartialFailure = errors.New("partial failure")
)
