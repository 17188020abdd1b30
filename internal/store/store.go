package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrExists is returned by CreateDocument when the id is already taken.
var ErrExists = errors.New("document already exists")

// DocumentRef addresses one document inside a collection.
type DocumentRef struct {
	Collection string
	ID         string
}

func (r DocumentRef) String() string { return r.Collection + "/" + r.ID }

// Document is a stored document body with its address.
type Document struct {
	Ref    DocumentRef
	Fields map[string]any
}

// DocumentStore is the access pattern the sync engine needs from a document database:
// one collection per ticker, one document per date.
type DocumentStore interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, name string) error
	// QueryLatest returns the document with the greatest orderField value, or nil if the
	// collection holds no documents.
	QueryLatest(ctx context.Context, name, orderField string) (*Document, error)
	// GetDocument returns nil when the document does not exist.
	GetDocument(ctx context.Context, collection, id string) (*Document, error)
	// CreateDocument fails with ErrExists if id is already present.
	CreateDocument(ctx context.Context, collection, id string, fields map[string]any) error
	// UpdateDocument merges fields into an existing document.
	UpdateDocument(ctx context.Context, ref DocumentRef, fields map[string]any) error
	// ListDocuments returns every document of a collection ordered by id.
	ListDocuments(ctx context.Context, collection string) ([]Document, error)
	Name() string
	Close() error
}

// OpError wraps a failed store operation.
type OpError struct {
	Op         string
	Collection string
	ID         string
	Err        error
}

func (e *OpError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("store %s %s/%s: %v", e.Op, e.Collection, e.ID, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func opErr(op, collection, id string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Collection: collection, ID: id, Err: err}
}
