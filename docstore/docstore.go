// Package docstore fronts the document store that holds attractions and their
// reviews.
//
// Paths are slash-separated Firestore-style paths: collection paths have an
// odd number of segments ("products", "products/p1/reviews") and document
// paths an even number ("products/p1/reviews/r1").
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by Update when the target document does not
	// exist.
	ErrNotFound = errors.New("document not found")

	// ErrBadPath is returned for malformed collection or document paths.
	ErrBadPath = errors.New("malformed path")
)

// Document is one stored record: its store-generated ID and its fields.
type Document struct {
	ID     string
	Fields map[string]any
}

// Store is the set of operations the catalog needs from a document store.
type Store interface {
	// ListAll returns every document directly inside collectionPath.
	ListAll(ctx context.Context, collectionPath string) ([]Document, error)

	// Add creates a document with a generated ID and returns the ID.
	Add(ctx context.Context, collectionPath string, fields map[string]any) (string, error)

	// Update merges fields into the existing document at docPath.
	Update(ctx context.Context, docPath string, fields map[string]any) error

	// Delete removes the document at docPath.  Deleting a missing document
	// is not an error.
	Delete(ctx context.Context, docPath string) error
}

// CheckCollectionPath verifies that p names a collection.
func CheckCollectionPath(p string) error {
	segs, err := segments(p)
	if err != nil {
		return err
	}
	if len(segs)%2 != 1 {
		return fmt.Errorf("%w: %q is not a collection path", ErrBadPath, p)
	}
	return nil
}

// CheckDocumentPath verifies that p names a document.
func CheckDocumentPath(p string) error {
	segs, err := segments(p)
	if err != nil {
		return err
	}
	if len(segs)%2 != 0 {
		return fmt.Errorf("%w: %q is not a document path", ErrBadPath, p)
	}
	return nil
}

func segments(p string) ([]string, error) {
	if p == "" {
		return nil, fmt.Errorf("%w: empty path", ErrBadPath)
	}
	segs := strings.Split(p, "/")
	for _, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrBadPath, p)
		}
	}
	return segs, nil
}
