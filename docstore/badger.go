package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Key prefix for document records.  A document at path P is stored under
// docKeyPrefix+P, so a prefix scan over a collection path also visits
// documents in nested sub-collections; ListAll filters those out.
const docKeyPrefix = "doc/"

// Badger is a Store kept in a local Badger key-value directory.  It lets the
// tools run against a workstation copy of the catalog without a GCP project.
//
// Documents are serialized as google.protobuf.Struct messages.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens (creating if needed) the Badger database in dataDir.
func OpenBadger(dataDir string) (*Badger, error) {
	db, err := badger.Open(badger.DefaultOptions(dataDir))
	if err != nil {
		return nil, fmt.Errorf("while opening badger kv dir %q: %w", dataDir, err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

func (b *Badger) ListAll(ctx context.Context, collectionPath string) ([]Document, error) {
	var span trace.Span
	ctx, span = otel.Tracer(tracerName).Start(ctx, "Badger.ListAll")
	defer span.End()
	span.SetAttributes(attribute.String("path", collectionPath))

	if err := CheckCollectionPath(collectionPath); err != nil {
		return nil, spanError(span, err)
	}

	prefix := []byte(docKeyPrefix + collectionPath + "/")
	docs := []Document{}
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			id := strings.TrimPrefix(string(item.KeyCopy(nil)), string(prefix))
			if strings.Contains(id, "/") {
				// Lives in a nested sub-collection.
				continue
			}

			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("while reading %s/%s: %w", collectionPath, id, err)
			}
			fields, err := decodeFields(data)
			if err != nil {
				return fmt.Errorf("while decoding %s/%s: %w", collectionPath, id, err)
			}
			docs = append(docs, Document{ID: id, Fields: fields})
		}
		return nil
	})
	if err != nil {
		return nil, spanError(span, err)
	}

	span.SetAttributes(attribute.Int("count", len(docs)))
	span.SetStatus(codes.Ok, "")
	return docs, nil
}

func (b *Badger) Add(ctx context.Context, collectionPath string, fields map[string]any) (string, error) {
	var span trace.Span
	_, span = otel.Tracer(tracerName).Start(ctx, "Badger.Add")
	defer span.End()
	span.SetAttributes(attribute.String("path", collectionPath))

	if err := CheckCollectionPath(collectionPath); err != nil {
		return "", spanError(span, err)
	}

	data, err := encodeFields(fields)
	if err != nil {
		return "", spanError(span, err)
	}

	id := uuid.NewString()
	key := []byte(docKeyPrefix + collectionPath + "/" + id)
	err = b.update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return "", spanError(span, fmt.Errorf("while adding to %s: %w", collectionPath, err))
	}

	span.SetStatus(codes.Ok, "")
	return id, nil
}

func (b *Badger) Update(ctx context.Context, docPath string, fields map[string]any) error {
	var span trace.Span
	_, span = otel.Tracer(tracerName).Start(ctx, "Badger.Update")
	defer span.End()
	span.SetAttributes(attribute.String("path", docPath))

	if err := CheckDocumentPath(docPath); err != nil {
		return spanError(span, err)
	}

	key := []byte(docKeyPrefix + docPath)
	err := b.update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, docPath)
		}
		if err != nil {
			return fmt.Errorf("while reading %s: %w", docPath, err)
		}

		data, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("while reading %s: %w", docPath, err)
		}
		existing, err := decodeFields(data)
		if err != nil {
			return fmt.Errorf("while decoding %s: %w", docPath, err)
		}

		for k, v := range fields {
			existing[k] = v
		}

		merged, err := encodeFields(existing)
		if err != nil {
			return err
		}
		return txn.Set(key, merged)
	})
	if err != nil {
		return spanError(span, err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (b *Badger) Delete(ctx context.Context, docPath string) error {
	var span trace.Span
	_, span = otel.Tracer(tracerName).Start(ctx, "Badger.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("path", docPath))

	if err := CheckDocumentPath(docPath); err != nil {
		return spanError(span, err)
	}

	key := []byte(docKeyPrefix + docPath)
	err := b.update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return spanError(span, fmt.Errorf("while deleting %s: %w", docPath, err))
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// update runs fn in a read-write transaction, retrying on commit conflicts.
func (b *Badger) update(fn func(txn *badger.Txn) error) error {
	for {
		err := b.db.Update(fn)
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
}

func encodeFields(fields map[string]any) ([]byte, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("while converting fields to Struct: %w", err)
	}
	data, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("while marshaling Struct: %w", err)
	}
	return data, nil
}

func decodeFields(data []byte) (map[string]any, error) {
	s := &structpb.Struct{}
	if err := proto.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("while unmarshaling Struct: %w", err)
	}
	return s.AsMap(), nil
}
