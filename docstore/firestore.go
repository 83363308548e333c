package docstore

import (
	"context"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/iterator"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const tracerName = "attractions/docstore"

// Firestore is a Store backed by Cloud Firestore.
type Firestore struct {
	client *firestore.Client
}

func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

func (f *Firestore) ListAll(ctx context.Context, collectionPath string) ([]Document, error) {
	var span trace.Span
	ctx, span = otel.Tracer(tracerName).Start(ctx, "Firestore.ListAll")
	defer span.End()
	span.SetAttributes(attribute.String("path", collectionPath))

	if err := CheckCollectionPath(collectionPath); err != nil {
		return nil, spanError(span, err)
	}

	docs := []Document{}
	iter := f.client.Collection(collectionPath).Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, spanError(span, fmt.Errorf("while iterating %s: %w", collectionPath, err))
		}
		docs = append(docs, Document{
			ID:     snap.Ref.ID,
			Fields: snap.Data(),
		})
	}

	span.SetAttributes(attribute.Int("count", len(docs)))
	span.SetStatus(codes.Ok, "")
	return docs, nil
}

func (f *Firestore) Add(ctx context.Context, collectionPath string, fields map[string]any) (string, error) {
	var span trace.Span
	ctx, span = otel.Tracer(tracerName).Start(ctx, "Firestore.Add")
	defer span.End()
	span.SetAttributes(attribute.String("path", collectionPath))

	if err := CheckCollectionPath(collectionPath); err != nil {
		return "", spanError(span, err)
	}

	ref, _, err := f.client.Collection(collectionPath).Add(ctx, fields)
	if err != nil {
		return "", spanError(span, fmt.Errorf("while adding to %s: %w", collectionPath, err))
	}

	span.SetStatus(codes.Ok, "")
	return ref.ID, nil
}

func (f *Firestore) Update(ctx context.Context, docPath string, fields map[string]any) error {
	var span trace.Span
	ctx, span = otel.Tracer(tracerName).Start(ctx, "Firestore.Update")
	defer span.End()
	span.SetAttributes(attribute.String("path", docPath))

	if err := CheckDocumentPath(docPath); err != nil {
		return spanError(span, err)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	updates := make([]firestore.Update, 0, len(keys))
	for _, k := range keys {
		updates = append(updates, firestore.Update{Path: k, Value: fields[k]})
	}

	if _, err := f.client.Doc(docPath).Update(ctx, updates); err != nil {
		if status.Code(err) == grpccodes.NotFound {
			return spanError(span, fmt.Errorf("%w: %s", ErrNotFound, docPath))
		}
		return spanError(span, fmt.Errorf("while updating %s: %w", docPath, err))
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (f *Firestore) Delete(ctx context.Context, docPath string) error {
	var span trace.Span
	ctx, span = otel.Tracer(tracerName).Start(ctx, "Firestore.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("path", docPath))

	if err := CheckDocumentPath(docPath); err != nil {
		return spanError(span, err)
	}

	if _, err := f.client.Doc(docPath).Delete(ctx); err != nil {
		return spanError(span, fmt.Errorf("while deleting %s: %w", docPath, err))
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
