// Package objstore holds the upload sinks images are written to.
package objstore

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"cloud.google.com/go/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "attractions/objstore"

// DefaultChunkSize is the resumable upload chunk size.  Progress is reported
// once per chunk.
const DefaultChunkSize = 256 * 1024

// GCS uploads objects to a Cloud Storage bucket with the resumable upload
// protocol.
type GCS struct {
	gcs       *storage.Client
	bucket    string
	chunkSize int
}

func NewGCS(gcs *storage.Client, bucket string, chunkSize int) *GCS {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &GCS{
		gcs:       gcs,
		bucket:    bucket,
		chunkSize: chunkSize,
	}
}

// Upload writes body to the named object and returns its public address.
func (g *GCS) Upload(ctx context.Context, name string, body io.Reader, size int64, contentType string, progress func(transferred, total int64)) (string, error) {
	var span trace.Span
	ctx, span = otel.Tracer(tracerName).Start(ctx, "GCS.Upload")
	defer span.End()
	span.SetAttributes(
		attribute.String("bucket", g.bucket),
		attribute.String("object", name),
		attribute.Int64("size", size),
	)

	// Cancelling ctx aborts the upload and discards what was written.
	w := g.gcs.Bucket(g.bucket).Object(name).NewWriter(ctx)
	w.ChunkSize = g.chunkSize
	w.ContentType = contentType
	if progress != nil {
		w.ProgressFunc = func(n int64) {
			progress(n, size)
		}
	}

	if _, err := io.Copy(w, body); err != nil {
		w.CloseWithError(err)
		err := fmt.Errorf("while writing %s to object writer: %w", name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if err := w.Close(); err != nil {
		err := fmt.Errorf("while closing object writer for %s: %w", name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if progress != nil {
		progress(size, size)
	}

	span.SetStatus(codes.Ok, "")
	return Address(g.bucket, name), nil
}

// Address is the public URL of an object.
func Address(bucket, object string) string {
	u := url.URL{
		Scheme: "https",
		Host:   "storage.googleapis.com",
		Path:   "/" + bucket + "/" + object,
	}
	return u.String()
}
