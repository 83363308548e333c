// Package backends opens the document store and image sink a binary runs
// against, either Google Cloud or a local data directory.
package backends

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"attractions/config"
	"attractions/docstore"
	"attractions/objstore"
	"attractions/upload"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
)

type Backends struct {
	Store docstore.Store
	Sink  upload.Sink

	closers []func() error
}

// Open connects to the backends cfg selects.  Close must be called when done.
func Open(ctx context.Context, cfg *config.Config) (*Backends, error) {
	b := &Backends{}

	if cfg.Local() {
		slog.InfoContext(ctx, "Using local data directory", slog.String("dir", cfg.LocalDataDir))

		db, err := docstore.OpenBadger(filepath.Join(cfg.LocalDataDir, "db"))
		if err != nil {
			return nil, fmt.Errorf("while opening local store: %w", err)
		}
		b.closers = append(b.closers, db.Close)

		b.Store = db
		b.Sink = objstore.NewDir(cfg.LocalDataDir)
		return b, nil
	}

	slog.InfoContext(ctx, "Using Google Cloud", slog.String("project", cfg.DataProject), slog.String("bucket", cfg.ImageBucket))

	fstore, err := firestore.NewClient(ctx, cfg.DataProject)
	if err != nil {
		return nil, fmt.Errorf("while creating FireStore client: %w", err)
	}
	b.closers = append(b.closers, fstore.Close)

	gcs, err := storage.NewClient(ctx)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("while creating GCS client: %w", err)
	}
	b.closers = append(b.closers, gcs.Close)

	b.Store = docstore.NewFirestore(fstore)
	b.Sink = objstore.NewGCS(gcs, cfg.ImageBucket, cfg.UploadChunkSize)
	return b, nil
}

func (b *Backends) Close() error {
	var firstErr error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.closers = nil
	return firstErr
}
