package objstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
)

// Dir stores objects as files under a local directory.  It stands in for a
// bucket when the catalog runs against the local Badger store.
type Dir struct {
	root string
}

func NewDir(root string) *Dir {
	return &Dir{root: root}
}

func (d *Dir) Upload(ctx context.Context, name string, body io.Reader, size int64, contentType string, progress func(transferred, total int64)) (string, error) {
	dest := filepath.Join(d.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("while creating directory for %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("while creating temporary file for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	r := &progressReader{ctx: ctx, r: body, total: size, progress: progress}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("while writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("while closing %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("while moving %s into place: %w", name, err)
	}

	u := url.URL{Scheme: "file", Path: filepath.ToSlash(dest)}
	return u.String(), nil
}

type progressReader struct {
	ctx      context.Context
	r        io.Reader
	n        int64
	total    int64
	progress func(transferred, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := p.r.Read(b)
	p.n += int64(n)
	if n > 0 && p.progress != nil {
		p.progress(p.n, p.total)
	}
	return n, err
}
