// Package upload drives a single resumable image transfer to the object store
// and tracks its progress.
//
// A Pipeline moves idle -> uploading -> succeeded|failed.  Only one transfer
// may be in flight at a time; Reset returns a finished pipeline to idle.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"attractions/apperrors"

	"github.com/gabriel-vasile/mimetype"
)

// ObjectPrefix is the directory images are stored under in the bucket.
const ObjectPrefix = "images/"

type Phase int

const (
	Idle Phase = iota
	Uploading
	Succeeded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Uploading:
		return "uploading"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// State is a snapshot of the pipeline.
type State struct {
	Phase           Phase
	ProgressPercent float64
	ResultAddress   string
	ErrorMessage    string
}

// Sink stores an object and reports transfer progress while doing so.
type Sink interface {
	Upload(ctx context.Context, name string, body io.Reader, size int64, contentType string, progress func(transferred, total int64)) (string, error)
}

// AdminGate reports whether the acting identity is the administrator.
type AdminGate interface {
	IsAdmin() bool
}

// File is a local image selected for upload.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// FileFromPath describes the file at path, detecting its content type from
// its contents.
func FileFromPath(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("while statting %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, apperrors.Validation("%s is a directory", path)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("while detecting content type of %s: %w", path, err)
	}

	return &File{
		Name:        filepath.Base(path),
		Size:        info.Size(),
		ContentType: mt.String(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

func (f *File) check() error {
	if f == nil {
		return apperrors.Validation("no image selected")
	}
	if f.Name == "" || strings.ContainsAny(f.Name, "/\\") {
		return apperrors.Validation("bad image name %q", f.Name)
	}
	if !strings.HasPrefix(f.ContentType, "image/") {
		return apperrors.Validation("%s is %s, not an image", f.Name, f.ContentType)
	}
	if f.Size <= 0 {
		return apperrors.Validation("%s is empty", f.Name)
	}
	if f.Open == nil {
		return apperrors.Validation("%s cannot be opened", f.Name)
	}
	return nil
}

// Pipeline runs one upload at a time on behalf of the administrator.
type Pipeline struct {
	sink    Sink
	gate    AdminGate
	timeout time.Duration

	mu       sync.Mutex
	state    State
	done     chan struct{}
	watchers map[int]func(State)
	nextID   int
}

type PipelineOpt func(*Pipeline)

// WithTimeout bounds each transfer.
func WithTimeout(d time.Duration) PipelineOpt {
	return func(p *Pipeline) {
		p.timeout = d
	}
}

func New(sink Sink, gate AdminGate, opts ...PipelineOpt) *Pipeline {
	p := &Pipeline{
		sink:     sink,
		gate:     gate,
		timeout:  10 * time.Minute,
		watchers: map[int]func(State){},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins transferring file to images/{file.Name}.  It returns once the
// transfer is running; use Wait or Watch to follow it.
//
// The transfer is detached from ctx's cancellation but keeps its values, and
// is bounded by the pipeline timeout.
func (p *Pipeline) Start(ctx context.Context, file *File) error {
	if p.gate == nil || !p.gate.IsAdmin() {
		return apperrors.PermissionDenied("only the administrator may upload images")
	}
	if err := file.check(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.state.Phase == Uploading {
		p.mu.Unlock()
		return fmt.Errorf("while starting upload of %s: %w", file.Name, apperrors.ErrBusy)
	}
	p.state = State{Phase: Uploading}
	done := make(chan struct{})
	p.done = done
	snapshot, watchers := p.state, p.watcherList()
	p.mu.Unlock()

	notify(watchers, snapshot)

	slog.InfoContext(ctx, "Starting image upload", slog.String("name", file.Name), slog.Int64("size", file.Size))

	go func() {
		defer close(done)
		uploadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		p.run(uploadCtx, file)
	}()
	return nil
}

func (p *Pipeline) run(ctx context.Context, file *File) {
	body, err := file.Open()
	if err != nil {
		p.finish(ctx, file, "", fmt.Errorf("while opening %s: %w", file.Name, err))
		return
	}
	defer body.Close()

	address, err := p.sink.Upload(ctx, ObjectPrefix+file.Name, body, file.Size, file.ContentType, p.progress)
	p.finish(ctx, file, address, err)
}

func (p *Pipeline) progress(transferred, total int64) {
	if total <= 0 {
		return
	}
	pct := float64(transferred) * 100 / float64(total)
	pct = min(max(pct, 0), 100)

	p.mu.Lock()
	if p.state.Phase != Uploading || pct <= p.state.ProgressPercent {
		p.mu.Unlock()
		return
	}
	p.state.ProgressPercent = pct
	snapshot, watchers := p.state, p.watcherList()
	p.mu.Unlock()

	notify(watchers, snapshot)
}

func (p *Pipeline) finish(ctx context.Context, file *File, address string, err error) {
	p.mu.Lock()
	if err != nil {
		p.state = State{
			Phase:           Failed,
			ProgressPercent: p.state.ProgressPercent,
			ErrorMessage:    err.Error(),
		}
	} else {
		p.state = State{
			Phase:           Succeeded,
			ProgressPercent: 100,
			ResultAddress:   address,
		}
	}
	snapshot, watchers := p.state, p.watcherList()
	p.mu.Unlock()

	if err != nil {
		slog.ErrorContext(ctx, "Image upload failed", slog.String("name", file.Name), slog.Any("err", err))
	} else {
		slog.InfoContext(ctx, "Image upload finished", slog.String("name", file.Name), slog.String("address", address))
	}
	notify(watchers, snapshot)
}

// State returns the current snapshot.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Wait blocks until the running transfer reaches a terminal phase.  It
// returns immediately when nothing is running.  A failed transfer is reported
// as an ErrUploadFailure error.
func (p *Pipeline) Wait(ctx context.Context) (State, error) {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return p.State(), ctx.Err()
		}
	}

	s := p.State()
	if s.Phase == Failed {
		return s, apperrors.Upload(s.ErrorMessage)
	}
	return s, nil
}

// Watch calls fn with every state change until cancel is called.  fn runs on
// whichever goroutine made the change and must not call back into the
// pipeline's mutating methods.
func (p *Pipeline) Watch(fn func(State)) (cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.watchers[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.watchers, id)
	}
}

// ResultAddress returns the stored object's address once the transfer has
// succeeded.
func (p *Pipeline) ResultAddress() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Phase != Succeeded {
		return "", false
	}
	return p.state.ResultAddress, true
}

// Reset returns a finished pipeline to idle.
func (p *Pipeline) Reset() error {
	p.mu.Lock()
	if p.state.Phase == Uploading {
		p.mu.Unlock()
		return fmt.Errorf("while resetting upload: %w", apperrors.ErrBusy)
	}
	if p.state.Phase == Idle {
		p.mu.Unlock()
		return nil
	}
	p.state = State{}
	p.done = nil
	snapshot, watchers := p.state, p.watcherList()
	p.mu.Unlock()

	notify(watchers, snapshot)
	return nil
}

// UploadAndWait starts file and waits for the result address.
func (p *Pipeline) UploadAndWait(ctx context.Context, file *File) (string, error) {
	if err := p.Start(ctx, file); err != nil {
		return "", err
	}
	s, err := p.Wait(ctx)
	if err != nil {
		return "", err
	}
	if s.Phase != Succeeded {
		return "", errors.New("upload did not complete")
	}
	return s.ResultAddress, nil
}

// Must hold p.mu.
func (p *Pipeline) watcherList() []func(State) {
	out := make([]func(State), 0, len(p.watchers))
	for _, fn := range p.watchers {
		out = append(out, fn)
	}
	return out
}

func notify(watchers []func(State), s State) {
	for _, fn := range watchers {
		fn(s)
	}
}
