package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"attractions/apperrors"

	"github.com/google/go-cmp/cmp"
)

type adminGate bool

func (g adminGate) IsAdmin() bool { return bool(g) }

type progressStep struct {
	transferred, total int64
}

// fakeSink reports whatever progress the test feeds it and finishes when the
// test sends a result.
type fakeSink struct {
	steps  chan progressStep
	acks   chan struct{}
	result chan error

	mu       sync.Mutex
	names    []string
	received []byte
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		steps:  make(chan progressStep),
		acks:   make(chan struct{}),
		result: make(chan error),
	}
}

func (s *fakeSink) Upload(ctx context.Context, name string, body io.Reader, size int64, contentType string, progress func(transferred, total int64)) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.names = append(s.names, name)
	s.received = data
	s.mu.Unlock()

	for {
		select {
		case step := <-s.steps:
			progress(step.transferred, step.total)
			s.acks <- struct{}{}
		case err := <-s.result:
			if err != nil {
				return "", err
			}
			return "https://store/" + name, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// step reports progress and returns once the pipeline has processed it.
func (s *fakeSink) step(transferred, total int64) {
	s.steps <- progressStep{transferred, total}
	<-s.acks
}

func testFile(name string, data []byte) *File {
	return &File{
		Name:        name,
		Size:        int64(len(data)),
		ContentType: "image/png",
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// recorder collects every state the pipeline publishes.
type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func TestUploadSucceeds(t *testing.T) {
	ctx := context.Background()
	sink := newFakeSink()
	p := New(sink, adminGate(true))

	rec := &recorder{}
	cancel := p.Watch(rec.record)
	defer cancel()

	if err := p.Start(ctx, testFile("falls.png", []byte("0123456789"))); err != nil {
		t.Fatalf("Unexpected error from Start: %v", err)
	}
	if got := p.State().Phase; got != Uploading {
		t.Errorf("Phase after Start = %v, want uploading", got)
	}

	sink.step(3, 10)
	sink.step(2, 10) // Regressions are ignored.
	sink.step(8, 10)
	sink.result <- nil

	got, err := p.Wait(ctx)
	if err != nil {
		t.Fatalf("Unexpected error from Wait: %v", err)
	}
	want := State{Phase: Succeeded, ProgressPercent: 100, ResultAddress: "https://store/images/falls.png"}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Bad final state; diff (-got +want)\n%s", diff)
	}

	wantStates := []State{
		{Phase: Uploading},
		{Phase: Uploading, ProgressPercent: 30},
		{Phase: Uploading, ProgressPercent: 80},
		want,
	}
	if diff := cmp.Diff(rec.snapshot(), wantStates); diff != "" {
		t.Errorf("Bad state sequence; diff (-got +want)\n%s", diff)
	}

	addr, ok := p.ResultAddress()
	if !ok || addr != "https://store/images/falls.png" {
		t.Errorf("ResultAddress() = (%q, %v)", addr, ok)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if diff := cmp.Diff(sink.names, []string{"images/falls.png"}); diff != "" {
		t.Errorf("Bad object names; diff (-got +want)\n%s", diff)
	}
	if string(sink.received) != "0123456789" {
		t.Errorf("Sink received %q", sink.received)
	}
}

func TestProgressIsMonotonicAndClamped(t *testing.T) {
	ctx := context.Background()
	sink := newFakeSink()
	p := New(sink, adminGate(true))

	rec := &recorder{}
	defer p.Watch(rec.record)()

	if err := p.Start(ctx, testFile("a.png", []byte("abcd"))); err != nil {
		t.Fatalf("Unexpected error from Start: %v", err)
	}
	for _, step := range []progressStep{{1, 4}, {0, 4}, {1, 0}, {3, 4}, {9, 4}, {2, 4}} {
		sink.step(step.transferred, step.total)
	}
	sink.result <- nil
	if _, err := p.Wait(ctx); err != nil {
		t.Fatalf("Unexpected error from Wait: %v", err)
	}

	last := -1.0
	for _, s := range rec.snapshot() {
		if s.ProgressPercent < last {
			t.Errorf("Progress went backwards: %v after %v", s.ProgressPercent, last)
		}
		if s.ProgressPercent < 0 || s.ProgressPercent > 100 {
			t.Errorf("Progress %v out of range", s.ProgressPercent)
		}
		last = s.ProgressPercent
	}
	if last != 100 {
		t.Errorf("Final progress %v, want 100", last)
	}
}

func TestUploadFails(t *testing.T) {
	ctx := context.Background()
	sink := newFakeSink()
	p := New(sink, adminGate(true))

	if err := p.Start(ctx, testFile("falls.png", []byte("0123456789"))); err != nil {
		t.Fatalf("Unexpected error from Start: %v", err)
	}
	sink.step(5, 10)
	sink.result <- errors.New("bucket quota exceeded")

	got, err := p.Wait(ctx)
	if !errors.Is(err, apperrors.ErrUploadFailure) {
		t.Fatalf("Wait returned %v, want ErrUploadFailure", err)
	}
	want := State{Phase: Failed, ProgressPercent: 50, ErrorMessage: "bucket quota exceeded"}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Bad final state; diff (-got +want)\n%s", diff)
	}
	if _, ok := p.ResultAddress(); ok {
		t.Errorf("ResultAddress available after failure")
	}

	// Progress after a terminal state is ignored.
	p.progress(10, 10)
	if diff := cmp.Diff(p.State(), want); diff != "" {
		t.Errorf("Late progress changed state; diff (-got +want)\n%s", diff)
	}
}

func TestUploadTimeout(t *testing.T) {
	ctx := context.Background()
	// The sink never finishes on its own, so only the deadline ends it.
	p := New(newFakeSink(), adminGate(true), WithTimeout(10*time.Millisecond))

	if err := p.Start(ctx, testFile("falls.png", []byte("0123456789"))); err != nil {
		t.Fatalf("Unexpected error from Start: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	got, err := p.Wait(waitCtx)
	if !errors.Is(err, apperrors.ErrUploadFailure) {
		t.Fatalf("Wait returned %v, want ErrUploadFailure", err)
	}
	if got.Phase != Failed {
		t.Errorf("Got phase %v after timeout, want %v", got.Phase, Failed)
	}
	if !strings.Contains(got.ErrorMessage, "deadline") {
		t.Errorf("Got error message %q, want it to mention the deadline", got.ErrorMessage)
	}
	if _, ok := p.ResultAddress(); ok {
		t.Errorf("ResultAddress available after timeout")
	}
}

func TestStartWhileBusy(t *testing.T) {
	ctx := context.Background()
	sink := newFakeSink()
	p := New(sink, adminGate(true))

	if err := p.Start(ctx, testFile("first.png", []byte("0123456789"))); err != nil {
		t.Fatalf("Unexpected error from Start: %v", err)
	}
	sink.step(4, 10)
	before := p.State()

	err := p.Start(ctx, testFile("second.png", []byte("xy")))
	if !errors.Is(err, apperrors.ErrBusy) {
		t.Fatalf("Second Start returned %v, want ErrBusy", err)
	}
	if diff := cmp.Diff(p.State(), before); diff != "" {
		t.Errorf("Busy Start altered the in-flight state; diff (-got +want)\n%s", diff)
	}
	if err := p.Reset(); !errors.Is(err, apperrors.ErrBusy) {
		t.Errorf("Reset during upload returned %v, want ErrBusy", err)
	}

	sink.result <- nil
	got, err := p.Wait(ctx)
	if err != nil {
		t.Fatalf("Unexpected error from Wait: %v", err)
	}
	if got.ResultAddress != "https://store/images/first.png" {
		t.Errorf("Got address %q, want the first upload's", got.ResultAddress)
	}
}

func TestStartRejections(t *testing.T) {
	testCases := []struct {
		desc    string
		admin   bool
		file    *File
		wantErr error
	}{
		{
			desc:    "not admin",
			admin:   false,
			file:    testFile("a.png", []byte("a")),
			wantErr: apperrors.ErrPermissionDenied,
		},
		{
			desc:    "no file",
			admin:   true,
			file:    nil,
			wantErr: apperrors.ErrValidationFailed,
		},
		{
			desc:    "empty file",
			admin:   true,
			file:    testFile("a.png", nil),
			wantErr: apperrors.ErrValidationFailed,
		},
		{
			desc:  "not an image",
			admin: true,
			file: &File{
				Name:        "notes.txt",
				Size:        3,
				ContentType: "text/plain; charset=utf-8",
				Open:        func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader([]byte("abc"))), nil },
			},
			wantErr: apperrors.ErrValidationFailed,
		},
		{
			desc:    "path in name",
			admin:   true,
			file:    testFile("../a.png", []byte("a")),
			wantErr: apperrors.ErrValidationFailed,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			p := New(newFakeSink(), adminGate(tc.admin))
			err := p.Start(context.Background(), tc.file)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Start returned %v, want %v", err, tc.wantErr)
			}
			if diff := cmp.Diff(p.State(), State{}); diff != "" {
				t.Errorf("Rejected Start changed state; diff (-got +want)\n%s", diff)
			}
		})
	}
}

func TestResetAfterSuccess(t *testing.T) {
	ctx := context.Background()
	sink := newFakeSink()
	p := New(sink, adminGate(true))

	if err := p.Start(ctx, testFile("a.png", []byte("a"))); err != nil {
		t.Fatalf("Unexpected error from Start: %v", err)
	}
	sink.result <- nil
	if _, err := p.Wait(ctx); err != nil {
		t.Fatalf("Unexpected error from Wait: %v", err)
	}

	if err := p.Reset(); err != nil {
		t.Fatalf("Unexpected error from Reset: %v", err)
	}
	if diff := cmp.Diff(p.State(), State{}); diff != "" {
		t.Errorf("Bad state after Reset; diff (-got +want)\n%s", diff)
	}

	// A new upload may start after a reset.
	go func() { sink.result <- nil }()
	addr, err := p.UploadAndWait(ctx, testFile("b.png", []byte("b")))
	if err != nil {
		t.Fatalf("Unexpected error from UploadAndWait: %v", err)
	}
	if addr != "https://store/images/b.png" {
		t.Errorf("Got address %q", addr)
	}
}

func TestWaitWhenIdle(t *testing.T) {
	p := New(newFakeSink(), adminGate(true))
	got, err := p.Wait(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error from Wait: %v", err)
	}
	if got.Phase != Idle {
		t.Errorf("Phase = %v, want idle", got.Phase)
	}
}

func TestFileFromPath(t *testing.T) {
	dir := t.TempDir()

	// Smallest valid PNG header is enough for content sniffing.
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")
	pngPath := filepath.Join(dir, "falls.png")
	if err := os.WriteFile(pngPath, png, 0o600); err != nil {
		t.Fatalf("Unexpected error writing file: %v", err)
	}

	f, err := FileFromPath(pngPath)
	if err != nil {
		t.Fatalf("Unexpected error from FileFromPath: %v", err)
	}
	if f.Name != "falls.png" || f.Size != int64(len(png)) || f.ContentType != "image/png" {
		t.Errorf("FileFromPath = {%q, %d, %q}", f.Name, f.Size, f.ContentType)
	}
	r, err := f.Open()
	if err != nil {
		t.Fatalf("Unexpected error from Open: %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("Unexpected error reading: %v", err)
	}
	if !bytes.Equal(data, png) {
		t.Errorf("Open returned different contents")
	}

	txtPath := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txtPath, []byte("just text\n"), 0o600); err != nil {
		t.Fatalf("Unexpected error writing file: %v", err)
	}
	txt, err := FileFromPath(txtPath)
	if err != nil {
		t.Fatalf("Unexpected error from FileFromPath: %v", err)
	}
	if err := New(newFakeSink(), adminGate(true)).Start(context.Background(), txt); !errors.Is(err, apperrors.ErrValidationFailed) {
		t.Errorf("Start with a text file returned %v, want ErrValidationFailed", err)
	}

	if _, err := FileFromPath(filepath.Join(dir, "missing.png")); err == nil {
		t.Errorf("Expected an error for a missing file")
	}
}
