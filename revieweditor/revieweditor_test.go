package revieweditor

import (
	"context"
	"errors"
	"testing"

	"attractions/apperrors"
	"attractions/catalog"
	"attractions/dbtypes"
	"attractions/identity"

	"github.com/google/go-cmp/cmp"
)

type submission struct {
	Op           string
	AttractionID string
	ID           string
	Text         string
	Rating       int
}

type fakeMutator struct {
	calls []submission
	err   error
}

func (m *fakeMutator) CreateReview(ctx context.Context, attractionID, authorUserID, text string, rating int) (*dbtypes.Review, error) {
	m.calls = append(m.calls, submission{"create", attractionID, authorUserID, text, rating})
	if m.err != nil {
		return nil, m.err
	}
	return &dbtypes.Review{ID: "new", AttractionID: attractionID, AuthorUserID: authorUserID, Text: text, Rating: rating}, nil
}

func (m *fakeMutator) UpdateReview(ctx context.Context, attractionID, reviewID, text string, rating int) error {
	m.calls = append(m.calls, submission{"update", attractionID, reviewID, text, rating})
	return m.err
}

func (m *fakeMutator) DeleteReview(ctx context.Context, attractionID, reviewID string, confirm catalog.Confirmer) (bool, error) {
	ok, err := confirm.Confirm(ctx, "delete?")
	if err != nil || !ok {
		return false, err
	}
	m.calls = append(m.calls, submission{Op: "delete", AttractionID: attractionID, ID: reviewID})
	return true, m.err
}

// blockingMutator holds CreateReview until release is closed.
type blockingMutator struct {
	fakeMutator
	entered chan struct{}
	release chan struct{}
}

func (m *blockingMutator) CreateReview(ctx context.Context, attractionID, authorUserID, text string, rating int) (*dbtypes.Review, error) {
	close(m.entered)
	<-m.release
	return m.fakeMutator.CreateReview(ctx, attractionID, authorUserID, text, rating)
}

type staticUser struct {
	user *identity.User
}

func (s staticUser) User() *identity.User { return s.user }

var (
	u1 = &identity.User{ID: "u1", Email: "u1@example.com"}
	u2 = &identity.User{ID: "u2", Email: "u2@example.com"}

	r1 = &dbtypes.Review{ID: "r1", AttractionID: "p1", AuthorUserID: "u1", Text: "Loud", Rating: 4}
)

func TestCreateFlow(t *testing.T) {
	m := &fakeMutator{}
	e := New(m, staticUser{u1})

	if err := e.OpenCreate("p1"); err != nil {
		t.Fatalf("Unexpected error from OpenCreate: %v", err)
	}
	if e.Mode() != OpenCreate || e.Text() != "" || e.Rating() != 0 {
		t.Fatalf("Bad initial form: mode=%v text=%q rating=%d", e.Mode(), e.Text(), e.Rating())
	}

	e.SetText("Great")
	e.SetRating(5)
	if err := e.Submit(context.Background()); err != nil {
		t.Fatalf("Unexpected error from Submit: %v", err)
	}

	want := []submission{{"create", "p1", "u1", "Great", 5}}
	if diff := cmp.Diff(m.calls, want); diff != "" {
		t.Errorf("Bad submissions; diff (-got +want)\n%s", diff)
	}
	if e.Mode() != Closed || e.Text() != "" || e.Rating() != 0 || e.AttractionID() != "" {
		t.Errorf("Form not cleared after submit")
	}
}

func TestOpenCreateRequiresUser(t *testing.T) {
	e := New(&fakeMutator{}, staticUser{nil})
	if err := e.OpenCreate("p1"); !errors.Is(err, apperrors.ErrPermissionDenied) {
		t.Fatalf("OpenCreate returned %v, want ErrPermissionDenied", err)
	}
	if e.Mode() != Closed {
		t.Errorf("Mode = %v, want closed", e.Mode())
	}
}

func TestEditFlow(t *testing.T) {
	m := &fakeMutator{}
	e := New(m, staticUser{u1})

	if err := e.OpenEdit("p1", r1); err != nil {
		t.Fatalf("Unexpected error from OpenEdit: %v", err)
	}
	if e.Mode() != OpenEdit || e.Text() != "Loud" || e.Rating() != 4 || e.ReviewID() != "r1" {
		t.Fatalf("Form not pre-populated: mode=%v text=%q rating=%d id=%q", e.Mode(), e.Text(), e.Rating(), e.ReviewID())
	}

	e.SetText("Deafening")
	if err := e.Submit(context.Background()); err != nil {
		t.Fatalf("Unexpected error from Submit: %v", err)
	}

	want := []submission{{"update", "p1", "r1", "Deafening", 4}}
	if diff := cmp.Diff(m.calls, want); diff != "" {
		t.Errorf("Bad submissions; diff (-got +want)\n%s", diff)
	}
	if e.Mode() != Closed {
		t.Errorf("Mode = %v after submit, want closed", e.Mode())
	}
}

func TestOpenEditRequiresAuthor(t *testing.T) {
	testCases := []struct {
		desc string
		user *identity.User
	}{
		{"signed out", nil},
		{"other user", u2},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			e := New(&fakeMutator{}, staticUser{tc.user})
			if err := e.OpenEdit("p1", r1); !errors.Is(err, apperrors.ErrPermissionDenied) {
				t.Fatalf("OpenEdit returned %v, want ErrPermissionDenied", err)
			}
			if e.Mode() != Closed {
				t.Errorf("Mode = %v, want closed", e.Mode())
			}
		})
	}
}

func TestSubmitValidation(t *testing.T) {
	testCases := []struct {
		desc   string
		text   string
		rating int
	}{
		{"no rating", "Fine", 0},
		{"negative rating", "Fine", -2},
		{"no text", "", 3},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			m := &fakeMutator{}
			e := New(m, staticUser{u1})
			if err := e.OpenCreate("p1"); err != nil {
				t.Fatalf("Unexpected error from OpenCreate: %v", err)
			}
			e.SetText(tc.text)
			e.SetRating(tc.rating)

			if err := e.Submit(context.Background()); !errors.Is(err, apperrors.ErrValidationFailed) {
				t.Fatalf("Submit returned %v, want ErrValidationFailed", err)
			}
			if len(m.calls) != 0 {
				t.Errorf("Invalid submit reached the repository: %v", m.calls)
			}
			if e.Mode() != OpenCreate || e.Text() != tc.text || e.Rating() != tc.rating {
				t.Errorf("Form changed after a rejected submit")
			}
		})
	}
}

func TestSubmitFailureKeepsForm(t *testing.T) {
	m := &fakeMutator{err: apperrors.Store("adding review", errors.New("unavailable"))}
	e := New(m, staticUser{u1})
	if err := e.OpenCreate("p1"); err != nil {
		t.Fatalf("Unexpected error from OpenCreate: %v", err)
	}
	e.SetText("Great")
	e.SetRating(5)

	if err := e.Submit(context.Background()); !errors.Is(err, apperrors.ErrStoreFailure) {
		t.Fatalf("Submit returned %v, want ErrStoreFailure", err)
	}
	if e.Mode() != OpenCreate || e.Text() != "Great" || e.Rating() != 5 {
		t.Errorf("Form cleared after a failed submit")
	}
}

func TestSubmitClosed(t *testing.T) {
	e := New(&fakeMutator{}, staticUser{u1})
	if err := e.Submit(context.Background()); !errors.Is(err, apperrors.ErrValidationFailed) {
		t.Errorf("Submit on a closed editor returned %v, want ErrValidationFailed", err)
	}
}

func TestCloseDiscards(t *testing.T) {
	e := New(&fakeMutator{}, staticUser{u1})
	if err := e.OpenEdit("p1", r1); err != nil {
		t.Fatalf("Unexpected error from OpenEdit: %v", err)
	}
	e.Close()
	if e.Mode() != Closed || e.Text() != "" || e.ReviewID() != "" {
		t.Errorf("Close left state behind")
	}

	// Setters are ignored while closed.
	e.SetText("ignored")
	if e.Text() != "" {
		t.Errorf("SetText changed a closed form")
	}
}

func TestDeleteOwnReview(t *testing.T) {
	ctx := context.Background()
	yes := catalog.ConfirmFunc(func(ctx context.Context, prompt string) (bool, error) { return true, nil })
	no := catalog.ConfirmFunc(func(ctx context.Context, prompt string) (bool, error) { return false, nil })

	m := &fakeMutator{}
	if _, err := DeleteOwnReview(ctx, m, u2, "p1", r1, yes); !errors.Is(err, apperrors.ErrPermissionDenied) {
		t.Errorf("Delete by another user returned %v, want ErrPermissionDenied", err)
	}
	if deleted, err := DeleteOwnReview(ctx, m, u1, "p1", r1, no); err != nil || deleted {
		t.Errorf("Declined delete = (%v, %v), want (false, nil)", deleted, err)
	}
	if len(m.calls) != 0 {
		t.Fatalf("Unexpected deletes: %v", m.calls)
	}

	deleted, err := DeleteOwnReview(ctx, m, u1, "p1", r1, yes)
	if err != nil || !deleted {
		t.Fatalf("Confirmed delete = (%v, %v), want (true, nil)", deleted, err)
	}
	want := []submission{{Op: "delete", AttractionID: "p1", ID: "r1"}}
	if diff := cmp.Diff(m.calls, want); diff != "" {
		t.Errorf("Bad deletes; diff (-got +want)\n%s", diff)
	}
}

func TestSubmitWhileSubmitting(t *testing.T) {
	ctx := context.Background()
	m := &blockingMutator{entered: make(chan struct{}), release: make(chan struct{})}
	e := New(m, staticUser{u1})

	if err := e.OpenCreate("p1"); err != nil {
		t.Fatalf("Unexpected error from OpenCreate: %v", err)
	}
	e.SetText("Great")
	e.SetRating(5)

	done := make(chan error)
	go func() { done <- e.Submit(ctx) }()
	<-m.entered

	if err := e.Submit(ctx); !errors.Is(err, apperrors.ErrBusy) {
		t.Errorf("Second Submit returned %v, want ErrBusy", err)
	}

	close(m.release)
	if err := <-done; err != nil {
		t.Fatalf("Unexpected error from first Submit: %v", err)
	}
	want := []submission{{"create", "p1", "u1", "Great", 5}}
	if diff := cmp.Diff(m.calls, want); diff != "" {
		t.Errorf("Bad submissions; diff (-got +want)\n%s", diff)
	}
	if e.Mode() != Closed {
		t.Errorf("Form still open after submit: %v", e.Mode())
	}

	// The in-flight guard is released once the first Submit returns.
	if err := e.Submit(ctx); !errors.Is(err, apperrors.ErrValidationFailed) {
		t.Errorf("Submit on closed form returned %v, want ErrValidationFailed", err)
	}
}
