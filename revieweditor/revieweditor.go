// Package revieweditor is the state machine behind the review form: closed,
// open for a new review, or open to edit an existing one.
package revieweditor

import (
	"context"
	"fmt"
	"sync"

	"attractions/apperrors"
	"attractions/catalog"
	"attractions/dbtypes"
	"attractions/identity"
)

type Mode int

const (
	Closed Mode = iota
	OpenCreate
	OpenEdit
)

func (m Mode) String() string {
	switch m {
	case Closed:
		return "closed"
	case OpenCreate:
		return "open-create"
	case OpenEdit:
		return "open-edit"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Mutator is the part of the catalog repository the editor submits to.
type Mutator interface {
	CreateReview(ctx context.Context, attractionID, authorUserID, text string, rating int) (*dbtypes.Review, error)
	UpdateReview(ctx context.Context, attractionID, reviewID, text string, rating int) error
}

// Deleter is the part of the catalog repository that removes reviews.
type Deleter interface {
	DeleteReview(ctx context.Context, attractionID, reviewID string, confirm catalog.Confirmer) (bool, error)
}

// UserSource yields the signed-in user, or nil.
type UserSource interface {
	User() *identity.User
}

// Editor holds the form state for one user at a time.
type Editor struct {
	mutator Mutator
	users   UserSource

	mu           sync.Mutex
	mode         Mode
	attractionID string
	reviewID     string
	text         string
	rating       int
	submitting   bool
}

func New(mutator Mutator, users UserSource) *Editor {
	return &Editor{
		mutator: mutator,
		users:   users,
	}
}

func (e *Editor) currentUser() *identity.User {
	if e.users == nil {
		return nil
	}
	return e.users.User()
}

// OpenCreate opens an empty form for a new review of attractionID.
func (e *Editor) OpenCreate(attractionID string) error {
	if e.currentUser() == nil {
		return apperrors.PermissionDenied("sign in to write a review")
	}
	if attractionID == "" {
		return apperrors.Validation("attraction must not be empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = OpenCreate
	e.attractionID = attractionID
	e.reviewID = ""
	e.text = ""
	e.rating = 0
	return nil
}

// OpenEdit opens the form pre-populated with review.  Only the review's
// author may edit it.
func (e *Editor) OpenEdit(attractionID string, review *dbtypes.Review) error {
	if review == nil {
		return apperrors.Validation("no review selected")
	}
	if !ownsReview(e.currentUser(), review) {
		return apperrors.PermissionDenied("only the author may edit a review")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = OpenEdit
	e.attractionID = attractionID
	e.reviewID = review.ID
	e.text = review.Text
	e.rating = review.Rating
	return nil
}

func (e *Editor) SetText(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != Closed {
		e.text = text
	}
}

func (e *Editor) SetRating(rating int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != Closed {
		e.rating = rating
	}
}

// Close discards the form.
func (e *Editor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
}

// Must hold e.mu.
func (e *Editor) reset() {
	e.mode = Closed
	e.attractionID = ""
	e.reviewID = ""
	e.text = ""
	e.rating = 0
}

func (e *Editor) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

func (e *Editor) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text
}

func (e *Editor) Rating() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rating
}

func (e *Editor) AttractionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attractionID
}

func (e *Editor) ReviewID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reviewID
}

// Submit sends the form to the repository.  On success the form closes; on
// any failure it stays open with its contents intact.  A Submit made while
// another is still in flight fails with ErrBusy.
func (e *Editor) Submit(ctx context.Context) error {
	e.mu.Lock()
	if e.submitting {
		e.mu.Unlock()
		return fmt.Errorf("while submitting review: %w", apperrors.ErrBusy)
	}
	e.submitting = true
	mode, attractionID, reviewID, text, rating := e.mode, e.attractionID, e.reviewID, e.text, e.rating
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.submitting = false
		e.mu.Unlock()
	}()

	if mode == Closed {
		return apperrors.Validation("no review is open")
	}
	if text == "" {
		return apperrors.Validation("review text must not be empty")
	}
	if rating <= 0 {
		return apperrors.Validation("choose a rating")
	}

	switch mode {
	case OpenCreate:
		user := e.currentUser()
		if user == nil {
			return apperrors.PermissionDenied("sign in to write a review")
		}
		if _, err := e.mutator.CreateReview(ctx, attractionID, user.ID, text, rating); err != nil {
			return fmt.Errorf("while submitting new review: %w", err)
		}
	case OpenEdit:
		if err := e.mutator.UpdateReview(ctx, attractionID, reviewID, text, rating); err != nil {
			return fmt.Errorf("while submitting edited review: %w", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// Only clear the form if it still holds what was submitted.
	if e.mode == mode && e.attractionID == attractionID && e.reviewID == reviewID {
		e.reset()
	}
	return nil
}

// DeleteOwnReview deletes review after asking confirm, provided user wrote
// it.  It reports whether the review was deleted.
func DeleteOwnReview(ctx context.Context, deleter Deleter, user *identity.User, attractionID string, review *dbtypes.Review, confirm catalog.Confirmer) (bool, error) {
	if review == nil {
		return false, apperrors.Validation("no review selected")
	}
	if !ownsReview(user, review) {
		return false, apperrors.PermissionDenied("only the author may delete a review")
	}
	return deleter.DeleteReview(ctx, attractionID, review.ID, confirm)
}

func ownsReview(user *identity.User, review *dbtypes.Review) bool {
	return user != nil && user.ID != "" && user.ID == review.AuthorUserID
}
