// Package catalog keeps the in-memory catalog of attractions and their
// reviews in sync with the document store.
//
// Every successful mutation is followed by a full reload; the catalog view is
// never patched in place.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"attractions/apperrors"
	"attractions/dbtypes"
	"attractions/docstore"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const tracerName = "attractions/catalog"

// AdminGate reports whether the acting identity is the administrator.
type AdminGate interface {
	IsAdmin() bool
}

// Confirmer asks the acting user a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Repository loads and mutates the catalog.
//
// Review ownership is not checked here.  Callers must only offer edit and
// delete to the review's author.
type Repository struct {
	store docstore.Store
	gate  AdminGate

	validate             *validator.Validate
	fetchTimeout         time.Duration
	maxConcurrentFetches int64
	now                  func() time.Time

	// loads numbers each LoadCatalog call in start order; published holds the
	// view of the newest load that has finished.
	loads     atomic.Uint64
	published atomic.Pointer[publishedView]
}

type publishedView struct {
	gen  uint64
	view *View
}

type RepositoryOpt func(*Repository)

// WithFetchTimeout bounds each catalog load.
func WithFetchTimeout(d time.Duration) RepositoryOpt {
	return func(r *Repository) {
		r.fetchTimeout = d
	}
}

// WithMaxConcurrentFetches bounds the number of review listings in flight
// during a load.  Non-positive values are ignored.
func WithMaxConcurrentFetches(n int64) RepositoryOpt {
	return func(r *Repository) {
		if n > 0 {
			r.maxConcurrentFetches = n
		}
	}
}

// WithClock overrides the clock used to stamp views.
func WithClock(now func() time.Time) RepositoryOpt {
	return func(r *Repository) {
		r.now = now
	}
}

func New(store docstore.Store, gate AdminGate, opts ...RepositoryOpt) *Repository {
	r := &Repository{
		store:                store,
		gate:                 gate,
		validate:             validator.New(),
		fetchTimeout:         30 * time.Second,
		maxConcurrentFetches: 16,
		now:                  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// View returns the last published catalog, or nil if none has loaded yet.
func (r *Repository) View() *View {
	if p := r.published.Load(); p != nil {
		return p.view
	}
	return nil
}

// publish installs view unless a load that started later has already been
// published.  It returns the view that ends up published.
func (r *Repository) publish(gen uint64, view *View) *View {
	next := &publishedView{gen: gen, view: view}
	for {
		cur := r.published.Load()
		if cur != nil && cur.gen > gen {
			return cur.view
		}
		if r.published.CompareAndSwap(cur, next) {
			return view
		}
	}
}

// LoadCatalog fetches every attraction and, concurrently, every attraction's
// reviews.  The new view is published only if all fetches succeed; on any
// failure the previous view stays in place.
//
// Overlapping loads publish in the order they started: a load that finishes
// after a newer one has been published is discarded, and the newer view is
// returned instead.
func (r *Repository) LoadCatalog(ctx context.Context) (*View, error) {
	var span trace.Span
	ctx, span = otel.Tracer(tracerName).Start(ctx, "Repository.LoadCatalog")
	defer span.End()

	gen := r.loads.Add(1)

	ctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	view, err := r.fetch(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if published := r.publish(gen, view); published != view {
		slog.InfoContext(ctx, "Discarding catalog load overtaken by a newer one", slog.Uint64("load", gen))
		span.SetAttributes(attribute.Bool("stale", true))
		view = published
	}

	span.SetAttributes(
		attribute.Int("attractions", len(view.Entries)),
		attribute.Int("reviews", view.ReviewCount()),
	)
	span.SetStatus(codes.Ok, "")
	return view, nil
}

func (r *Repository) fetch(ctx context.Context) (*View, error) {
	productDocs, err := r.store.ListAll(ctx, dbtypes.ProductsPath())
	if err != nil {
		return nil, apperrors.Store("listing attractions", err)
	}

	entries := make([]Entry, len(productDocs))
	for i, doc := range productDocs {
		a, err := dbtypes.AttractionFromDocument(doc)
		if err != nil {
			return nil, apperrors.Store("decoding attractions", err)
		}
		entries[i].Attraction = *a
	}

	// Each goroutine writes only its own entry, and nothing reads entries
	// until Wait returns.
	eg, egCtx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(r.maxConcurrentFetches)
	for i := range entries {
		if err := sem.Acquire(egCtx, 1); err != nil {
			if werr := eg.Wait(); werr != nil {
				return nil, werr
			}
			return nil, fmt.Errorf("while acquiring fetch limiter: %w", err)
		}

		i := i // per-iteration copy; go.mod targets go 1.21 (pre-1.22 loop semantics)
		eg.Go(func() error {
			defer sem.Release(1)
			reviews, err := r.fetchReviews(egCtx, entries[i].Attraction.ID)
			if err != nil {
				return err
			}
			entries[i].Reviews = reviews
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return &View{
		Entries:  entries,
		LoadedAt: r.now(),
	}, nil
}

func (r *Repository) fetchReviews(ctx context.Context, attractionID string) ([]dbtypes.Review, error) {
	docs, err := r.store.ListAll(ctx, dbtypes.ReviewsPath(attractionID))
	if err != nil {
		return nil, apperrors.Store(fmt.Sprintf("listing reviews for attraction %s", attractionID), err)
	}

	reviews := make([]dbtypes.Review, 0, len(docs))
	for _, doc := range docs {
		review, err := dbtypes.ReviewFromDocument(attractionID, doc)
		if err != nil {
			return nil, apperrors.Store(fmt.Sprintf("decoding reviews for attraction %s", attractionID), err)
		}
		reviews = append(reviews, *review)
	}
	return reviews, nil
}

// Refresh invalidates the current view by reloading the whole catalog.
func (r *Repository) Refresh(ctx context.Context) error {
	_, err := r.LoadCatalog(ctx)
	return err
}

// CreateAttraction adds a catalog entry.  Only the administrator may do so.
func (r *Repository) CreateAttraction(ctx context.Context, name, location, imageAddress string) (*dbtypes.Attraction, error) {
	var span trace.Span
	ctx, span = otel.Tracer(tracerName).Start(ctx, "Repository.CreateAttraction")
	defer span.End()

	if r.gate == nil || !r.gate.IsAdmin() {
		return nil, apperrors.PermissionDenied("only the administrator may add attractions")
	}

	a := &dbtypes.Attraction{
		Name:         name,
		Location:     location,
		ImageAddress: imageAddress,
	}
	if err := r.check(a); err != nil {
		return nil, err
	}

	id, err := r.store.Add(ctx, dbtypes.ProductsPath(), a.Fields())
	if err != nil {
		err = apperrors.Store("adding attraction", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	a.ID = id

	slog.InfoContext(ctx, "Attraction added", slog.String("attraction", id), slog.String("name", name))
	r.refreshAfter(ctx, "create attraction")
	return a, nil
}

// CreateReview files a new review under attractionID.
func (r *Repository) CreateReview(ctx context.Context, attractionID, authorUserID, text string, rating int) (*dbtypes.Review, error) {
	var span trace.Span
	ctx, span = otel.Tracer(tracerName).Start(ctx, "Repository.CreateReview")
	defer span.End()

	if attractionID == "" {
		return nil, apperrors.Validation("no attraction selected")
	}
	if authorUserID == "" {
		return nil, apperrors.Validation("reviews need an author")
	}
	review := &dbtypes.Review{
		AttractionID: attractionID,
		AuthorUserID: authorUserID,
		Text:         text,
		Rating:       rating,
	}
	if err := r.check(review); err != nil {
		return nil, err
	}

	id, err := r.store.Add(ctx, dbtypes.ReviewsPath(attractionID), review.Fields())
	if err != nil {
		err = apperrors.Store("adding review", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	review.ID = id

	slog.InfoContext(ctx, "Review added", slog.String("attraction", attractionID), slog.String("review", id))
	r.refreshAfter(ctx, "create review")
	return review, nil
}

// UpdateReview replaces the text and rating of an existing review.
func (r *Repository) UpdateReview(ctx context.Context, attractionID, reviewID, text string, rating int) error {
	var span trace.Span
	ctx, span = otel.Tracer(tracerName).Start(ctx, "Repository.UpdateReview")
	defer span.End()

	if attractionID == "" || reviewID == "" {
		return apperrors.Validation("no review selected")
	}
	review := &dbtypes.Review{
		ID:           reviewID,
		AttractionID: attractionID,
		Text:         text,
		Rating:       rating,
	}
	if err := r.check(review); err != nil {
		return err
	}

	if err := r.store.Update(ctx, dbtypes.ReviewPath(attractionID, reviewID), review.EditableFields()); err != nil {
		err = apperrors.Store("updating review", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	slog.InfoContext(ctx, "Review updated", slog.String("attraction", attractionID), slog.String("review", reviewID))
	r.refreshAfter(ctx, "update review")
	return nil
}

// DeleteReview removes a review once confirm agrees.  It reports whether the
// review was deleted; a declined confirmation is not an error and makes no
// store call.
func (r *Repository) DeleteReview(ctx context.Context, attractionID, reviewID string, confirm Confirmer) (bool, error) {
	var span trace.Span
	ctx, span = otel.Tracer(tracerName).Start(ctx, "Repository.DeleteReview")
	defer span.End()

	if attractionID == "" || reviewID == "" {
		return false, apperrors.Validation("no review selected")
	}
	if confirm == nil {
		return false, nil
	}

	ok, err := confirm.Confirm(ctx, "Are you sure you want to delete this review?")
	if err != nil {
		return false, fmt.Errorf("while asking for delete confirmation: %w", err)
	}
	if !ok {
		slog.InfoContext(ctx, "Review deletion declined", slog.String("review", reviewID))
		return false, nil
	}

	if err := r.store.Delete(ctx, dbtypes.ReviewPath(attractionID, reviewID)); err != nil {
		err = apperrors.Store("deleting review", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	slog.InfoContext(ctx, "Review deleted", slog.String("attraction", attractionID), slog.String("review", reviewID))
	r.refreshAfter(ctx, "delete review")
	return true, nil
}

// refreshAfter reloads the catalog after a committed mutation.  The mutation
// has already happened, so a failed reload only leaves the old view up.
func (r *Repository) refreshAfter(ctx context.Context, mutation string) {
	if err := r.Refresh(ctx); err != nil {
		slog.WarnContext(ctx, "Catalog refresh after mutation failed", slog.String("mutation", mutation), slog.Any("err", err))
	}
}

func (r *Repository) check(v any) error {
	err := r.validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Validation("%v", err)
	}

	reasons := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			reasons = append(reasons, fmt.Sprintf("%s must not be empty", fieldLabel(fe.Field())))
		case "min", "max":
			reasons = append(reasons, fmt.Sprintf("%s must be between 1 and 5", fieldLabel(fe.Field())))
		default:
			reasons = append(reasons, fmt.Sprintf("%s is invalid", fieldLabel(fe.Field())))
		}
	}
	return apperrors.Validation("%s", strings.Join(reasons, "; "))
}

func fieldLabel(field string) string {
	switch field {
	case "ImageAddress":
		return "image"
	case "Text":
		return "review text"
	default:
		return strings.ToLower(field)
	}
}
