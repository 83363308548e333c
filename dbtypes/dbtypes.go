// Package dbtypes holds the records kept in the document store and their
// field encodings.
package dbtypes

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"attractions/docstore"
)

// Collection and field names.  These match the data set already in
// production, which is why an attraction's name is stored as "attraction".
const (
	ProductsCollection = "products"
	ReviewsCollection  = "reviews"

	FieldAttractionName = "attraction"
	FieldLocation       = "location"
	FieldImage          = "image"

	FieldProductID  = "productId"
	FieldUserID     = "userId"
	FieldReviewText = "reviewText"
	FieldRating     = "rating"
)

// Attraction is one catalog entry.
type Attraction struct {
	ID           string
	Name         string `validate:"required"`
	Location     string `validate:"required"`
	ImageAddress string `validate:"required"`
}

// Review is a rated comment filed under exactly one Attraction.
type Review struct {
	ID           string
	AttractionID string
	AuthorUserID string
	Text         string `validate:"required"`
	Rating       int    `validate:"min=1,max=5"`
}

// ProductsPath is the collection path holding every attraction.
func ProductsPath() string {
	return ProductsCollection
}

// ReviewsPath is the collection path holding an attraction's reviews.
func ReviewsPath(attractionID string) string {
	return ProductsCollection + "/" + attractionID + "/" + ReviewsCollection
}

// ReviewPath is the document path of a single review.
func ReviewPath(attractionID, reviewID string) string {
	return ReviewsPath(attractionID) + "/" + reviewID
}

// Fields returns the stored form of an attraction.  The ID is not stored;
// it is the document ID.
func (a *Attraction) Fields() map[string]any {
	return map[string]any{
		FieldAttractionName: a.Name,
		FieldLocation:       a.Location,
		FieldImage:          a.ImageAddress,
	}
}

// Fields returns the stored form of a new review.
func (r *Review) Fields() map[string]any {
	return map[string]any{
		FieldUserID:     r.AuthorUserID,
		FieldReviewText: r.Text,
		FieldRating:     r.Rating,
		FieldProductID:  r.AttractionID,
	}
}

// EditableFields returns the fields an update may change.
func (r *Review) EditableFields() map[string]any {
	return map[string]any{
		FieldReviewText: r.Text,
		FieldRating:     r.Rating,
	}
}

// AttractionFromDocument decodes a products document.
func AttractionFromDocument(doc docstore.Document) (*Attraction, error) {
	a := &Attraction{ID: doc.ID}
	var err error
	if a.Name, err = stringField(doc.Fields, FieldAttractionName); err != nil {
		return nil, fmt.Errorf("while decoding attraction %s: %w", doc.ID, err)
	}
	if a.Location, err = stringField(doc.Fields, FieldLocation); err != nil {
		return nil, fmt.Errorf("while decoding attraction %s: %w", doc.ID, err)
	}
	if a.ImageAddress, err = stringField(doc.Fields, FieldImage); err != nil {
		return nil, fmt.Errorf("while decoding attraction %s: %w", doc.ID, err)
	}
	return a, nil
}

// ReviewFromDocument decodes a reviews document belonging to attractionID.
func ReviewFromDocument(attractionID string, doc docstore.Document) (*Review, error) {
	r := &Review{ID: doc.ID, AttractionID: attractionID}
	var err error
	if r.AuthorUserID, err = stringField(doc.Fields, FieldUserID); err != nil {
		return nil, fmt.Errorf("while decoding review %s: %w", doc.ID, err)
	}
	if r.Text, err = stringField(doc.Fields, FieldReviewText); err != nil {
		return nil, fmt.Errorf("while decoding review %s: %w", doc.ID, err)
	}
	if r.Rating, err = ratingField(doc.Fields[FieldRating]); err != nil {
		return nil, fmt.Errorf("while decoding review %s: %w", doc.ID, err)
	}
	return r, nil
}

// stringField reads an optional string field.  Missing fields decode as "".
func stringField(fields map[string]any, name string) (string, error) {
	v, ok := fields[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q has type %T, want string", name, v)
	}
	return s, nil
}

// ratingField accepts every form a rating has been stored in.  Older
// reviews stored the raw form input, so decimal strings occur alongside
// Firestore integers and the float64 numbers of JSON-like encodings.
func ratingField(v any) (int, error) {
	switch r := v.(type) {
	case nil:
		return 0, nil
	case int:
		return r, nil
	case int32:
		return int(r), nil
	case int64:
		return int(r), nil
	case float64:
		if r != math.Trunc(r) {
			return 0, fmt.Errorf("rating %v is not a whole number", r)
		}
		return int(r), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(r))
		if err != nil {
			return 0, fmt.Errorf("while parsing rating %q: %w", r, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("rating has type %T", v)
	}
}
