package catalog

import (
	"time"

	"attractions/dbtypes"
)

// Entry is one attraction with its reviews, in store order.
type Entry struct {
	Attraction dbtypes.Attraction
	Reviews    []dbtypes.Review
}

// View is a complete snapshot of the catalog.  A published View is never
// modified; a refresh publishes a new one.
type View struct {
	Entries  []Entry
	LoadedAt time.Time
}

// Find returns the entry for attractionID.
func (v *View) Find(attractionID string) (*Entry, bool) {
	if v == nil {
		return nil, false
	}
	for i := range v.Entries {
		if v.Entries[i].Attraction.ID == attractionID {
			return &v.Entries[i], true
		}
	}
	return nil, false
}

// FindReview returns a review by attraction and review ID.
func (v *View) FindReview(attractionID, reviewID string) (*dbtypes.Review, bool) {
	e, ok := v.Find(attractionID)
	if !ok {
		return nil, false
	}
	for i := range e.Reviews {
		if e.Reviews[i].ID == reviewID {
			return &e.Reviews[i], true
		}
	}
	return nil, false
}

// ReviewCount is the total number of reviews across all entries.
func (v *View) ReviewCount() int {
	if v == nil {
		return 0
	}
	n := 0
	for _, e := range v.Entries {
		n += len(e.Reviews)
	}
	return n
}
