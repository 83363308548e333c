// Package webui serves a read-only HTML rendering of the catalog.
package webui

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"unicode/utf8"

	"attractions/catalog"
	"attractions/webui/uitemplates"
)

// ExcerptLength is the number of characters of a review shown before it is
// cut off behind a "Read More" link.
const ExcerptLength = 100

// ViewSource yields the most recently published catalog.
type ViewSource interface {
	View() *catalog.View
}

type WebUI struct {
	views ViewSource
}

func New(views ViewSource) *WebUI {
	return &WebUI{
		views: views,
	}
}

func (u *WebUI) Register(m *http.ServeMux) {
	m.HandleFunc("/", u.catalogHandler)
}

// catalogHandler renders every attraction with its reviews.  Long reviews are
// cut to an excerpt unless the attraction is named in an "expand" query
// parameter.
func (u *WebUI) catalogHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	view := u.views.View()
	if view == nil {
		http.Error(w, "Catalog is still loading", http.StatusServiceUnavailable)
		return
	}

	expanded := map[string]bool{}
	for _, id := range r.URL.Query()["expand"] {
		expanded[id] = true
	}

	params := &uitemplates.CatalogParams{
		LoadedAt: view.LoadedAt,
	}
	for _, entry := range view.Entries {
		a := uitemplates.CatalogAttraction{
			ID:           entry.Attraction.ID,
			Name:         entry.Attraction.Name,
			Location:     entry.Attraction.Location,
			ImageAddress: entry.Attraction.ImageAddress,
			Expanded:     expanded[entry.Attraction.ID],
			ToggleLink:   toggleLink(expanded, entry.Attraction.ID),
		}
		for _, review := range entry.Reviews {
			text, truncated := review.Text, false
			if !a.Expanded {
				text, truncated = Excerpt(review.Text, ExcerptLength)
			}
			a.Reviews = append(a.Reviews, uitemplates.CatalogReview{
				Rating:    review.Rating,
				Text:      text,
				Truncated: truncated,
				Long:      utf8.RuneCountInString(review.Text) > ExcerptLength,
			})
		}
		params.Attractions = append(params.Attractions, a)
	}

	content := bytes.Buffer{}
	if err := uitemplates.CatalogTemplate.Execute(&content, params); err != nil {
		slog.ErrorContext(r.Context(), "Error while executing template", slog.Any("err", err))
		http.Error(w, "Internal Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := io.Copy(w, &content); err != nil {
		// It's too late to write an error to the HTTP response.
		slog.ErrorContext(r.Context(), "Error while writing output", slog.Any("err", err))
		return
	}
}

// toggleLink is the catalog URL with id's expansion flipped and every other
// expansion kept.
func toggleLink(expanded map[string]bool, id string) string {
	var ids []string
	for other, on := range expanded {
		if on && other != id {
			ids = append(ids, other)
		}
	}
	if !expanded[id] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	q := url.Values{"expand": ids}
	if len(ids) == 0 {
		q = nil
	}

	u := url.URL{Path: "/", RawQuery: q.Encode(), Fragment: id}
	return u.String()
}

// Excerpt returns the first n characters of text, and whether anything was
// cut.
func Excerpt(text string, n int) (string, bool) {
	if utf8.RuneCountInString(text) <= n {
		return text, false
	}
	runes := 0
	for i := range text {
		if runes == n {
			return text[:i], true
		}
		runes++
	}
	return text, false
}
