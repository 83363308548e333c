// Package httpmetrics counts and times the requests a handler serves.
package httpmetrics

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	keyRoute  = tag.MustNewKey("route")
	keyMethod = tag.MustNewKey("method")
	keyCode   = tag.MustNewKey("code")
)

type Wrapper struct {
	route string

	requestCount       *stats.Int64Measure
	requestLatency     *stats.Float64Measure
	requestCountView   *view.View
	requestLatencyView *view.View

	inner http.Handler
}

// New wraps inner.  Measurements are tagged with route rather than the raw
// path so that per-attraction URLs don't explode the tag space.
func New(route string, inner http.Handler) *Wrapper {
	r := &Wrapper{route: route}

	r.requestCount = stats.Int64("attractions/requests", "Requests handled", stats.UnitDimensionless)
	r.requestLatency = stats.Float64("attractions/request_latency", "Time to serve a request", stats.UnitMilliseconds)
	r.requestCountView = &view.View{
		Name:        "attractions/requests",
		Description: "Counter of requests that have been handled",

		TagKeys: []tag.Key{keyRoute, keyMethod, keyCode},

		Measure:     r.requestCount,
		Aggregation: view.Count(),
	}
	r.requestLatencyView = &view.View{
		Name:        "attractions/request_latency",
		Description: "Distribution of request latencies",

		TagKeys: []tag.Key{keyRoute},

		Measure:     r.requestLatency,
		Aggregation: view.Distribution(1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000),
	}

	r.inner = inner

	return r
}

// RegisterMetrics registers the views.  The views are shared by every
// Wrapper, so calling it more than once is harmless.
func (h *Wrapper) RegisterMetrics() error {
	return view.Register(h.requestCountView, h.requestLatencyView)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (h *Wrapper) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w}
	h.inner.ServeHTTP(rec, r)
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	elapsed := time.Since(start)

	slog.InfoContext(r.Context(), "Served request",
		slog.String("route", h.route),
		slog.String("path", r.URL.Path),
		slog.Int("code", rec.status),
		slog.Duration("took", elapsed),
		slog.String("useragent", r.UserAgent()),
	)

	stats.RecordWithOptions(
		r.Context(),
		stats.WithTags(
			tag.Insert(keyRoute, h.route),
			tag.Insert(keyMethod, r.Method),
			tag.Insert(keyCode, strconv.Itoa(rec.status)),
		),
		stats.WithMeasurements(
			h.requestCount.M(1),
			h.requestLatency.M(float64(elapsed)/float64(time.Millisecond)),
		))
}
