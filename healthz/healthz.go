// Package healthz serves liveness and readiness probes.
package healthz

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Check reports nil when the named dependency is usable.
type Check struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler answers 200 when every check passes and 503 otherwise.  A Handler
// with no checks is a plain liveness probe.
type Handler struct {
	checks  []Check
	timeout time.Duration
}

func New(checks ...Check) *Handler {
	return &Handler{
		checks:  checks,
		timeout: 5 * time.Second,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var failures []string
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", c.Name, err))
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if len(failures) != 0 {
		slog.WarnContext(ctx, "Health check failed", slog.String("path", r.URL.Path), slog.Any("failures", failures))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(strings.Join(failures, "\n") + "\n"))
		return
	}
	w.Write([]byte("200 OK"))
}
