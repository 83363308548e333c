package healthz

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandler(t *testing.T) {
	ok := Check{Name: "store", Check: func(ctx context.Context) error { return nil }}
	notLoaded := Check{Name: "catalog", Check: func(ctx context.Context) error { return errors.New("not loaded yet") }}

	testCases := []struct {
		desc       string
		checks     []Check
		wantStatus int
		wantBody   string
	}{
		{"liveness", nil, http.StatusOK, "200 OK"},
		{"all pass", []Check{ok}, http.StatusOK, "200 OK"},
		{"one fails", []Check{ok, notLoaded}, http.StatusServiceUnavailable, "catalog: not loaded yet\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			rec := httptest.NewRecorder()
			New(tc.checks...).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			resp := rec.Result()
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != tc.wantStatus {
				t.Errorf("Status = %d, want %d", resp.StatusCode, tc.wantStatus)
			}
			if !strings.Contains(string(body), tc.wantBody) {
				t.Errorf("Body = %q, want it to contain %q", body, tc.wantBody)
			}
		})
	}
}
