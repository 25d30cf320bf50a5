package health

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	Healthz(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok\n" {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	var rd Readiness

	tests := []struct {
		ready bool
		code  int
		body  string
	}{
		{false, http.StatusServiceUnavailable, "not ready\n"},
		{true, http.StatusOK, "ready\n"},
		{false, http.StatusServiceUnavailable, "not ready\n"},
	}
	for _, tt := range tests {
		rd.SetReady(tt.ready)
		w := httptest.NewRecorder()
		rd.Readyz(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if w.Code != tt.code || w.Body.String() != tt.body {
			t.Errorf("ready=%v: got %d %q, want %d %q", tt.ready, w.Code, w.Body.String(), tt.code, tt.body)
		}
	}
}
