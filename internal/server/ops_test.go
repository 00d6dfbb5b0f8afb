package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestQueueStatusDisabled(t *testing.T) {
	h := &OpsHandler{Stream: "iudex.audits.requested", Group: "audit-workers"}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/ops/queue", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	err := h.queue(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if he.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when queue is off, got %d", he.Code)
	}
}
