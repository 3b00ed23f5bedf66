package httpadapter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestRequestIDMiddlewareKeepsValidCallerID(t *testing.T) {
	callerID := uuid.NewString()
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = requestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, callerID)
	handler.ServeHTTP(rec, req)

	if seen != callerID {
		t.Fatalf("expected caller id %s to survive, got %s", callerID, seen)
	}
	if rec.Header().Get(requestIDHeader) != callerID {
		t.Fatalf("expected caller id echoed in response, got %s", rec.Header().Get(requestIDHeader))
	}
}

func TestRequestIDMiddlewareReplacesMalformedID(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = requestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "not-a-uuid; DROP TABLE")
	handler.ServeHTTP(rec, req)

	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("expected a fresh uuid, got %q", seen)
	}
	if seen == "not-a-uuid; DROP TABLE" {
		t.Fatal("malformed caller id must not propagate")
	}
}
