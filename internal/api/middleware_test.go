package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func authRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/clips", nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	return req
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	repo := &fakeRepo{token: "secret"}
	handler := AuthMiddleware(repo, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not run without credentials")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authRequest(""))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	body := decodeJSONBody(t, rr)
	if body["code"] != "UNAUTHORIZED" {
		t.Errorf("code = %v", body["code"])
	}
}

func TestAuthMiddleware_WrongScheme(t *testing.T) {
	repo := &fakeRepo{token: "secret"}
	handler := AuthMiddleware(repo, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not run")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authRequest("Basic c2VjcmV0"))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status code = %d", rr.Code)
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	repo := &fakeRepo{token: "secret"}
	handler := AuthMiddleware(repo, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not run")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authRequest("Bearer wrong"))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status code = %d", rr.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	repo := &fakeRepo{token: "secret"}
	called := false
	handler := AuthMiddleware(repo, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authRequest("Bearer secret"))

	if !called {
		t.Fatal("next handler was not called")
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d", rr.Code)
	}
}

func TestAuthMiddleware_NoStoredToken(t *testing.T) {
	repo := &fakeRepo{}
	handler := AuthMiddleware(repo, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not run")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authRequest("Bearer anything"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status code = %d, want 500 when no token is configured", rr.Code)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(RequestIDKey).(string)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if seen == "" {
		t.Fatal("request id missing from context")
	}
	if got := rr.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("X-Request-ID header = %q, context value = %q", got, seen)
	}
	if len(seen) != 8 {
		t.Errorf("request id length = %d, want 8", len(seen))
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/clips", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status code = %d", rr.Code)
	}
	body := decodeJSONBody(t, rr)
	if body["code"] != "INTERNAL_ERROR" {
		t.Errorf("code = %v", body["code"])
	}
}

func TestLoggingMiddleware_PreservesFlusher(t *testing.T) {
	var flushable bool
	handler := LoggingMiddleware(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, flushable = w.(http.Flusher)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/x/events", nil))

	if !flushable {
		t.Fatal("wrapped writer must stay flushable for event streams")
	}
}

func TestLoggingMiddleware_RecordsStatus(t *testing.T) {
	handler := LoggingMiddleware(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/clips", nil))

	if rr.Code != http.StatusTeapot {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusTeapot)
	}
}
