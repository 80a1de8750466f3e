package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nelo-ai/nelo-bot/internal/http/handlers"
	"github.com/nelo-ai/nelo-bot/internal/users"
)

func TestHealthz(t *testing.T) {
	h := New(&Config{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	h := New(&Config{
		Admin:           handlers.NewAdminHandler(users.NewInMemoryRepository(), nil, nil, nil, nil),
		AdminAuthSecret: "secret",
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/users", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without a token", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	h := New(&Config{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
