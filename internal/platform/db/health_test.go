package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func callHealth(t *testing.T, p Pinger) (int, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)
	if err := HealthHandler(p)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthHandler_Healthy(t *testing.T) {
	code, body := callHealth(t, fakePinger{})
	if code != http.StatusOK {
		t.Errorf("expected 200, got %d", code)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", body["status"])
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	code, body := callHealth(t, fakePinger{err: errors.New("connection refused")})
	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
	if body["status"] != "unhealthy" {
		t.Errorf("expected unhealthy, got %v", body["status"])
	}
	if body["error"] != "connection refused" {
		t.Errorf("expected error message, got %v", body["error"])
	}
}

func TestHealthHandler_Disabled(t *testing.T) {
	code, body := callHealth(t, nil)
	if code != http.StatusOK {
		t.Errorf("expected 200, got %d", code)
	}
	if body["status"] != "disabled" {
		t.Errorf("expected disabled, got %v", body["status"])
	}
}
