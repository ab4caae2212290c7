package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bimakw/wallet-activity/internal/testutil"
)

func TestHealthHandler_Health_AllHealthy(t *testing.T) {
	db := testutil.NewMockHealthChecker(true)
	cache := testutil.NewMockHealthChecker(true)
	handler := NewHealthHandler().Require("database", db).Optional("cache", cache)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	var response HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != "healthy" {
		t.Errorf("expected status healthy, got %s", response.Status)
	}
	if response.Services["database"] != "healthy" {
		t.Errorf("expected database healthy, got %s", response.Services["database"])
	}
	if response.Services["cache"] != "healthy" {
		t.Errorf("expected cache healthy, got %s", response.Services["cache"])
	}
	if response.Timestamp == "" {
		t.Error("expected non-empty timestamp")
	}
}

func TestHealthHandler_Health_RequiredUnhealthy(t *testing.T) {
	db := testutil.NewMockHealthChecker(false)
	cache := testutil.NewMockHealthChecker(false)
	handler := NewHealthHandler().Require("database", db).Optional("cache", cache)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.Health(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}

	var response HealthResponse
	json.NewDecoder(rec.Body).Decode(&response)

	// a degraded optional component does not mask the failure
	if response.Status != "unhealthy" {
		t.Errorf("expected status unhealthy, got %s", response.Status)
	}
	if !strings.HasPrefix(response.Services["database"], "unhealthy") {
		t.Errorf("expected database unhealthy, got %s", response.Services["database"])
	}
}

func TestHealthHandler_Health_OptionalUnhealthy(t *testing.T) {
	db := testutil.NewMockHealthChecker(true)
	cache := testutil.NewMockHealthChecker(false)
	handler := NewHealthHandler().Require("database", db).Optional("cache", cache)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 for degraded, got %d", rec.Code)
	}

	var response HealthResponse
	json.NewDecoder(rec.Body).Decode(&response)

	if response.Status != "degraded" {
		t.Errorf("expected status degraded, got %s", response.Status)
	}
}

func TestHealthHandler_Health_FuncChecker(t *testing.T) {
	handler := NewHealthHandler().Require("indexing_api", HealthCheckFunc(func(ctx context.Context) error {
		return errors.New("alchemy API key is not configured")
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.Health(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}

	var response HealthResponse
	json.NewDecoder(rec.Body).Decode(&response)

	if !strings.Contains(response.Services["indexing_api"], "not configured") {
		t.Errorf("expected indexing_api failure, got %s", response.Services["indexing_api"])
	}
}

func TestHealthHandler_Health_NoComponents(t *testing.T) {
	handler := NewHealthHandler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name       string
		required   bool
		optional   bool
		wantStatus int
	}{
		{"all healthy", true, true, http.StatusOK},
		{"optional down", true, false, http.StatusOK},
		{"required down", false, true, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler().
				Require("database", testutil.NewMockHealthChecker(tt.required)).
				Optional("cache", testutil.NewMockHealthChecker(tt.optional))

			req := httptest.NewRequest(http.MethodGet, "/ready", nil)
			rec := httptest.NewRecorder()

			handler.Ready(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestHealthHandler_Live(t *testing.T) {
	handler := NewHealthHandler().Require("database", testutil.NewMockHealthChecker(false))

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	rec := httptest.NewRecorder()

	handler.Live(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != "alive" {
		t.Errorf("expected body 'alive', got %s", rec.Body.String())
	}
}
