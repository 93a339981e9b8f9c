package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/sopsmith/api/internal/source"
)

// Validation and source-resolution failures are rejected before the run
// lifecycle is touched, so these paths need no Redis.
func setupGenerateApp(t *testing.T) *fiber.App {
	t.Helper()

	provider := source.NewProvider(nil)
	h := NewGenerateHandler(nil, provider, validator.New())

	app := fiber.New()
	app.Post("/api/sop/start", h.Start)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestGenerateStart_MissingSource(t *testing.T) {
	app := setupGenerateApp(t)

	resp := postJSON(t, app, "/api/sop/start", `{"title": "No source"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGenerateStart_BothSourceAndURL(t *testing.T) {
	app := setupGenerateApp(t)

	resp := postJSON(t, app, "/api/sop/start", `{"sourceId": "abc", "videoUrl": "https://youtu.be/dQw4w9WgXcQ"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGenerateStart_UnsupportedHost(t *testing.T) {
	app := setupGenerateApp(t)

	resp := postJSON(t, app, "/api/sop/start", `{"videoUrl": "https://example.com/video.mp4"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGenerateStart_UnknownSourceID(t *testing.T) {
	app := setupGenerateApp(t)

	resp := postJSON(t, app, "/api/sop/start", `{"sourceId": "does-not-exist"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGenerateStart_InvalidBody(t *testing.T) {
	app := setupGenerateApp(t)

	resp := postJSON(t, app, "/api/sop/start", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
