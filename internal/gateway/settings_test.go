package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/veilhq/veil/internal/pii"
)

func doRequest(server *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)
	return rec
}

func TestSettingsAPI(t *testing.T) {
	t.Run("GetSnapshot", func(t *testing.T) {
		server := newTestServer(t)

		rec := doRequest(server, "GET", "/api/v1/settings", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}

		var snap struct {
			Level      string          `json:"level"`
			Categories map[string]bool `json:"categories"`
			Consent    bool            `json:"consent"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
			t.Fatalf("response is not JSON: %v", err)
		}
		if snap.Level != "medium" {
			t.Errorf("default level = %s, want medium", snap.Level)
		}
		if len(snap.Categories) != len(pii.Categories()) {
			t.Errorf("got %d categories, want %d", len(snap.Categories), len(pii.Categories()))
		}
		if snap.Consent {
			t.Error("consent should default to false")
		}
	})

	t.Run("SetLevel", func(t *testing.T) {
		server := newTestServer(t)

		rec := doRequest(server, "PUT", "/api/v1/settings/level", `{"level":"maximum"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if server.policy.Level() != pii.LevelMaximum {
			t.Errorf("level = %s, want maximum", server.policy.Level())
		}
	})

	t.Run("SetLevelRejectsUnknown", func(t *testing.T) {
		server := newTestServer(t)

		rec := doRequest(server, "PUT", "/api/v1/settings/level", `{"level":"atomic"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
		if server.policy.Level() != pii.LevelMedium {
			t.Errorf("level changed after rejected update: %s", server.policy.Level())
		}
	})

	t.Run("ToggleCategory", func(t *testing.T) {
		server := newTestServer(t)

		rec := doRequest(server, "PUT", "/api/v1/settings/categories/email", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if server.policy.CategoryEnabled(pii.CategoryEmail) {
			t.Error("email category still enabled after toggle")
		}

		// Toggling again restores it
		doRequest(server, "PUT", "/api/v1/settings/categories/email", "")
		if !server.policy.CategoryEnabled(pii.CategoryEmail) {
			t.Error("email category not re-enabled after second toggle")
		}
	})

	t.Run("ToggleUnknownCategory", func(t *testing.T) {
		server := newTestServer(t)

		rec := doRequest(server, "PUT", "/api/v1/settings/categories/blood_type", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("SetConsent", func(t *testing.T) {
		server := newTestServer(t)

		rec := doRequest(server, "PUT", "/api/v1/settings/consent", `{"granted":true}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if !server.policy.Consent() {
			t.Error("consent not granted")
		}
	})
}

func TestPreviewEndpoint(t *testing.T) {
	t.Run("RespectsCategoryToggles", func(t *testing.T) {
		server := newTestServer(t)
		if err := server.policy.SetLevel(pii.LevelHigh); err != nil {
			t.Fatal(err)
		}
		if err := server.policy.ToggleCategory(pii.CategoryEmail); err != nil {
			t.Fatal(err)
		}

		rec := doRequest(server, "POST", "/api/v1/preview",
			`{"text":"jane@example.com or (555) 123-4567"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}

		var resp struct {
			Masked string `json:"masked"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}

		if !strings.Contains(resp.Masked, "jane@example.com") {
			t.Errorf("disabled email category masked in preview: %q", resp.Masked)
		}
		if !strings.Contains(resp.Masked, "[MASKED_PHONE]") {
			t.Errorf("enabled phone category not masked: %q", resp.Masked)
		}
	})

	t.Run("DefaultSample", func(t *testing.T) {
		server := newTestServer(t)
		if err := server.policy.SetLevel(pii.LevelHigh); err != nil {
			t.Fatal(err)
		}

		rec := doRequest(server, "POST", "/api/v1/preview", `{}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}

		var resp struct {
			Input  string `json:"input"`
			Masked string `json:"masked"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Input != previewSample {
			t.Error("empty request did not fall back to the default sample")
		}
		if strings.Contains(resp.Masked, "jane.smith@example.com") {
			t.Errorf("sample email not masked: %q", resp.Masked)
		}
	})
}

func TestClassifyEndpoint(t *testing.T) {
	server := newTestServer(t)

	rec := doRequest(server, "POST", "/api/v1/classify", `{"text":"reach jane@example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Sensitive  bool     `json:"sensitive"`
		Categories []string `json:"categories"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Sensitive {
		t.Error("email text not classified as sensitive")
	}
	if len(resp.Categories) != 1 || resp.Categories[0] != "email" {
		t.Errorf("categories = %v, want [email]", resp.Categories)
	}
}

type staticResolver struct {
	values map[string]string
}

func (s staticResolver) Resolve(_ context.Context, token string) (string, error) {
	if v, ok := s.values[token]; ok {
		return v, nil
	}
	return "", errors.New("unknown token")
}

func TestDetokenizeEndpoint(t *testing.T) {
	t.Run("RequiresConsent", func(t *testing.T) {
		server := newTestServer(t)
		server.resolver = staticResolver{values: map[string]string{"tok1": "jane@example.com"}}

		rec := doRequest(server, "POST", "/api/v1/detokenize", `{"token":"tok1"}`)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status without consent = %d, want 403", rec.Code)
		}
	})

	t.Run("ResolvesWithConsent", func(t *testing.T) {
		server := newTestServer(t)
		server.resolver = staticResolver{values: map[string]string{"tok1": "jane@example.com"}}
		server.policy.SetConsent(true)

		rec := doRequest(server, "POST", "/api/v1/detokenize", `{"token":"tok1"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}

		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp["value"] != "jane@example.com" {
			t.Errorf("value = %q, want original", resp["value"])
		}
	})

	t.Run("VaultNotConfigured", func(t *testing.T) {
		server := newTestServer(t)
		server.policy.SetConsent(true)

		rec := doRequest(server, "POST", "/api/v1/detokenize", `{"token":"tok1"}`)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("UnknownToken", func(t *testing.T) {
		server := newTestServer(t)
		server.resolver = staticResolver{values: map[string]string{}}
		server.policy.SetConsent(true)

		rec := doRequest(server, "POST", "/api/v1/detokenize", `{"token":"nope"}`)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)

	rec := doRequest(server, "GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("body = %q", rec.Body.String())
	}
}
