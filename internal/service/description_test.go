package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/timmy/assetlens/internal/config"
	"github.com/timmy/assetlens/internal/domain"
	"github.com/timmy/assetlens/internal/prompts"
)

// newOllamaServer serves /api/tags with the given models and answers
// /api/generate with generate.
func newOllamaServer(t *testing.T, models []string, generate http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		list := make([]map[string]string, 0, len(models))
		for _, m := range models {
			list = append(list, map[string]string{"name": m, "model": m})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"models": list})
	})
	if generate != nil {
		mux.HandleFunc("/api/generate", generate)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestOllamaDescriber(baseURL string) *OllamaDescriber {
	return NewOllamaDescriber(context.Background(), &OllamaDescriberConfig{
		BaseURL:      baseURL,
		Model:        "llava",
		MaxDimension: 512,
		JPEGQuality:  85,
		Timeout:      5 * time.Second,
		ProbeTimeout: time.Second,
	})
}

func TestOllamaDescriberDescribe(t *testing.T) {
	srv := newOllamaServer(t, []string{"llava:latest"}, func(w http.ResponseWriter, r *http.Request) {
		var req ollamaGenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Model != "llava" || req.Stream || len(req.Images) != 1 || req.Prompt != prompts.DescribeForIndexing {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		raw, err := base64.StdEncoding.DecodeString(req.Images[0])
		if err != nil {
			http.Error(w, "bad image", http.StatusBadRequest)
			return
		}
		cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
		if err != nil || format != "jpeg" || cfg.Width != 512 || cfg.Height != 256 {
			http.Error(w, "image not resized", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "  A red car parked on a street.  \n"})
	})

	d := newTestOllamaDescriber(srv.URL)
	if !d.Available() {
		t.Fatal("expected describer to be available when the model is listed")
	}
	desc := d.Describe(context.Background(), blankImage(1024, 512))
	if desc.Status != domain.DescriptionOK {
		t.Fatalf("expected ok description, got %+v", desc)
	}
	if desc.Text != "A red car parked on a street." {
		t.Errorf("expected trimmed text, got %q", desc.Text)
	}
	if desc.Provider != config.DescriptionLocal {
		t.Errorf("expected provider local, got %q", desc.Provider)
	}
}

func TestOllamaDescriberUnavailable(t *testing.T) {
	t.Run("model missing", func(t *testing.T) {
		srv := newOllamaServer(t, []string{"mistral:7b"}, nil)
		d := newTestOllamaDescriber(srv.URL)
		if d.Available() {
			t.Fatal("expected describer to be unavailable")
		}
		desc := d.Describe(context.Background(), blankImage(8, 8))
		if desc.Status != domain.DescriptionUnavailable {
			t.Errorf("expected unavailable sentinel, got %+v", desc)
		}
		if desc.Text != "Image description unavailable - local provider not available" {
			t.Errorf("unexpected sentinel text %q", desc.Text)
		}
	})

	t.Run("server down", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		if newTestOllamaDescriber(srv.URL).Available() {
			t.Fatal("expected describer to be unavailable when the probe fails")
		}
	})
}

func TestOllamaDescriberErrorsBecomeSentinels(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"http error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "out of memory", http.StatusInternalServerError)
		}},
		{"empty response", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"response": "   "})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newOllamaServer(t, []string{"llava"}, tt.handler)
			desc := newTestOllamaDescriber(srv.URL).Describe(context.Background(), blankImage(8, 8))
			if desc.Usable() {
				t.Fatalf("expected a sentinel, got %+v", desc)
			}
			if desc.Status != domain.DescriptionFailed || desc.Text != prompts.GenerationFailed {
				t.Errorf("expected generation-failed sentinel, got %+v", desc)
			}
		})
	}
}

func TestOpenAIDescriberWithoutKeyIsUnavailable(t *testing.T) {
	d := NewOpenAIDescriber(&OpenAIDescriberConfig{Model: "gpt-4o-mini"})
	if d.Available() {
		t.Fatal("expected describer without key to be unavailable")
	}
	desc := d.Describe(context.Background(), blankImage(8, 8))
	if desc.Status != domain.DescriptionUnavailable {
		t.Errorf("expected unavailable sentinel, got %+v", desc)
	}
}

func TestOpenAIDescriberDescribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string          `json:"role"`
				Content json.RawMessage `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Messages) != 2 {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		if !strings.Contains(string(body.Messages[1].Content), "data:image/jpeg;base64,") {
			http.Error(w, "missing image", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":" A tabby cat asleep on a sofa. "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	d := NewOpenAIDescriber(&OpenAIDescriberConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/v1",
		Model:   "gpt-4o-mini",
		Timeout: 5 * time.Second,
	})
	desc := d.Describe(context.Background(), blankImage(64, 64))
	if desc.Status != domain.DescriptionOK || desc.Text != "A tabby cat asleep on a sofa." {
		t.Fatalf("unexpected description %+v", desc)
	}
	if desc.Provider != config.DescriptionCloud {
		t.Errorf("expected provider cloud, got %q", desc.Provider)
	}
}

func TestOpenAIDescriberAPIErrorBecomesSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	d := NewOpenAIDescriber(&OpenAIDescriberConfig{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "m"})
	desc := d.Describe(context.Background(), blankImage(8, 8))
	if desc.Status != domain.DescriptionFailed || desc.Text != prompts.GenerationFailed {
		t.Fatalf("expected generation-failed sentinel, got %+v", desc)
	}
	if !strings.Contains(desc.Error, "upstream overloaded") {
		t.Errorf("expected provider message in error, got %q", desc.Error)
	}
}

func TestNewDescriberUnknownProvider(t *testing.T) {
	d := NewDescriber(context.Background(), &config.DescriptionConfig{Provider: "remote"}, nil)
	if d.Available() {
		t.Fatal("expected unknown provider to be unavailable")
	}
	if got := d.Describe(context.Background(), blankImage(1, 1)); got.Status != domain.DescriptionUnavailable {
		t.Errorf("expected unavailable sentinel, got %+v", got)
	}
}
