package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIEmbeddingClient_Embed(t *testing.T) {
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path

		var req openAIEmbeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Input != "hello world" {
			t.Errorf("input: got %q", req.Input)
		}

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"embedding": []float64{0.1, 0.2, 0.3}},
			},
		})
	}))
	defer server.Close()

	client := NewOpenAIEmbeddingClient(OpenAIEmbeddingConfig{
		APIKey:    "test-key",
		BaseURL:   server.URL,
		Dimension: 3,
	})

	vec, err := client.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed() failed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("vector length: got %d", len(vec))
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth header: got %q", gotAuth)
	}
	if gotPath != "/v1/embeddings" {
		t.Errorf("path: got %q", gotPath)
	}
}

func TestOpenAIEmbeddingClient_DimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"embedding": []float64{0.1, 0.2}},
			},
		})
	}))
	defer server.Close()

	client := NewOpenAIEmbeddingClient(OpenAIEmbeddingConfig{
		BaseURL:   server.URL,
		Dimension: 3,
	})

	_, err := client.Embed(context.Background(), "text")
	if err == nil {
		t.Fatal("expected error for wrong vector length")
	}
	if !strings.Contains(err.Error(), "expected 3") {
		t.Errorf("error: got %v", err)
	}
}

func TestOpenAIEmbeddingClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewOpenAIEmbeddingClient(OpenAIEmbeddingConfig{BaseURL: server.URL})

	_, err := client.Embed(context.Background(), "text")
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error: got %v", err)
	}
}

func TestOpenAIClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path: got %q", r.URL.Path)
		}

		var req openAIChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("messages: got %+v", req.Messages)
		}

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "the answer"}},
			},
		})
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})

	answer, err := client.Complete(context.Background(), "the question")
	if err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}
	if answer != "the answer" {
		t.Errorf("answer: got %q", answer)
	}
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{BaseURL: server.URL})

	_, err := client.Complete(context.Background(), "question")
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestNewEmbeddingGeneratorRejectsAnthropic(t *testing.T) {
	_, err := NewEmbeddingGenerator(ProviderConfig{Provider: "anthropic"})
	if err == nil {
		t.Fatal("expected error for anthropic embeddings")
	}
}

func TestNewTextGeneratorUnknownProvider(t *testing.T) {
	_, err := NewTextGenerator(ProviderConfig{Provider: "palm"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
