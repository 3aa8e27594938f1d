package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newFakeCompletions(t *testing.T, reply string, delay time.Duration, got *chatRequest) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if delay > 0 {
			time.Sleep(delay)
		}
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			t.Errorf("Failed to decode completion request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": reply}},
			},
		})
	}))
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("Expected error for empty API key")
	}
}

func TestCompletePrependsSystemMessage(t *testing.T) {
	var got chatRequest
	server := newFakeCompletions(t, "summary text", 0, &got)
	defer server.Close()

	client, err := NewClient(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	reply, err := client.Complete(context.Background(), "you summarize", []Message{
		{Role: RoleUser, Content: "meeting text"},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if reply != "summary text" {
		t.Errorf("Expected reply 'summary text', got %q", reply)
	}

	if got.Model != "test-model" {
		t.Errorf("Expected model test-model, got %q", got.Model)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Role != "system" || got.Messages[0].Content != "you summarize" {
		t.Errorf("Expected system message first, got %+v", got.Messages[0])
	}
	if got.Messages[1].Role != RoleUser || got.Messages[1].Content != "meeting text" {
		t.Errorf("Expected user turn second, got %+v", got.Messages[1])
	}
}

func TestCompleteHonorsTimeout(t *testing.T) {
	var got chatRequest
	server := newFakeCompletions(t, "late", 500*time.Millisecond, &got)
	defer server.Close()

	client, err := NewClient(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	if _, err := client.Complete(context.Background(), "system", nil); err == nil {
		t.Error("Expected timeout error for slow server")
	}
}
