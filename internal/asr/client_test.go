package asr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if got := r.FormValue("model"); got != "test-model" {
			t.Errorf("Expected model test-model, got %q", got)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("Expected language en, got %q", got)
		}
		if got := r.FormValue("prompt"); got != "previous text" {
			t.Errorf("Expected prompt to be forwarded, got %q", got)
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Expected audio file in form: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		file.Close()
		if header.Filename != "window.wav" {
			t.Errorf("Expected filename window.wav, got %q", header.Filename)
		}

		resp := Response{
			Text: "hello world",
			Segments: []Segment{
				{Start: 0, End: 1.5, Text: "hello world", AvgLogProb: -0.2, CompressionRatio: 1.0, NoSpeechProb: 0.01},
				{Start: 1.5, End: 2.0, Text: "noise", AvgLogProb: -0.9, CompressionRatio: 1.0, NoSpeechProb: 0.5},
			},
			Duration: 2.0,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	resp, err := client.Transcribe(context.Background(), &Request{
		Samples:  make([]float32, 16000),
		Model:    "test-model",
		Language: "en",
		Prompt:   "previous text",
	})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if resp.Text != "hello world" {
		t.Errorf("Expected text 'hello world', got %q", resp.Text)
	}
	if len(resp.Segments) != 1 {
		t.Fatalf("Expected 1 segment after filtering, got %d", len(resp.Segments))
	}
	if resp.Segments[0].Text != "hello world" {
		t.Errorf("Expected accepted segment to survive, got %q", resp.Segments[0].Text)
	}

	stats := client.GetStats()
	if stats.TotalRequests != 1 || stats.SuccessRequests != 1 {
		t.Errorf("Expected 1 total / 1 success, got %d / %d", stats.TotalRequests, stats.SuccessRequests)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Response{Text: "ok"})
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL, Timeout: 5 * time.Second, MaxRetries: 2})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	resp, err := client.Transcribe(context.Background(), &Request{Samples: make([]float32, 1600)})
	if err != nil {
		t.Fatalf("Expected retry to succeed: %v", err)
	}
	if resp.Text != "ok" {
		t.Errorf("Expected text 'ok', got %q", resp.Text)
	}
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}

	stats := client.GetStats()
	if stats.TotalRetries != 1 {
		t.Errorf("Expected 1 retry, got %d", stats.TotalRetries)
	}
}

func TestClientDoesNotRetryBadRequest(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad audio", http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL, Timeout: 5 * time.Second, MaxRetries: 3})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	_, err = client.Transcribe(context.Background(), &Request{Samples: make([]float32, 1600)})
	if err == nil {
		t.Fatal("Expected error for 400 response")
	}
	if calls != 1 {
		t.Errorf("Expected 1 call without retries, got %d", calls)
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("Expected error for empty endpoint")
	}
}

func TestClientRejectsEmptyWindow(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	_, err = client.Transcribe(context.Background(), &Request{Samples: nil})
	if err == nil {
		t.Fatal("Expected error for empty window")
	}
	if calls != 0 {
		t.Errorf("Expected no HTTP calls for unencodable window, got %d", calls)
	}
}
