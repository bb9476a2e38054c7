package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/upb/stockbot/services/providers"
)

func successResponse(content string) OpenAIChatResponse {
	return OpenAIChatResponse{
		ID:      "chatcmpl-test123",
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   "gpt-4",
		Choices: []OpenAIChoice{
			{
				Index:        0,
				Message:      OpenAIMessage{Role: "assistant", Content: content},
				FinishReason: "stop",
			},
		},
		Usage: OpenAIUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}
}

func TestNewOpenAIAdapter(t *testing.T) {
	adapter := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "test-key"})

	if adapter.Name() != "openai" {
		t.Errorf("Name() = %s, want openai", adapter.Name())
	}
	if adapter.config.BaseURL != defaultBaseURL {
		t.Errorf("BaseURL = %s, want %s", adapter.config.BaseURL, defaultBaseURL)
	}

	azure := NewOpenAIAdapter(providers.ProviderConfig{
		APIKey:     "k",
		BaseURL:    "https://example.openai.azure.com/",
		Deployment: "gpt-4",
		APIVersion: "2024-02-15-preview",
	})
	if azure.Name() != "azure" {
		t.Errorf("Name() = %s, want azure", azure.Name())
	}
	if azure.config.BaseURL != "https://example.openai.azure.com" {
		t.Errorf("trailing slash not trimmed: %s", azure.config.BaseURL)
	}
}

func TestOpenAIAdapter_ChatCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); !strings.HasPrefix(auth, "Bearer ") {
			t.Error("Authorization header missing or invalid")
		}

		body, _ := io.ReadAll(r.Body)
		var req OpenAIChatRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("invalid request body: %v", err)
		}
		if req.Model != "gpt-4" {
			t.Errorf("Model = %s, want gpt-4", req.Model)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(successResponse("This is a test response"))
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	})

	resp, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
		Model:       "gpt-4",
		Messages:    []providers.Message{{Role: "user", Content: "Hello"}},
		MaxTokens:   100,
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("ChatCompletion() error = %v", err)
	}

	if resp.Provider != "openai" {
		t.Errorf("Provider = %s, want openai", resp.Provider)
	}
	if resp.Text() != "This is a test response" {
		t.Errorf("Unexpected response content: %s", resp.Text())
	}
	if resp.Usage.TotalTokens != 30 {
		t.Errorf("TotalTokens = %d, want 30", resp.Usage.TotalTokens)
	}
}

func TestOpenAIAdapter_ChatCompletion_Azure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/deployments/gpt-4/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("api-version"); got != "2024-02-15-preview" {
			t.Errorf("api-version = %q", got)
		}
		if got := r.Header.Get("api-key"); got != "azure-key" {
			t.Errorf("api-key header = %q", got)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("Authorization header must not be sent to Azure")
		}

		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), `"model"`) {
			t.Errorf("Azure request body should not name a model: %s", body)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(successResponse("שלום"))
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{
		APIKey:     "azure-key",
		BaseURL:    server.URL,
		Deployment: "gpt-4",
		APIVersion: "2024-02-15-preview",
	})

	resp, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
		Model: "gpt-4",
		Messages: []providers.Message{
			{Role: "system", Content: "sys"},
			{Role: "user", Content: "q"},
		},
	})
	if err != nil {
		t.Fatalf("ChatCompletion() error = %v", err)
	}
	if resp.Provider != "azure" {
		t.Errorf("Provider = %s, want azure", resp.Provider)
	}
	if resp.Text() != "שלום" {
		t.Errorf("Text() = %s", resp.Text())
	}
}

func TestOpenAIAdapter_ChatCompletion_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(OpenAIErrorResponse{
			Error: OpenAIError{
				Message: "Invalid request",
				Type:    "invalid_request_error",
				Code:    "invalid_api_key",
			},
		})
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "invalid-key", BaseURL: server.URL})

	_, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
		Model:    "gpt-4",
		Messages: []providers.Message{{Role: "user", Content: "test"}},
	})
	if err == nil {
		t.Fatal("Expected error but got none")
	}

	provErr, ok := err.(*providers.ProviderError)
	if !ok {
		t.Fatalf("Expected ProviderError, got %T", err)
	}
	if provErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want %d", provErr.StatusCode, http.StatusBadRequest)
	}
	if provErr.Code != "invalid_request_error" {
		t.Errorf("Code = %s", provErr.Code)
	}
	if providers.IsRetryable(err) {
		t.Error("400 should not be retryable")
	}
}

func TestOpenAIAdapter_ChatCompletion_NoRetryByDefault(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "k", BaseURL: server.URL})

	_, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
		Model:    "gpt-4",
		Messages: []providers.Message{{Role: "user", Content: "test"}},
	})
	if err == nil {
		t.Fatal("Expected error but got none")
	}
	if !providers.IsRetryable(err) {
		t.Error("503 should be reported as retryable")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("Expected 1 attempt, got %d", got)
	}
}

func TestOpenAIAdapter_ChatCompletion_Retry(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(successResponse("Success after retry"))
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		MaxRetries: 3,
		RetryDelay: 10 * time.Millisecond,
	})

	resp, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
		Model:    "gpt-4",
		Messages: []providers.Message{{Role: "user", Content: "test"}},
	})
	if err != nil {
		t.Fatalf("Expected success after retry, got error: %v", err)
	}
	if resp.Text() != "Success after retry" {
		t.Errorf("Text() = %s", resp.Text())
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
}

func TestOpenAIAdapter_ChatCompletion_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "k", BaseURL: server.URL})
	_, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: "test"}},
	})
	if err == nil {
		t.Fatal("Expected error for empty choices")
	}
}

func TestOpenAIAdapter_ChatCompletion_NoMessages(t *testing.T) {
	adapter := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1"})
	if _, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{Model: "gpt-4"}); err == nil {
		t.Fatal("Expected validation error")
	}
}

func TestOpenAIAdapter_IsAvailable(t *testing.T) {
	t.Run("available", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"data": []}`))
		}))
		defer server.Close()

		adapter := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "k", BaseURL: server.URL})
		if !adapter.IsAvailable(context.Background()) {
			t.Error("IsAvailable() = false, want true")
		}
	})

	t.Run("unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		adapter := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "k", BaseURL: server.URL})
		if adapter.IsAvailable(context.Background()) {
			t.Error("IsAvailable() = true, want false")
		}
	})
}

func TestBuildOpenAIRequest(t *testing.T) {
	adapter := NewOpenAIAdapter(providers.ProviderConfig{})

	req := adapter.buildOpenAIRequest(&providers.ChatRequest{
		Model:       "gpt-4",
		Messages:    []providers.Message{{Role: "user", Content: "hi"}},
		MaxTokens:   50,
		Temperature: 0.5,
		User:        "42",
	})

	if req.Model != "gpt-4" {
		t.Errorf("Model = %s", req.Model)
	}
	if req.MaxTokens == nil || *req.MaxTokens != 50 {
		t.Error("MaxTokens not set")
	}
	if req.Temperature == nil || *req.Temperature != 0.5 {
		t.Error("Temperature not set")
	}
	if req.User == nil || *req.User != "42" {
		t.Error("User not set")
	}
}
