package providers

import (
	"errors"
	"fmt"
	"testing"
)

func TestProviderError(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewProviderError("azure", "HTTP_ERROR", "HTTP request failed", 0, true, cause)

	if err.Error() != "HTTP request failed: connection reset" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to unwrap")
	}
	if !IsRetryable(fmt.Errorf("wrapped: %w", err)) {
		t.Error("expected wrapped provider error to stay retryable")
	}
	if IsRetryable(cause) {
		t.Error("plain errors are not retryable")
	}
}

func TestChatResponseText(t *testing.T) {
	var nilResp *ChatResponse
	if nilResp.Text() != "" {
		t.Error("nil response should have empty text")
	}

	resp := &ChatResponse{Choices: []Choice{{Message: Message{Role: "assistant", Content: "answer"}}}}
	if resp.Text() != "answer" {
		t.Errorf("Text() = %q", resp.Text())
	}
}

func TestProviderConfigIsAzure(t *testing.T) {
	tests := []struct {
		name string
		cfg  ProviderConfig
		want bool
	}{
		{"openai", ProviderConfig{}, false},
		{"deployment only", ProviderConfig{Deployment: "gpt-4"}, false},
		{"azure", ProviderConfig{Deployment: "gpt-4", APIVersion: "2024-02-15-preview"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.IsAzure(); got != tt.want {
				t.Errorf("IsAzure() = %v, want %v", got, tt.want)
			}
		})
	}

	if DefaultProviderConfig().MaxRetries != 0 {
		t.Error("completion calls must not retry by default")
	}
}
