package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/upb/stockbot/services/providers"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
)

// OpenAIAdapter implements the Provider interface for OpenAI and Azure OpenAI
type OpenAIAdapter struct {
	config providers.ProviderConfig
	client *resty.Client
}

// NewOpenAIAdapter creates a new OpenAI adapter.
// Setting Deployment and APIVersion routes requests to Azure OpenAI.
func NewOpenAIAdapter(config providers.ProviderConfig) *OpenAIAdapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	client := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(config.Timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(config.MaxRetries).
		SetRetryWaitTime(config.RetryDelay).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode() >= 500 || resp.StatusCode() == http.StatusTooManyRequests
		})

	if config.IsAzure() {
		client.SetHeader("api-key", config.APIKey)
	} else {
		client.SetAuthToken(config.APIKey)
	}
	for k, v := range config.Headers {
		client.SetHeader(k, v)
	}

	return &OpenAIAdapter{
		config: config,
		client: client,
	}
}

// Name returns the provider name
func (a *OpenAIAdapter) Name() string {
	if a.config.IsAzure() {
		return "azure"
	}
	return "openai"
}

// completionsPath returns the chat completions path for the configured routing
func (a *OpenAIAdapter) completionsPath() string {
	if a.config.IsAzure() {
		return "/openai/deployments/" + a.config.Deployment + "/chat/completions"
	}
	return "/chat/completions"
}

// ChatCompletion performs a chat completion request
func (a *OpenAIAdapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	startTime := time.Now()

	if len(req.Messages) == 0 {
		return nil, providers.NewProviderError(a.Name(), "INVALID_REQUEST", "at least one message is required", http.StatusBadRequest, false, nil)
	}

	r := a.client.R().
		SetContext(ctx).
		SetBody(a.buildOpenAIRequest(req))
	if a.config.IsAzure() {
		r.SetQueryParam("api-version", a.config.APIVersion)
	}

	resp, err := r.Post(a.completionsPath())
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "HTTP_ERROR", "HTTP request failed", 0, true, err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, a.handleErrorResponse(resp.StatusCode(), resp.Body())
	}

	var openaiResp OpenAIChatResponse
	if err := json.Unmarshal(resp.Body(), &openaiResp); err != nil {
		return nil, providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "Failed to unmarshal response", resp.StatusCode(), false, err)
	}
	if len(openaiResp.Choices) == 0 {
		return nil, providers.NewProviderError(a.Name(), "EMPTY_RESPONSE", "response carried no choices", resp.StatusCode(), false, nil)
	}

	return a.convertToUnifiedResponse(&openaiResp, req, time.Since(startTime)), nil
}

// IsAvailable checks if the provider is currently available
func (a *OpenAIAdapter) IsAvailable(ctx context.Context) bool {
	r := a.client.R().SetContext(ctx)
	path := "/models"
	if a.config.IsAzure() {
		path = "/openai/models"
		r.SetQueryParam("api-version", a.config.APIVersion)
	}

	resp, err := r.Get(path)
	if err != nil {
		return false
	}
	return resp.StatusCode() == http.StatusOK
}

// buildOpenAIRequest converts unified request to OpenAI format
func (a *OpenAIAdapter) buildOpenAIRequest(req *providers.ChatRequest) *OpenAIChatRequest {
	openaiReq := &OpenAIChatRequest{
		Messages: make([]OpenAIMessage, len(req.Messages)),
	}
	// Azure selects the model through the deployment path
	if !a.config.IsAzure() {
		openaiReq.Model = req.Model
	}

	for i, msg := range req.Messages {
		openaiReq.Messages[i] = OpenAIMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	if req.MaxTokens > 0 {
		openaiReq.MaxTokens = &req.MaxTokens
	}
	if req.Temperature > 0 {
		openaiReq.Temperature = &req.Temperature
	}
	if req.User != "" {
		openaiReq.User = &req.User
	}

	return openaiReq
}

// convertToUnifiedResponse converts OpenAI response to unified format
func (a *OpenAIAdapter) convertToUnifiedResponse(openaiResp *OpenAIChatResponse, req *providers.ChatRequest, latency time.Duration) *providers.ChatResponse {
	model := openaiResp.Model
	if model == "" {
		model = req.Model
	}

	resp := &providers.ChatResponse{
		ID:       openaiResp.ID,
		Model:    model,
		Provider: a.Name(),
		Choices:  make([]providers.Choice, len(openaiResp.Choices)),
		Usage: providers.Usage{
			PromptTokens:     openaiResp.Usage.PromptTokens,
			CompletionTokens: openaiResp.Usage.CompletionTokens,
			TotalTokens:      openaiResp.Usage.TotalTokens,
		},
		Latency:  latency,
		Created:  time.Unix(openaiResp.Created, 0),
		Metadata: req.Metadata,
	}

	for i, choice := range openaiResp.Choices {
		resp.Choices[i] = providers.Choice{
			Index: choice.Index,
			Message: providers.Message{
				Role:    choice.Message.Role,
				Content: choice.Message.Content,
			},
			FinishReason: choice.FinishReason,
		}
	}

	return resp
}

// handleErrorResponse handles OpenAI error responses
func (a *OpenAIAdapter) handleErrorResponse(statusCode int, body []byte) error {
	var errResp OpenAIErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(a.Name(), "UNKNOWN_ERROR", fmt.Sprintf("status %d: %s", statusCode, string(body)), statusCode, statusCode >= 500, err)
	}

	code := errResp.Error.Type
	if code == "" {
		code = errResp.Error.Code
	}
	retryable := statusCode >= 500 || statusCode == http.StatusTooManyRequests

	return providers.NewProviderError(
		a.Name(),
		code,
		errResp.Error.Message,
		statusCode,
		retryable,
		errors.New(errResp.Error.Message),
	)
}

// OpenAI-specific request/response types

type OpenAIChatRequest struct {
	Model       string          `json:"model,omitempty"`
	Messages    []OpenAIMessage `json:"messages"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	User        *string         `json:"user,omitempty"`
}

type OpenAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OpenAIChatResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []OpenAIChoice `json:"choices"`
	Usage   OpenAIUsage    `json:"usage"`
}

type OpenAIChoice struct {
	Index        int           `json:"index"`
	Message      OpenAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type OpenAIErrorResponse struct {
	Error OpenAIError `json:"error"`
}

type OpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}
