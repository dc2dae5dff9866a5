package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"ramblin/backend/internal/config"
)

type chatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// modelRequest is one upstream generation call. Temperature and the token
// ceiling are fixed per call site: classification and extraction run cool
// (0.3), free-text insight generation runs warmer (0.7).
type modelRequest struct {
	System      string
	Turns       []chatTurn
	User        string
	Temperature float64
	MaxTokens   int
	ForceJSON   bool
}

type modelCaller interface {
	complete(ctx context.Context, req modelRequest) (string, error)
}

// openAIChatClient talks to an OpenAI-compatible chat-completions endpoint.
// Built once at startup and shared read-only across requests; one attempt
// per call, no retries.
type openAIChatClient struct {
	apiKey     string
	baseURL    string
	model      string
	jsonMode   bool
	httpClient *http.Client
}

func newOpenAIChatClient(cfg config.Config) *openAIChatClient {
	timeoutSeconds := cfg.AITimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = 60
	}
	return &openAIChatClient{
		apiKey:   strings.TrimSpace(cfg.OpenAIAPIKey),
		baseURL:  strings.TrimRight(strings.TrimSpace(cfg.OpenAIBaseURL), "/"),
		model:    strings.TrimSpace(cfg.OpenAIModel),
		jsonMode: cfg.OpenAIJSONMode,
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
	}
}

type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionPayload struct {
	Model          string                  `json:"model"`
	Messages       []chatCompletionMessage `json:"messages"`
	Temperature    float64                 `json:"temperature"`
	MaxTokens      int                     `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat         `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionReply struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *openAIChatClient) complete(ctx context.Context, req modelRequest) (string, error) {
	if c.apiKey == "" {
		return "", newModelError(KindUpstreamUnavailable, "OPENAI_API_KEY is not configured")
	}
	if c.baseURL == "" {
		return "", newModelError(KindUpstreamUnavailable, "OPENAI_BASE_URL is not configured")
	}
	if c.model == "" {
		return "", newModelError(KindUpstreamUnavailable, "OPENAI_MODEL is not configured")
	}

	messages := make([]chatCompletionMessage, 0, len(req.Turns)+2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, chatCompletionMessage{Role: "system", Content: strings.TrimSpace(req.System)})
	}
	for _, turn := range req.Turns {
		role := strings.ToLower(strings.TrimSpace(turn.Role))
		if role != "user" && role != "assistant" && role != "system" {
			continue
		}
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		messages = append(messages, chatCompletionMessage{Role: role, Content: content})
	}
	if strings.TrimSpace(req.User) != "" {
		messages = append(messages, chatCompletionMessage{Role: "user", Content: strings.TrimSpace(req.User)})
	}
	if len(messages) == 0 {
		return "", newModelError(KindInvalidUserInput, "model request has no messages")
	}

	payload := chatCompletionPayload{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.ForceJSON && c.jsonMode {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	bodyRaw, err := json.Marshal(payload)
	if err != nil {
		return "", wrapModelError(KindUpstreamUnavailable, "encode completion request", err)
	}

	request, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/chat/completions",
		bytes.NewReader(bodyRaw),
	)
	if err != nil {
		return "", wrapModelError(KindUpstreamUnavailable, "build completion request", err)
	}
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return "", wrapModelError(KindUpstreamUnavailable, "completion request failed", err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return "", wrapModelError(KindUpstreamUnavailable, "read completion response", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		log.Printf("chat completion error status=%d body=%s", response.StatusCode, truncateForLog(string(responseBody), 600))
		return "", newModelError(KindUpstreamUnavailable, "completion endpoint returned "+response.Status)
	}

	var reply chatCompletionReply
	if err := json.Unmarshal(responseBody, &reply); err != nil {
		return "", wrapModelError(KindUpstreamUnavailable, "decode completion response", err)
	}
	if len(reply.Choices) == 0 || reply.Choices[0].Message.Content == nil {
		return "", newModelError(KindEmptyResponse, "completion had no content")
	}
	content := *reply.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", newModelError(KindEmptyResponse, "completion content was blank")
	}
	return content, nil
}

// mockModelClient scripts replies for tests. Each call consumes the next
// reply in order; a nil error with empty string simulates blank content.
type mockModelClient struct {
	replies  []mockReply
	requests []modelRequest
}

type mockReply struct {
	content string
	err     error
}

func (m *mockModelClient) complete(_ context.Context, req modelRequest) (string, error) {
	m.requests = append(m.requests, req)
	if len(m.replies) == 0 {
		return "", errors.New("mock model has no scripted reply")
	}
	next := m.replies[0]
	m.replies = m.replies[1:]
	return next.content, next.err
}
