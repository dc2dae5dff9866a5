package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testChatClient(baseURL string) *openAIChatClient {
	return &openAIChatClient{
		apiKey:   "test",
		baseURL:  baseURL,
		model:    "gpt-4o-mini-2024-07-18",
		jsonMode: true,
		httpClient: &http.Client{
			Timeout: 2 * time.Second,
		},
	}
}

func TestChatClientSendsPerCallSamplingSettings(t *testing.T) {
	t.Parallel()

	var received chatCompletionPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	defer server.Close()

	client := testChatClient(server.URL)
	content, err := client.complete(context.Background(), modelRequest{
		System:      "classify",
		User:        "payload",
		Temperature: 0.3,
		MaxTokens:   500,
		ForceJSON:   true,
	})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if content != `{"ok":true}` {
		t.Fatalf("content = %q", content)
	}

	if received.Temperature != 0.3 {
		t.Fatalf("temperature = %v, want 0.3", received.Temperature)
	}
	if received.MaxTokens != 500 {
		t.Fatalf("max_tokens = %d, want 500", received.MaxTokens)
	}
	if received.ResponseFormat == nil || received.ResponseFormat.Type != "json_object" {
		t.Fatalf("response_format = %+v, want json_object", received.ResponseFormat)
	}
	if len(received.Messages) != 2 || received.Messages[0].Role != "system" || received.Messages[1].Role != "user" {
		t.Fatalf("messages = %+v", received.Messages)
	}
}

func TestChatClientJSONModeDisabledOmitsResponseFormat(t *testing.T) {
	t.Parallel()

	var received chatCompletionPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client := testChatClient(server.URL)
	client.jsonMode = false
	if _, err := client.complete(context.Background(), modelRequest{User: "x", ForceJSON: true}); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if received.ResponseFormat != nil {
		t.Fatalf("response_format should be omitted, got %+v", received.ResponseFormat)
	}
}

func TestChatClientClassifiesFailures(t *testing.T) {
	t.Parallel()

	t.Run("non-2xx is upstream-unavailable", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
		}))
		defer server.Close()

		_, err := testChatClient(server.URL).complete(context.Background(), modelRequest{User: "x"})
		kind, ok := errorKind(err)
		if !ok || kind != KindUpstreamUnavailable {
			t.Fatalf("expected upstream-unavailable, got %v (err=%v)", kind, err)
		}
	})

	t.Run("transport failure is upstream-unavailable", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		_, err := testChatClient(server.URL).complete(context.Background(), modelRequest{User: "x"})
		kind, ok := errorKind(err)
		if !ok || kind != KindUpstreamUnavailable {
			t.Fatalf("expected upstream-unavailable, got %v (err=%v)", kind, err)
		}
	})

	t.Run("missing api key fails before any call", func(t *testing.T) {
		t.Parallel()
		client := testChatClient("http://unused.invalid")
		client.apiKey = ""
		_, err := client.complete(context.Background(), modelRequest{User: "x"})
		kind, ok := errorKind(err)
		if !ok || kind != KindUpstreamUnavailable {
			t.Fatalf("expected upstream-unavailable, got %v (err=%v)", kind, err)
		}
	})

	t.Run("null content is empty-response", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":null}}]}`))
		}))
		defer server.Close()

		_, err := testChatClient(server.URL).complete(context.Background(), modelRequest{User: "x"})
		kind, ok := errorKind(err)
		if !ok || kind != KindEmptyResponse {
			t.Fatalf("expected empty-response, got %v (err=%v)", kind, err)
		}
	})

	t.Run("blank content is empty-response", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"   \n"}}]}`))
		}))
		defer server.Close()

		_, err := testChatClient(server.URL).complete(context.Background(), modelRequest{User: "x"})
		kind, ok := errorKind(err)
		if !ok || kind != KindEmptyResponse {
			t.Fatalf("expected empty-response, got %v (err=%v)", kind, err)
		}
	})

	t.Run("no choices is empty-response", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}))
		defer server.Close()

		_, err := testChatClient(server.URL).complete(context.Background(), modelRequest{User: "x"})
		kind, ok := errorKind(err)
		if !ok || kind != KindEmptyResponse {
			t.Fatalf("expected empty-response, got %v (err=%v)", kind, err)
		}
	})
}

func TestChatClientDropsBlankAndUnknownTurns(t *testing.T) {
	t.Parallel()

	var received chatCompletionPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	_, err := testChatClient(server.URL).complete(context.Background(), modelRequest{
		Turns: []chatTurn{
			{Role: "user", Content: "first"},
			{Role: "tool", Content: "dropped"},
			{Role: "assistant", Content: "  "},
			{Role: "assistant", Content: "second"},
		},
	})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if len(received.Messages) != 2 {
		t.Fatalf("messages = %+v, want the two non-blank known-role turns", received.Messages)
	}
}
