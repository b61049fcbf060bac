package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"ad-chat-be/pkg/llm"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sseServer answers /chat/completions with the given server-sent event lines.
// The returned func yields the last request body received.
func sseServer(t *testing.T, lines ...string) (*httptest.Server, func() goopenai.ChatCompletionRequest) {
	t.Helper()
	var (
		mu  sync.Mutex
		got goopenai.ChatCompletionRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var req goopenai.ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		got = req
		mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		for _, l := range lines {
			fmt.Fprintf(w, "%s\n\n", l)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func() goopenai.ChatCompletionRequest {
		mu.Lock()
		defer mu.Unlock()
		return got
	}
}

func drain(t *testing.T, s llm.TokenStream) ([]string, error) {
	t.Helper()
	defer s.Close()
	var out []string
	for {
		d, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, d)
	}
}

func TestStreamSkipsEmptyDeltasUntilDone(t *testing.T) {
	srv, lastRequest := sseServer(t,
		`data: {"choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
		`data: {"choices":[{"index":0,"delta":{"content":"Hel"}}]}`,
		`data: {"choices":[]}`,
		`data: {"choices":[{"index":0,"delta":{"content":"lo"}}]}`,
		`data: {"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`data: [DONE]`,
	)
	p := NewOpenAIProvider("key", srv.URL, "gpt-4o-mini")

	s, err := p.Stream(context.Background(), llm.WithSystem("sys", []llm.Message{{Role: "model", Content: "earlier"}}))
	require.NoError(t, err)

	deltas, err := drain(t, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)

	req := lastRequest()
	assert.True(t, req.Stream)
	assert.Equal(t, "gpt-4o-mini", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, goopenai.ChatMessageRoleAssistant, req.Messages[1].Role)
}

func TestStreamFailures(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  []string
	}{
		{
			name: "error event",
			lines: []string{
				`data: {"choices":[{"index":0,"delta":{"content":"a"}}]}`,
				`data: {"error":{"message":"rate limited","type":"requests"}}`,
			},
			want: []string{"a"},
		},
		{
			name:  "garbage event",
			lines: []string{`data: {not json`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := sseServer(t, tt.lines...)
			s, err := NewOpenAIProvider("key", srv.URL, "m").Stream(context.Background(), nil)
			require.NoError(t, err)

			deltas, err := drain(t, s)
			require.Error(t, err)
			assert.False(t, errors.Is(err, io.EOF))
			assert.ErrorContains(t, err, "read completion stream")
			assert.Equal(t, tt.want, deltas)
		})
	}
}

func TestGenerateSendsSystemPrompt(t *testing.T) {
	var (
		mu  sync.Mutex
		got goopenai.ChatCompletionRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req goopenai.ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		got = req
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"Coffee"}}]}`)
	}))
	defer srv.Close()

	out, err := NewOpenAIProvider("key", srv.URL, "gpt-4o-mini").
		Generate(context.Background(), "pick a topic", "best espresso beans?", llm.WithModel("gpt-4o"))
	require.NoError(t, err)
	assert.Equal(t, "Coffee", out)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, got.Stream)
	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, []goopenai.ChatCompletionMessage{
		{Role: llm.RoleSystem, Content: "pick a topic"},
		{Role: llm.RoleUser, Content: "best espresso beans?"},
	}, got.Messages)
}

func TestNon200IsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api key","type":"auth"}}`)
	}))
	defer srv.Close()

	_, err := NewOpenAIProvider("bad", srv.URL, "m").Stream(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "open completion stream")
}
