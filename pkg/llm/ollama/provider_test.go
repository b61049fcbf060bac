package ollama

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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ndjsonServer answers /api/chat with the given lines. The returned func
// yields the last request body received.
func ndjsonServer(t *testing.T, lines ...string) (*httptest.Server, func() ollamaChatRequest) {
	t.Helper()
	var (
		mu  sync.Mutex
		got ollamaChatRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req ollamaChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		got = req
		mu.Unlock()
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func() ollamaChatRequest {
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

func TestStreamReadsDeltasUntilDone(t *testing.T) {
	srv, lastRequest := ndjsonServer(t,
		`{"message":{"role":"assistant","content":"Hel"},"done":false}`,
		``,
		`{"message":{"role":"assistant","content":"lo"},"done":false}`,
		`{"message":{"role":"assistant","content":""},"done":true}`,
	)
	p := NewOllamaProvider(srv.URL, "llama3")

	s, err := p.Stream(context.Background(), llm.WithSystem("sys", []llm.Message{{Role: "model", Content: "earlier"}}))
	require.NoError(t, err)

	deltas, err := drain(t, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)

	req := lastRequest()
	assert.True(t, req.Stream)
	assert.Equal(t, "llama3", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, llm.RoleAssistant, req.Messages[1].Role)
}

func TestStreamFailures(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  []string
	}{
		{
			name:  "body ends before done",
			lines: []string{`{"message":{"content":"partial"},"done":false}`},
			want:  []string{"partial"},
		},
		{
			name:  "error chunk",
			lines: []string{`{"message":{"content":"a"}}`, `{"error":"model unloaded"}`},
			want:  []string{"a"},
		},
		{
			name:  "garbage line",
			lines: []string{`not json`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := ndjsonServer(t, tt.lines...)
			s, err := NewOllamaProvider(srv.URL, "m").Stream(context.Background(), nil)
			require.NoError(t, err)

			deltas, err := drain(t, s)
			require.Error(t, err)
			assert.False(t, errors.Is(err, io.EOF))
			assert.Equal(t, tt.want, deltas)
		})
	}
}

func TestGenerateSendsSystemPromptAndOptions(t *testing.T) {
	srv, lastRequest := ndjsonServer(t, `{"message":{"role":"assistant","content":"Coffee"},"done":true}`)
	p := NewOllamaProvider(srv.URL, "llama3")

	out, err := p.Generate(context.Background(), "pick a topic", "best espresso beans?", llm.WithTemperature(0.2), llm.WithModel("phi3"))
	require.NoError(t, err)

	assert.Equal(t, "Coffee", out)

	req := lastRequest()
	assert.False(t, req.Stream)
	assert.Equal(t, "phi3", req.Model)
	require.NotNil(t, req.Options)
	assert.InDelta(t, 0.2, req.Options.Temperature, 1e-9)
	assert.Equal(t, []ollamaMessage{
		{Role: llm.RoleSystem, Content: "pick a topic"},
		{Role: llm.RoleUser, Content: "best espresso beans?"},
	}, req.Messages)
}

func TestNon200IsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "missing").Stream(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}
