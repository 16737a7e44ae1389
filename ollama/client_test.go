package ollama

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestModelSupportsToolCalling(t *testing.T) {
	tests := []struct {
		model string
		want  bool
	}{
		{"llama3.1:latest", true},
		{"llama3.2:3b", true},
		{"llama3:8b", false},
		{"llama3-gradient:latest", false},
		{"Qwen2.5:7b", true},
		{"gemma2:9b", false},
		{"mystery-model", false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, ModelSupportsToolCalling(tt.model))
		})
	}
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient("", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.BaseURL())
	assert.Equal(t, DefaultModel, c.Model())
	assert.True(t, c.SupportsToolCalling())

	_, err = NewClient("://bad", "")
	assert.Error(t, err)
}

func TestChatAndListModels(t *testing.T) {
	bodies := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/chat":
			data, _ := io.ReadAll(r.Body)
			bodies <- data
			_ = json.NewEncoder(w).Encode(api.ChatResponse{
				Model:   "llama3.1:latest",
				Message: api.Message{Role: "assistant", Content: "Two linen shirts in stock."},
				Done:    true,
			})
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"llama3.1:latest"},{"name":"gemma2:9b"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "llama3.1:latest")
	require.NoError(t, err)

	reply, err := c.Chat(t.Context(), []api.Message{{Role: "user", Content: "linen shirts?"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "assistant", reply.Role)
	assert.Equal(t, "Two linen shirts in stock.", reply.Content)

	body := gjson.ParseBytes(<-bodies)
	assert.Equal(t, "llama3.1:latest", body.Get("model").String())
	assert.False(t, body.Get("stream").Bool())
	assert.Equal(t, "linen shirts?", body.Get("messages.0.content").String())

	models, err := c.ListModels(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.1:latest", "gemma2:9b"}, models)
	assert.NoError(t, c.Ping(t.Context()))
}
