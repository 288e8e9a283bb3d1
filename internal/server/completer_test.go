package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strrl/ragchat/pkg/models"
)

func TestDetectFormatMode(t *testing.T) {
	tests := []struct {
		question string
		want     string
	}{
		{"What is RAG?", FormatDefault},
		{"Summarize the paper", FormatCustom},
		{"請用表格比較兩者", FormatCustom},
		{"give me bullet points please", FormatCustom},
		{"Question: what? Answer: this", FormatCustom},
		{"question: only the label", FormatDefault},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormatMode(tt.question))
		})
	}
}

func TestSystemPrompt(t *testing.T) {
	assert.Equal(t, researchPrompt, SystemPrompt(models.PromptModeResearch, FormatCustom))
	assert.Equal(t, customFormatPrompt, SystemPrompt(models.PromptModeDefault, FormatCustom))
	for i := 0; i < 20; i++ {
		assert.Contains(t, defaultPrompts, SystemPrompt(models.PromptModeDefault, FormatDefault))
	}
}

func TestOllamaCompleter(t *testing.T) {
	var got ollamaChatRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{Message: ollamaMessage{Role: "assistant", Content: "hi there"}})
	}))
	defer ts.Close()

	o := NewOllamaCompleter(ts.URL+"/", time.Second)
	answer, err := o.Complete(context.Background(), Prompt{
		Model:      "gemma3:12b",
		PromptMode: models.PromptModeResearch,
		FormatMode: FormatDefault,
		History:    []models.Message{{Role: models.RoleUser, Content: "earlier"}, {Role: models.RoleAssistant, Content: "reply"}},
		Question:   "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", answer)

	assert.Equal(t, "gemma3:12b", got.Model)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, researchPrompt, got.Messages[0].Content)
	assert.Equal(t, ollamaMessage{Role: "user", Content: "hello"}, got.Messages[3])
}

func TestOllamaCompleter_Error(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer ts.Close()

	_, err := NewOllamaCompleter(ts.URL, time.Second).Complete(context.Background(), Prompt{Model: "x", Question: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}
