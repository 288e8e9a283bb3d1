package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/strrl/ragchat/pkg/models"
)

// Format modes picked from the wording of a question
const (
	FormatDefault = "default"
	FormatCustom  = "custom"
)

// Prompt is everything a Completer needs to answer one question.
type Prompt struct {
	Model      string
	PromptMode string
	FormatMode string
	History    []models.Message
	Question   string
}

// Completer produces an answer for a prompt.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

var formatTriggers = []string{
	"請用一段話", "摘要", "表格", "表列", "條列式", "清單形式", "一句話", "說明就好",
	"summarize", "as a table", "one paragraph", "bullet points", "list format",
	"格式", "請用以下", "用以下格式", "簡單說明",
}

var (
	questionLabel = regexp.MustCompile(`(?i)question\s*:`)
	answerLabel   = regexp.MustCompile(`(?i)answers?\s*:`)
)

// DetectFormatMode reports whether the question asks for a specific answer layout.
func DetectFormatMode(question string) string {
	lower := strings.ToLower(question)
	for _, kw := range formatTriggers {
		if strings.Contains(lower, kw) {
			return FormatCustom
		}
	}
	if questionLabel.MatchString(question) && answerLabel.MatchString(question) {
		return FormatCustom
	}
	return FormatDefault
}

const (
	researchPrompt = "You are a meticulous research assistant. Answer with a structured, well-sourced analysis: " +
		"state the key findings first, then the supporting details, then open questions. Use Markdown headings and lists."
	customFormatPrompt = "You are a helpful assistant. The user asked for a specific format; follow their layout " +
		"instructions exactly and do not add sections they did not ask for."
)

// defaultPrompts are rotated to vary the answer style.
var defaultPrompts = []string{
	"You are a helpful assistant. Answer as a structured list: a one-line summary followed by numbered points in **bold** labels.",
	"You are a helpful assistant. Answer with hierarchical bullet points, nesting details under each main point.",
	"You are a helpful assistant. Answer in short paragraphs, each led by a fitting emoji and a **bold** key phrase.",
}

// SystemPrompt picks the system instruction for a prompt and format mode.
func SystemPrompt(promptMode, formatMode string) string {
	switch {
	case promptMode == models.PromptModeResearch:
		return researchPrompt
	case formatMode == FormatCustom:
		return customFormatPrompt
	}
	return defaultPrompts[rand.IntN(len(defaultPrompts))]
}

// EchoCompleter answers without a model. Useful offline and in tests.
type EchoCompleter struct{}

func (EchoCompleter) Complete(_ context.Context, p Prompt) (string, error) {
	return fmt.Sprintf("**Echo** (%s, %s): %s", p.Model, p.PromptMode, p.Question), nil
}

// OllamaCompleter answers through an Ollama server's /api/chat endpoint.
type OllamaCompleter struct {
	baseURL string
	http    *http.Client
}

// NewOllamaCompleter creates a completer for the Ollama server at baseURL.
func NewOllamaCompleter(baseURL string, timeout time.Duration) *OllamaCompleter {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &OllamaCompleter{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Error   string        `json:"error,omitempty"`
}

func (o *OllamaCompleter) Complete(ctx context.Context, p Prompt) (string, error) {
	msgs := []ollamaMessage{{Role: "system", Content: SystemPrompt(p.PromptMode, p.FormatMode)}}
	for _, m := range p.History {
		msgs = append(msgs, ollamaMessage{Role: string(m.Role), Content: m.Content})
	}
	msgs = append(msgs, ollamaMessage{Role: "user", Content: p.Question})

	body, err := json.Marshal(ollamaChatRequest{Model: p.Model, Messages: msgs})
	if err != nil {
		return "", fmt.Errorf("failed to encode ollama request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read ollama response: %w", err)
	}
	var out ollamaChatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("failed to decode ollama response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || out.Error != "" {
		return "", fmt.Errorf("ollama returned HTTP %d: %s", resp.StatusCode, out.Error)
	}
	return out.Message.Content, nil
}
