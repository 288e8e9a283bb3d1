package models

import "time"

// Role identifies the author of a chat message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Prompt modes understood by the backend
const (
	PromptModeDefault  = "default"
	PromptModeResearch = "research"
)

// ChatSession represents one conversation in the sidebar
type ChatSession struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Message is a single entry of a session's thread.
// IsMarkdown is a client-side flag and never travels over the wire.
type Message struct {
	Role       Role   `json:"role" yaml:"role"`
	Content    string `json:"content" yaml:"content"`
	IsMarkdown bool   `json:"-" yaml:"-"`
}

// CompletionRequest is the payload of a chat completion call
type CompletionRequest struct {
	SessionID  string `json:"session_id"`
	Question   string `json:"question"`
	Model      string `json:"model"`
	PromptMode string `json:"prompt_mode"`
}

// Completion is the backend's answer to a CompletionRequest
type Completion struct {
	Answer         string `json:"answer"`
	ModelUsed      string `json:"model_used,omitempty"`
	PromptModeUsed string `json:"prompt_mode_used,omitempty"`
	FormatModeUsed string `json:"format_mode_used,omitempty"`
}

// Feedback carries a user's correction of an answer
type Feedback struct {
	SessionID        string `json:"session_id"`
	Question         string `json:"question"`
	Model            string `json:"model"`
	OriginalAnswer   string `json:"original_answer"`
	ExpectedQuestion string `json:"user_expected_question"`
	ExpectedAnswer   string `json:"user_expected_answer"`
}
