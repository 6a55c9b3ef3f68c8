package domain

import "time"

// MessageRole tags one turn of a chat session.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// DefaultSystemPrompt is applied when a project is created without one.
const DefaultSystemPrompt = "You are a helpful AI assistant."

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Project is a named agent configuration owned by exactly one user.
type Project struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"ownerId"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	SystemPrompt string     `json:"systemPrompt"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
}

// Prompt is a reusable instruction snippet attached to a project.
// Only active prompts are folded into completion requests.
type Prompt struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"projectId"`
	Name      string     `json:"name"`
	Content   string     `json:"content"`
	IsActive  bool       `json:"isActive"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// File records metadata for a payload forwarded to the AI provider.
// The bytes themselves live with the provider, never locally.
type File struct {
	ID             string            `json:"id"`
	ProjectID      string            `json:"projectId"`
	Filename       string            `json:"filename"`
	SizeBytes      int64             `json:"sizeBytes"`
	ProviderFileID string            `json:"providerFileId"`
	Purpose        string            `json:"purpose"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// Session is one conversation thread scoped to a project.
// MessageCount and LastMessage are maintained transactionally with each append.
type Session struct {
	ID           string     `json:"id"`
	ProjectID    string     `json:"projectId"`
	MessageCount int        `json:"messageCount"`
	LastMessage  string     `json:"lastMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
}

type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionId"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"createdAt"`
}

// ChatReply is what the completion gateway returns to the caller.
type ChatReply struct {
	SessionID string  `json:"sessionId"`
	ProjectID string  `json:"projectId"`
	Message   Message `json:"message"`
}
