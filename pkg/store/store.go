package store

import "agentdesk/pkg/domain"

// ProjectUpdate carries a partial project update; nil fields are left as-is.
type ProjectUpdate struct {
	Name         *string
	Description  *string
	SystemPrompt *string
}

// PromptUpdate carries a partial prompt update; nil fields are left as-is.
type PromptUpdate struct {
	Name     *string
	Content  *string
	IsActive *bool
}

// Store defines persistence operations for users, projects, prompts, files,
// and chat sessions. Ownership checks live in the application layer; the
// store only enforces structural invariants (unique email, cascade delete,
// session counters kept in step with the message sequence).
type Store interface {
	// users
	CreateUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// projects
	CreateProject(domain.Project) error
	ListProjectsByOwner(ownerID string) ([]domain.Project, error)
	GetProject(id string) (domain.Project, bool, error)
	UpdateProject(id string, upd ProjectUpdate) error
	// DeleteProject removes the project and cascades to its prompts,
	// files, sessions, and messages.
	DeleteProject(id string) error

	// prompts
	CreatePrompt(domain.Prompt) error
	ListPromptsByProject(projectID string) ([]domain.Prompt, error)
	// ListActivePrompts returns active prompts in creation order, the
	// order they are folded into completion requests.
	ListActivePrompts(projectID string, limit int) ([]domain.Prompt, error)
	GetPrompt(id string) (domain.Prompt, bool, error)
	UpdatePrompt(id string, upd PromptUpdate) error
	DeletePrompt(id string) error

	// files
	CreateFile(domain.File) error
	ListFilesByProject(projectID string) ([]domain.File, error)
	GetFile(id string) (domain.File, bool, error)
	DeleteFile(id string) error

	// sessions
	CreateSession(domain.Session) error
	GetSession(id string) (domain.Session, bool, error)
	ListSessionsByProject(projectID string) ([]domain.Session, error)
	DeleteSession(id string) error
	// AppendMessage appends a message and updates the owning session's
	// message_count and last_message in the same transaction.
	AppendMessage(msg domain.Message) error
	ListMessages(sessionID string) ([]domain.Message, error)
}

// SessionStore issues and validates bearer tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
