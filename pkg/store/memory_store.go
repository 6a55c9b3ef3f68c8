package store

import (
	"fmt"
	"sync"
	"time"

	"agentdesk/pkg/domain"
)

// MemoryStore keeps all records in-process. It mirrors GormStore semantics
// (newest-first listings, cascade delete, session counters) and backs tests.
type MemoryStore struct {
	mu sync.RWMutex

	users      map[string]domain.User
	emailIndex map[string]string // email -> user ID

	projects     map[string]domain.Project
	projectOrder []string

	prompts     map[string]domain.Prompt
	promptOrder []string

	files     map[string]domain.File
	fileOrder []string

	sessions     map[string]domain.Session
	sessionOrder []string

	messages map[string][]domain.Message // session ID -> ordered messages
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]domain.User),
		emailIndex: make(map[string]string),
		projects:   make(map[string]domain.Project),
		prompts:    make(map[string]domain.Prompt),
		files:      make(map[string]domain.File),
		sessions:   make(map[string]domain.Session),
		messages:   make(map[string][]domain.Message),
	}
}

// CreateUser stores a user; duplicate emails are rejected.
func (m *MemoryStore) CreateUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.emailIndex[u.Email]; taken {
		return fmt.Errorf("email %s already registered", u.Email)
	}
	m.users[u.ID] = u
	m.emailIndex[u.Email] = u.ID
	return nil
}

// HasUserEmail checks if email exists.
func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.emailIndex[email]
	return ok, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emailIndex[email]
	if !ok {
		return domain.User{}, false, nil
	}
	user, ok := m.users[id]
	return user, ok, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	return user, ok, nil
}

// CreateProject stores a project and tracks insertion order.
func (m *MemoryStore) CreateProject(p domain.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.projects[p.ID]; !exists {
		m.projectOrder = append(m.projectOrder, p.ID)
	}
	m.projects[p.ID] = p
	return nil
}

// ListProjectsByOwner returns the owner's projects, newest first.
func (m *MemoryStore) ListProjectsByOwner(ownerID string) ([]domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Project, 0)
	for i := len(m.projectOrder) - 1; i >= 0; i-- {
		if p, ok := m.projects[m.projectOrder[i]]; ok && p.OwnerID == ownerID {
			res = append(res, p)
		}
	}
	return res, nil
}

// GetProject retrieves a project.
func (m *MemoryStore) GetProject(id string) (domain.Project, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	return p, ok, nil
}

// UpdateProject applies a partial update.
func (m *MemoryStore) UpdateProject(id string, upd ProjectUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return fmt.Errorf("project %s not found", id)
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	if upd.SystemPrompt != nil {
		p.SystemPrompt = *upd.SystemPrompt
	}
	now := time.Now().UTC()
	p.UpdatedAt = &now
	m.projects[id] = p
	return nil
}

// DeleteProject removes the project and cascades to prompts, files,
// sessions, and messages.
func (m *MemoryStore) DeleteProject(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.projects, id)
	for promptID, p := range m.prompts {
		if p.ProjectID == id {
			delete(m.prompts, promptID)
		}
	}
	for fileID, f := range m.files {
		if f.ProjectID == id {
			delete(m.files, fileID)
		}
	}
	for sessionID, sess := range m.sessions {
		if sess.ProjectID == id {
			delete(m.sessions, sessionID)
			delete(m.messages, sessionID)
		}
	}
	return nil
}

// CreatePrompt stores a prompt and tracks insertion order.
func (m *MemoryStore) CreatePrompt(p domain.Prompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.prompts[p.ID]; !exists {
		m.promptOrder = append(m.promptOrder, p.ID)
	}
	m.prompts[p.ID] = p
	return nil
}

// ListPromptsByProject returns a project's prompts, newest first.
func (m *MemoryStore) ListPromptsByProject(projectID string) ([]domain.Prompt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Prompt, 0)
	for i := len(m.promptOrder) - 1; i >= 0; i-- {
		if p, ok := m.prompts[m.promptOrder[i]]; ok && p.ProjectID == projectID {
			res = append(res, p)
		}
	}
	return res, nil
}

// ListActivePrompts returns active prompts in creation order.
func (m *MemoryStore) ListActivePrompts(projectID string, limit int) ([]domain.Prompt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Prompt, 0)
	for _, id := range m.promptOrder {
		p, ok := m.prompts[id]
		if !ok || p.ProjectID != projectID || !p.IsActive {
			continue
		}
		res = append(res, p)
		if limit > 0 && len(res) >= limit {
			break
		}
	}
	return res, nil
}

// GetPrompt retrieves a prompt.
func (m *MemoryStore) GetPrompt(id string) (domain.Prompt, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prompts[id]
	return p, ok, nil
}

// UpdatePrompt applies a partial update.
func (m *MemoryStore) UpdatePrompt(id string, upd PromptUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prompts[id]
	if !ok {
		return fmt.Errorf("prompt %s not found", id)
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Content != nil {
		p.Content = *upd.Content
	}
	if upd.IsActive != nil {
		p.IsActive = *upd.IsActive
	}
	now := time.Now().UTC()
	p.UpdatedAt = &now
	m.prompts[id] = p
	return nil
}

// DeletePrompt removes a prompt.
func (m *MemoryStore) DeletePrompt(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.prompts, id)
	return nil
}

// CreateFile records provider file metadata.
func (m *MemoryStore) CreateFile(f domain.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.files[f.ID]; !exists {
		m.fileOrder = append(m.fileOrder, f.ID)
	}
	m.files[f.ID] = f
	return nil
}

// ListFilesByProject returns a project's file records, newest first.
func (m *MemoryStore) ListFilesByProject(projectID string) ([]domain.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.File, 0)
	for i := len(m.fileOrder) - 1; i >= 0; i-- {
		if f, ok := m.files[m.fileOrder[i]]; ok && f.ProjectID == projectID {
			res = append(res, f)
		}
	}
	return res, nil
}

// GetFile retrieves a file record.
func (m *MemoryStore) GetFile(id string) (domain.File, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[id]
	return f, ok, nil
}

// DeleteFile removes a file record.
func (m *MemoryStore) DeleteFile(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, id)
	return nil
}

// CreateSession creates an empty chat session.
func (m *MemoryStore) CreateSession(sess domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[sess.ID]; !exists {
		m.sessionOrder = append(m.sessionOrder, sess.ID)
	}
	m.sessions[sess.ID] = sess
	return nil
}

// GetSession retrieves a session.
func (m *MemoryStore) GetSession(id string) (domain.Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok, nil
}

// ListSessionsByProject returns a project's sessions, newest first.
func (m *MemoryStore) ListSessionsByProject(projectID string) ([]domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Session, 0)
	for i := len(m.sessionOrder) - 1; i >= 0; i-- {
		if sess, ok := m.sessions[m.sessionOrder[i]]; ok && sess.ProjectID == projectID {
			res = append(res, sess)
		}
	}
	return res, nil
}

// DeleteSession removes a session and its messages.
func (m *MemoryStore) DeleteSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.messages, id)
	return nil
}

// AppendMessage appends a message and refreshes the session counters.
func (m *MemoryStore) AppendMessage(msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[msg.SessionID]
	if !ok {
		return fmt.Errorf("session %s not found", msg.SessionID)
	}
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], msg)
	sess.MessageCount = len(m.messages[msg.SessionID])
	if msg.Role == domain.RoleUser {
		sess.LastMessage = previewOf(msg.Content)
	}
	now := time.Now().UTC()
	sess.UpdatedAt = &now
	m.sessions[msg.SessionID] = sess
	return nil
}

// ListMessages returns a session's messages in conversation order.
func (m *MemoryStore) ListMessages(sessionID string) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[sessionID]
	res := make([]domain.Message, len(msgs))
	copy(res, msgs)
	return res, nil
}
