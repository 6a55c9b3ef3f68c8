package app

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"agentdesk/internal/util"
	"agentdesk/pkg/ai"
	"agentdesk/pkg/auth"
	"agentdesk/pkg/domain"
	"agentdesk/pkg/store"
)

const (
	defaultCompletionTimeout = 60 * time.Second
	defaultMaxActivePrompts  = 10
	filePurposeAssistants    = "assistants"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL       string
	RedisAddr         string
	RedisPassword     string
	JWTSecret         string
	SessionTTL        time.Duration
	CompletionTimeout time.Duration
	MaxActivePrompts  int
	Store             store.Store
	Sessions          store.SessionStore
	Generator         ai.TextGenerator
	Files             ai.FileAPI
}

// App is the core application service wiring together storage, auth,
// and the provider-facing chat and file logic.
type App struct {
	store             store.Store
	sessions          store.SessionStore
	generator         ai.TextGenerator
	files             ai.FileAPI
	completionTimeout time.Duration
	maxActivePrompts  int
}

// New constructs the application with database storage and session management.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = defaultCompletionTimeout
	}
	if cfg.MaxActivePrompts <= 0 {
		cfg.MaxActivePrompts = defaultMaxActivePrompts
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		if strings.TrimSpace(cfg.JWTSecret) == "" {
			return nil, fmt.Errorf("jwtSecret is required")
		}
		var revoker store.TokenRevoker
		if strings.TrimSpace(cfg.RedisAddr) != "" {
			revoker = store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
		} else {
			revoker = store.NewMemoryTokenRevoker()
		}
		sessionStore = store.NewJWTSessionStore(cfg.JWTSecret, cfg.SessionTTL, revoker)
	}

	if cfg.Generator == nil {
		return nil, fmt.Errorf("text generator required")
	}
	if cfg.Files == nil {
		return nil, fmt.Errorf("provider file api required")
	}

	return &App{
		store:             dataStore,
		sessions:          sessionStore,
		generator:         cfg.Generator,
		files:             cfg.Files,
		completionTimeout: cfg.CompletionTimeout,
		maxActivePrompts:  cfg.MaxActivePrompts,
	}, nil
}

// Register creates a new user and opens a session for it.
func (a *App) Register(email, password, name string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return domain.User{}, "", fmt.Errorf("%w: email and password required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.User{}, "", fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	name = strings.TrimSpace(name)
	if len([]rune(name)) < 2 {
		return domain.User{}, "", fmt.Errorf("%w: name must be at least 2 characters", ErrInvalidInput)
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrEmailTaken
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.CreateUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("create user: %w", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("create session: %w", err)
	}
	return user, token, nil
}

// Login verifies credentials and opens a session.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("load user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("create session: %w", err)
	}
	return user, token, nil
}

// Logout invalidates the session token.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// UserFromToken resolves a session token to its user.
func (a *App) UserFromToken(token string) (domain.User, error) {
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, ErrInvalidCredentials
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// CreateProject creates a project owned by the user. An empty system prompt
// falls back to the default assistant prompt.
func (a *App) CreateProject(user domain.User, name, description, systemPrompt string) (domain.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Project{}, fmt.Errorf("%w: project name required", ErrInvalidInput)
	}
	systemPrompt = strings.TrimSpace(systemPrompt)
	if systemPrompt == "" {
		systemPrompt = domain.DefaultSystemPrompt
	}
	project := domain.Project{
		ID:           util.NewID(),
		OwnerID:      user.ID,
		Name:         name,
		Description:  strings.TrimSpace(description),
		SystemPrompt: systemPrompt,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.CreateProject(project); err != nil {
		return domain.Project{}, fmt.Errorf("create project: %w", err)
	}
	return project, nil
}

// ListProjects lists the user's projects, newest first.
func (a *App) ListProjects(user domain.User) ([]domain.Project, error) {
	items, err := a.store.ListProjectsByOwner(user.ID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return items, nil
}

// GetProject loads a project the user owns.
func (a *App) GetProject(user domain.User, projectID string) (domain.Project, error) {
	return a.ownedProject(user, projectID)
}

// UpdateProject applies a partial update to a project the user owns.
func (a *App) UpdateProject(user domain.User, projectID string, upd store.ProjectUpdate) (domain.Project, error) {
	project, err := a.ownedProject(user, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return domain.Project{}, fmt.Errorf("%w: project name required", ErrInvalidInput)
	}
	if err := a.store.UpdateProject(project.ID, upd); err != nil {
		return domain.Project{}, fmt.Errorf("update project: %w", err)
	}
	project, _, err = a.store.GetProject(project.ID)
	if err != nil {
		return domain.Project{}, fmt.Errorf("reload project: %w", err)
	}
	return project, nil
}

// DeleteProject removes a project and everything under it. Provider-side
// copies of the project's files are deleted concurrently first; a provider
// failure aborts the local cascade.
func (a *App) DeleteProject(ctx context.Context, user domain.User, projectID string) error {
	project, err := a.ownedProject(user, projectID)
	if err != nil {
		return err
	}
	files, err := a.store.ListFilesByProject(project.ID)
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, f := range files {
		f := f
		g.Go(func() error {
			if err := a.files.DeleteFile(gctx, f.ProviderFileID); err != nil {
				return fmt.Errorf("delete provider file %s: %w", f.ProviderFileID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: %s", ErrUpstream, err)
	}
	if err := a.store.DeleteProject(project.ID); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

// CreatePrompt attaches a prompt snippet to a project the user owns.
// New prompts start active.
func (a *App) CreatePrompt(user domain.User, projectID, name, content string) (domain.Prompt, error) {
	project, err := a.ownedProject(user, projectID)
	if err != nil {
		return domain.Prompt{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Prompt{}, fmt.Errorf("%w: prompt name required", ErrInvalidInput)
	}
	if strings.TrimSpace(content) == "" {
		return domain.Prompt{}, fmt.Errorf("%w: prompt content required", ErrInvalidInput)
	}
	prompt := domain.Prompt{
		ID:        util.NewID(),
		ProjectID: project.ID,
		Name:      name,
		Content:   content,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.CreatePrompt(prompt); err != nil {
		return domain.Prompt{}, fmt.Errorf("create prompt: %w", err)
	}
	return prompt, nil
}

// ListPrompts lists all prompts of a project the user owns, newest first.
func (a *App) ListPrompts(user domain.User, projectID string) ([]domain.Prompt, error) {
	project, err := a.ownedProject(user, projectID)
	if err != nil {
		return nil, err
	}
	items, err := a.store.ListPromptsByProject(project.ID)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	return items, nil
}

// UpdatePrompt applies a partial update, including activation toggles.
func (a *App) UpdatePrompt(user domain.User, promptID string, upd store.PromptUpdate) (domain.Prompt, error) {
	prompt, err := a.ownedPrompt(user, promptID)
	if err != nil {
		return domain.Prompt{}, err
	}
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return domain.Prompt{}, fmt.Errorf("%w: prompt name required", ErrInvalidInput)
	}
	if upd.Content != nil && strings.TrimSpace(*upd.Content) == "" {
		return domain.Prompt{}, fmt.Errorf("%w: prompt content required", ErrInvalidInput)
	}
	if err := a.store.UpdatePrompt(prompt.ID, upd); err != nil {
		return domain.Prompt{}, fmt.Errorf("update prompt: %w", err)
	}
	prompt, _, err = a.store.GetPrompt(prompt.ID)
	if err != nil {
		return domain.Prompt{}, fmt.Errorf("reload prompt: %w", err)
	}
	return prompt, nil
}

// DeletePrompt removes a prompt from a project the user owns.
func (a *App) DeletePrompt(user domain.User, promptID string) error {
	prompt, err := a.ownedPrompt(user, promptID)
	if err != nil {
		return err
	}
	if err := a.store.DeletePrompt(prompt.ID); err != nil {
		return fmt.Errorf("delete prompt: %w", err)
	}
	return nil
}

// UploadFile streams a file to the provider and records its metadata locally.
func (a *App) UploadFile(ctx context.Context, user domain.User, projectID, filename string, r io.Reader) (domain.File, error) {
	project, err := a.ownedProject(user, projectID)
	if err != nil {
		return domain.File{}, err
	}
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return domain.File{}, fmt.Errorf("%w: filename required", ErrInvalidInput)
	}
	ctx, cancel := context.WithTimeout(ctx, a.completionTimeout)
	defer cancel()
	providerFile, err := a.files.UploadFile(ctx, filename, filePurposeAssistants, r)
	if err != nil {
		return domain.File{}, fmt.Errorf("%w: %s", ErrUpstream, err)
	}
	file := domain.File{
		ID:             util.NewID(),
		ProjectID:      project.ID,
		Filename:       filename,
		SizeBytes:      providerFile.Bytes,
		ProviderFileID: providerFile.ID,
		Purpose:        providerFile.Purpose,
		CreatedAt:      time.Now().UTC(),
	}
	if err := a.store.CreateFile(file); err != nil {
		return domain.File{}, fmt.Errorf("create file record: %w", err)
	}
	return file, nil
}

// ListFiles lists file records of a project the user owns, newest first.
func (a *App) ListFiles(user domain.User, projectID string) ([]domain.File, error) {
	project, err := a.ownedProject(user, projectID)
	if err != nil {
		return nil, err
	}
	items, err := a.store.ListFilesByProject(project.ID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return items, nil
}

// DeleteFile removes the provider copy first, then the local record.
func (a *App) DeleteFile(ctx context.Context, user domain.User, fileID string) error {
	file, ok, err := a.store.GetFile(fileID)
	if err != nil {
		return fmt.Errorf("load file: %w", err)
	}
	if !ok {
		return ErrFileNotFound
	}
	if _, err := a.ownedProject(user, file.ProjectID); err != nil {
		return ErrFileNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, a.completionTimeout)
	defer cancel()
	if err := a.files.DeleteFile(ctx, file.ProviderFileID); err != nil {
		return fmt.Errorf("%w: %s", ErrUpstream, err)
	}
	if err := a.store.DeleteFile(file.ID); err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	return nil
}

// CreateSession opens a new conversation thread in a project the user owns.
func (a *App) CreateSession(user domain.User, projectID string) (domain.Session, error) {
	project, err := a.ownedProject(user, projectID)
	if err != nil {
		return domain.Session{}, err
	}
	session := domain.Session{
		ID:        util.NewID(),
		ProjectID: project.ID,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.CreateSession(session); err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// ListSessions lists conversation threads of a project the user owns, newest first.
func (a *App) ListSessions(user domain.User, projectID string) ([]domain.Session, error) {
	project, err := a.ownedProject(user, projectID)
	if err != nil {
		return nil, err
	}
	items, err := a.store.ListSessionsByProject(project.ID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return items, nil
}

// GetSession loads one session of a project the user owns.
func (a *App) GetSession(user domain.User, sessionID string) (domain.Session, error) {
	return a.ownedSession(user, sessionID)
}

// DeleteSession removes a session and its messages.
func (a *App) DeleteSession(user domain.User, sessionID string) error {
	session, err := a.ownedSession(user, sessionID)
	if err != nil {
		return err
	}
	if err := a.store.DeleteSession(session.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ListMessages returns a session's messages in chronological order.
func (a *App) ListMessages(user domain.User, sessionID string) ([]domain.Message, error) {
	session, err := a.ownedSession(user, sessionID)
	if err != nil {
		return nil, err
	}
	items, err := a.store.ListMessages(session.ID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return items, nil
}

// Chat appends the user's message to a session and asks the provider for a
// reply. With an empty sessionID a fresh session is opened in the project.
// The user message is persisted before the provider call, so a provider
// failure leaves the question in the transcript without an answer.
func (a *App) Chat(ctx context.Context, user domain.User, projectID, sessionID, content string) (domain.ChatReply, error) {
	if strings.TrimSpace(content) == "" {
		return domain.ChatReply{}, fmt.Errorf("%w: message content required", ErrInvalidInput)
	}
	project, err := a.ownedProject(user, projectID)
	if err != nil {
		return domain.ChatReply{}, err
	}

	var session domain.Session
	if strings.TrimSpace(sessionID) == "" {
		session, err = a.CreateSession(user, project.ID)
		if err != nil {
			return domain.ChatReply{}, err
		}
	} else {
		session, err = a.ownedSession(user, sessionID)
		if err != nil {
			return domain.ChatReply{}, err
		}
		if session.ProjectID != project.ID {
			return domain.ChatReply{}, ErrSessionNotFound
		}
	}

	if err := a.store.AppendMessage(domain.Message{
		ID:        util.NewID(),
		SessionID: session.ID,
		Role:      domain.RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return domain.ChatReply{}, fmt.Errorf("save user message: %w", err)
	}

	systemPrompt, err := a.composeSystemPrompt(project)
	if err != nil {
		return domain.ChatReply{}, err
	}
	history, err := a.store.ListMessages(session.ID)
	if err != nil {
		return domain.ChatReply{}, fmt.Errorf("load history: %w", err)
	}
	chatHistory := make([]ai.ChatMessage, 0, len(history))
	for _, m := range history {
		chatHistory = append(chatHistory, ai.ChatMessage{Role: string(m.Role), Content: m.Content})
	}

	callCtx, cancel := context.WithTimeout(ctx, a.completionTimeout)
	defer cancel()
	reply, err := a.generator.GenerateChat(callCtx, systemPrompt, chatHistory)
	if err != nil {
		return domain.ChatReply{}, fmt.Errorf("%w: %s", ErrUpstream, err)
	}

	assistantMessage := domain.Message{
		ID:        util.NewID(),
		SessionID: session.ID,
		Role:      domain.RoleAssistant,
		Content:   reply,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.AppendMessage(assistantMessage); err != nil {
		return domain.ChatReply{}, fmt.Errorf("save assistant message: %w", err)
	}
	return domain.ChatReply{
		SessionID: session.ID,
		ProjectID: project.ID,
		Message:   assistantMessage,
	}, nil
}

// composeSystemPrompt folds the project's active prompt snippets under the
// base system prompt, oldest first, capped at maxActivePrompts.
func (a *App) composeSystemPrompt(project domain.Project) (string, error) {
	base := project.SystemPrompt
	if strings.TrimSpace(base) == "" {
		base = domain.DefaultSystemPrompt
	}
	active, err := a.store.ListActivePrompts(project.ID, a.maxActivePrompts)
	if err != nil {
		return "", fmt.Errorf("load active prompts: %w", err)
	}
	if len(active) == 0 {
		return base, nil
	}
	blocks := make([]string, 0, len(active))
	for _, p := range active {
		blocks = append(blocks, fmt.Sprintf("[%s]: %s", p.Name, p.Content))
	}
	return base + "\n\nAdditional context:\n" + strings.Join(blocks, "\n"), nil
}

func (a *App) ownedProject(user domain.User, projectID string) (domain.Project, error) {
	project, ok, err := a.store.GetProject(projectID)
	if err != nil {
		return domain.Project{}, fmt.Errorf("load project: %w", err)
	}
	if !ok || project.OwnerID != user.ID {
		return domain.Project{}, ErrProjectNotFound
	}
	return project, nil
}

func (a *App) ownedPrompt(user domain.User, promptID string) (domain.Prompt, error) {
	prompt, ok, err := a.store.GetPrompt(promptID)
	if err != nil {
		return domain.Prompt{}, fmt.Errorf("load prompt: %w", err)
	}
	if !ok {
		return domain.Prompt{}, ErrPromptNotFound
	}
	if _, err := a.ownedProject(user, prompt.ProjectID); err != nil {
		return domain.Prompt{}, ErrPromptNotFound
	}
	return prompt, nil
}

func (a *App) ownedSession(user domain.User, sessionID string) (domain.Session, error) {
	session, ok, err := a.store.GetSession(sessionID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return domain.Session{}, ErrSessionNotFound
	}
	if _, err := a.ownedProject(user, session.ProjectID); err != nil {
		return domain.Session{}, ErrSessionNotFound
	}
	return session, nil
}
