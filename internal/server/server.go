package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"agentdesk/internal/app"
	"agentdesk/internal/util"
	"agentdesk/pkg/domain"
	"agentdesk/pkg/store"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	MaxUploadBytes int64
}

// Server exposes the HTTP API.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		maxUploadBytes: cfg.MaxUploadBytes,
	}
	s.routes()
	return s
}

// Router returns the configured handler wrapped in the standard middleware chain.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/auth/register", s.handleRegister)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)
	s.mux.Handle("/api/auth/me", s.authenticated(s.handleMe))

	// projects and subresources
	s.mux.Handle("/api/projects", s.authenticated(s.handleProjects))
	s.mux.Handle("/api/projects/", s.authenticated(s.handleProjectSub))

	// flat resources addressed by their own id
	s.mux.Handle("/api/prompts/", s.authenticated(s.handlePromptByID))
	s.mux.Handle("/api/files/", s.authenticated(s.handleFileByID))
	s.mux.Handle("/api/sessions/", s.authenticated(s.handleSessionSub))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, err := s.app.UserFromToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

// auth handlers
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req registerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.Register(req.Email, req.Password, req.Name)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.app.Logout(token); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// project handlers
func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		var req projectRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		project, err := s.app.CreateProject(user, req.Name, req.Description, req.SystemPrompt)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, project)
	case http.MethodGet:
		projects, err := s.app.ListProjects(user)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse{Items: projects, Count: len(projects)})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleProjectSub(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/api/projects/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if len(parts) == 2 {
		sub, rest, _ := strings.Cut(parts[1], "/")
		switch {
		case sub == "prompts" && rest == "":
			s.handleProjectPrompts(w, r, user, id)
		case sub == "files" && rest == "":
			s.handleProjectFiles(w, r, user, id)
		case sub == "sessions" && rest == "":
			s.handleProjectSessions(w, r, user, id)
		case sub == "sessions":
			s.handleProjectSessionByID(w, r, user, id, rest)
		case sub == "chat" && rest == "":
			s.handleProjectChat(w, r, user, id)
		default:
			writeError(w, http.StatusNotFound, "not found")
		}
		return
	}
	s.handleProjectByID(w, r, user, id)
}

func (s *Server) handleProjectByID(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	switch r.Method {
	case http.MethodGet:
		project, err := s.app.GetProject(user, id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, project)
	case http.MethodPut, http.MethodPatch:
		var req projectPatchRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		project, err := s.app.UpdateProject(user, id, req.toUpdate())
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, project)
	case http.MethodDelete:
		if err := s.app.DeleteProject(r.Context(), user, id); err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

// prompt handlers
func (s *Server) handleProjectPrompts(w http.ResponseWriter, r *http.Request, user domain.User, projectID string) {
	switch r.Method {
	case http.MethodPost:
		var req promptRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		prompt, err := s.app.CreatePrompt(user, projectID, req.Name, req.Content)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, prompt)
	case http.MethodGet:
		prompts, err := s.app.ListPrompts(user, projectID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse{Items: prompts, Count: len(prompts)})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handlePromptByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := strings.TrimPrefix(r.URL.Path, "/api/prompts/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodPut, http.MethodPatch:
		var req promptPatchRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		prompt, err := s.app.UpdatePrompt(user, id, req.toUpdate())
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, prompt)
	case http.MethodDelete:
		if err := s.app.DeletePrompt(user, id); err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

// file handlers
func (s *Server) handleProjectFiles(w http.ResponseWriter, r *http.Request, user domain.User, projectID string) {
	switch r.Method {
	case http.MethodPost:
		if s.maxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form data")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "file is required (field: file)")
			return
		}
		defer file.Close()
		record, err := s.app.UploadFile(r.Context(), user, projectID, header.Filename, file)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, record)
	case http.MethodGet:
		files, err := s.app.ListFiles(user, projectID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse{Items: files, Count: len(files)})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleFileByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := strings.TrimPrefix(r.URL.Path, "/api/files/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.app.DeleteFile(r.Context(), user, id); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// session handlers
func (s *Server) handleProjectSessions(w http.ResponseWriter, r *http.Request, user domain.User, projectID string) {
	switch r.Method {
	case http.MethodPost:
		session, err := s.app.CreateSession(user, projectID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, session)
	case http.MethodGet:
		sessions, err := s.app.ListSessions(user, projectID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse{Items: sessions, Count: len(sessions)})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleProjectSessionByID(w http.ResponseWriter, r *http.Request, user domain.User, projectID, sessionID string) {
	if strings.Contains(sessionID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	session, err := s.app.GetSession(user, sessionID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if session.ProjectID != projectID {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		messages, err := s.app.ListMessages(user, session.ID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, transcriptResponse{Messages: messages})
	case http.MethodDelete:
		if err := s.app.DeleteSession(user, session.ID); err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSessionSub(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if len(parts) == 2 {
		if parts[1] != "messages" {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		messages, err := s.app.ListMessages(user, id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse{Items: messages, Count: len(messages)})
		return
	}
	switch r.Method {
	case http.MethodGet:
		session, err := s.app.GetSession(user, id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	case http.MethodDelete:
		if err := s.app.DeleteSession(user, id); err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

// chat handler
func (s *Server) handleProjectChat(w http.ResponseWriter, r *http.Request, user domain.User, projectID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reply, err := s.app.Chat(r.Context(), user, projectID, req.session(), req.content())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// request/response types

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type projectRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	SystemPrompt string `json:"systemPrompt"`
}

type projectPatchRequest struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	SystemPrompt *string `json:"systemPrompt"`
}

func (p projectPatchRequest) toUpdate() store.ProjectUpdate {
	return store.ProjectUpdate{
		Name:         p.Name,
		Description:  p.Description,
		SystemPrompt: p.SystemPrompt,
	}
}

type promptRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type promptPatchRequest struct {
	Name     *string `json:"name"`
	Content  *string `json:"content"`
	IsActive *bool   `json:"isActive"`
}

func (p promptPatchRequest) toUpdate() store.PromptUpdate {
	return store.PromptUpdate{
		Name:     p.Name,
		Content:  p.Content,
		IsActive: p.IsActive,
	}
}

// chatRequest accepts the message text and session id under either key;
// UI builds have sent both spellings over time.
type chatRequest struct {
	SessionID      string `json:"sessionId"`
	SessionIDSnake string `json:"session_id"`
	Message        string `json:"message"`
	Content        string `json:"content"`
}

func (c chatRequest) session() string {
	if c.SessionID != "" {
		return c.SessionID
	}
	return c.SessionIDSnake
}

func (c chatRequest) content() string {
	if c.Message != "" {
		return c.Message
	}
	return c.Content
}

type listResponse struct {
	Items any `json:"items"`
	Count int `json:"count"`
}

type transcriptResponse struct {
	Messages []domain.Message `json:"messages"`
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		slog.Warn("missing bearer prefix", "path", r.URL.Path)
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		slog.Warn("empty bearer token", "path", r.URL.Path)
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeAppError(w http.ResponseWriter, err error) {
	status := statusFromError(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, app.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, app.ErrProjectNotFound),
		errors.Is(err, app.ErrPromptNotFound),
		errors.Is(err, app.ErrSessionNotFound),
		errors.Is(err, app.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
