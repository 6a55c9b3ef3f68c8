package app

import "errors"

var (
	// ErrInvalidInput tags request validation failures so the HTTP layer can
	// answer 400 instead of treating them as internal faults.
	ErrInvalidInput = errors.New("invalid request")
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrProjectNotFound    = errors.New("project not found")
	ErrPromptNotFound     = errors.New("prompt not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrFileNotFound       = errors.New("file not found")
	// ErrUpstream indicates the AI provider rejected or failed a request.
	ErrUpstream = errors.New("upstream provider error")
)
