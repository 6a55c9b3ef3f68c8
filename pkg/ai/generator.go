package ai

import (
	"context"
	"io"
)

// ChatMessage is one turn of a conversation sent to the provider.
type ChatMessage struct {
	Role    string
	Content string
}

// TextGenerator produces an assistant reply from a system prompt and the
// conversation so far. All providers implement this interface.
type TextGenerator interface {
	GenerateChat(ctx context.Context, systemPrompt string, history []ChatMessage) (string, error)
}

// ProviderFile describes a file stored on the provider side.
type ProviderFile struct {
	ID       string
	Filename string
	Bytes    int64
	Purpose  string
}

// FileAPI uploads and deletes files on the provider. File content never
// touches local storage; only provider metadata is kept.
type FileAPI interface {
	UploadFile(ctx context.Context, filename, purpose string, r io.Reader) (ProviderFile, error)
	DeleteFile(ctx context.Context, fileID string) error
}
