package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIGenerateChat(t *testing.T) {
	var gotReq oaiChatRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "  Hello back.  "}},
			},
		})
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL+"/v1", "test-key", "gpt-4o-mini")
	reply, err := client.GenerateChat(context.Background(), "You are terse.", []ChatMessage{
		{Role: "user", Content: "Hello"},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if reply != "Hello back." {
		t.Fatalf("expected trimmed reply, got %q", reply)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if gotReq.Model != "gpt-4o-mini" {
		t.Fatalf("expected model in request, got %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Role != "user" {
		t.Fatalf("expected system then user message, got %+v", gotReq.Messages)
	}
	if gotReq.MaxTokens != defaultMaxTokens {
		t.Fatalf("expected max_tokens %d, got %d", defaultMaxTokens, gotReq.MaxTokens)
	}
}

func TestOpenAIGenerateChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "rate limit exceeded", "type": "rate_limit"},
		})
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL+"/v1", "", "gpt-4o-mini")
	_, err := client.GenerateChat(context.Background(), "", []ChatMessage{{Role: "user", Content: "hi"}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Fatalf("expected provider message surfaced, got %v", err)
	}
}

func TestOpenAIGenerateChatRequiresModel(t *testing.T) {
	client := NewOpenAIClient("http://localhost:9999/v1", "", "")
	_, err := client.GenerateChat(context.Background(), "", []ChatMessage{{Role: "user", Content: "hi"}})
	if err == nil {
		t.Fatalf("expected error for missing model")
	}
}

func TestOpenAIUploadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/files" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("purpose"); got != "assistants" {
			t.Errorf("expected purpose assistants, got %q", got)
		}
		filename := ""
		if f, hdr, err := r.FormFile("file"); err != nil {
			t.Errorf("form file: %v", err)
		} else {
			filename = hdr.Filename
			f.Close()
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":       "file-abc123",
			"filename": filename,
			"bytes":    11,
			"purpose":  "assistants",
		})
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL+"/v1", "test-key", "gpt-4o-mini")
	pf, err := client.UploadFile(context.Background(), "notes.txt", "assistants", strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if pf.ID != "file-abc123" || pf.Filename != "notes.txt" || pf.Bytes != 11 {
		t.Fatalf("unexpected provider file %+v", pf)
	}
}

func TestOpenAIDeleteFile(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL+"/v1", "", "gpt-4o-mini")
	if err := client.DeleteFile(context.Background(), "file-abc123"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if gotPath != "DELETE /v1/files/file-abc123" {
		t.Fatalf("unexpected request %q", gotPath)
	}
}
