package store

import (
	"strings"
	"testing"
	"time"

	"agentdesk/pkg/domain"
)

func TestMemoryStoreAppendMessageKeepsCountersInStep(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()
	if err := s.CreateSession(domain.Session{ID: "sess-1", ProjectID: "proj-1", CreatedAt: now}); err != nil {
		t.Fatalf("create session: %v", err)
	}

	msgs := []domain.Message{
		{ID: "m1", SessionID: "sess-1", Role: domain.RoleUser, Content: "hello", CreatedAt: now},
		{ID: "m2", SessionID: "sess-1", Role: domain.RoleAssistant, Content: "hi there", CreatedAt: now.Add(time.Second)},
		{ID: "m3", SessionID: "sess-1", Role: domain.RoleUser, Content: "how are you", CreatedAt: now.Add(2 * time.Second)},
	}
	for _, msg := range msgs {
		if err := s.AppendMessage(msg); err != nil {
			t.Fatalf("append %s: %v", msg.ID, err)
		}
	}

	sess, ok, err := s.GetSession("sess-1")
	if err != nil || !ok {
		t.Fatalf("get session: ok=%v err=%v", ok, err)
	}
	if sess.MessageCount != 3 {
		t.Fatalf("expected message_count 3, got %d", sess.MessageCount)
	}
	if sess.LastMessage != "how are you" {
		t.Fatalf("expected last user message preview, got %q", sess.LastMessage)
	}

	got, err := s.ListMessages("sess-1")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	for i, msg := range got {
		if msg.ID != msgs[i].ID {
			t.Fatalf("message order broken at %d: got %s want %s", i, msg.ID, msgs[i].ID)
		}
	}
}

func TestMemoryStoreLastMessagePreviewTruncated(t *testing.T) {
	s := NewMemoryStore()
	if err := s.CreateSession(domain.Session{ID: "sess-1", ProjectID: "proj-1", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	long := strings.Repeat("x", 250)
	if err := s.AppendMessage(domain.Message{ID: "m1", SessionID: "sess-1", Role: domain.RoleUser, Content: long, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("append: %v", err)
	}
	sess, _, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(sess.LastMessage) != lastMessagePreviewLimit {
		t.Fatalf("expected %d-char preview, got %d", lastMessagePreviewLimit, len(sess.LastMessage))
	}
}

func TestMemoryStoreAppendToMissingSessionFails(t *testing.T) {
	s := NewMemoryStore()
	err := s.AppendMessage(domain.Message{ID: "m1", SessionID: "missing", Role: domain.RoleUser, Content: "hello"})
	if err == nil {
		t.Fatalf("expected append to missing session to fail")
	}
}

func TestMemoryStoreNewestFirstListings(t *testing.T) {
	s := NewMemoryStore()
	base := time.Now().UTC()
	for i, id := range []string{"p1", "p2", "p3"} {
		if err := s.CreateProject(domain.Project{ID: id, OwnerID: "user-1", Name: id, CreatedAt: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("create project: %v", err)
		}
	}
	projects, err := s.ListProjectsByOwner("user-1")
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if len(projects) != 3 || projects[0].ID != "p3" || projects[2].ID != "p1" {
		t.Fatalf("expected newest-first project listing, got %+v", projects)
	}
}

func TestMemoryStoreActivePromptsCreationOrder(t *testing.T) {
	s := NewMemoryStore()
	base := time.Now().UTC()
	prompts := []domain.Prompt{
		{ID: "pr1", ProjectID: "proj-1", Name: "tone", Content: "Be terse.", IsActive: true, CreatedAt: base},
		{ID: "pr2", ProjectID: "proj-1", Name: "lang", Content: "Reply in French.", IsActive: false, CreatedAt: base.Add(time.Second)},
		{ID: "pr3", ProjectID: "proj-1", Name: "format", Content: "Use bullet points.", IsActive: true, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, p := range prompts {
		if err := s.CreatePrompt(p); err != nil {
			t.Fatalf("create prompt: %v", err)
		}
	}
	active, err := s.ListActivePrompts("proj-1", 10)
	if err != nil {
		t.Fatalf("list active prompts: %v", err)
	}
	if len(active) != 2 || active[0].ID != "pr1" || active[1].ID != "pr3" {
		t.Fatalf("expected active prompts in creation order, got %+v", active)
	}

	on := true
	if err := s.UpdatePrompt("pr2", PromptUpdate{IsActive: &on}); err != nil {
		t.Fatalf("update prompt: %v", err)
	}
	active, err = s.ListActivePrompts("proj-1", 10)
	if err != nil {
		t.Fatalf("list active prompts: %v", err)
	}
	if len(active) != 3 || active[1].ID != "pr2" {
		t.Fatalf("expected re-activated prompt back in creation order, got %+v", active)
	}
}

func TestMemoryStoreDeleteProjectCascades(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()
	if err := s.CreateProject(domain.Project{ID: "proj-1", OwnerID: "user-1", Name: "bot", CreatedAt: now}); err != nil {
		t.Fatalf("create project: %v", err)
	}
	if err := s.CreatePrompt(domain.Prompt{ID: "pr1", ProjectID: "proj-1", Name: "n", Content: "c", IsActive: true, CreatedAt: now}); err != nil {
		t.Fatalf("create prompt: %v", err)
	}
	if err := s.CreateFile(domain.File{ID: "f1", ProjectID: "proj-1", Filename: "doc.txt", ProviderFileID: "file-abc", CreatedAt: now}); err != nil {
		t.Fatalf("create file: %v", err)
	}
	if err := s.CreateSession(domain.Session{ID: "sess-1", ProjectID: "proj-1", CreatedAt: now}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := s.AppendMessage(domain.Message{ID: "m1", SessionID: "sess-1", Role: domain.RoleUser, Content: "hi", CreatedAt: now}); err != nil {
		t.Fatalf("append message: %v", err)
	}

	if err := s.DeleteProject("proj-1"); err != nil {
		t.Fatalf("delete project: %v", err)
	}

	if _, ok, _ := s.GetProject("proj-1"); ok {
		t.Fatalf("project should be gone")
	}
	if _, ok, _ := s.GetPrompt("pr1"); ok {
		t.Fatalf("prompt should be gone")
	}
	if _, ok, _ := s.GetFile("f1"); ok {
		t.Fatalf("file should be gone")
	}
	if _, ok, _ := s.GetSession("sess-1"); ok {
		t.Fatalf("session should be gone")
	}
	if msgs, _ := s.ListMessages("sess-1"); len(msgs) != 0 {
		t.Fatalf("messages should be gone, got %d", len(msgs))
	}
}

func TestMemoryStoreRejectsDuplicateEmail(t *testing.T) {
	s := NewMemoryStore()
	if err := s.CreateUser(domain.User{ID: "u1", Email: "a@example.com"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.CreateUser(domain.User{ID: "u2", Email: "a@example.com"}); err == nil {
		t.Fatalf("expected duplicate email to fail")
	}
}
