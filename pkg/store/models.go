package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"agentdesk/pkg/domain"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string    `gorm:"primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	Name         string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type ProjectModel struct {
	ID           string `gorm:"primaryKey"`
	OwnerID      string `gorm:"not null;index:idx_project_owner_created,priority:1"`
	Name         string `gorm:"not null"`
	Description  string
	SystemPrompt string     `gorm:"type:text;not null"`
	CreatedAt    time.Time  `gorm:"not null;index:idx_project_owner_created,priority:2"`
	UpdatedAt    *time.Time
}

type PromptModel struct {
	ID        string     `gorm:"primaryKey"`
	ProjectID string     `gorm:"not null;index"`
	Name      string     `gorm:"not null"`
	Content   string     `gorm:"type:text;not null"`
	IsActive  bool       `gorm:"not null;default:true"`
	CreatedAt time.Time  `gorm:"not null;index"`
	UpdatedAt *time.Time
}

type FileModel struct {
	ID             string         `gorm:"primaryKey"`
	ProjectID      string         `gorm:"not null;index"`
	Filename       string         `gorm:"not null"`
	SizeBytes      int64          `gorm:"not null"`
	ProviderFileID string         `gorm:"not null"`
	Purpose        string         `gorm:"not null"`
	Metadata       datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"not null"`
}

type SessionModel struct {
	ID           string `gorm:"primaryKey"`
	ProjectID    string `gorm:"not null;index:idx_session_project_created,priority:1"`
	MessageCount int    `gorm:"not null;default:0"`
	LastMessage  string
	CreatedAt    time.Time  `gorm:"not null;index:idx_session_project_created,priority:2"`
	UpdatedAt    *time.Time
}

type MessageModel struct {
	ID        string    `gorm:"primaryKey"`
	SessionID string    `gorm:"not null;index"`
	Role      string    `gorm:"not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

// conversions between GORM models and domain types

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Name:         u.Name,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Name:         m.Name,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func projectToModel(p domain.Project) ProjectModel {
	return ProjectModel{
		ID:           p.ID,
		OwnerID:      p.OwnerID,
		Name:         p.Name,
		Description:  p.Description,
		SystemPrompt: p.SystemPrompt,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func projectFromModel(m ProjectModel) domain.Project {
	return domain.Project{
		ID:           m.ID,
		OwnerID:      m.OwnerID,
		Name:         m.Name,
		Description:  m.Description,
		SystemPrompt: m.SystemPrompt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func promptToModel(p domain.Prompt) PromptModel {
	return PromptModel{
		ID:        p.ID,
		ProjectID: p.ProjectID,
		Name:      p.Name,
		Content:   p.Content,
		IsActive:  p.IsActive,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func promptFromModel(m PromptModel) domain.Prompt {
	return domain.Prompt{
		ID:        m.ID,
		ProjectID: m.ProjectID,
		Name:      m.Name,
		Content:   m.Content,
		IsActive:  m.IsActive,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func fileToModel(f domain.File) (FileModel, error) {
	model := FileModel{
		ID:             f.ID,
		ProjectID:      f.ProjectID,
		Filename:       f.Filename,
		SizeBytes:      f.SizeBytes,
		ProviderFileID: f.ProviderFileID,
		Purpose:        f.Purpose,
		CreatedAt:      f.CreatedAt,
	}
	if len(f.Metadata) > 0 {
		raw, err := json.Marshal(f.Metadata)
		if err != nil {
			return FileModel{}, err
		}
		model.Metadata = datatypes.JSON(raw)
	}
	return model, nil
}

func fileFromModel(m FileModel) domain.File {
	file := domain.File{
		ID:             m.ID,
		ProjectID:      m.ProjectID,
		Filename:       m.Filename,
		SizeBytes:      m.SizeBytes,
		ProviderFileID: m.ProviderFileID,
		Purpose:        m.Purpose,
		CreatedAt:      m.CreatedAt,
	}
	if len(m.Metadata) > 0 {
		meta := map[string]string{}
		if err := json.Unmarshal(m.Metadata, &meta); err == nil {
			file.Metadata = meta
		}
	}
	return file
}

func sessionToModel(s domain.Session) SessionModel {
	return SessionModel{
		ID:           s.ID,
		ProjectID:    s.ProjectID,
		MessageCount: s.MessageCount,
		LastMessage:  s.LastMessage,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func sessionFromModel(m SessionModel) domain.Session {
	return domain.Session{
		ID:           m.ID,
		ProjectID:    m.ProjectID,
		MessageCount: m.MessageCount,
		LastMessage:  m.LastMessage,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func messageToModel(msg domain.Message) MessageModel {
	return MessageModel{
		ID:        msg.ID,
		SessionID: msg.SessionID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	return domain.Message{
		ID:        m.ID,
		SessionID: m.SessionID,
		Role:      domain.MessageRole(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}
