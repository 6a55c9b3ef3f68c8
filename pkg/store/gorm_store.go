package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"agentdesk/pkg/domain"
)

const migrateLockID int64 = 48220561

// lastMessagePreviewLimit bounds the denormalized session preview.
const lastMessagePreviewLimit = 100

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&UserModel{},
			&ProjectModel{},
			&PromptModel{},
			&FileModel{},
			&SessionModel{},
			&MessageModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'project_models'
					AND constraint_name = 'project_models_owner_id_fkey'
				) THEN
					ALTER TABLE project_models
					ADD CONSTRAINT project_models_owner_id_fkey
					FOREIGN KEY (owner_id) REFERENCES user_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'prompt_models'
					AND constraint_name = 'prompt_models_project_id_fkey'
				) THEN
					ALTER TABLE prompt_models
					ADD CONSTRAINT prompt_models_project_id_fkey
					FOREIGN KEY (project_id) REFERENCES project_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'file_models'
					AND constraint_name = 'file_models_project_id_fkey'
				) THEN
					ALTER TABLE file_models
					ADD CONSTRAINT file_models_project_id_fkey
					FOREIGN KEY (project_id) REFERENCES project_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'session_models'
					AND constraint_name = 'session_models_project_id_fkey'
				) THEN
					ALTER TABLE session_models
					ADD CONSTRAINT session_models_project_id_fkey
					FOREIGN KEY (project_id) REFERENCES project_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'message_models'
					AND constraint_name = 'message_models_session_id_fkey'
				) THEN
					ALTER TABLE message_models
					ADD CONSTRAINT message_models_session_id_fkey
					FOREIGN KEY (session_id) REFERENCES session_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure foreign keys: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateUser inserts a new user; duplicate emails fail on the unique index.
func (s *GormStore) CreateUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// CreateProject stores a new project.
func (s *GormStore) CreateProject(p domain.Project) error {
	model := projectToModel(p)
	return s.db.Create(&model).Error
}

// ListProjectsByOwner returns the owner's projects, newest first.
func (s *GormStore) ListProjectsByOwner(ownerID string) ([]domain.Project, error) {
	var models []ProjectModel
	if err := s.db.Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Project, 0, len(models))
	for _, m := range models {
		res = append(res, projectFromModel(m))
	}
	return res, nil
}

// GetProject retrieves a project.
func (s *GormStore) GetProject(id string) (domain.Project, bool, error) {
	var model ProjectModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Project{}, false, nil
		}
		return domain.Project{}, false, err
	}
	return projectFromModel(model), true, nil
}

// UpdateProject applies a partial update.
func (s *GormStore) UpdateProject(id string, upd ProjectUpdate) error {
	updates := map[string]any{
		"updated_at": time.Now().UTC(),
	}
	if upd.Name != nil {
		updates["name"] = *upd.Name
	}
	if upd.Description != nil {
		updates["description"] = *upd.Description
	}
	if upd.SystemPrompt != nil {
		updates["system_prompt"] = *upd.SystemPrompt
	}
	return s.db.Model(&ProjectModel{}).Where("id = ?", id).Updates(updates).Error
}

// DeleteProject removes the project, its prompts, files, and sessions
// (messages handled by FK cascade).
func (s *GormStore) DeleteProject(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&PromptModel{}, "project_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&FileModel{}, "project_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&SessionModel{}, "project_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&ProjectModel{}, "id = ?", id).Error
	})
}

// CreatePrompt stores a new prompt.
func (s *GormStore) CreatePrompt(p domain.Prompt) error {
	model := promptToModel(p)
	return s.db.Create(&model).Error
}

// ListPromptsByProject returns a project's prompts, newest first.
func (s *GormStore) ListPromptsByProject(projectID string) ([]domain.Prompt, error) {
	var models []PromptModel
	if err := s.db.Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Prompt, 0, len(models))
	for _, m := range models {
		res = append(res, promptFromModel(m))
	}
	return res, nil
}

// ListActivePrompts returns active prompts in creation order.
func (s *GormStore) ListActivePrompts(projectID string, limit int) ([]domain.Prompt, error) {
	tx := s.db.Where("project_id = ? AND is_active = ?", projectID, true).
		Order("created_at ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	var models []PromptModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Prompt, 0, len(models))
	for _, m := range models {
		res = append(res, promptFromModel(m))
	}
	return res, nil
}

// GetPrompt retrieves a prompt.
func (s *GormStore) GetPrompt(id string) (domain.Prompt, bool, error) {
	var model PromptModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Prompt{}, false, nil
		}
		return domain.Prompt{}, false, err
	}
	return promptFromModel(model), true, nil
}

// UpdatePrompt applies a partial update (name, content, is_active).
func (s *GormStore) UpdatePrompt(id string, upd PromptUpdate) error {
	updates := map[string]any{
		"updated_at": time.Now().UTC(),
	}
	if upd.Name != nil {
		updates["name"] = *upd.Name
	}
	if upd.Content != nil {
		updates["content"] = *upd.Content
	}
	if upd.IsActive != nil {
		updates["is_active"] = *upd.IsActive
	}
	return s.db.Model(&PromptModel{}).Where("id = ?", id).Updates(updates).Error
}

// DeletePrompt removes a prompt.
func (s *GormStore) DeletePrompt(id string) error {
	return s.db.Delete(&PromptModel{}, "id = ?", id).Error
}

// CreateFile records provider file metadata.
func (s *GormStore) CreateFile(f domain.File) error {
	model, err := fileToModel(f)
	if err != nil {
		return fmt.Errorf("encode file metadata: %w", err)
	}
	return s.db.Create(&model).Error
}

// ListFilesByProject returns a project's file records, newest first.
func (s *GormStore) ListFilesByProject(projectID string) ([]domain.File, error) {
	var models []FileModel
	if err := s.db.Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.File, 0, len(models))
	for _, m := range models {
		res = append(res, fileFromModel(m))
	}
	return res, nil
}

// GetFile retrieves a file record.
func (s *GormStore) GetFile(id string) (domain.File, bool, error) {
	var model FileModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.File{}, false, nil
		}
		return domain.File{}, false, err
	}
	return fileFromModel(model), true, nil
}

// DeleteFile removes a file record.
func (s *GormStore) DeleteFile(id string) error {
	return s.db.Delete(&FileModel{}, "id = ?", id).Error
}

// CreateSession creates an empty chat session.
func (s *GormStore) CreateSession(sess domain.Session) error {
	model := sessionToModel(sess)
	return s.db.Create(&model).Error
}

// GetSession retrieves a session.
func (s *GormStore) GetSession(id string) (domain.Session, bool, error) {
	var model SessionModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Session{}, false, nil
		}
		return domain.Session{}, false, err
	}
	return sessionFromModel(model), true, nil
}

// ListSessionsByProject returns a project's sessions, newest first.
func (s *GormStore) ListSessionsByProject(projectID string) ([]domain.Session, error) {
	var models []SessionModel
	if err := s.db.Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Session, 0, len(models))
	for _, m := range models {
		res = append(res, sessionFromModel(m))
	}
	return res, nil
}

// DeleteSession removes a session (messages handled by FK cascade).
func (s *GormStore) DeleteSession(id string) error {
	return s.db.Delete(&SessionModel{}, "id = ?", id).Error
}

// AppendMessage records a message and refreshes the session's denormalized
// message_count and last_message atomically with the append.
func (s *GormStore) AppendMessage(msg domain.Message) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var session SessionModel
		if err := tx.First(&session, "id = ?", msg.SessionID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("session %s not found", msg.SessionID)
			}
			return err
		}
		model := messageToModel(msg)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&MessageModel{}).
			Where("session_id = ?", msg.SessionID).
			Count(&count).Error; err != nil {
			return err
		}
		updates := map[string]any{
			"message_count": count,
			"updated_at":    time.Now().UTC(),
		}
		if msg.Role == domain.RoleUser {
			updates["last_message"] = previewOf(msg.Content)
		}
		return tx.Model(&SessionModel{}).Where("id = ?", msg.SessionID).Updates(updates).Error
	})
}

// ListMessages returns a session's messages in conversation order.
func (s *GormStore) ListMessages(sessionID string) ([]domain.Message, error) {
	var models []MessageModel
	if err := s.db.Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Message, 0, len(models))
	for _, m := range models {
		res = append(res, messageFromModel(m))
	}
	return res, nil
}

func previewOf(content string) string {
	runes := []rune(content)
	if len(runes) <= lastMessagePreviewLimit {
		return content
	}
	return string(runes[:lastMessagePreviewLimit])
}
