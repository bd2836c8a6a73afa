package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"codesync-backend/core"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db *sql.DB
}

// NewStore creates a new SQLite-based store.
func NewStore(dataSourceName string) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}

	projectTableStmt := `
	CREATE TABLE IF NOT EXISTS projects (
		project_id TEXT PRIMARY KEY,
		project_name TEXT,
		owner_id TEXT,
		content TEXT,
		files TEXT,
		language TEXT,
		version INTEGER,
		active_users INTEGER,
		is_saved INTEGER,
		created_at DATETIME,
		last_modified DATETIME
	);`
	if _, err = db.Exec(projectTableStmt); err != nil {
		log.Fatalf("failed to create projects table: %v", err)
	}

	sessionTableStmt := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		user_name TEXT,
		user_color TEXT,
		joined_at DATETIME,
		left_at DATETIME,
		total_edits INTEGER
	);`
	if _, err = db.Exec(sessionTableStmt); err != nil {
		log.Fatalf("failed to create sessions table: %v", err)
	}

	return &sqliteStore{db}
}

func marshalFiles(files []core.ProjectFile) (string, error) {
	if files == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(files)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func unmarshalFiles(raw string) ([]core.ProjectFile, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var files []core.ProjectFile
	if err := json.Unmarshal([]byte(raw), &files); err != nil {
		return nil, err
	}
	return files, nil
}

// ProjectStore implementation

func (s *sqliteStore) FindID(ctx context.Context, projectID string) (*core.Project, error) {
	var (
		project core.Project
		files   string
		isSaved int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT project_id, project_name, owner_id, content, files, language,
		       version, active_users, is_saved, created_at, last_modified
		FROM projects WHERE project_id = ?`, projectID).Scan(
		&project.ProjectID, &project.ProjectName, &project.OwnerID,
		&project.Content, &files, &project.Language, &project.Version,
		&project.ActiveUsers, &isSaved, &project.CreatedAt, &project.LastModified,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("project %s: %w", projectID, core.ErrProjectNotFound)
		}
		logrus.WithField("project_id", projectID).WithError(err).Error("Failed to retrieve project")
		return nil, err
	}
	project.IsSaved = isSaved != 0
	if project.Files, err = unmarshalFiles(files); err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *sqliteStore) Create(ctx context.Context, project *core.Project) error {
	files, err := marshalFiles(project.Files)
	if err != nil {
		return err
	}
	now := time.Now()
	project.CreatedAt = now
	project.LastModified = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (project_id, project_name, owner_id, content, files,
		                      language, version, active_users, is_saved, created_at, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		project.ProjectID, project.ProjectName, project.OwnerID, project.Content,
		files, project.Language, project.Version, project.ActiveUsers,
		boolToInt(project.IsSaved), project.CreatedAt, project.LastModified)
	if err != nil {
		logrus.WithField("project_id", project.ProjectID).WithError(err).Error("Failed to create project")
		return err
	}
	return nil
}

func (s *sqliteStore) Save(ctx context.Context, project *core.Project) error {
	files, err := marshalFiles(project.Files)
	if err != nil {
		return err
	}
	project.LastModified = time.Now()

	res, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET project_name = ?, owner_id = ?, content = ?, files = ?, language = ?,
		    version = ?, is_saved = ?, last_modified = ?
		WHERE project_id = ?`,
		project.ProjectName, project.OwnerID, project.Content, files,
		project.Language, project.Version, boolToInt(project.IsSaved),
		project.LastModified, project.ProjectID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("project %s: %w", project.ProjectID, core.ErrProjectNotFound)
	}
	return nil
}

func (s *sqliteStore) ListRecent(ctx context.Context, limit int) ([]*core.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, project_name, language, last_modified
		FROM projects WHERE is_saved = 1
		ORDER BY last_modified DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*core.Project
	for rows.Next() {
		var project core.Project
		if err := rows.Scan(&project.ProjectID, &project.ProjectName,
			&project.Language, &project.LastModified); err != nil {
			return nil, err
		}
		project.IsSaved = true
		projects = append(projects, &project)
	}
	return projects, rows.Err()
}

func (s *sqliteStore) Delete(ctx context.Context, projectID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE project_id = ?", projectID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("project %s: %w", projectID, core.ErrProjectNotFound)
	}
	return nil
}

func (s *sqliteStore) DeleteDummy(ctx context.Context) (int, error) {
	placeholders := strings.Repeat("?,", len(core.DummyProjectNames))
	placeholders = strings.TrimSuffix(placeholders, ",")
	args := make([]any, len(core.DummyProjectNames))
	for i, name := range core.DummyProjectNames {
		args[i] = name
	}

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM projects WHERE project_name IN ("+placeholders+")", args...)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

func (s *sqliteStore) DeleteUnsaved(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE is_saved = 0")
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

func (s *sqliteStore) UpdateContent(ctx context.Context, projectID, content string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE projects SET content = ?, last_modified = ? WHERE project_id = ?",
		content, time.Now(), projectID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("project %s: %w", projectID, core.ErrProjectNotFound)
	}
	return nil
}

func (s *sqliteStore) UpdateLanguage(ctx context.Context, projectID, language string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE projects SET language = ?, last_modified = ? WHERE project_id = ?",
		language, time.Now(), projectID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("project %s: %w", projectID, core.ErrProjectNotFound)
	}
	return nil
}

func (s *sqliteStore) IncrementActiveUsers(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE projects SET active_users = active_users + 1 WHERE project_id = ?", projectID)
	return err
}

func (s *sqliteStore) DecrementActiveUsers(ctx context.Context, projectID string) error {
	// Single statement so concurrent decrements cannot push below zero.
	_, err := s.db.ExecContext(ctx,
		"UPDATE projects SET active_users = MAX(active_users - 1, 0) WHERE project_id = ?", projectID)
	return err
}

// SessionStore implementation

func (s *sqliteStore) CreateSession(ctx context.Context, session *core.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, project_id, user_id, user_name,
		                      user_color, joined_at, left_at, total_edits)
		VALUES (?, ?, ?, ?, ?, ?, NULL, ?)`,
		session.SessionID, session.ProjectID, session.UserID, session.UserName,
		session.UserColor, session.JoinedAt, session.TotalEdits)
	if err != nil {
		logrus.WithField("session_id", session.SessionID).WithError(err).Error("Failed to create session")
	}
	return err
}

func (s *sqliteStore) MarkLeft(ctx context.Context, projectID, userID string, totalEdits int) error {
	// Close only the most recent open session; already-closed rows never
	// reopen, so calling this twice is harmless.
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET left_at = ?, total_edits = ?
		WHERE session_id = (
			SELECT session_id FROM sessions
			WHERE project_id = ? AND user_id = ? AND left_at IS NULL
			ORDER BY joined_at DESC LIMIT 1
		)`,
		time.Now(), totalEdits, projectID, userID)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
