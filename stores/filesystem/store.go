package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"codesync-backend/core"

	"github.com/sirupsen/logrus"
)

// fsStore keeps projects and sessions as JSON files under basePath. A
// process-wide mutex serializes the read-modify-write cycles the flat files
// force on us.
type fsStore struct {
	basePath string
	mu       sync.Mutex
}

// NewStore creates a new filesystem-based store.
func NewStore(basePath string) *fsStore {
	for _, dir := range []string{
		filepath.Join(basePath, "projects"),
		filepath.Join(basePath, "sessions"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("failed to create storage directory: %v", err)
		}
	}
	return &fsStore{basePath: basePath}
}

func (s *fsStore) projectPath(projectID string) (string, error) {
	if filepath.Base(projectID) != projectID || projectID == "" || strings.HasPrefix(projectID, ".") {
		return "", fmt.Errorf("invalid project id")
	}
	return filepath.Join(s.basePath, "projects", projectID+".json"), nil
}

func (s *fsStore) sessionPath(sessionID string) (string, error) {
	if filepath.Base(sessionID) != sessionID || sessionID == "" || strings.HasPrefix(sessionID, ".") {
		return "", fmt.Errorf("invalid session id")
	}
	return filepath.Join(s.basePath, "sessions", sessionID+".json"), nil
}

func (s *fsStore) readProject(projectID string) (*core.Project, error) {
	path, err := s.projectPath(projectID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("project %s: %w", projectID, core.ErrProjectNotFound)
		}
		return nil, err
	}
	var project core.Project
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *fsStore) writeProject(project *core.Project) error {
	path, err := s.projectPath(project.ProjectID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(project)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ProjectStore implementation

func (s *fsStore) FindID(ctx context.Context, projectID string) (*core.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readProject(projectID)
}

func (s *fsStore) Create(ctx context.Context, project *core.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.readProject(project.ProjectID); err == nil {
		return fmt.Errorf("project %s already exists", project.ProjectID)
	}
	now := time.Now()
	project.CreatedAt = now
	project.LastModified = now
	if err := s.writeProject(project); err != nil {
		logrus.WithField("project_id", project.ProjectID).WithError(err).Error("Failed to create project")
		return err
	}
	return nil
}

func (s *fsStore) Save(ctx context.Context, project *core.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readProject(project.ProjectID)
	if err != nil {
		return err
	}
	project.CreatedAt = existing.CreatedAt
	project.LastModified = time.Now()
	return s.writeProject(project)
}

func (s *fsStore) listProjects() ([]*core.Project, error) {
	dir := filepath.Join(s.basePath, "projects")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	projects := make([]*core.Project, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			logrus.WithError(err).Warnf("Failed to read project file %s, skipping", entry.Name())
			continue
		}
		var project core.Project
		if err := json.Unmarshal(data, &project); err != nil {
			logrus.WithError(err).Warnf("Failed to unmarshal project file %s, skipping", entry.Name())
			continue
		}
		projects = append(projects, &project)
	}
	return projects, nil
}

func (s *fsStore) ListRecent(ctx context.Context, limit int) ([]*core.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.listProjects()
	if err != nil {
		return nil, err
	}
	recent := make([]*core.Project, 0, len(all))
	for _, p := range all {
		if p.IsSaved {
			recent = append(recent, p)
		}
	}
	sort.Slice(recent, func(i, j int) bool {
		return recent[i].LastModified.After(recent[j].LastModified)
	})
	if limit > 0 && len(recent) > limit {
		recent = recent[:limit]
	}
	return recent, nil
}

func (s *fsStore) Delete(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.projectPath(projectID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("project %s: %w", projectID, core.ErrProjectNotFound)
		}
		return err
	}
	return nil
}

func (s *fsStore) deleteWhere(match func(*core.Project) bool) (int, error) {
	all, err := s.listProjects()
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, p := range all {
		if !match(p) {
			continue
		}
		path, err := s.projectPath(p.ProjectID)
		if err != nil {
			continue
		}
		if err := os.Remove(path); err == nil {
			deleted++
		}
	}
	return deleted, nil
}

func (s *fsStore) DeleteDummy(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteWhere(func(p *core.Project) bool {
		for _, name := range core.DummyProjectNames {
			if p.ProjectName == name {
				return true
			}
		}
		return false
	})
}

func (s *fsStore) DeleteUnsaved(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteWhere(func(p *core.Project) bool {
		return !p.IsSaved
	})
}

func (s *fsStore) mutateProject(projectID string, mutate func(*core.Project)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, err := s.readProject(projectID)
	if err != nil {
		return err
	}
	mutate(project)
	project.LastModified = time.Now()
	return s.writeProject(project)
}

func (s *fsStore) UpdateContent(ctx context.Context, projectID, content string) error {
	return s.mutateProject(projectID, func(p *core.Project) {
		p.Content = content
	})
}

func (s *fsStore) UpdateLanguage(ctx context.Context, projectID, language string) error {
	return s.mutateProject(projectID, func(p *core.Project) {
		p.Language = language
	})
}

func (s *fsStore) IncrementActiveUsers(ctx context.Context, projectID string) error {
	return s.mutateProject(projectID, func(p *core.Project) {
		p.ActiveUsers++
	})
}

func (s *fsStore) DecrementActiveUsers(ctx context.Context, projectID string) error {
	return s.mutateProject(projectID, func(p *core.Project) {
		if p.ActiveUsers > 0 {
			p.ActiveUsers--
		}
	})
}

// SessionStore implementation

func (s *fsStore) CreateSession(ctx context.Context, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.sessionPath(session.SessionID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (s *fsStore) MarkLeft(ctx context.Context, projectID, userID string, totalEdits int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.basePath, "sessions")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	// Find the most recent open session for this participant.
	var (
		newest     *core.Session
		newestPath string
	)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var session core.Session
		if err := json.Unmarshal(data, &session); err != nil {
			continue
		}
		if session.ProjectID != projectID || session.UserID != userID || session.LeftAt != nil {
			continue
		}
		if newest == nil || session.JoinedAt.After(newest.JoinedAt) {
			copied := session
			newest = &copied
			newestPath = path
		}
	}
	if newest == nil {
		return nil
	}

	now := time.Now()
	newest.LeftAt = &now
	newest.TotalEdits = totalEdits
	data, err := json.Marshal(newest)
	if err != nil {
		return err
	}
	return os.WriteFile(newestPath, data, 0644)
}
