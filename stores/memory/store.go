package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"codesync-backend/core"

	"github.com/sirupsen/logrus"
)

// memStore implements both ProjectStore and SessionStore in memory. The
// default backend; nothing survives a restart.
type memStore struct {
	mu       sync.RWMutex
	projects map[string]*core.Project
	sessions []*core.Session
}

// NewStore creates a new in-memory store.
func NewStore() *memStore {
	return &memStore{
		projects: make(map[string]*core.Project),
	}
}

func cloneProject(p *core.Project) *core.Project {
	clone := *p
	if p.Files != nil {
		clone.Files = make([]core.ProjectFile, len(p.Files))
		copy(clone.Files, p.Files)
	}
	return &clone
}

func (s *memStore) FindID(ctx context.Context, projectID string) (*core.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	project, ok := s.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", projectID, core.ErrProjectNotFound)
	}
	return cloneProject(project), nil
}

func (s *memStore) Create(ctx context.Context, project *core.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.projects[project.ProjectID]; exists {
		return fmt.Errorf("project %s already exists", project.ProjectID)
	}
	now := time.Now()
	project.CreatedAt = now
	project.LastModified = now
	s.projects[project.ProjectID] = cloneProject(project)

	logrus.WithField("project_id", project.ProjectID).Info("Project created")
	return nil
}

func (s *memStore) Save(ctx context.Context, project *core.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.projects[project.ProjectID]
	if !ok {
		return fmt.Errorf("project %s: %w", project.ProjectID, core.ErrProjectNotFound)
	}
	project.CreatedAt = existing.CreatedAt
	project.LastModified = time.Now()
	s.projects[project.ProjectID] = cloneProject(project)
	return nil
}

func (s *memStore) ListRecent(ctx context.Context, limit int) ([]*core.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recent := make([]*core.Project, 0, len(s.projects))
	for _, p := range s.projects {
		if p.IsSaved {
			recent = append(recent, cloneProject(p))
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

func (s *memStore) Delete(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[projectID]; !ok {
		return fmt.Errorf("project %s: %w", projectID, core.ErrProjectNotFound)
	}
	delete(s.projects, projectID)
	return nil
}

func (s *memStore) DeleteDummy(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, p := range s.projects {
		for _, name := range core.DummyProjectNames {
			if p.ProjectName == name {
				delete(s.projects, id)
				deleted++
				break
			}
		}
	}
	return deleted, nil
}

func (s *memStore) DeleteUnsaved(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, p := range s.projects {
		if !p.IsSaved {
			delete(s.projects, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *memStore) UpdateContent(ctx context.Context, projectID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, ok := s.projects[projectID]
	if !ok {
		return fmt.Errorf("project %s: %w", projectID, core.ErrProjectNotFound)
	}
	project.Content = content
	project.LastModified = time.Now()
	return nil
}

func (s *memStore) UpdateLanguage(ctx context.Context, projectID, language string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, ok := s.projects[projectID]
	if !ok {
		return fmt.Errorf("project %s: %w", projectID, core.ErrProjectNotFound)
	}
	project.Language = language
	project.LastModified = time.Now()
	return nil
}

func (s *memStore) IncrementActiveUsers(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, ok := s.projects[projectID]
	if !ok {
		return fmt.Errorf("project %s: %w", projectID, core.ErrProjectNotFound)
	}
	project.ActiveUsers++
	return nil
}

func (s *memStore) DecrementActiveUsers(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, ok := s.projects[projectID]
	if !ok {
		return fmt.Errorf("project %s: %w", projectID, core.ErrProjectNotFound)
	}
	if project.ActiveUsers > 0 {
		project.ActiveUsers--
	}
	return nil
}

// SessionStore implementation

func (s *memStore) CreateSession(ctx context.Context, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *session
	s.sessions = append(s.sessions, &clone)
	return nil
}

func (s *memStore) MarkLeft(ctx context.Context, projectID, userID string, totalEdits int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Most recent open session wins; closed sessions stay closed.
	for i := len(s.sessions) - 1; i >= 0; i-- {
		session := s.sessions[i]
		if session.ProjectID == projectID && session.UserID == userID && session.LeftAt == nil {
			now := time.Now()
			session.LeftAt = &now
			session.TotalEdits = totalEdits
			return nil
		}
	}
	return nil
}
