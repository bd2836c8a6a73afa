package core

import (
	"context"
	"errors"
	"time"
)

// ErrProjectNotFound is returned by project stores when the requested
// project id has no record. Handlers rely on errors.Is against this
// sentinel to distinguish a missing project from a store failure.
var ErrProjectNotFound = errors.New("project not found")

type (
	// ProjectFile is one node of a project's file tree. Type is either
	// "file" or "folder".
	ProjectFile struct {
		Path     string `json:"path"`
		Name     string `json:"name"`
		Content  string `json:"content"`
		Language string `json:"language"`
		Type     string `json:"type"`
	}

	// Project is the durable record of a shared editing session. Content,
	// Language and ActiveUsers are mutated by the realtime relay; the rest
	// only changes through the REST API.
	Project struct {
		ProjectID    string        `json:"projectId"`
		ProjectName  string        `json:"projectName"`
		OwnerID      string        `json:"ownerId,omitempty"`
		Content      string        `json:"content"`
		Files        []ProjectFile `json:"files,omitempty"`
		Language     string        `json:"language"`
		Version      int           `json:"version"`
		ActiveUsers  int           `json:"activeUsers"`
		IsSaved      bool          `json:"isSaved"`
		CreatedAt    time.Time     `json:"createdAt"`
		LastModified time.Time     `json:"lastModified"`
	}

	// ProjectStore defines the persistence layer for projects.
	//
	// UpdateContent, UpdateLanguage and the two counter operations exist
	// separately from Save because the relay mutates single fields of a
	// record that other connections may be writing concurrently; each must
	// be a single store-side operation. DecrementActiveUsers floors the
	// counter at zero.
	ProjectStore interface {
		FindID(ctx context.Context, projectID string) (*Project, error)
		Create(ctx context.Context, project *Project) error
		Save(ctx context.Context, project *Project) error
		ListRecent(ctx context.Context, limit int) ([]*Project, error)
		Delete(ctx context.Context, projectID string) error

		// DeleteDummy removes projects still carrying a placeholder name,
		// DeleteUnsaved removes projects never explicitly saved. Both
		// return the number of deleted records.
		DeleteDummy(ctx context.Context) (int, error)
		DeleteUnsaved(ctx context.Context) (int, error)

		UpdateContent(ctx context.Context, projectID, content string) error
		UpdateLanguage(ctx context.Context, projectID, language string) error
		IncrementActiveUsers(ctx context.Context, projectID string) error
		DecrementActiveUsers(ctx context.Context, projectID string) error
	}
)

// DummyProjectNames are the placeholder names DeleteDummy matches.
var DummyProjectNames = []string{"Untitled Project", "New Project", "My Project"}
