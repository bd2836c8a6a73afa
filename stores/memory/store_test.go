package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"codesync-backend/core"
)

func newProject(id, name string) *core.Project {
	return &core.Project{
		ProjectID:   id,
		ProjectName: name,
		Language:    "javascript",
		Version:     1,
	}
}

func TestCreateAndFindID(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.Create(ctx, newProject("p1", "Demo")); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	project, err := store.FindID(ctx, "p1")
	if err != nil {
		t.Fatalf("FindID() failed: %v", err)
	}
	if project.ProjectName != "Demo" {
		t.Errorf("project name: got %s, want Demo", project.ProjectName)
	}
	if project.CreatedAt.IsZero() || project.LastModified.IsZero() {
		t.Error("timestamps not set on create")
	}
}

func TestFindID_NotFound(t *testing.T) {
	store := NewStore()

	_, err := store.FindID(context.Background(), "missing")
	if !errors.Is(err, core.ErrProjectNotFound) {
		t.Errorf("error: got %v, want ErrProjectNotFound", err)
	}
}

func TestCreate_DuplicateRejected(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.Create(ctx, newProject("p1", "Demo")); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if err := store.Create(ctx, newProject("p1", "Again")); err == nil {
		t.Error("duplicate Create() succeeded")
	}
}

func TestFindID_ReturnsCopy(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.Create(ctx, newProject("p1", "Demo")); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	first, _ := store.FindID(ctx, "p1")
	first.Content = "mutated by caller"

	second, _ := store.FindID(ctx, "p1")
	if second.Content == "mutated by caller" {
		t.Error("FindID() returned shared state")
	}
}

func TestUpdateContentAndLanguage(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.Create(ctx, newProject("p1", "Demo")); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if err := store.UpdateContent(ctx, "p1", "hello"); err != nil {
		t.Fatalf("UpdateContent() failed: %v", err)
	}
	if err := store.UpdateLanguage(ctx, "p1", "python"); err != nil {
		t.Fatalf("UpdateLanguage() failed: %v", err)
	}

	project, _ := store.FindID(ctx, "p1")
	if project.Content != "hello" {
		t.Errorf("content: got %s, want hello", project.Content)
	}
	if project.Language != "python" {
		t.Errorf("language: got %s, want python", project.Language)
	}
}

func TestActiveUsersCounter_FloorsAtZero(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.Create(ctx, newProject("p1", "Demo")); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	store.IncrementActiveUsers(ctx, "p1")
	store.IncrementActiveUsers(ctx, "p1")
	store.DecrementActiveUsers(ctx, "p1")
	store.DecrementActiveUsers(ctx, "p1")
	store.DecrementActiveUsers(ctx, "p1")

	project, _ := store.FindID(ctx, "p1")
	if project.ActiveUsers != 0 {
		t.Errorf("active users after extra decrement: got %d, want 0", project.ActiveUsers)
	}
}

func TestListRecent_SavedOnlyNewestFirst(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for _, id := range []string{"p1", "p2", "p3"} {
		if err := store.Create(ctx, newProject(id, "Project "+id)); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	// Mark p1 and p3 as saved; p2 stays unsaved and must not be listed.
	for _, id := range []string{"p1", "p3"} {
		project, _ := store.FindID(ctx, id)
		project.IsSaved = true
		if err := store.Save(ctx, project); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	recent, err := store.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent() failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("recent count: got %d, want 2", len(recent))
	}
	if recent[0].ProjectID != "p3" || recent[1].ProjectID != "p1" {
		t.Errorf("recent order: got %s, %s, want p3, p1", recent[0].ProjectID, recent[1].ProjectID)
	}
}

func TestDeleteDummyAndUnsaved(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	store.Create(ctx, newProject("p1", "Untitled Project"))
	store.Create(ctx, newProject("p2", "Real Work"))
	store.Create(ctx, newProject("p3", "My Project"))

	deleted, err := store.DeleteDummy(ctx)
	if err != nil {
		t.Fatalf("DeleteDummy() failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("dummy deletions: got %d, want 2", deleted)
	}

	deleted, err = store.DeleteUnsaved(ctx)
	if err != nil {
		t.Fatalf("DeleteUnsaved() failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("unsaved deletions: got %d, want 1", deleted)
	}
}

func TestMarkLeft_StampsOnceOnly(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	session := &core.Session{
		ProjectID: "p1",
		SessionID: "s1",
		UserID:    "u1",
		UserName:  "Alice",
		JoinedAt:  time.Now(),
	}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}

	if err := store.MarkLeft(ctx, "p1", "u1", 7); err != nil {
		t.Fatalf("MarkLeft() failed: %v", err)
	}

	store.mu.RLock()
	stamped := store.sessions[0]
	firstLeftAt := *stamped.LeftAt
	firstEdits := stamped.TotalEdits
	store.mu.RUnlock()

	if firstEdits != 7 {
		t.Errorf("total edits: got %d, want 7", firstEdits)
	}

	// A second call finds no open session and changes nothing.
	time.Sleep(time.Millisecond)
	if err := store.MarkLeft(ctx, "p1", "u1", 99); err != nil {
		t.Fatalf("second MarkLeft() failed: %v", err)
	}

	store.mu.RLock()
	secondLeftAt := *store.sessions[0].LeftAt
	secondEdits := store.sessions[0].TotalEdits
	store.mu.RUnlock()

	if !secondLeftAt.Equal(firstLeftAt) || secondEdits != 7 {
		t.Error("MarkLeft() reopened or restamped a closed session")
	}
}

func TestMarkLeft_ClosesMostRecentOpenSession(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	older := &core.Session{ProjectID: "p1", SessionID: "s1", UserID: "u1", JoinedAt: time.Now().Add(-time.Minute)}
	newer := &core.Session{ProjectID: "p1", SessionID: "s2", UserID: "u1", JoinedAt: time.Now()}
	store.CreateSession(ctx, older)
	store.CreateSession(ctx, newer)

	if err := store.MarkLeft(ctx, "p1", "u1", 1); err != nil {
		t.Fatalf("MarkLeft() failed: %v", err)
	}

	store.mu.RLock()
	defer store.mu.RUnlock()
	if store.sessions[1].LeftAt == nil {
		t.Error("most recent session not closed")
	}
	if store.sessions[0].LeftAt != nil {
		t.Error("older session closed instead of the most recent one")
	}
}
