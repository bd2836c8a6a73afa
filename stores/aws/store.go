package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"sort"
	"time"

	"codesync-backend/core"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	projectPrefix = "projects/"
	sessionPrefix = "sessions/"
)

type s3Store struct {
	s3Client *s3.Client
	bucket   string
}

// NewStore creates a new S3-based store.
func NewStore(bucketName string) *s3Store {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	return &s3Store{
		s3Client: s3.NewFromConfig(cfg),
		bucket:   bucketName,
	}
}

func projectKey(projectID string) (string, error) {
	// Project ids become object keys; they must be plain names.
	if path.Base(projectID) != projectID || projectID == "" || projectID == "." || projectID == ".." {
		return "", fmt.Errorf("invalid project id: must be a plain name")
	}
	return projectPrefix + projectID + ".json", nil
}

func sessionKey(sessionID string) (string, error) {
	if path.Base(sessionID) != sessionID || sessionID == "" || sessionID == "." || sessionID == ".." {
		return "", fmt.Errorf("invalid session id: must be a plain name")
	}
	return sessionPrefix + sessionID + ".json", nil
}

func (s *s3Store) getJSON(ctx context.Context, key string, out any) error {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read object %s: %v", key, err)
	}
	return json.Unmarshal(data, out)
}

func (s *s3Store) putJSON(ctx context.Context, key string, in any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}

func isNoSuchKey(err error) bool {
	var nsk *s3types.NoSuchKey
	return errors.As(err, &nsk)
}

// ProjectStore implementation

func (s *s3Store) FindID(ctx context.Context, projectID string) (*core.Project, error) {
	key, err := projectKey(projectID)
	if err != nil {
		return nil, err
	}
	var project core.Project
	if err := s.getJSON(ctx, key, &project); err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("project %s: %w", projectID, core.ErrProjectNotFound)
		}
		return nil, fmt.Errorf("failed to get project %s: %v", projectID, err)
	}
	return &project, nil
}

func (s *s3Store) Create(ctx context.Context, project *core.Project) error {
	key, err := projectKey(project.ProjectID)
	if err != nil {
		return err
	}
	now := time.Now()
	project.CreatedAt = now
	project.LastModified = now
	return s.putJSON(ctx, key, project)
}

func (s *s3Store) Save(ctx context.Context, project *core.Project) error {
	existing, err := s.FindID(ctx, project.ProjectID)
	if err != nil {
		return err
	}
	project.CreatedAt = existing.CreatedAt
	project.LastModified = time.Now()

	key, err := projectKey(project.ProjectID)
	if err != nil {
		return err
	}
	return s.putJSON(ctx, key, project)
}

func (s *s3Store) listProjects(ctx context.Context) ([]*core.Project, error) {
	output, err := s.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(projectPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %v", err)
	}

	projects := make([]*core.Project, 0, len(output.Contents))
	for _, object := range output.Contents {
		var project core.Project
		if err := s.getJSON(ctx, *object.Key, &project); err != nil {
			log.Printf("warn: failed to read project object %s: %v", *object.Key, err)
			continue
		}
		projects = append(projects, &project)
	}
	return projects, nil
}

func (s *s3Store) ListRecent(ctx context.Context, limit int) ([]*core.Project, error) {
	all, err := s.listProjects(ctx)
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

func (s *s3Store) Delete(ctx context.Context, projectID string) error {
	key, err := projectKey(projectID)
	if err != nil {
		return err
	}
	_, err = s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete project %s: %v", projectID, err)
	}
	return nil
}

func (s *s3Store) deleteWhere(ctx context.Context, match func(*core.Project) bool) (int, error) {
	all, err := s.listProjects(ctx)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, p := range all {
		if !match(p) {
			continue
		}
		if err := s.Delete(ctx, p.ProjectID); err != nil {
			log.Printf("warn: failed to delete project %s: %v", p.ProjectID, err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

func (s *s3Store) DeleteDummy(ctx context.Context) (int, error) {
	return s.deleteWhere(ctx, func(p *core.Project) bool {
		for _, name := range core.DummyProjectNames {
			if p.ProjectName == name {
				return true
			}
		}
		return false
	})
}

func (s *s3Store) DeleteUnsaved(ctx context.Context) (int, error) {
	return s.deleteWhere(ctx, func(p *core.Project) bool {
		return !p.IsSaved
	})
}

// mutateProject is a read-modify-write; S3 offers no atomic update, so
// concurrent mutations of the same project can race. Accepted for the
// counter fields, which are advisory.
func (s *s3Store) mutateProject(ctx context.Context, projectID string, mutate func(*core.Project)) error {
	project, err := s.FindID(ctx, projectID)
	if err != nil {
		return err
	}
	mutate(project)
	project.LastModified = time.Now()

	key, err := projectKey(projectID)
	if err != nil {
		return err
	}
	return s.putJSON(ctx, key, project)
}

func (s *s3Store) UpdateContent(ctx context.Context, projectID, content string) error {
	return s.mutateProject(ctx, projectID, func(p *core.Project) {
		p.Content = content
	})
}

func (s *s3Store) UpdateLanguage(ctx context.Context, projectID, language string) error {
	return s.mutateProject(ctx, projectID, func(p *core.Project) {
		p.Language = language
	})
}

func (s *s3Store) IncrementActiveUsers(ctx context.Context, projectID string) error {
	return s.mutateProject(ctx, projectID, func(p *core.Project) {
		p.ActiveUsers++
	})
}

func (s *s3Store) DecrementActiveUsers(ctx context.Context, projectID string) error {
	return s.mutateProject(ctx, projectID, func(p *core.Project) {
		if p.ActiveUsers > 0 {
			p.ActiveUsers--
		}
	})
}

// SessionStore implementation

func (s *s3Store) CreateSession(ctx context.Context, session *core.Session) error {
	key, err := sessionKey(session.SessionID)
	if err != nil {
		return err
	}
	return s.putJSON(ctx, key, session)
}

func (s *s3Store) MarkLeft(ctx context.Context, projectID, userID string, totalEdits int) error {
	output, err := s.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(sessionPrefix),
	})
	if err != nil {
		return fmt.Errorf("failed to list sessions: %v", err)
	}

	var (
		newest    *core.Session
		newestKey string
	)
	for _, object := range output.Contents {
		var session core.Session
		if err := s.getJSON(ctx, *object.Key, &session); err != nil {
			log.Printf("warn: failed to read session object %s: %v", *object.Key, err)
			continue
		}
		if session.ProjectID != projectID || session.UserID != userID || session.LeftAt != nil {
			continue
		}
		if newest == nil || session.JoinedAt.After(newest.JoinedAt) {
			copied := session
			newest = &copied
			newestKey = *object.Key
		}
	}
	if newest == nil {
		return nil
	}

	now := time.Now()
	newest.LeftAt = &now
	newest.TotalEdits = totalEdits
	return s.putJSON(ctx, newestKey, newest)
}
