package projects

import (
	"errors"
	"fmt"
	"net/http"

	"codesync-backend/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const recentProjectsLimit = 10

type createRequest struct {
	ProjectName string `json:"projectName"`
	Language    string `json:"language"`
}

type updateRequest struct {
	Content     *string `json:"content"`
	ProjectName *string `json:"projectName"`
}

type fileRequest struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

func renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]any{"success": false, "error": message})
}

// findProject loads a project and writes the 404/500 response itself when
// the lookup fails.
func findProject(store core.ProjectStore, w http.ResponseWriter, r *http.Request) (*core.Project, bool) {
	projectID := chi.URLParam(r, "projectId")
	project, err := store.FindID(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, core.ErrProjectNotFound) {
			renderError(w, r, http.StatusNotFound, "Project not found")
			return nil, false
		}
		logrus.WithField("project_id", projectID).WithError(err).Error("Failed to fetch project")
		renderError(w, r, http.StatusInternalServerError, "Failed to fetch project")
		return nil, false
	}
	return project, true
}

// HandleCreate creates a project and returns its id plus a share URL built
// from shareBaseURL.
func HandleCreate(store core.ProjectStore, shareBaseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := createRequest{ProjectName: "Untitled Project", Language: "javascript"}
		if r.Body != nil {
			_ = render.DecodeJSON(r.Body, &req)
		}
		if req.ProjectName == "" {
			req.ProjectName = "Untitled Project"
		}
		if req.Language == "" {
			req.Language = "javascript"
		}

		project := &core.Project{
			ProjectID:   ulid.Make().String(),
			ProjectName: req.ProjectName,
			Language:    req.Language,
			Version:     1,
		}
		if err := store.Create(r.Context(), project); err != nil {
			logrus.WithError(err).Error("Failed to create project")
			renderError(w, r, http.StatusInternalServerError, "Failed to create project")
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"success":   true,
			"projectId": project.ProjectID,
			"shareUrl":  fmt.Sprintf("%s/p/%s", shareBaseURL, project.ProjectID),
		})
	}
}

func HandleGet(store core.ProjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project, ok := findProject(store, w, r)
		if !ok {
			return
		}

		render.JSON(w, r, map[string]any{
			"success": true,
			"project": map[string]any{
				"projectId":    project.ProjectID,
				"projectName":  project.ProjectName,
				"content":      project.Content,
				"language":     project.Language,
				"activeUsers":  project.ActiveUsers,
				"lastModified": project.LastModified,
			},
		})
	}
}

// HandleUpdate is the explicit save: it bumps the version when content
// changed and marks the project as saved.
func HandleUpdate(store core.ProjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			renderError(w, r, http.StatusBadRequest, "Invalid JSON in request body")
			return
		}

		project, ok := findProject(store, w, r)
		if !ok {
			return
		}

		if req.Content != nil {
			project.Content = *req.Content
			project.Version++
		}
		if req.ProjectName != nil {
			project.ProjectName = *req.ProjectName
		}
		project.IsSaved = true

		if err := store.Save(r.Context(), project); err != nil {
			logrus.WithField("project_id", project.ProjectID).WithError(err).Error("Failed to update project")
			renderError(w, r, http.StatusInternalServerError, "Failed to update project")
			return
		}

		render.JSON(w, r, map[string]any{
			"success": true,
			"message": "Project saved",
			"version": project.Version,
		})
	}
}

func HandleRecent(store core.ProjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recent, err := store.ListRecent(r.Context(), recentProjectsLimit)
		if err != nil {
			logrus.WithError(err).Error("Failed to fetch recent projects")
			renderError(w, r, http.StatusInternalServerError, "Failed to fetch recent projects")
			return
		}

		list := make([]map[string]any, 0, len(recent))
		for _, p := range recent {
			list = append(list, map[string]any{
				"projectId":    p.ProjectID,
				"projectName":  p.ProjectName,
				"language":     p.Language,
				"lastModified": p.LastModified,
			})
		}
		render.JSON(w, r, map[string]any{"success": true, "projects": list})
	}
}

func HandleDelete(store core.ProjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := chi.URLParam(r, "projectId")
		if err := store.Delete(r.Context(), projectID); err != nil {
			if errors.Is(err, core.ErrProjectNotFound) {
				renderError(w, r, http.StatusNotFound, "Project not found")
				return
			}
			logrus.WithField("project_id", projectID).WithError(err).Error("Failed to delete project")
			renderError(w, r, http.StatusInternalServerError, "Failed to delete project")
			return
		}
		render.JSON(w, r, map[string]any{"success": true, "message": "Project deleted successfully"})
	}
}

func HandleCleanupDummy(store core.ProjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deleted, err := store.DeleteDummy(r.Context())
		if err != nil {
			logrus.WithError(err).Error("Failed to clean up dummy projects")
			renderError(w, r, http.StatusInternalServerError, "Failed to clean up dummy projects")
			return
		}
		render.JSON(w, r, map[string]any{
			"success": true,
			"message": fmt.Sprintf("Deleted %d dummy projects", deleted),
		})
	}
}

func HandleCleanupUnsaved(store core.ProjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deleted, err := store.DeleteUnsaved(r.Context())
		if err != nil {
			logrus.WithError(err).Error("Failed to clean up unsaved projects")
			renderError(w, r, http.StatusInternalServerError, "Failed to clean up unsaved projects")
			return
		}
		render.JSON(w, r, map[string]any{
			"success": true,
			"message": fmt.Sprintf("Deleted %d unsaved projects", deleted),
		})
	}
}

// File tree handlers

func HandleCreateFile(store core.ProjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req fileRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			renderError(w, r, http.StatusBadRequest, "Invalid JSON in request body")
			return
		}
		if req.Language == "" {
			req.Language = "javascript"
		}

		project, ok := findProject(store, w, r)
		if !ok {
			return
		}

		file := core.ProjectFile{
			Path:     req.Path,
			Name:     req.Name,
			Content:  req.Content,
			Language: req.Language,
			Type:     "file",
		}
		project.Files = append(project.Files, file)

		if err := store.Save(r.Context(), project); err != nil {
			logrus.WithField("project_id", project.ProjectID).WithError(err).Error("Failed to create file")
			renderError(w, r, http.StatusInternalServerError, "Failed to create file")
			return
		}

		render.JSON(w, r, map[string]any{
			"success": true,
			"file":    file,
			"message": "File created successfully",
		})
	}
}

func HandleCreateFolder(store core.ProjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req fileRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			renderError(w, r, http.StatusBadRequest, "Invalid JSON in request body")
			return
		}

		project, ok := findProject(store, w, r)
		if !ok {
			return
		}

		folder := core.ProjectFile{
			Path: req.Path,
			Name: req.Name,
			Type: "folder",
		}
		project.Files = append(project.Files, folder)

		if err := store.Save(r.Context(), project); err != nil {
			logrus.WithField("project_id", project.ProjectID).WithError(err).Error("Failed to create folder")
			renderError(w, r, http.StatusInternalServerError, "Failed to create folder")
			return
		}

		render.JSON(w, r, map[string]any{
			"success": true,
			"folder":  folder,
			"message": "Folder created successfully",
		})
	}
}

func HandleUpdateFile(store core.ProjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req fileRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			renderError(w, r, http.StatusBadRequest, "Invalid JSON in request body")
			return
		}

		project, ok := findProject(store, w, r)
		if !ok {
			return
		}

		filePath := chi.URLParam(r, "filePath")
		updated := false
		for i := range project.Files {
			if project.Files[i].Path == filePath {
				project.Files[i].Content = req.Content
				if req.Language != "" {
					project.Files[i].Language = req.Language
				}
				updated = true
				break
			}
		}
		if !updated {
			renderError(w, r, http.StatusNotFound, "File not found")
			return
		}

		if err := store.Save(r.Context(), project); err != nil {
			logrus.WithField("project_id", project.ProjectID).WithError(err).Error("Failed to update file")
			renderError(w, r, http.StatusInternalServerError, "Failed to update file")
			return
		}

		render.JSON(w, r, map[string]any{"success": true, "message": "File updated successfully"})
	}
}

func HandleDeleteFile(store core.ProjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project, ok := findProject(store, w, r)
		if !ok {
			return
		}

		filePath := chi.URLParam(r, "filePath")
		kept := project.Files[:0]
		for _, f := range project.Files {
			if f.Path != filePath {
				kept = append(kept, f)
			}
		}
		project.Files = kept

		if err := store.Save(r.Context(), project); err != nil {
			logrus.WithField("project_id", project.ProjectID).WithError(err).Error("Failed to delete file")
			renderError(w, r, http.StatusInternalServerError, "Failed to delete file")
			return
		}

		render.JSON(w, r, map[string]any{"success": true, "message": "File deleted successfully"})
	}
}
