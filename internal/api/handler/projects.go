package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/storycast/storycast/internal/api/middleware"
	"github.com/storycast/storycast/internal/api/response"
	"github.com/storycast/storycast/internal/store"
	"github.com/storycast/storycast/pkg/models"
)

// ProjectStore defines the store operations the project handlers depend on.
type ProjectStore interface {
	CreateProject(ctx context.Context, project *models.Project) error
	GetProject(ctx context.Context, id uuid.UUID, accountID uuid.UUID) (*models.Project, error)
	ListProjects(ctx context.Context, accountID uuid.UUID) ([]*models.Project, error)
	UpdateProjectSettings(ctx context.Context, id uuid.UUID, accountID uuid.UUID, settings models.ProjectSettings) error
}

// NewCreateProjectHandler returns an http.HandlerFunc for POST /api/v1/projects.
func NewCreateProjectHandler(s ProjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := mw.GetAccountID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing account", nil)
			return
		}

		var req struct {
			Title    string `json:"title"`
			Settings struct {
				NarrationProvider string `json:"narration_provider"`
				NarrationVoiceID  string `json:"narration_voice_id"`
			} `json:"settings"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.Title == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "title is required", nil)
			return
		}
		if req.Settings.NarrationProvider != "" && !models.KnownProvider(req.Settings.NarrationProvider) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"narration_provider must be one of google, elevenlabs, fish", nil)
			return
		}

		now := time.Now().UTC()
		project := &models.Project{
			ID:        uuid.New(),
			AccountID: accountID,
			Title:     req.Title,
			Status:    models.ProjectStatusActive,
			Settings: models.ProjectSettings{
				NarrationProvider: req.Settings.NarrationProvider,
				NarrationVoiceID:  req.Settings.NarrationVoiceID,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.CreateProject(r.Context(), project); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create project", nil)
			return
		}

		response.Created(w, project)
	}
}

// NewListProjectsHandler returns an http.HandlerFunc for GET /api/v1/projects.
func NewListProjectsHandler(s ProjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := mw.GetAccountID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing account", nil)
			return
		}

		projects, err := s.ListProjects(r.Context(), accountID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list projects", nil)
			return
		}
		if projects == nil {
			projects = []*models.Project{}
		}

		response.Collection(w, projects, response.ListMeta{Count: len(projects)})
	}
}

// NewGetProjectHandler returns an http.HandlerFunc for GET /api/v1/projects/{projectID}.
func NewGetProjectHandler(s ProjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := mw.GetAccountID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing account", nil)
			return
		}

		projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "projectID must be a valid UUID", nil)
			return
		}

		project, err := s.GetProject(r.Context(), projectID, accountID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "PROJECT_NOT_FOUND", "Project not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load project", nil)
			return
		}

		response.JSON(w, project)
	}
}

// NewUpdateSettingsHandler returns an http.HandlerFunc for
// PATCH /api/v1/projects/{projectID}/settings. Omitted fields keep their
// current value; empty strings clear one.
func NewUpdateSettingsHandler(s ProjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := mw.GetAccountID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing account", nil)
			return
		}

		projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "projectID must be a valid UUID", nil)
			return
		}

		var req struct {
			NarrationProvider *string `json:"narration_provider"`
			NarrationVoiceID  *string `json:"narration_voice_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.NarrationProvider != nil && *req.NarrationProvider != "" && !models.KnownProvider(*req.NarrationProvider) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"narration_provider must be one of google, elevenlabs, fish", nil)
			return
		}

		project, err := s.GetProject(r.Context(), projectID, accountID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "PROJECT_NOT_FOUND", "Project not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load project", nil)
			return
		}

		settings := project.Settings
		if req.NarrationProvider != nil {
			settings.NarrationProvider = *req.NarrationProvider
		}
		if req.NarrationVoiceID != nil {
			settings.NarrationVoiceID = *req.NarrationVoiceID
		}

		if err := s.UpdateProjectSettings(r.Context(), projectID, accountID, settings); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update settings", nil)
			return
		}

		response.JSON(w, settings)
	}
}
