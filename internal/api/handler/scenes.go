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

// SceneStore defines the store operations the scene handlers depend on.
type SceneStore interface {
	GetProject(ctx context.Context, id uuid.UUID, accountID uuid.UUID) (*models.Project, error)
	CreateScene(ctx context.Context, scene *models.Scene) error
	ListScenes(ctx context.Context, projectID uuid.UUID) ([]*models.Scene, error)
}

// NewCreateSceneHandler returns an http.HandlerFunc for
// POST /api/v1/projects/{projectID}/scenes.
func NewCreateSceneHandler(s SceneStore) http.HandlerFunc {
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
			Position int    `json:"position"`
			Title    string `json:"title"`
			Script   string `json:"script"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Position < 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "position must not be negative", nil)
			return
		}

		if _, err := s.GetProject(r.Context(), projectID, accountID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "PROJECT_NOT_FOUND", "Project not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load project", nil)
			return
		}

		now := time.Now().UTC()
		scene := &models.Scene{
			ID:        uuid.New(),
			ProjectID: projectID,
			Position:  req.Position,
			Title:     req.Title,
			Script:    req.Script,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.CreateScene(r.Context(), scene); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create scene", nil)
			return
		}

		response.Created(w, scene)
	}
}

// NewListScenesHandler returns an http.HandlerFunc for
// GET /api/v1/projects/{projectID}/scenes.
func NewListScenesHandler(s SceneStore) http.HandlerFunc {
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

		if _, err := s.GetProject(r.Context(), projectID, accountID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "PROJECT_NOT_FOUND", "Project not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load project", nil)
			return
		}

		scenes, err := s.ListScenes(r.Context(), projectID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list scenes", nil)
			return
		}
		if scenes == nil {
			scenes = []*models.Scene{}
		}

		response.Collection(w, scenes, response.ListMeta{Count: len(scenes)})
	}
}
