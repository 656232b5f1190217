package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/storycast/storycast/internal/api/middleware"
	"github.com/storycast/storycast/internal/api/response"
	"github.com/storycast/storycast/internal/store"
	"github.com/storycast/storycast/pkg/models"
)

// CharacterStore defines the store operations the character handlers depend on.
type CharacterStore interface {
	GetProject(ctx context.Context, id uuid.UUID, accountID uuid.UUID) (*models.Project, error)
	UpsertCharacterVoice(ctx context.Context, character *models.Character) (*models.Character, error)
	ListCharacters(ctx context.Context, projectID uuid.UUID) ([]*models.Character, error)
}

// NewPutCharacterVoiceHandler returns an http.HandlerFunc for
// PUT /api/v1/projects/{projectID}/characters/{key}. The call is an upsert;
// an empty voice_preset clears the character's voice.
func NewPutCharacterVoiceHandler(s CharacterStore) http.HandlerFunc {
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
		key := strings.ToLower(chi.URLParam(r, "key"))
		if key == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "character key is required", nil)
			return
		}

		var req struct {
			Name        string `json:"name"`
			VoicePreset string `json:"voice_preset"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if scheme, _, found := strings.Cut(req.VoicePreset, ":"); found && !models.KnownProvider(scheme) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"voice_preset provider prefix must be one of google, elevenlabs, fish", nil)
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

		name := req.Name
		if name == "" {
			name = key
		}
		now := time.Now().UTC()
		character, err := s.UpsertCharacterVoice(r.Context(), &models.Character{
			ID:          uuid.New(),
			ProjectID:   projectID,
			Key:         key,
			Name:        name,
			VoicePreset: req.VoicePreset,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to save character voice", nil)
			return
		}

		response.JSON(w, character)
	}
}

// NewListCharactersHandler returns an http.HandlerFunc for
// GET /api/v1/projects/{projectID}/characters.
func NewListCharactersHandler(s CharacterStore) http.HandlerFunc {
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

		characters, err := s.ListCharacters(r.Context(), projectID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list characters", nil)
			return
		}
		if characters == nil {
			characters = []*models.Character{}
		}

		response.Collection(w, characters, response.ListMeta{Count: len(characters)})
	}
}
