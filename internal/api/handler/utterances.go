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

// UtteranceStore defines the store operations the utterance handlers depend on.
type UtteranceStore interface {
	GetProject(ctx context.Context, id uuid.UUID, accountID uuid.UUID) (*models.Project, error)
	GetScene(ctx context.Context, id uuid.UUID) (*models.Scene, error)
	ListUtterances(ctx context.Context, sceneID uuid.UUID) ([]*models.Utterance, error)
	CreateUtterances(ctx context.Context, utterances []*models.Utterance) error
	GetUtterance(ctx context.Context, id uuid.UUID) (*models.Utterance, error)
	UpdateUtteranceText(ctx context.Context, id uuid.UUID, text string) error
}

// NewListUtterancesHandler returns an http.HandlerFunc for
// GET /api/v1/scenes/{sceneID}/utterances. A scene that still carries only
// legacy script text gets its utterances derived and persisted on first list.
func NewListUtterancesHandler(s UtteranceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := mw.GetAccountID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing account", nil)
			return
		}

		sceneID, err := uuid.Parse(chi.URLParam(r, "sceneID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "sceneID must be a valid UUID", nil)
			return
		}

		scene, err := s.GetScene(r.Context(), sceneID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "SCENE_NOT_FOUND", "Scene not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load scene", nil)
			return
		}
		if _, err := s.GetProject(r.Context(), scene.ProjectID, accountID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "SCENE_NOT_FOUND", "Scene not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load scene", nil)
			return
		}

		utterances, err := s.ListUtterances(r.Context(), sceneID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list utterances", nil)
			return
		}

		if len(utterances) == 0 && strings.TrimSpace(scene.Script) != "" {
			utterances = deriveUtterances(scene, time.Now().UTC())
			if len(utterances) > 0 {
				if err := s.CreateUtterances(r.Context(), utterances); err != nil {
					response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to derive utterances", nil)
					return
				}
			}
		}
		if utterances == nil {
			utterances = []*models.Utterance{}
		}

		response.Collection(w, utterances, response.ListMeta{Count: len(utterances)})
	}
}

// NewUpdateUtteranceHandler returns an http.HandlerFunc for
// PATCH /api/v1/utterances/{utteranceID}.
func NewUpdateUtteranceHandler(s UtteranceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := mw.GetAccountID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing account", nil)
			return
		}

		utteranceID, err := uuid.Parse(chi.URLParam(r, "utteranceID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "utteranceID must be a valid UUID", nil)
			return
		}

		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "text is required", nil)
			return
		}

		utt, err := s.GetUtterance(r.Context(), utteranceID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "UTTERANCE_NOT_FOUND", "Utterance not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load utterance", nil)
			return
		}
		if err := scopeUtterance(r.Context(), s, utt, accountID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "UTTERANCE_NOT_FOUND", "Utterance not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load utterance", nil)
			return
		}

		if err := s.UpdateUtteranceText(r.Context(), utteranceID, req.Text); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update utterance", nil)
			return
		}

		utt.Text = req.Text
		response.JSON(w, utt)
	}
}

// scopeUtterance walks utterance -> scene -> project to confirm the caller's
// account owns the utterance. Returns store.ErrNotFound when it does not.
func scopeUtterance(ctx context.Context, s UtteranceStore, utt *models.Utterance, accountID uuid.UUID) error {
	scene, err := s.GetScene(ctx, utt.SceneID)
	if err != nil {
		return err
	}
	_, err = s.GetProject(ctx, scene.ProjectID, accountID)
	return err
}

// deriveUtterances splits legacy script text into utterances, one per
// non-blank line. Lines in the screenplay form "NAME: text" (NAME all caps)
// become dialogue for the lowercased character key; everything else is
// narration.
func deriveUtterances(scene *models.Scene, now time.Time) []*models.Utterance {
	var out []*models.Utterance
	for _, line := range strings.Split(scene.Script, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		role := models.RoleNarration
		characterKey := ""
		text := line
		if name, rest, ok := splitSpeaker(line); ok {
			role = models.RoleDialogue
			characterKey = strings.ToLower(name)
			text = rest
		}

		out = append(out, &models.Utterance{
			ID:           uuid.New(),
			SceneID:      scene.ID,
			Position:     len(out),
			Role:         role,
			CharacterKey: characterKey,
			Text:         text,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return out
}

// splitSpeaker matches the "NAME: text" dialogue convention. NAME must be
// 1-32 characters of A-Z, 0-9 or underscore, starting with a letter, so
// ordinary prose like "Warning: high tide" stays narration.
func splitSpeaker(line string) (name, text string, ok bool) {
	name, text, found := strings.Cut(line, ":")
	if !found {
		return "", "", false
	}
	if len(name) == 0 || len(name) > 32 {
		return "", "", false
	}
	if name[0] < 'A' || name[0] > 'Z' {
		return "", "", false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '_' {
			return "", "", false
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", "", false
	}
	return name, text, true
}
