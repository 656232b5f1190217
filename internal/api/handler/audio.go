package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/storycast/storycast/internal/api/middleware"
	"github.com/storycast/storycast/internal/api/response"
	"github.com/storycast/storycast/internal/generate"
	"github.com/storycast/storycast/internal/store"
	"github.com/storycast/storycast/internal/voice"
	"github.com/storycast/storycast/pkg/models"
)

// AudioStore defines the store operations the single-item audio handler
// depends on.
type AudioStore interface {
	GetProject(ctx context.Context, id uuid.UUID, accountID uuid.UUID) (*models.Project, error)
	GetScene(ctx context.Context, id uuid.UUID) (*models.Scene, error)
	GetUtterance(ctx context.Context, id uuid.UUID) (*models.Utterance, error)
	LatestAudioStatus(ctx context.Context, utteranceID uuid.UUID) (string, error)
	GetAudioItem(ctx context.Context, id uuid.UUID) (*models.AudioItem, error)
	CreateUsageEvent(ctx context.Context, event *models.UsageEvent) error
}

// ItemGenerator runs the synthesize/upload/activate pipeline for one
// utterance.
type ItemGenerator interface {
	Generate(ctx context.Context, item generate.Item) generate.Outcome
}

// NewGenerateUtteranceHandler returns an http.HandlerFunc for
// POST /api/v1/utterances/{utteranceID}/audio. Generation is synchronous:
// the response carries the finished audio item or the failure message. An
// utterance whose latest audio is already completed is skipped unless the
// request sets force.
func NewGenerateUtteranceHandler(s AudioStore, gen ItemGenerator, resolver *voice.Resolver) http.HandlerFunc {
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
			Force bool `json:"force"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
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
		scene, err := s.GetScene(r.Context(), utt.SceneID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "UTTERANCE_NOT_FOUND", "Utterance not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load utterance", nil)
			return
		}
		project, err := s.GetProject(r.Context(), scene.ProjectID, accountID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "UTTERANCE_NOT_FOUND", "Utterance not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load utterance", nil)
			return
		}

		if utt.Text == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "utterance has no text to synthesize", nil)
			return
		}

		if !req.Force {
			status, serr := s.LatestAudioStatus(r.Context(), utteranceID)
			if serr == nil && generate.ShouldSkip(status, false) {
				response.JSON(w, skippedResponse{
					UtteranceID: utt.ID,
					Skipped:     true,
					AudioItemID: utt.LatestAudioID,
				})
				return
			}
		}

		resolution := resolver.Resolve(r.Context(), *utt, scene.ProjectID, project.Settings)
		outcome := gen.Generate(r.Context(), generate.Item{
			Utterance:  *utt,
			ProjectID:  scene.ProjectID,
			Resolution: resolution,
		})

		recordSingleUsage(r.Context(), s, accountID, scene.ProjectID, resolution, outcome)

		if !outcome.Success {
			response.Error(w, http.StatusBadGateway, "GENERATION_FAILED", "Audio generation failed",
				map[string]string{"message": outcome.ErrorMessage})
			return
		}

		item, err := s.GetAudioItem(r.Context(), outcome.AudioItemID)
		if err != nil {
			response.Created(w, map[string]any{"id": outcome.AudioItemID})
			return
		}
		response.Created(w, item)
	}
}

func recordSingleUsage(ctx context.Context, s AudioStore, accountID, projectID uuid.UUID, res voice.Resolution, outcome generate.Outcome) {
	event := &models.UsageEvent{
		ID:        uuid.New(),
		AccountID: accountID,
		ProjectID: projectID,
		Kind:      models.UsageKindSingleAudio,
		Provider:  res.Provider,
		VoiceID:   res.VoiceID,
		ItemCount: 1,
		CreatedAt: time.Now().UTC(),
	}
	if outcome.Success {
		event.SuccessCount = 1
	} else {
		event.FailedCount = 1
	}
	if err := s.CreateUsageEvent(ctx, event); err != nil {
		slog.Warn("recording usage event failed", "error", err, "project_id", projectID)
	}
}

type skippedResponse struct {
	UtteranceID uuid.UUID  `json:"utterance_id"`
	Skipped     bool       `json:"skipped"`
	AudioItemID *uuid.UUID `json:"audio_item_id,omitempty"`
}
