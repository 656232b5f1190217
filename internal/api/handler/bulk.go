package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/storycast/storycast/internal/api/middleware"
	"github.com/storycast/storycast/internal/api/response"
	"github.com/storycast/storycast/internal/store"
	"github.com/storycast/storycast/pkg/models"
)

const defaultHistoryLimit = 20

// BulkStore defines the store operations the bulk job handlers depend on.
type BulkStore interface {
	GetProject(ctx context.Context, id uuid.UUID, accountID uuid.UUID) (*models.Project, error)
	GetActiveAudioJob(ctx context.Context, projectID uuid.UUID) (*models.AudioJob, error)
	CreateAudioJob(ctx context.Context, job *models.AudioJob) error
	GetLatestAudioJob(ctx context.Context, projectID uuid.UUID) (*models.AudioJob, error)
	ListAudioJobs(ctx context.Context, projectID uuid.UUID, limit int) ([]*models.AudioJob, error)
	CancelActiveJob(ctx context.Context, projectID uuid.UUID) (uuid.UUID, error)
}

// JobDispatcher hands a queued job to the worker pool.
type JobDispatcher interface {
	Enqueue(ctx context.Context, jobID uuid.UUID) error
}

// NewStartBulkHandler returns an http.HandlerFunc for
// POST /api/v1/projects/{projectID}/audio/bulk. The job row is created in
// queued state and handed to the dispatcher; generation itself is
// asynchronous and observed through the status endpoint.
func NewStartBulkHandler(s BulkStore, dispatcher JobDispatcher) http.HandlerFunc {
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
			Mode            string `json:"mode"`
			ForceRegenerate bool   `json:"force_regenerate"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		mode := req.Mode
		if mode == "" {
			mode = models.JobModeMissing
		}
		switch mode {
		case models.JobModeMissing, models.JobModePending, models.JobModeAll:
		default:
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"mode must be one of missing, pending, all", nil)
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

		if active, aerr := s.GetActiveAudioJob(r.Context(), projectID); aerr == nil {
			respondJobConflict(w, active)
			return
		} else if !errors.Is(aerr, store.ErrNotFound) {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to check active jobs", nil)
			return
		}

		now := time.Now().UTC()
		job := &models.AudioJob{
			ID:                uuid.New(),
			ProjectID:         projectID,
			Mode:              mode,
			ForceRegenerate:   req.ForceRegenerate,
			NarrationProvider: project.Settings.NarrationProvider,
			NarrationVoiceID:  project.Settings.NarrationVoiceID,
			Status:            models.JobStatusQueued,
			StartedBy:         "api",
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := s.CreateAudioJob(r.Context(), job); err != nil {
			if errors.Is(err, store.ErrJobConflict) {
				// Lost the insert race to a concurrent start request.
				var active *models.AudioJob
				if a, aerr := s.GetActiveAudioJob(r.Context(), projectID); aerr == nil {
					active = a
				}
				respondJobConflict(w, active)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create job", nil)
			return
		}

		if err := dispatcher.Enqueue(r.Context(), job.ID); err != nil {
			// The queued row would block every future start; flip it to canceled.
			_, _ = s.CancelActiveJob(r.Context(), projectID)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to enqueue job", nil)
			return
		}

		response.Accepted(w, startBulkResponse{
			JobID:           job.ID,
			Status:          job.Status,
			Mode:            job.Mode,
			ForceRegenerate: job.ForceRegenerate,
		})
	}
}

// NewBulkStatusHandler returns an http.HandlerFunc for
// GET /api/v1/projects/{projectID}/audio/bulk/status. It reports the most
// recent job regardless of state.
func NewBulkStatusHandler(s BulkStore) http.HandlerFunc {
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

		job, err := s.GetLatestAudioJob(r.Context(), projectID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NO_JOB", "No bulk job has been started for this project", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load job", nil)
			return
		}

		response.JSON(w, jobView(job))
	}
}

// NewCancelBulkHandler returns an http.HandlerFunc for
// POST /api/v1/projects/{projectID}/audio/bulk/cancel. The flip to canceled
// is observed by the runner at its next batch boundary; items already in
// flight finish first.
func NewCancelBulkHandler(s BulkStore) http.HandlerFunc {
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

		jobID, err := s.CancelActiveJob(r.Context(), projectID)
		if err != nil {
			if errors.Is(err, store.ErrNoActiveJob) {
				response.Error(w, http.StatusNotFound, "NO_ACTIVE_JOB", "No queued or running job to cancel", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to cancel job", nil)
			return
		}

		response.JSON(w, cancelBulkResponse{JobID: jobID, Status: models.JobStatusCanceled})
	}
}

// NewBulkHistoryHandler returns an http.HandlerFunc for
// GET /api/v1/projects/{projectID}/audio/bulk/history. Jobs come back newest
// first; limit defaults to 20 and is clamped to maxLimit.
func NewBulkHistoryHandler(s BulkStore, maxLimit int) http.HandlerFunc {
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

		limit := defaultHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer", nil)
				return
			}
			limit = n
		}
		if maxLimit > 0 && limit > maxLimit {
			limit = maxLimit
		}

		if _, err := s.GetProject(r.Context(), projectID, accountID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "PROJECT_NOT_FOUND", "Project not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load project", nil)
			return
		}

		jobs, err := s.ListAudioJobs(r.Context(), projectID, limit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list jobs", nil)
			return
		}

		views := make([]bulkJobView, 0, len(jobs))
		for _, j := range jobs {
			views = append(views, jobView(j))
		}

		response.Collection(w, views, response.ListMeta{Count: len(views), Limit: limit})
	}
}

func respondJobConflict(w http.ResponseWriter, active *models.AudioJob) {
	var details any
	if active != nil {
		details = map[string]string{
			"job_id": active.ID.String(),
			"status": active.Status,
		}
	}
	response.Error(w, http.StatusConflict, "JOB_CONFLICT",
		"A bulk job is already active for this project", details)
}

// bulkJobView is the wire shape of a job on the status and history
// endpoints.
type bulkJobView struct {
	JobID           uuid.UUID               `json:"job_id"`
	Status          string                  `json:"status"`
	Mode            string                  `json:"mode"`
	ForceRegenerate bool                    `json:"force_regenerate"`
	TotalItems      int                     `json:"total_items"`
	ProcessedItems  int                     `json:"processed_items"`
	SuccessCount    int                     `json:"success_count"`
	FailedCount     int                     `json:"failed_count"`
	SkippedCount    int                     `json:"skipped_count"`
	ProgressPercent int                     `json:"progress_percent"`
	ErrorDetails    []models.JobErrorDetail `json:"error_details,omitempty"`
	LastError       *string                 `json:"last_error,omitempty"`
	StartedBy       string                  `json:"started_by"`
	CreatedAt       time.Time               `json:"created_at"`
	StartedAt       *time.Time              `json:"started_at,omitempty"`
	CompletedAt     *time.Time              `json:"completed_at,omitempty"`
}

func jobView(j *models.AudioJob) bulkJobView {
	return bulkJobView{
		JobID:           j.ID,
		Status:          j.Status,
		Mode:            j.Mode,
		ForceRegenerate: j.ForceRegenerate,
		TotalItems:      j.TotalItems,
		ProcessedItems:  j.ProcessedItems,
		SuccessCount:    j.SuccessCount,
		FailedCount:     j.FailedCount,
		SkippedCount:    j.SkippedCount,
		ProgressPercent: j.ProgressPercent(),
		ErrorDetails:    j.ErrorDetails,
		LastError:       j.LastError,
		StartedBy:       j.StartedBy,
		CreatedAt:       j.CreatedAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
	}
}

type startBulkResponse struct {
	JobID           uuid.UUID `json:"job_id"`
	Status          string    `json:"status"`
	Mode            string    `json:"mode"`
	ForceRegenerate bool      `json:"force_regenerate"`
}

type cancelBulkResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status string    `json:"status"`
}
