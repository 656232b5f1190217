package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/storycast/storycast/pkg/models"
)

const audioJobColumns = `id, project_id, mode, force_regenerate, narration_provider, narration_voice_id,
 status, total_items, processed_items, success_count, failed_count, skipped_count,
 error_details, last_error, started_by, started_at, completed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAudioJob(row rowScanner) (*models.AudioJob, error) {
	var j models.AudioJob
	var details []byte
	err := row.Scan(&j.ID, &j.ProjectID, &j.Mode, &j.ForceRegenerate, &j.NarrationProvider,
		&j.NarrationVoiceID, &j.Status, &j.TotalItems, &j.ProcessedItems, &j.SuccessCount,
		&j.FailedCount, &j.SkippedCount, &details, &j.LastError, &j.StartedBy,
		&j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &j.ErrorDetails); err != nil {
			return nil, fmt.Errorf("decode job error details: %w", err)
		}
	}
	return &j, nil
}

// --- Audio Jobs ---

// CreateAudioJob inserts a job in queued state. A partial unique index allows
// at most one queued/running job per project; hitting it returns ErrJobConflict
// so the caller can report the already-active job instead.
func (s *PostgresStore) CreateAudioJob(ctx context.Context, job *models.AudioJob) error {
	details, err := json.Marshal(job.ErrorDetails)
	if err != nil {
		return fmt.Errorf("marshal job error details: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO audio_jobs (id, project_id, mode, force_regenerate, narration_provider, narration_voice_id,
		   status, total_items, processed_items, success_count, failed_count, skipped_count,
		   error_details, started_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		job.ID, job.ProjectID, job.Mode, job.ForceRegenerate, job.NarrationProvider,
		job.NarrationVoiceID, job.Status, job.TotalItems, job.ProcessedItems, job.SuccessCount,
		job.FailedCount, job.SkippedCount, details, job.StartedBy, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrJobConflict
		}
		return fmt.Errorf("create audio job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAudioJob(ctx context.Context, id uuid.UUID) (*models.AudioJob, error) {
	job, err := scanAudioJob(s.pool.QueryRow(ctx,
		`SELECT `+audioJobColumns+` FROM audio_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get audio job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) GetLatestAudioJob(ctx context.Context, projectID uuid.UUID) (*models.AudioJob, error) {
	job, err := scanAudioJob(s.pool.QueryRow(ctx,
		`SELECT `+audioJobColumns+` FROM audio_jobs WHERE project_id = $1 ORDER BY created_at DESC LIMIT 1`,
		projectID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest audio job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) GetActiveAudioJob(ctx context.Context, projectID uuid.UUID) (*models.AudioJob, error) {
	job, err := scanAudioJob(s.pool.QueryRow(ctx,
		`SELECT `+audioJobColumns+` FROM audio_jobs
		 WHERE project_id = $1 AND status IN ('queued', 'running')
		 ORDER BY created_at DESC LIMIT 1`, projectID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active audio job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) ListAudioJobs(ctx context.Context, projectID uuid.UUID, limit int) ([]*models.AudioJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+audioJobColumns+` FROM audio_jobs
		 WHERE project_id = $1 ORDER BY created_at DESC LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audio jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.AudioJob
	for rows.Next() {
		job, err := scanAudioJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audio job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// GetJobStatus is the cheap status-only read polled at batch boundaries.
func (s *PostgresStore) GetJobStatus(ctx context.Context, id uuid.UUID) (string, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM audio_jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get job status: %w", err)
	}
	return status, nil
}

// MarkJobRunning claims a queued job with a conditional update. Zero rows
// affected means the job was canceled, already claimed, or does not exist;
// the caller must not proceed in that case.
func (s *PostgresStore) MarkJobRunning(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE audio_jobs SET status = 'running', started_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = 'queued'`, id)
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotClaimable
	}
	return nil
}

func (s *PostgresStore) UpdateJobProgress(ctx context.Context, id uuid.UUID, progress JobProgress) error {
	details, err := json.Marshal(progress.ErrorDetails)
	if err != nil {
		return fmt.Errorf("marshal job error details: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE audio_jobs
		 SET total_items = $2, processed_items = $3, success_count = $4, failed_count = $5,
		     skipped_count = $6, error_details = $7, updated_at = NOW()
		 WHERE id = $1`,
		id, progress.TotalItems, progress.ProcessedItems, progress.SuccessCount,
		progress.FailedCount, progress.SkippedCount, details)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FinalizeAudioJob moves a running job to a terminal state. The update is
// conditional on status = 'running' so an externally canceled job keeps its
// canceled status; that case is not an error.
func (s *PostgresStore) FinalizeAudioJob(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	query := `UPDATE audio_jobs SET status = $2, completed_at = NOW(), updated_at = NOW()`
	args := []any{id, status}
	if params.LastError != nil {
		query += fmt.Sprintf(", last_error = $%d", len(args)+1)
		args = append(args, *params.LastError)
	}
	query += ` WHERE id = $1 AND status = 'running'`

	_, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("finalize audio job: %w", err)
	}
	return nil
}

// CancelActiveJob flips the project's queued/running job to canceled and
// returns its id. The runner observes the flip at its next batch boundary.
func (s *PostgresStore) CancelActiveJob(ctx context.Context, projectID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`UPDATE audio_jobs SET status = 'canceled', completed_at = NOW(), updated_at = NOW()
		 WHERE project_id = $1 AND status IN ('queued', 'running')
		 RETURNING id`, projectID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrNoActiveJob
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("cancel active job: %w", err)
	}
	return id, nil
}

// --- Work set ---

// ListGenerationTargets selects the utterances a job will process, ordered by
// scene position then utterance position. Utterances with empty text are
// never eligible. force and mode "all" disable the status filter entirely.
func (s *PostgresStore) ListGenerationTargets(ctx context.Context, projectID uuid.UUID, mode string, force bool) ([]*GenerationTarget, error) {
	query := `SELECT u.id, u.scene_id, u.position, u.role, u.character_key, u.text,
	   u.latest_audio_id, u.duration_ms, u.created_at, u.updated_at,
	   s.position, COALESCE(a.status, '')
	 FROM utterances u
	 JOIN scenes s ON s.id = u.scene_id
	 LEFT JOIN audio_items a ON a.id = u.latest_audio_id
	 WHERE s.project_id = $1 AND u.text <> ''`

	switch {
	case force, mode == models.JobModeAll:
		// no status filter
	case mode == models.JobModeMissing:
		query += ` AND (a.id IS NULL OR a.status <> 'completed')`
	case mode == models.JobModePending:
		query += ` AND (a.id IS NULL OR a.status IN ('generating', 'failed'))`
	default:
		return nil, fmt.Errorf("unknown job mode %q", mode)
	}
	query += ` ORDER BY s.position, u.position`

	rows, err := s.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list generation targets: %w", err)
	}
	defer rows.Close()

	var targets []*GenerationTarget
	for rows.Next() {
		var t GenerationTarget
		u := &t.Utterance
		if err := rows.Scan(&u.ID, &u.SceneID, &u.Position, &u.Role, &u.CharacterKey, &u.Text,
			&u.LatestAudioID, &u.DurationMs, &u.CreatedAt, &u.UpdatedAt,
			&t.ScenePosition, &t.LatestStatus); err != nil {
			return nil, fmt.Errorf("scan generation target: %w", err)
		}
		targets = append(targets, &t)
	}
	return targets, rows.Err()
}

// --- Usage Events ---

func (s *PostgresStore) CreateUsageEvent(ctx context.Context, event *models.UsageEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO usage_events (id, account_id, project_id, job_id, kind, provider, voice_id, item_count, success_count, failed_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		event.ID, event.AccountID, event.ProjectID, event.JobID, event.Kind, event.Provider,
		event.VoiceID, event.ItemCount, event.SuccessCount, event.FailedCount, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("create usage event: %w", err)
	}
	return nil
}

func (s *PostgresStore) SummarizeUsage(ctx context.Context, accountID uuid.UUID, since time.Time) ([]*models.UsageSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT kind, provider, COUNT(*),
		   COALESCE(SUM(item_count), 0), COALESCE(SUM(success_count), 0), COALESCE(SUM(failed_count), 0)
		 FROM usage_events
		 WHERE account_id = $1 AND created_at >= $2
		 GROUP BY kind, provider
		 ORDER BY kind, provider`, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("summarize usage: %w", err)
	}
	defer rows.Close()

	var summaries []*models.UsageSummary
	for rows.Next() {
		var u models.UsageSummary
		if err := rows.Scan(&u.Kind, &u.Provider, &u.EventCount, &u.ItemCount,
			&u.SuccessCount, &u.FailedCount); err != nil {
			return nil, fmt.Errorf("scan usage summary: %w", err)
		}
		summaries = append(summaries, &u)
	}
	return summaries, rows.Err()
}
