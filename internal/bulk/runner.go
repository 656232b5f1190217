package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/storycast/storycast/internal/cache"
	"github.com/storycast/storycast/internal/config"
	"github.com/storycast/storycast/internal/generate"
	"github.com/storycast/storycast/internal/store"
	"github.com/storycast/storycast/internal/voice"
	"github.com/storycast/storycast/pkg/models"
)

const (
	jobStatusTTL = 30 * time.Minute

	// maxDetailMessageBytes bounds each recorded failure message; together
	// with ErrorDetailCap it bounds the error_details column.
	maxDetailMessageBytes = 500
)

// ItemGenerator produces one audio item for one utterance.
type ItemGenerator interface {
	Generate(ctx context.Context, item generate.Item) generate.Outcome
}

// Runner executes one bulk narration job from claim to terminal state. It is
// invoked by the queue worker; everything it learns ends up on the job row,
// which is what the status endpoint reads.
type Runner struct {
	store     store.Store
	generator ItemGenerator
	resolver  *voice.Resolver
	cache     cache.Cache
	cfg       config.BulkConfig
}

func NewRunner(st store.Store, gen ItemGenerator, resolver *voice.Resolver, ca cache.Cache, cfg config.BulkConfig) *Runner {
	return &Runner{
		store:     st,
		generator: gen,
		resolver:  resolver,
		cache:     ca,
		cfg:       cfg,
	}
}

// itemResult pairs one work-set row with what happened to it. Exactly one of
// skipped / outcome.Success / failure applies.
type itemResult struct {
	target  *store.GenerationTarget
	outcome generate.Outcome
	skipped bool
}

// Run drives the job: claim queued→running, list the work set, process it in
// batches of BatchWidth, persist counters after every batch join, finalize.
// It recovers from panics and always leaves the job in a terminal state; the
// returned error is for the worker's log only.
func (r *Runner) Run(ctx context.Context, jobID uuid.UUID) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic in bulk run", "error", rec, "job_id", jobID)
			_ = r.store.FinalizeAudioJob(ctx, jobID, models.JobStatusFailed,
				store.WithLastError(fmt.Sprintf("panic: %v", rec)))
			_ = r.cache.SetJobStatus(ctx, jobID, models.JobStatusFailed, jobStatusTTL)
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	job, err := r.store.GetAudioJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("loading job: %w", err)
	}

	if err := r.store.MarkJobRunning(ctx, jobID); err != nil {
		if errors.Is(err, store.ErrJobNotClaimable) {
			// Canceled while queued, or a duplicate delivery of an already
			// claimed job. Either way there is nothing to do.
			slog.Info("bulk job not claimable", "job_id", jobID, "status", job.Status)
			return nil
		}
		return fmt.Errorf("claiming job: %w", err)
	}
	_ = r.cache.SetJobStatus(ctx, jobID, models.JobStatusRunning, jobStatusTTL)

	slog.Info("bulk audio job started",
		"job_id", jobID, "project_id", job.ProjectID,
		"mode", job.Mode, "force", job.ForceRegenerate)

	project, err := r.store.GetProjectByID(ctx, job.ProjectID)
	if err != nil {
		return r.failJob(ctx, jobID, fmt.Sprintf("loading project: %v", err))
	}

	targets, err := r.store.ListGenerationTargets(ctx, job.ProjectID, job.Mode, job.ForceRegenerate)
	if err != nil {
		return r.failJob(ctx, jobID, fmt.Sprintf("listing work set: %v", err))
	}

	if len(targets) == 0 {
		if err := r.store.FinalizeAudioJob(ctx, jobID, models.JobStatusCompleted); err != nil {
			return fmt.Errorf("finalizing empty job: %w", err)
		}
		_ = r.cache.SetJobStatus(ctx, jobID, models.JobStatusCompleted, jobStatusTTL)
		slog.Info("bulk audio job completed, empty work set", "job_id", jobID)
		return nil
	}

	prog := store.JobProgress{TotalItems: len(targets)}
	r.persistProgress(ctx, jobID, prog)

	for start := 0; start < len(targets); start += r.cfg.BatchWidth {
		// Cancellation is honored at batch boundaries; items already in
		// flight finish and are counted.
		if status, serr := r.store.GetJobStatus(ctx, jobID); serr == nil && status == models.JobStatusCanceled {
			slog.Info("bulk audio job canceled", "job_id", jobID, "processed", prog.ProcessedItems)
			break
		}

		end := start + r.cfg.BatchWidth
		if end > len(targets) {
			end = len(targets)
		}
		batch := targets[start:end]

		results := make([]itemResult, len(batch))
		eg, egCtx := errgroup.WithContext(ctx)
		for i, target := range batch {
			eg.Go(func() error {
				results[i] = r.processTarget(egCtx, job, project.Settings, target)
				return nil
			})
		}
		_ = eg.Wait()

		for _, res := range results {
			prog.ProcessedItems++
			switch {
			case res.skipped:
				prog.SkippedCount++
			case res.outcome.Success:
				prog.SuccessCount++
			default:
				prog.FailedCount++
				if len(prog.ErrorDetails) < r.cfg.ErrorDetailCap {
					prog.ErrorDetails = append(prog.ErrorDetails, models.JobErrorDetail{
						ItemID:  res.target.Utterance.ID,
						SceneID: res.target.Utterance.SceneID,
						Message: truncateMessage(res.outcome.ErrorMessage),
					})
				}
			}
		}

		r.persistProgress(ctx, jobID, prog)
	}

	final := models.JobStatusCompleted
	if prog.FailedCount == prog.TotalItems {
		final = models.JobStatusFailed
	}
	if err := r.store.FinalizeAudioJob(ctx, jobID, final); err != nil {
		return fmt.Errorf("finalizing job: %w", err)
	}

	// Finalize leaves an externally canceled job alone, so re-read the row
	// before mirroring the status into the cache.
	if status, serr := r.store.GetJobStatus(ctx, jobID); serr == nil {
		final = status
		_ = r.cache.SetJobStatus(ctx, jobID, status, jobStatusTTL)
	}

	r.recordUsage(ctx, job, project.AccountID, prog)

	slog.Info("bulk audio job finished",
		"job_id", jobID, "status", final, "total", prog.TotalItems,
		"success", prog.SuccessCount, "failed", prog.FailedCount, "skipped", prog.SkippedCount)
	return nil
}

// processTarget handles one utterance: recheck, resolve, generate. A panic in
// a provider adapter fails this item alone, not the job.
func (r *Runner) processTarget(ctx context.Context, job *models.AudioJob, settings models.ProjectSettings, target *store.GenerationTarget) (res itemResult) {
	res.target = target

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic processing item", "error", rec,
				"job_id", job.ID, "utterance_id", target.Utterance.ID)
			res.outcome = generate.Outcome{ErrorMessage: fmt.Sprintf("panic: %v", rec)}
		}
	}()

	if job.Mode != models.JobModeAll && !job.ForceRegenerate {
		// The work set was listed at job start; an item may have completed
		// since (a concurrent single-item request). Recheck before spending a
		// provider call.
		status, err := r.store.LatestAudioStatus(ctx, target.Utterance.ID)
		if err != nil {
			status = ""
		}
		if generate.ShouldSkip(status, job.ForceRegenerate) {
			res.skipped = true
			return res
		}
	}

	resolution := r.resolver.Resolve(ctx, target.Utterance, job.ProjectID, settings)
	res.outcome = r.generator.Generate(ctx, generate.Item{
		Utterance:  target.Utterance,
		ProjectID:  job.ProjectID,
		Resolution: resolution,
	})
	return res
}

// failJob finalizes with last_error for failures that precede the batch loop.
func (r *Runner) failJob(ctx context.Context, jobID uuid.UUID, message string) error {
	_ = r.store.FinalizeAudioJob(ctx, jobID, models.JobStatusFailed, store.WithLastError(message))
	_ = r.cache.SetJobStatus(ctx, jobID, models.JobStatusFailed, jobStatusTTL)
	return errors.New(message)
}

// persistProgress writes the counter snapshot. A failed write costs live
// progress visibility, not correctness, so the run continues.
func (r *Runner) persistProgress(ctx context.Context, jobID uuid.UUID, prog store.JobProgress) {
	if err := r.store.UpdateJobProgress(ctx, jobID, prog); err != nil {
		slog.Warn("persisting job progress", "error", err, "job_id", jobID)
	}
}

// truncateMessage cuts a failure message at maxDetailMessageBytes without
// splitting UTF-8 runes.
func truncateMessage(s string) string {
	if len(s) <= maxDetailMessageBytes {
		return s
	}
	n := maxDetailMessageBytes
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (r *Runner) recordUsage(ctx context.Context, job *models.AudioJob, accountID uuid.UUID, prog store.JobProgress) {
	event := &models.UsageEvent{
		ID:           uuid.New(),
		AccountID:    accountID,
		ProjectID:    job.ProjectID,
		JobID:        &job.ID,
		Kind:         models.UsageKindBulkAudio,
		Provider:     job.NarrationProvider,
		VoiceID:      job.NarrationVoiceID,
		ItemCount:    prog.ProcessedItems,
		SuccessCount: prog.SuccessCount,
		FailedCount:  prog.FailedCount,
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.store.CreateUsageEvent(ctx, event); err != nil {
		slog.Warn("recording usage event", "error", err, "job_id", job.ID)
	}
}
