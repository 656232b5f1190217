package bulk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TypeBulkGenerate is the queue task type for one bulk narration job.
const TypeBulkGenerate = "audio:bulk_generate"

type taskPayload struct {
	JobID uuid.UUID `json:"job_id"`
}

// Dispatcher hands job ids to the worker queue. The job row is created and
// committed before Enqueue is called; the queue carries only the id.
type Dispatcher struct {
	client *asynq.Client
}

func NewDispatcher(redisURL string) (*Dispatcher, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return &Dispatcher{client: asynq.NewClient(opt)}, nil
}

func (d *Dispatcher) Enqueue(ctx context.Context, jobID uuid.UUID) error {
	payload, err := json.Marshal(taskPayload{JobID: jobID})
	if err != nil {
		return fmt.Errorf("marshal task payload: %w", err)
	}
	task := asynq.NewTask(TypeBulkGenerate, payload,
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Hour),
		asynq.Retention(24*time.Hour),
	)
	info, err := d.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue bulk job: %w", err)
	}
	slog.Info("bulk job enqueued", "job_id", jobID, "task_id", info.ID)
	return nil
}

func (d *Dispatcher) Close() error {
	return d.client.Close()
}

// Worker consumes bulk jobs off the queue and runs them.
type Worker struct {
	srv    *asynq.Server
	runner *Runner
}

func NewWorker(redisURL string, runner *Runner, concurrency int) (*Worker, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
	})
	return &Worker{srv: srv, runner: runner}, nil
}

// Start begins consuming in background goroutines; it does not block.
func (w *Worker) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeBulkGenerate, w.handleBulkGenerate)
	return w.srv.Start(mux)
}

// Shutdown waits for in-flight handlers before returning.
func (w *Worker) Shutdown() {
	w.srv.Shutdown()
}

// handleBulkGenerate runs one job. Run failures are not returned: the job row
// already carries the outcome, and an asynq retry of a finalized job would
// find nothing claimable. Only an undecodable payload is an error, and that
// one skips retry too.
func (w *Worker) handleBulkGenerate(ctx context.Context, t *asynq.Task) error {
	var payload taskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := w.runner.Run(ctx, payload.JobID); err != nil {
		slog.Error("bulk job run failed", "error", err, "job_id", payload.JobID)
	}
	return nil
}
