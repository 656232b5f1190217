package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/storycast/storycast/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrJobConflict = errors.New("another job is already active for this project")
var ErrNoActiveJob = errors.New("no active job for this project")
var ErrJobNotClaimable = errors.New("job is not in a claimable state")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultAccount(ctx context.Context) (*models.Account, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, accountID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, accountID uuid.UUID) error

	CreateProject(ctx context.Context, project *models.Project) error
	GetProject(ctx context.Context, id uuid.UUID, accountID uuid.UUID) (*models.Project, error)
	GetProjectByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	ListProjects(ctx context.Context, accountID uuid.UUID) ([]*models.Project, error)
	UpdateProjectSettings(ctx context.Context, id uuid.UUID, accountID uuid.UUID, settings models.ProjectSettings) error

	CreateScene(ctx context.Context, scene *models.Scene) error
	GetScene(ctx context.Context, id uuid.UUID) (*models.Scene, error)
	ListScenes(ctx context.Context, projectID uuid.UUID) ([]*models.Scene, error)

	UpsertCharacterVoice(ctx context.Context, character *models.Character) (*models.Character, error)
	ListCharacters(ctx context.Context, projectID uuid.UUID) ([]*models.Character, error)
	GetCharacterVoice(ctx context.Context, projectID uuid.UUID, key string) (string, error)

	CreateUtterances(ctx context.Context, utterances []*models.Utterance) error
	GetUtterance(ctx context.Context, id uuid.UUID) (*models.Utterance, error)
	ListUtterances(ctx context.Context, sceneID uuid.UUID) ([]*models.Utterance, error)
	UpdateUtteranceText(ctx context.Context, id uuid.UUID, text string) error
	SetUtteranceAudio(ctx context.Context, id uuid.UUID, audioItemID uuid.UUID) error
	SetUtteranceDuration(ctx context.Context, id uuid.UUID, durationMs int) error
	LatestAudioStatus(ctx context.Context, utteranceID uuid.UUID) (string, error)

	CreateAudioItem(ctx context.Context, item *models.AudioItem) error
	GetAudioItem(ctx context.Context, id uuid.UUID) (*models.AudioItem, error)
	ListAudioItems(ctx context.Context, sceneID uuid.UUID) ([]*models.AudioItem, error)
	MarkAudioCompleted(ctx context.Context, id uuid.UUID, blobKey, blobURL string, durationMs int) error
	MarkAudioFailed(ctx context.Context, id uuid.UUID, message string) error

	ListGenerationTargets(ctx context.Context, projectID uuid.UUID, mode string, force bool) ([]*GenerationTarget, error)

	CreateAudioJob(ctx context.Context, job *models.AudioJob) error
	GetAudioJob(ctx context.Context, id uuid.UUID) (*models.AudioJob, error)
	GetLatestAudioJob(ctx context.Context, projectID uuid.UUID) (*models.AudioJob, error)
	GetActiveAudioJob(ctx context.Context, projectID uuid.UUID) (*models.AudioJob, error)
	ListAudioJobs(ctx context.Context, projectID uuid.UUID, limit int) ([]*models.AudioJob, error)
	GetJobStatus(ctx context.Context, id uuid.UUID) (string, error)
	MarkJobRunning(ctx context.Context, id uuid.UUID) error
	UpdateJobProgress(ctx context.Context, id uuid.UUID, progress JobProgress) error
	FinalizeAudioJob(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error
	CancelActiveJob(ctx context.Context, projectID uuid.UUID) (uuid.UUID, error)

	CreateUsageEvent(ctx context.Context, event *models.UsageEvent) error
	SummarizeUsage(ctx context.Context, accountID uuid.UUID, since time.Time) ([]*models.UsageSummary, error)
}

// GenerationTarget is one work-set row: an utterance joined with its scene
// position and the status of its most recent audio item ("" when none).
type GenerationTarget struct {
	Utterance     models.Utterance
	ScenePosition int
	LatestStatus  string
}

// JobProgress is the counter snapshot persisted after every batch join.
type JobProgress struct {
	TotalItems     int
	ProcessedItems int
	SuccessCount   int
	FailedCount    int
	SkippedCount   int
	ErrorDetails   []models.JobErrorDetail
}

type jobUpdateParams struct {
	LastError *string
}

type JobUpdateOption func(*jobUpdateParams)

func WithLastError(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.LastError = &msg
	}
}
