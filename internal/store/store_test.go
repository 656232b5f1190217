package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/storycast/storycast/internal/store"
	"github.com/storycast/storycast/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("storycast_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Run migrations
	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

// defaultAccountID returns the UUID of the seeded default account.
func defaultAccountID(t *testing.T, s store.Store) uuid.UUID {
	t.Helper()
	account, err := s.GetDefaultAccount(context.Background())
	require.NoError(t, err)
	return account.ID
}

// --- Fixtures ---

func seedProject(t *testing.T, s store.Store, accountID uuid.UUID) *models.Project {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	p := &models.Project{
		ID: uuid.New(), AccountID: accountID, Title: "test project",
		Status: models.ProjectStatusActive, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateProject(context.Background(), p))
	return p
}

func seedScene(t *testing.T, s store.Store, projectID uuid.UUID, position int) *models.Scene {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	sc := &models.Scene{
		ID: uuid.New(), ProjectID: projectID, Position: position,
		Title: "scene", Script: "", CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateScene(context.Background(), sc))
	return sc
}

func seedUtterance(t *testing.T, s store.Store, sceneID uuid.UUID, position int, role, characterKey, text string) *models.Utterance {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	u := &models.Utterance{
		ID: uuid.New(), SceneID: sceneID, Position: position, Role: role,
		CharacterKey: characterKey, Text: text, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateUtterances(context.Background(), []*models.Utterance{u}))
	return u
}

func seedAudioItem(t *testing.T, s store.Store, sceneID, utteranceID uuid.UUID) *models.AudioItem {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	a := &models.AudioItem{
		ID: uuid.New(), SceneID: sceneID, UtteranceID: utteranceID,
		Provider: models.ProviderGoogle, VoiceID: "ja-JP-Neural2-B",
		Format: models.AudioFormatMP3, SampleRate: 24000, SourceText: "hello",
		Status: models.AudioStatusGenerating, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateAudioItem(context.Background(), a))
	return a
}

func seedQueuedJob(t *testing.T, s store.Store, projectID uuid.UUID, mode string) *models.AudioJob {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	j := &models.AudioJob{
		ID: uuid.New(), ProjectID: projectID, Mode: mode,
		Status: models.JobStatusQueued, StartedBy: "test",
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateAudioJob(context.Background(), j))
	return j
}

// --- Account Tests ---

func TestGetDefaultAccount(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	account, err := s.GetDefaultAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "default", account.Name)
	assert.NotEqual(t, uuid.Nil, account.ID)
}

// --- API Key Tests ---

func TestAPIKey_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	accountID := defaultAccountID(t, s)

	now := time.Now().UTC().Truncate(time.Microsecond)
	key := &models.APIKey{
		ID:        uuid.New(),
		AccountID: accountID,
		Name:      "test-key",
		KeyHash:   "bcrypt-hash-here",
		KeyPrefix: "sc_abcd",
		Scopes:    []string{"read", "write"},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.CreateAPIKey(ctx, key)
	require.NoError(t, err)

	keys, err := s.GetAPIKeyByPrefix(ctx, "sc_abcd")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
	assert.Equal(t, "test-key", keys[0].Name)
}

func TestAPIKey_Revoke(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	accountID := defaultAccountID(t, s)
	now := time.Now().UTC().Truncate(time.Microsecond)

	key := &models.APIKey{
		ID: uuid.New(), AccountID: accountID, Name: "revoke-me",
		KeyHash: "hash", KeyPrefix: "sc_revk", Scopes: []string{"read"},
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	err := s.RevokeAPIKey(ctx, key.ID, accountID)
	require.NoError(t, err)

	keys, err := s.ListAPIKeys(ctx, accountID)
	require.NoError(t, err)
	assert.Empty(t, keys)

	keys, err = s.GetAPIKeyByPrefix(ctx, "sc_revk")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestAPIKey_RevokeNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	err := s.RevokeAPIKey(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAPIKey_DuplicateID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	accountID := defaultAccountID(t, s)
	now := time.Now().UTC().Truncate(time.Microsecond)

	id := uuid.New()
	key := &models.APIKey{
		ID: id, AccountID: accountID, Name: "dup1", KeyHash: "h1", KeyPrefix: "sc_dup1",
		Scopes: []string{"read"}, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	key2 := &models.APIKey{
		ID: id, AccountID: accountID, Name: "dup2", KeyHash: "h2", KeyPrefix: "sc_dup2",
		Scopes: []string{"read"}, CreatedAt: now, UpdatedAt: now,
	}
	err := s.CreateAPIKey(ctx, key2)
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

// --- Project Tests ---

func TestProject_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	accountID := defaultAccountID(t, s)
	now := time.Now().UTC().Truncate(time.Microsecond)

	p := &models.Project{
		ID: uuid.New(), AccountID: accountID, Title: "my film",
		Status: models.ProjectStatusDraft,
		Settings: models.ProjectSettings{
			NarrationProvider: models.ProviderElevenLabs,
			NarrationVoiceID:  "el-jinx",
		},
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateProject(ctx, p))

	got, err := s.GetProject(ctx, p.ID, accountID)
	require.NoError(t, err)
	assert.Equal(t, "my film", got.Title)
	assert.Equal(t, models.ProviderElevenLabs, got.Settings.NarrationProvider)
	assert.Equal(t, "el-jinx", got.Settings.NarrationVoiceID)
}

func TestProject_GetNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetProject(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProject_UpdateSettings(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	accountID := defaultAccountID(t, s)
	p := seedProject(t, s, accountID)

	err := s.UpdateProjectSettings(ctx, p.ID, accountID, models.ProjectSettings{
		NarrationVoiceID: "fish-deep",
	})
	require.NoError(t, err)

	got, err := s.GetProject(ctx, p.ID, accountID)
	require.NoError(t, err)
	assert.Equal(t, "fish-deep", got.Settings.NarrationVoiceID)
	assert.Empty(t, got.Settings.NarrationProvider)
}

func TestProject_GetByIDIgnoresAccountScope(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	accountID := defaultAccountID(t, s)
	p := seedProject(t, s, accountID)

	got, err := s.GetProjectByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, accountID, got.AccountID)

	_, err = s.GetProjectByID(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProject_List(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	accountID := defaultAccountID(t, s)

	for i := 0; i < 3; i++ {
		seedProject(t, s, accountID)
	}

	projects, err := s.ListProjects(context.Background(), accountID)
	require.NoError(t, err)
	assert.Len(t, projects, 3)
}

// --- Scene Tests ---

func TestScene_CreateAndListOrdered(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	accountID := defaultAccountID(t, s)
	p := seedProject(t, s, accountID)

	// Insert out of order; listing must return position order.
	seedScene(t, s, p.ID, 3)
	seedScene(t, s, p.ID, 1)
	seedScene(t, s, p.ID, 2)

	scenes, err := s.ListScenes(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, scenes, 3)
	assert.Equal(t, 1, scenes[0].Position)
	assert.Equal(t, 2, scenes[1].Position)
	assert.Equal(t, 3, scenes[2].Position)
}

// --- Character Tests ---

func TestCharacter_UpsertInsertThenUpdate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	accountID := defaultAccountID(t, s)
	p := seedProject(t, s, accountID)
	now := time.Now().UTC().Truncate(time.Microsecond)

	c := &models.Character{
		ID: uuid.New(), ProjectID: p.ID, Key: "hero", Name: "Hero",
		VoicePreset: "el-hero-voice", CreatedAt: now, UpdatedAt: now,
	}
	first, err := s.UpsertCharacterVoice(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, "el-hero-voice", first.VoicePreset)

	// Same project+key upserts in place, id preserved.
	c2 := &models.Character{
		ID: uuid.New(), ProjectID: p.ID, Key: "hero", Name: "Hero",
		VoicePreset: "elevenlabs:new-voice", CreatedAt: now, UpdatedAt: now,
	}
	second, err := s.UpsertCharacterVoice(ctx, c2)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "elevenlabs:new-voice", second.VoicePreset)

	preset, err := s.GetCharacterVoice(ctx, p.ID, "hero")
	require.NoError(t, err)
	assert.Equal(t, "elevenlabs:new-voice", preset)
}

func TestCharacter_GetVoiceNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetCharacterVoice(context.Background(), uuid.New(), "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Utterance Tests ---

func TestUtterance_CreateBatchAndListOrdered(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	accountID := defaultAccountID(t, s)
	p := seedProject(t, s, accountID)
	sc := seedScene(t, s, p.ID, 1)
	now := time.Now().UTC().Truncate(time.Microsecond)

	batch := []*models.Utterance{
		{ID: uuid.New(), SceneID: sc.ID, Position: 2, Role: models.RoleDialogue, CharacterKey: "hero", Text: "line two", CreatedAt: now, UpdatedAt: now},
		{ID: uuid.New(), SceneID: sc.ID, Position: 1, Role: models.RoleNarration, Text: "line one", CreatedAt: now, UpdatedAt: now},
	}
	require.NoError(t, s.CreateUtterances(ctx, batch))

	utterances, err := s.ListUtterances(ctx, sc.ID)
	require.NoError(t, err)
	require.Len(t, utterances, 2)
	assert.Equal(t, "line one", utterances[0].Text)
	assert.Equal(t, "line two", utterances[1].Text)
}

func TestUtterance_UpdateText(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	accountID := defaultAccountID(t, s)
	p := seedProject(t, s, accountID)
	sc := seedScene(t, s, p.ID, 1)
	u := seedUtterance(t, s, sc.ID, 1, models.RoleNarration, "", "before")

	require.NoError(t, s.UpdateUtteranceText(ctx, u.ID, "after"))

	got, err := s.GetUtterance(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Text)
}

func TestUtterance_LatestAudioStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	accountID := defaultAccountID(t, s)
	p := seedProject(t, s, accountID)
	sc := seedScene(t, s, p.ID, 1)
	u := seedUtterance(t, s, sc.ID, 1, models.RoleNarration, "", "hello")

	// No linked audio yet.
	status, err := s.LatestAudioStatus(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, status)

	item := seedAudioItem(t, s, sc.ID, u.ID)
	require.NoError(t, s.SetUtteranceAudio(ctx, u.ID, item.ID))

	status, err = s.LatestAudioStatus(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AudioStatusGenerating, status)

	require.NoError(t, s.MarkAudioCompleted(ctx, item.ID, "key", "https://blob/key", 1200))

	status, err = s.LatestAudioStatus(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AudioStatusCompleted, status)
}

func TestUtterance_LatestAudioStatusNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.LatestAudioStatus(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Audio Item Tests ---

func TestAudioItem_MarkCompletedSetsBlobAndDuration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	accountID := defaultAccountID(t, s)
	p := seedProject(t, s, accountID)
	sc := seedScene(t, s, p.ID, 1)
	u := seedUtterance(t, s, sc.ID, 1, models.RoleNarration, "", "hello")
	item := seedAudioItem(t, s, sc.ID, u.ID)

	err := s.MarkAudioCompleted(ctx, item.ID, "projects/p/scenes/s/audio/a.mp3", "https://blob/a.mp3", 2500)
	require.NoError(t, err)

	got, err := s.GetAudioItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AudioStatusCompleted, got.Status)
	require.NotNil(t, got.BlobURL)
	assert.Equal(t, "https://blob/a.mp3", *got.BlobURL)
	assert.Equal(t, 2500, got.DurationMs)
	assert.True(t, got.IsActive)
	assert.Nil(t, got.ErrorMessage)
}

func TestAudioItem_SingleActivePerScene(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	accountID := defaultAccountID(t, s)
	p := seedProject(t, s, accountID)
	sc := seedScene(t, s, p.ID, 1)
	u := seedUtterance(t, s, sc.ID, 1, models.RoleNarration, "", "hello")

	first := seedAudioItem(t, s, sc.ID, u.ID)
	require.NoError(t, s.MarkAudioCompleted(ctx, first.ID, "k1", "https://blob/k1", 1000))

	second := seedAudioItem(t, s, sc.ID, u.ID)
	require.NoError(t, s.MarkAudioCompleted(ctx, second.ID, "k2", "https://blob/k2", 1100))

	gotFirst, err := s.GetAudioItem(ctx, first.ID)
	require.NoError(t, err)
	gotSecond, err := s.GetAudioItem(ctx, second.ID)
	require.NoError(t, err)

	assert.False(t, gotFirst.IsActive)
	assert.True(t, gotSecond.IsActive)
}

func TestAudioItem_MarkFailed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	accountID := defaultAccountID(t, s)
	p := seedProject(t, s, accountID)
	sc := seedScene(t, s, p.ID, 1)
	u := seedUtterance(t, s, sc.ID, 1, models.RoleNarration, "", "hello")
	item := seedAudioItem(t, s, sc.ID, u.ID)

	err := s.MarkAudioFailed(ctx, item.ID, "elevenlabs API error (401): unauthorized")
	require.NoError(t, err)

	got, err := s.GetAudioItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AudioStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "401")
	assert.False(t, got.IsActive)
}

// --- Generation Target Tests ---

func TestGenerationTargets_ModeMissing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	accountID := defaultAccountID(t, s)
	p := seedProject(t, s, accountID)
	sc1 := seedScene(t, s, p.ID, 1)
	sc2 := seedScene(t, s, p.ID, 2)

	noAudio := seedUtterance(t, s, sc1.ID, 1, models.RoleNarration, "", "no audio yet")

	done := seedUtterance(t, s, sc1.ID, 2, models.RoleNarration, "", "already done")
	doneItem := seedAudioItem(t, s, sc1.ID, done.ID)
	require.NoError(t, s.MarkAudioCompleted(ctx, doneItem.ID, "k", "https://blob/k", 900))
	require.NoError(t, s.SetUtteranceAudio(ctx, done.ID, doneItem.ID))

	failed := seedUtterance(t, s, sc2.ID, 1, models.RoleNarration, "", "failed earlier")
	failedItem := seedAudioItem(t, s, sc2.ID, failed.ID)
	require.NoError(t, s.MarkAudioFailed(ctx, failedItem.ID, "boom"))
	require.NoError(t, s.SetUtteranceAudio(ctx, failed.ID, failedItem.ID))

	// Empty-text utterances are never eligible.
	seedUtterance(t, s, sc2.ID, 2, models.RoleNarration, "", "")

	targets, err := s.ListGenerationTargets(ctx, p.ID, models.JobModeMissing, false)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, noAudio.ID, targets[0].Utterance.ID)
	assert.Equal(t, failed.ID, targets[1].Utterance.ID)
	assert.Equal(t, models.AudioStatusFailed, targets[1].LatestStatus)
}

func TestGenerationTargets_ModeAllAndForce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	accountID := defaultAccountID(t, s)
	p := seedProject(t, s, accountID)
	sc := seedScene(t, s, p.ID, 1)

	done := seedUtterance(t, s, sc.ID, 1, models.RoleNarration, "", "already done")
	doneItem := seedAudioItem(t, s, sc.ID, done.ID)
	require.NoError(t, s.MarkAudioCompleted(ctx, doneItem.ID, "k", "https://blob/k", 900))
	require.NoError(t, s.SetUtteranceAudio(ctx, done.ID, doneItem.ID))

	targets, err := s.ListGenerationTargets(ctx, p.ID, models.JobModeAll, false)
	require.NoError(t, err)
	assert.Len(t, targets, 1)

	// force overrides the mode filter the same way.
	targets, err = s.ListGenerationTargets(ctx, p.ID, models.JobModeMissing, true)
	require.NoError(t, err)
	assert.Len(t, targets, 1)
	assert.Equal(t, models.AudioStatusCompleted, targets[0].LatestStatus)
}

func TestGenerationTargets_StableOrder(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	accountID := defaultAccountID(t, s)
	p := seedProject(t, s, accountID)

	// Seed scenes and utterances out of order.
	sc2 := seedScene(t, s, p.ID, 2)
	sc1 := seedScene(t, s, p.ID, 1)
	u21 := seedUtterance(t, s, sc2.ID, 1, models.RoleNarration, "", "scene2 line1")
	u12 := seedUtterance(t, s, sc1.ID, 2, models.RoleNarration, "", "scene1 line2")
	u11 := seedUtterance(t, s, sc1.ID, 1, models.RoleNarration, "", "scene1 line1")

	targets, err := s.ListGenerationTargets(ctx, p.ID, models.JobModeAll, false)
	require.NoError(t, err)
	require.Len(t, targets, 3)
	assert.Equal(t, u11.ID, targets[0].Utterance.ID)
	assert.Equal(t, u12.ID, targets[1].Utterance.ID)
	assert.Equal(t, u21.ID, targets[2].Utterance.ID)
}

func TestGenerationTargets_UnknownMode(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.ListGenerationTargets(context.Background(), uuid.New(), "everything", false)
	assert.Error(t, err)
}

// --- Audio Job Tests ---

func TestAudioJob_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	accountID := defaultAccountID(t, s)
	p := seedProject(t, s, accountID)

	job := seedQueuedJob(t, s, p.ID, models.JobModeMissing)

	got, err := s.GetAudioJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, got.Status)
	assert.Equal(t, models.JobModeMissing, got.Mode)
	assert.Nil(t, got.StartedAt)
	assert.Empty(t, got.ErrorDetails)
}

func TestAudioJob_ConflictOnSecondActive(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	accountID := defaultAccountID(t, s)
	p := seedProject(t, s, accountID)
	now := time.Now().UTC().Truncate(time.Microsecond)

	seedQueuedJob(t, s, p.ID, models.JobModeMissing)

	second := &models.AudioJob{
		ID: uuid.New(), ProjectID: p.ID, Mode: models.JobModeAll,
		Status: models.JobStatusQueued, StartedBy: "test",
		CreatedAt: now, UpdatedAt: now,
	}
	err := s.CreateAudioJob(ctx, second)
	assert.ErrorIs(t, err, store.ErrJobConflict)

	// A terminal job does not block a new one.
	first, err := s.GetActiveAudioJob(ctx, p.ID)
	require.NoError(t, err)
	require.NoError(t, s.MarkJobRunning(ctx, first.ID))
	require.NoError(t, s.FinalizeAudioJob(ctx, first.ID, models.JobStatusCompleted))

	err = s.CreateAudioJob(ctx, second)
	assert.NoError(t, err)
}

func TestAudioJob_MarkRunningClaimsOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	accountID := defaultAccountID(t, s)
	p := seedProject(t, s, accountID)
	job := seedQueuedJob(t, s, p.ID, models.JobModeMissing)

	require.NoError(t, s.MarkJobRunning(ctx, job.ID))

	got, err := s.GetAudioJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)
	assert.NotNil(t, got.StartedAt)

	// Second claim must fail: the job is no longer queued.
	err = s.MarkJobRunning(ctx, job.ID)
	assert.ErrorIs(t, err, store.ErrJobNotClaimable)
}

func TestAudioJob_UpdateProgressRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	accountID := defaultAccountID(t, s)
	p := seedProject(t, s, accountID)
	job := seedQueuedJob(t, s, p.ID, models.JobModeMissing)
	require.NoError(t, s.MarkJobRunning(ctx, job.ID))

	itemID, sceneID := uuid.New(), uuid.New()
	err := s.UpdateJobProgress(ctx, job.ID, store.JobProgress{
		TotalItems: 10, ProcessedItems: 4, SuccessCount: 2, FailedCount: 1, SkippedCount: 1,
		ErrorDetails: []models.JobErrorDetail{
			{ItemID: itemID, SceneID: sceneID, Message: "fish API error (500): oops"},
		},
	})
	require.NoError(t, err)

	got, err := s.GetAudioJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.TotalItems)
	assert.Equal(t, 4, got.ProcessedItems)
	assert.Equal(t, 2, got.SuccessCount)
	require.Len(t, got.ErrorDetails, 1)
	assert.Equal(t, itemID, got.ErrorDetails[0].ItemID)
	assert.Equal(t, sceneID, got.ErrorDetails[0].SceneID)
	assert.Contains(t, got.ErrorDetails[0].Message, "500")
}

func TestAudioJob_FinalizePreservesCanceled(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	accountID := defaultAccountID(t, s)
	p := seedProject(t, s, accountID)
	job := seedQueuedJob(t, s, p.ID, models.JobModeMissing)
	require.NoError(t, s.MarkJobRunning(ctx, job.ID))

	canceledID, err := s.CancelActiveJob(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, canceledID)

	// The runner finishing afterwards must not overwrite the canceled status.
	require.NoError(t, s.FinalizeAudioJob(ctx, job.ID, models.JobStatusCompleted))

	got, err := s.GetAudioJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCanceled, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestAudioJob_FinalizeWithLastError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	accountID := defaultAccountID(t, s)
	p := seedProject(t, s, accountID)
	job := seedQueuedJob(t, s, p.ID, models.JobModeMissing)
	require.NoError(t, s.MarkJobRunning(ctx, job.ID))

	err := s.FinalizeAudioJob(ctx, job.ID, models.JobStatusFailed, store.WithLastError("panic: boom"))
	require.NoError(t, err)

	got, err := s.GetAudioJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "panic: boom", *got.LastError)
}

func TestAudioJob_CancelNoActive(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.CancelActiveJob(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNoActiveJob)
}

func TestAudioJob_HistoryNewestFirst(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	accountID := defaultAccountID(t, s)
	p := seedProject(t, s, accountID)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		now := time.Now().UTC().Truncate(time.Microsecond).Add(time.Duration(i) * time.Second)
		j := &models.AudioJob{
			ID: uuid.New(), ProjectID: p.ID, Mode: models.JobModeMissing,
			Status: models.JobStatusQueued, StartedBy: "test",
			CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, s.CreateAudioJob(ctx, j))
		require.NoError(t, s.MarkJobRunning(ctx, j.ID))
		require.NoError(t, s.FinalizeAudioJob(ctx, j.ID, models.JobStatusCompleted))
		ids = append(ids, j.ID)
	}

	jobs, err := s.ListAudioJobs(ctx, p.ID, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, ids[2], jobs[0].ID)
	assert.Equal(t, ids[1], jobs[1].ID)

	latest, err := s.GetLatestAudioJob(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, ids[2], latest.ID)
}

func TestAudioJob_GetLatestNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetLatestAudioJob(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Usage Event Tests ---

func TestUsage_CreateAndSummarize(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	accountID := defaultAccountID(t, s)
	p := seedProject(t, s, accountID)
	now := time.Now().UTC().Truncate(time.Microsecond)

	for i := 0; i < 2; i++ {
		require.NoError(t, s.CreateUsageEvent(ctx, &models.UsageEvent{
			ID: uuid.New(), AccountID: accountID, ProjectID: p.ID,
			Kind: models.UsageKindBulkAudio, Provider: models.ProviderGoogle,
			VoiceID: "ja-JP-Neural2-B", ItemCount: 5, SuccessCount: 4, FailedCount: 1,
			CreatedAt: now,
		}))
	}

	summaries, err := s.SummarizeUsage(ctx, accountID, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, models.UsageKindBulkAudio, summaries[0].Kind)
	assert.Equal(t, 2, summaries[0].EventCount)
	assert.Equal(t, 10, summaries[0].ItemCount)
	assert.Equal(t, 8, summaries[0].SuccessCount)
	assert.Equal(t, 2, summaries[0].FailedCount)
}

// --- Ping Test ---

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	err := s.Ping(context.Background())
	assert.NoError(t, err)
}
