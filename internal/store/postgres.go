package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/storycast/storycast/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Accounts ---

func (s *PostgresStore) GetDefaultAccount(ctx context.Context) (*models.Account, error) {
	var a models.Account
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM accounts WHERE name = 'default' LIMIT 1`,
	).Scan(&a.ID, &a.Name, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default account: %w", err)
	}
	return &a, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.AccountID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, account_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.AccountID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, accountID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE account_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.AccountID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, accountID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND account_id = $2 AND deleted_at IS NULL`, id, accountID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Projects ---

func (s *PostgresStore) CreateProject(ctx context.Context, project *models.Project) error {
	settings, err := json.Marshal(project.Settings)
	if err != nil {
		return fmt.Errorf("marshal project settings: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO projects (id, account_id, title, status, settings, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		project.ID, project.AccountID, project.Title, project.Status, settings,
		project.CreatedAt, project.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProject(ctx context.Context, id uuid.UUID, accountID uuid.UUID) (*models.Project, error) {
	var p models.Project
	var settings []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, account_id, title, status, settings, created_at, updated_at
		 FROM projects WHERE id = $1 AND account_id = $2`, id, accountID,
	).Scan(&p.ID, &p.AccountID, &p.Title, &p.Status, &settings, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	if err := json.Unmarshal(settings, &p.Settings); err != nil {
		return nil, fmt.Errorf("decode project settings: %w", err)
	}
	return &p, nil
}

// GetProjectByID reads a project without an account scope. Background
// workers own no account context; request handlers use GetProject.
func (s *PostgresStore) GetProjectByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var p models.Project
	var settings []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, account_id, title, status, settings, created_at, updated_at
		 FROM projects WHERE id = $1`, id,
	).Scan(&p.ID, &p.AccountID, &p.Title, &p.Status, &settings, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project by id: %w", err)
	}
	if err := json.Unmarshal(settings, &p.Settings); err != nil {
		return nil, fmt.Errorf("decode project settings: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context, accountID uuid.UUID) ([]*models.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, title, status, settings, created_at, updated_at
		 FROM projects WHERE account_id = $1 ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		var p models.Project
		var settings []byte
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Title, &p.Status, &settings,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		if err := json.Unmarshal(settings, &p.Settings); err != nil {
			return nil, fmt.Errorf("decode project settings: %w", err)
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

func (s *PostgresStore) UpdateProjectSettings(ctx context.Context, id uuid.UUID, accountID uuid.UUID, settings models.ProjectSettings) error {
	encoded, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal project settings: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET settings = $3, updated_at = NOW() WHERE id = $1 AND account_id = $2`,
		id, accountID, encoded)
	if err != nil {
		return fmt.Errorf("update project settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Scenes ---

func (s *PostgresStore) CreateScene(ctx context.Context, scene *models.Scene) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scenes (id, project_id, position, title, script, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		scene.ID, scene.ProjectID, scene.Position, scene.Title, scene.Script,
		scene.CreatedAt, scene.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create scene: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetScene(ctx context.Context, id uuid.UUID) (*models.Scene, error) {
	var sc models.Scene
	err := s.pool.QueryRow(ctx,
		`SELECT id, project_id, position, title, script, created_at, updated_at
		 FROM scenes WHERE id = $1`, id,
	).Scan(&sc.ID, &sc.ProjectID, &sc.Position, &sc.Title, &sc.Script, &sc.CreatedAt, &sc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scene: %w", err)
	}
	return &sc, nil
}

func (s *PostgresStore) ListScenes(ctx context.Context, projectID uuid.UUID) ([]*models.Scene, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, position, title, script, created_at, updated_at
		 FROM scenes WHERE project_id = $1 ORDER BY position`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	defer rows.Close()

	var scenes []*models.Scene
	for rows.Next() {
		var sc models.Scene
		if err := rows.Scan(&sc.ID, &sc.ProjectID, &sc.Position, &sc.Title, &sc.Script,
			&sc.CreatedAt, &sc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan scene: %w", err)
		}
		scenes = append(scenes, &sc)
	}
	return scenes, rows.Err()
}

// --- Characters ---

func (s *PostgresStore) UpsertCharacterVoice(ctx context.Context, character *models.Character) (*models.Character, error) {
	var result models.Character
	err := s.pool.QueryRow(ctx,
		`INSERT INTO characters (id, project_id, key, name, voice_preset, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (project_id, key) DO UPDATE SET
		   name = EXCLUDED.name,
		   voice_preset = EXCLUDED.voice_preset,
		   updated_at = NOW()
		 RETURNING id, project_id, key, name, voice_preset, created_at, updated_at`,
		character.ID, character.ProjectID, character.Key, character.Name, character.VoicePreset,
		character.CreatedAt, character.UpdatedAt,
	).Scan(&result.ID, &result.ProjectID, &result.Key, &result.Name, &result.VoicePreset,
		&result.CreatedAt, &result.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert character voice: %w", err)
	}
	return &result, nil
}

func (s *PostgresStore) ListCharacters(ctx context.Context, projectID uuid.UUID) ([]*models.Character, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, key, name, voice_preset, created_at, updated_at
		 FROM characters WHERE project_id = $1 ORDER BY key`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer rows.Close()

	var characters []*models.Character
	for rows.Next() {
		var c models.Character
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Key, &c.Name, &c.VoicePreset,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan character: %w", err)
		}
		characters = append(characters, &c)
	}
	return characters, rows.Err()
}

func (s *PostgresStore) GetCharacterVoice(ctx context.Context, projectID uuid.UUID, key string) (string, error) {
	var preset string
	err := s.pool.QueryRow(ctx,
		`SELECT voice_preset FROM characters WHERE project_id = $1 AND key = $2`, projectID, key,
	).Scan(&preset)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get character voice: %w", err)
	}
	return preset, nil
}

// --- Utterances ---

func (s *PostgresStore) CreateUtterances(ctx context.Context, utterances []*models.Utterance) error {
	if len(utterances) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create utterances: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, u := range utterances {
		_, err := tx.Exec(ctx,
			`INSERT INTO utterances (id, scene_id, position, role, character_key, text, duration_ms, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			u.ID, u.SceneID, u.Position, u.Role, u.CharacterKey, u.Text, u.DurationMs,
			u.CreatedAt, u.UpdatedAt)
		if err != nil {
			if isDuplicateKeyError(err) {
				return ErrDuplicateKey
			}
			return fmt.Errorf("create utterance: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create utterances: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUtterance(ctx context.Context, id uuid.UUID) (*models.Utterance, error) {
	var u models.Utterance
	err := s.pool.QueryRow(ctx,
		`SELECT id, scene_id, position, role, character_key, text, latest_audio_id, duration_ms, created_at, updated_at
		 FROM utterances WHERE id = $1`, id,
	).Scan(&u.ID, &u.SceneID, &u.Position, &u.Role, &u.CharacterKey, &u.Text,
		&u.LatestAudioID, &u.DurationMs, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get utterance: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) ListUtterances(ctx context.Context, sceneID uuid.UUID) ([]*models.Utterance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, scene_id, position, role, character_key, text, latest_audio_id, duration_ms, created_at, updated_at
		 FROM utterances WHERE scene_id = $1 ORDER BY position`, sceneID)
	if err != nil {
		return nil, fmt.Errorf("list utterances: %w", err)
	}
	defer rows.Close()

	var utterances []*models.Utterance
	for rows.Next() {
		var u models.Utterance
		if err := rows.Scan(&u.ID, &u.SceneID, &u.Position, &u.Role, &u.CharacterKey, &u.Text,
			&u.LatestAudioID, &u.DurationMs, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan utterance: %w", err)
		}
		utterances = append(utterances, &u)
	}
	return utterances, rows.Err()
}

func (s *PostgresStore) UpdateUtteranceText(ctx context.Context, id uuid.UUID, text string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE utterances SET text = $2, updated_at = NOW() WHERE id = $1`, id, text)
	if err != nil {
		return fmt.Errorf("update utterance text: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetUtteranceAudio(ctx context.Context, id uuid.UUID, audioItemID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE utterances SET latest_audio_id = $2, updated_at = NOW() WHERE id = $1`, id, audioItemID)
	if err != nil {
		return fmt.Errorf("set utterance audio: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetUtteranceDuration(ctx context.Context, id uuid.UUID, durationMs int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE utterances SET duration_ms = $2, updated_at = NOW() WHERE id = $1`, id, durationMs)
	if err != nil {
		return fmt.Errorf("set utterance duration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestAudioStatus returns the status of the utterance's linked audio item,
// or "" when no item is linked. Used by the skip-if-completed check shared by
// the bulk runner and the single-item endpoint.
func (s *PostgresStore) LatestAudioStatus(ctx context.Context, utteranceID uuid.UUID) (string, error) {
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(a.status, '')
		 FROM utterances u
		 LEFT JOIN audio_items a ON a.id = u.latest_audio_id
		 WHERE u.id = $1`, utteranceID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("latest audio status: %w", err)
	}
	return status, nil
}

// --- Audio Items ---

func (s *PostgresStore) CreateAudioItem(ctx context.Context, item *models.AudioItem) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audio_items (id, scene_id, utterance_id, provider, voice_id, format, sample_rate, source_text, status, duration_ms, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		item.ID, item.SceneID, item.UtteranceID, item.Provider, item.VoiceID, item.Format,
		item.SampleRate, item.SourceText, item.Status, item.DurationMs, item.IsActive,
		item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create audio item: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAudioItem(ctx context.Context, id uuid.UUID) (*models.AudioItem, error) {
	var a models.AudioItem
	err := s.pool.QueryRow(ctx,
		`SELECT id, scene_id, utterance_id, provider, voice_id, format, sample_rate, source_text, status, blob_key, blob_url, duration_ms, is_active, error_message, created_at, updated_at
		 FROM audio_items WHERE id = $1`, id,
	).Scan(&a.ID, &a.SceneID, &a.UtteranceID, &a.Provider, &a.VoiceID, &a.Format, &a.SampleRate,
		&a.SourceText, &a.Status, &a.BlobKey, &a.BlobURL, &a.DurationMs, &a.IsActive,
		&a.ErrorMessage, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get audio item: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) ListAudioItems(ctx context.Context, sceneID uuid.UUID) ([]*models.AudioItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, scene_id, utterance_id, provider, voice_id, format, sample_rate, source_text, status, blob_key, blob_url, duration_ms, is_active, error_message, created_at, updated_at
		 FROM audio_items WHERE scene_id = $1 ORDER BY created_at DESC`, sceneID)
	if err != nil {
		return nil, fmt.Errorf("list audio items: %w", err)
	}
	defer rows.Close()

	var items []*models.AudioItem
	for rows.Next() {
		var a models.AudioItem
		if err := rows.Scan(&a.ID, &a.SceneID, &a.UtteranceID, &a.Provider, &a.VoiceID, &a.Format,
			&a.SampleRate, &a.SourceText, &a.Status, &a.BlobKey, &a.BlobURL, &a.DurationMs,
			&a.IsActive, &a.ErrorMessage, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan audio item: %w", err)
		}
		items = append(items, &a)
	}
	return items, rows.Err()
}

// MarkAudioCompleted finalizes a successful generation: the item gets its
// blob location and duration, siblings in the same scene are deactivated and
// the item is activated, all in one transaction so the single-active-per-scene
// invariant holds even when a manual regenerate races a bulk job.
func (s *PostgresStore) MarkAudioCompleted(ctx context.Context, id uuid.UUID, blobKey, blobURL string, durationMs int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin mark audio completed: %w", err)
	}
	defer tx.Rollback(ctx)

	var sceneID uuid.UUID
	err = tx.QueryRow(ctx,
		`UPDATE audio_items
		 SET status = 'completed', blob_key = $2, blob_url = $3, duration_ms = $4, error_message = NULL, updated_at = NOW()
		 WHERE id = $1
		 RETURNING scene_id`, id, blobKey, blobURL, durationMs,
	).Scan(&sceneID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("mark audio completed: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE audio_items SET is_active = FALSE, updated_at = NOW()
		 WHERE scene_id = $1 AND id <> $2 AND is_active`, sceneID, id)
	if err != nil {
		return fmt.Errorf("deactivate sibling audio: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE audio_items SET is_active = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("activate audio item: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit mark audio completed: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkAudioFailed(ctx context.Context, id uuid.UUID, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE audio_items SET status = 'failed', error_message = $2, updated_at = NOW() WHERE id = $1`,
		id, message)
	if err != nil {
		return fmt.Errorf("mark audio failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
