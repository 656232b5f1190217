package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the Storycast server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Blob     BlobConfig
	TTS      TTSConfig
	Bulk     BulkConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type BlobConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

type TTSConfig struct {
	RequestTimeout time.Duration
	Google         GoogleTTSConfig
	ElevenLabs     ElevenLabsConfig
	Fish           FishConfig
}

type GoogleTTSConfig struct {
	APIKey string
}

type ElevenLabsConfig struct {
	APIKey string
}

type FishConfig struct {
	APIKey string
}

// BulkConfig collects the tunables of the audio generation pipeline. These
// were historically hard-coded at their call sites; they live here so one
// deployment can narrow batch width or raise the duration floor without a
// code change.
type BulkConfig struct {
	BatchWidth          int
	WorkerConcurrency   int
	ErrorDetailCap      int
	BulkDurationFloor   time.Duration
	SingleDurationFloor time.Duration
	AssumedBitrateKbps  int
	FallbackProvider    string
	FallbackVoiceID     string
	HistoryLimitMax     int
}

var validProviders = map[string]bool{
	"google":     true,
	"elevenlabs": true,
	"fish":       true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
// Provider API keys are deliberately not required here: a missing credential fails the
// individual synthesis call, not server startup.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("STORYCAST_PORT", 8080),
			Env:  envString("STORYCAST_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Blob: BlobConfig{
			Endpoint:      os.Getenv("BLOB_ENDPOINT"),
			AccessKey:     os.Getenv("BLOB_ACCESS_KEY"),
			SecretKey:     os.Getenv("BLOB_SECRET_KEY"),
			Bucket:        envString("BLOB_BUCKET", "storycast-audio"),
			UseSSL:        envBool("BLOB_USE_SSL", false),
			PublicBaseURL: os.Getenv("BLOB_PUBLIC_BASE_URL"),
		},
		TTS: TTSConfig{
			RequestTimeout: envDurationSecs("TTS_REQUEST_TIMEOUT_SECS", 30*time.Second),
			Google: GoogleTTSConfig{
				APIKey: os.Getenv("GOOGLE_TTS_API_KEY"),
			},
			ElevenLabs: ElevenLabsConfig{
				APIKey: os.Getenv("ELEVENLABS_API_KEY"),
			},
			Fish: FishConfig{
				APIKey: os.Getenv("FISH_AUDIO_API_KEY"),
			},
		},
		Bulk: BulkConfig{
			BatchWidth:          envInt("BULK_BATCH_WIDTH", 2),
			WorkerConcurrency:   envInt("BULK_WORKER_CONCURRENCY", 4),
			ErrorDetailCap:      envInt("BULK_ERROR_DETAIL_CAP", 50),
			BulkDurationFloor:   envDurationMs("BULK_DURATION_FLOOR_MS", time.Second),
			SingleDurationFloor: envDurationMs("SINGLE_DURATION_FLOOR_MS", 500*time.Millisecond),
			AssumedBitrateKbps:  envInt("AUDIO_ASSUMED_BITRATE_KBPS", 128),
			FallbackProvider:    envString("TTS_FALLBACK_PROVIDER", "google"),
			FallbackVoiceID:     envString("TTS_FALLBACK_VOICE_ID", "ja-JP-Neural2-B"),
			HistoryLimitMax:     envInt("BULK_HISTORY_LIMIT_MAX", 50),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Blob.Endpoint == "" {
		return fmt.Errorf("BLOB_ENDPOINT is required")
	}
	if c.Blob.AccessKey == "" || c.Blob.SecretKey == "" {
		return fmt.Errorf("BLOB_ACCESS_KEY and BLOB_SECRET_KEY are required")
	}
	if c.Blob.Bucket == "" {
		return fmt.Errorf("BLOB_BUCKET must not be empty")
	}

	if c.Bulk.BatchWidth < 1 {
		return fmt.Errorf("BULK_BATCH_WIDTH must be at least 1, got %d", c.Bulk.BatchWidth)
	}
	if c.Bulk.WorkerConcurrency < 1 {
		return fmt.Errorf("BULK_WORKER_CONCURRENCY must be at least 1, got %d", c.Bulk.WorkerConcurrency)
	}
	if c.Bulk.ErrorDetailCap < 1 {
		return fmt.Errorf("BULK_ERROR_DETAIL_CAP must be at least 1, got %d", c.Bulk.ErrorDetailCap)
	}
	if c.Bulk.BulkDurationFloor < 0 || c.Bulk.SingleDurationFloor < 0 {
		return fmt.Errorf("duration floors must not be negative")
	}
	if c.Bulk.AssumedBitrateKbps < 1 {
		return fmt.Errorf("AUDIO_ASSUMED_BITRATE_KBPS must be positive, got %d", c.Bulk.AssumedBitrateKbps)
	}

	if !validProviders[c.Bulk.FallbackProvider] {
		return fmt.Errorf("TTS_FALLBACK_PROVIDER must be one of google, elevenlabs, fish; got %q", c.Bulk.FallbackProvider)
	}
	if c.Bulk.FallbackVoiceID == "" {
		return fmt.Errorf("TTS_FALLBACK_VOICE_ID must not be empty")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

func envDurationMs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(ms) * time.Millisecond
}
