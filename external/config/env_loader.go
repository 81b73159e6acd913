package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/scribelab/scribed/internal/config"
)

type envConfig struct {
	Env        string `env:"ENV" envDefault:"production"`
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8090"`

	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL"`
	MetricsAddr string `env:"METRICS_ADDR"`

	DefaultTranscribeLanguage  string `env:"DEFAULT_TRANSCRIBE_LANGUAGE" envDefault:"en-US"`
	GoogleCloudProjectID       string `env:"GOOGLE_CLOUD_PROJECT_ID,required"`
	GoogleCloudCredentialsJSON string `env:"GOOGLE_CLOUD_CREDENTIALS_JSON,required"`
	GoogleCloudSpeechLocation  string `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"global"`
	GoogleCloudSpeechModel     string `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"chirp_3"`

	InferenceBaseURL   string `env:"INFERENCE_BASE_URL,required"`
	InferenceAPIKey    string `env:"INFERENCE_API_KEY"`
	InferenceModel     string `env:"INFERENCE_MODEL,required"`
	InferenceMaxTokens int    `env:"INFERENCE_MAX_TOKENS" envDefault:"4096"`

	DiscordToken           string `env:"DISCORD_TOKEN"`
	DiscordNotifyChannelID string `env:"DISCORD_NOTIFY_CHANNEL_ID"`
	TaskPlatformURL        string `env:"TASK_PLATFORM_URL"`
	TaskPlatformToken      string `env:"TASK_PLATFORM_TOKEN"`
	SummaryWebhookURL      string `env:"SUMMARY_WEBHOOK_URL"`

	MinFragmentChars    int     `env:"MIN_FRAGMENT_CHARS" envDefault:"3"`
	DuplicateSimilarity float64 `env:"DUPLICATE_SIMILARITY" envDefault:"0.9"`
	RecentFragmentCap   int     `env:"RECENT_FRAGMENT_CAP" envDefault:"50"`

	BatchTokenBudget    int           `env:"BATCH_TOKEN_BUDGET" envDefault:"2000"`
	BatchTriggerTokens  int           `env:"BATCH_TRIGGER_TOKENS" envDefault:"600"`
	BatchMaxAge         time.Duration `env:"BATCH_MAX_AGE" envDefault:"45s"`
	BatchTickInterval   time.Duration `env:"BATCH_TICK_INTERVAL" envDefault:"5s"`
	BatchSliceOverlap   int           `env:"BATCH_SLICE_OVERLAP" envDefault:"60"`
	SessionMaxIdle      time.Duration `env:"SESSION_MAX_IDLE" envDefault:"30m"`
	SweepInterval       time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	ExternalCallTimeout time.Duration `env:"EXTERNAL_CALL_TIMEOUT" envDefault:"30s"`
	WorkerCount         int           `env:"WORKER_COUNT" envDefault:"8"`

	DispatchMaxRetries     int           `env:"DISPATCH_MAX_RETRIES" envDefault:"3"`
	DispatchInitialBackoff time.Duration `env:"DISPATCH_INITIAL_BACKOFF" envDefault:"1s"`
	DispatchMaxBackoff     time.Duration `env:"DISPATCH_MAX_BACKOFF" envDefault:"1m"`
	ReconcileInterval      time.Duration `env:"RECONCILE_INTERVAL" envDefault:"5m"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                        raw.Env,
		ListenAddr:                 raw.ListenAddr,
		DatabaseURL:                raw.DatabaseURL,
		RedisURL:                   raw.RedisURL,
		MetricsAddr:                raw.MetricsAddr,
		DefaultTranscribeLanguage:  raw.DefaultTranscribeLanguage,
		GoogleCloudProjectID:       raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:  raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModel:     raw.GoogleCloudSpeechModel,
		InferenceBaseURL:           raw.InferenceBaseURL,
		InferenceAPIKey:            raw.InferenceAPIKey,
		InferenceModel:             raw.InferenceModel,
		InferenceMaxTokens:         raw.InferenceMaxTokens,
		DiscordToken:               raw.DiscordToken,
		DiscordNotifyChannelID:     raw.DiscordNotifyChannelID,
		TaskPlatformURL:            raw.TaskPlatformURL,
		TaskPlatformToken:          raw.TaskPlatformToken,
		SummaryWebhookURL:          raw.SummaryWebhookURL,
		MinFragmentChars:           raw.MinFragmentChars,
		DuplicateSimilarity:        raw.DuplicateSimilarity,
		RecentFragmentCap:          raw.RecentFragmentCap,
		BatchTokenBudget:           raw.BatchTokenBudget,
		BatchTriggerTokens:         raw.BatchTriggerTokens,
		BatchMaxAge:                raw.BatchMaxAge,
		BatchTickInterval:          raw.BatchTickInterval,
		BatchSliceOverlap:          raw.BatchSliceOverlap,
		SessionMaxIdle:             raw.SessionMaxIdle,
		SweepInterval:              raw.SweepInterval,
		ExternalCallTimeout:        raw.ExternalCallTimeout,
		WorkerCount:                raw.WorkerCount,
		DispatchMaxRetries:         raw.DispatchMaxRetries,
		DispatchInitialBackoff:     raw.DispatchInitialBackoff,
		DispatchMaxBackoff:         raw.DispatchMaxBackoff,
		ReconcileInterval:          raw.ReconcileInterval,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
