package config

import (
	"fmt"
	"time"
)

type Config struct {
	Env        string
	ListenAddr string

	DatabaseURL string
	RedisURL    string
	MetricsAddr string

	DefaultTranscribeLanguage  string
	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	GoogleCloudSpeechModel     string

	InferenceBaseURL   string
	InferenceAPIKey    string
	InferenceModel     string
	InferenceMaxTokens int

	DiscordToken           string
	DiscordNotifyChannelID string
	TaskPlatformURL        string
	TaskPlatformToken      string
	SummaryWebhookURL      string

	MinFragmentChars    int
	DuplicateSimilarity float64
	RecentFragmentCap   int

	BatchTokenBudget    int
	BatchTriggerTokens  int
	BatchMaxAge         time.Duration
	BatchTickInterval   time.Duration
	BatchSliceOverlap   int
	SessionMaxIdle      time.Duration
	SweepInterval       time.Duration
	ExternalCallTimeout time.Duration
	WorkerCount         int

	DispatchMaxRetries     int
	DispatchInitialBackoff time.Duration
	DispatchMaxBackoff     time.Duration
	ReconcileInterval      time.Duration
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.MinFragmentChars <= 0 {
		return fmt.Errorf("MIN_FRAGMENT_CHARS must be positive, got %d", c.MinFragmentChars)
	}
	if c.DuplicateSimilarity <= 0 || c.DuplicateSimilarity > 1 {
		return fmt.Errorf("DUPLICATE_SIMILARITY must be in (0, 1], got %g", c.DuplicateSimilarity)
	}
	if c.RecentFragmentCap <= 0 {
		return fmt.Errorf("RECENT_FRAGMENT_CAP must be positive, got %d", c.RecentFragmentCap)
	}
	if c.BatchTokenBudget <= 0 {
		return fmt.Errorf("BATCH_TOKEN_BUDGET must be positive, got %d", c.BatchTokenBudget)
	}
	if c.BatchTriggerTokens <= 0 {
		return fmt.Errorf("BATCH_TRIGGER_TOKENS must be positive, got %d", c.BatchTriggerTokens)
	}
	if c.BatchSliceOverlap < 0 || c.BatchSliceOverlap >= c.BatchTokenBudget {
		return fmt.Errorf("BATCH_SLICE_OVERLAP must be non-negative and below BATCH_TOKEN_BUDGET, got %d", c.BatchSliceOverlap)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("WORKER_COUNT must be positive, got %d", c.WorkerCount)
	}
	if c.DispatchMaxRetries < 0 {
		return fmt.Errorf("DISPATCH_MAX_RETRIES must be non-negative, got %d", c.DispatchMaxRetries)
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"BATCH_MAX_AGE", c.BatchMaxAge},
		{"BATCH_TICK_INTERVAL", c.BatchTickInterval},
		{"SESSION_MAX_IDLE", c.SessionMaxIdle},
		{"SWEEP_INTERVAL", c.SweepInterval},
		{"EXTERNAL_CALL_TIMEOUT", c.ExternalCallTimeout},
		{"DISPATCH_INITIAL_BACKOFF", c.DispatchInitialBackoff},
		{"DISPATCH_MAX_BACKOFF", c.DispatchMaxBackoff},
		{"RECONCILE_INTERVAL", c.ReconcileInterval},
	} {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	if c.DiscordToken != "" && c.DiscordNotifyChannelID == "" {
		return fmt.Errorf("DISCORD_NOTIFY_CHANNEL_ID is required when DISCORD_TOKEN is set")
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "LISTEN_ADDR", value: c.ListenAddr},
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "DEFAULT_TRANSCRIBE_LANGUAGE", value: c.DefaultTranscribeLanguage},
		{name: "GOOGLE_CLOUD_PROJECT_ID", value: c.GoogleCloudProjectID},
		{name: "GOOGLE_CLOUD_CREDENTIALS_JSON", value: c.GoogleCloudCredentialsJSON},
		{name: "INFERENCE_BASE_URL", value: c.InferenceBaseURL},
		{name: "INFERENCE_MODEL", value: c.InferenceModel},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// HasDispatchTargets reports whether at least one external platform is
// configured. Artifacts produced while this is false go to the pending queue.
func (c *Config) HasDispatchTargets() bool {
	return c.DiscordToken != "" || c.TaskPlatformURL != "" || c.SummaryWebhookURL != ""
}
