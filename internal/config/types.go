package config

// Config is the whole on-disk configuration. JSON and YAML are both
// accepted; YAML is coerced to JSON before strict decoding, so unknown keys
// fail loudly in either format.
type Config struct {
	Logging LoggingConfig `json:"logging"`

	// LLM configures the generation side: a primary provider and an
	// optional secondary used as fallback on retryable exhaustion.
	LLM LLMConfig `json:"llm"`

	// Targets maps publish target names to their provider configuration.
	// Misconfigured entries are skipped at startup, not fatal.
	Targets map[string]TargetConfig `json:"targets"`

	Schedule ScheduleConfig `json:"schedule"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Server   ServerConfig   `json:"server"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ProviderConfig identifies one language-model backend. The key and base URL
// are opaque values handed to the adapter; no schema is enforced beyond
// presence checks at adapter construction.
type ProviderConfig struct {
	Kind    string `json:"kind"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
}

// LLMConfig controls generation dispatch.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Defaults (when fields are omitted/zero):
//   - timeout: "30s"
//   - retry_max: 3
//   - retry_base: "1s"
//   - retry_max_delay: "10s"
//   - outer_retries: 0 (no outer loop around primary+fallback)
type LLMConfig struct {
	Primary   ProviderConfig  `json:"primary"`
	Secondary *ProviderConfig `json:"secondary,omitempty"`

	Timeout       string `json:"timeout,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	OuterRetries  int    `json:"outer_retries,omitempty"`
}

// TargetConfig configures one publish target.
//
// Credentials are opaque key/value pairs owned by the adapter kind
// (e.g. facebook wants "page_id" and "access_token"; telegram wants
// "token" and "chat_id").
type TargetConfig struct {
	Kind        string            `json:"kind"`
	Credentials map[string]string `json:"credentials"`

	Timeout       string `json:"timeout,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
}

// ScheduleConfig controls the cron-driven publish scheduler.
type ScheduleConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"`

	// HistoryLimit caps how many publish records ListHistory returns by
	// default. 0 means the storage default.
	HistoryLimit int `json:"history_limit,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./agent_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ServerConfig controls the HTTP front-end.
//
// Metrics mounts the Prometheus endpoint on the same mux; pprof mounts the
// runtime profiler (bind to localhost unless you know better).
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8080"

	Metrics bool `json:"metrics,omitempty"`
	Pprof   bool `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
