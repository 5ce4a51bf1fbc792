// Package config loads Hox's process-wide configuration.
//
// Config is read once at startup from {repo}/.hox/config.toml and is
// never re-assigned afterward (spec §9, "Global mutable state"). A
// missing file is not an error: DefaultConfig supplies every value.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds every setting recognised by spec §6.
type Config struct {
	VCS           VCSConfig           `toml:"vcs"`
	Loop          LoopConfig          `toml:"loop"`
	Backpressure  BackpressureConfig  `toml:"backpressure"`
	ProtectedFiles []string           `toml:"protected_files"`
	Model         ModelConfig         `toml:"model"`
	OpLog         OpLogConfig         `toml:"oplog"`
	QueryCache    QueryCacheConfig    `toml:"querycache"`
	ActivityStream ActivityStreamConfig `toml:"activitystream"`
	Metadata      MetadataConfig      `toml:"metadata"`
}

// VCSConfig configures the VCS Gateway's subprocess backend.
type VCSConfig struct {
	// Binary is the VCS executable to shell out to. Default "jj".
	Binary string `toml:"binary"`
	// FeatureProbe, when true, probes for `jj op restore` availability
	// at startup and falls back to a sequence of `jj undo` calls when
	// absent (spec §9 Open Questions).
	FeatureProbe bool `toml:"feature_probe"`
	// OpTimeout bounds a single gateway operation (spec §5).
	OpTimeout time.Duration `toml:"op_timeout"`
	// RetryAttempts bounds exponential-backoff retries of Transient errors.
	RetryAttempts int `toml:"retry_attempts"`
}

// LoopConfig configures the Agent Loop Engine (C5).
type LoopConfig struct {
	MaxIterations      int     `toml:"max_iterations"`
	MaxTokens          int     `toml:"max_tokens"`
	MaxBudgetUSD       float64 `toml:"max_budget_usd"`
	BadIterationRetries int    `toml:"bad_iteration_retries"`
	ModelCallTimeout   time.Duration `toml:"model_call_timeout"`
	SubprocessTimeout  time.Duration `toml:"subprocess_timeout"`
	FreshnessWarnAtPct float64 `toml:"freshness_warn_at_pct"`
}

// BackpressureConfig configures the fast/slow check pipelines (§4.5.1).
type BackpressureConfig struct {
	FastChecks        []string           `toml:"fast_checks"`
	SlowChecks        []SlowCheck        `toml:"slow_checks"`
	Escalation        EscalationConfig   `toml:"escalation"`
	PreFix            bool               `toml:"pre_fix"`
}

// SlowCheck is one entry of backpressure.slow_checks.
type SlowCheck struct {
	Command         string `toml:"command"`
	EveryNIterations int   `toml:"every_n_iterations"`
}

// EscalationConfig configures adaptive slow-check escalation.
type EscalationConfig struct {
	FailureWindow    int `toml:"failure_window"`
	FailureThreshold int `toml:"failure_threshold"`
}

// ModelConfig selects the model and its billing rates.
type ModelConfig struct {
	Name                   string  `toml:"name"`
	PricingInputPerMTok    float64 `toml:"pricing_input_per_mtok"`
	PricingOutputPerMTok   float64 `toml:"pricing_output_per_mtok"`
	APIKeyEnvVar           string  `toml:"api_key_env_var"`
	BaseURL                string  `toml:"base_url"`
}

// OpLogConfig configures the OpLog Watcher (C4).
type OpLogConfig struct {
	PollIntervalMS int  `toml:"poll_interval_ms"`
	FastPathWatch  bool `toml:"fast_path_watch"`
	BatchSize      int  `toml:"batch_size"`
}

// QueryCacheConfig configures the reconstructible revset query cache.
type QueryCacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// ActivityStreamConfig configures the SSE activity stream the
// dashboard (out of scope) consumes.
type ActivityStreamConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
}

// MetadataConfig selects the Metadata Provider backend (§4.2).
type MetadataConfig struct {
	// Backend is "description" or "native".
	Backend string `toml:"backend"`
}

// DefaultConfig returns Hox's built-in defaults (spec §8, boundary
// behaviour 9: "On config absent, all defaults apply").
func DefaultConfig() *Config {
	return &Config{
		VCS: VCSConfig{
			Binary:        "jj",
			FeatureProbe:  true,
			OpTimeout:     30 * time.Second,
			RetryAttempts: 3,
		},
		Loop: LoopConfig{
			MaxIterations:       20,
			MaxTokens:           0, // 0 disables the token cap; no per-model default is applied
			MaxBudgetUSD:        0,
			BadIterationRetries: 2,
			ModelCallTimeout:    120 * time.Second,
			SubprocessTimeout:   60 * time.Second,
			FreshnessWarnAtPct:  0.60,
		},
		Backpressure: BackpressureConfig{
			Escalation: EscalationConfig{
				FailureWindow:    3,
				FailureThreshold: 2,
			},
		},
		ProtectedFiles: []string{
			".git/**", ".jj/**", ".env", "*.lock", "secrets/**", ".gitignore", ".jjignore",
		},
		Model: ModelConfig{
			Name:         "default",
			APIKeyEnvVar: "HOX_MODEL_API_KEY",
		},
		OpLog: OpLogConfig{
			PollIntervalMS: 200,
			FastPathWatch:  true,
			BatchSize:      50,
		},
		QueryCache: QueryCacheConfig{
			Enabled: true,
			Path:    ".hox/cache/queries.db",
		},
		ActivityStream: ActivityStreamConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:8765",
		},
		Metadata: MetadataConfig{
			Backend: "description",
		},
	}
}

// Load reads {repoRoot}/.hox/config.toml, overlaying recognised keys
// onto DefaultConfig. A missing file is not an error.
func Load(repoRoot string) (*Config, error) {
	cfg := DefaultConfig()

	path := filepath.Join(repoRoot, ".hox", "config.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PollInterval returns OpLog.PollIntervalMS as a time.Duration.
func (c *Config) PollInterval() time.Duration {
	ms := c.OpLog.PollIntervalMS
	if ms <= 0 {
		ms = 200
	}
	return time.Duration(ms) * time.Millisecond
}
