package config

import (
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds Vanguard configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Limits     LimitsConfig     `yaml:"limits"`
	Budgets    BudgetsConfig    `yaml:"budgets"`
	Tiers      TiersConfig      `yaml:"tiers"`
	Cache      CacheConfig      `yaml:"cache"`
	Policy     PolicyConfig     `yaml:"policy"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Encoder    EncoderConfig    `yaml:"encoder"`
	Reasoner   ReasonerConfig   `yaml:"reasoner"`
	Sinks      SinksConfig      `yaml:"sinks"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"` // HTTP listen address, e.g. ":8080"
}

// LimitsConfig bounds how much of an untrusted payload each stage may see.
type LimitsConfig struct {
	MaxRawBytes int `yaml:"max_raw_bytes"` // inputs larger than this are blocked outright
	WindowBytes int `yaml:"window_bytes"`  // prefix inspected by the pathological-input heuristics
	PatternCap  int `yaml:"pattern_cap"`   // bytes of kept text visible to the pattern stage
	VectorCap   int `yaml:"vector_cap"`    // bytes of kept text visible to the exemplar stage
}

// BudgetsConfig holds per-stage and total wall-clock budgets in milliseconds.
type BudgetsConfig struct {
	TotalSoftMs int `yaml:"total_soft_ms"`
	TotalHardMs int `yaml:"total_hard_ms"`
	PatternMs   int `yaml:"pattern_ms"` // per-pattern matcher budget
	EncodeMs    int `yaml:"encode_ms"`  // embedding encode budget
	ReasonMs    int `yaml:"reason_ms"`  // reasoner call budget
}

type TiersConfig struct {
	Tier2Enabled  bool `yaml:"tier2_enabled"`
	Tier3Enabled  bool `yaml:"tier3_enabled"`
	Tier2Inflight int  `yaml:"tier2_inflight"` // concurrent encode permits
	Tier3Inflight int  `yaml:"tier3_inflight"` // concurrent reasoner permits
}

type CacheConfig struct {
	DecisionSize int `yaml:"decision_size"`
	EmbedSize    int `yaml:"embed_size"`
}

type PolicyConfig struct {
	Path  string `yaml:"path"`  // policy YAML; empty means built-in defaults only
	Watch bool   `yaml:"watch"` // reload automatically when the file changes
}

// ThresholdsConfig tunes the confidence bands of the router and tier 2.
// The tier-3 escalation band is [escalation_low, tier2_certain).
type ThresholdsConfig struct {
	Security      float64 `yaml:"security"`       // tier-2 threshold for security classes
	Content       float64 `yaml:"content"`        // tier-2 threshold for content classes
	Tier2Certain  float64 `yaml:"tier2_certain"`  // tier-2 score that terminates routing
	EscalationLow float64 `yaml:"escalation_low"` // bottom of the tier-3 escalation band
	GrayLow       float64 `yaml:"gray_low"`       // bottom of the tier-1 gray band
	GrayHigh      float64 `yaml:"gray_high"`      // top of the tier-1 gray band
}

type EncoderConfig struct {
	Type      string `yaml:"type"`       // onnx | openai | fake
	BundleDir string `yaml:"bundle_dir"` // onnx: directory with model + tokenizer assets
	SeqLen    int    `yaml:"seq_len"`    // onnx: tokenizer sequence length
	Model     string `yaml:"model"`      // openai: embedding model name
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type ReasonerConfig struct {
	Type      string `yaml:"type"` // openai | fake | none
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type SinksConfig struct {
	Stdout         bool          `yaml:"stdout"`
	FilePath       string        `yaml:"file_path"`
	FileMaxBytes   int64         `yaml:"file_max_bytes"`  // audit file rotation cap; 0 means the built-in default
	Webhook        WebhookConfig `yaml:"webhook"`
	QueueSize      int           `yaml:"queue_size"`
	Workers        int           `yaml:"workers"`
	ActionableOnly bool          `yaml:"actionable_only"` // record only warn/block verdicts
}

type WebhookConfig struct {
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
	TimeoutMs int               `yaml:"timeout_ms"`
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"` // grpc | http
}

type LoggingConfig struct {
	PreviewLevel string `yaml:"preview_level"` // metadata | redacted | full
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns a default config and no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			applyDefaults(cfg)
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}

	if cfg.Limits.MaxRawBytes <= 0 {
		cfg.Limits.MaxRawBytes = 10000
	}
	if cfg.Limits.WindowBytes <= 0 {
		cfg.Limits.WindowBytes = 500
	}
	if cfg.Limits.PatternCap <= 0 {
		cfg.Limits.PatternCap = 500
	}
	if cfg.Limits.VectorCap <= 0 {
		cfg.Limits.VectorCap = 1000
	}

	if cfg.Budgets.TotalSoftMs <= 0 {
		cfg.Budgets.TotalSoftMs = 5000
	}
	if cfg.Budgets.TotalHardMs <= 0 {
		cfg.Budgets.TotalHardMs = 15000
	}
	if cfg.Budgets.PatternMs <= 0 {
		cfg.Budgets.PatternMs = 500
	}
	if cfg.Budgets.EncodeMs <= 0 {
		cfg.Budgets.EncodeMs = 3000
	}
	if cfg.Budgets.ReasonMs <= 0 {
		cfg.Budgets.ReasonMs = 15000
	}

	if cfg.Tiers.Tier2Inflight <= 0 {
		cfg.Tiers.Tier2Inflight = 2 * runtime.GOMAXPROCS(0)
	}
	if cfg.Tiers.Tier3Inflight <= 0 {
		cfg.Tiers.Tier3Inflight = 4
	}

	if cfg.Cache.DecisionSize <= 0 {
		cfg.Cache.DecisionSize = 10000
	}
	if cfg.Cache.EmbedSize <= 0 {
		cfg.Cache.EmbedSize = 10000
	}

	if cfg.Thresholds.Security <= 0 {
		cfg.Thresholds.Security = 0.65
	}
	if cfg.Thresholds.Content <= 0 {
		cfg.Thresholds.Content = 0.70
	}
	if cfg.Thresholds.Tier2Certain <= 0 {
		cfg.Thresholds.Tier2Certain = 0.78
	}
	if cfg.Thresholds.EscalationLow <= 0 {
		cfg.Thresholds.EscalationLow = 0.60
	}
	if cfg.Thresholds.GrayLow <= 0 {
		cfg.Thresholds.GrayLow = 0.30
	}
	if cfg.Thresholds.GrayHigh <= 0 {
		cfg.Thresholds.GrayHigh = 0.85
	}

	if cfg.Encoder.Type == "" {
		cfg.Encoder.Type = "fake"
	}
	if cfg.Encoder.SeqLen <= 0 {
		cfg.Encoder.SeqLen = 256
	}
	if cfg.Encoder.Model == "" {
		cfg.Encoder.Model = "text-embedding-3-small"
	}
	if cfg.Encoder.APIKeyEnv == "" {
		cfg.Encoder.APIKeyEnv = "OPENAI_API_KEY"
	}

	if cfg.Reasoner.Type == "" {
		cfg.Reasoner.Type = "none"
	}
	if cfg.Reasoner.Model == "" {
		cfg.Reasoner.Model = "gpt-4o-mini"
	}
	if cfg.Reasoner.APIKeyEnv == "" {
		cfg.Reasoner.APIKeyEnv = "OPENAI_API_KEY"
	}

	if cfg.Sinks.QueueSize <= 0 {
		cfg.Sinks.QueueSize = 1000
	}
	if cfg.Sinks.Workers <= 0 {
		cfg.Sinks.Workers = 1
	}
	if cfg.Sinks.Webhook.TimeoutMs <= 0 {
		cfg.Sinks.Webhook.TimeoutMs = 2000
	}

	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}

	if cfg.Logging.PreviewLevel == "" {
		cfg.Logging.PreviewLevel = "metadata"
	}
}

// applyEnvOverrides lets deployments tweak the hot knobs without touching the
// config file. Only positive integers are accepted; anything else keeps the
// file/default value.
func applyEnvOverrides(cfg *Config) {
	if v, ok := envInt("VANGUARD_MAX_RAW_BYTES"); ok {
		cfg.Limits.MaxRawBytes = v
	}
	if v, ok := envInt("VANGUARD_PATTERN_CAP"); ok {
		cfg.Limits.PatternCap = v
	}
	if v, ok := envInt("VANGUARD_VECTOR_CAP"); ok {
		cfg.Limits.VectorCap = v
	}
	if v, ok := envInt("VANGUARD_TOTAL_SOFT_MS"); ok {
		cfg.Budgets.TotalSoftMs = v
	}
	if v, ok := envInt("VANGUARD_TOTAL_HARD_MS"); ok {
		cfg.Budgets.TotalHardMs = v
	}
	if v, ok := envInt("VANGUARD_DECISION_CACHE_SIZE"); ok {
		cfg.Cache.DecisionSize = v
	}
	if v := os.Getenv("VANGUARD_POLICY_PATH"); v != "" {
		cfg.Policy.Path = v
	}
}

func envInt(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
