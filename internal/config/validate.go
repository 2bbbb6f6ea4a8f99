package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the loaded config for required fields and safe values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}

	if cfg.Limits.WindowBytes > cfg.Limits.MaxRawBytes {
		return fmt.Errorf("limits.window_bytes (%d) exceeds limits.max_raw_bytes (%d)", cfg.Limits.WindowBytes, cfg.Limits.MaxRawBytes)
	}
	if cfg.Budgets.TotalSoftMs > cfg.Budgets.TotalHardMs {
		return fmt.Errorf("budgets.total_soft_ms (%d) exceeds budgets.total_hard_ms (%d)", cfg.Budgets.TotalSoftMs, cfg.Budgets.TotalHardMs)
	}

	th := cfg.Thresholds
	for name, v := range map[string]float64{
		"thresholds.security":       th.Security,
		"thresholds.content":        th.Content,
		"thresholds.tier2_certain":  th.Tier2Certain,
		"thresholds.escalation_low": th.EscalationLow,
		"thresholds.gray_low":       th.GrayLow,
		"thresholds.gray_high":      th.GrayHigh,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%s must be in (0, 1], got %v", name, v)
		}
	}
	if th.EscalationLow >= th.Tier2Certain {
		return fmt.Errorf("thresholds.escalation_low (%v) must be below tier2_certain (%v)", th.EscalationLow, th.Tier2Certain)
	}
	if th.GrayLow >= th.GrayHigh {
		return fmt.Errorf("thresholds.gray_low (%v) must be below gray_high (%v)", th.GrayLow, th.GrayHigh)
	}

	switch cfg.Encoder.Type {
	case "onnx":
		if strings.TrimSpace(cfg.Encoder.BundleDir) == "" {
			return errors.New("encoder.bundle_dir must be set for encoder.type onnx")
		}
	case "openai":
		if strings.TrimSpace(cfg.Encoder.APIKeyEnv) == "" {
			return errors.New("encoder.api_key_env must be set for encoder.type openai")
		}
	case "fake":
	default:
		return fmt.Errorf("encoder.type %q is not supported (onnx | openai | fake)", cfg.Encoder.Type)
	}

	switch cfg.Reasoner.Type {
	case "openai":
		if strings.TrimSpace(cfg.Reasoner.APIKeyEnv) == "" {
			return errors.New("reasoner.api_key_env must be set for reasoner.type openai")
		}
	case "fake", "none":
	default:
		return fmt.Errorf("reasoner.type %q is not supported (openai | fake | none)", cfg.Reasoner.Type)
	}
	if cfg.Tiers.Tier3Enabled && cfg.Reasoner.Type == "none" {
		return errors.New("tiers.tier3_enabled requires a reasoner (reasoner.type openai or fake)")
	}

	if wh := cfg.Sinks.Webhook.URL; wh != "" {
		u, err := url.Parse(wh)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("sinks.webhook.url %q is not a valid http(s) URL", wh)
		}
	}

	switch cfg.Logging.PreviewLevel {
	case "metadata", "redacted", "full":
	default:
		return fmt.Errorf("logging.preview_level %q is not supported (metadata | redacted | full)", cfg.Logging.PreviewLevel)
	}

	if cfg.Telemetry.Enabled {
		if strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
			return errors.New("telemetry.endpoint must be set when telemetry is enabled")
		}
		switch strings.ToLower(cfg.Telemetry.Protocol) {
		case "grpc", "http":
		default:
			return fmt.Errorf("telemetry.protocol %q is not supported (grpc | http)", cfg.Telemetry.Protocol)
		}
	}

	return nil
}
