package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	return cfg
}

func TestValidateDefaultsPass(t *testing.T) {
	if err := Validate(validConfig(t)); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"blank addr", func(c *Config) { c.Server.Addr = " " }, "server.addr"},
		{"window over max", func(c *Config) { c.Limits.WindowBytes = 20000 }, "window_bytes"},
		{"soft over hard", func(c *Config) { c.Budgets.TotalSoftMs = 20000 }, "total_soft_ms"},
		{"threshold out of range", func(c *Config) { c.Thresholds.Security = 1.2 }, "thresholds.security"},
		{"escalation band inverted", func(c *Config) { c.Thresholds.EscalationLow = 0.80 }, "escalation_low"},
		{"gray band inverted", func(c *Config) { c.Thresholds.GrayLow = 0.90 }, "gray_low"},
		{"onnx without bundle", func(c *Config) { c.Encoder.Type = "onnx" }, "bundle_dir"},
		{"unknown encoder", func(c *Config) { c.Encoder.Type = "magic" }, "encoder.type"},
		{"unknown reasoner", func(c *Config) { c.Reasoner.Type = "magic" }, "reasoner.type"},
		{"tier3 without reasoner", func(c *Config) { c.Tiers.Tier3Enabled = true }, "tier3"},
		{"bad webhook", func(c *Config) { c.Sinks.Webhook.URL = "not a url" }, "webhook"},
		{"bad preview level", func(c *Config) { c.Logging.PreviewLevel = "everything" }, "preview_level"},
		{"telemetry without endpoint", func(c *Config) { c.Telemetry.Enabled = true }, "telemetry.endpoint"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			tc.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q should mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateNilConfig(t *testing.T) {
	if err := Validate(nil); err == nil {
		t.Fatal("nil config must fail")
	}
}
