package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vanguard-ai/vanguard/internal/cache"
	"github.com/vanguard-ai/vanguard/internal/config"
	"github.com/vanguard-ai/vanguard/internal/encoder"
	"github.com/vanguard-ai/vanguard/internal/exemplar"
	"github.com/vanguard-ai/vanguard/internal/guard"
	"github.com/vanguard-ai/vanguard/internal/metrics"
	"github.com/vanguard-ai/vanguard/internal/pipeline"
	"github.com/vanguard-ai/vanguard/internal/reason"
	"github.com/vanguard-ai/vanguard/internal/router"
	"github.com/vanguard-ai/vanguard/internal/server"
	"github.com/vanguard-ai/vanguard/internal/sink"
	"github.com/vanguard-ai/vanguard/internal/snapshot"
	"github.com/vanguard-ai/vanguard/internal/telemetry"
)

func main() {
	addrFlag := flag.String("addr", "", "HTTP listen address (overrides config)")
	configPath := flag.String("config", "vanguard.yaml", "Path to Vanguard config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	addr := cfg.Server.Addr
	if *addrFlag != "" {
		addr = *addrFlag
	}

	enc, err := buildEncoder(cfg)
	if err != nil {
		log.Fatalf("failed to build encoder: %v", err)
	}
	memoized := exemplar.NewMemoized(enc, cfg.Cache.EmbedSize)

	store, err := snapshot.NewStore(context.Background(), snapshot.Options{
		PolicyPath:        cfg.Policy.Path,
		SecurityThreshold: cfg.Thresholds.Security,
		ContentThreshold:  cfg.Thresholds.Content,
		Tier2Enabled:      cfg.Tiers.Tier2Enabled,
		Tier3Enabled:      cfg.Tiers.Tier3Enabled,
	}, memoized)
	if err != nil {
		log.Fatalf("failed to build initial snapshot: %v", err)
	}

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	if cfg.Policy.Watch {
		stop, err := store.Watch(watchCtx)
		if err != nil {
			log.Printf("policy watch unavailable, falling back to manual reload: %v", err)
		} else {
			defer stop()
		}
	}

	tier2 := exemplar.NewStage(memoized, cfg.Tiers.Tier2Inflight, time.Duration(cfg.Budgets.EncodeMs)*time.Millisecond)

	var tier3 *reason.Stage
	if r := buildReasoner(cfg); r != nil {
		tier3 = reason.NewStage(r, cfg.Tiers.Tier3Inflight, time.Duration(cfg.Budgets.ReasonMs)*time.Millisecond)
	}

	tel, err := telemetry.NewProvider(context.Background(), telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Protocol: cfg.Telemetry.Protocol,
		Service:  "vanguard",
		Version:  os.Getenv("VANGUARD_VERSION"),
	})
	if err != nil {
		log.Fatalf("failed to set up telemetry: %v", err)
	}

	m := metrics.New()
	observeStage := func(stage string, d time.Duration) {
		m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
		tel.RecordStage(stage, float64(d.Milliseconds()))
	}

	rt := router.New(router.Bands{
		GrayLow:       cfg.Thresholds.GrayLow,
		GrayHigh:      cfg.Thresholds.GrayHigh,
		Tier2Certain:  cfg.Thresholds.Tier2Certain,
		EscalationLow: cfg.Thresholds.EscalationLow,
	}, time.Duration(cfg.Budgets.PatternMs)*time.Millisecond, tier2, tier3, observeStage)

	emitter := buildEmitter(cfg, m)

	p := pipeline.New(store, rt, cache.NewDecision(cfg.Cache.DecisionSize), m, tel, emitter, pipeline.Options{
		Limits: guard.Limits{
			MaxRawBytes: cfg.Limits.MaxRawBytes,
			WindowBytes: cfg.Limits.WindowBytes,
			PatternCap:  cfg.Limits.PatternCap,
			VectorCap:   cfg.Limits.VectorCap,
		},
		SoftBudget:   time.Duration(cfg.Budgets.TotalSoftMs) * time.Millisecond,
		HardBudget:   time.Duration(cfg.Budgets.TotalHardMs) * time.Millisecond,
		PreviewLevel: cfg.Logging.PreviewLevel,
	})

	srv := server.New(p, m)

	// Drain sinks and flush telemetry on SIGINT/SIGTERM.
	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigC
		log.Printf("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if emitter != nil {
			emitter.Close(shutdownCtx)
		}
		tel.Shutdown(shutdownCtx)
		os.Exit(0)
	}()

	log.Printf("Starting Vanguard on %s...", addr)
	if err := srv.Start(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func buildEncoder(cfg *config.Config) (exemplar.Encoder, error) {
	switch cfg.Encoder.Type {
	case "onnx":
		return encoder.LoadONNX(cfg.Encoder.BundleDir, cfg.Encoder.SeqLen)
	case "openai":
		return encoder.NewOpenAI(cfg.Encoder.BaseURL, os.Getenv(cfg.Encoder.APIKeyEnv), cfg.Encoder.Model), nil
	default:
		log.Printf("using deterministic fake encoder; tier 2 similarity is lexical, not semantic")
		return encoder.NewFake(256), nil
	}
}

func buildReasoner(cfg *config.Config) reason.Reasoner {
	switch cfg.Reasoner.Type {
	case "openai":
		return reason.NewOpenAIReasoner(cfg.Reasoner.BaseURL, os.Getenv(cfg.Reasoner.APIKeyEnv), cfg.Reasoner.Model)
	case "fake":
		return reason.NewFake(reason.Finding{Class: "none", Action: "allow", Confidence: 0.5, Rationale: "fake reasoner"})
	default:
		return nil
	}
}

func buildEmitter(cfg *config.Config, m *metrics.Metrics) *sink.Emitter {
	var sinks []sink.Sink
	if cfg.Sinks.Stdout {
		sinks = append(sinks, sink.NewStdout())
	}
	if cfg.Sinks.FilePath != "" {
		fs, err := sink.NewRotatingFileSink(cfg.Sinks.FilePath, cfg.Sinks.FileMaxBytes)
		if err != nil {
			log.Printf("file sink unavailable: %v", err)
		} else {
			sinks = append(sinks, fs)
		}
	}
	if cfg.Sinks.Webhook.URL != "" {
		ws, err := sink.NewWebhookSink(cfg.Sinks.Webhook.URL, cfg.Sinks.Webhook.Headers, time.Duration(cfg.Sinks.Webhook.TimeoutMs)*time.Millisecond)
		if err != nil {
			log.Printf("webhook sink unavailable: %v", err)
		} else {
			sinks = append(sinks, ws)
		}
	}
	if len(sinks) == 0 {
		return nil
	}
	return sink.NewEmitter(sink.EmitterConfig{
		QueueSize:      cfg.Sinks.QueueSize,
		Workers:        cfg.Sinks.Workers,
		ActionableOnly: cfg.Sinks.ActionableOnly,
	}, sinks, m)
}
