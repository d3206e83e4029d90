package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/almcoach/internal/anthropic"
	"github.com/MikeSquared-Agency/almcoach/internal/api"
	"github.com/MikeSquared-Agency/almcoach/internal/config"
	"github.com/MikeSquared-Agency/almcoach/internal/detect"
	"github.com/MikeSquared-Agency/almcoach/internal/events"
	"github.com/MikeSquared-Agency/almcoach/internal/hermes"
	"github.com/MikeSquared-Agency/almcoach/internal/llm"
	"github.com/MikeSquared-Agency/almcoach/internal/market"
	"github.com/MikeSquared-Agency/almcoach/internal/metrics"
	"github.com/MikeSquared-Agency/almcoach/internal/openai"
	"github.com/MikeSquared-Agency/almcoach/internal/processor"
	"github.com/MikeSquared-Agency/almcoach/internal/qualify"
	"github.com/MikeSquared-Agency/almcoach/internal/ratelimit"
	"github.com/MikeSquared-Agency/almcoach/internal/replay"
	"github.com/MikeSquared-Agency/almcoach/internal/scripts"
	"github.com/MikeSquared-Agency/almcoach/internal/session"
	"github.com/MikeSquared-Agency/almcoach/internal/slack"
	"github.com/MikeSquared-Agency/almcoach/internal/store"
)

func main() {
	cfg := config.Load()

	if len(os.Args) > 1 && os.Args[1] == "replay" {
		// stdout carries the replay transcript
		setupLogging(cfg.LogLevel, os.Stderr)
		os.Exit(runReplay(cfg, os.Args[2:]))
	}
	setupLogging(cfg.LogLevel, os.Stdout)
	serve(cfg)
}

func serve(cfg config.Config) {
	slog.Info("almcoach starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	sinks := []events.NamedSink{{Name: "log", Sink: events.LogSink{Logger: slog.Default()}}}
	deps := processor.Deps{Metrics: m, Logger: slog.Default()}

	// Database (optional: events and call outcomes are persisted when set)
	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			slog.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, events.NamedSink{Name: "postgres", Sink: db})
		deps.Calls = db
		slog.Info("database connected")
	} else {
		slog.Warn("DATABASE_URL not set, call events will not be persisted")
	}

	// NATS/Hermes (optional)
	var hermesClient *hermes.Client
	if cfg.NatsEnabled {
		var err error
		hermesClient, err = hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer hermesClient.Close()
		sinks = append(sinks, events.NamedSink{Name: "nats", Sink: hermesClient})
		deps.Publisher = hermesClient
		slog.Info("NATS connected", "url", cfg.NatsURL)
	}

	// Market insights, cached in Redis when configured
	var cache market.Cache = market.NewMemoryCache()
	if cfg.RedisURL != "" {
		rc, err := market.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			slog.Warn("redis unavailable, using in-memory market cache", "error", err)
		} else {
			defer rc.Close()
			cache = market.NewRedisCache(rc)
			slog.Info("redis market cache ready")
		}
	}
	deps.Market = market.NewCachedProvider(market.StaticProvider{}, cache, market.DefaultTTL, slog.Default())

	// Slack poster (optional: no end-of-call summaries without it)
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		deps.Slack = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
		slog.Info("slack poster ready", "channel", cfg.SlackChannel)
	}

	deps.Limiter = ratelimit.New(ratelimit.Config{Requests: cfg.RateLimitRequests, Window: cfg.RateLimitWindow})
	deps.Events = events.NewFanout(m, slog.Default(), sinks...)

	proc, err := buildProcessor(cfg, deps)
	if err != nil {
		slog.Error("failed to build processor", "error", err)
		os.Exit(1)
	}

	if hermesClient != nil {
		if err := hermesClient.Subscribe(hermes.SubjectUtterance, proc.HandleTransportUtterance); err != nil {
			slog.Error("failed to subscribe to utterances", "error", err)
			os.Exit(1)
		}
		if err := hermesClient.Publish("almcoach.agent.registered", map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Port,
		}); err != nil {
			slog.Warn("failed to publish registration", "error", err)
		}
	}

	// HTTP API
	srv := api.NewServer(cfg.Port, cfg.APIToken, proc, m, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("almcoach ready", "port", cfg.Port, "status", proc.Status())

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("almcoach stopped")
}

// buildProcessor fills in the script-driven collaborators and the model
// clients selected by cfg.
func buildProcessor(cfg config.Config, deps processor.Deps) (*processor.Processor, error) {
	lib, err := scripts.Load(cfg.ScriptsPath)
	if err != nil {
		return nil, err
	}

	questions := make(map[detect.Category]string, len(lib.Qualification))
	for k, v := range lib.Qualification {
		questions[detect.Category(k)] = v
	}

	deps.Registry = session.NewRegistry()
	deps.Library = lib
	deps.Tracker = qualify.NewTracker(questions)
	deps.Detector = detect.New(detect.Options{AvoidPhrases: lib.AvoidPhrases}, deps.Logger)

	if cfg.LLMConfigured() {
		var c llm.Completer
		switch cfg.LLMProvider {
		case "anthropic":
			c = anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
			slog.Info("anthropic client ready", "model", cfg.AnthropicModel)
		default:
			c = openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAITranscribeModel, cfg.OpenAIBaseURL)
			slog.Info("openai client ready", "model", cfg.OpenAIModel)
		}
		deps.Completer = llm.NewRetrying(c, cfg.LLMMaxAttempts, cfg.LLMTimeout, deps.Logger)
	} else {
		slog.Warn("LLM not configured, serving template suggestions only", "provider", cfg.LLMProvider)
	}
	if cfg.OpenAIAPIKey != "" && deps.Transcriber == nil {
		deps.Transcriber = openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAITranscribeModel, cfg.OpenAIBaseURL)
	}

	return processor.New(deps, processor.Options{
		MaxSuggestions:  cfg.MaxSuggestions,
		AnalysisEnabled: cfg.AnalysisEnabled,
	}), nil
}

func runReplay(cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	agent := fs.String("agent", "", "agent name for script placeholders")
	brokerage := fs.String("brokerage", "", "brokerage name")
	lead := fs.String("lead", "", "lead name")
	reportPath := fs.String("report", "", "write a JSON report per transcript to this directory")
	offline := fs.Bool("offline", true, "skip model calls and use template suggestions only")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: almcoach replay [flags] <transcript>...")
		return 2
	}
	if *offline {
		cfg.OpenAIAPIKey, cfg.AnthropicAPIKey = "", ""
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	proc, err := buildProcessor(cfg, processor.Deps{Logger: slog.Default()})
	if err != nil {
		slog.Error("failed to build processor", "error", err)
		return 1
	}

	profile := session.Profile{AgentName: *agent, Brokerage: *brokerage, LeadName: *lead}
	runner := replay.NewRunner(proc, os.Stdout, slog.Default())
	code := 0
	for _, path := range fs.Args() {
		report, err := runner.Run(ctx, path, profile)
		if err != nil {
			slog.Error("replay failed", "path", path, "error", err)
			code = 1
			if ctx.Err() != nil {
				return code
			}
			continue
		}
		if *reportPath != "" {
			out := filepath.Join(*reportPath, report.CallID+".json")
			if err := report.Save(out); err != nil {
				slog.Warn("failed to save report", "path", out, "error", err)
			}
		}
	}
	return code
}

func setupLogging(level string, w io.Writer) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
