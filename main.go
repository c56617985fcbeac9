// Command clipvault is the main entrypoint for the ClipVault pipeline.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Starts background jobs: the match detection sweep, clip request /
//     monitor / delivery workers, the clip monitor backstop sweep, the
//     delivery retry sweep, and OAuth token refreshers for Riot/Epic.
//   - Exposes an HTTP server with /healthz, /readyz, /status, /metrics,
//     and the Allstar status webhook.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/oauth2"

	"github.com/joho/godotenv"

	"github.com/NebulaLumino/ClipVault/allstarapi"
	"github.com/NebulaLumino/ClipVault/clip"
	"github.com/NebulaLumino/ClipVault/config"
	"github.com/NebulaLumino/ClipVault/db"
	"github.com/NebulaLumino/ClipVault/delivery"
	"github.com/NebulaLumino/ClipVault/detect"
	"github.com/NebulaLumino/ClipVault/discord"
	"github.com/NebulaLumino/ClipVault/epicapi"
	"github.com/NebulaLumino/ClipVault/oauth"
	"github.com/NebulaLumino/ClipVault/poller"
	"github.com/NebulaLumino/ClipVault/queue"
	"github.com/NebulaLumino/ClipVault/riotapi"
	"github.com/NebulaLumino/ClipVault/server"
	"github.com/NebulaLumino/ClipVault/steamapi"
	"github.com/NebulaLumino/ClipVault/telemetry"
)

const riotTokenURL = "https://auth.riotgames.com/token"

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("clipvault", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.Migrate(database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	store := db.NewStore(database)
	jobs := queue.New(database)

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Platform API clients. A missing credential disables the matching
	// poller (it returns no data) rather than failing startup.
	steam := &steamapi.Client{APIKey: cfg.SteamAPIKey}
	riot := &riotapi.Client{APIKey: cfg.RiotAPIKey}
	epic := &epicapi.Client{ClientID: cfg.EpicClientID, ClientSecret: cfg.EpicClientSecret}
	allstar := &allstarapi.Client{APIKey: cfg.AllstarAPIKey, BaseURL: cfg.AllstarAPIURL}

	registry := poller.NewRegistry(
		&poller.CS2Poller{Steam: steam, MaxAge: cfg.MatchMaxAge},
		&poller.Dota2Poller{Steam: steam, MaxAge: cfg.MatchMaxAge},
		&poller.LoLPoller{Riot: riot, MaxAge: cfg.MatchMaxAge},
		&poller.FortnitePoller{Epic: epic},
	)

	detectSvc := &detect.Service{
		Store:            store,
		Queue:            jobs,
		Registry:         registry,
		SweepConcurrency: cfg.SweepConcurrency,
		MinPollInterval:  cfg.PollMinInterval,
	}

	filter := &clip.Filter{
		MaxClipsPerMatch: cfg.ClipCapPerMatch,
		MinMatchDuration: cfg.MinMatchDuration,
		ExcludedModes:    cfg.ExcludedGameModes,
	}
	requester := &clip.Requester{Store: store, API: allstar, Queue: jobs, MonitorDelay: cfg.MonitorInitialDelay}
	monitor := &clip.Monitor{Store: store, API: allstar, Queue: jobs, BatchSize: cfg.MonitorBatchSize}

	// Discord dispatch. Without a bot token clip delivery stays queued
	// until the service is restarted with one.
	var engine *delivery.Engine
	if err := cfg.ValidateDeliveryReady(); err != nil {
		slog.Warn("delivery disabled", slog.Any("err", err))
	} else {
		dc, err := discord.New(cfg.DiscordBotToken)
		if err != nil {
			slog.Error("discord connect failed", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := dc.Close(); err != nil {
				slog.Error("failed to close discord session", slog.Any("err", err))
			}
		}()
		engine = &delivery.Engine{Store: store, Messenger: dc}
	}

	orch := &clip.Orchestrator{
		Store:     store,
		Filter:    filter,
		Requester: requester,
		Monitor:   monitor,
		Queue:     jobs,
	}
	if engine != nil {
		orch.Delivery = engine
	}

	// Background jobs
	go detect.StartSweepJob(ctx, detectSvc, cfg.PollSweepInterval)
	go clip.StartMonitorSweepJob(ctx, monitor, cfg.MonitorSweepInterval)
	go clip.StartReconcileJob(ctx, orch, cfg.ReconcileInterval, 50)

	requestBackoff := queue.Backoff{Base: cfg.DeliveryBackoffBase, Cap: cfg.DeliveryBackoffCap, Multiplier: cfg.BackoffMultiplier}
	monitorBackoff := queue.Backoff{Base: cfg.MonitorBackoffBase, Cap: cfg.MonitorBackoffCap, Multiplier: cfg.BackoffMultiplier}
	go jobs.RunWorkers(ctx, queue.QueueClipRequest, cfg.RequestWorkers, requestBackoff, orch.HandleClipRequest)
	go jobs.RunWorkers(ctx, queue.QueueClipMonitor, cfg.MonitorWorkers, monitorBackoff, orch.HandleClipMonitor)
	if engine != nil {
		go jobs.RunWorkers(ctx, queue.QueueClipDelivery, cfg.DeliveryWorkers, requestBackoff, orch.HandleClipDelivery)
		go delivery.StartRetryJob(ctx, engine, cfg.DeliveryRetryInterval, 20)
	}

	// Requeue jobs stranded in 'running' by a previous crash.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := jobs.ReapStuck(ctx, 15*time.Minute); err != nil {
					slog.Warn("job reaper", slog.Any("err", err))
				} else if n > 0 {
					slog.Info("requeued stuck jobs", slog.Int64("count", n))
				}
			}
		}
	}()

	// Centralized OAuth token refreshers for platforms that hand out
	// user-scoped tokens.
	if cfg.RiotClientID != "" {
		oauth.StartRefresher(ctx, store, db.PlatformRiot, cfg.TokenRefreshInterval, cfg.TokenRefreshWindow,
			refreshVia(&oauth2.Config{
				ClientID:     cfg.RiotClientID,
				ClientSecret: cfg.RiotClientSecret,
				Endpoint:     oauth2.Endpoint{TokenURL: riotTokenURL},
			}))
	}
	if cfg.EpicClientID != "" {
		oauth.StartRefresher(ctx, store, db.PlatformEpic, cfg.TokenRefreshInterval, cfg.TokenRefreshWindow,
			refreshVia(&oauth2.Config{
				ClientID:     cfg.EpicClientID,
				ClientSecret: cfg.EpicClientSecret,
				Endpoint:     oauth2.Endpoint{TokenURL: epicapi.DefaultTokenURL},
			}))
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/metrics/webhooks)
	handlers := server.NewHandlers(database, store, monitor, jobs, orch)
	go func() {
		if err := server.Start(ctx, handlers, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}

// refreshVia adapts an oauth2 refresh-token exchange to the refresher's
// callback shape.
func refreshVia(oc *oauth2.Config) oauth.RefreshFunc {
	return func(rctx context.Context, refreshToken string) (string, string, time.Time, error) {
		tok, err := oc.TokenSource(rctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
		if err != nil {
			return "", "", time.Time{}, err
		}
		return tok.AccessToken, tok.RefreshToken, tok.Expiry, nil
	}
}
