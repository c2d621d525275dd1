package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	specpkg "github.com/sentinelgg/sentinel/api"
	"github.com/sentinelgg/sentinel/internal/api"
	"github.com/sentinelgg/sentinel/internal/api/handler"
	"github.com/sentinelgg/sentinel/internal/auth"
	"github.com/sentinelgg/sentinel/internal/command"
	"github.com/sentinelgg/sentinel/internal/config"
	"github.com/sentinelgg/sentinel/internal/database"
	"github.com/sentinelgg/sentinel/internal/discord"
	"github.com/sentinelgg/sentinel/internal/gate"
	"github.com/sentinelgg/sentinel/internal/link"
	"github.com/sentinelgg/sentinel/internal/membership"
	"github.com/sentinelgg/sentinel/internal/metrics"
	"github.com/sentinelgg/sentinel/internal/reconciler"
	"github.com/sentinelgg/sentinel/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	if err := run(cfg); err != nil {
		slog.Error("sentinel stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped gracefully")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	verifier, err := auth.NewKeyVerifier(cfg.BridgeKeyHash)
	if err != nil {
		return err
	}

	links, storePinger, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sessions, err := session.New(ctx, cfg.RedisURL, cfg.SessionTTL)
	if err != nil {
		return fmt.Errorf("connecting to session directory: %w", err)
	}
	defer func() {
		if err := sessions.Close(); err != nil {
			slog.Warn("failed to close session directory", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)

	dg := openDiscord(cfg)
	if dg != nil {
		defer func() {
			if err := dg.Close(); err != nil {
				slog.Warn("failed to close discord session", "error", err)
			}
		}()
	}

	var (
		oracle  *membership.Oracle
		members gate.MembershipChecker
		checker discord.HealthChecker
	)
	if dg != nil {
		client := discord.NewClient(dg)
		oracle = membership.New(client, links, cfg.LinkedRoleID, cfg.QuarantineRoleID)
		members = oracle
		checker = client
	}

	loginGate := gate.New(links, link.NewCodeIssuer(), members, gate.Options{
		BypassRoutes:      cfg.BypassRoutes,
		QuarantineMessage: cfg.QuarantineMessage,
		Timeout:           cfg.LoginTimeout,
		MembershipTimeout: cfg.MembershipTimeout,
	})

	router := api.NewRouter(api.RouterDeps{
		Authenticator:  verifier,
		Observer:       loginGate,
		Sessions:       sessions,
		Links:          links,
		DiscordChecker: checker,
		StorePinger:    storePinger,
		SessionPinger:  sessions,
		Gatherer:       reg,
		Version:        cfg.Version,
		OpenAPISpec:    specpkg.OpenAPISpec,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting sentinel server", "port", cfg.Port, "version", cfg.Version, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if oracle != nil {
		var granter command.RoleGranter
		if cfg.LinkedRoleID != "" {
			granter = oracle
		}
		dispatcher := command.NewDispatcher(
			command.NewLinkHandler(links, granter, cfg.LinkRatePerMinute),
			command.NewWhoIsHandler(links),
			command.NewQuarantineHandler(oracle, links, sessions, cfg.StaffRoleIDs, cfg.QuarantineMessage),
		)
		bot := discord.NewBot(dg, dispatcher, cfg.FollowupTimeout)
		g.Go(func() error {
			if err := bot.Start(gctx); err != nil {
				// The gate keeps serving with presence checks; only commands are lost.
				slog.Error("discord bot stopped", "error", err)
			}
			return nil
		})

		rec := reconciler.New(links, oracle, cfg.ReconcilerInterval, cfg.CodeTTL)
		g.Go(func() error {
			rec.Start(gctx)
			return nil
		})
	} else {
		slog.Warn("discord unavailable; membership checks, commands and reconciliation are disabled")
	}

	return g.Wait()
}

// openStore connects the configured link store and returns it with its health pinger and closer.
func openStore(ctx context.Context, cfg *config.Config) (link.Repository, handler.Pinger, func(), error) {
	switch cfg.StoreDriver {
	case "sqlite":
		repo, err := link.OpenSQLite(ctx, cfg.SQLitePath, cfg.CodeTTL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		closeFn := func() {
			if err := repo.Close(); err != nil {
				slog.Warn("failed to close sqlite store", "error", err)
			}
		}
		return repo, repo, closeFn, nil
	default:
		opts := database.DefaultPoolOptions()
		opts.MaxConns = cfg.DBMaxConns
		opts.ConnectTimeout = cfg.DBConnectTimeout
		db, err := database.New(ctx, cfg.DatabaseURL(), opts)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("migrating database: %w", err)
		}
		return link.NewPostgresRepository(db.Pool(), cfg.CodeTTL), db, db.Close, nil
	}
}

// openDiscord connects the bot. Any failure is logged and yields nil so the
// login gate can still serve unlinked players.
func openDiscord(cfg *config.Config) *discordgo.Session {
	if !cfg.DiscordEnabled() {
		slog.Warn("DISCORD_TOKEN not set; running without discord")
		return nil
	}
	dg, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		slog.Warn("discord session initialization failed", "error", err)
		return nil
	}
	if err := dg.Open(); err != nil {
		slog.Warn("discord gateway connection failed", "error", err)
		return nil
	}
	slog.Info("connected to discord", "guilds", len(dg.State.Guilds))
	return dg
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(h))
}
