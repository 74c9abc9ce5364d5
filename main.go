package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/uuid/v5"

	"garrison-gate/api"
	"garrison-gate/cli"
	"garrison-gate/config"
	"garrison-gate/core/authapi"
	"garrison-gate/core/guard"
	"garrison-gate/core/janitor"
	"garrison-gate/core/rbac"
	"garrison-gate/core/session"
	"garrison-gate/core/store"
	"garrison-gate/core/utils"
	"garrison-gate/core/verify"
)

func main() {
	if len(os.Args) > 1 {
		cli.Run()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		logger.Fatalf("db init: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(db, cfg); err != nil {
		logger.Fatalf("migrations: %v", err)
	}

	// Every process is one application window; the origin tells the
	// shared event log whose writes to skip.
	originID, err := uuid.NewV4()
	if err != nil {
		logger.Fatalf("origin id: %v", err)
	}
	origin := originID.String()

	authClient := authapi.NewClient(cfg.Upstream.BaseURL, cfg.UpstreamTimeout(), logger)
	sessions := session.NewService(session.NewStore(), authClient, logger)

	policy := rbac.NewPolicy(rbac.DefaultRoles())
	gate := guard.NewGate(rbac.NewEvaluator(policy), logger, cfg.AuthBypassEnabled())

	pending := store.NewPendingAuthStore(db)
	events := store.NewVerifyEventsStore(db)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	broadcaster := verify.NewStoreBroadcaster(events, origin, cfg.BroadcastPoll(), logger)
	if err := broadcaster.Start(rootCtx); err != nil {
		logger.Fatalf("broadcaster: %v", err)
	}
	defer broadcaster.Stop()

	waiter := verify.NewWaiter(authClient, pending, sessions, broadcaster, logger, verify.Options{
		PollInterval:   cfg.PollInterval(),
		ResendCooldown: cfg.ResendCooldown(),
		PendingTTL:     cfg.PendingTTL(),
		Origin:         origin,
	})
	defer waiter.Stop()

	jan := janitor.New(pending, events, cfg.Janitor.Schedule, cfg.EventRetention(), logger)
	if err := jan.Start(rootCtx); err != nil {
		logger.Fatalf("janitor: %v", err)
	}
	defer jan.Stop()

	// Hydration runs before the server accepts navigations; the admit
	// middleware additionally waits for it, so a fast first request is
	// never judged against an empty session.
	hydrateCtx, hydrateCancel := context.WithTimeout(rootCtx, cfg.UpstreamTimeout())
	sessions.Hydrate(hydrateCtx)
	hydrateCancel()

	srv := api.NewServer(cfg, api.Deps{
		DB:         db,
		Sessions:   sessions,
		AuthClient: authClient,
		Gate:       gate,
		Routes:     guard.DefaultRoutes(),
		Waiter:     waiter,
		Janitor:    jan,
	}, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatalf("server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Errorf("graceful shutdown: %v", err)
	}
}
