package main // Entry point package

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/claim-bot/internal/allocator"
	"github.com/iliyamo/claim-bot/internal/bot"
	"github.com/iliyamo/claim-bot/internal/config"
	"github.com/iliyamo/claim-bot/internal/database"
	"github.com/iliyamo/claim-bot/internal/handler"
	"github.com/iliyamo/claim-bot/internal/inbox"
	"github.com/iliyamo/claim-bot/internal/lifecycle"
	"github.com/iliyamo/claim-bot/internal/profile"
	"github.com/iliyamo/claim-bot/internal/repository"
	"github.com/iliyamo/claim-bot/internal/router"
)

func main() {
	_ = godotenv.Load() // Load .env if present; real env wins
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	events := repository.NewEventRepo(db)
	attendees := repository.NewAttendeeRepo(db)
	claims := repository.NewClaimRepo(db, attendees)
	admins := repository.NewAdminRepo(db)
	ledger := repository.NewMessageRepo(db)

	// Profile lookups go through Redis when it is reachable, directly to
	// the platform API otherwise.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable, profile cache disabled")
	}
	profiles := profile.NewCachedLoader(profile.NewClient(cfg.ProfileAPIURL), rdb, cfg.ProfileCacheTTL)

	alloc := allocator.New(events, claims, profiles)
	lc := lifecycle.New(events, claims)

	transport := inbox.NewAMQPTransport(cfg.AMQPURL, cfg.InboundQueue, cfg.OutboundQueue)
	defer transport.Close()
	dispatcher := bot.NewDispatcher(transport, ledger, admins, alloc, lc, cfg.SystemAccount)
	supervisor := bot.NewSupervisor(transport, dispatcher, cfg.PollBackoff)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := supervisor.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("message loop stopped: %v", err)
		}
	}()

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAdmin(e, router.Handlers{
		Auth:   handler.NewAuthHandler(cfg, admins),
		Events: handler.NewEventHandler(lc, events),
		Claims: handler.NewClaimHandler(lc, claims),
		Admins: handler.NewAdminHandler(cfg, admins),
	}, cfg.JWTSecret)

	go func() {
		<-ctx.Done()
		_ = e.Close()
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil && ctx.Err() == nil {
		log.Fatal(err)
	}
}
