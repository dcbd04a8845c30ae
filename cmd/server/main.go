package main // Entry point package

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-waitlist/internal/client"
	"github.com/iliyamo/event-waitlist/internal/config"
	"github.com/iliyamo/event-waitlist/internal/database"
	"github.com/iliyamo/event-waitlist/internal/handler"
	"github.com/iliyamo/event-waitlist/internal/queue"
	"github.com/iliyamo/event-waitlist/internal/reaper"
	"github.com/iliyamo/event-waitlist/internal/repository"
	"github.com/iliyamo/event-waitlist/internal/router"
	"github.com/iliyamo/event-waitlist/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set env vars directly
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, database.Pool{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetimeMin) * time.Minute,
	})
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis backs the oracle circuit breaker; nil disables it and the
	// client degrades to retries only.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable, oracle circuit breaker disabled")
	}

	eventRepo := repository.NewEventRepo(db)
	waitlistRepo := repository.NewWaitlistRepo(db)
	lockRepo := repository.NewSeatLockRepo(db)

	oracle := client.NewInvitationClient(cfg.InvitationBaseURL, rdb,
		cfg.OracleBreakerThreshold, time.Duration(cfg.OracleBreakerWindowSeconds)*time.Second)
	bridge := service.NewAMQPPublisher(cfg.AMQPURL)

	waitlist := service.NewWaitlistService(eventRepo, waitlistRepo, oracle, bridge,
		cfg.RedistributionBatchLimit, time.Duration(cfg.NotificationExpiryHours)*time.Hour)
	seatLocks := service.NewSeatLockService(lockRepo, time.Duration(cfg.SeatLockTTLMinutes)*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Inbound bridge: redistribution triggers and the administrative
	// clear-all.
	consumer := &queue.Consumer{URL: cfg.AMQPURL, Waitlist: waitlist}
	go func() {
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("consumer stopped: %v", err)
		}
	}()

	// Background sweeps: expired notifications and lapsed seat locks.
	sweeps := &reaper.Reaper{
		Waitlist:       waitlist,
		Locks:          seatLocks,
		ExpiryInterval: time.Duration(cfg.ExpirySweepSeconds) * time.Second,
		LockInterval:   time.Duration(cfg.LockSweepSeconds) * time.Second,
	}
	go sweeps.Run(ctx)

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterWaitlist(e, handler.NewWaitlistHandler(waitlist), cfg.JWTSecret)
	router.RegisterSeatLocks(e, handler.NewSeatLockHandler(seatLocks), cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
