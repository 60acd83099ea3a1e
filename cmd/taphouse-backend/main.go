package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taphouse-backend/internal/config"
	"taphouse-backend/internal/database"
	"taphouse-backend/internal/events"
	httpapi "taphouse-backend/internal/http"
	"taphouse-backend/internal/logger"
	"taphouse-backend/internal/repository"
	"taphouse-backend/internal/service"
	"taphouse-backend/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "taphouse-backend")
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	kv := store.NewRedisKV(redisClient)

	publisher, err := events.NewPublisher(&cfg.MQTT, log)
	if err != nil {
		log.Fatal("failed to connect to MQTT broker", zap.Error(err))
	}
	defer publisher.Close()

	guestsRepo := repository.NewPostgresGuestsRepository(db)
	cardsRepo := repository.NewPostgresCardsRepository(db)
	visitsRepo := repository.NewPostgresVisitsRepository(db)
	poursRepo := repository.NewPostgresPoursRepository(db)
	tapsRepo := repository.NewPostgresTapsRepository(db)
	kegsRepo := repository.NewPostgresKegsRepository(db)
	beveragesRepo := repository.NewPostgresBeveragesRepository(db)
	lostCardsRepo := repository.NewPostgresLostCardsRepository(db)
	shiftsRepo := repository.NewPostgresShiftsRepository(db)
	auditRepo := repository.NewPostgresAuditRepository(db)
	stateRepo := repository.NewPostgresSystemStateRepository(db)
	controllersRepo := repository.NewPostgresControllersRepository(db)
	transactionsRepo := repository.NewPostgresTransactionsRepository(db)

	auditor := service.NewAuditor(auditRepo, log)
	shifts := service.NewShiftService(db, shiftsRepo, visitsRepo, poursRepo, auditor, log)
	lostCards := service.NewLostCardService(db, lostCardsRepo, auditor, log)
	visits := service.NewVisitService(db, visitsRepo, guestsRepo, poursRepo, tapsRepo,
		kegsRepo, cardsRepo, lostCardsRepo, stateRepo, shifts, auditor, publisher, log)
	sync := service.NewSyncService(db, visitsRepo, guestsRepo, poursRepo, tapsRepo,
		kegsRepo, stateRepo, auditor, publisher, log)
	guests := service.NewGuestService(db, guestsRepo, transactionsRepo, poursRepo, log)
	catalog := service.NewCatalogService(db, beveragesRepo, kegsRepo, tapsRepo, kv, publisher, log)
	controllers := service.NewControllerService(controllersRepo, kv,
		time.Duration(cfg.Controllers.ProbeIntervalSec)*time.Second,
		time.Duration(cfg.Controllers.PresenceTTLSec)*time.Second, log)
	reports := service.NewReportService(db, shiftsRepo, log)
	system := service.NewSystemService(db, stateRepo, auditRepo, poursRepo, auditor, log)

	handlers := &httpapi.Handlers{
		Auth: httpapi.NewAuthHandler(cfg.Auth.Username, cfg.Auth.Password,
			cfg.Auth.TokenSecret, time.Duration(cfg.Auth.TokenTTLMin)*time.Minute, log),
		Visits:      httpapi.NewVisitHandler(visits, lostCards, system, log),
		Sync:        httpapi.NewSyncHandler(sync, log),
		LostCards:   httpapi.NewLostCardHandler(lostCards, log),
		Shifts:      httpapi.NewShiftHandler(shifts, reports, log),
		Guests:      httpapi.NewGuestHandler(guests, log),
		Catalog:     httpapi.NewCatalogHandler(catalog, log),
		Controllers: httpapi.NewControllerHandler(controllers, log),
		System:      httpapi.NewSystemHandler(system, log),
	}

	router := httpapi.NewRouter(log)
	router.RegisterRoutes(handlers)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go controllers.RunProber(ctx)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info("taphouse-backend listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
