package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/isdelr/nip-auth/internal/api"
	"github.com/isdelr/nip-auth/internal/auth"
	"github.com/isdelr/nip-auth/internal/config"
	"github.com/isdelr/nip-auth/internal/database"
	"github.com/isdelr/nip-auth/internal/logger"
	"github.com/isdelr/nip-auth/internal/monitoring"
	"github.com/isdelr/nip-auth/internal/services"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, cfg.LogFormat)

	// Set up database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	hasher, err := auth.NewPasswordHasher(cfg.PasswordHasher, cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up password hasher")
	}

	// Set up services
	userService, err := services.NewUserService(db, hasher)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up user service")
	}
	tokenService := services.NewTokenService(db)
	eventService := services.NewEventService(db)
	authService := services.NewAuthService(userService, tokenService, eventService)

	// Set up and run the background event pruning
	scheduler, err := monitoring.NewScheduler(eventService, cfg.EventPruneSchedule, cfg.EventRetention)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up scheduler")
	}
	scheduler.Start()

	// Set up router
	router := api.NewRouter(authService, tokenService, eventService, db, cfg.CORSAllowedOrigins)

	// Set up server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Str("env", cfg.AppEnv).Msg("Server starting")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}
