// Command sacksd runs the thin HTTP surface over the same
// ProcessFileAsync contract cmd/sacks exposes on the CLI, per
// SPEC_FULL.md's "HTTP surface" supplement. Bootstrap shape (config load,
// DB connect, graceful shutdown on SIGINT/SIGTERM) is adapted from the
// teacher's cmd/server/main.go and cmd/api/main.go.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/thestrul/sacks/internal/api"
	"github.com/thestrul/sacks/internal/cache"
	"github.com/thestrul/sacks/internal/config"
	"github.com/thestrul/sacks/internal/drive"
	"github.com/thestrul/sacks/internal/gridreader"
	"github.com/thestrul/sacks/internal/matcher"
	"github.com/thestrul/sacks/internal/orchestrator"
	"github.com/thestrul/sacks/internal/store/postgres"
	"github.com/thestrul/sacks/pkg/logger"
)

func main() {
	cfg := config.Load()

	if cfg.Server.Mode == "release" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log := logger.Log.With().Str("component", "sacksd").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pg, err := postgres.Open(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pg.Close()

	store, err := config.NewStore(cfg.App.ConfigDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load supplier configuration")
	}
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	if err := store.Watch(stopWatch); err != nil {
		log.Warn().Err(err).Msg("failed to start configuration hot-reload watcher")
	}

	m := matcher.New(store)
	reader := gridreader.NewReader()
	orch := orchestrator.New(reader, m, pg, false, log)

	resultCache, err := cache.NewResultCache(cfg.Cache)
	if err != nil {
		log.Warn().Err(err).Msg("falling back to noop result cache")
		resultCache = cache.NewNoopResultCache()
	}

	router := api.NewRouter(&api.Services{
		Orchestrator: orch,
		ResultCache:  resultCache,
		AllowOrigins: cfg.Server.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting sacksd")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	var driveSrv *http.Server
	if cfg.Drive.Enabled {
		driveService, err := drive.NewService(cfg.Drive.CredentialsJSON)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize Drive service, polling disabled")
		} else {
			poller := drive.NewPoller(driveService, log)
			driveRouter := mux.NewRouter()
			drive.NewHandler(driveService, poller).RegisterRoutes(driveRouter)

			driveSrv = &http.Server{Addr: ":" + drivePort(cfg.Server.Port), Handler: driveRouter}
			go func() {
				log.Info().Str("addr", driveSrv.Addr).Msg("starting drive browsing endpoint")
				if err := driveSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error().Err(err).Msg("drive endpoint server failed")
				}
			}()
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down sacksd")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if driveSrv != nil {
		if err := driveSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("drive endpoint graceful shutdown failed")
		}
	}
}

// drivePort derives the Drive browsing endpoint's port from the main
// server's port plus one, so both listen by default without extra config.
func drivePort(mainPort string) string {
	n, err := strconv.Atoi(mainPort)
	if err != nil {
		return "8091"
	}
	return strconv.Itoa(n + 1)
}
