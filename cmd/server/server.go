package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/axellelanca/funnelstats/cmd"
	"github.com/axellelanca/funnelstats/internal/api"
	"github.com/axellelanca/funnelstats/internal/app"
	"github.com/axellelanca/funnelstats/internal/logging"
	"github.com/axellelanca/funnelstats/internal/models"
	"github.com/axellelanca/funnelstats/internal/monitor"
	"github.com/axellelanca/funnelstats/internal/services"
	"github.com/axellelanca/funnelstats/internal/workers"
)

const shutdownTimeout = 10 * time.Second

// RunServerCmd représente la commande 'run-server' de Cobra.
// C'est le point d'entrée pour lancer le dashboard et les processus de fond.
var RunServerCmd = &cobra.Command{
	Use:   "run-server",
	Short: "Lance l'API du dashboard d'analytics et les processus de fond.",
	Long: `Cette commande ouvre le store configuré, démarre les workers asynchrones
de tracking (stores SQL uniquement) et le moniteur de statistiques,
puis lance le serveur HTTP.`,
	Args: cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		cfg := cmd.Cfg
		log := logging.With("server")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Ouvre le store et applique les migrations pour les drivers SQL.
		store, err := app.OpenStore(ctx, cfg, true)
		if err != nil {
			return err
		}
		defer store.Close()

		analyticsService, err := services.NewAnalyticsService(store.Analytics, services.AnalyticsOptions{
			Property:  cfg.Analytics.Property,
			DetailTTL: cfg.DetailCacheTTL(),
			StaleTTL:  cfg.StaleTTL(),
		})
		if err != nil {
			return err
		}

		// Le tracking n'existe que sur les stores où l'on peut écrire.
		var trackingService *services.TrackingService
		var events chan models.EventRecord
		var workersDone *sync.WaitGroup
		if store.Tracking != nil {
			events = make(chan models.EventRecord, cfg.Analytics.BufferSize)
			workersDone = workers.StartEventWorkers(cfg.Analytics.WorkerCount, events, store.Tracking)
			trackingService = services.NewTrackingService(store.Tracking, analyticsService.Property(), events)
			log.Info().
				Int("workers", cfg.Analytics.WorkerCount).
				Int("buffer", cfg.Analytics.BufferSize).
				Msg("Event workers started")
		} else {
			log.Warn().Str("driver", cfg.Database.Driver).Msg("Read-only store, tracking endpoints disabled")
		}

		// Moniteur des tuiles du dashboard.
		if interval := cfg.MonitorInterval(); interval > 0 {
			statsMonitor := monitor.NewStatsMonitor(analyticsService, interval)
			go statsMonitor.Start(ctx)
			log.Info().Dur("interval", interval).Msg("Stats monitor started")
		} else {
			log.Info().Msg("Stats monitor disabled")
		}

		router := gin.New()
		router.Use(gin.Recovery())
		api.SetupRoutes(router, analyticsService, trackingService)

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		serverErr := make(chan error, 1)
		go func() {
			log.Info().Int("port", cfg.Server.Port).Str("base_url", cfg.Server.BaseURL).Msg("Server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()

		// Attendre Ctrl+C, un signal d'arrêt ou une erreur du serveur.
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		case err := <-serverErr:
			return fmt.Errorf("server failed: %w", err)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}

		// Plus aucune requête ne peut produire d'événement: on vide la file.
		cancel()
		if events != nil {
			close(events)
			workersDone.Wait()
		}

		log.Info().Msg("Server stopped")
		return nil
	},
}

func init() {
	cmd.RootCmd.AddCommand(RunServerCmd)
}
