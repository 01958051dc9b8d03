// Command server boots the place extraction engine: config, logging,
// storage, the event bus, the geonames adapter, the campaign service, the
// WebSocket gateway, and the HTTP API, then serves until SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/placescout/scoutengine/internal/campaignsvc"
	"github.com/placescout/scoutengine/internal/config"
	"github.com/placescout/scoutengine/internal/domain"
	"github.com/placescout/scoutengine/internal/driver"
	"github.com/placescout/scoutengine/internal/eventbus"
	"github.com/placescout/scoutengine/internal/geonames"
	"github.com/placescout/scoutengine/internal/httpapi"
	"github.com/placescout/scoutengine/internal/logging"
	"github.com/placescout/scoutengine/internal/orchestrator"
	"github.com/placescout/scoutengine/internal/storage"
	"github.com/placescout/scoutengine/internal/wsgateway"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code per spec.md §6: 0 normal, 2
// config/startup error, 130 SIGINT.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 2
	}

	log, err := logging.New(logging.Options{Format: cfg.LogFormat, Level: cfg.LogLevel, ServiceName: "scoutengine"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger error:", err)
		return 2
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt)
	defer signal.Stop(sigint)

	db, err := storage.Connect(ctx, log, cfg.DatabaseURL)
	if err != nil {
		log.Error("storage connect failed", zap.Error(err))
		return 2
	}
	defer db.Close()

	if err := applyMigrations(ctx, db); err != nil {
		log.Error("migrations failed", zap.Error(err))
		return 2
	}

	store := storage.NewStore(db, log)
	bus := eventbus.New(log)

	orchestrator.SnapshotInterval = cfg.SnapshotInterval

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	geoCache := geonames.NewCache(rdb, log)
	geoClient := geonames.NewClient(log, cfg.GeonamesBaseURL, geoCache)

	driverFactory := func() driver.Driver {
		return driver.NewRodDriver(log, cfg.DriverHeadless, cfg.GeonamesBaseURL+"/search")
	}

	campaigns := campaignsvc.New(log, store, bus, geoClient, driverFactory)

	gateway := wsgateway.New(log, bus, campaigns)
	apiRouter := httpapi.New(log, &campaignControllerAdapter{svc: campaigns}, geoClient, store, bus)

	mux := http.NewServeMux()
	mux.Handle("/", apiRouter.Handler())
	mux.Handle("/ws/extraction/stream", gateway)

	srv := &http.Server{
		Addr:    cfg.ServerHost + ":" + cfg.ServerPort,
		Handler: mux,
	}

	serverErrs := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrs <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", zap.Error(err))
		}
		select {
		case <-sigint:
			return 130
		default:
			return 0
		}
	case err := <-serverErrs:
		log.Error("server error", zap.Error(err))
		return 2
	}
}

func applyMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, storage.Schema)
	return err
}

// campaignControllerAdapter adapts campaignsvc.Service's CreateSpec to
// httpapi.CreateSpec at the composition root, so neither package needs to
// import the other's request-shape type.
type campaignControllerAdapter struct {
	svc *campaignsvc.Service
}

func (a *campaignControllerAdapter) Create(ctx context.Context, spec httpapi.CreateSpec) (domain.Campaign, error) {
	return a.svc.Create(ctx, campaignsvc.CreateSpec{
		Activity:      spec.Activity,
		CountryCode:   spec.CountryCode,
		Admin1Code:    spec.Admin1Code,
		Admin2Code:    spec.Admin2Code,
		CityGeonameID: spec.CityGeonameID,
		ISOLanguage:   spec.ISOLanguage,
		LocationName:  spec.LocationName,
		MinPopulation: spec.MinPopulation,
		Locale:        spec.Locale,
		MaxResults:    spec.MaxResults,
		MinRating:     spec.MinRating,
		MaxBots:       spec.MaxBots,
	})
}

func (a *campaignControllerAdapter) Start(ctx context.Context, id domain.ID) error {
	return a.svc.Start(ctx, id)
}

func (a *campaignControllerAdapter) Resume(ctx context.Context, id domain.ID) error {
	return a.svc.Resume(ctx, id)
}

func (a *campaignControllerAdapter) Archive(ctx context.Context, id domain.ID) error {
	return a.svc.Archive(ctx, id)
}

func (a *campaignControllerAdapter) List(ctx context.Context) ([]domain.Campaign, error) {
	return a.svc.List(ctx)
}

func (a *campaignControllerAdapter) Get(ctx context.Context, id domain.ID) (domain.Campaign, error) {
	return a.svc.Get(ctx, id)
}

func (a *campaignControllerAdapter) PlacesOf(ctx context.Context, id domain.ID) ([]domain.ExtractedPlace, error) {
	return a.svc.PlacesOf(ctx, id)
}

func (a *campaignControllerAdapter) TasksOf(ctx context.Context, id domain.ID) ([]domain.PlaceExtractionTask, error) {
	return a.svc.TasksOf(ctx, id)
}
