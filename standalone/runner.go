// Package standalone wires configuration, storage, the upstream client and
// the crawl stages into runnable processes: a one-shot crawl and the
// control server, optionally fronted by Dapr.
package standalone

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/researchaccelerator-hub/housing-map-crawler/client"
	"github.com/researchaccelerator-hub/housing-map-crawler/common"
	"github.com/researchaccelerator-hub/housing-map-crawler/config"
	"github.com/researchaccelerator-hub/housing-map-crawler/crawl"
	"github.com/researchaccelerator-hub/housing-map-crawler/dapr"
	"github.com/researchaccelerator-hub/housing-map-crawler/model"
	"github.com/researchaccelerator-hub/housing-map-crawler/server"
	"github.com/researchaccelerator-hub/housing-map-crawler/state"
	"github.com/researchaccelerator-hub/housing-map-crawler/supervisor"
)

const commitGrace = 10 * time.Second

// App holds the long-lived dependencies shared by every run.
type App struct {
	Config *config.Config
	Store  state.Store
	API    client.MapAPI
	// Console receives the human-readable copy of run logs.
	Console io.Writer
}

// NewApp opens the configured store and builds the upstream client.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := state.NewStore(ctx, cfg.StateConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Storage.Driver, err)
	}
	return &App{
		Config:  cfg,
		Store:   store,
		API:     client.NewMapClient(cfg.ClientConfig()),
		Console: os.Stderr,
	}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

// runJob is a crawl whose run log is closed when the run ends.
type runJob struct {
	*crawl.Crawler
	logFile io.Closer
}

func (j *runJob) Run(ctx context.Context) error {
	defer j.logFile.Close()
	return j.Crawler.Run(ctx)
}

// NewJob prepares a crawl of city for ds that logs to the city's run log.
func (a *App) NewJob(city model.City, ds string) (supervisor.Job, error) {
	logger, logFile, err := common.NewRunLogger(a.Config.Log.Dir, city.Code, ds, a.Console)
	if err != nil {
		return nil, err
	}
	c, err := crawl.New(a.Store, a.API, city, ds, a.Config.CrawlConfig(), logger)
	if err != nil {
		logFile.Close()
		return nil, err
	}
	return &runJob{Crawler: c, logFile: logFile}, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// StartStandaloneMode crawls one city in the foreground until it completes,
// fails or the process is signalled. An empty ds means today.
func StartStandaloneMode(ctx context.Context, cfg *config.Config, cityName, ds string) (model.ProgressReport, error) {
	city, err := cfg.City(cityName)
	if err != nil {
		return model.ProgressReport{}, err
	}
	if ds == "" {
		ds = common.GenerateCrawlDate()
	}

	ctx, stop := signalContext(ctx)
	defer stop()

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return model.ProgressReport{}, err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close store")
		}
	}()

	return app.Crawl(ctx, city, ds)
}

// Crawl runs one crawl of city for ds and returns the resulting progress.
func (a *App) Crawl(ctx context.Context, city model.City, ds string) (model.ProgressReport, error) {
	log.Info().Str("city", city.Name).Str("ds", ds).Msg("Starting crawler in standalone mode")
	job, err := a.NewJob(city, ds)
	if err != nil {
		return model.ProgressReport{}, err
	}
	if err := job.Run(ctx); err != nil {
		return model.ProgressReport{}, err
	}
	report, err := a.Store.Report(context.WithoutCancel(ctx), ds, city.Code)
	if err != nil {
		return model.ProgressReport{}, err
	}
	log.Info().Str("city", city.Name).Str("ds", ds).Msg("Crawling completed")
	return report, nil
}

// shutdownGrace is how long an interrupted crawl may take to finish: its
// in-flight fetches, with every retry, plus time to commit them.
func shutdownGrace(cfg *config.Config) time.Duration {
	return cfg.ClientConfig().MaxRequestTime() + commitGrace
}

// Serve runs the control server, and the Dapr handlers when a Dapr port is
// configured, until the process is signalled. A running crawl is interrupted
// and waited for before the store is closed.
func Serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signalContext(ctx)
	defer stop()

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	sup := supervisor.New(ctx, app.NewJob)
	srv := server.New(sup, app.Store, cfg.Cities, cfg.Log.Dir)

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return srv.Run(gctx, cfg.Server.Addr)
	})
	if cfg.Server.DaprPort > 0 {
		eg.Go(func() error {
			return dapr.StartDaprMode(gctx, sup, cfg.Cities, cfg.Server.DaprPort)
		})
	}
	serveErr := eg.Wait()

	if err := sup.Stop(); err != nil && !errors.Is(err, supervisor.ErrNotRunning) {
		log.Warn().Err(err).Msg("Failed to stop crawl")
	}
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace(cfg))
	defer cancel()
	if err := sup.Wait(waitCtx); err != nil {
		log.Warn().Err(err).Msg("Crawl did not stop before shutdown")
	}
	return serveErr
}
