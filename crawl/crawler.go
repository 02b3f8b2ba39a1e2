// Package crawl runs the resumable crawl stages for one city and crawl date:
// bubble discovery over tiles, house list pagination and detail enrichment.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/researchaccelerator-hub/housing-map-crawler/client"
	"github.com/researchaccelerator-hub/housing-map-crawler/geo"
	"github.com/researchaccelerator-hub/housing-map-crawler/model"
	"github.com/researchaccelerator-hub/housing-map-crawler/state"
)

// Config holds the crawl tuning knobs.
type Config struct {
	// Concurrency is the number of fetches per batch.
	Concurrency int
	BubbleDelay time.Duration
	HouseDelay  time.Duration
	DetailDelay time.Duration
	// Steps is the tile edge in degrees per group type.
	Steps map[model.GroupType]float64
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Concurrency: 3,
		BubbleDelay: 100 * time.Millisecond,
		HouseDelay:  100 * time.Millisecond,
		DetailDelay: 100 * time.Millisecond,
		Steps: map[model.GroupType]float64{
			model.District:  1.0,
			model.Bizcircle: 0.2,
			model.Community: 0.05,
		},
	}
}

// Step returns the tile step for gt, falling back to the default.
func (c Config) Step(gt model.GroupType) float64 {
	if s, ok := c.Steps[gt]; ok && s > 0 {
		return s
	}
	return DefaultConfig().Steps[gt]
}

// Crawler is the context shared by every stage of one run.
type Crawler struct {
	store  state.Store
	api    client.MapAPI
	city   model.City
	box    geo.Box
	ds     string
	cfg    Config
	logger zerolog.Logger

	interrupted atomic.Bool
}

// New prepares a crawl of city for crawl date ds. When the city has no box,
// it is derived from the city's polyline.
func New(store state.Store, api client.MapAPI, city model.City, ds string, cfg Config, logger zerolog.Logger) (*Crawler, error) {
	if store == nil || api == nil {
		return nil, errors.New("crawler requires a store and an api client")
	}
	if len(ds) != 8 {
		return nil, fmt.Errorf("invalid crawl date %q: want YYYYMMDD", ds)
	}
	if city.Code == "" {
		return nil, fmt.Errorf("city %q has no code", city.Name)
	}

	box := city.Box
	if box == (geo.Box{}) && city.Polyline != "" {
		var err error
		if box, err = geo.BoxFromPolyline(city.Polyline); err != nil {
			return nil, fmt.Errorf("city %s: %w", city.Name, err)
		}
	}
	if box == (geo.Box{}) {
		return nil, fmt.Errorf("city %s: %w: no box or polyline configured", city.Name, geo.ErrInvalidBox)
	}
	if err := box.Validate(); err != nil {
		return nil, fmt.Errorf("city %s: %w", city.Name, err)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	return &Crawler{
		store:  store,
		api:    api,
		city:   city,
		box:    box,
		ds:     ds,
		cfg:    cfg,
		logger: logger.With().Str("city", city.Code).Str("ds", ds).Logger(),
	}, nil
}

// Interrupt asks the crawl to stop at the next unit or batch boundary.
// Fetches already in flight complete and are committed.
func (c *Crawler) Interrupt() {
	if c.interrupted.CompareAndSwap(false, true) {
		c.logger.Info().Msg("Crawl interruption requested")
	}
}

// Interrupted reports whether Interrupt has been called.
func (c *Crawler) Interrupted() bool {
	return c.interrupted.Load()
}

func (c *Crawler) DS() string { return c.ds }

func (c *Crawler) City() model.City { return c.city }

// Report returns the per-stage progress of this crawl.
func (c *Crawler) Report(ctx context.Context) (model.ProgressReport, error) {
	return c.store.Report(ctx, c.ds, c.city.Code)
}
