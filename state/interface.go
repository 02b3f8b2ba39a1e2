package state

import (
	"context"
	"errors"

	"github.com/researchaccelerator-hub/housing-map-crawler/geo"
	"github.com/researchaccelerator-hub/housing-map-crawler/model"
)

// ErrNotFound is returned by lookups of a single record that does not exist.
var ErrNotFound = errors.New("record not found")

// Store persists crawl progress and crawled entities, scoped by crawl date (ds)
// and city. Every method that writes commits exactly one transaction, so a
// crash leaves each unit, page or entity either fully ingested or untouched.
// Any returned error is a backend failure and should end the run.
type Store interface {
	// Tile units
	EnsureUnits(ctx context.Context, ds, city string, gt model.GroupType, box geo.Box, step float64) (int, error)
	PendingUnits(ctx context.Context, ds, city string, gt model.GroupType) ([]model.CrawlUnit, error)
	MarkFinished(ctx context.Context, unit model.CrawlUnit) error
	IngestUnit(ctx context.Context, unit model.CrawlUnit, bubbles []model.Bubble) (int, error)
	Bubble(ctx context.Context, ds, city string, gt model.GroupType, id string) (model.Bubble, error)

	// House list pagination
	EnsureHouseProgress(ctx context.Context, ds, city string) (int, error)
	PendingHouseProgress(ctx context.Context, ds, city string) ([]model.HouseProgress, error)
	Advance(ctx context.Context, p model.HouseProgress, page int, hasMore bool) error
	IngestPage(ctx context.Context, p model.HouseProgress, page int, hasMore bool, houses []model.House) (int, error)
	House(ctx context.Context, ds, city, communityID, id string) (model.House, error)

	// Detail enrichment
	PendingCommunityDetails(ctx context.Context, ds, city string) ([]model.DetailTarget, error)
	PendingHouseDetails(ctx context.Context, ds, city string) ([]model.DetailTarget, error)
	SaveCommunityDetail(ctx context.Context, target model.DetailTarget, detail model.CommunityDetail) error
	SaveHouseDetail(ctx context.Context, target model.DetailTarget, detail model.HouseDetail) error

	Report(ctx context.Context, ds, city string) (model.ProgressReport, error)
	Close() error
}

// Config selects and configures a Store backend.
type Config struct {
	// Driver is one of "sqlite", "postgres" or "dapr".
	Driver string
	// DSN is the SQLite file path or the Postgres connection string.
	DSN string

	DaprConfig *DaprConfig
}

// DaprConfig contains Dapr-specific configuration
type DaprConfig struct {
	StateStoreName string
	GRPCPort       string
}
