package crawl

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/researchaccelerator-hub/housing-map-crawler/geo"
	"github.com/researchaccelerator-hub/housing-map-crawler/model"
	"github.com/researchaccelerator-hub/housing-map-crawler/state"
)

const (
	testDS   = "20250601"
	testCode = "310000"
)

var testCity = model.City{
	Name: "Shanghai",
	Code: testCode,
	URL:  "https://sh.ke.com/",
	Box:  geo.Box{MinLat: 30, MaxLat: 31, MinLon: 120, MaxLon: 121},
}

// testConfig tiles the test city into 1 district and 4 of each finer unit.
func testConfig() Config {
	return Config{
		Concurrency: 2,
		Steps: map[model.GroupType]float64{
			model.District:  1,
			model.Bizcircle: 0.5,
			model.Community: 0.5,
		},
	}
}

func newTestStore(t *testing.T) state.Store {
	t.Helper()
	s, err := state.NewSQLStore(context.Background(), "sqlite", filepath.Join(t.TempDir(), "housing.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestCrawler(t *testing.T, store state.Store, api *MockMapAPI) *Crawler {
	t.Helper()
	c, err := New(store, api, testCity, testDS, testConfig(), zerolog.Nop())
	require.NoError(t, err)
	return c
}

// seedCommunities stores community bubbles directly, bypassing the map API.
func seedCommunities(t *testing.T, store state.Store, ids ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := store.EnsureUnits(ctx, testDS, testCode, model.Community, testCity.Box, 1)
	require.NoError(t, err)
	units, err := store.PendingUnits(ctx, testDS, testCode, model.Community)
	require.NoError(t, err)
	require.Len(t, units, 1)

	bubbles := make([]model.Bubble, 0, len(ids))
	for _, id := range ids {
		bubbles = append(bubbles, model.Bubble{ID: id, DS: testDS, CityCode: testCode, GroupType: model.Community})
	}
	_, err = store.IngestUnit(ctx, units[0], bubbles)
	require.NoError(t, err)
	_, err = store.EnsureHouseProgress(ctx, testDS, testCode)
	require.NoError(t, err)
}

func item(title, actionURL string, tags ...string) model.HouseItem {
	it := model.HouseItem{Title: model.NewText(title), ActionURL: model.NewText(actionURL)}
	for _, tag := range tags {
		it.Tags = append(it.Tags, model.Tag{Desc: tag})
	}
	return it
}
