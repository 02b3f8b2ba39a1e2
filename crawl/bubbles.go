package crawl

import (
	"context"
	"fmt"

	"github.com/researchaccelerator-hub/housing-map-crawler/model"
)

// CrawlBubbles fetches every pending tile of gt and stores the bubbles inside
// it. Units are seeded with EnsureUnits beforehand.
func (c *Crawler) CrawlBubbles(ctx context.Context, gt model.GroupType) error {
	units, err := c.store.PendingUnits(ctx, c.ds, c.city.Code, gt)
	if err != nil {
		return fmt.Errorf("failed to load pending %s units: %w", gt, err)
	}
	logger := c.logger.With().Str("group_type", string(gt)).Logger()
	logger.Info().Int("pending", len(units)).Msg("Crawling bubbles")
	if len(units) == 0 {
		return nil
	}

	fetched, inserted := 0, 0
	fetch := func(ctx context.Context, u model.CrawlUnit) ([]model.Bubble, error) {
		bubbles, err := c.api.BubbleList(ctx, c.city.Code, gt, u.Box)
		if err != nil {
			return nil, fmt.Errorf("bubble list for unit %d (%s): %w", u.ID, u.Box, err)
		}
		return bubbles, nil
	}
	commit := func(ctx context.Context, u model.CrawlUnit, bubbles []model.Bubble) error {
		tagged := make([]model.Bubble, 0, len(bubbles))
		for _, b := range bubbles {
			if b.ID == "" {
				logger.Warn().Int64("unit", u.ID).Str("name", b.Name.String).Msg("Skipping bubble without id")
				continue
			}
			b.DS, b.CityCode, b.GroupType = c.ds, c.city.Code, gt
			tagged = append(tagged, b)
		}
		n, err := c.store.IngestUnit(ctx, u, tagged)
		if err != nil {
			return fmt.Errorf("failed to ingest unit %d: %w", u.ID, err)
		}
		fetched++
		inserted += n
		logger.Debug().Int64("unit", u.ID).Int("bubbles", len(tagged)).Int("inserted", n).Msg("Unit finished")
		return nil
	}

	err = runBatches(ctx, c, units, newThrottle(c.cfg.BubbleDelay), fetch, commit)
	logger.Info().
		Int("units_finished", fetched).
		Int("bubbles_inserted", inserted).
		Bool("interrupted", c.Interrupted()).
		Msg("Bubble stage ended")
	return err
}
