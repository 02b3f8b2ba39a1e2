package crawl

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/researchaccelerator-hub/housing-map-crawler/client"
	"github.com/researchaccelerator-hub/housing-map-crawler/model"
)

// CrawlHouseList walks the house list of every community that still has
// pages, one community and one page at a time, committing after each page.
func (c *Crawler) CrawlHouseList(ctx context.Context) error {
	pending, err := c.store.PendingHouseProgress(ctx, c.ds, c.city.Code)
	if err != nil {
		return fmt.Errorf("failed to load pending house progress: %w", err)
	}
	c.logger.Info().Int("pending", len(pending)).Msg("Crawling house lists")

	th := newThrottle(c.cfg.HouseDelay)
	pages, inserted := 0, 0
	for _, p := range pending {
		if c.Interrupted() {
			break
		}
		n, err := c.paginate(ctx, p, th, &pages)
		inserted += n
		if err != nil {
			return err
		}
	}

	c.logger.Info().
		Int("pages", pages).
		Int("houses_inserted", inserted).
		Bool("interrupted", c.Interrupted()).
		Msg("House list stage ended")
	return nil
}

func (c *Crawler) paginate(ctx context.Context, p model.HouseProgress, th *throttle, pages *int) (int, error) {
	logger := c.logger.With().Str("community", p.CommunityID).Logger()
	workCtx := context.WithoutCancel(ctx)

	inserted := 0
	for page := p.NextPage(); ; page++ {
		if err := th.Wait(ctx); err != nil {
			c.Interrupt()
		}
		if c.Interrupted() {
			return inserted, nil
		}

		resp, err := c.api.HouseList(workCtx, c.city.Code, p.CommunityID, page)
		if err != nil {
			return inserted, fmt.Errorf("house list for community %s page %d: %w", p.CommunityID, page, err)
		}

		hasMore := resp.HasMore
		if hasMore && len(resp.Houses) == 0 {
			logger.Warn().Int("page", page).Msg("Empty page claims more results, ending community")
			hasMore = false
		}

		houses := c.houses(p, resp, logger)
		n, err := c.store.IngestPage(workCtx, p, page, hasMore, houses)
		if err != nil {
			return inserted, fmt.Errorf("failed to ingest community %s page %d: %w", p.CommunityID, page, err)
		}
		*pages++
		inserted += n
		logger.Debug().Int("page", page).Int("houses", len(houses)).Int("inserted", n).Bool("has_more", hasMore).Msg("Page ingested")

		if !hasMore {
			return inserted, nil
		}
	}
}

// houses converts list entries to stored houses, dropping those without a
// derivable id.
func (c *Crawler) houses(p model.HouseProgress, resp client.HousePage, logger zerolog.Logger) []model.House {
	out := make([]model.House, 0, len(resp.Houses))
	for _, item := range resp.Houses {
		id, err := model.HouseID(item.ActionURL.String)
		if err != nil {
			logger.Warn().Err(err).Str("title", item.Title.String).Msg("Skipping house without id")
			continue
		}
		out = append(out, item.ToHouse(id, c.ds, c.city.Code, p.CommunityID))
	}
	return out
}
