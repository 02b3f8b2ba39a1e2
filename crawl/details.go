package crawl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/researchaccelerator-hub/housing-map-crawler/client"
	"github.com/researchaccelerator-hub/housing-map-crawler/extract"
	"github.com/researchaccelerator-hub/housing-map-crawler/model"
)

// CommunityURL is the detail page of a community.
func CommunityURL(city model.City, id string) string {
	return strings.TrimRight(city.URL, "/") + "/xiaoqu/" + id + "/"
}

// CrawlCommunityDetails enriches every community bubble not yet detailed.
func (c *Crawler) CrawlCommunityDetails(ctx context.Context) error {
	targets, err := c.store.PendingCommunityDetails(ctx, c.ds, c.city.Code)
	if err != nil {
		return fmt.Errorf("failed to load pending community details: %w", err)
	}
	if c.city.URL == "" && len(targets) > 0 {
		return fmt.Errorf("city %s has no site url for community pages", c.city.Code)
	}
	for i := range targets {
		targets[i].URL = CommunityURL(c.city, targets[i].ID)
	}
	return enrich(ctx, c, "community", targets, extract.Community, c.store.SaveCommunityDetail)
}

// CrawlHouseDetails enriches every house not yet detailed from its action URL.
func (c *Crawler) CrawlHouseDetails(ctx context.Context) error {
	targets, err := c.store.PendingHouseDetails(ctx, c.ds, c.city.Code)
	if err != nil {
		return fmt.Errorf("failed to load pending house details: %w", err)
	}
	return enrich(ctx, c, "house", targets, extract.House, c.store.SaveHouseDetail)
}

func enrich[D any](
	ctx context.Context,
	c *Crawler,
	kind string,
	targets []model.DetailTarget,
	parse func([]byte) (D, error),
	save func(context.Context, model.DetailTarget, D) error,
) error {
	logger := c.logger.With().Str("stage", kind+"_details").Logger()
	logger.Info().Int("pending", len(targets)).Msg("Crawling details")
	if len(targets) == 0 {
		return nil
	}

	saved := 0
	fetch := func(ctx context.Context, t model.DetailTarget) (D, error) {
		var zero D
		if t.URL == "" {
			return zero, errors.New(kind + " " + t.ID + " has no detail url")
		}
		page, err := c.api.FetchPage(ctx, t.URL)
		if client.IsPermanent(err) {
			// Delisted or refused: the attempt is complete, save an empty detail.
			logger.Warn().Err(err).Str("id", t.ID).Msg("Detail page unavailable")
			return zero, nil
		}
		if err != nil {
			return zero, fmt.Errorf("%s %s detail: %w", kind, t.ID, err)
		}
		d, err := parse(page)
		if err != nil {
			// The page was fetched; an unreadable body still counts as crawled.
			logger.Warn().Err(err).Str("id", t.ID).Msg("Detail page could not be parsed")
			return zero, nil
		}
		return d, nil
	}
	commit := func(ctx context.Context, t model.DetailTarget, d D) error {
		if err := save(ctx, t, d); err != nil {
			return fmt.Errorf("failed to save %s %s detail: %w", kind, t.ID, err)
		}
		saved++
		return nil
	}

	err := runBatches(ctx, c, targets, newThrottle(c.cfg.DetailDelay), fetch, commit)
	logger.Info().Int("saved", saved).Bool("interrupted", c.Interrupted()).Msg("Detail stage ended")
	return err
}
