package crawl

import (
	"context"
	"fmt"
	"time"

	"github.com/researchaccelerator-hub/housing-map-crawler/model"
)

// Run executes every stage in order: district, bizcircle and community
// bubbles, house lists, community details, house details. It resumes from
// whatever the store already holds for this city and date. Cancelling ctx
// interrupts the crawl at the next unit or batch boundary; Run then returns
// nil with the partial progress committed.
func (c *Crawler) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, c.Interrupt)
	defer stop()

	start := time.Now()
	c.logger.Info().Str("city_name", c.city.Name).Str("box", c.box.String()).Msg("Crawl started")

	stages := make([]func(context.Context) error, 0, len(model.GroupTypes)+3)
	for _, gt := range model.GroupTypes {
		stages = append(stages, func(ctx context.Context) error { return c.bubbleStage(ctx, gt) })
	}
	stages = append(stages, c.houseStage, c.CrawlCommunityDetails, c.CrawlHouseDetails)

	for _, stage := range stages {
		if ctx.Err() != nil {
			c.Interrupt()
		}
		if c.Interrupted() {
			break
		}
		if err := stage(context.WithoutCancel(ctx)); err != nil {
			c.logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Crawl failed")
			return err
		}
	}

	report, err := c.Report(context.WithoutCancel(ctx))
	if err != nil {
		return fmt.Errorf("failed to build progress report: %w", err)
	}
	c.logger.Info().
		Dur("elapsed", time.Since(start)).
		Bool("interrupted", c.Interrupted()).
		Int("houses", report.Houses).
		Interface("community_details", report.CommunityDetails).
		Interface("house_details", report.HouseDetails).
		Msg("Crawl ended")
	return nil
}

func (c *Crawler) bubbleStage(ctx context.Context, gt model.GroupType) error {
	n, err := c.store.EnsureUnits(ctx, c.ds, c.city.Code, gt, c.box, c.cfg.Step(gt))
	if err != nil {
		return fmt.Errorf("failed to seed %s units: %w", gt, err)
	}
	if n > 0 {
		c.logger.Info().Str("group_type", string(gt)).Int("units", n).Msg("Seeded crawl units")
	}
	return c.CrawlBubbles(ctx, gt)
}

func (c *Crawler) houseStage(ctx context.Context) error {
	n, err := c.store.EnsureHouseProgress(ctx, c.ds, c.city.Code)
	if err != nil {
		return fmt.Errorf("failed to seed house progress: %w", err)
	}
	if n > 0 {
		c.logger.Info().Int("communities", n).Msg("Seeded house progress")
	}
	return c.CrawlHouseList(ctx)
}
