package client

import (
	"context"

	"github.com/researchaccelerator-hub/housing-map-crawler/geo"
	"github.com/researchaccelerator-hub/housing-map-crawler/model"
)

// MapAPI is the upstream listing site as seen by the crawl stages.
type MapAPI interface {
	// BubbleList returns the bubbles of one group type inside box. A response
	// without a bubble list yields an empty slice.
	BubbleList(ctx context.Context, cityCode string, gt model.GroupType, box geo.Box) ([]model.Bubble, error)

	// HouseList returns one 1-indexed page of a community's house list.
	HouseList(ctx context.Context, cityCode, communityID string, page int) (HousePage, error)

	// FetchPage downloads an HTML detail page.
	FetchPage(ctx context.Context, url string) ([]byte, error)
}

// HousePage is one page of a house list.
type HousePage struct {
	Houses     []model.HouseItem
	HasMore    bool
	TotalCount int
}
