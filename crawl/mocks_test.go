package crawl

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/researchaccelerator-hub/housing-map-crawler/client"
	"github.com/researchaccelerator-hub/housing-map-crawler/geo"
	"github.com/researchaccelerator-hub/housing-map-crawler/model"
)

// MockMapAPI is a mock implementation of client.MapAPI.
type MockMapAPI struct {
	mock.Mock
}

func (m *MockMapAPI) BubbleList(ctx context.Context, cityCode string, gt model.GroupType, box geo.Box) ([]model.Bubble, error) {
	args := m.Called(ctx, cityCode, gt, box)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Bubble), args.Error(1)
}

func (m *MockMapAPI) HouseList(ctx context.Context, cityCode, communityID string, page int) (client.HousePage, error) {
	args := m.Called(ctx, cityCode, communityID, page)
	return args.Get(0).(client.HousePage), args.Error(1)
}

func (m *MockMapAPI) FetchPage(ctx context.Context, url string) ([]byte, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
