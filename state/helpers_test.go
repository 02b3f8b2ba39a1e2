package state

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	daprc "github.com/dapr/go-sdk/client"
	"github.com/stretchr/testify/require"

	"github.com/researchaccelerator-hub/housing-map-crawler/model"
)

// fakeDaprClient is an in-memory Dapr state store.
type fakeDaprClient struct {
	mu     sync.Mutex
	data   map[string][]byte
	txErr  error
	txns   int
	closed bool
}

func newFakeDaprClient() *fakeDaprClient {
	return &fakeDaprClient{data: make(map[string][]byte)}
}

func (c *fakeDaprClient) GetState(_ context.Context, _ string, key string, _ map[string]string) (*daprc.StateItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &daprc.StateItem{Key: key, Value: c.data[key]}, nil
}

func (c *fakeDaprClient) GetBulkState(_ context.Context, _ string, keys []string, _ map[string]string, _ int32) ([]*daprc.BulkStateItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]*daprc.BulkStateItem, 0, len(keys))
	// Dapr does not guarantee response order; reverse it to make sure callers don't rely on it.
	for i := len(keys) - 1; i >= 0; i-- {
		items = append(items, &daprc.BulkStateItem{Key: keys[i], Value: c.data[keys[i]]})
	}
	return items, nil
}

func (c *fakeDaprClient) ExecuteStateTransaction(_ context.Context, _ string, _ map[string]string, ops []*daprc.StateOperation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.txErr != nil {
		return c.txErr
	}
	c.txns++
	for _, op := range ops {
		switch op.Type {
		case daprc.StateOperationTypeUpsert:
			c.data[op.Item.Key] = op.Item.Value
		case daprc.StateOperationTypeDelete:
			delete(c.data, op.Item.Key)
		default:
			return errors.New("unsupported operation")
		}
	}
	return nil
}

func (c *fakeDaprClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func newTestSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLStore(context.Background(), "sqlite", filepath.Join(t.TempDir(), "db", "housing.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// storeBackends returns a fresh instance of every backend that runs without
// external services.
func storeBackends(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"sqlite": newTestSQLiteStore(t),
		"dapr":   newDaprStore(newFakeDaprClient(), "statestore"),
	}
}

func testBubble(id, ds, city string, gt model.GroupType, name string) model.Bubble {
	return model.Bubble{
		ID:        id,
		DS:        ds,
		CityCode:  city,
		GroupType: gt,
		Name:      model.NewText(name),
		Count:     model.NewInteger(10),
		Latitude:  model.NewNumber(31.2),
		Longitude: model.NewNumber(121.4),
	}
}

func testHouse(id, ds, city, community, title string) model.House {
	return model.House{
		ID:          id,
		DS:          ds,
		CityCode:    city,
		CommunityID: community,
		Title:       model.NewText(title),
		Tags:        model.NewText("near subway|south-facing"),
		ActionURL:   model.NewText("https://sh.ke.com/ershoufang/" + id + ".html"),
	}
}
