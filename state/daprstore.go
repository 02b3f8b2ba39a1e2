package state

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	daprc "github.com/dapr/go-sdk/client"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/researchaccelerator-hub/housing-map-crawler/geo"
	"github.com/researchaccelerator-hub/housing-map-crawler/model"
)

const (
	defaultStateStoreName = "statestore"
	defaultDaprGRPCPort   = "50001"

	// Entries per log segment before a new segment is started.
	maxSegmentEntries = 500
	// Keys per bulk read.
	bulkChunk       = 200
	bulkParallelism = 8
)

// daprStateClient is the part of the Dapr client the store needs.
type daprStateClient interface {
	GetState(ctx context.Context, storeName, key string, meta map[string]string) (*daprc.StateItem, error)
	GetBulkState(ctx context.Context, storeName string, keys []string, meta map[string]string, parallelism int32) ([]*daprc.BulkStateItem, error)
	ExecuteStateTransaction(ctx context.Context, storeName string, meta map[string]string, ops []*daprc.StateOperation) error
	Close()
}

// DaprStore implements Store on a Dapr state store.
//
// The state API only offers keyed reads and writes, so every collection is a
// set of JSON records plus an append-only log of keys kept in insertion order.
// The log is split into fixed-size segments with a small index record so an
// append never rewrites more than one segment:
//
//	housing/{ds}/{city}/units/{group}            unitIndex (count)
//	housing/{ds}/{city}/units/{group}/{n}        model.CrawlUnit
//	housing/{ds}/{city}/bubble/{group}/{id}      model.Bubble
//	housing/{ds}/{city}/bubble-log/{group}       logIndex, segments under /{n}
//	housing/{ds}/{city}/progress/{community}     model.HouseProgress
//	housing/{ds}/{city}/progress-log             logIndex, entries are community ids
//	housing/{ds}/{city}/house/{community}/{id}   model.House
//	housing/{ds}/{city}/house-log                logIndex, entries are "{community}/{id}"
type DaprStore struct {
	client         daprStateClient
	stateStoreName string

	// Log appends are read-modify-write; writes are serialized.
	mu sync.Mutex
}

type unitIndex struct {
	Count int `json:"count"`
}

type logIndex struct {
	Segments int `json:"segments"`
	Count    int `json:"count"`
	// Entries in the last segment.
	Tail int `json:"tail"`
}

// NewDaprStore connects to the local Dapr sidecar over gRPC.
func NewDaprStore(config Config) (*DaprStore, error) {
	// Create Dapr client with custom message size
	maxMessageSize := 64 // MB
	headerBuffer := 1    // MB
	maxSizeInBytes := (maxMessageSize + headerBuffer) * 1024 * 1024

	var callOpts []grpc.CallOption
	callOpts = append(callOpts,
		grpc.MaxCallRecvMsgSize(maxSizeInBytes),
		grpc.MaxCallSendMsgSize(maxSizeInBytes),
	)

	stateStoreName := defaultStateStoreName
	daprPort := GetEnvValue("DAPR_GRPC_PORT", defaultDaprGRPCPort)
	if config.DaprConfig != nil {
		if config.DaprConfig.StateStoreName != "" {
			stateStoreName = config.DaprConfig.StateStoreName
		}
		if config.DaprConfig.GRPCPort != "" {
			daprPort = config.DaprConfig.GRPCPort
		}
	}

	conn, err := grpc.Dial(
		net.JoinHostPort("127.0.0.1", daprPort),
		grpc.WithDefaultCallOptions(callOpts...),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	client := daprc.NewClientWithConnection(conn)
	log.Info().Str("state_store", stateStoreName).Str("port", daprPort).Msg("Dapr store ready")
	return newDaprStore(client, stateStoreName), nil
}

func newDaprStore(client daprStateClient, stateStoreName string) *DaprStore {
	return &DaprStore{client: client, stateStoreName: stateStoreName}
}

// GetEnvValue returns the environment variable or fallback when unset.
func GetEnvValue(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func scopeKey(ds, city string) string {
	return "housing/" + ds + "/" + city
}

func unitIndexKey(ds, city string, gt model.GroupType) string {
	return scopeKey(ds, city) + "/units/" + string(gt)
}

func unitKey(ds, city string, gt model.GroupType, n int64) string {
	return unitIndexKey(ds, city, gt) + "/" + strconv.FormatInt(n, 10)
}

func bubbleKey(ds, city string, gt model.GroupType, id string) string {
	return scopeKey(ds, city) + "/bubble/" + string(gt) + "/" + id
}

func bubbleLogKey(ds, city string, gt model.GroupType) string {
	return scopeKey(ds, city) + "/bubble-log/" + string(gt)
}

func progressKey(ds, city, communityID string) string {
	return scopeKey(ds, city) + "/progress/" + communityID
}

func progressLogKey(ds, city string) string {
	return scopeKey(ds, city) + "/progress-log"
}

func houseKey(ds, city, communityID, id string) string {
	return scopeKey(ds, city) + "/house/" + communityID + "/" + id
}

func houseLogKey(ds, city string) string {
	return scopeKey(ds, city) + "/house-log"
}

func segmentKey(logKey string, n int) string {
	return logKey + "/" + strconv.Itoa(n)
}

func upsert(key string, v any) (*daprc.StateOperation, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return &daprc.StateOperation{
		Type: daprc.StateOperationTypeUpsert,
		Item: &daprc.SetStateItem{Key: key, Value: data},
	}, nil
}

func (s *DaprStore) commit(ctx context.Context, ops []*daprc.StateOperation) error {
	if len(ops) == 0 {
		return nil
	}
	if err := s.client.ExecuteStateTransaction(ctx, s.stateStoreName, nil, ops); err != nil {
		return fmt.Errorf("failed to execute state transaction: %w", err)
	}
	return nil
}

// get loads key into v. found is false when the key does not exist.
func (s *DaprStore) get(ctx context.Context, key string, v any) (bool, error) {
	item, err := s.client.GetState(ctx, s.stateStoreName, key, nil)
	if err != nil {
		return false, fmt.Errorf("failed to get %s from Dapr: %w", key, err)
	}
	if item == nil || len(item.Value) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(item.Value, v); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return true, nil
}

// getBulk returns the raw values of the keys that exist.
func (s *DaprStore) getBulk(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for start := 0; start < len(keys); start += bulkChunk {
		end := min(start+bulkChunk, len(keys))
		items, err := s.client.GetBulkState(ctx, s.stateStoreName, keys[start:end], nil, bulkParallelism)
		if err != nil {
			return nil, fmt.Errorf("failed to bulk get state: %w", err)
		}
		for _, item := range items {
			if item == nil {
				continue
			}
			if item.Error != "" {
				return nil, fmt.Errorf("failed to get %s from Dapr: %s", item.Key, item.Error)
			}
			if len(item.Value) > 0 {
				out[item.Key] = item.Value
			}
		}
	}
	return out, nil
}

// loadAll decodes the records at keys, in key order, skipping missing ones.
func loadAll[T any](ctx context.Context, s *DaprStore, keys []string) ([]T, error) {
	raw, err := s.getBulk(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, key := range keys {
		data, ok := raw[key]
		if !ok {
			continue
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", key, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// readLog returns every entry of an append-only log in insertion order.
func (s *DaprStore) readLog(ctx context.Context, logKey string) ([]string, error) {
	var idx logIndex
	if _, err := s.get(ctx, logKey, &idx); err != nil {
		return nil, err
	}
	if idx.Segments == 0 {
		return nil, nil
	}
	keys := make([]string, idx.Segments)
	for i := range keys {
		keys[i] = segmentKey(logKey, i+1)
	}
	segments, err := loadAll[[]string](ctx, s, keys)
	if err != nil {
		return nil, err
	}
	entries := make([]string, 0, idx.Count)
	for _, seg := range segments {
		entries = append(entries, seg...)
	}
	return entries, nil
}

// appendLog returns the operations that append entries to a log.
func (s *DaprStore) appendLog(ctx context.Context, logKey string, entries []string) ([]*daprc.StateOperation, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	var idx logIndex
	if _, err := s.get(ctx, logKey, &idx); err != nil {
		return nil, err
	}

	var tail []string
	if idx.Segments > 0 && idx.Tail < maxSegmentEntries {
		if _, err := s.get(ctx, segmentKey(logKey, idx.Segments), &tail); err != nil {
			return nil, err
		}
	} else {
		idx.Segments++
		idx.Tail = 0
	}

	var ops []*daprc.StateOperation
	for len(entries) > 0 {
		room := maxSegmentEntries - len(tail)
		n := min(room, len(entries))
		tail = append(tail, entries[:n]...)
		entries = entries[n:]
		idx.Count += n

		op, err := upsert(segmentKey(logKey, idx.Segments), tail)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)

		if len(entries) > 0 {
			idx.Segments++
			tail = nil
		}
	}
	idx.Tail = len(tail)

	op, err := upsert(logKey, idx)
	if err != nil {
		return nil, err
	}
	return append(ops, op), nil
}

func (s *DaprStore) EnsureUnits(ctx context.Context, ds, city string, gt model.GroupType, box geo.Box, step float64) (int, error) {
	seq, err := geo.Generate(box, step)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var idx unitIndex
	if _, err := s.get(ctx, unitIndexKey(ds, city, gt), &idx); err != nil {
		return 0, err
	}
	if idx.Count > 0 {
		return 0, nil
	}

	var ops []*daprc.StateOperation
	for tile := range seq {
		idx.Count++
		unit := model.CrawlUnit{
			ID:        int64(idx.Count),
			DS:        ds,
			CityCode:  city,
			GroupType: gt,
			Box:       tile,
			Cell:      tile.Cell(),
		}
		op, err := upsert(unitKey(ds, city, gt, unit.ID), unit)
		if err != nil {
			return 0, err
		}
		ops = append(ops, op)
	}
	if idx.Count == 0 {
		return 0, nil
	}
	op, err := upsert(unitIndexKey(ds, city, gt), idx)
	if err != nil {
		return 0, err
	}
	if err := s.commit(ctx, append(ops, op)); err != nil {
		return 0, err
	}
	return idx.Count, nil
}

func (s *DaprStore) units(ctx context.Context, ds, city string, gt model.GroupType) ([]model.CrawlUnit, error) {
	var idx unitIndex
	if _, err := s.get(ctx, unitIndexKey(ds, city, gt), &idx); err != nil {
		return nil, err
	}
	keys := make([]string, idx.Count)
	for i := range keys {
		keys[i] = unitKey(ds, city, gt, int64(i+1))
	}
	return loadAll[model.CrawlUnit](ctx, s, keys)
}

func (s *DaprStore) PendingUnits(ctx context.Context, ds, city string, gt model.GroupType) ([]model.CrawlUnit, error) {
	all, err := s.units(ctx, ds, city, gt)
	if err != nil {
		return nil, err
	}
	var pending []model.CrawlUnit
	for _, u := range all {
		if !u.Finished {
			pending = append(pending, u)
		}
	}
	return pending, nil
}

func finishedOp(unit model.CrawlUnit) (*daprc.StateOperation, error) {
	unit.Finished = true
	return upsert(unitKey(unit.DS, unit.CityCode, unit.GroupType, unit.ID), unit)
}

func (s *DaprStore) MarkFinished(ctx context.Context, unit model.CrawlUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, err := finishedOp(unit)
	if err != nil {
		return err
	}
	return s.commit(ctx, []*daprc.StateOperation{op})
}

func (s *DaprStore) IngestUnit(ctx context.Context, unit model.CrawlUnit, bubbles []model.Bubble) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(bubbles))
	for _, b := range bubbles {
		keys = append(keys, bubbleKey(b.DS, b.CityCode, b.GroupType, b.ID))
	}
	existing, err := s.getBulk(ctx, keys)
	if err != nil {
		return 0, err
	}

	var (
		ops     []*daprc.StateOperation
		entries []string
		seen    = make(map[string]bool, len(bubbles))
	)
	for i, b := range bubbles {
		if _, ok := existing[keys[i]]; ok || seen[keys[i]] {
			continue
		}
		seen[keys[i]] = true
		op, err := upsert(keys[i], b)
		if err != nil {
			return 0, err
		}
		ops = append(ops, op)
		entries = append(entries, b.ID)
	}

	logOps, err := s.appendLog(ctx, bubbleLogKey(unit.DS, unit.CityCode, unit.GroupType), entries)
	if err != nil {
		return 0, err
	}
	op, err := finishedOp(unit)
	if err != nil {
		return 0, err
	}
	ops = append(append(ops, logOps...), op)
	if err := s.commit(ctx, ops); err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (s *DaprStore) Bubble(ctx context.Context, ds, city string, gt model.GroupType, id string) (model.Bubble, error) {
	var b model.Bubble
	found, err := s.get(ctx, bubbleKey(ds, city, gt, id), &b)
	if err != nil {
		return model.Bubble{}, err
	}
	if !found {
		return model.Bubble{}, fmt.Errorf("bubble %s: %w", id, ErrNotFound)
	}
	return b, nil
}

func (s *DaprStore) EnsureHouseProgress(ctx context.Context, ds, city string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	communities, err := s.readLog(ctx, bubbleLogKey(ds, city, model.Community))
	if err != nil {
		return 0, err
	}
	seeded, err := s.readLog(ctx, progressLogKey(ds, city))
	if err != nil {
		return 0, err
	}
	have := make(map[string]bool, len(seeded))
	for _, id := range seeded {
		have[id] = true
	}

	var (
		ops     []*daprc.StateOperation
		entries []string
	)
	for _, id := range communities {
		if have[id] {
			continue
		}
		have[id] = true
		p := model.HouseProgress{
			ID:          int64(len(seeded) + len(entries) + 1),
			DS:          ds,
			CityCode:    city,
			CommunityID: id,
			HasMore:     true,
		}
		op, err := upsert(progressKey(ds, city, id), p)
		if err != nil {
			return 0, err
		}
		ops = append(ops, op)
		entries = append(entries, id)
	}
	logOps, err := s.appendLog(ctx, progressLogKey(ds, city), entries)
	if err != nil {
		return 0, err
	}
	if err := s.commit(ctx, append(ops, logOps...)); err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (s *DaprStore) houseProgress(ctx context.Context, ds, city string) ([]model.HouseProgress, error) {
	ids, err := s.readLog(ctx, progressLogKey(ds, city))
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = progressKey(ds, city, id)
	}
	return loadAll[model.HouseProgress](ctx, s, keys)
}

func (s *DaprStore) PendingHouseProgress(ctx context.Context, ds, city string) ([]model.HouseProgress, error) {
	all, err := s.houseProgress(ctx, ds, city)
	if err != nil {
		return nil, err
	}
	var pending []model.HouseProgress
	for _, p := range all {
		if p.HasMore {
			pending = append(pending, p)
		}
	}
	return pending, nil
}

func advanceOp(p model.HouseProgress, page int, hasMore bool) (*daprc.StateOperation, error) {
	p.FinishedPage = page
	p.HasMore = hasMore
	return upsert(progressKey(p.DS, p.CityCode, p.CommunityID), p)
}

func (s *DaprStore) Advance(ctx context.Context, p model.HouseProgress, page int, hasMore bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, err := advanceOp(p, page, hasMore)
	if err != nil {
		return err
	}
	return s.commit(ctx, []*daprc.StateOperation{op})
}

func (s *DaprStore) IngestPage(ctx context.Context, p model.HouseProgress, page int, hasMore bool, houses []model.House) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(houses))
	for _, h := range houses {
		keys = append(keys, houseKey(h.DS, h.CityCode, h.CommunityID, h.ID))
	}
	existing, err := s.getBulk(ctx, keys)
	if err != nil {
		return 0, err
	}

	var (
		ops     []*daprc.StateOperation
		entries []string
		seen    = make(map[string]bool, len(houses))
	)
	for i, h := range houses {
		if _, ok := existing[keys[i]]; ok || seen[keys[i]] {
			continue
		}
		seen[keys[i]] = true
		op, err := upsert(keys[i], h)
		if err != nil {
			return 0, err
		}
		ops = append(ops, op)
		entries = append(entries, h.CommunityID+"/"+h.ID)
	}

	logOps, err := s.appendLog(ctx, houseLogKey(p.DS, p.CityCode), entries)
	if err != nil {
		return 0, err
	}
	op, err := advanceOp(p, page, hasMore)
	if err != nil {
		return 0, err
	}
	ops = append(append(ops, logOps...), op)
	if err := s.commit(ctx, ops); err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (s *DaprStore) House(ctx context.Context, ds, city, communityID, id string) (model.House, error) {
	var h model.House
	found, err := s.get(ctx, houseKey(ds, city, communityID, id), &h)
	if err != nil {
		return model.House{}, err
	}
	if !found {
		return model.House{}, fmt.Errorf("house %s: %w", id, ErrNotFound)
	}
	return h, nil
}

func (s *DaprStore) communities(ctx context.Context, ds, city string) ([]model.Bubble, error) {
	ids, err := s.readLog(ctx, bubbleLogKey(ds, city, model.Community))
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = bubbleKey(ds, city, model.Community, id)
	}
	return loadAll[model.Bubble](ctx, s, keys)
}

func (s *DaprStore) houses(ctx context.Context, ds, city string) ([]model.House, error) {
	refs, err := s.readLog(ctx, houseLogKey(ds, city))
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(refs))
	for _, ref := range refs {
		communityID, id, ok := strings.Cut(ref, "/")
		if !ok {
			return nil, fmt.Errorf("malformed house log entry %q", ref)
		}
		keys = append(keys, houseKey(ds, city, communityID, id))
	}
	return loadAll[model.House](ctx, s, keys)
}

func (s *DaprStore) PendingCommunityDetails(ctx context.Context, ds, city string) ([]model.DetailTarget, error) {
	all, err := s.communities(ctx, ds, city)
	if err != nil {
		return nil, err
	}
	var out []model.DetailTarget
	for _, b := range all {
		if !b.DetailCrawled {
			out = append(out, model.DetailTarget{ID: b.ID, DS: b.DS, CityCode: b.CityCode})
		}
	}
	return out, nil
}

func (s *DaprStore) PendingHouseDetails(ctx context.Context, ds, city string) ([]model.DetailTarget, error) {
	all, err := s.houses(ctx, ds, city)
	if err != nil {
		return nil, err
	}
	var out []model.DetailTarget
	for _, h := range all {
		if !h.DetailCrawled {
			out = append(out, model.DetailTarget{
				ID:          h.ID,
				DS:          h.DS,
				CityCode:    h.CityCode,
				CommunityID: h.CommunityID,
				URL:         h.ActionURL.String,
			})
		}
	}
	return out, nil
}

// fill overwrites dst only when src carries a value.
func fill(dst *model.Text, src model.Text) {
	if src.Valid {
		*dst = src
	}
}

func (s *DaprStore) SaveCommunityDetail(ctx context.Context, t model.DetailTarget, d model.CommunityDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := bubbleKey(t.DS, t.CityCode, model.Community, t.ID)
	var b model.Bubble
	found, err := s.get(ctx, key, &b)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("community %s: %w", t.ID, ErrNotFound)
	}

	fill(&b.MainTitle, d.MainTitle)
	fill(&b.SubTitle, d.SubTitle)
	fill(&b.BlockName, d.BlockName)
	fill(&b.FollowCnt, d.FollowCnt)
	fill(&b.UnitPrice, d.UnitPrice)
	fill(&b.PriceDesc, d.PriceDesc)
	fill(&b.Info, d.Info)
	b.DetailCrawled = true

	op, err := upsert(key, b)
	if err != nil {
		return err
	}
	return s.commit(ctx, []*daprc.StateOperation{op})
}

func (s *DaprStore) SaveHouseDetail(ctx context.Context, t model.DetailTarget, d model.HouseDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := houseKey(t.DS, t.CityCode, t.CommunityID, t.ID)
	var h model.House
	found, err := s.get(ctx, key, &h)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("house %s: %w", t.ID, ErrNotFound)
	}

	fill(&h.MainTitle, d.MainTitle)
	fill(&h.SubTitle, d.SubTitle)
	fill(&h.DistrictName, d.DistrictName)
	fill(&h.BlockName, d.BlockName)
	fill(&h.FollowCnt, d.FollowCnt)
	fill(&h.TotalPriceNum, d.TotalPriceNum)
	fill(&h.TotalPriceUnit, d.TotalPriceUnit)
	fill(&h.UnitPrice, d.UnitPrice)
	fill(&h.RoomMainInfo, d.RoomMainInfo)
	fill(&h.RoomSubInfo, d.RoomSubInfo)
	fill(&h.TypeMainInfo, d.TypeMainInfo)
	fill(&h.TypeSubInfo, d.TypeSubInfo)
	fill(&h.AreaMainInfo, d.AreaMainInfo)
	fill(&h.AreaSubInfo, d.AreaSubInfo)
	h.DetailCrawled = true

	op, err := upsert(key, h)
	if err != nil {
		return err
	}
	return s.commit(ctx, []*daprc.StateOperation{op})
}

func (s *DaprStore) Report(ctx context.Context, ds, city string) (model.ProgressReport, error) {
	report := model.NewProgressReport(ds, city)

	for _, gt := range model.GroupTypes {
		units, err := s.units(ctx, ds, city, gt)
		if err != nil {
			return report, err
		}
		sp := model.StageProgress{Total: len(units)}
		for _, u := range units {
			if u.Finished {
				sp.Finished++
			}
		}
		report.Units[gt] = sp

		var idx logIndex
		if _, err := s.get(ctx, bubbleLogKey(ds, city, gt), &idx); err != nil {
			return report, err
		}
		report.Bubbles[gt] = idx.Count
	}

	progress, err := s.houseProgress(ctx, ds, city)
	if err != nil {
		return report, err
	}
	report.HouseProgress.Total = len(progress)
	for _, p := range progress {
		if !p.HasMore {
			report.HouseProgress.Finished++
		}
	}

	communities, err := s.communities(ctx, ds, city)
	if err != nil {
		return report, err
	}
	report.CommunityDetails.Total = len(communities)
	for _, b := range communities {
		if b.DetailCrawled {
			report.CommunityDetails.Finished++
		}
	}

	houses, err := s.houses(ctx, ds, city)
	if err != nil {
		return report, err
	}
	report.Houses = len(houses)
	report.HouseDetails.Total = len(houses)
	for _, h := range houses {
		if h.DetailCrawled {
			report.HouseDetails.Finished++
		}
	}
	return report, nil
}

func (s *DaprStore) Close() error {
	s.client.Close()
	return nil
}
