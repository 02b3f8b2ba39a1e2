package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/researchaccelerator-hub/housing-map-crawler/geo"
	"github.com/researchaccelerator-hub/housing-map-crawler/model"
)

// SQLStore implements Store on database/sql, backed by SQLite or Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect string

	// Write transactions are serialized so commits never interleave.
	mu sync.Mutex
}

// NewSQLStore opens the database for dialect ("sqlite" or "postgres") and
// creates the schema if needed.
func NewSQLStore(ctx context.Context, dialect, dsn string) (*SQLStore, error) {
	var driverName string
	switch dialect {
	case "sqlite":
		driverName = "sqlite3"
		if dir := filepath.Dir(dsn); dir != "." && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	case "postgres":
		driverName = "pgx"
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}
	if dialect == "sqlite" {
		// One connection keeps SQLite from reporting "database is locked".
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", dialect, err)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Str("dialect", dialect).Msg("SQL store ready")
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	r := dialects[s.dialect]
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, r.Replace(stmt)); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites $n placeholders into SQLite's numbered ?n form.
func (s *SQLStore) rebind(query string) string {
	if s.dialect == "sqlite" {
		return strings.ReplaceAll(query, "$", "?")
	}
	return query
}

// withTx runs fn in a single serialized write transaction.
func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("Failed to roll back transaction")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLStore) EnsureUnits(ctx context.Context, ds, city string, gt model.GroupType, box geo.Box, step float64) (int, error) {
	seq, err := geo.Generate(box, step)
	if err != nil {
		return 0, err
	}

	created := 0
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, s.rebind(
			`SELECT COUNT(*) FROM crawl_units WHERE ds = $1 AND city_code = $2 AND group_type = $3`),
			ds, city, string(gt)).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to count units: %w", err)
		}
		if exists > 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, s.rebind(
			`INSERT INTO crawl_units (ds, city_code, group_type, min_lat, max_lat, min_lon, max_lon, cell, is_finished)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE) ON CONFLICT DO NOTHING`))
		if err != nil {
			return fmt.Errorf("failed to prepare unit insert: %w", err)
		}
		defer stmt.Close()

		for tile := range seq {
			res, err := stmt.ExecContext(ctx, ds, city, string(gt),
				tile.MinLat, tile.MaxLat, tile.MinLon, tile.MaxLon, tile.Cell())
			if err != nil {
				return fmt.Errorf("failed to insert unit %s: %w", tile, err)
			}
			n, _ := res.RowsAffected()
			created += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

func (s *SQLStore) PendingUnits(ctx context.Context, ds, city string, gt model.GroupType) ([]model.CrawlUnit, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, ds, city_code, group_type, min_lat, max_lat, min_lon, max_lon, cell, is_finished
		FROM crawl_units
		WHERE ds = $1 AND city_code = $2 AND group_type = $3 AND is_finished = FALSE
		ORDER BY id`), ds, city, string(gt))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending units: %w", err)
	}
	defer rows.Close()

	var units []model.CrawlUnit
	for rows.Next() {
		var u model.CrawlUnit
		if err := rows.Scan(&u.ID, &u.DS, &u.CityCode, &u.GroupType,
			&u.Box.MinLat, &u.Box.MaxLat, &u.Box.MinLon, &u.Box.MaxLon, &u.Cell, &u.Finished); err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pending units: %w", err)
	}
	return units, nil
}

func (s *SQLStore) markFinished(ctx context.Context, tx *sql.Tx, unit model.CrawlUnit) error {
	_, err := tx.ExecContext(ctx, s.rebind(`UPDATE crawl_units SET is_finished = TRUE WHERE id = $1`), unit.ID)
	if err != nil {
		return fmt.Errorf("failed to mark unit %d finished: %w", unit.ID, err)
	}
	return nil
}

func (s *SQLStore) MarkFinished(ctx context.Context, unit model.CrawlUnit) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.markFinished(ctx, tx, unit)
	})
}

func (s *SQLStore) IngestUnit(ctx context.Context, unit model.CrawlUnit, bubbles []model.Bubble) (int, error) {
	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.rebind(insertIgnore("bubbles", bubbleColumns)))
		if err != nil {
			return fmt.Errorf("failed to prepare bubble insert: %w", err)
		}
		defer stmt.Close()

		for _, b := range bubbles {
			res, err := stmt.ExecContext(ctx, bubbleArgs(b)...)
			if err != nil {
				return fmt.Errorf("failed to insert bubble %s: %w", b.ID, err)
			}
			n, _ := res.RowsAffected()
			inserted += int(n)
		}
		return s.markFinished(ctx, tx, unit)
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *SQLStore) Bubble(ctx context.Context, ds, city string, gt model.GroupType, id string) (model.Bubble, error) {
	var b model.Bubble
	err := s.db.QueryRowContext(ctx, s.rebind(selectColumns("bubbles", bubbleColumns)+
		` WHERE id = $1 AND ds = $2 AND city_code = $3 AND group_type = $4`),
		id, ds, city, string(gt)).Scan(bubbleDest(&b)...)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Bubble{}, fmt.Errorf("bubble %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Bubble{}, fmt.Errorf("failed to load bubble %s: %w", id, err)
	}
	return b, nil
}

func (s *SQLStore) EnsureHouseProgress(ctx context.Context, ds, city string) (int, error) {
	created := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.rebind(
			`INSERT INTO house_progress (ds, city_code, community_id, finished_page, has_more)
			SELECT ds, city_code, id, 0, TRUE FROM bubbles
			WHERE ds = $1 AND city_code = $2 AND group_type = $3
			ORDER BY seq
			ON CONFLICT DO NOTHING`), ds, city, string(model.Community))
		if err != nil {
			return fmt.Errorf("failed to seed house progress: %w", err)
		}
		n, _ := res.RowsAffected()
		created = int(n)
		return nil
	})
	return created, err
}

func (s *SQLStore) PendingHouseProgress(ctx context.Context, ds, city string) ([]model.HouseProgress, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, ds, city_code, community_id, finished_page, has_more
		FROM house_progress
		WHERE ds = $1 AND city_code = $2 AND has_more = TRUE
		ORDER BY id`), ds, city)
	if err != nil {
		return nil, fmt.Errorf("failed to query house progress: %w", err)
	}
	defer rows.Close()

	var out []model.HouseProgress
	for rows.Next() {
		var p model.HouseProgress
		if err := rows.Scan(&p.ID, &p.DS, &p.CityCode, &p.CommunityID, &p.FinishedPage, &p.HasMore); err != nil {
			return nil, fmt.Errorf("failed to scan house progress: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read house progress: %w", err)
	}
	return out, nil
}

func (s *SQLStore) advance(ctx context.Context, tx *sql.Tx, p model.HouseProgress, page int, hasMore bool) error {
	_, err := tx.ExecContext(ctx, s.rebind(
		`UPDATE house_progress SET finished_page = $1, has_more = $2
		WHERE ds = $3 AND city_code = $4 AND community_id = $5`),
		page, hasMore, p.DS, p.CityCode, p.CommunityID)
	if err != nil {
		return fmt.Errorf("failed to advance community %s to page %d: %w", p.CommunityID, page, err)
	}
	return nil
}

func (s *SQLStore) Advance(ctx context.Context, p model.HouseProgress, page int, hasMore bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.advance(ctx, tx, p, page, hasMore)
	})
}

func (s *SQLStore) IngestPage(ctx context.Context, p model.HouseProgress, page int, hasMore bool, houses []model.House) (int, error) {
	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.rebind(insertIgnore("houses", houseColumns)))
		if err != nil {
			return fmt.Errorf("failed to prepare house insert: %w", err)
		}
		defer stmt.Close()

		for _, h := range houses {
			res, err := stmt.ExecContext(ctx, houseArgs(h)...)
			if err != nil {
				return fmt.Errorf("failed to insert house %s: %w", h.ID, err)
			}
			n, _ := res.RowsAffected()
			inserted += int(n)
		}
		return s.advance(ctx, tx, p, page, hasMore)
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *SQLStore) House(ctx context.Context, ds, city, communityID, id string) (model.House, error) {
	var h model.House
	err := s.db.QueryRowContext(ctx, s.rebind(selectColumns("houses", houseColumns)+
		` WHERE id = $1 AND ds = $2 AND city_code = $3 AND community_id = $4`),
		id, ds, city, communityID).Scan(houseDest(&h)...)
	if errors.Is(err, sql.ErrNoRows) {
		return model.House{}, fmt.Errorf("house %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.House{}, fmt.Errorf("failed to load house %s: %w", id, err)
	}
	return h, nil
}

func (s *SQLStore) PendingCommunityDetails(ctx context.Context, ds, city string) ([]model.DetailTarget, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, ds, city_code FROM bubbles
		WHERE ds = $1 AND city_code = $2 AND group_type = $3 AND is_detail_crawled = FALSE
		ORDER BY seq`), ds, city, string(model.Community))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending communities: %w", err)
	}
	defer rows.Close()

	var out []model.DetailTarget
	for rows.Next() {
		var t model.DetailTarget
		if err := rows.Scan(&t.ID, &t.DS, &t.CityCode); err != nil {
			return nil, fmt.Errorf("failed to scan community: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStore) PendingHouseDetails(ctx context.Context, ds, city string) ([]model.DetailTarget, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, ds, city_code, community_id, action_url FROM houses
		WHERE ds = $1 AND city_code = $2 AND is_detail_crawled = FALSE
		ORDER BY seq`), ds, city)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending houses: %w", err)
	}
	defer rows.Close()

	var out []model.DetailTarget
	for rows.Next() {
		var (
			t   model.DetailTarget
			url sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.DS, &t.CityCode, &t.CommunityID, &url); err != nil {
			return nil, fmt.Errorf("failed to scan house: %w", err)
		}
		t.URL = url.String
		out = append(out, t)
	}
	return out, rows.Err()
}

// Detail saves only overwrite columns for which a value was extracted.
func (s *SQLStore) SaveCommunityDetail(ctx context.Context, t model.DetailTarget, d model.CommunityDetail) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.rebind(
			`UPDATE bubbles SET
				main_title = COALESCE($1, main_title),
				sub_title = COALESCE($2, sub_title),
				block_name = COALESCE($3, block_name),
				follow_cnt = COALESCE($4, follow_cnt),
				unit_price = COALESCE($5, unit_price),
				price_desc = COALESCE($6, price_desc),
				info = COALESCE($7, info),
				is_detail_crawled = TRUE
			WHERE id = $8 AND ds = $9 AND city_code = $10 AND group_type = $11`),
			d.MainTitle, d.SubTitle, d.BlockName, d.FollowCnt, d.UnitPrice, d.PriceDesc, d.Info,
			t.ID, t.DS, t.CityCode, string(model.Community))
		if err != nil {
			return fmt.Errorf("failed to save community %s detail: %w", t.ID, err)
		}
		return nil
	})
}

func (s *SQLStore) SaveHouseDetail(ctx context.Context, t model.DetailTarget, d model.HouseDetail) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.rebind(
			`UPDATE houses SET
				main_title = COALESCE($1, main_title),
				sub_title = COALESCE($2, sub_title),
				district_name = COALESCE($3, district_name),
				block_name = COALESCE($4, block_name),
				follow_cnt = COALESCE($5, follow_cnt),
				total_price_num = COALESCE($6, total_price_num),
				total_price_unit = COALESCE($7, total_price_unit),
				unit_price = COALESCE($8, unit_price),
				room_main_info = COALESCE($9, room_main_info),
				room_sub_info = COALESCE($10, room_sub_info),
				type_main_info = COALESCE($11, type_main_info),
				type_sub_info = COALESCE($12, type_sub_info),
				area_main_info = COALESCE($13, area_main_info),
				area_sub_info = COALESCE($14, area_sub_info),
				is_detail_crawled = TRUE
			WHERE id = $15 AND ds = $16 AND city_code = $17 AND community_id = $18`),
			d.MainTitle, d.SubTitle, d.DistrictName, d.BlockName, d.FollowCnt,
			d.TotalPriceNum, d.TotalPriceUnit, d.UnitPrice,
			d.RoomMainInfo, d.RoomSubInfo, d.TypeMainInfo, d.TypeSubInfo, d.AreaMainInfo, d.AreaSubInfo,
			t.ID, t.DS, t.CityCode, t.CommunityID)
		if err != nil {
			return fmt.Errorf("failed to save house %s detail: %w", t.ID, err)
		}
		return nil
	})
}

func (s *SQLStore) Report(ctx context.Context, ds, city string) (model.ProgressReport, error) {
	report := model.NewProgressReport(ds, city)

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT group_type, COUNT(*), COALESCE(SUM(CASE WHEN is_finished THEN 1 ELSE 0 END), 0)
		FROM crawl_units WHERE ds = $1 AND city_code = $2 GROUP BY group_type`), ds, city)
	if err != nil {
		return report, fmt.Errorf("failed to count units: %w", err)
	}
	for rows.Next() {
		var (
			gt string
			sp model.StageProgress
		)
		if err := rows.Scan(&gt, &sp.Total, &sp.Finished); err != nil {
			rows.Close()
			return report, fmt.Errorf("failed to scan unit counts: %w", err)
		}
		report.Units[model.GroupType(gt)] = sp
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return report, fmt.Errorf("failed to read unit counts: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, s.rebind(
		`SELECT group_type, COUNT(*) FROM bubbles WHERE ds = $1 AND city_code = $2 GROUP BY group_type`), ds, city)
	if err != nil {
		return report, fmt.Errorf("failed to count bubbles: %w", err)
	}
	for rows.Next() {
		var (
			gt string
			n  int
		)
		if err := rows.Scan(&gt, &n); err != nil {
			rows.Close()
			return report, fmt.Errorf("failed to scan bubble counts: %w", err)
		}
		report.Bubbles[model.GroupType(gt)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return report, fmt.Errorf("failed to read bubble counts: %w", err)
	}

	counts := []struct {
		query string
		args  []any
		dest  []any
	}{
		{
			`SELECT COUNT(*), COALESCE(SUM(CASE WHEN has_more THEN 0 ELSE 1 END), 0)
			FROM house_progress WHERE ds = $1 AND city_code = $2`,
			[]any{ds, city},
			[]any{&report.HouseProgress.Total, &report.HouseProgress.Finished},
		},
		{
			`SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_detail_crawled THEN 1 ELSE 0 END), 0)
			FROM bubbles WHERE ds = $1 AND city_code = $2 AND group_type = $3`,
			[]any{ds, city, string(model.Community)},
			[]any{&report.CommunityDetails.Total, &report.CommunityDetails.Finished},
		},
		{
			`SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_detail_crawled THEN 1 ELSE 0 END), 0)
			FROM houses WHERE ds = $1 AND city_code = $2`,
			[]any{ds, city},
			[]any{&report.HouseDetails.Total, &report.HouseDetails.Finished},
		},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, s.rebind(c.query), c.args...).Scan(c.dest...); err != nil {
			return report, fmt.Errorf("failed to build progress report: %w", err)
		}
	}
	report.Houses = report.HouseDetails.Total
	return report, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
