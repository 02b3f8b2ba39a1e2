package state

import (
	"strconv"
	"strings"

	"github.com/researchaccelerator-hub/housing-map-crawler/model"
)

// Shared DDL. {{serial}} and {{float}} are filled in per dialect.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS crawl_units (
		id {{serial}},
		ds TEXT NOT NULL,
		city_code TEXT NOT NULL,
		group_type TEXT NOT NULL,
		min_lat {{float}} NOT NULL,
		max_lat {{float}} NOT NULL,
		min_lon {{float}} NOT NULL,
		max_lon {{float}} NOT NULL,
		cell TEXT NOT NULL,
		is_finished BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS crawl_units_key ON crawl_units (ds, city_code, group_type, cell)`,
	`CREATE TABLE IF NOT EXISTS bubbles (
		seq {{serial}},
		id TEXT NOT NULL,
		ds TEXT NOT NULL,
		city_code TEXT NOT NULL,
		group_type TEXT NOT NULL,
		item_index BIGINT,
		full_spell TEXT,
		description TEXT,
		count BIGINT,
		count_str TEXT,
		count_unit TEXT,
		price TEXT,
		price_str TEXT,
		status TEXT,
		price_unit TEXT,
		border TEXT,
		bubble_desc TEXT,
		icon TEXT,
		entity_id TEXT,
		entity_type TEXT,
		hide_house_count BIGINT,
		name TEXT,
		longitude {{float}},
		latitude {{float}},
		image_type BIGINT,
		selected BIGINT,
		is_detail_crawled BOOLEAN NOT NULL DEFAULT FALSE,
		main_title TEXT,
		sub_title TEXT,
		block_name TEXT,
		follow_cnt TEXT,
		unit_price TEXT,
		price_desc TEXT,
		info TEXT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS bubbles_key ON bubbles (id, ds, city_code, group_type)`,
	`CREATE TABLE IF NOT EXISTS house_progress (
		id {{serial}},
		ds TEXT NOT NULL,
		city_code TEXT NOT NULL,
		community_id TEXT NOT NULL,
		finished_page INTEGER NOT NULL DEFAULT 0,
		has_more BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS house_progress_key ON house_progress (ds, city_code, community_id)`,
	`CREATE TABLE IF NOT EXISTS houses (
		seq {{serial}},
		id TEXT NOT NULL,
		ds TEXT NOT NULL,
		city_code TEXT NOT NULL,
		community_id TEXT NOT NULL,
		item_index BIGINT,
		title TEXT,
		description TEXT,
		tags TEXT,
		cover_pic TEXT,
		price_str TEXT,
		unit_price_str TEXT,
		action_url TEXT,
		card_type TEXT,
		is_detail_crawled BOOLEAN NOT NULL DEFAULT FALSE,
		main_title TEXT,
		sub_title TEXT,
		district_name TEXT,
		block_name TEXT,
		follow_cnt TEXT,
		total_price_num TEXT,
		total_price_unit TEXT,
		unit_price TEXT,
		room_main_info TEXT,
		room_sub_info TEXT,
		type_main_info TEXT,
		type_sub_info TEXT,
		area_main_info TEXT,
		area_sub_info TEXT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS houses_key ON houses (id, ds, city_code, community_id)`,
}

var dialects = map[string]*strings.Replacer{
	"sqlite": strings.NewReplacer(
		"{{serial}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{float}}", "REAL",
	),
	"postgres": strings.NewReplacer(
		"{{serial}}", "BIGSERIAL PRIMARY KEY",
		"{{float}}", "DOUBLE PRECISION",
	),
}

var bubbleColumns = []string{
	"id", "ds", "city_code", "group_type",
	"item_index", "full_spell", "description", "count", "count_str", "count_unit",
	"price", "price_str", "status", "price_unit", "border", "bubble_desc", "icon",
	"entity_id", "entity_type", "hide_house_count", "name", "longitude", "latitude",
	"image_type", "selected", "is_detail_crawled",
	"main_title", "sub_title", "block_name", "follow_cnt", "unit_price", "price_desc", "info",
}

func bubbleArgs(b model.Bubble) []any {
	return []any{
		b.ID, b.DS, b.CityCode, string(b.GroupType),
		b.Index, b.FullSpell, b.Desc, b.Count, b.CountStr, b.CountUnit,
		b.Price, b.PriceStr, b.Status, b.PriceUnit, b.Border, b.BubbleDesc, b.Icon,
		b.EntityID, b.EntityType, b.HideHouseCount, b.Name, b.Longitude, b.Latitude,
		b.ImageType, b.Selected, b.DetailCrawled,
		b.MainTitle, b.SubTitle, b.BlockName, b.FollowCnt, b.UnitPrice, b.PriceDesc, b.Info,
	}
}

func bubbleDest(b *model.Bubble) []any {
	return []any{
		&b.ID, &b.DS, &b.CityCode, &b.GroupType,
		&b.Index, &b.FullSpell, &b.Desc, &b.Count, &b.CountStr, &b.CountUnit,
		&b.Price, &b.PriceStr, &b.Status, &b.PriceUnit, &b.Border, &b.BubbleDesc, &b.Icon,
		&b.EntityID, &b.EntityType, &b.HideHouseCount, &b.Name, &b.Longitude, &b.Latitude,
		&b.ImageType, &b.Selected, &b.DetailCrawled,
		&b.MainTitle, &b.SubTitle, &b.BlockName, &b.FollowCnt, &b.UnitPrice, &b.PriceDesc, &b.Info,
	}
}

var houseColumns = []string{
	"id", "ds", "city_code", "community_id",
	"item_index", "title", "description", "tags", "cover_pic", "price_str",
	"unit_price_str", "action_url", "card_type", "is_detail_crawled",
	"main_title", "sub_title", "district_name", "block_name", "follow_cnt",
	"total_price_num", "total_price_unit", "unit_price",
	"room_main_info", "room_sub_info", "type_main_info", "type_sub_info",
	"area_main_info", "area_sub_info",
}

func houseArgs(h model.House) []any {
	return []any{
		h.ID, h.DS, h.CityCode, h.CommunityID,
		h.Index, h.Title, h.Desc, h.Tags, h.CoverPic, h.PriceStr,
		h.UnitPriceStr, h.ActionURL, h.CardType, h.DetailCrawled,
		h.MainTitle, h.SubTitle, h.DistrictName, h.BlockName, h.FollowCnt,
		h.TotalPriceNum, h.TotalPriceUnit, h.UnitPrice,
		h.RoomMainInfo, h.RoomSubInfo, h.TypeMainInfo, h.TypeSubInfo,
		h.AreaMainInfo, h.AreaSubInfo,
	}
}

func houseDest(h *model.House) []any {
	return []any{
		&h.ID, &h.DS, &h.CityCode, &h.CommunityID,
		&h.Index, &h.Title, &h.Desc, &h.Tags, &h.CoverPic, &h.PriceStr,
		&h.UnitPriceStr, &h.ActionURL, &h.CardType, &h.DetailCrawled,
		&h.MainTitle, &h.SubTitle, &h.DistrictName, &h.BlockName, &h.FollowCnt,
		&h.TotalPriceNum, &h.TotalPriceUnit, &h.UnitPrice,
		&h.RoomMainInfo, &h.RoomSubInfo, &h.TypeMainInfo, &h.TypeSubInfo,
		&h.AreaMainInfo, &h.AreaSubInfo,
	}
}

// insertIgnore builds an insert-if-absent statement for the given columns.
func insertIgnore(table string, columns []string) string {
	return "INSERT INTO " + table + " (" + strings.Join(columns, ", ") + ") VALUES (" +
		placeholders(1, len(columns)) + ") ON CONFLICT DO NOTHING"
}

func selectColumns(table string, columns []string) string {
	return "SELECT " + strings.Join(columns, ", ") + " FROM " + table
}

// placeholders returns "$from, ..., $(from+n-1)".
func placeholders(from, n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("$")
		sb.WriteString(strconv.Itoa(from + i))
	}
	return sb.String()
}
