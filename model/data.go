package model

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/researchaccelerator-hub/housing-map-crawler/geo"
)

// GroupType is the granularity of a map bubble.
type GroupType string

const (
	District  GroupType = "district"
	Bizcircle GroupType = "bizcircle"
	Community GroupType = "community"
)

// GroupTypes lists the bubble levels in crawl order, coarsest first.
var GroupTypes = []GroupType{District, Bizcircle, Community}

// ParseGroupType validates a group type name.
func ParseGroupType(s string) (GroupType, error) {
	for _, gt := range GroupTypes {
		if string(gt) == s {
			return gt, nil
		}
	}
	return "", fmt.Errorf("unknown group type %q", s)
}

// City is one crawlable city. Box may be omitted when Polyline is set.
type City struct {
	Name     string  `json:"name" mapstructure:"name"`
	Code     string  `json:"code" mapstructure:"code"`
	URL      string  `json:"url" mapstructure:"url"`
	Box      geo.Box `json:"box" mapstructure:"box"`
	Polyline string  `json:"polyline,omitempty" mapstructure:"polyline"`
}

// CrawlUnit is one tile of one group type, scoped to a crawl date and city.
type CrawlUnit struct {
	ID        int64     `json:"id"`
	DS        string    `json:"ds"`
	CityCode  string    `json:"city_code"`
	GroupType GroupType `json:"group_type"`
	Box       geo.Box   `json:"box"`
	Cell      string    `json:"cell"`
	Finished  bool      `json:"is_finished"`
}

// HouseProgress tracks pagination through one community's house list.
// FinishedPage is the last 1-indexed page ingested, 0 if none.
type HouseProgress struct {
	ID           int64  `json:"id"`
	DS           string `json:"ds"`
	CityCode     string `json:"city_code"`
	CommunityID  string `json:"community_id"`
	FinishedPage int    `json:"finished_page"`
	HasMore      bool   `json:"has_more"`
}

// NextPage is the page the paginator resumes at.
func (p HouseProgress) NextPage() int {
	return p.FinishedPage + 1
}

// Bubble is a district, business circle or community marker from the map API.
type Bubble struct {
	ID        string    `json:"id"`
	DS        string    `json:"ds"`
	CityCode  string    `json:"city_code"`
	GroupType GroupType `json:"group_type"`

	Index          Integer `json:"index"`
	FullSpell      Text    `json:"fullSpell"`
	Desc           Text    `json:"desc"`
	Count          Integer `json:"count"`
	CountStr       Text    `json:"countStr"`
	CountUnit      Text    `json:"countUnit"`
	Price          Text    `json:"price"`
	PriceStr       Text    `json:"priceStr"`
	Status         Text    `json:"status"`
	PriceUnit      Text    `json:"priceUnit"`
	Border         Text    `json:"border"`
	BubbleDesc     Text    `json:"bubbleDesc"`
	Icon           Text    `json:"icon"`
	EntityID       Text    `json:"entityId"`
	EntityType     Text    `json:"entityType"`
	HideHouseCount Integer `json:"hideHouseCount"`
	Name           Text    `json:"name"`
	Longitude      Number  `json:"longitude"`
	Latitude       Number  `json:"latitude"`
	ImageType      Integer `json:"imageType"`
	Selected       Integer `json:"selected"`

	DetailCrawled bool `json:"is_detail_crawled"`
	CommunityDetail
}

// UnmarshalJSON accepts the upstream id as either a number or a string.
func (b *Bubble) UnmarshalJSON(data []byte) error {
	type plain Bubble
	aux := struct {
		*plain
		ID Text `json:"id"`
	}{plain: (*plain)(b)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	b.ID = ""
	if aux.ID.Valid {
		b.ID = aux.ID.String
	}
	return nil
}

// CommunityDetail holds the fields scraped from a community page. Every field
// is independently optional.
type CommunityDetail struct {
	MainTitle Text `json:"main_title"`
	SubTitle  Text `json:"sub_title"`
	BlockName Text `json:"block_name"`
	FollowCnt Text `json:"follow_cnt"`
	UnitPrice Text `json:"unit_price"`
	PriceDesc Text `json:"price_desc"`
	Info      Text `json:"info"`
}

// Tag is a house list label.
type Tag struct {
	Desc string `json:"desc"`
}

// Tags is stored flattened as "a|b|c".
type Tags []Tag

// Join flattens the tag descriptions with '|'. No tags is null.
func (t Tags) Join() Text {
	if t == nil {
		return Text{}
	}
	descs := make([]string, 0, len(t))
	for _, tag := range t {
		descs = append(descs, tag.Desc)
	}
	return NewText(strings.Join(descs, "|"))
}

// HouseItem is one entry of a house list page as returned upstream.
type HouseItem struct {
	Index        Integer `json:"index"`
	Title        Text    `json:"title"`
	Desc         Text    `json:"desc"`
	Tags         Tags    `json:"tags"`
	CoverPic     Text    `json:"coverPic"`
	PriceStr     Text    `json:"priceStr"`
	UnitPriceStr Text    `json:"unitPriceStr"`
	ActionURL    Text    `json:"actionUrl"`
	CardType     Text    `json:"cardType"`
}

// House is a stored listing.
type House struct {
	ID          string `json:"id"`
	DS          string `json:"ds"`
	CityCode    string `json:"city_code"`
	CommunityID string `json:"community_id"`

	Index        Integer `json:"index"`
	Title        Text    `json:"title"`
	Desc         Text    `json:"desc"`
	Tags         Text    `json:"tags"`
	CoverPic     Text    `json:"coverPic"`
	PriceStr     Text    `json:"priceStr"`
	UnitPriceStr Text    `json:"unitPriceStr"`
	ActionURL    Text    `json:"actionUrl"`
	CardType     Text    `json:"cardType"`

	DetailCrawled bool `json:"is_detail_crawled"`
	HouseDetail
}

// HouseDetail holds the fields scraped from a house page.
type HouseDetail struct {
	MainTitle      Text `json:"main_title"`
	SubTitle       Text `json:"sub_title"`
	DistrictName   Text `json:"district_name"`
	BlockName      Text `json:"block_name"`
	FollowCnt      Text `json:"follow_cnt"`
	TotalPriceNum  Text `json:"total_price_num"`
	TotalPriceUnit Text `json:"total_price_unit"`
	UnitPrice      Text `json:"unit_price"`
	RoomMainInfo   Text `json:"room_main_info"`
	RoomSubInfo    Text `json:"room_sub_info"`
	TypeMainInfo   Text `json:"type_main_info"`
	TypeSubInfo    Text `json:"type_sub_info"`
	AreaMainInfo   Text `json:"area_main_info"`
	AreaSubInfo    Text `json:"area_sub_info"`
}

// HouseID derives the stable house id from a detail URL: the last path
// segment with its extension stripped ("/ershoufang/1011.html" -> "1011").
func HouseID(actionURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(actionURL))
	if err != nil {
		return "", fmt.Errorf("parse action url %q: %w", actionURL, err)
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return "", fmt.Errorf("action url %q has no path segment", actionURL)
	}
	id := strings.TrimSuffix(base, path.Ext(base))
	if id == "" {
		return "", fmt.Errorf("action url %q has an empty id", actionURL)
	}
	return id, nil
}

// ToHouse tags a list entry with its scope and flattens its tags.
func (h HouseItem) ToHouse(id, ds, cityCode, communityID string) House {
	return House{
		ID:           id,
		DS:           ds,
		CityCode:     cityCode,
		CommunityID:  communityID,
		Index:        h.Index,
		Title:        h.Title,
		Desc:         h.Desc,
		Tags:         h.Tags.Join(),
		CoverPic:     h.CoverPic,
		PriceStr:     h.PriceStr,
		UnitPriceStr: h.UnitPriceStr,
		ActionURL:    h.ActionURL,
		CardType:     h.CardType,
	}
}

// DetailTarget identifies an entity whose detail page is still to be fetched.
type DetailTarget struct {
	ID          string `json:"id"`
	DS          string `json:"ds"`
	CityCode    string `json:"city_code"`
	CommunityID string `json:"community_id,omitempty"`
	URL         string `json:"url,omitempty"`
}

// StageProgress is a finished/total pair.
type StageProgress struct {
	Finished int `json:"finished"`
	Total    int `json:"total"`
}

// Done reports whether the stage has work and all of it is finished.
func (s StageProgress) Done() bool {
	return s.Total > 0 && s.Finished == s.Total
}

// ProgressReport aggregates per-stage counts for one city and crawl date.
type ProgressReport struct {
	DS               string                      `json:"ds"`
	CityCode         string                      `json:"city_code"`
	Units            map[GroupType]StageProgress `json:"units"`
	Bubbles          map[GroupType]int           `json:"bubbles"`
	HouseProgress    StageProgress               `json:"house_progress"`
	Houses           int                         `json:"houses"`
	CommunityDetails StageProgress               `json:"community_details"`
	HouseDetails     StageProgress               `json:"house_details"`
}

// NewProgressReport returns a report with every group type present.
func NewProgressReport(ds, cityCode string) ProgressReport {
	r := ProgressReport{
		DS:       ds,
		CityCode: cityCode,
		Units:    make(map[GroupType]StageProgress, len(GroupTypes)),
		Bubbles:  make(map[GroupType]int, len(GroupTypes)),
	}
	for _, gt := range GroupTypes {
		r.Units[gt] = StageProgress{}
		r.Bubbles[gt] = 0
	}
	return r
}
