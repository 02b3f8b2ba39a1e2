package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBubble_UnmarshalLooseTypes(t *testing.T) {
	raw := `{
		"id": 1611041580839,
		"index": "3",
		"name": "Jiuting",
		"count": 128,
		"price": 51234,
		"priceStr": "5.1w",
		"longitude": "121.31",
		"latitude": 31.12,
		"selected": false,
		"hideHouseCount": true,
		"imageType": null,
		"border": "",
		"unknownField": {"nested": true}
	}`

	var b Bubble
	require.NoError(t, json.Unmarshal([]byte(raw), &b))

	assert.Equal(t, "1611041580839", b.ID)
	assert.Equal(t, NewInteger(3), b.Index)
	assert.Equal(t, NewText("Jiuting"), b.Name)
	assert.Equal(t, NewInteger(128), b.Count)
	assert.Equal(t, NewText("51234"), b.Price)
	assert.Equal(t, NewNumber(121.31), b.Longitude)
	assert.Equal(t, NewNumber(31.12), b.Latitude)
	assert.Equal(t, NewInteger(0), b.Selected)
	assert.Equal(t, NewInteger(1), b.HideHouseCount)
	assert.False(t, b.ImageType.Valid)
	assert.Equal(t, NewText(""), b.Border)
	assert.False(t, b.Icon.Valid, "absent fields stay null")
	assert.False(t, b.DetailCrawled)
}

func TestBubble_MissingID(t *testing.T) {
	var b Bubble
	require.NoError(t, json.Unmarshal([]byte(`{"name":"x"}`), &b))
	assert.Empty(t, b.ID)
}

func TestBubble_RoundTripKeepsNulls(t *testing.T) {
	in := Bubble{
		ID:        "42",
		DS:        "20250701",
		CityCode:  "310000",
		GroupType: Community,
		Name:      NewText("Lakeside"),
		Latitude:  NewNumber(31.2),
	}
	in.MainTitle = NewText("Lakeside Garden")

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"icon":null`)
	assert.Contains(t, string(data), `"main_title":"Lakeside Garden"`)

	var out Bubble
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestInteger_RejectsFractions(t *testing.T) {
	var i Integer
	assert.Error(t, json.Unmarshal([]byte(`1.5`), &i))
	assert.NoError(t, json.Unmarshal([]byte(`2.0`), &i))
	assert.Equal(t, NewInteger(2), i)
	assert.NoError(t, json.Unmarshal([]byte(`" "`), &i))
	assert.False(t, i.Valid)
}

func TestText_Ptr(t *testing.T) {
	assert.Nil(t, Text{}.Ptr())
	s := "x"
	assert.Equal(t, &s, NewText("x").Ptr())
	assert.Equal(t, NewText("x"), TextPtr(&s))
	assert.False(t, TextPtr(nil).Valid)
}

func TestTags_Join(t *testing.T) {
	var item HouseItem
	require.NoError(t, json.Unmarshal([]byte(`{
		"actionUrl": "https://sh.ke.com/ershoufang/107110000001.html",
		"tags": [{"desc": "near subway"}, {"desc": "south-facing"}]
	}`), &item))

	house := item.ToHouse("107110000001", "20250701", "310000", "5011000012345")
	assert.Equal(t, NewText("near subway|south-facing"), house.Tags)
	assert.Equal(t, "5011000012345", house.CommunityID)

	assert.False(t, Tags(nil).Join().Valid)
	assert.Equal(t, NewText(""), Tags{}.Join())
}

func TestHouseID(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"https://sh.ke.com/ershoufang/107110000001.html", "107110000001", false},
		{"https://sh.ke.com/ershoufang/107110000001.html?fb_expo_id=9", "107110000001", false},
		{"/ershoufang/abc", "abc", false},
		{"https://sh.ke.com/", "", true},
		{"", "", true},
		{"https://sh.ke.com/ershoufang/.html", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := HouseID(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseGroupType(t *testing.T) {
	gt, err := ParseGroupType("bizcircle")
	require.NoError(t, err)
	assert.Equal(t, Bizcircle, gt)

	_, err = ParseGroupType("street")
	assert.Error(t, err)
}

func TestProgressReport(t *testing.T) {
	r := NewProgressReport("20250701", "310000")
	assert.Len(t, r.Units, 3)
	assert.False(t, r.Units[District].Done(), "a stage with no work is not done")
	assert.True(t, StageProgress{Finished: 4, Total: 4}.Done())
	assert.Equal(t, 1, HouseProgress{}.NextPage())
}
