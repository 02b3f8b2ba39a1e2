package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/researchaccelerator-hub/housing-map-crawler/model"
)

const communityPage = `<html><body>
<div class="intro clear">
  <a href="/">Home</a><a href="/xiaoqu/">Communities</a><a href="/xiaoqu/pudong/">Pudong</a><a href="#">Lakeside</a>
</div>
<div class="title">
  <h1 class="main"> Lakeside Garden </h1>
  <div class="sub">Lane 88,  <span>Jinqiao Rd</span></div>
</div>
<span id="favCount"> 128 </span>
<span class="xiaoquUnitPrice">65321</span>
<span class="xiaoquUnitPriceDesc">Jun reference price</span>
<div class="xiaoquInfoItem"><span class="xiaoquInfoLabel">Built</span><span class="xiaoquInfoContent">2008</span></div>
<div class="xiaoquInfoItem"><span class="xiaoquInfoLabel">Type</span><span class="xiaoquInfoContent">Tower &amp; villa</span></div>
<div class="xiaoquInfoItem"><span class="xiaoquInfoLabel">Orphan</span></div>
</body></html>`

const housePage = `<html><body>
<div class="title"><h1 class="main">Bright 2br</h1><div class="sub">Metro line 9</div></div>
<div class="intro clear">
  <a>Home</a><a>Second hand</a><a>Pudong</a><a>Jinqiao</a>
</div>
<span id="favCount">7</span>
<div class="price-container">
  <span class="total">560</span><span class="unit"><span>w</span></span>
  <div class="unitPrice"><span>62,922</span> per sqm</div>
</div>
<div class="houseInfo">
  <div class="room"><div class="mainInfo">2br 1ba</div><div class="subInfo">mid floor/18</div></div>
  <div class="type"><div class="mainInfo">South</div></div>
  <div class="area"><div class="mainInfo">89sqm</div><div class="subInfo">built 2008</div></div>
</div>
</body></html>`

func TestCommunity(t *testing.T) {
	d, err := Community([]byte(communityPage))
	require.NoError(t, err)

	assert.Equal(t, model.NewText("Lakeside Garden"), d.MainTitle)
	assert.Equal(t, model.NewText("Lane 88,Jinqiao Rd"), d.SubTitle)
	assert.Equal(t, model.NewText("Pudong"), d.BlockName)
	assert.Equal(t, model.NewText("128"), d.FollowCnt)
	assert.Equal(t, model.NewText("65321"), d.UnitPrice)
	assert.Equal(t, model.NewText("Jun reference price"), d.PriceDesc)
	assert.Equal(t, model.NewText(`{"Built":"2008","Type":"Tower & villa"}`), d.Info)
}

func TestHouse(t *testing.T) {
	d, err := House([]byte(housePage))
	require.NoError(t, err)

	assert.Equal(t, model.NewText("Bright 2br"), d.MainTitle)
	assert.Equal(t, model.NewText("Metro line 9"), d.SubTitle)
	assert.Equal(t, model.NewText("Pudong"), d.DistrictName)
	assert.Equal(t, model.NewText("Jinqiao"), d.BlockName)
	assert.Equal(t, model.NewText("7"), d.FollowCnt)
	assert.Equal(t, model.NewText("560"), d.TotalPriceNum)
	assert.Equal(t, model.NewText("w"), d.TotalPriceUnit)
	assert.Equal(t, model.NewText("62,922per sqm"), d.UnitPrice)
	assert.Equal(t, model.NewText("2br 1ba"), d.RoomMainInfo)
	assert.Equal(t, model.NewText("mid floor/18"), d.RoomSubInfo)
	assert.Equal(t, model.NewText("South"), d.TypeMainInfo)
	assert.False(t, d.TypeSubInfo.Valid)
	assert.Equal(t, model.NewText("89sqm"), d.AreaMainInfo)
	assert.Equal(t, model.NewText("built 2008"), d.AreaSubInfo)
}

func TestMissingSelectorsLeaveFieldsNull(t *testing.T) {
	page := []byte(`<html><body><div class="title"><h1 class="main">Only a title</h1></div>
		<div class="intro clear"><a>Home</a><a>Second hand</a><a>Pudong</a></div></body></html>`)

	c, err := Community(page)
	require.NoError(t, err)
	assert.Equal(t, model.NewText("Only a title"), c.MainTitle)
	assert.Equal(t, model.NewText("Pudong"), c.BlockName)
	assert.Equal(t, model.CommunityDetail{MainTitle: c.MainTitle, BlockName: c.BlockName}, c)

	h, err := House(page)
	require.NoError(t, err)
	assert.Equal(t, model.NewText("Pudong"), h.DistrictName)
	assert.False(t, h.BlockName.Valid, "breadcrumb too short for the block")
	assert.False(t, h.TotalPriceNum.Valid)
	assert.False(t, h.AreaMainInfo.Valid)
}

func TestEmptyPage(t *testing.T) {
	c, err := Community(nil)
	require.NoError(t, err)
	assert.Equal(t, model.CommunityDetail{}, c)

	h, err := House([]byte("not html at all"))
	require.NoError(t, err)
	assert.Equal(t, model.HouseDetail{}, h)
}
