// Package extract pulls detail fields out of community and house pages.
// Every field is looked up independently; a selector that matches nothing
// leaves its field null and never fails the page.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/researchaccelerator-hub/housing-map-crawler/model"
)

// Breadcrumb positions of the categorical labels.
const (
	communityBlockCrumb = 2
	houseDistrictCrumb  = 2
	houseBlockCrumb     = 3
)

// Community extracts the community detail fields from a page.
func Community(page []byte) (model.CommunityDetail, error) {
	doc, err := parse(page)
	if err != nil {
		return model.CommunityDetail{}, err
	}

	var d model.CommunityDetail
	title := doc.Find(".title").First()
	d.MainTitle = text(title.Find(".main"))
	d.SubTitle = text(title.Find(".sub"))
	d.BlockName = breadcrumb(doc, communityBlockCrumb)
	d.FollowCnt = text(doc.Find("#favCount"))
	d.UnitPrice = text(doc.Find(".xiaoquUnitPrice"))
	d.PriceDesc = text(doc.Find(".xiaoquUnitPriceDesc"))
	d.Info = communityInfo(doc)
	return d, nil
}

// House extracts the house detail fields from a page.
func House(page []byte) (model.HouseDetail, error) {
	doc, err := parse(page)
	if err != nil {
		return model.HouseDetail{}, err
	}

	var d model.HouseDetail
	title := doc.Find(".title").First()
	d.MainTitle = text(title.Find(".main"))
	d.SubTitle = text(title.Find(".sub"))
	d.DistrictName = breadcrumb(doc, houseDistrictCrumb)
	d.BlockName = breadcrumb(doc, houseBlockCrumb)
	d.FollowCnt = text(doc.Find("#favCount"))

	if price := doc.Find(".price-container").First(); price.Length() > 0 {
		d.TotalPriceNum = text(price.Find(".total"))
		d.TotalPriceUnit = text(price.Find(".unit"))
		d.UnitPrice = text(price.Find(".unitPrice"))
	}

	if info := doc.Find(".houseInfo").First(); info.Length() > 0 {
		d.RoomMainInfo, d.RoomSubInfo = mainSub(info.Find(".room"))
		d.TypeMainInfo, d.TypeSubInfo = mainSub(info.Find(".type"))
		d.AreaMainInfo, d.AreaSubInfo = mainSub(info.Find(".area"))
	}
	return d, nil
}

func parse(page []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("failed to parse detail page: %w", err)
	}
	return doc, nil
}

// text returns the stripped text of the first match, or null when nothing matches.
func text(sel *goquery.Selection) model.Text {
	if sel.Length() == 0 {
		return model.Text{}
	}
	return model.NewText(strippedText(sel.Nodes[0]))
}

// strippedText concatenates the descendant text nodes, each trimmed.
func strippedText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(strings.TrimSpace(n.Data))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// breadcrumb returns the i-th link of the breadcrumb bar.
func breadcrumb(doc *goquery.Document, i int) model.Text {
	links := doc.Find(".intro.clear").First().Find("a")
	if links.Length() <= i {
		return model.Text{}
	}
	return text(links.Eq(i))
}

func mainSub(sel *goquery.Selection) (model.Text, model.Text) {
	if sel.Length() == 0 {
		return model.Text{}, model.Text{}
	}
	first := sel.First()
	return text(first.Find(".mainInfo")), text(first.Find(".subInfo"))
}

// communityInfo collects the label/content pairs into a JSON object, in page order.
func communityInfo(doc *goquery.Document) model.Text {
	var (
		labels []string
		values = make(map[string]string)
	)
	doc.Find(".xiaoquInfoItem").Each(func(_ int, item *goquery.Selection) {
		label := item.Find(".xiaoquInfoLabel")
		content := item.Find(".xiaoquInfoContent")
		if label.Length() == 0 || content.Length() == 0 {
			return
		}
		key := strippedText(label.Nodes[0])
		if _, dup := values[key]; !dup {
			labels = append(labels, key)
		}
		values[key] = strippedText(content.Nodes[0])
	})
	if len(labels) == 0 {
		return model.Text{}
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range labels {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := marshalNoEscape(key)
		v, _ := marshalNoEscape(values[key])
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return model.NewText(buf.String())
}

// marshalNoEscape encodes s as a JSON string keeping non-ASCII and HTML
// characters readable.
func marshalNoEscape(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
