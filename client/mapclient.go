package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/researchaccelerator-hub/housing-map-crawler/geo"
	"github.com/researchaccelerator-hub/housing-map-crawler/model"
)

const (
	DefaultBaseURL   = "https://map.ke.com/proxyApi/i.c-pc-webapi.ke.com/map"
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36"

	dataSource = "ESF"

	defaultTimeout = 30 * time.Second
	defaultBackoff = 2 * time.Second

	// Detail pages are a few hundred KB; anything far larger is not a listing page.
	maxBodySize = 16 << 20
)

// ErrStatus is returned for non-2xx upstream responses.
var ErrStatus = errors.New("unexpected upstream status")

// StatusError is a non-2xx upstream response. It matches ErrStatus.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: %d from %s", ErrStatus, e.Code, e.URL)
}

func (e *StatusError) Is(target error) bool { return target == ErrStatus }

// IsPermanent reports whether err is a 4xx response other than 429.
func IsPermanent(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests
}

// Config configures MapClient. Zero values fall back to defaults.
type Config struct {
	BaseURL   string
	UserAgent string
	Cookie    string
	Timeout   time.Duration
	Retries   int
	Backoff   time.Duration

	// HTTPClient overrides the transport; Timeout is ignored when set.
	HTTPClient *http.Client
}

// MaxRequestTime bounds one call including every retry and backoff wait.
func (c Config) MaxRequestTime() time.Duration {
	timeout, retries, backoff := c.Timeout, max(c.Retries, 0), c.Backoff
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	waits := backoff * time.Duration(1<<uint(retries)-1)
	return time.Duration(retries+1)*timeout + waits
}

// MapClient talks to the map API and downloads detail pages.
type MapClient struct {
	http      *http.Client
	baseURL   string
	userAgent string
	cookie    string
	retries   int
	backoff   time.Duration
}

// NewMapClient builds a client from config.
func NewMapClient(config Config) *MapClient {
	c := &MapClient{
		http:      config.HTTPClient,
		baseURL:   strings.TrimRight(config.BaseURL, "/"),
		userAgent: config.UserAgent,
		cookie:    config.Cookie,
		retries:   config.Retries,
		backoff:   config.Backoff,
	}
	if c.http == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.retries < 0 {
		c.retries = 0
	}
	if c.backoff <= 0 {
		c.backoff = defaultBackoff
	}
	return c
}

// BubbleListURL builds the bubble list query for one tile.
func (c *MapClient) BubbleListURL(cityCode string, gt model.GroupType, box geo.Box) string {
	q := url.Values{}
	q.Set("cityId", cityCode)
	q.Set("dataSource", dataSource)
	q.Set("groupType", string(gt))
	q.Set("maxLatitude", geo.FormatCoord(box.MaxLat))
	q.Set("minLatitude", geo.FormatCoord(box.MinLat))
	q.Set("maxLongitude", geo.FormatCoord(box.MaxLon))
	q.Set("minLongitude", geo.FormatCoord(box.MinLon))
	return c.baseURL + "/bubblelist?" + q.Encode()
}

// HouseListURL builds the house list query for one community page.
func (c *MapClient) HouseListURL(cityCode, communityID string, page int) string {
	q := url.Values{}
	q.Set("cityId", cityCode)
	q.Set("dataSource", dataSource)
	q.Set("curPage", strconv.Itoa(page))
	q.Set("resblockId", communityID)
	return c.baseURL + "/houselist?" + q.Encode()
}

type listResponse struct {
	Data *struct {
		BubbleList []json.RawMessage `json:"bubbleList"`
		TotalCount model.Integer     `json:"totalCount"`
		List       []json.RawMessage `json:"list"`
		HasMore    *bool             `json:"hasMore"`
	} `json:"data"`
}

func (c *MapClient) BubbleList(ctx context.Context, cityCode string, gt model.GroupType, box geo.Box) ([]model.Bubble, error) {
	var resp listResponse
	if err := c.getJSON(ctx, c.BubbleListURL(cityCode, gt, box), &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return []model.Bubble{}, nil
	}

	bubbles := make([]model.Bubble, 0, len(resp.Data.BubbleList))
	for i, raw := range resp.Data.BubbleList {
		var b model.Bubble
		if err := json.Unmarshal(raw, &b); err != nil {
			log.Warn().Err(err).Int("position", i).Str("box", box.String()).Msg("Skipping malformed bubble")
			continue
		}
		bubbles = append(bubbles, b)
	}
	return bubbles, nil
}

func (c *MapClient) HouseList(ctx context.Context, cityCode, communityID string, page int) (HousePage, error) {
	if page < 1 {
		return HousePage{}, fmt.Errorf("invalid house list page %d", page)
	}
	var resp listResponse
	if err := c.getJSON(ctx, c.HouseListURL(cityCode, communityID, page), &resp); err != nil {
		return HousePage{}, err
	}

	var out HousePage
	if resp.Data == nil {
		return out, nil
	}
	if resp.Data.HasMore != nil {
		out.HasMore = *resp.Data.HasMore
	}
	if resp.Data.TotalCount.Valid {
		out.TotalCount = int(resp.Data.TotalCount.Int64)
	}
	out.Houses = make([]model.HouseItem, 0, len(resp.Data.List))
	for i, raw := range resp.Data.List {
		var h model.HouseItem
		if err := json.Unmarshal(raw, &h); err != nil {
			log.Warn().Err(err).Int("position", i).Str("community_id", communityID).Int("page", page).
				Msg("Skipping malformed house")
			continue
		}
		out.Houses = append(out.Houses, h)
	}
	return out, nil
}

func (c *MapClient) FetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	return c.get(ctx, pageURL, "text/html")
}

func (c *MapClient) getJSON(ctx context.Context, reqURL string, v any) error {
	body, err := c.get(ctx, reqURL, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", reqURL, err)
	}
	return nil
}

// get performs a GET with retry and returns the body of a 2xx response.
func (c *MapClient) get(ctx context.Context, reqURL, accept string) ([]byte, error) {
	var body []byte
	err := Retry(ctx, c.retries, c.backoff, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("failed to build request for %s: %w", reqURL, err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", accept)
		if c.cookie != "" {
			req.Header.Set("Cookie", c.cookie)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return retryable(fmt.Errorf("request to %s failed: %w", reqURL, err))
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
			statusErr := &StatusError{Code: resp.StatusCode, URL: reqURL}
			if retryableStatus(resp.StatusCode) {
				return retryable(statusErr)
			}
			return statusErr
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return retryable(fmt.Errorf("failed to read response from %s: %w", reqURL, err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}
