package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/researchaccelerator-hub/housing-map-crawler/geo"
	"github.com/researchaccelerator-hub/housing-map-crawler/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *MapClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewMapClient(Config{
		BaseURL: srv.URL + "/map",
		Cookie:  "lianjia_token=abc",
		Retries: 2,
		Backoff: time.Millisecond,
	})
}

func TestBubbleList(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/map/bubblelist", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "310000", q.Get("cityId"))
		assert.Equal(t, "ESF", q.Get("dataSource"))
		assert.Equal(t, "community", q.Get("groupType"))
		assert.Equal(t, "30.66", q.Get("minLatitude"))
		assert.Equal(t, "30.71", q.Get("maxLatitude"))
		assert.Equal(t, "120.86", q.Get("minLongitude"))
		assert.Equal(t, "120.91", q.Get("maxLongitude"))
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "lianjia_token=abc", r.Header.Get("Cookie"))

		w.Write([]byte(`{"data":{"bubbleList":[
			{"id":5011000012345,"name":"Lakeside","count":"12","longitude":120.88,"latitude":30.68},
			{"id":"5011000012346","name":"Riverside","imageType":[1]}
		]}}`))
	})

	bubbles, err := c.BubbleList(context.Background(), "310000", model.Community,
		geo.Box{MinLat: 30.66, MaxLat: 30.71, MinLon: 120.86, MaxLon: 120.91})
	require.NoError(t, err)
	require.Len(t, bubbles, 1, "malformed entries are skipped")
	assert.Equal(t, "5011000012345", bubbles[0].ID)
	assert.Equal(t, model.NewInteger(12), bubbles[0].Count)
}

func TestBubbleListAbsentFieldIsEmpty(t *testing.T) {
	for name, body := range map[string]string{
		"no bubbleList": `{"data":{"totalCount":0}}`,
		"null data":     `{"data":null}`,
		"no data":       `{}`,
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			})
			bubbles, err := c.BubbleList(context.Background(), "310000", model.District, geo.Box{MaxLat: 1, MaxLon: 1})
			require.NoError(t, err)
			assert.NotNil(t, bubbles)
			assert.Empty(t, bubbles)
		})
	}
}

func TestHouseList(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/map/houselist", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("curPage"))
		assert.Equal(t, "5011000012345", r.URL.Query().Get("resblockId"))
		w.Write([]byte(`{"data":{"totalCount":"31","hasMore":true,"list":[
			{"title":"2br near park","actionUrl":"https://sh.ke.com/ershoufang/107110000001.html",
			 "tags":[{"desc":"near subway"},{"desc":"south-facing"}],"priceStr":"560w"}
		]}}`))
	})

	page, err := c.HouseList(context.Background(), "310000", "5011000012345", 2)
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	assert.Equal(t, 31, page.TotalCount)
	require.Len(t, page.Houses, 1)
	assert.Equal(t, model.NewText("near subway|south-facing"), page.Houses[0].Tags.Join())
}

func TestHouseListMissingHasMoreEndsPagination(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"list":[]}}`))
	})
	page, err := c.HouseList(context.Background(), "310000", "1", 1)
	require.NoError(t, err)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.Houses)

	_, err = c.HouseList(context.Background(), "310000", "1", 0)
	assert.Error(t, err)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`<html>ok</html>`))
	})

	body, err := c.FetchPage(context.Background(), c.baseURL+"/xiaoqu/1/")
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryGivesUp(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.FetchPage(context.Background(), c.baseURL+"/xiaoqu/1/")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStatus))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := c.BubbleList(context.Background(), "310000", model.District, geo.Box{MaxLat: 1, MaxLon: 1})
	assert.ErrorIs(t, err, ErrStatus)
	assert.Equal(t, int32(1), calls.Load())
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"not found", &StatusError{Code: http.StatusNotFound}, true},
		{"gone wrapped", fmt.Errorf("house 1 detail: %w", &StatusError{Code: http.StatusGone}), true},
		{"too many requests", &StatusError{Code: http.StatusTooManyRequests}, false},
		{"server error", &StatusError{Code: http.StatusBadGateway}, false},
		{"network", errors.New("connection reset"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPermanent(tt.err))
		})
	}
}

func TestNotFoundPageIsPermanent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.FetchPage(context.Background(), c.baseURL+"/xiaoqu/1/")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStatus)
	assert.True(t, IsPermanent(err))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
}

func TestMalformedBodyIsAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>captcha</html>`))
	})
	_, err := c.BubbleList(context.Background(), "310000", model.District, geo.Box{MaxLat: 1, MaxLon: 1})
	assert.ErrorContains(t, err, "failed to decode")
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, 5, time.Hour, func() error {
		calls++
		cancel()
		return retryable(errors.New("boom"))
	})
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, 1, calls)
}

func TestNewMapClientDefaults(t *testing.T) {
	c := NewMapClient(Config{Retries: -1})
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, 0, c.retries)
	assert.Equal(t, 30*time.Second, c.http.Timeout)
	assert.Equal(t,
		DefaultBaseURL+"/houselist?cityId=310000&curPage=1&dataSource=ESF&resblockId=42",
		c.HouseListURL("310000", "42", 1))
}

func TestMaxRequestTime(t *testing.T) {
	// 3 attempts of 30s plus 2s and 4s of backoff.
	assert.Equal(t, 96*time.Second, Config{Timeout: 30 * time.Second, Retries: 2, Backoff: 2 * time.Second}.MaxRequestTime())
	assert.Equal(t, 96*time.Second, Config{Retries: 2}.MaxRequestTime(), "defaults apply")
	assert.Equal(t, 5*time.Second, Config{Timeout: 5 * time.Second, Retries: -1}.MaxRequestTime())
}
