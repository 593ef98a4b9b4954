package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *CongressClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return NewCongressClient(ClientConfig{
		BaseURL:      srv.URL,
		APIKey:       "test-key",
		RequestDelay: time.Millisecond,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
	})
}

func TestRequestDelay(t *testing.T) {
	tests := []struct {
		limit int
		want  time.Duration
	}{
		{5000, 720 * time.Millisecond},
		{3600, time.Second},
		{7, 514286 * time.Millisecond},
		{0, 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.limit), func(t *testing.T) {
			assert.Equal(t, tt.want, RequestDelay(tt.limit))
		})
	}
}

func TestNewCongressClient_DerivesDelayFromLimit(t *testing.T) {
	c := NewCongressClient(ClientConfig{APIKey: "k"})
	assert.Equal(t, 720*time.Millisecond, c.Delay())
	assert.Equal(t, DefaultBaseURL, c.baseURL)
}

func TestValidate_MissingKey(t *testing.T) {
	c := NewCongressClient(ClientConfig{})
	assert.ErrorIs(t, c.Validate(), ErrMissingAPIKey)
}

func TestListBills(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bill/119/hr", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "4", r.URL.Query().Get("offset"))
		assert.Equal(t, "updateDate+desc", r.URL.Query().Get("sort"))
		assert.Equal(t, "2025-03-01T00:00:00Z", r.URL.Query().Get("fromDateTime"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"bills":[
			{"congress":119,"type":"HR","number":"1","title":"One","updateDate":"2025-03-02"},
			{"congress":119,"type":"HR","number":2,"title":"Two","updateDate":"2025-03-02"}
		]}`)
	})

	page, err := c.ListBills(context.Background(), 119, "hr", ListOptions{
		Offset:       4,
		Limit:        2,
		Sort:         "updateDate+desc",
		FromDateTime: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.Len(t, page.Bills, 2)
	assert.Equal(t, "1", page.Bills[0].Number.String())
	assert.Equal(t, "2", page.Bills[1].Number.String())
	assert.True(t, page.HasMore)
	assert.Equal(t, 4, page.Offset)
}

func TestListBills_ShortPageHasNoMore(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bills":[{"congress":119,"type":"S","number":"9"}]}`)
	})

	page, err := c.ListBills(context.Background(), 119, "s", ListOptions{Limit: 250})
	require.NoError(t, err)
	assert.False(t, page.HasMore)
}

func TestFetchActions_FollowsPages(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		n := 250
		if r.URL.Query().Get("offset") == "250" {
			n = 3
		}
		resp := actionsResponse{}
		for i := 0; i < n; i++ {
			resp.Actions = append(resp.Actions, ActionItem{Text: "x"})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	actions, err := c.FetchActions(context.Background(), 119, "hr", 1)
	require.NoError(t, err)
	assert.Len(t, actions, 253)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestFetchWithRetry_RecoversFromServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"congress":{"number":119}}`)
	})

	n, err := c.FetchCurrentCongress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 119, n)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestFetchWithRetry_RetriesRateLimit(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"summaries":[]}`)
	})

	_, err := c.FetchSummaries(context.Background(), 119, "hr", 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestFetchWithRetry_GivesUp(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.FetchBill(context.Background(), 119, "hr", 1)
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusServiceUnavailable, fe.StatusCode)
	assert.Contains(t, err.Error(), "failed after 4 attempts")
	assert.EqualValues(t, 4, atomic.LoadInt32(&calls))
}

func TestFetchWithRetry_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.FetchBill(context.Background(), 119, "hr", 99999)
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.False(t, fe.Retryable())
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestGet_MalformedBodyIsTransformError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bill":`)
	})

	_, err := c.FetchBill(context.Background(), 119, "hr", 1)

	var te *TransformError
	assert.True(t, errors.As(err, &te))
}

func TestFetchError_DoesNotLeakAPIKey(t *testing.T) {
	c := NewCongressClient(ClientConfig{
		BaseURL:      "http://127.0.0.1:1",
		APIKey:       "secret-key",
		RequestDelay: time.Millisecond,
		MaxRetries:   -1,
		Timeout:      time.Second,
	})

	_, err := c.FetchBill(context.Background(), 119, "hr", 1)
	require.Error(t, err)
	assert.False(t, strings.Contains(err.Error(), "secret-key"), err.Error())
}

func TestRateLimit_SpacesRequests(t *testing.T) {
	var (
		mu    = make(chan struct{}, 1)
		times []time.Time
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu <- struct{}{}
		times = append(times, time.Now())
		<-mu
		fmt.Fprint(w, `{"titles":[]}`)
	}))
	defer srv.Close()

	c := NewCongressClient(ClientConfig{
		BaseURL:      srv.URL,
		APIKey:       "k",
		RequestDelay: 50 * time.Millisecond,
	})

	for i := 0; i < 3; i++ {
		_, err := c.FetchTitles(context.Background(), 119, "hr", i)
		require.NoError(t, err)
	}

	require.Len(t, times, 3)
	for i := 1; i < len(times); i++ {
		assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), 45*time.Millisecond)
	}
}

func TestFetchWithRetry_HonorsCancellation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c.backoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.FetchBill(ctx, 119, "hr", 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
