package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/lueurxax/procurement-monitor/internal/core/errors"
	"github.com/lueurxax/procurement-monitor/internal/platform/config"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestFetchMapsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "single source contracts", r.URL.Query().Get("q"))
		assert.Equal(t, "15", r.URL.Query().Get("count"))
		assert.Equal(t, "en-GB", r.URL.Query().Get("mkt"))
		assert.Equal(t, "EN", r.URL.Query().Get("setLang"))

		_, _ = w.Write([]byte(`{"webPages":{"value":[
			{"name":"SSRO  annual report","url":"https://www.gov.uk/ssro/report","snippet":"..."},
			{"name":"no url"}
		]}}`))
	}))
	defer srv.Close()

	c := New(config.SearchConfig{APIKey: "secret", Endpoint: srv.URL}, []string{"single source contracts"}, nil,
		WithClock(func() time.Time { return testNow }))

	items, err := c.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, "SSRO annual report", items[0].Title)
	assert.Equal(t, "https://www.gov.uk/ssro/report", items[0].URL)
	assert.Equal(t, "www.gov.uk", items[0].Source)
	assert.Equal(t, testNow, items[0].PublishedAt)
}

func TestFetchWithoutKeyIsUnsupported(t *testing.T) {
	c := New(config.SearchConfig{}, []string{"q"}, nil)

	items, err := c.Fetch(context.Background())
	assert.Nil(t, items)
	assert.ErrorIs(t, err, coreerrors.ErrUnsupported)
}

func TestFetchClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   coreerrors.Kind
	}{
		{name: "server error", status: http.StatusBadGateway, want: coreerrors.KindTransient},
		{name: "throttled", status: http.StatusTooManyRequests, want: coreerrors.KindTransient},
		{name: "bad key", status: http.StatusUnauthorized, want: coreerrors.KindUnsupported},
		{name: "bad json", status: http.StatusOK, body: "{", want: coreerrors.KindNoData},
		{name: "bad request", status: http.StatusBadRequest, want: coreerrors.KindPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(config.SearchConfig{APIKey: "k", Endpoint: srv.URL}, []string{"q"}, nil)

			_, err := c.Fetch(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.want, coreerrors.Classify(err))
		})
	}
}

func TestFetchContinuesAfterFailedQuery(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		_, _ = w.Write([]byte(`{"webPages":{"value":[{"name":"ok","url":"https://example.org/ok"}]}}`))
	}))
	defer srv.Close()

	c := New(config.SearchConfig{APIKey: "k", Endpoint: srv.URL}, []string{"first", "second"}, nil)

	items, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, int32(2), calls.Load())
}
