package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/grounded/errs"
	"github.com/w-h-a/grounded/marketdata"
)

func TestFetcher_Fetch(t *testing.T) {
	now := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/getData", r.URL.Path)
		assert.Equal(t, "BTC", r.URL.Query().Get("symbol"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"status":"success","symbols":[{"symbol":"BTC","last":"64000"}],"timestamp":1775131170}`))
	}))
	defer srv.Close()

	f := NewFetcher(
		marketdata.WithLocation(srv.URL),
		marketdata.WithApiKey("secret"),
		marketdata.WithClock(func() time.Time { return now }),
	)

	rec, err := f.Fetch(context.Background(), "getData", map[string]string{"symbol": "btc"})
	require.NoError(t, err)

	assert.Equal(t, "getData", rec.Endpoint)
	assert.Equal(t, "BTC", rec.Params["symbol"])
	assert.True(t, rec.Complete())
	assert.Equal(t, time.Unix(1775131170, 0).UTC(), rec.Timestamp)
	assert.Equal(t, now, rec.FetchedAt)
	assert.False(t, rec.Stale)
}

func TestFetcher_ErrorClasses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		permanent bool
		limited   bool
	}{
		{name: "server error is transient", status: http.StatusBadGateway, body: "oops"},
		{name: "bad request is permanent", status: http.StatusBadRequest, body: "bad", permanent: true},
		{name: "quota is rate limited", status: http.StatusTooManyRequests, body: "slow down", limited: true},
		{name: "malformed body is permanent", status: http.StatusOK, body: "<html>", permanent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			f := NewFetcher(marketdata.WithLocation(srv.URL))

			_, err := f.Fetch(context.Background(), "getTop", nil)
			require.Error(t, err)
			assert.Equal(t, tt.permanent, errors.Is(err, errs.ErrPermanent))
			assert.Equal(t, tt.limited, errors.Is(err, errs.ErrRateLimitExceeded))
		})
	}
}

func TestFetcher_UnknownEndpoint(t *testing.T) {
	f := NewFetcher(marketdata.WithLocation("http://127.0.0.1:1"))

	_, err := f.Fetch(context.Background(), "deleteEverything", nil)
	assert.ErrorIs(t, err, errs.ErrPermanent)
}
