package quiver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codingayam/trading-automation-sub001/internal/httpretry"
	"github.com/codingayam/trading-automation-sub001/internal/marketclock"
)

func testDay() time.Time {
	return marketclock.Date(2024, time.February, 16, 0, 0, 0, 0)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(srv.URL, "test-key", zerolog.Nop())
	c.http = srv.Client()
	c.policy = httpretry.Policy{MaxRetries: 2, InitialBackoff: time.Millisecond, Factor: 2}
	return c
}

func TestFilingsByDate_RequestShape(t *testing.T) {
	var gotPath, gotAuth, gotAccept string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.String()
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		w.Write([]byte(`[]`))
	})

	_, err := c.FilingsByDate(context.Background(), testDay())
	require.NoError(t, err)

	assert.Equal(t, "/bulk/congresstrading?date=20240216", gotPath)
	assert.Equal(t, "Token test-key", gotAuth)
	assert.Equal(t, "application/json", gotAccept)
}

func TestFilingsByDate_ParsesRecords(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"Ticker":"AAPL","Name":"Jane Doe","Transaction":"Purchase","Filed":"2024-02-16","Traded":"2024-02-10","Party":"D"},
			{"Ticker":"MSFT","Name":"John Roe","Transaction":"Sale","Filed":"2024-02-16"},
			{"Ticker":"NVDA","Name":"Ann Poe","Transaction":"Purchase","Filed":"2024-02-16","Party":""}
		]`))
	})

	filings, err := c.FilingsByDate(context.Background(), testDay())
	require.NoError(t, err)
	require.Len(t, filings, 3)

	assert.Equal(t, "AAPL", filings[0].Ticker)
	assert.Equal(t, "Jane Doe", filings[0].Name)
	assert.Equal(t, "Purchase", filings[0].Transaction)
	assert.Equal(t, "2024-02-16", filings[0].Filed)
	assert.Equal(t, "2024-02-10", filings[0].Traded)
	require.NotNil(t, filings[0].Party)
	assert.Equal(t, "D", *filings[0].Party)
	assert.NotEmpty(t, filings[0].Raw)

	assert.Equal(t, "MSFT", filings[1].Ticker)
	assert.Empty(t, filings[1].Traded)
	assert.Nil(t, filings[1].Party)

	require.NotNil(t, filings[2].Party)
	assert.Empty(t, *filings[2].Party)
}

func TestFilingsByDate_EmptyBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// 200 with no body at all
	})

	filings, err := c.FilingsByDate(context.Background(), testDay())
	require.NoError(t, err)
	assert.Empty(t, filings)
}

func TestFilingsByDate_NonArrayJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"detail":"throttled"}`))
	})

	filings, err := c.FilingsByDate(context.Background(), testDay())
	require.NoError(t, err)
	assert.Empty(t, filings)
}

func TestFilingsByDate_RetriesTransientFailures(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[{"Ticker":"AAPL","Name":"Jane Doe","Transaction":"Purchase","Filed":"2024-02-16"}]`))
	})

	filings, err := c.FilingsByDate(context.Background(), testDay())
	require.NoError(t, err)
	assert.Len(t, filings, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFilingsByDate_NonRetryableStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"bad token"}`))
	})

	_, err := c.FilingsByDate(context.Background(), testDay())
	require.Error(t, err)

	var statusErr *httpretry.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "bad token")
}
