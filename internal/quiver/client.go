// Package quiver provides the client for the upstream congressional
// trading filings feed.
package quiver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/codingayam/trading-automation-sub001/internal/httpretry"
	"github.com/codingayam/trading-automation-sub001/internal/marketclock"
)

// DefaultBaseURL is the production feed host.
const DefaultBaseURL = "https://api.quiverquant.com/beta"

const requestTimeout = 15 * time.Second

// Filing is one raw feed record. Raw preserves the upstream JSON verbatim
// for persistence; business logic never branches on fields outside the
// declared ones. Party is a pointer so a present-but-blank field stays
// distinguishable from a missing one.
type Filing struct {
	Ticker      string  `json:"Ticker"`
	Name        string  `json:"Name"`
	Transaction string  `json:"Transaction"`
	Filed       string  `json:"Filed"`
	Traded      string  `json:"Traded"`
	Party       *string `json:"Party"`

	Raw json.RawMessage `json:"-"`
}

// Client fetches filings with bearer-token auth and bounded retries.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	policy  httpretry.Policy
	log     zerolog.Logger
}

// New creates a feed client. An empty baseURL selects the production host.
func New(baseURL, apiKey string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: requestTimeout},
		policy:  httpretry.DefaultPolicy,
		log:     log.With().Str("client", "quiver").Logger(),
	}
}

// FilingsByDate fetches all filings published on the given Eastern civil
// day. An empty response body or a non-array payload yields an empty list;
// non-retryable HTTP failures surface as *httpretry.StatusError.
func (c *Client) FilingsByDate(ctx context.Context, day time.Time) ([]Filing, error) {
	dateKey := marketclock.CompactDateKey(day)
	url := fmt.Sprintf("%s/bulk/congresstrading?date=%s", c.baseURL, dateKey)

	resp, err := httpretry.Do(ctx, c.http, c.policy, c.log, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Token "+c.apiKey)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch filings for %s: %w", dateKey, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpretry.NewStatusError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read filings response for %s: %w", dateKey, err)
	}
	if len(body) == 0 {
		return nil, nil
	}

	var rawRecords []json.RawMessage
	if err := json.Unmarshal(body, &rawRecords); err != nil {
		c.log.Warn().
			Str("date", dateKey).
			Str("body_prefix", prefix(body, 200)).
			Msg("Feed returned non-array JSON, treating as empty")
		return nil, nil
	}

	filings := make([]Filing, 0, len(rawRecords))
	for _, raw := range rawRecords {
		var f Filing
		if err := json.Unmarshal(raw, &f); err != nil {
			c.log.Warn().Err(err).Str("date", dateKey).Msg("Skipping malformed feed record")
			continue
		}
		f.Raw = raw
		filings = append(filings, f)
	}

	c.log.Debug().Str("date", dateKey).Int("count", len(filings)).Msg("Fetched filings")
	return filings, nil
}

func prefix(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
