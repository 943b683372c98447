// Package spotify provides the outbound Spotify Web API surface used by the
// ingestion path: the refresh-token credential exchange and the
// recently-played event fetch.
package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultBaseURL  = "https://api.spotify.com/v1"
	defaultTokenURL = "https://accounts.spotify.com/api/token"
	defaultTimeout  = 15 * time.Second

	// DefaultFetchLimit is the page size requested from the recently-played
	// endpoint when none is configured.
	DefaultFetchLimit = 50
)

// ErrSource is returned when the event fetch fails at the transport or HTTP
// level. The fetch is never retried here; the orchestrator decides whether
// the pass fails.
var ErrSource = errors.New("spotify event fetch failed")

// Config holds the Spotify API settings.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string

	// TokenURL and BaseURL override the production endpoints, for tests.
	TokenURL string
	BaseURL  string

	// Timeout applies to each outbound HTTP call.
	Timeout time.Duration
}

func (c Config) tokenURL() string {
	if c.TokenURL != "" {
		return c.TokenURL
	}
	return defaultTokenURL
}

func (c Config) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return defaultBaseURL
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTimeout
}

// TokenProvider supplies a bearer token for API calls.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Client fetches play events from the Spotify Web API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenProvider
	logger     zerolog.Logger
}

// NewClient creates a Client using tokens for authentication.
func NewClient(cfg Config, tokens TokenProvider, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.timeout()},
		baseURL:    cfg.baseURL(),
		tokens:     tokens,
		logger:     logger,
	}
}

// RecentlyPlayed fetches one page of play events after the given cutoff. A
// zero cutoff omits the after cursor entirely. Transport failures and non-2xx
// responses wrap ErrSource.
func (c *Client) RecentlyPlayed(ctx context.Context, limit int, after time.Time) (*RecentlyPlayedPage, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting access token: %w", err)
	}

	params := url.Values{
		"limit": {strconv.Itoa(limit)},
	}
	if !after.IsZero() {
		params.Set("after", strconv.FormatInt(after.UnixMilli(), 10))
	}

	reqURL := c.baseURL + "/me/player/recently-played?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrSource, resp.StatusCode, body)
	}

	var page RecentlyPlayedPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrSource, err)
	}
	page.NextAfter = page.Cursors.After

	c.logger.Debug().Int("items", len(page.Items)).Msg("fetched recently played page")
	return &page, nil
}
