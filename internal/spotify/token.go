package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/corenest/spotilens/internal/retry"
)

// ErrAuth is returned when the credential exchange fails permanently or
// exhausts its retry budget.
var ErrAuth = errors.New("spotify auth failed")

// TokenManager obtains an access token through the refresh-token grant and
// caches it for the lifetime of the process. It does not refresh proactively;
// a stale token surfaces as a 401 on the next fetch.
type TokenManager struct {
	conf         *oauth2.Config
	refreshToken string
	retryCfg     retry.Config
	httpClient   *http.Client
	logger       zerolog.Logger

	mu    sync.Mutex
	token string
}

// NewTokenManager creates a TokenManager from the client credentials in cfg.
func NewTokenManager(cfg Config, retryCfg retry.Config, logger zerolog.Logger) *TokenManager {
	return &TokenManager{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.tokenURL(),
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		refreshToken: cfg.RefreshToken,
		retryCfg:     retryCfg,
		httpClient:   &http.Client{Timeout: cfg.timeout()},
		logger:       logger,
	}
}

// Token returns the cached access token, performing the credential exchange
// on first use. Transient exchange failures are retried with exponential
// backoff; exhaustion or a non-transient failure wraps ErrAuth.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" {
		return m.token, nil
	}

	var tok *oauth2.Token
	err := retry.Do(ctx, m.retryCfg, func() error {
		t, err := m.exchange(ctx)
		if err != nil {
			if isTransient(err) {
				m.logger.Warn().Err(err).Msg("token exchange failed, will retry")
				return err
			}
			return retry.Permanent(err)
		}
		tok = t
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}

	m.token = tok.AccessToken
	m.logger.Info().Msg("obtained new access token")
	return m.token, nil
}

// exchange performs one refresh-token grant against the token endpoint.
func (m *TokenManager) exchange(ctx context.Context) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	src := m.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: m.refreshToken})
	return src.Token()
}

// isTransient reports whether a token exchange error is worth retrying:
// transport failures, 5xx responses and 429s. Other HTTP errors (bad
// credentials, revoked refresh token) are permanent.
func isTransient(err error) bool {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		if rerr.Response == nil {
			return true
		}
		code := rerr.Response.StatusCode
		return code >= 500 || code == http.StatusTooManyRequests
	}
	return true
}
