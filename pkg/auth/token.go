// Package auth implements the vendor portal's OAuth2 password-grant flow.
// Access tokens are cached in memory and optionally in Redis so concurrent
// collector runs on the same host share one grant instead of hammering the
// token endpoint.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/procurex/sku-collector/pkg/client"
)

// redisKeyAccessToken is the shared cache key for the vendor access token.
const redisKeyAccessToken = "skucollector:auth:access_token"

// expiryMargin is subtracted from expires_in so a token is refreshed before
// the vendor actually rejects it.
const expiryMargin = 60 * time.Second

// Prometheus metrics for token acquisition.
var (
	tokenCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skucollector_token_cache_hits_total",
		Help: "Access token cache hits by layer",
	}, []string{"layer"}) // "memory", "redis"

	tokenFetchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skucollector_token_fetches_total",
		Help: "Total password-grant token fetches against the vendor",
	})
)

// Config holds token source configuration.
type Config struct {
	// TokenURL is the vendor token endpoint.
	TokenURL string

	// ClientAuth is the pre-shared Authorization header value for the token
	// endpoint (the configured api_key).
	ClientAuth string

	// Username and Password are the portal account credentials.
	Username string
	Password string

	// Scope requested with the grant.
	Scope string

	// Timeout for token requests.
	Timeout time.Duration
}

// TokenSource fetches and caches vendor access tokens. Safe for concurrent use.
type TokenSource struct {
	httpClient *http.Client
	cfg        Config
	redis      *redis.Client // nil disables the shared cache layer
	logger     zerolog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenSource creates a token source. redisClient may be nil, in which
// case tokens are cached in memory only.
func NewTokenSource(cfg Config, redisClient *redis.Client, logger zerolog.Logger) (*TokenSource, error) {
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("token URL is required")
	}
	if cfg.ClientAuth == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &TokenSource{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		redis:      redisClient,
		logger:     logger,
	}, nil
}

// Token returns a valid access token, fetching a fresh grant only when both
// cache layers miss.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expiresAt) {
		tokenCacheHits.WithLabelValues("memory").Inc()
		return s.token, nil
	}

	if token, ttl, ok := s.fromRedis(ctx); ok {
		tokenCacheHits.WithLabelValues("redis").Inc()
		s.token = token
		s.expiresAt = time.Now().Add(ttl)
		return token, nil
	}

	token, ttl, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}

	s.token = token
	s.expiresAt = time.Now().Add(ttl)
	s.toRedis(ctx, token, ttl)

	return token, nil
}

// fromRedis tries the shared cache layer.
func (s *TokenSource) fromRedis(ctx context.Context) (token string, ttl time.Duration, ok bool) {
	if s.redis == nil {
		return "", 0, false
	}

	token, err := s.redis.Get(ctx, redisKeyAccessToken).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("Token cache get failed, falling back to grant")
		}
		return "", 0, false
	}

	ttl, err = s.redis.TTL(ctx, redisKeyAccessToken).Result()
	if err != nil || ttl <= 0 {
		return "", 0, false
	}

	return token, ttl, true
}

// toRedis stores a fresh token in the shared cache layer.
func (s *TokenSource) toRedis(ctx context.Context, token string, ttl time.Duration) {
	if s.redis == nil || ttl <= 0 {
		return
	}
	if err := s.redis.Set(ctx, redisKeyAccessToken, token, ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("Token cache set failed")
	}
}

// tokenResponse is the grant response body.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// fetch performs the password grant against the vendor token endpoint.
func (s *TokenSource) fetch(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", s.cfg.Username)
	form.Set("password", s.cfg.Password)
	if s.cfg.Scope != "" {
		form.Set("scope", s.cfg.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", s.cfg.ClientAuth)

	tokenFetchesTotal.Inc()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		// Bad credentials classify as a permanent failure downstream.
		return "", 0, &client.APIError{
			StatusCode: resp.StatusCode,
			Endpoint:   s.cfg.TokenURL,
			Message:    resp.Status,
		}
	}

	var parsed tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", 0, fmt.Errorf("decode token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", 0, fmt.Errorf("token response missing access_token")
	}

	ttl := time.Duration(parsed.ExpiresIn)*time.Second - expiryMargin
	if ttl <= 0 {
		ttl = expiryMargin
	}

	s.logger.Debug().
		Dur("ttl", ttl).
		Msg("Fetched vendor access token")

	return parsed.AccessToken, ttl, nil
}
