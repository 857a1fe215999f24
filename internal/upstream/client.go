package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/botrelay/internal/relay"
)

// Authorization schemes accepted by ClientConfig.AuthScheme.
const (
	AuthSchemeRaw    = "raw"
	AuthSchemeBearer = "bearer"
)

// DefaultBaseURL is the public upstream API.
const DefaultBaseURL = "https://api.fnlb.net"

// DefaultFetchTimeout bounds a shared upstream fetch when ClientConfig leaves
// FetchTimeout unset.
const DefaultFetchTimeout = 2 * time.Minute

// BodyFetcher returns the body of a successful GET. *Fetcher implements it.
type BodyFetcher interface {
	Fetch(ctx context.Context, rawURL string, headers http.Header) ([]byte, error)
}

// ClientConfig describes how to reach and authenticate with the upstream.
type ClientConfig struct {
	BaseURL    string
	Token      string
	AuthScheme string
	// FetchTimeout bounds one shared fetch, retries and waits included.
	FetchTimeout time.Duration
}

// Client implements relay.Upstream.
type Client struct {
	fetcher      BodyFetcher
	baseURL      string
	headers      http.Header
	fetchTimeout time.Duration
	flight       singleflight.Group
	logger       *zap.Logger
}

var _ relay.Upstream = (*Client)(nil)

// NewClient builds a Client. An empty token is allowed here; the relay
// service refuses to call out when no credential is configured.
func NewClient(fetcher BodyFetcher, cfg ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	if cfg.Token != "" {
		headers.Set("Authorization", AuthorizationValue(cfg.AuthScheme, cfg.Token))
	}
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	return &Client{
		fetcher:      fetcher,
		baseURL:      base,
		headers:      headers,
		fetchTimeout: fetchTimeout,
		logger:       logger,
	}
}

// AuthorizationValue renders the Authorization header for the given scheme.
// Anything other than "bearer" sends the token as-is.
func AuthorizationValue(scheme, token string) string {
	if strings.EqualFold(strings.TrimSpace(scheme), AuthSchemeBearer) {
		if strings.HasPrefix(token, "Bearer ") {
			return token
		}
		return "Bearer " + token
	}
	return token
}

// ListBots returns the full upstream bot listing.
func (c *Client) ListBots(ctx context.Context) ([]relay.Bot, error) {
	body, err := c.get(ctx, "/bots")
	if err != nil {
		return nil, err
	}
	var bots []relay.Bot
	if err := json.Unmarshal(body, &bots); err != nil {
		return nil, relay.UpstreamError(http.StatusOK, "malformed bot listing", err)
	}
	return bots, nil
}

// ListCategories returns the full upstream category listing.
func (c *Client) ListCategories(ctx context.Context) ([]relay.Category, error) {
	body, err := c.get(ctx, "/categories")
	if err != nil {
		return nil, err
	}
	var categories []relay.Category
	if err := json.Unmarshal(body, &categories); err != nil {
		return nil, relay.UpstreamError(http.StatusOK, "malformed category listing", err)
	}
	return categories, nil
}

// get shares one in-flight fetch among concurrent callers of the same path.
// The shared fetch is detached from any single caller's cancellation so one
// disconnecting client cannot fail the others, and is bounded by fetchTimeout.
// A caller that stops waiting drops the key so later calls start a fresh fetch
// instead of joining a stalled one.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	url := c.baseURL + path
	ch := c.flight.DoChan(url, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		return c.fetcher.Fetch(fetchCtx, url, c.headers.Clone())
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		c.flight.Forget(url)
		return nil, relay.UpstreamError(0, "upstream request abandoned", ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, res.Err)
	}
	if res.Shared {
		c.logger.Debug("shared in-flight upstream fetch", zap.String("path", path))
	}
	body, ok := res.Val.([]byte)
	if !ok {
		return nil, relay.UpstreamError(0, "unexpected upstream payload type", nil)
	}
	return body, nil
}
