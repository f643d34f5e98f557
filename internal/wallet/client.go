package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/upiwallet/internal/logger"
	"golang.org/x/oauth2"
)

// Config holds client configuration.
type Config struct {
	ServerURL string
	Timeout   time.Duration

	// Tokens supplies the bearer token for authenticated calls.
	Tokens oauth2.TokenSource

	// Transport is the base round tripper, http.DefaultTransport if nil.
	Transport http.RoundTripper
	Logger    *zerolog.Logger

	// CacheDir keeps cacheable responses on disk across runs. Empty
	// means an in-memory cache.
	CacheDir string
}

// DefaultConfig returns a default client configuration.
func DefaultConfig() Config {
	return Config{
		ServerURL: "http://localhost:8080",
		Timeout:   30 * time.Second,
	}
}

// Client talks to the wallet REST API.
type Client struct {
	baseURL *url.URL

	public *http.Client
	authed *http.Client
	cached *http.Client
}

// NewClient builds a client. Anonymous calls (login) go straight out;
// authenticated calls get the bearer token from cfg.Tokens; the UPI id
// lookup is additionally served through an in-memory HTTP cache.
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.ServerURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", cfg.ServerURL)
	}

	l := log.Logger
	if cfg.Logger != nil {
		l = *cfg.Logger
	}

	var transport http.RoundTripper = &requestID{next: logger.NewRequests(l, cfg.Transport)}

	authedTransport := transport
	if cfg.Tokens != nil {
		authedTransport = &oauth2.Transport{Source: cfg.Tokens, Base: transport}
	}

	var store httpcache.Cache = httpcache.NewMemoryCache()
	if cfg.CacheDir != "" {
		store = diskcache.New(cfg.CacheDir)
	}
	cache := httpcache.NewTransport(store)
	cache.Transport = authedTransport

	return &Client{
		baseURL: base,
		public:  &http.Client{Transport: transport, Timeout: cfg.Timeout},
		authed:  &http.Client{Transport: authedTransport, Timeout: cfg.Timeout},
		cached:  &http.Client{Transport: cache, Timeout: cfg.Timeout},
	}, nil
}

// requestID stamps every request with a fresh X-Request-Id.
type requestID struct {
	next http.RoundTripper
}

func (r *requestID) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("X-Request-Id") != "" {
		return r.next.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("X-Request-Id", uuid.NewString())
	return r.next.RoundTrip(req)
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.JoinPath(path).String()
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, newAPIError(resp)
	}

	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, hc *http.Client, path string, out any) error {
	resp, err := c.do(ctx, hc, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	// Drain so the cache sees EOF and stores the response.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
