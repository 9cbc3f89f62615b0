// Package reddit reads hot listings from the authenticated Reddit API.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/JakeFAU/reddit-newsbot/internal/metrics"
	"github.com/JakeFAU/reddit-newsbot/internal/scraper"
)

// ErrUnauthorized is returned when the credentials are rejected.
var ErrUnauthorized = errors.New("reddit: unauthorized")

// Defaults for the public API.
const (
	DefaultTokenURL   = "https://www.reddit.com/api/v1/access_token"
	DefaultAPIBaseURL = "https://oauth.reddit.com"
)

// Config holds the script-app credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
	TokenURL     string
	APIBaseURL   string
	// HTTPClient performs token requests; nil uses http.DefaultClient.
	HTTPClient *http.Client
}

// Client implements scraper.Source against the OAuth API.
type Client struct {
	cfg     Config
	fetcher scraper.Fetcher
	tokens  oauth2.TokenSource
	logger  *zap.Logger

	mu       sync.Mutex
	verified string
}

// New builds a Client. The fetcher performs every API GET.
func New(cfg Config, fetcher scraper.Fetcher, logger *zap.Logger) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("reddit: client id and secret are required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("reddit: username and password are required")
	}
	if fetcher == nil {
		return nil, errors.New("reddit: fetcher is required")
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	tokenClient := &http.Client{
		Timeout:   httpClient.Timeout,
		Transport: &userAgentTransport{base: httpClient.Transport, agent: cfg.UserAgent},
	}

	source := &passwordSource{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		username: cfg.Username,
		password: cfg.Password,
		client:   tokenClient,
	}

	return &Client{
		cfg:     cfg,
		fetcher: fetcher,
		tokens:  oauth2.ReuseTokenSource(nil, source),
		logger:  logger.Named("reddit"),
	}, nil
}

// Authenticate obtains a token and confirms it resolves to an account.
// The check runs once per access token.
func (c *Client) Authenticate(ctx context.Context) error {
	token, err := c.accessToken()
	if err != nil {
		return err
	}
	c.mu.Lock()
	done := c.verified == token
	c.mu.Unlock()
	if done {
		return nil
	}

	body, err := c.get(ctx, "me", c.cfg.APIBaseURL+"/api/v1/me", token)
	if err != nil {
		return err
	}
	var me struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &me); err != nil {
		return fmt.Errorf("decode identity: %w", err)
	}
	if me.Name == "" {
		return fmt.Errorf("identity check returned no account: %w", ErrUnauthorized)
	}

	c.mu.Lock()
	c.verified = token
	c.mu.Unlock()
	c.logger.Info("authenticated", zap.String("account", me.Name))
	return nil
}

// Hot returns up to limit posts from the subreddit's hot listing.
func (c *Client) Hot(ctx context.Context, subreddit string, limit int) (scraper.Listing, error) {
	if limit <= 0 {
		return scraper.Listing{}, fmt.Errorf("limit must be > 0, got %d", limit)
	}
	token, err := c.accessToken()
	if err != nil {
		return scraper.Listing{}, err
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("raw_json", "1")
	endpoint := fmt.Sprintf("%s/r/%s/hot?%s", c.cfg.APIBaseURL, url.PathEscape(subreddit), query.Encode())

	body, err := c.get(ctx, "hot", endpoint, token)
	if err != nil {
		return scraper.Listing{}, err
	}
	items, err := decodeListing(body)
	if err != nil {
		return scraper.Listing{}, err
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return scraper.Listing{Items: items, Raw: body, ContentType: "application/json"}, nil
}

func (c *Client) accessToken() (string, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return "", fmt.Errorf("obtain token: %w: %w", ErrUnauthorized, err)
	}
	return token.AccessToken, nil
}

func (c *Client) get(ctx context.Context, endpoint, rawURL, token string) ([]byte, error) {
	headers := http.Header{}
	headers.Set("Authorization", "bearer "+token)
	headers.Set("Accept", "application/json")

	resp, err := c.fetcher.Fetch(ctx, scraper.FetchRequest{URL: rawURL, Headers: headers})
	if err != nil {
		metrics.ObserveSourceRequest(endpoint, 0, resp.Duration)
		return nil, fmt.Errorf("%s request: %w", endpoint, err)
	}
	metrics.ObserveSourceRequest(endpoint, resp.StatusCode, resp.Duration)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%s request: %w", endpoint, ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%s request: unexpected status %d: %s", endpoint, resp.StatusCode, snippet(resp.Body))
	}
	return resp.Body, nil
}

func snippet(body []byte) string {
	const maxLen = 200
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

type passwordSource struct {
	conf     *oauth2.Config
	username string
	password string
	client   *http.Client
}

// Token performs the password grant. Reddit issues no refresh token for
// script apps, so expiry means a fresh grant.
func (s *passwordSource) Token() (*oauth2.Token, error) {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, s.client)
	token, err := s.conf.PasswordCredentialsToken(ctx, s.username, s.password)
	if err != nil {
		return nil, fmt.Errorf("password grant: %w", err)
	}
	return token, nil
}

type userAgentTransport struct {
	base  http.RoundTripper
	agent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.agent == "" {
		return base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.agent)
	return base.RoundTrip(clone)
}
