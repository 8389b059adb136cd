package githubapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v59/github"
	"github.com/nanato/wp-github-updates/internal/observe"
	"golang.org/x/oauth2"
)

const (
	DefaultAPIBaseURL = "https://api.github.com"
	DefaultUserAgent  = "wp-github-updates"
	DefaultTimeout    = 10 * time.Second
)

type Config struct {
	Token      string
	APIBaseURL string
	UserAgent  string
	Timeout    time.Duration
	// HTTPClient provides the base transport; authentication and API headers are layered on top.
	HTTPClient *http.Client
	Observer   observe.Observer
}

type RateLimit struct {
	Limit     int
	Remaining int
	Reset     time.Time
	Resource  string
}

// Client performs single, unretried requests against the GitHub REST API.
type Client struct {
	gh        *github.Client
	token     string
	baseURL   string
	userAgent string
	observer  observe.Observer

	mu        sync.Mutex
	rateLimit RateLimit
}

func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(cfg.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	apiURL, err := url.Parse(baseURL + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub API URL: %w", err)
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	var rt http.RoundTripper = http.DefaultTransport
	if cfg.HTTPClient != nil && cfg.HTTPClient.Transport != nil {
		rt = cfg.HTTPClient.Transport
	}
	rt = &headerTransport{base: rt}
	if cfg.Token != "" {
		rt = &oauth2.Transport{Source: oauth2.StaticTokenSource(NewToken(cfg.Token)), Base: rt}
	}

	gh := github.NewClient(&http.Client{Transport: rt, Timeout: timeout})
	gh.BaseURL = apiURL
	gh.UserAgent = userAgent

	observer := cfg.Observer
	if observer == nil {
		observer = observe.Nop
	}
	return &Client{
		gh:        gh,
		token:     cfg.Token,
		baseURL:   baseURL,
		userAgent: userAgent,
		observer:  observer,
	}, nil
}

func (c *Client) HasToken() bool {
	return c.token != ""
}

func (c *Client) Token() string {
	return c.token
}

func (c *Client) UserAgent() string {
	return c.userAgent
}

// APIBaseURL returns the API base URL without a trailing slash.
func (c *Client) APIBaseURL() string {
	return c.baseURL
}

// RateLimit returns the snapshot taken from the most recent API response.
func (c *Client) RateLimit() RateLimit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rateLimit
}

func (c *Client) updateRateLimit(h http.Header) {
	if h.Get("X-RateLimit-Limit") == "" && h.Get("X-RateLimit-Remaining") == "" {
		return
	}
	rl := RateLimit{Resource: h.Get("X-RateLimit-Resource")}
	rl.Limit, _ = strconv.Atoi(h.Get("X-RateLimit-Limit"))
	rl.Remaining, _ = strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	if reset, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		rl.Reset = time.Unix(reset, 0)
	}
	c.setRateLimit(rl)
}

func (c *Client) setRateLimit(rl RateLimit) {
	c.mu.Lock()
	c.rateLimit = rl
	c.mu.Unlock()
}

func (c *Client) endpoint(format string, args ...any) string {
	return c.baseURL + "/" + fmt.Sprintf(format, args...)
}

func (c *Client) do(ctx context.Context, endpoint string, call func(ctx context.Context) (*github.Response, error)) error {
	c.observer.Observe(ctx, observe.Event{Kind: observe.RequestSent, Component: "github", URL: endpoint, Message: "GitHub API request"})
	resp, err := call(ctx)
	if resp != nil && resp.Response != nil {
		c.updateRateLimit(resp.Header)
		var rlErr *github.RateLimitError
		if errors.As(err, &rlErr) && resp.Header.Get("X-RateLimit-Remaining") == "" {
			// go-github refused the call locally until the window resets
			c.setRateLimit(RateLimit{Limit: rlErr.Rate.Limit, Remaining: rlErr.Rate.Remaining, Reset: rlErr.Rate.Reset.Time, Resource: "core"})
		}
		c.observer.Observe(ctx, observe.Event{
			Kind:       observe.ResponseReceived,
			Component:  "github",
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Message:    "GitHub API response",
			Fields:     map[string]any{"rate_limit_remaining": c.RateLimit().Remaining},
		})
	}
	if err == nil {
		return nil
	}
	apiErr := c.newError(endpoint, resp, err)
	c.observer.Observe(ctx, observe.Event{Kind: observe.FailureRaised, Component: "github", URL: endpoint, StatusCode: apiErr.StatusCode, Message: apiErr.Error(), Err: apiErr})
	return apiErr
}

func (c *Client) newError(endpoint string, resp *github.Response, err error) *Error {
	if resp == nil || resp.Response == nil {
		return &Error{Kind: KindTransport, URL: endpoint, Err: err}
	}
	status := resp.StatusCode
	if status == http.StatusOK {
		// the request succeeded but the body could not be decoded
		return &Error{Kind: KindInvalidResponse, StatusCode: status, URL: endpoint, Err: err}
	}
	apiErr := &Error{Kind: KindHTTP, StatusCode: status, URL: endpoint, Err: err}
	if resp.Body != nil {
		if body, readErr := io.ReadAll(resp.Body); readErr == nil {
			apiErr.Body = string(body)
		}
	}
	var rlErr *github.RateLimitError
	if errors.As(err, &rlErr) {
		apiErr.Kind = KindRateLimited
		apiErr.Message = rlErr.Message
		apiErr.ResetAt = rlErr.Rate.Reset.Time
		if apiErr.Message == "" {
			apiErr.Message = "API rate limit exceeded"
		}
		return apiErr
	}
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Message != "" {
		apiErr.Message = errResp.Message
	} else {
		apiErr.Message = http.StatusText(status)
	}
	if status == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0" {
		apiErr.Kind = KindRateLimited
		if reset, parseErr := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); parseErr == nil {
			apiErr.ResetAt = time.Unix(reset, 0)
		}
	}
	return apiErr
}

// AuthenticatedUser fetches the user the configured token belongs to.
func (c *Client) AuthenticatedUser(ctx context.Context) (*User, error) {
	var user *github.User
	err := c.do(ctx, c.endpoint("user"), func(ctx context.Context) (resp *github.Response, err error) {
		user, resp, err = c.gh.Users.Get(ctx, "")
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return &User{Login: user.GetLogin(), Name: user.GetName()}, nil
}

func (c *Client) ListReleases(ctx context.Context, owner, repo string) ([]*Release, error) {
	var releases []*github.RepositoryRelease
	err := c.do(ctx, c.endpoint("repos/%s/%s/releases", owner, repo), func(ctx context.Context) (resp *github.Response, err error) {
		releases, resp, err = c.gh.Repositories.ListReleases(ctx, owner, repo, nil)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	ret := make([]*Release, 0, len(releases))
	for _, r := range releases {
		ret = append(ret, newRelease(r))
	}
	return ret, nil
}

// GetLatestRelease fetches the latest published release without any fallback.
func (c *Client) GetLatestRelease(ctx context.Context, owner, repo string) (*Release, error) {
	var release *github.RepositoryRelease
	err := c.do(ctx, c.endpoint("repos/%s/%s/releases/latest", owner, repo), func(ctx context.Context) (resp *github.Response, err error) {
		release, resp, err = c.gh.Repositories.GetLatestRelease(ctx, owner, repo)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return newRelease(release), nil
}

func (c *Client) Repository(ctx context.Context, owner, repo string) (*Repository, error) {
	var repository *github.Repository
	err := c.do(ctx, c.endpoint("repos/%s/%s", owner, repo), func(ctx context.Context) (resp *github.Response, err error) {
		repository, resp, err = c.gh.Repositories.Get(ctx, owner, repo)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return newRepository(repository), nil
}

func (c *Client) SearchRepositories(ctx context.Context, query string, page, perPage int) (*SearchResult, error) {
	var result *github.RepositoriesSearchResult
	opts := &github.SearchOptions{ListOptions: github.ListOptions{Page: page, PerPage: perPage}}
	err := c.do(ctx, c.endpoint("search/repositories?q=%s", url.QueryEscape(query)), func(ctx context.Context) (resp *github.Response, err error) {
		result, resp, err = c.gh.Search.Repositories(ctx, query, opts)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	ret := &SearchResult{Total: result.GetTotal(), Repositories: make([]*Repository, 0, len(result.Repositories))}
	for _, r := range result.Repositories {
		ret.Repositories = append(ret.Repositories, newRepository(r))
	}
	return ret, nil
}

// IsGitHubURL reports whether rawURL points to github.com, api.github.com or the configured API host.
func (c *Client) IsGitHubURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "github.com" || host == "api.github.com" {
		return true
	}
	return host == c.apiHost()
}

// IsAPIURL reports whether rawURL points to the GitHub REST API.
func (c *Client) IsAPIURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "api.github.com" || host == c.apiHost()
}

// RequiresAuth reports whether a download from rawURL should carry the configured token.
func (c *Client) RequiresAuth(rawURL string) bool {
	return c.HasToken() && c.IsGitHubURL(rawURL)
}

func (c *Client) apiHost() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
