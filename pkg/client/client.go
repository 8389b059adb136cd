package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nanato/wp-github-updates/pkg/updates"
)

type ErrorResponse struct {
	StatusCode int
	ErrorMsg   string `json:"error"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("unexpected status code: %d, error: %s", e.StatusCode, e.ErrorMsg)
}

// Client talks to the /api/v1 JSON API of a wp-github-updates server.
type Client struct {
	serverURL        string
	adminAccessToken string
	httpClient       *http.Client
}

func New(serverURL, adminAccessToken string) *Client {
	return &Client{
		serverURL:        serverURL,
		adminAccessToken: adminAccessToken,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func withHeader(key, value string) func(r *http.Request) {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

func (c *Client) sendRequest(ctx context.Context, method, endpoint string, body io.Reader, modifyRequestFns ...func(r *http.Request)) (*http.Response, error) {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return nil, err
	}
	rel, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	u = u.JoinPath(rel.Path)
	u.RawQuery = rel.RawQuery
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json; charset=utf-8")
	req.Header.Set("Authorization", c.adminAccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, f := range modifyRequestFns {
		f(req)
	}
	return c.httpClient.Do(req)
}

func (c *Client) sendJSON(ctx context.Context, method, endpoint string, in, out any, modifyRequestFns ...func(r *http.Request)) error {
	var body io.Reader
	if in != nil {
		var bodyBuffer bytes.Buffer
		if err := json.NewEncoder(&bodyBuffer).Encode(in); err != nil {
			return err
		}
		body = &bodyBuffer
	}
	resp, err := c.sendRequest(ctx, method, endpoint, body, modifyRequestFns...)
	if err != nil {
		return err
	}
	return c.decodeResponse(resp, out)
}

func decodeError(resp *http.Response) error {
	errResp := ErrorResponse{StatusCode: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		errResp.ErrorMsg = http.StatusText(resp.StatusCode)
	}
	return &errResp
}

func (c *Client) decodeResponse(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return decodeError(resp)
	}
	if v == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// TestConnection checks the stored token, or token if it is not empty.
func (c *Client) TestConnection(ctx context.Context, token string) (*updates.ConnectionStatus, error) {
	var fns []func(r *http.Request)
	if token != "" {
		fns = append(fns, withHeader("X-GitHub-Token", token))
	}
	var status updates.ConnectionStatus
	if err := c.sendJSON(ctx, http.MethodGet, "connection", nil, &status, fns...); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) Settings(ctx context.Context) (*updates.Settings, error) {
	var s updates.Settings
	if err := c.sendJSON(ctx, http.MethodGet, "settings", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) UpdateSettings(ctx context.Context, settings *updates.Settings) (*updates.Settings, error) {
	var s updates.Settings
	if err := c.sendJSON(ctx, http.MethodPut, "settings", settings, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) Repositories(ctx context.Context) ([]updates.Registration, error) {
	var repos []updates.Registration
	if err := c.sendJSON(ctx, http.MethodGet, "repositories", nil, &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

func (c *Client) AddRepository(ctx context.Context, reg *updates.Registration) error {
	return c.sendJSON(ctx, http.MethodPost, "repositories", reg, nil)
}

func (c *Client) RemoveRepository(ctx context.Context, index int) (*updates.Registration, error) {
	var reg updates.Registration
	if err := c.sendJSON(ctx, http.MethodDelete, "repositories/"+strconv.Itoa(index), nil, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (c *Client) Search(ctx context.Context, query string, page, perPage int) (*updates.SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		q.Set("per_page", strconv.Itoa(perPage))
	}
	var res updates.SearchResult
	if err := c.sendJSON(ctx, http.MethodGet, "search?"+q.Encode(), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Lookup(ctx context.Context, owner, repo string) (*updates.Lookup, error) {
	var l updates.Lookup
	endpoint := fmt.Sprintf("lookup/%s/%s", url.PathEscape(owner), url.PathEscape(repo))
	if err := c.sendJSON(ctx, http.MethodGet, endpoint, nil, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (c *Client) Releases(ctx context.Context, owner, repo string) ([]updates.Release, error) {
	var releases []updates.Release
	endpoint := fmt.Sprintf("releases/%s/%s", url.PathEscape(owner), url.PathEscape(repo))
	if err := c.sendJSON(ctx, http.MethodGet, endpoint, nil, &releases); err != nil {
		return nil, err
	}
	return releases, nil
}

func (c *Client) Install(ctx context.Context, req *updates.InstallRequest) (*updates.InstallResult, error) {
	var res updates.InstallResult
	if err := c.sendJSON(ctx, http.MethodPost, "install", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) checkUpdates(ctx context.Context, t updates.PackageType, transient *updates.Transient) (*updates.Transient, error) {
	var res updates.Transient
	if err := c.sendJSON(ctx, http.MethodPost, fmt.Sprintf("updates/%ss", t), transient, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) CheckPluginUpdates(ctx context.Context, transient *updates.Transient) (*updates.Transient, error) {
	return c.checkUpdates(ctx, updates.TypePlugin, transient)
}

func (c *Client) CheckThemeUpdates(ctx context.Context, transient *updates.Transient) (*updates.Transient, error) {
	return c.checkUpdates(ctx, updates.TypeTheme, transient)
}

// Info returns the details of a registered plugin or theme.
func (c *Client) Info(ctx context.Context, t updates.PackageType, slug string) (*updates.Info, error) {
	var info updates.Info
	if err := c.sendJSON(ctx, http.MethodGet, fmt.Sprintf("info/%ss/%s", t, url.PathEscape(slug)), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// DownloadPackage writes the package at packageURL to dst if the server handles its download.
// It returns false if the caller should download the package itself.
func (c *Client) DownloadPackage(ctx context.Context, packageURL string, dst io.Writer) (bool, error) {
	var bodyBuffer bytes.Buffer
	if err := json.NewEncoder(&bodyBuffer).Encode(&updates.PackageRequest{URL: packageURL}); err != nil {
		return false, err
	}
	resp, err := c.sendRequest(ctx, http.MethodPost, "packages", &bodyBuffer, withHeader("Accept", "application/zip"))
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusNoContent:
		return false, nil
	case http.StatusOK:
		if _, err := io.Copy(dst, resp.Body); err != nil {
			return true, err
		}
		return true, nil
	default:
		return true, decodeError(resp)
	}
}

func (c *Client) Logs(ctx context.Context, limit int) ([]updates.LogEntry, error) {
	endpoint := "logs"
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	var logs []updates.LogEntry
	if err := c.sendJSON(ctx, http.MethodGet, endpoint, nil, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func (c *Client) ClearLogs(ctx context.Context) error {
	return c.sendJSON(ctx, http.MethodDelete, "logs", nil, nil)
}
