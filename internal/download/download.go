package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/nanato/wp-github-updates/internal/githubapi"
	"github.com/nanato/wp-github-updates/internal/observe"
)

const DefaultTimeout = 60 * time.Second

var (
	ErrNotFound        = errors.New("repository or release not found, check if the repository exists and is accessible")
	ErrAccessDenied    = errors.New("access denied")
	ErrInvalidArchive  = errors.New("downloaded file is not a valid ZIP archive")
	ErrIncompleteWrite = errors.New("downloaded file was not completely written")
)

const missingPermissionMarker = "not accessible by personal access token"

// HTTPError is returned for unexpected response status codes.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("download failed (HTTP %d): %s", e.StatusCode, e.Message)
}

type Config struct {
	Token      string
	APIBaseURL string
	UserAgent  string
	Timeout    time.Duration
	RetryMax   int
	Validation ValidationMode
	TempDir    string
	Mirror     *Mirror
	Observer   observe.Observer
}

// Downloader fetches archives from GitHub into temporary files.
type Downloader struct {
	cfg       Config
	apiHost   string
	github    *githubapi.Client
	client    *retryablehttp.Client
	validator *Validator
	observer  observe.Observer
}

func New(cfg Config) *Downloader {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = githubapi.DefaultAPIBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = githubapi.DefaultUserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Validation == "" {
		cfg.Validation = ModeStructural
	}
	observer := cfg.Observer
	if observer == nil {
		observer = observe.Nop
	}

	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = cfg.RetryMax
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.HTTPClient.Timeout = cfg.Timeout
	// redirects are followed manually so that credentials never leave GitHub
	client.HTTPClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	apiHost := ""
	if u, err := url.Parse(cfg.APIBaseURL); err == nil {
		apiHost = strings.ToLower(u.Hostname())
	}

	// only used to decide which hosts may see the token
	gh, _ := githubapi.New(githubapi.Config{Token: cfg.Token, APIBaseURL: cfg.APIBaseURL, UserAgent: cfg.UserAgent})

	return &Downloader{
		cfg:       cfg,
		apiHost:   apiHost,
		github:    gh,
		client:    client,
		validator: &Validator{Mode: cfg.Validation, Observer: observer},
		observer:  observer,
	}
}

func (d *Downloader) isAssetAPIURL(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	return (host == d.apiHost || host == "api.github.com") && strings.Contains(u.Path, "/releases/assets/")
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// Fetch downloads rawURL into a temporary file and returns its path. The caller owns the file.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) (string, error) {
	tmpFile, err := os.CreateTemp(d.cfg.TempDir, "wp-github-updates-*.zip")
	if err != nil {
		return "", fmt.Errorf("could not create temporary file: %w", err)
	}
	path := tmpFile.Name()
	restored, err := d.fetchInto(ctx, rawURL, tmpFile)
	if closeErr := tmpFile.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("could not close temporary file: %w", closeErr)
	}
	if err == nil && !d.validator.Validate(ctx, path) {
		err = ErrInvalidArchive
	}
	if err != nil {
		_ = os.Remove(path)
		d.observer.Observe(ctx, observe.Event{Kind: observe.FailureRaised, Component: "download", URL: rawURL, Message: "download failed", Err: err})
		return "", err
	}

	if d.cfg.Mirror != nil && !restored && Mirrorable(rawURL) {
		if mErr := d.cfg.Mirror.Store(ctx, rawURL, path); mErr != nil {
			d.observer.Observe(ctx, observe.Event{Kind: observe.FailureRaised, Component: "mirror", URL: rawURL, Message: "could not mirror archive", Err: mErr})
		}
	}
	return path, nil
}

func (d *Downloader) fetchInto(ctx context.Context, rawURL string, dst *os.File) (bool, error) {
	if d.cfg.Mirror != nil && Mirrorable(rawURL) {
		found, err := d.cfg.Mirror.Restore(ctx, rawURL, dst)
		switch {
		case err != nil:
			d.observer.Observe(ctx, observe.Event{Kind: observe.FailureRaised, Component: "mirror", URL: rawURL, Message: "could not restore mirrored archive", Err: err})
			if err := resetFile(dst); err != nil {
				return false, err
			}
		case found:
			d.observer.Observe(ctx, observe.Event{Kind: observe.ResponseReceived, Component: "mirror", URL: rawURL, Message: "archive restored from mirror"})
			return true, nil
		}
	}

	res, err := d.get(ctx, rawURL)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return false, ErrNotFound
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		msg := responseMessage(res)
		if strings.Contains(msg, missingPermissionMarker) {
			return false, fmt.Errorf(`%w: your GitHub token is missing required permissions, for private repositories add the "Contents: Read-only" permission to the token`, ErrAccessDenied)
		}
		return false, fmt.Errorf("%w (HTTP %d): %s", ErrAccessDenied, res.StatusCode, msg)
	case res.StatusCode != http.StatusOK:
		return false, &HTTPError{StatusCode: res.StatusCode, Message: responseMessage(res)}
	}

	n, err := io.Copy(dst, res.Body)
	if err != nil {
		return false, fmt.Errorf("could not write downloaded file: %w", err)
	}
	if res.ContentLength > 0 && n < res.ContentLength {
		return false, fmt.Errorf("%w: %d of %d bytes", ErrIncompleteWrite, n, res.ContentLength)
	}
	return false, nil
}

// get sends the initial request and follows at most one redirect without GitHub credentials.
func (d *Downloader) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid download URL: %w", err)
	}
	req.Header.Set("User-Agent", d.cfg.UserAgent)
	if d.isAssetAPIURL(req.URL) {
		req.Header.Set("Accept", "application/octet-stream")
	} else {
		githubapi.SetAPIHeaders(req.Header)
	}
	if d.github != nil && d.github.RequiresAuth(rawURL) {
		githubapi.SetAuthHeader(req.Request, d.cfg.Token)
	}

	res, err := d.do(ctx, req)
	if err != nil {
		return nil, err
	}
	location := res.Header.Get("Location")
	if !isRedirect(res.StatusCode) || location == "" {
		return res, nil
	}
	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()

	target, err := req.URL.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect location: %w", err)
	}
	redirect, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect location: %w", err)
	}
	redirect.Header.Set("User-Agent", d.cfg.UserAgent)
	return d.do(ctx, redirect)
}

func (d *Downloader) do(ctx context.Context, req *retryablehttp.Request) (*http.Response, error) {
	u := req.URL.String()
	d.observer.Observe(ctx, observe.Event{Kind: observe.RequestSent, Component: "download", URL: u, Message: "download request"})
	res, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	d.observer.Observe(ctx, observe.Event{Kind: observe.ResponseReceived, Component: "download", URL: u, StatusCode: res.StatusCode, Message: "download response"})
	return res, nil
}

func responseMessage(res *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(res.Body, 64*1024))
	if err != nil || len(body) == 0 {
		return http.StatusText(res.StatusCode)
	}
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(body))
}

func resetFile(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("could not reset temporary file: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("could not reset temporary file: %w", err)
	}
	return nil
}
