package update

import (
	"context"

	"github.com/nanato/wp-github-updates/internal/githubapi"
	"github.com/nanato/wp-github-updates/internal/install"
	"github.com/nanato/wp-github-updates/internal/observe"
)

// Interceptor takes over package downloads from GitHub so that private archives are fetched
// with the configured token.
type Interceptor struct {
	gh       *githubapi.Client
	fetcher  install.Fetcher
	observer observe.Observer
}

func NewInterceptor(gh *githubapi.Client, fetcher install.Fetcher, observer observe.Observer) *Interceptor {
	if observer == nil {
		observer = observe.Nop
	}
	return &Interceptor{gh: gh, fetcher: fetcher, observer: observer}
}

// PreDownload returns the path of the downloaded archive if the download was handled. When
// handled is false the host downloads packageURL itself.
func (i *Interceptor) PreDownload(ctx context.Context, packageURL string) (path string, handled bool, err error) {
	if !i.gh.IsGitHubURL(packageURL) {
		return "", false, nil
	}
	if i.gh.HasToken() {
		path, err := i.fetcher.Fetch(ctx, packageURL)
		return path, true, err
	}
	if i.gh.IsAPIURL(packageURL) {
		i.observer.Observe(ctx, observe.Event{Kind: observe.FailureRaised, Component: "interceptor", URL: packageURL, Message: "package requires a GitHub token", Err: install.ErrAuthRequired})
		return "", true, install.ErrAuthRequired
	}
	return "", false, nil
}
