package githubapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/nanato/wp-github-updates/internal/observe"
	"github.com/samber/lo"
)

// Resolver picks releases and archive URLs for a repository, falling back to the default
// branch when a repository has no usable release.
type Resolver struct {
	client   *Client
	observer observe.Observer
}

func NewResolver(client *Client) *Resolver {
	return &Resolver{client: client, observer: client.observer}
}

func (r *Resolver) Client() *Client {
	return r.client
}

// LatestRelease returns the latest release. If GitHub answers 403 or 404 and the repository
// metadata is readable, a synthetic release pointing at the default branch is returned.
func (r *Resolver) LatestRelease(ctx context.Context, owner, repo string) (*Release, error) {
	release, err := r.client.GetLatestRelease(ctx, owner, repo)
	if err == nil {
		return release, nil
	}
	status := StatusCode(err)
	if status != http.StatusNotFound && status != http.StatusForbidden {
		return nil, err
	}
	repository, repoErr := r.client.Repository(ctx, owner, repo)
	if repoErr != nil || repository.DefaultBranch == "" {
		return nil, err
	}
	branch := repository.DefaultBranch
	r.observer.Observe(ctx, observe.Event{
		Kind:       observe.FallbackTaken,
		Component:  "resolver",
		StatusCode: status,
		Message:    "no release available, using default branch",
		Fields:     map[string]any{"repository": owner + "/" + repo, "branch": branch},
	})
	return &Release{
		TagName:     branch,
		Name:        "Latest from " + branch,
		Body:        "Using latest code from default branch.",
		ZipballURL:  r.archiveURL(owner, repo, "zipball", branch),
		TarballURL:  r.archiveURL(owner, repo, "tarball", branch),
		HTMLURL:     repository.HTMLURL,
		PublishedAt: repository.UpdatedAt,
		Synthetic:   true,
	}, nil
}

// DownloadURL returns the archive URL for version, or for the latest release if version is empty.
func (r *Resolver) DownloadURL(ctx context.Context, owner, repo, version string) (string, error) {
	if version != "" {
		return r.versionURL(owner, repo, version), nil
	}

	release, err := r.LatestRelease(ctx, owner, repo)
	if err != nil {
		repository, repoErr := r.client.Repository(ctx, owner, repo)
		if repoErr != nil {
			return "", repoErr
		}
		r.observer.Observe(ctx, observe.Event{
			Kind:      observe.FallbackTaken,
			Component: "resolver",
			Message:   "release lookup failed, using default branch archive",
			Err:       err,
			Fields:    map[string]any{"repository": owner + "/" + repo, "branch": repository.DefaultBranch},
		})
		return r.archiveURL(owner, repo, "zipball", repository.DefaultBranch), nil
	}

	if asset, ok := ZipAsset(release); ok {
		if r.client.HasToken() && asset.URL != "" {
			return asset.URL, nil
		}
		return asset.BrowserDownloadURL, nil
	}
	if release.ZipballURL != "" {
		return release.ZipballURL, nil
	}
	if release.TagName != "" {
		return r.archiveURL(owner, repo, "zipball", release.TagName), nil
	}
	return "", ErrNoDownloadURL
}

// ZipAsset returns the first downloadable asset that is a zip archive by name or content type.
func ZipAsset(release *Release) (*Asset, bool) {
	return lo.Find(release.Assets, func(a *Asset) bool {
		if a.BrowserDownloadURL == "" {
			return false
		}
		return strings.HasSuffix(a.Name, ".zip") || a.ContentType == ContentTypeZip
	})
}

func (r *Resolver) versionURL(owner, repo, version string) string {
	kind := "heads"
	if IsTag(version) {
		kind = "tags"
	}
	if r.client.HasToken() {
		return r.archiveURL(owner, repo, "zipball", fmt.Sprintf("refs/%s/%s", kind, version))
	}
	return fmt.Sprintf("https://github.com/%s/%s/archive/refs/%s/%s.zip", owner, repo, kind, version)
}

func (r *Resolver) archiveURL(owner, repo, format, ref string) string {
	return r.client.endpoint("repos/%s/%s/%s/%s", owner, repo, format, ref)
}

// IsTag reports whether version looks like a release tag rather than a branch name.
func IsTag(version string) bool {
	_, err := semver.NewVersion(version)
	return err == nil
}
