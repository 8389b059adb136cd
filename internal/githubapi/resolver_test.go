package githubapi

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-github/v59/github"
	"github.com/migueleliasweb/go-github-mock/src/mock"
	"github.com/stretchr/testify/require"
)

func statusHandler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, `{"message":%q}`, http.StatusText(status))
	}
}

func newMockResolver(t *testing.T, token string, options ...mock.MockBackendOption) *Resolver {
	c, err := New(Config{Token: token, HTTPClient: mock.NewMockedHTTPClient(options...)})
	require.NoError(t, err)
	return NewResolver(c)
}

func testRepository(branch string) *github.Repository {
	return &github.Repository{
		FullName:      github.String("owner/repo"),
		DefaultBranch: github.String(branch),
		HTMLURL:       github.String("https://github.com/owner/repo"),
		UpdatedAt:     &github.Timestamp{Time: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
}

func TestLatestRelease(t *testing.T) {
	r := newMockResolver(t, "",
		mock.WithRequestMatch(
			mock.GetReposReleasesLatestByOwnerByRepo,
			&github.RepositoryRelease{TagName: github.String("v1.2.0"), ZipballURL: github.String("https://api.github.com/repos/owner/repo/zipball/v1.2.0")},
		),
	)
	release, err := r.LatestRelease(context.Background(), "owner", "repo")
	require.NoError(t, err)
	require.Equal(t, "v1.2.0", release.TagName)
	require.False(t, release.Synthetic)
}

func TestLatestReleaseFallsBackToDefaultBranch(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusForbidden} {
		r := newMockResolver(t, "",
			mock.WithRequestMatchHandler(mock.GetReposReleasesLatestByOwnerByRepo, statusHandler(status)),
			mock.WithRequestMatch(mock.GetReposByOwnerByRepo, testRepository("develop")),
		)
		release, err := r.LatestRelease(context.Background(), "owner", "repo")
		require.NoError(t, err)
		require.True(t, release.Synthetic)
		require.Equal(t, "develop", release.TagName)
		require.Equal(t, "Latest from develop", release.Name)
		require.Equal(t, "Using latest code from default branch.", release.Body)
		require.Equal(t, "https://api.github.com/repos/owner/repo/zipball/develop", release.ZipballURL)
		require.Equal(t, "https://api.github.com/repos/owner/repo/tarball/develop", release.TarballURL)
		require.Empty(t, release.Assets)
		require.Equal(t, 2024, release.PublishedAt.Year())
	}
}

func TestLatestReleaseKeepsOriginalError(t *testing.T) {
	// other statuses never fall back
	r := newMockResolver(t, "",
		mock.WithRequestMatchHandler(mock.GetReposReleasesLatestByOwnerByRepo, statusHandler(http.StatusInternalServerError)),
		mock.WithRequestMatch(mock.GetReposByOwnerByRepo, testRepository("main")),
	)
	_, err := r.LatestRelease(context.Background(), "owner", "repo")
	require.Equal(t, http.StatusInternalServerError, StatusCode(err))

	// repository metadata unavailable
	r = newMockResolver(t, "",
		mock.WithRequestMatchHandler(mock.GetReposReleasesLatestByOwnerByRepo, statusHandler(http.StatusNotFound)),
		mock.WithRequestMatchHandler(mock.GetReposByOwnerByRepo, statusHandler(http.StatusUnauthorized)),
	)
	_, err = r.LatestRelease(context.Background(), "owner", "repo")
	require.Equal(t, http.StatusNotFound, StatusCode(err))
}

func TestDownloadURL(t *testing.T) {
	zipAsset := &github.ReleaseAsset{
		Name:               github.String("plugin.zip"),
		ContentType:        github.String("application/octet-stream"),
		BrowserDownloadURL: github.String("https://github.com/owner/repo/releases/download/v1.0.0/plugin.zip"),
		URL:                github.String("https://api.github.com/repos/owner/repo/releases/assets/42"),
	}
	releaseWithAsset := &github.RepositoryRelease{
		TagName:    github.String("v1.0.0"),
		ZipballURL: github.String("https://api.github.com/repos/owner/repo/zipball/v1.0.0"),
		Assets: []*github.ReleaseAsset{
			{Name: github.String("checksums.txt"), BrowserDownloadURL: github.String("https://github.com/owner/repo/releases/download/v1.0.0/checksums.txt")},
			zipAsset,
		},
	}

	t.Run("asset with token", func(t *testing.T) {
		r := newMockResolver(t, "ghp_x", mock.WithRequestMatch(mock.GetReposReleasesLatestByOwnerByRepo, releaseWithAsset))
		u, err := r.DownloadURL(context.Background(), "owner", "repo", "")
		require.NoError(t, err)
		require.Equal(t, "https://api.github.com/repos/owner/repo/releases/assets/42", u)
	})

	t.Run("asset without token", func(t *testing.T) {
		r := newMockResolver(t, "", mock.WithRequestMatch(mock.GetReposReleasesLatestByOwnerByRepo, releaseWithAsset))
		u, err := r.DownloadURL(context.Background(), "owner", "repo", "")
		require.NoError(t, err)
		require.Equal(t, "https://github.com/owner/repo/releases/download/v1.0.0/plugin.zip", u)
	})

	t.Run("asset by content type", func(t *testing.T) {
		release := &github.RepositoryRelease{
			TagName: github.String("v1.0.0"),
			Assets: []*github.ReleaseAsset{{
				Name:               github.String("bundle"),
				ContentType:        github.String("application/zip"),
				BrowserDownloadURL: github.String("https://github.com/owner/repo/releases/download/v1.0.0/bundle"),
			}},
		}
		r := newMockResolver(t, "", mock.WithRequestMatch(mock.GetReposReleasesLatestByOwnerByRepo, release))
		u, err := r.DownloadURL(context.Background(), "owner", "repo", "")
		require.NoError(t, err)
		require.Equal(t, "https://github.com/owner/repo/releases/download/v1.0.0/bundle", u)
	})

	t.Run("zipball", func(t *testing.T) {
		release := &github.RepositoryRelease{
			TagName:    github.String("v1.0.0"),
			ZipballURL: github.String("https://api.github.com/repos/owner/repo/zipball/v1.0.0"),
		}
		r := newMockResolver(t, "", mock.WithRequestMatch(mock.GetReposReleasesLatestByOwnerByRepo, release))
		u, err := r.DownloadURL(context.Background(), "owner", "repo", "")
		require.NoError(t, err)
		require.Equal(t, "https://api.github.com/repos/owner/repo/zipball/v1.0.0", u)
	})

	t.Run("tag only", func(t *testing.T) {
		r := newMockResolver(t, "", mock.WithRequestMatch(mock.GetReposReleasesLatestByOwnerByRepo, &github.RepositoryRelease{TagName: github.String("v3.1.0")}))
		u, err := r.DownloadURL(context.Background(), "owner", "repo", "")
		require.NoError(t, err)
		require.Equal(t, "https://api.github.com/repos/owner/repo/zipball/v3.1.0", u)
	})

	t.Run("nothing", func(t *testing.T) {
		r := newMockResolver(t, "", mock.WithRequestMatch(mock.GetReposReleasesLatestByOwnerByRepo, &github.RepositoryRelease{}))
		_, err := r.DownloadURL(context.Background(), "owner", "repo", "")
		require.ErrorIs(t, err, ErrNoDownloadURL)
	})

	t.Run("default branch", func(t *testing.T) {
		r := newMockResolver(t, "",
			mock.WithRequestMatchHandler(mock.GetReposReleasesLatestByOwnerByRepo, statusHandler(http.StatusNotFound)),
			mock.WithRequestMatch(mock.GetReposByOwnerByRepo, testRepository("develop"), testRepository("develop")),
		)
		u, err := r.DownloadURL(context.Background(), "owner", "repo", "")
		require.NoError(t, err)
		require.Equal(t, "https://api.github.com/repos/owner/repo/zipball/develop", u)
	})

	t.Run("repository missing", func(t *testing.T) {
		r := newMockResolver(t, "",
			mock.WithRequestMatchHandler(mock.GetReposReleasesLatestByOwnerByRepo, statusHandler(http.StatusNotFound)),
			mock.WithRequestMatchHandler(mock.GetReposByOwnerByRepo, statusHandler(http.StatusNotFound)),
		)
		_, err := r.DownloadURL(context.Background(), "owner", "repo", "")
		require.True(t, IsNotFound(err))
	})
}

func TestDownloadURLForVersion(t *testing.T) {
	withToken := newMockResolver(t, "abc")
	public := newMockResolver(t, "")

	u, err := withToken.DownloadURL(context.Background(), "owner", "repo", "v1.2.3")
	require.NoError(t, err)
	require.Equal(t, "https://api.github.com/repos/owner/repo/zipball/refs/tags/v1.2.3", u)

	u, err = withToken.DownloadURL(context.Background(), "owner", "repo", "main")
	require.NoError(t, err)
	require.Equal(t, "https://api.github.com/repos/owner/repo/zipball/refs/heads/main", u)

	u, err = public.DownloadURL(context.Background(), "owner", "repo", "1.0.0")
	require.NoError(t, err)
	require.Equal(t, "https://github.com/owner/repo/archive/refs/tags/1.0.0.zip", u)

	u, err = public.DownloadURL(context.Background(), "owner", "repo", "develop")
	require.NoError(t, err)
	require.Equal(t, "https://github.com/owner/repo/archive/refs/heads/develop.zip", u)
}

func TestIsTag(t *testing.T) {
	require.True(t, IsTag("v1.2.3"))
	require.True(t, IsTag("1.0"))
	require.False(t, IsTag("main"))
	require.False(t, IsTag("feature/x"))
}
