package githubapi

import (
	"time"

	"github.com/google/go-github/v59/github"
)

const ContentTypeZip = "application/zip"

type Asset struct {
	Name               string
	ContentType        string
	BrowserDownloadURL string
	// URL is the API endpoint of the asset, required for downloads from private repositories.
	URL string
}

type Release struct {
	TagName     string
	Name        string
	Body        string
	ZipballURL  string
	TarballURL  string
	HTMLURL     string
	PublishedAt time.Time
	Assets      []*Asset
	// Synthetic is set for releases built from the default branch of a repository without releases.
	Synthetic bool
}

type Repository struct {
	FullName      string
	Name          string
	Owner         string
	Description   string
	DefaultBranch string
	Stars         int
	HasWiki       bool
	License       string
	HTMLURL       string
	Private       bool
	UpdatedAt     time.Time
}

type User struct {
	Login string
	Name  string
}

type SearchResult struct {
	Total        int
	Repositories []*Repository
}

func newAsset(a *github.ReleaseAsset) *Asset {
	return &Asset{
		Name:               a.GetName(),
		ContentType:        a.GetContentType(),
		BrowserDownloadURL: a.GetBrowserDownloadURL(),
		URL:                a.GetURL(),
	}
}

func newRelease(r *github.RepositoryRelease) *Release {
	assets := make([]*Asset, 0, len(r.Assets))
	for _, a := range r.Assets {
		if a == nil {
			continue
		}
		assets = append(assets, newAsset(a))
	}
	return &Release{
		TagName:     r.GetTagName(),
		Name:        r.GetName(),
		Body:        r.GetBody(),
		ZipballURL:  r.GetZipballURL(),
		TarballURL:  r.GetTarballURL(),
		HTMLURL:     r.GetHTMLURL(),
		PublishedAt: r.GetPublishedAt().Time,
		Assets:      assets,
	}
}

func newRepository(r *github.Repository) *Repository {
	return &Repository{
		FullName:      r.GetFullName(),
		Name:          r.GetName(),
		Owner:         r.GetOwner().GetLogin(),
		Description:   r.GetDescription(),
		DefaultBranch: r.GetDefaultBranch(),
		Stars:         r.GetStargazersCount(),
		HasWiki:       r.GetHasWiki(),
		License:       r.GetLicense().GetName(),
		HTMLURL:       r.GetHTMLURL(),
		Private:       r.GetPrivate(),
		UpdatedAt:     r.GetUpdatedAt().Time,
	}
}
