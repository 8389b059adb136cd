package updates

import (
	"fmt"
	"path"
	"time"
)

type PackageType string

const (
	TypePlugin PackageType = "plugin"
	TypeTheme  PackageType = "theme"
)

// Registration links an installed plugin or theme to the GitHub repository it is updated from.
// Themes are identified by Slug, plugins by File (relative to the plugins root).
type Registration struct {
	Type  PackageType `json:"type" yaml:"type" firestore:"type" validate:"required,oneof=plugin theme"`
	Owner string      `json:"owner" yaml:"owner" firestore:"owner" validate:"required"`
	Name  string      `json:"name" yaml:"name" firestore:"name" validate:"required"`
	Slug  string      `json:"slug,omitempty" yaml:"slug,omitempty" firestore:"slug" validate:"required_if=Type theme"`
	File  string      `json:"file,omitempty" yaml:"file,omitempty" firestore:"file" validate:"required_if=Type plugin"`
}

func (r *Registration) FullName() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.Name)
}

// Key returns the identifier WordPress uses for the package in its update transients.
func (r *Registration) Key() string {
	if r.Type == TypeTheme {
		return r.Slug
	}
	return r.File
}

// PluginSlug is the directory name of a registered plugin.
func (r *Registration) PluginSlug() string {
	return path.Dir(r.File)
}

type Settings struct {
	GitHubToken string `json:"github_token" yaml:"github_token" firestore:"github_token"`
	LogLevel    string `json:"log_level,omitempty" yaml:"log_level,omitempty" firestore:"log_level"`
}

type LogEntry struct {
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp" firestore:"timestamp"`
	Level     string         `json:"level" yaml:"level" firestore:"level"`
	Message   string         `json:"message" yaml:"message" firestore:"message"`
	Context   map[string]any `json:"context,omitempty" yaml:"context,omitempty" firestore:"context"`
}

type InstallRequest struct {
	Type         PackageType `json:"type"`
	Owner        string      `json:"owner"`
	Name         string      `json:"name"`
	DownloadURL  string      `json:"download_url,omitempty"`
	// Version installs a tag or branch instead of the latest release. Ignored with DownloadURL.
	Version      string      `json:"version,omitempty"`
	Slug         string      `json:"slug,omitempty"`
	Activate     bool        `json:"activate,omitempty"`
	AddToUpdater bool        `json:"add_to_updater,omitempty"`
}

type InstallResult struct {
	Message   string      `json:"message"`
	Type      PackageType `json:"type"`
	Slug      string      `json:"slug"`
	File      string      `json:"file,omitempty"`
	Directory string      `json:"directory"`
	Activated bool        `json:"activated"`
}

// UpdateDescriptor is a single entry of a WordPress update transient response.
type UpdateDescriptor struct {
	ID         string `json:"id,omitempty"`
	Slug       string `json:"slug,omitempty"`
	Plugin     string `json:"plugin,omitempty"`
	Theme      string `json:"theme,omitempty"`
	NewVersion string `json:"new_version"`
	URL        string `json:"url"`
	Package    string `json:"package"`
}

// Transient mirrors the update_plugins/update_themes site transient: Checked maps the package
// key to its installed version, Response receives the available updates.
type Transient struct {
	Checked  map[string]string            `json:"checked"`
	Response map[string]*UpdateDescriptor `json:"response"`
}

type InfoSections struct {
	Description string `json:"description"`
	Changelog   string `json:"changelog"`
}

// Info is the extended plugin/theme information shown in the WordPress details modal.
type Info struct {
	Name          string       `json:"name"`
	Slug          string       `json:"slug"`
	Version       string       `json:"version"`
	Author        string       `json:"author"`
	AuthorProfile string       `json:"author_profile"`
	Requires      string       `json:"requires"`
	Tested        string       `json:"tested"`
	RequiresPHP   string       `json:"requires_php"`
	Homepage      string       `json:"homepage"`
	DownloadLink  string       `json:"download_link"`
	LastUpdated   string       `json:"last_updated"`
	Sections      InfoSections `json:"sections"`
}

type RateLimit struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
	Resource  string    `json:"resource"`
}

type ConnectionStatus struct {
	Message   string    `json:"message"`
	Login     string    `json:"login"`
	RateLimit RateLimit `json:"rate_limit"`
}

type RepositorySummary struct {
	FullName    string `json:"full_name"`
	Name        string `json:"name"`
	Owner       string `json:"owner"`
	Description string `json:"description"`
	Stars       int    `json:"stars"`
	HTMLURL     string `json:"html_url"`
	Private     bool   `json:"private"`
}

type SearchResult struct {
	TotalCount   int                  `json:"total_count"`
	Repositories []*RepositorySummary `json:"repositories"`
}

// Lookup describes a repository together with its installable release.
type Lookup struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Version      string `json:"version"`
	Author       string `json:"author"`
	Stars        int    `json:"stars"`
	UpdatedAt    string `json:"updated_at"`
	ReleaseNotes string `json:"release_notes"`
	DownloadURL  string `json:"download_url"`
	HasWiki      bool   `json:"has_wiki"`
	License      string `json:"license"`
}

// Release is one published release of a repository.
type Release struct {
	Version     string `json:"version"`
	Name        string `json:"name"`
	PublishedAt string `json:"published_at"`
	HTMLURL     string `json:"html_url"`
	DownloadURL string `json:"download_url"`
}

type PackageRequest struct {
	URL string `json:"url"`
}
