package update

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/nanato/wp-github-updates/internal/githubapi"
	"github.com/nanato/wp-github-updates/internal/observe"
	"github.com/nanato/wp-github-updates/internal/wordpress"
	"github.com/nanato/wp-github-updates/pkg/updates"
)

var (
	ErrNotRegistered = errors.New("no GitHub repository is registered for this slug")
	ErrNotInstalled  = errors.New("package is not installed")
)

type Registry interface {
	Repositories(ctx context.Context) ([]updates.Registration, error)
}

type ReleaseSource interface {
	LatestRelease(ctx context.Context, owner, repo string) (*githubapi.Release, error)
}

type Config struct {
	Paths    wordpress.Paths
	Registry Registry
	Releases ReleaseSource
	Observer observe.Observer
}

// Checker feeds GitHub releases into the WordPress update transients.
type Checker struct {
	cfg      Config
	observer observe.Observer
}

func NewChecker(cfg Config) *Checker {
	observer := cfg.Observer
	if observer == nil {
		observer = observe.Nop
	}
	return &Checker{cfg: cfg, observer: observer}
}

type available struct {
	version string
	url     string
	pkg     string
}

// PackageURL returns the archive WordPress should install for release.
func PackageURL(release *githubapi.Release) string {
	if release.ZipballURL != "" {
		return release.ZipballURL
	}
	for _, a := range release.Assets {
		if a.ContentType == githubapi.ContentTypeZip {
			return a.BrowserDownloadURL
		}
	}
	return ""
}

func (c *Checker) availableUpdate(ctx context.Context, reg *updates.Registration, current string) *available {
	release, err := c.cfg.Releases.LatestRelease(ctx, reg.Owner, reg.Name)
	if err != nil {
		c.observer.Observe(ctx, observe.Event{
			Kind:      observe.FailureRaised,
			Component: "updater",
			Message:   "could not fetch latest release",
			Err:       err,
			Fields:    map[string]any{"repository": reg.FullName()},
		})
		return nil
	}
	if release.TagName == "" {
		return nil
	}
	remote := NormalizeVersion(release.TagName)
	if CompareVersions(current, remote) >= 0 {
		return nil
	}
	pkg := PackageURL(release)
	if pkg == "" {
		return nil
	}
	return &available{version: remote, url: release.HTMLURL, pkg: pkg}
}

func (c *Checker) registrations(ctx context.Context, t updates.PackageType) ([]updates.Registration, error) {
	regs, err := c.cfg.Registry.Repositories(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not load repositories: %w", err)
	}
	ret := make([]updates.Registration, 0, len(regs))
	for _, reg := range regs {
		if reg.Type == t && reg.Key() != "" {
			ret = append(ret, reg)
		}
	}
	return ret, nil
}

// CheckPluginUpdates adds an update descriptor, keyed by plugin file, for every registered
// plugin with a newer release. A transient without checked versions is returned unchanged.
func (c *Checker) CheckPluginUpdates(ctx context.Context, t *updates.Transient) (*updates.Transient, error) {
	if len(t.Checked) == 0 {
		return t, nil
	}
	regs, err := c.registrations(ctx, updates.TypePlugin)
	if err != nil {
		return nil, err
	}
	for i := range regs {
		reg := &regs[i]
		data, err := wordpress.ReadPluginData(c.cfg.Paths.PluginFile(reg.File))
		if err != nil {
			continue
		}
		update := c.availableUpdate(ctx, reg, data.Version)
		if update == nil {
			continue
		}
		if t.Response == nil {
			t.Response = make(map[string]*updates.UpdateDescriptor)
		}
		t.Response[reg.File] = &updates.UpdateDescriptor{
			ID:         reg.File,
			Slug:       reg.PluginSlug(),
			Plugin:     reg.File,
			NewVersion: update.version,
			URL:        update.url,
			Package:    update.pkg,
		}
	}
	return t, nil
}

// CheckThemeUpdates adds an update descriptor, keyed by slug, for every registered theme with
// a newer release.
func (c *Checker) CheckThemeUpdates(ctx context.Context, t *updates.Transient) (*updates.Transient, error) {
	if len(t.Checked) == 0 {
		return t, nil
	}
	regs, err := c.registrations(ctx, updates.TypeTheme)
	if err != nil {
		return nil, err
	}
	for i := range regs {
		reg := &regs[i]
		data, err := wordpress.ReadThemeData(c.cfg.Paths.ThemeStylesheet(reg.Slug))
		if err != nil {
			continue
		}
		update := c.availableUpdate(ctx, reg, data.Version)
		if update == nil {
			continue
		}
		if t.Response == nil {
			t.Response = make(map[string]*updates.UpdateDescriptor)
		}
		t.Response[reg.Slug] = &updates.UpdateDescriptor{
			Theme:      reg.Slug,
			NewVersion: update.version,
			URL:        update.url,
			Package:    update.pkg,
		}
	}
	return t, nil
}

func (c *Checker) findRegistration(ctx context.Context, t updates.PackageType, slug string) (*updates.Registration, error) {
	regs, err := c.registrations(ctx, t)
	if err != nil {
		return nil, err
	}
	for i := range regs {
		reg := &regs[i]
		if (t == updates.TypePlugin && reg.PluginSlug() == slug) || (t == updates.TypeTheme && reg.Slug == slug) {
			return reg, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotRegistered, slug)
}

func lastUpdated(release *githubapi.Release) string {
	if release.PublishedAt.IsZero() {
		return ""
	}
	return release.PublishedAt.Format("2006-01-02")
}

// PluginInfo builds the plugin details shown by WordPress for a registered plugin.
func (c *Checker) PluginInfo(ctx context.Context, slug string) (*updates.Info, error) {
	reg, err := c.findRegistration(ctx, updates.TypePlugin, slug)
	if err != nil {
		return nil, err
	}
	data, err := wordpress.ReadPluginData(c.cfg.Paths.PluginFile(reg.File))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, reg.File)
	}
	if err != nil {
		return nil, err
	}
	release, err := c.cfg.Releases.LatestRelease(ctx, reg.Owner, reg.Name)
	if err != nil {
		return nil, err
	}
	return &updates.Info{
		Name:          data.Name,
		Slug:          reg.PluginSlug(),
		Version:       NormalizeVersion(release.TagName),
		Author:        data.Author,
		AuthorProfile: data.AuthorURI,
		Requires:      data.RequiresWP,
		Tested:        data.TestedUpTo,
		RequiresPHP:   data.RequiresPHP,
		Homepage:      data.PluginURI,
		DownloadLink:  PackageURL(release),
		LastUpdated:   lastUpdated(release),
		Sections: updates.InfoSections{
			Description: data.Description,
			Changelog:   release.Body,
		},
	}, nil
}

// ThemeInfo builds the theme details shown by WordPress for a registered theme.
func (c *Checker) ThemeInfo(ctx context.Context, slug string) (*updates.Info, error) {
	reg, err := c.findRegistration(ctx, updates.TypeTheme, slug)
	if err != nil {
		return nil, err
	}
	data, err := wordpress.ReadThemeData(c.cfg.Paths.ThemeStylesheet(reg.Slug))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, reg.Slug)
	}
	if err != nil {
		return nil, err
	}
	release, err := c.cfg.Releases.LatestRelease(ctx, reg.Owner, reg.Name)
	if err != nil {
		return nil, err
	}
	return &updates.Info{
		Name:          data.Name,
		Slug:          reg.Slug,
		Version:       NormalizeVersion(release.TagName),
		Author:        data.Author,
		AuthorProfile: data.AuthorURI,
		Requires:      data.RequiresWP,
		Tested:        data.TestedUpTo,
		RequiresPHP:   data.RequiresPHP,
		Homepage:      data.ThemeURI,
		DownloadLink:  PackageURL(release),
		LastUpdated:   lastUpdated(release),
		Sections: updates.InfoSections{
			Description: data.Description,
			Changelog:   release.Body,
		},
	}, nil
}
