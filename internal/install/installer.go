package install

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nanato/wp-github-updates/internal/githubapi"
	"github.com/nanato/wp-github-updates/internal/observe"
	"github.com/nanato/wp-github-updates/internal/wordpress"
	"github.com/nanato/wp-github-updates/pkg/updates"
)

type URLResolver interface {
	DownloadURL(ctx context.Context, owner, repo, version string) (string, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type Config struct {
	Paths     wordpress.Paths
	GitHub    *githubapi.Client
	Resolver  URLResolver
	Fetcher   Fetcher
	Activator wordpress.Activator
	Observer  observe.Observer
}

// Installer places GitHub archives into the plugin and theme directories.
type Installer struct {
	cfg      Config
	observer observe.Observer
}

func New(cfg Config) *Installer {
	observer := cfg.Observer
	if observer == nil {
		observer = observe.Nop
	}
	return &Installer{cfg: cfg, observer: observer}
}

// Slug returns the directory name the request installs into.
func Slug(req *updates.InstallRequest) string {
	if req.Slug != "" {
		return wordpress.Slugify(req.Slug)
	}
	return wordpress.Slugify(req.Name)
}

// TargetDir returns the absolute directory the request installs into.
func (i *Installer) TargetDir(req *updates.InstallRequest) (string, error) {
	slug := Slug(req)
	if slug == "" {
		return "", ErrInvalidSlug
	}
	switch req.Type {
	case updates.TypePlugin:
		return filepath.Join(i.cfg.Paths.PluginsDir, slug), nil
	case updates.TypeTheme:
		return filepath.Join(i.cfg.Paths.ThemesDir, slug), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidType, req.Type)
	}
}

// Install downloads and extracts the requested package. On failure the target directory may be
// left behind; callers clean it up with CleanupEmptyDirectory.
func (i *Installer) Install(ctx context.Context, req *updates.InstallRequest) (*updates.InstallResult, error) {
	target, err := i.TargetDir(req)
	if err != nil {
		return nil, err
	}
	slug := filepath.Base(target)

	used, err := hasVisibleEntries(target)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, fmt.Errorf("%w: %s", ErrDirectoryNotEmpty, target)
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return nil, fmt.Errorf("could not create %s: %w", target, err)
	}

	downloadURL := req.DownloadURL
	if downloadURL == "" {
		downloadURL, err = i.cfg.Resolver.DownloadURL(ctx, req.Owner, req.Name, req.Version)
		if err != nil {
			return nil, err
		}
	}
	if i.requiresAuth(downloadURL) {
		return nil, ErrAuthRequired
	}

	archive, err := i.cfg.Fetcher.Fetch(ctx, downloadURL)
	if err != nil {
		return nil, err
	}
	err = Extract(archive, target)
	_ = os.Remove(archive)
	if err != nil {
		return nil, err
	}
	flattened, err := Flatten(target)
	if err != nil {
		return nil, err
	}
	i.observer.Observe(ctx, observe.Event{
		Kind:      observe.ResponseReceived,
		Component: "installer",
		URL:       downloadURL,
		Message:   "archive extracted",
		Fields:    map[string]any{"directory": target, "flattened": flattened},
	})

	res := &updates.InstallResult{Type: req.Type, Slug: slug, Directory: target}
	switch req.Type {
	case updates.TypePlugin:
		file, err := findPluginFile(target)
		if err != nil {
			return nil, err
		}
		res.File = slug + "/" + file
		res.Message = "Plugin installed successfully."
	case updates.TypeTheme:
		if _, err := os.Stat(filepath.Join(target, wordpress.StylesheetFile)); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrThemeStylesheetNotFound, target)
		}
		res.Message = "Theme installed successfully."
	}

	if req.Activate {
		if err := i.activate(ctx, res); err != nil {
			return res, err
		}
		res.Activated = true
		res.Message = strings.TrimSuffix(res.Message, ".") + " and activated."
	}
	return res, nil
}

// requiresAuth reports whether url is a release asset endpoint of the API that cannot be read
// without a token.
func (i *Installer) requiresAuth(url string) bool {
	gh := i.cfg.GitHub
	if gh == nil || gh.HasToken() {
		return false
	}
	return gh.IsAPIURL(url) && strings.Contains(url, "/releases/assets/")
}

func (i *Installer) activate(ctx context.Context, res *updates.InstallResult) error {
	if i.cfg.Activator == nil {
		return fmt.Errorf("%w: no activator configured", ErrActivationFailed)
	}
	var err error
	if res.Type == updates.TypePlugin {
		err = i.cfg.Activator.ActivatePlugin(ctx, res.File)
	} else {
		err = i.cfg.Activator.ActivateTheme(ctx, res.Slug)
	}
	if err != nil {
		i.observer.Observe(ctx, observe.Event{Kind: observe.FailureRaised, Component: "installer", Message: "activation failed", Err: err})
		return fmt.Errorf("%w: %w", ErrActivationFailed, err)
	}
	return nil
}

// findPluginFile returns the first top-level php file carrying a "Plugin Name" header.
func findPluginFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("could not read %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".php") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		h, err := wordpress.ReadHeaders(filepath.Join(dir, name), "Plugin Name")
		if err != nil {
			continue
		}
		if h["Plugin Name"] != "" {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrPluginFileNotFound, dir)
}
