package wordpress

import (
	"path/filepath"
	"regexp"
	"strings"
)

const (
	StylesheetFile = "style.css"
	pluginsDirName = "plugins"
	themesDirName  = "themes"
)

// Paths locates the plugin and theme roots of a WordPress content directory.
type Paths struct {
	ContentDir string
	PluginsDir string
	ThemesDir  string
}

func NewPaths(contentDir string) Paths {
	return Paths{
		ContentDir: contentDir,
		PluginsDir: filepath.Join(contentDir, pluginsDirName),
		ThemesDir:  filepath.Join(contentDir, themesDirName),
	}
}

// PluginFile returns the absolute path of a plugin main file given as "dir/file.php".
func (p Paths) PluginFile(file string) string {
	return filepath.Join(p.PluginsDir, filepath.FromSlash(file))
}

func (p Paths) ThemeDir(slug string) string {
	return filepath.Join(p.ThemesDir, slug)
}

func (p Paths) ThemeStylesheet(slug string) string {
	return filepath.Join(p.ThemesDir, slug, StylesheetFile)
}

var (
	slugInvalidChars = regexp.MustCompile(`[^a-z0-9_-]+`)
	slugDashes       = regexp.MustCompile(`-{2,}`)
)

// Slugify turns a title into a directory-safe slug.
func Slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = slugInvalidChars.ReplaceAllString(s, "-")
	s = slugDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
