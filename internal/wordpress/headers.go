package wordpress

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// headerSize is the part of a file that is scanned for header fields.
const headerSize = 8 * 1024

type PluginData struct {
	Name        string
	PluginURI   string
	Version     string
	Description string
	Author      string
	AuthorURI   string
	RequiresWP  string
	TestedUpTo  string
	RequiresPHP string
}

type ThemeData struct {
	Name        string
	ThemeURI    string
	Version     string
	Description string
	Author      string
	AuthorURI   string
	RequiresWP  string
	TestedUpTo  string
	RequiresPHP string
}

var headerPatterns = map[string]*regexp.Regexp{}

func headerPattern(field string) *regexp.Regexp {
	if re, ok := headerPatterns[field]; ok {
		return re
	}
	return regexp.MustCompile(`(?mi)^[ \t/*#@]*` + regexp.QuoteMeta(field) + `:(.*)$`)
}

func init() {
	for _, field := range []string{
		"Plugin Name", "Plugin URI", "Theme Name", "Theme URI", "Version", "Description",
		"Author", "Author URI", "Requires at least", "Tested up to", "Requires PHP",
	} {
		headerPatterns[field] = headerPattern(field)
	}
}

var headerCommentEnd = regexp.MustCompile(`\s*(?:\*/|\?>).*`)

// ParseHeaders extracts "Field: value" pairs from the comment block of a plugin file or stylesheet.
func ParseHeaders(data []byte, fields ...string) map[string]string {
	if len(data) > headerSize {
		data = data[:headerSize]
	}
	content := strings.ReplaceAll(string(data), "\r", "\n")
	ret := make(map[string]string, len(fields))
	for _, field := range fields {
		m := headerPattern(field).FindStringSubmatch(content)
		if len(m) < 2 {
			ret[field] = ""
			continue
		}
		ret[field] = strings.TrimSpace(headerCommentEnd.ReplaceAllString(m[1], ""))
	}
	return ret
}

// ReadHeaders reads the header block of the file at path.
func ReadHeaders(path string, fields ...string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, headerSize))
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}
	return ParseHeaders(data, fields...), nil
}

func ReadPluginData(path string) (*PluginData, error) {
	h, err := ReadHeaders(path, "Plugin Name", "Plugin URI", "Version", "Description", "Author",
		"Author URI", "Requires at least", "Tested up to", "Requires PHP")
	if err != nil {
		return nil, err
	}
	return &PluginData{
		Name:        h["Plugin Name"],
		PluginURI:   h["Plugin URI"],
		Version:     h["Version"],
		Description: h["Description"],
		Author:      h["Author"],
		AuthorURI:   h["Author URI"],
		RequiresWP:  h["Requires at least"],
		TestedUpTo:  h["Tested up to"],
		RequiresPHP: h["Requires PHP"],
	}, nil
}

func ReadThemeData(stylesheet string) (*ThemeData, error) {
	h, err := ReadHeaders(stylesheet, "Theme Name", "Theme URI", "Version", "Description", "Author",
		"Author URI", "Requires at least", "Tested up to", "Requires PHP")
	if err != nil {
		return nil, err
	}
	return &ThemeData{
		Name:        h["Theme Name"],
		ThemeURI:    h["Theme URI"],
		Version:     h["Version"],
		Description: h["Description"],
		Author:      h["Author"],
		AuthorURI:   h["Author URI"],
		RequiresWP:  h["Requires at least"],
		TestedUpTo:  h["Tested up to"],
		RequiresPHP: h["Requires PHP"],
	}, nil
}
