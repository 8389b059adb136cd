package wordpress

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path"
	"strings"
)

// Activator switches on installed plugins and themes.
type Activator interface {
	ActivatePlugin(ctx context.Context, file string) error
	ActivateTheme(ctx context.Context, slug string) error
}

// WPCLI activates plugins and themes through the wp command line tool.
type WPCLI struct {
	Binary string
	// Path is the WordPress installation root passed as --path.
	Path string
}

func (w *WPCLI) ActivatePlugin(ctx context.Context, file string) error {
	name := file
	if dir := path.Dir(file); dir != "." {
		name = dir
	}
	return w.run(ctx, "plugin", "activate", name)
}

func (w *WPCLI) ActivateTheme(ctx context.Context, slug string) error {
	return w.run(ctx, "theme", "activate", slug)
}

func (w *WPCLI) run(ctx context.Context, args ...string) error {
	binary := w.Binary
	if binary == "" {
		binary = "wp"
	}
	if w.Path != "" {
		args = append(args, "--path="+w.Path)
	}
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w: %s", binary, strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}
	return nil
}
