package install

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/samber/lo"
)

// MaxWrapperEntries is the largest number of top-level entries for which a single directory
// is treated as an archive wrapper.
const MaxWrapperEntries = 3

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func visibleEntries(dir string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	return lo.Filter(entries, func(e os.DirEntry, _ int) bool { return !isHidden(e.Name()) }), nil
}

// hasVisibleEntries reports whether dir exists and contains an entry that is not hidden.
func hasVisibleEntries(dir string) (bool, error) {
	entries, err := visibleEntries(dir)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("could not read %s: %w", dir, err)
	}
	return len(entries) > 0, nil
}

// CleanupEmptyDirectory removes dir if it is empty. Hidden entries such as .git keep it in place.
func CleanupEmptyDirectory(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not read %s: %w", dir, err)
	}
	if len(entries) > 0 {
		return nil
	}
	if err := os.Remove(dir); err != nil {
		return fmt.Errorf("could not remove %s: %w", dir, err)
	}
	return nil
}

// Extract unpacks the zip archive into dest. Entries that would end up outside of dest are rejected.
func Extract(archive, dest string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("could not open archive: %w", err)
	}
	defer r.Close()

	root := filepath.Clean(dest)
	for _, f := range r.File {
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes the destination directory", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("could not create %s: %w", target, err)
			}
			continue
		}
		if !f.Mode().IsRegular() {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("could not create %s: %w", filepath.Dir(target), err)
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("could not open archive entry %s: %w", f.Name, err)
	}
	defer rc.Close()
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("could not extract %s: %w", f.Name, err)
	}
	return out.Close()
}

// Flatten moves the content of a single wrapper directory, as created by GitHub archives,
// up into dir. It reports whether a wrapper was found.
func Flatten(dir string) (bool, error) {
	entries, err := visibleEntries(dir)
	if err != nil {
		return false, fmt.Errorf("could not read %s: %w", dir, err)
	}
	if len(entries) == 0 || len(entries) > MaxWrapperEntries {
		return false, nil
	}
	dirs := lo.Filter(entries, func(e os.DirEntry, _ int) bool { return e.IsDir() })
	if len(dirs) != 1 {
		return false, nil
	}

	wrapper := filepath.Join(dir, dirs[0].Name())
	inner, err := os.ReadDir(wrapper)
	if err != nil {
		return false, fmt.Errorf("could not read %s: %w", wrapper, err)
	}
	for _, e := range inner {
		dst := filepath.Join(dir, e.Name())
		if _, err := os.Lstat(dst); err == nil {
			continue
		}
		if err := os.Rename(filepath.Join(wrapper, e.Name()), dst); err != nil {
			return false, fmt.Errorf("could not move %s: %w", e.Name(), err)
		}
	}
	// entries that collided stay behind and keep the wrapper alive
	if rest, err := os.ReadDir(wrapper); err == nil && len(rest) == 0 {
		if err := os.Remove(wrapper); err != nil {
			return true, fmt.Errorf("could not remove %s: %w", wrapper, err)
		}
	}
	return true, nil
}
