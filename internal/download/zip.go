package download

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/klauspost/compress/zip"
	"github.com/nanato/wp-github-updates/internal/observe"
	"github.com/samber/lo"
)

type ValidationMode string

const (
	// ModeStructural parses the central directory of the archive.
	ModeStructural ValidationMode = "structural"
	// ModeSignature only checks the local file header signature.
	ModeSignature ValidationMode = "signature"
)

var zipSignature = []byte{0x50, 0x4B, 0x03, 0x04}

const loggedEntries = 5

// Validator checks downloaded files before they are handed to the installer.
type Validator struct {
	Mode     ValidationMode
	Observer observe.Observer
}

func (v *Validator) Validate(ctx context.Context, path string) bool {
	if v.Mode == ModeSignature {
		return HasZipSignature(path)
	}
	return v.IsValid(ctx, path)
}

// IsValid opens path as a zip archive and reports the number of entries and the first few names.
func (v *Validator) IsValid(ctx context.Context, path string) bool {
	r, err := zip.OpenReader(path)
	if err != nil {
		v.observe(ctx, observe.Event{Kind: observe.ArchiveInspected, Message: "file is not a readable zip archive", Err: err})
		return false
	}
	defer r.Close()

	names := lo.Map(r.File, func(f *zip.File, _ int) string { return f.Name })
	if len(names) > loggedEntries {
		names = names[:loggedEntries]
	}
	v.observe(ctx, observe.Event{
		Kind:    observe.ArchiveInspected,
		Message: "zip archive opened",
		Fields:  map[string]any{"entries": len(r.File), "first_entries": names},
	})
	return true
}

func (v *Validator) observe(ctx context.Context, e observe.Event) {
	if v.Observer == nil {
		return
	}
	e.Component = "zip"
	v.Observer.Observe(ctx, e)
}

// HasZipSignature reports whether the file starts with the zip local file header signature.
func HasZipSignature(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	header := make([]byte, len(zipSignature))
	if _, err := io.ReadFull(f, header); err != nil {
		return false
	}
	return bytes.Equal(header, zipSignature)
}
