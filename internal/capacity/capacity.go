// Package capacity measures on-disk usage of store directories and holds the
// ceiling each store enforces.
package capacity

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/afero"
)

// DefaultCeiling is the per-store byte ceiling (25 MiB).
const DefaultCeiling int64 = 25 * 1024 * 1024

// Policy decides what a store does when a write would cross its ceiling.
type Policy string

const (
	// PolicyReject refuses the write and leaves existing content untouched.
	PolicyReject Policy = "reject"
	// PolicyEvictOldest removes the oldest entries until the write fits.
	PolicyEvictOldest Policy = "evict_oldest"
)

// ParsePolicy normalizes an overflow policy name.
func ParsePolicy(raw string) (Policy, error) {
	value := Policy(strings.ToLower(strings.TrimSpace(raw)))
	switch value {
	case PolicyReject, PolicyEvictOldest:
		return value, nil
	case "":
		return "", fmt.Errorf("overflow policy is required")
	default:
		return "", fmt.Errorf("invalid overflow policy: %s", value)
	}
}

// Directory is one store's root and the number of bytes it may occupy.
type Directory struct {
	Root    string
	Ceiling int64
}

// Fits reports whether n more bytes stay within the ceiling at the given usage.
func (d Directory) Fits(usage, n int64) bool {
	return usage+n <= d.Ceiling
}

// Tracker sums file sizes under a directory. Usage is never cached.
type Tracker struct {
	fs     afero.Fs
	logger *slog.Logger
}

// NewTracker creates a tracker over fsys. A nil fsys means the OS filesystem.
func NewTracker(fsys afero.Fs, logger *slog.Logger) *Tracker {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Tracker{fs: fsys, logger: logger}
}

// Usage returns the bytes occupied by regular files under root, recursively.
// Symbolic links are neither followed nor counted. Entries that cannot be
// inspected count as zero and the walk continues.
func (t *Tracker) Usage(root string) int64 {
	if t == nil {
		return 0
	}
	var total int64
	err := afero.Walk(t.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if !(path == root && os.IsNotExist(err)) {
				t.log().Warn("capacity walk entry failed", "root", root, "path", path, "error", err)
			}
			return nil
		}
		if info.Mode().IsRegular() && info.Size() > 0 {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		t.log().Warn("capacity walk aborted", "root", root, "error", err)
	}
	return total
}

// Usage is the current byte count of d.
func (d Directory) Usage(t *Tracker) int64 {
	return t.Usage(d.Root)
}

// Remaining is Ceiling minus current usage. It is negative when content was
// added out of band past the ceiling.
func (d Directory) Remaining(t *Tracker) int64 {
	return d.Ceiling - d.Usage(t)
}

func (t *Tracker) log() *slog.Logger {
	if t != nil && t.logger != nil {
		return t.logger
	}
	return slog.Default()
}
