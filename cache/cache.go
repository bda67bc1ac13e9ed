// Package cache names and maintains the per-run directories under the
// scraper's cache directory.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// TimestampLayout prefixes every timestamped run directory.
	TimestampLayout = "2006-01-02_15-04-05"

	SuffixDryRun          = "-dryrun"
	SuffixRequestsLimited = "-requests-limited"
)

var ErrEmptyLabel = errors.New("empty cache entry label")

var (
	timestampedName = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}_`)

	// Entries never reported as invalid
	keepList = []string{"readme.txt"}
)

// RunLabel returns the cache label of a run. Dry runs get SuffixDryRun,
// request-limited runs get SuffixRequestsLimited; dry run takes precedence.
func RunLabel(source string, dryRun bool, requestLimit int) string {
	switch {
	case dryRun:
		return source + SuffixDryRun
	case requestLimit > 0:
		return source + SuffixRequestsLimited
	default:
		return source
	}
}

// Namer builds paths inside a cache directory.
type Namer struct {
	BaseDir string
	// Now returns the current time. Defaults to time.Now.
	Now    func() time.Time
	Logger *log.Logger
}

// NewNamer creates a namer rooted at baseDir.
func NewNamer(baseDir string) *Namer {
	return &Namer{BaseDir: baseDir, Now: time.Now}
}

func (n *Namer) now() time.Time {
	if n.Now == nil {
		return time.Now()
	}
	return n.Now()
}

func (n *Namer) logger() *log.Logger {
	if n.Logger == nil {
		return log.Default()
	}
	return n.Logger
}

// NameFor returns the path for label inside the base directory, prefixed
// with the current timestamp when timestamped is set.
func (n *Namer) NameFor(label string, timestamped bool) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", ErrEmptyLabel
	}

	name := label
	if timestamped {
		name = n.now().Format(TimestampLayout) + "_" + label
	}
	return filepath.Join(n.BaseDir, name), nil
}

// FindInvalid lists entries of the base directory that are not timestamped
// run directories, plus directories left by dry runs. A missing base
// directory has no invalid entries.
func (n *Namer) FindInvalid() ([]string, error) {
	entries, err := os.ReadDir(n.BaseDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}

	var invalid []string
	for _, e := range entries {
		name := e.Name()
		if isKept(name) {
			continue
		}
		if e.IsDir() && timestampedName.MatchString(name) && !strings.HasSuffix(name, SuffixDryRun) {
			continue
		}

		n.logger().Debug("Found invalid cache entry", "name", name, "dir", e.IsDir())
		invalid = append(invalid, filepath.Join(n.BaseDir, name))
	}

	sort.Strings(invalid)
	return invalid, nil
}

// Cleanup removes the entries reported by FindInvalid and returns them. In
// dry-run mode nothing is removed.
func (n *Namer) Cleanup(dryRun bool) ([]string, error) {
	invalid, err := n.FindInvalid()
	if err != nil {
		return nil, err
	}
	if len(invalid) == 0 {
		n.logger().Info("Cache is clean", "dir", n.BaseDir)
		return nil, nil
	}
	if dryRun {
		n.logger().Warn("Dry run, nothing removed", "entries", len(invalid))
		return invalid, nil
	}

	var errs []error
	for _, path := range invalid {
		if err := os.RemoveAll(path); err != nil {
			n.logger().Error("Failed to remove cache entry", "path", path, "err", err)
			errs = append(errs, err)
		}
	}

	return invalid, errors.Join(errs...)
}

func isKept(name string) bool {
	for _, k := range keepList {
		if strings.EqualFold(name, k) {
			return true
		}
	}
	return false
}
