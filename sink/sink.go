// Package sink persists deduplicated ship records. Every writer is
// all-or-nothing: records go to a temporary file next to the destination
// which is renamed into place once complete.
package sink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pevans/wfleet/ship"
)

var (
	ErrEmptyDestination   = errors.New("empty destination")
	ErrDestinationInvalid = errors.New("destination is a directory")
	ErrUnknownFormat      = errors.New("unknown output format")
)

// Sink writes a sequence of records to a destination path, overwriting any
// existing file.
type Sink interface {
	Write(records []ship.Record, destination string) error
}

// Prepare validates a destination and creates its parent directories.
func Prepare(destination string) error {
	if strings.TrimSpace(destination) == "" {
		return ErrEmptyDestination
	}

	info, err := os.Stat(destination)
	if err == nil && info.IsDir() {
		return fmt.Errorf("%w: %s", ErrDestinationInvalid, destination)
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat destination: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	return nil
}

// writeAtomic prepares destination, streams write into a temporary file in
// the same directory and renames it over the destination.
func writeAtomic(destination string, write func(w io.Writer) error) error {
	if err := Prepare(destination); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(destination), "."+filepath.Base(destination)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	return commit(tmpName, destination)
}

// commit moves a finished temporary file over the destination.
func commit(tmpName, destination string) error {
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmpName, destination); err != nil {
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}

var formats = map[string]struct {
	newSink   func() Sink
	extension string
}{
	"xlsx":   {func() Sink { return NewExcelSink() }, ".xlsx"},
	"csv":    {func() Sink { return NewCSVSink() }, ".csv"},
	"json":   {func() Sink { return NewJSONSink() }, ".json"},
	"sqlite": {func() Sink { return NewSQLiteSink() }, ".db"},
}

// ForFormat returns the sink registered under name and the file extension
// its output uses.
func ForFormat(name string) (Sink, string, error) {
	f, ok := formats[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q (want one of %s)", ErrUnknownFormat, name, strings.Join(Formats(), ", "))
	}
	return f.newSink(), f.extension, nil
}

// Formats lists the supported format names.
func Formats() []string {
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
