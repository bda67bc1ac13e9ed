package sink

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pevans/wfleet/ship"
)

// JSONSink writes records as an indented JSON array.
type JSONSink struct{}

func NewJSONSink() *JSONSink {
	return &JSONSink{}
}

func (s *JSONSink) Write(records []ship.Record, destination string) error {
	if records == nil {
		// Empty output is an empty array, not null
		records = []ship.Record{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}

	return writeAtomic(destination, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
