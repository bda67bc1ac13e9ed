package sink

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/pevans/wfleet/ship"
)

// CSVSink writes records as comma-separated values with a header row.
type CSVSink struct {
	Comma rune
}

func NewCSVSink() *CSVSink {
	return &CSVSink{Comma: ','}
}

func (s *CSVSink) Write(records []ship.Record, destination string) error {
	return writeAtomic(destination, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if s.Comma != 0 {
			cw.Comma = s.Comma
		}

		if err := cw.Write(ship.Header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		for _, r := range records {
			if err := cw.Write(r.Fields()); err != nil {
				return fmt.Errorf("failed to write record %s: %w", r.Key(), err)
			}
		}

		cw.Flush()
		return cw.Error()
	})
}
