// Package merge folds per-token outcomes into one deduplicated record set.
package merge

import (
	"sort"

	"github.com/charmbracelet/log"
	"github.com/pevans/wfleet/executor"
	"github.com/pevans/wfleet/ship"
)

// Stats describes a merge.
type Stats struct {
	// Input is the number of records seen across successful outcomes.
	Input int
	// Unique is the number of distinct identities kept.
	Unique int
	// Duplicates counts records that replaced an earlier record with the
	// same identity.
	Duplicates int
	// Invalid counts records dropped for lacking an identity.
	Invalid int
}

// Merge deduplicates the records of all successful outcomes by identity.
// Outcomes are applied in Index order and a later record replaces an earlier
// one with the same key.
func Merge(outcomes []executor.Outcome, logger *log.Logger) map[ship.Key]ship.Record {
	records, _ := MergeWithStats(outcomes, logger)
	return records
}

// MergeWithStats is Merge that also reports counts.
func MergeWithStats(outcomes []executor.Outcome, logger *log.Logger) (map[ship.Key]ship.Record, Stats) {
	if logger == nil {
		logger = log.Default()
	}

	ordered := make([]executor.Outcome, len(outcomes))
	copy(ordered, outcomes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Index < ordered[j].Index
	})

	records := make(map[ship.Key]ship.Record)
	var stats Stats

	for _, o := range ordered {
		switch o.Status {
		case executor.StatusSuccess:
		case executor.StatusFailed:
			logger.Warn("Skipping failed token", "token", o.Token, "err", o.Err)
			continue
		case executor.StatusTooBroad:
			logger.Warn("Skipping too broad token, results may be incomplete", "token", o.Token)
			continue
		default:
			continue
		}

		for _, r := range o.Records {
			stats.Input++
			if err := r.Validate(); err != nil {
				logger.Debug("Skipping invalid record", "token", o.Token, "err", err)
				stats.Invalid++
				continue
			}

			key := r.Key()
			if _, ok := records[key]; ok {
				stats.Duplicates++
			}
			records[key] = r
		}
	}

	stats.Unique = len(records)
	logger.Info("Merged records", "input", stats.Input, "unique", stats.Unique, "duplicates", stats.Duplicates)

	return records, stats
}
