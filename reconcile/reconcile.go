// Package reconcile implements the generic insert/update/skip classifier
// used for every bulk table load: merchant map, category map, taxonomy,
// exclusion rules and transaction commits all produce the same report
// shape, so callers need a single rendering path.
package reconcile

import (
	"fmt"
)

// previewLimit bounds the dry-run sample so reports stay renderable.
const previewLimit = 20

// Options control a reconciliation run.
type Options struct {
	// DryRun classifies and validates without persisting anything.
	DryRun bool
	// ReplaceExisting turns key conflicts into updates instead of skips.
	ReplaceExisting bool
}

// RowError is a row-scoped validation or integrity failure. Rows are
// numbered from 1 in input order.
type RowError struct {
	Row    int    `json:"row"`
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// PreviewRow is one entry of the bounded classification sample.
type PreviewRow struct {
	Key    string `json:"key"`
	Action string `json:"action"` // insert | update | skip
}

// Report is the outcome of one reconciliation run. The invariant
// Inserted + Updated + Skipped + len(Errors) == TotalRows always holds;
// in-batch duplicates count once under Skipped.
type Report struct {
	TotalRows int          `json:"total_rows"`
	Inserted  int          `json:"inserted"`
	Updated   int          `json:"updated"`
	Skipped   int          `json:"skipped"`
	Errors    []RowError   `json:"errors"`
	Warnings  []string     `json:"warnings"`
	Preview   []PreviewRow `json:"preview,omitempty"`
}

// Record is one input row. Validate reports row-scoped problems (missing
// fields, unparsable numbers, dangling references); they end up in the
// report, never abort the run.
type Record interface {
	Key() string
	Validate() error
}

// Target is the store being reconciled into. Apply must be atomic: a
// failure mid-batch rolls back everything, so report counts always match
// what was persisted.
type Target interface {
	// ExistingKeys returns which of the given keys are already present.
	ExistingKeys(keys []string) (map[string]bool, error)
	// Apply persists the classified inserts and updates as one batch.
	Apply(inserts, updates []Record) error
}

// Run classifies records against the target and, unless opts.DryRun is
// set, applies the result. A returned error means storage-layer failure;
// in that case nothing was committed.
func Run(records []Record, target Target, opts Options) (*Report, error) {
	report := &Report{
		TotalRows: len(records),
		Errors:    []RowError{},
		Warnings:  []string{},
	}

	// Validate rows and collapse in-batch duplicate keys: first
	// occurrence wins, later ones are skipped with a warning.
	seen := make(map[string]bool, len(records))
	valid := make([]Record, 0, len(records))
	for i, rec := range records {
		row := i + 1
		if err := rec.Validate(); err != nil {
			report.Errors = append(report.Errors, RowError{Row: row, Key: rec.Key(), Reason: err.Error()})
			continue
		}
		if seen[rec.Key()] {
			report.Skipped++
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("row %d: duplicate key %q within batch, skipped", row, rec.Key()))
			continue
		}
		seen[rec.Key()] = true
		valid = append(valid, rec)
	}

	keys := make([]string, len(valid))
	for i, rec := range valid {
		keys[i] = rec.Key()
	}
	existing := map[string]bool{}
	if len(keys) > 0 {
		var err error
		existing, err = target.ExistingKeys(keys)
		if err != nil {
			return nil, fmt.Errorf("look up existing keys: %w", err)
		}
	}

	var inserts, updates []Record
	for _, rec := range valid {
		var action string
		switch {
		case !existing[rec.Key()]:
			action = "insert"
			report.Inserted++
			inserts = append(inserts, rec)
		case opts.ReplaceExisting:
			action = "update"
			report.Updated++
			updates = append(updates, rec)
		default:
			action = "skip"
			report.Skipped++
		}
		if len(report.Preview) < previewLimit {
			report.Preview = append(report.Preview, PreviewRow{Key: rec.Key(), Action: action})
		}
	}

	if opts.DryRun {
		return report, nil
	}

	if len(inserts) > 0 || len(updates) > 0 {
		if err := target.Apply(inserts, updates); err != nil {
			// Whole batch rolled back; zero rows committed.
			return nil, fmt.Errorf("apply batch: %w", err)
		}
	}
	return report, nil
}
