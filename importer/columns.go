package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// columnIndex maps canonical field names to header positions. Header
// matching is case-insensitive and synonym order is priority order, so
// "transaction date" beats "date" when both columns exist.
type columnIndex map[string]int

// resolveColumns matches a CSV header against declared synonyms once per
// import. Fields with no matching column are absent from the result.
func resolveColumns(header []string, synonyms map[string][]string) columnIndex {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		positions[strings.ToLower(strings.TrimSpace(h))] = i
	}

	out := make(columnIndex, len(synonyms))
	for field, names := range synonyms {
		for _, name := range names {
			if i, ok := positions[name]; ok {
				out[field] = i
				break
			}
		}
	}
	return out
}

// get returns the trimmed cell for a resolved field, or "" when the
// column is absent or the row is short.
func (c columnIndex) get(row []string, field string) string {
	i, ok := c[field]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// readCSV reads header and data rows, tolerating ragged rows (they are
// validated per record, not rejected by the reader).
func readCSV(r io.Reader) (header []string, rows [][]string, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	all, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("read csv: empty file")
	}
	return all[0], all[1:], nil
}
