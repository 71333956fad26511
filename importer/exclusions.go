package importer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gorm.io/gorm"

	"finapp-go-be/models"
	"finapp-go-be/reconcile"
)

var exclusionMu sync.Mutex

var exclusionColumns = map[string][]string{
	"rule_type": {"rule_type", "type", "kind"},
	"value":     {"value", "keyword", "pattern"},
}

type exclusionRecord struct {
	RuleType string
	Value    string
}

func (r exclusionRecord) Key() string { return r.Value }

func (r exclusionRecord) Validate() error {
	if r.Value == "" {
		return errors.New("missing value")
	}
	switch r.RuleType {
	case models.RuleExact, models.RulePattern, models.RuleCategory:
		return nil
	default:
		return fmt.Errorf("unknown rule_type %q", r.RuleType)
	}
}

type exclusionTarget struct {
	db *gorm.DB
}

func (t exclusionTarget) ExistingKeys(keys []string) (map[string]bool, error) {
	var present []string
	err := t.db.Model(&models.ExclusionRule{}).
		Where("value IN ?", keys).
		Pluck("value", &present).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(present))
	for _, k := range present {
		out[k] = true
	}
	return out, nil
}

func (t exclusionTarget) Apply(inserts, updates []reconcile.Record) error {
	return t.db.Transaction(func(tx *gorm.DB) error {
		if len(inserts) > 0 {
			rows := make([]models.ExclusionRule, 0, len(inserts))
			for _, rec := range inserts {
				r := rec.(exclusionRecord)
				rows = append(rows, models.ExclusionRule{
					RuleType: r.RuleType,
					Value:    r.Value,
					IsActive: true,
				})
			}
			if err := tx.CreateInBatches(rows, 100).Error; err != nil {
				return err
			}
		}
		for _, rec := range updates {
			r := rec.(exclusionRecord)
			err := tx.Model(&models.ExclusionRule{}).
				Where("value = ?", r.Value).
				Updates(map[string]interface{}{
					"rule_type": r.RuleType,
					"is_active": true,
				}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ImportExclusionRules reconciles an exclusion-rule CSV
// (rule_type, value) into the store. Rule type defaults to pattern.
func ImportExclusionRules(db *gorm.DB, path string, replaceExisting, dryRun bool) (*reconcile.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return importExclusionRules(db, f, replaceExisting, dryRun)
}

func importExclusionRules(db *gorm.DB, r io.Reader, replaceExisting, dryRun bool) (*reconcile.Report, error) {
	header, rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	cols := resolveColumns(header, exclusionColumns)
	if _, ok := cols["value"]; !ok {
		return nil, errors.New("csv must contain a value column")
	}

	records := make([]reconcile.Record, 0, len(rows))
	for _, row := range rows {
		ruleType := strings.ToLower(cols.get(row, "rule_type"))
		if ruleType == "" {
			ruleType = models.RulePattern
		}
		records = append(records, exclusionRecord{
			RuleType: ruleType,
			Value:    cols.get(row, "value"),
		})
	}

	exclusionMu.Lock()
	defer exclusionMu.Unlock()
	return reconcile.Run(records, exclusionTarget{db: db}, reconcile.Options{
		DryRun:          dryRun,
		ReplaceExisting: replaceExisting,
	})
}
