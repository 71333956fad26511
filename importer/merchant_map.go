// Package importer loads CSVs into the reference tables and the
// transaction store through the bulk reconciliation engine. Each target
// table has its own serialization mutex; no two loads against the same
// table run concurrently.
package importer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gorm.io/gorm"

	"finapp-go-be/models"
	"finapp-go-be/reconcile"
)

var merchantMapMu sync.Mutex

var merchantMapColumns = map[string][]string{
	"raw_description":       {"raw_description", "description"},
	"standardized_merchant": {"standardized_merchant", "merchant", "standardized_name"},
	"notes":                 {"notes", "note"},
}

type merchantMapRecord struct {
	RawDescription       string
	StandardizedMerchant string
	Notes                string
}

func (r merchantMapRecord) Key() string { return r.RawDescription }

func (r merchantMapRecord) Validate() error {
	if r.RawDescription == "" {
		return errors.New("missing raw_description")
	}
	if r.StandardizedMerchant == "" {
		return errors.New("missing standardized_merchant")
	}
	return nil
}

type merchantMapTarget struct {
	db *gorm.DB
}

func (t merchantMapTarget) ExistingKeys(keys []string) (map[string]bool, error) {
	var present []string
	err := t.db.Model(&models.MerchantMap{}).
		Where("raw_description IN ?", keys).
		Pluck("raw_description", &present).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(present))
	for _, k := range present {
		out[k] = true
	}
	return out, nil
}

func (t merchantMapTarget) Apply(inserts, updates []reconcile.Record) error {
	return t.db.Transaction(func(tx *gorm.DB) error {
		if len(inserts) > 0 {
			rows := make([]models.MerchantMap, 0, len(inserts))
			for _, rec := range inserts {
				r := rec.(merchantMapRecord)
				rows = append(rows, models.MerchantMap{
					RawDescription:       r.RawDescription,
					StandardizedMerchant: r.StandardizedMerchant,
					Notes:                r.Notes,
					IsActive:             true,
				})
			}
			if err := tx.CreateInBatches(rows, 100).Error; err != nil {
				return err
			}
		}
		for _, rec := range updates {
			r := rec.(merchantMapRecord)
			err := tx.Model(&models.MerchantMap{}).
				Where("raw_description = ?", r.RawDescription).
				Updates(map[string]interface{}{
					"standardized_merchant": r.StandardizedMerchant,
					"is_active":             true,
					"updated_at":            time.Now(),
				}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ImportMerchantMap reconciles a merchant-map CSV
// (raw_description, standardized_merchant[, notes]) into the store.
func ImportMerchantMap(db *gorm.DB, path string, replaceExisting, dryRun bool) (*reconcile.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return importMerchantMap(db, f, replaceExisting, dryRun)
}

func importMerchantMap(db *gorm.DB, r io.Reader, replaceExisting, dryRun bool) (*reconcile.Report, error) {
	header, rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	cols := resolveColumns(header, merchantMapColumns)
	if _, ok := cols["raw_description"]; !ok {
		return nil, errors.New("csv must contain a raw_description column")
	}
	if _, ok := cols["standardized_merchant"]; !ok {
		return nil, errors.New("csv must contain a standardized_merchant column")
	}

	records := make([]reconcile.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, merchantMapRecord{
			RawDescription:       cols.get(row, "raw_description"),
			StandardizedMerchant: cols.get(row, "standardized_merchant"),
			Notes:                cols.get(row, "notes"),
		})
	}

	merchantMapMu.Lock()
	defer merchantMapMu.Unlock()
	return reconcile.Run(records, merchantMapTarget{db: db}, reconcile.Options{
		DryRun:          dryRun,
		ReplaceExisting: replaceExisting,
	})
}
