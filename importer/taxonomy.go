package importer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"gorm.io/gorm"

	"finapp-go-be/models"
	"finapp-go-be/reconcile"
)

var taxonomyMu sync.Mutex

var taxonomyColumns = map[string][]string{
	"id":          {"id", "scsc_id"},
	"section":     {"section"},
	"category":    {"category"},
	"subcategory": {"subcategory"},
}

type taxonomyRecord struct {
	ID          string
	Section     string
	Category    string
	Subcategory string
}

func (r taxonomyRecord) Key() string { return r.ID }

func (r taxonomyRecord) Validate() error {
	if r.ID == "" {
		return errors.New("missing id")
	}
	if r.Section == "" {
		return errors.New("missing section")
	}
	if r.Category == "" {
		return errors.New("missing category")
	}
	return nil
}

type taxonomyTarget struct {
	db *gorm.DB
}

func (t taxonomyTarget) ExistingKeys(keys []string) (map[string]bool, error) {
	var present []string
	err := t.db.Model(&models.Category{}).
		Where("id IN ?", keys).
		Pluck("id", &present).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(present))
	for _, k := range present {
		out[k] = true
	}
	return out, nil
}

func (t taxonomyTarget) Apply(inserts, updates []reconcile.Record) error {
	return t.db.Transaction(func(tx *gorm.DB) error {
		if len(inserts) > 0 {
			rows := make([]models.Category, 0, len(inserts))
			for _, rec := range inserts {
				r := rec.(taxonomyRecord)
				rows = append(rows, models.Category{
					ID:          r.ID,
					Section:     r.Section,
					Category:    r.Category,
					Subcategory: optional(r.Subcategory),
				})
			}
			if err := tx.CreateInBatches(rows, 100).Error; err != nil {
				return err
			}
		}
		for _, rec := range updates {
			r := rec.(taxonomyRecord)
			err := tx.Model(&models.Category{}).
				Where("id = ?", r.ID).
				Updates(map[string]interface{}{
					"section":     r.Section,
					"category":    r.Category,
					"subcategory": optional(r.Subcategory),
				}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ImportTaxonomy reconciles a taxonomy seed CSV
// (id, section, category, subcategory) into the category store.
func ImportTaxonomy(db *gorm.DB, path string, replaceExisting, dryRun bool) (*reconcile.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return importTaxonomy(db, f, replaceExisting, dryRun)
}

func importTaxonomy(db *gorm.DB, r io.Reader, replaceExisting, dryRun bool) (*reconcile.Report, error) {
	header, rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	cols := resolveColumns(header, taxonomyColumns)
	for _, required := range []string{"id", "section", "category"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("csv must contain a %s column", required)
		}
	}

	records := make([]reconcile.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, taxonomyRecord{
			ID:          cols.get(row, "id"),
			Section:     cols.get(row, "section"),
			Category:    cols.get(row, "category"),
			Subcategory: cols.get(row, "subcategory"),
		})
	}

	taxonomyMu.Lock()
	defer taxonomyMu.Unlock()
	return reconcile.Run(records, taxonomyTarget{db: db}, reconcile.Options{
		DryRun:          dryRun,
		ReplaceExisting: replaceExisting,
	})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
