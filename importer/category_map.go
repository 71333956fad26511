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

var categoryMapMu sync.Mutex

var categoryMapColumns = map[string][]string{
	"unmapped_description": {"unmapped_description", "description", "merchant"},
	"scsc_id":              {"scsc_id", "id", "category_id"},
	"source":               {"source"},
}

type categoryMapRecord struct {
	UnmappedDescription string
	SCSCID              string
	Source              string

	validIDs map[string]bool
}

func (r categoryMapRecord) Key() string { return r.UnmappedDescription }

func (r categoryMapRecord) Validate() error {
	if r.UnmappedDescription == "" {
		return errors.New("missing unmapped_description")
	}
	if r.SCSCID == "" {
		return errors.New("missing scsc_id")
	}
	if !r.validIDs[r.SCSCID] {
		return fmt.Errorf("invalid_category_reference: %s", r.SCSCID)
	}
	return nil
}

type categoryMapTarget struct {
	db *gorm.DB
}

func (t categoryMapTarget) ExistingKeys(keys []string) (map[string]bool, error) {
	var present []string
	err := t.db.Model(&models.CategoryMap{}).
		Where("unmapped_description IN ?", keys).
		Pluck("unmapped_description", &present).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(present))
	for _, k := range present {
		out[k] = true
	}
	return out, nil
}

func (t categoryMapTarget) Apply(inserts, updates []reconcile.Record) error {
	return t.db.Transaction(func(tx *gorm.DB) error {
		if len(inserts) > 0 {
			rows := make([]models.CategoryMap, 0, len(inserts))
			for _, rec := range inserts {
				r := rec.(categoryMapRecord)
				rows = append(rows, models.CategoryMap{
					UnmappedDescription: r.UnmappedDescription,
					SCSCID:              r.SCSCID,
					Source:              r.Source,
					IsActive:            true,
				})
			}
			if err := tx.CreateInBatches(rows, 100).Error; err != nil {
				return err
			}
		}
		for _, rec := range updates {
			r := rec.(categoryMapRecord)
			err := tx.Model(&models.CategoryMap{}).
				Where("unmapped_description = ?", r.UnmappedDescription).
				Updates(map[string]interface{}{
					"scsc_id":    r.SCSCID,
					"is_active":  true,
					"updated_at": time.Now(),
				}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ImportCategoryMap reconciles a category-map CSV
// (unmapped_description, scsc_id[, source]) into the store. Rows whose
// scsc_id does not resolve against the taxonomy are rejected with
// invalid_category_reference.
func ImportCategoryMap(db *gorm.DB, path string, replaceExisting, dryRun bool) (*reconcile.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return importCategoryMap(db, f, replaceExisting, dryRun)
}

func importCategoryMap(db *gorm.DB, r io.Reader, replaceExisting, dryRun bool) (*reconcile.Report, error) {
	header, rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	cols := resolveColumns(header, categoryMapColumns)
	if _, ok := cols["unmapped_description"]; !ok {
		return nil, errors.New("csv must contain an unmapped_description column")
	}
	if _, ok := cols["scsc_id"]; !ok {
		return nil, errors.New("csv must contain a scsc_id column")
	}

	validIDs, err := loadCategoryIDs(db)
	if err != nil {
		return nil, err
	}

	records := make([]reconcile.Record, 0, len(rows))
	for _, row := range rows {
		source := cols.get(row, "source")
		if source == "" {
			source = models.ProvenanceBulkImport
		}
		records = append(records, categoryMapRecord{
			UnmappedDescription: cols.get(row, "unmapped_description"),
			SCSCID:              cols.get(row, "scsc_id"),
			Source:              source,
			validIDs:            validIDs,
		})
	}

	categoryMapMu.Lock()
	defer categoryMapMu.Unlock()
	return reconcile.Run(records, categoryMapTarget{db: db}, reconcile.Options{
		DryRun:          dryRun,
		ReplaceExisting: replaceExisting,
	})
}

func loadCategoryIDs(db *gorm.DB) (map[string]bool, error) {
	var ids []string
	if err := db.Model(&models.Category{}).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("load taxonomy ids: %w", err)
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}
