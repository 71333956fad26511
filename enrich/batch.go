package enrich

import (
	"gorm.io/gorm"

	"finapp-go-be/models"
)

// ReenrichAll re-runs enrichment for transactions that still miss a
// standardized merchant or a category, using a single preloaded ruleset.
// Safe to re-run after mapping edits; unchanged rows are not written.
func ReenrichAll(db *gorm.DB) (int, error) {
	rs, err := LoadRuleset(db)
	if err != nil {
		return 0, err
	}

	var txs []models.Transaction
	if err := db.Where("standardized_merchant = ? OR category_id IS NULL", "").
		Find(&txs).Error; err != nil {
		return 0, err
	}

	updated := 0
	err = db.Transaction(func(tx *gorm.DB) error {
		for i := range txs {
			before := txs[i]
			rs.Apply(&txs[i])
			if txs[i].StandardizedMerchant == before.StandardizedMerchant &&
				equalCategory(txs[i].CategoryID, before.CategoryID) &&
				txs[i].CleanDescription == before.CleanDescription &&
				txs[i].IsExcluded == before.IsExcluded {
				continue
			}
			if err := tx.Save(&txs[i]).Error; err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// ReapplyExclusions re-evaluates the active exclusion rules across the
// whole store and updates flags that changed. Returns the number of rows
// touched and the total currently excluded.
func ReapplyExclusions(db *gorm.DB) (changed int, excluded int, err error) {
	rs, err := LoadRuleset(db)
	if err != nil {
		return 0, 0, err
	}

	var txs []models.Transaction
	if err := db.Find(&txs).Error; err != nil {
		return 0, 0, err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		for i := range txs {
			want := rs.IsExcluded(&txs[i])
			if want {
				excluded++
			}
			if txs[i].IsExcluded == want {
				continue
			}
			if err := tx.Model(&models.Transaction{}).Where("id = ?", txs[i].ID).
				Update("is_excluded", want).Error; err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return changed, excluded, nil
}

func equalCategory(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
