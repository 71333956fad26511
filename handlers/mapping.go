package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"finapp-go-be/database"
	"finapp-go-be/enrich"
	"finapp-go-be/models"
)

// RemapRequest edits a transaction's merchant/category and optionally
// turns the edit into mapping rules for future imports.
type RemapRequest struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	NewMerchant   string    `json:"new_merchant"`
	NewCategoryID string    `json:"new_category_id"`
	CreateRule    bool      `json:"create_rule"`
}

// RemapTransaction updates one transaction. The fingerprint is never
// touched: identity survives user edits.
func RemapTransaction(c *fiber.Ctx) error {
	var req RemapRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	var transaction models.Transaction
	if err := database.DB.First(&transaction, "id = ?", req.TransactionID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "transaction not found"})
	}

	if req.NewCategoryID != "" {
		var category models.Category
		if err := database.DB.First(&category, "id = ?", req.NewCategoryID).Error; err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "unknown category id"})
		}
		transaction.CategoryID = &req.NewCategoryID
	} else {
		transaction.CategoryID = nil
	}
	if req.NewMerchant != "" {
		transaction.StandardizedMerchant = req.NewMerchant
	}
	transaction.IsManual = true

	if err := database.DB.Save(&transaction).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update transaction"})
	}

	if req.CreateRule && req.NewMerchant != "" {
		if err := createRulesFromRemap(&transaction, req); err != nil {
			log.Warn().Err(err).Msg("failed to create mapping rules from remap")
		} else {
			// Re-scan uncategorized rows so the new rules take effect.
			go func() {
				if _, err := enrich.ReenrichAll(database.DB); err != nil {
					log.Error().Err(err).Msg("background re-enrichment failed")
				}
			}()
		}
	}

	return c.JSON(fiber.Map{"message": "transaction updated"})
}

func createRulesFromRemap(t *models.Transaction, req RemapRequest) error {
	var existing models.MerchantMap
	err := database.DB.First(&existing, "raw_description = ?", t.RawDescription).Error
	if err != nil {
		rule := models.MerchantMap{
			RawDescription:       t.RawDescription,
			StandardizedMerchant: req.NewMerchant,
			IsActive:             true,
		}
		if err := database.DB.Create(&rule).Error; err != nil {
			return err
		}
	}

	if req.NewCategoryID == "" {
		return nil
	}
	var existingCat models.CategoryMap
	err = database.DB.First(&existingCat, "unmapped_description = ?", req.NewMerchant).Error
	if err != nil {
		rule := models.CategoryMap{
			UnmappedDescription: req.NewMerchant,
			SCSCID:              req.NewCategoryID,
			Source:              models.ProvenanceManual,
			IsActive:            true,
		}
		return database.DB.Create(&rule).Error
	}
	return nil
}

// ListMerchantMap returns all merchant mappings, active first.
func ListMerchantMap(c *fiber.Ctx) error {
	var rows []models.MerchantMap
	if err := database.DB.Order("is_active desc, raw_description asc").Find(&rows).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load merchant map"})
	}
	return c.JSON(rows)
}

// ListCategoryMap returns all category mappings, active first.
func ListCategoryMap(c *fiber.Ctx) error {
	var rows []models.CategoryMap
	if err := database.DB.Order("is_active desc, unmapped_description asc").Find(&rows).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load category map"})
	}
	return c.JSON(rows)
}

// DeactivateMapping soft-deactivates a merchant or category mapping row.
// Deactivated rows are excluded from resolution but kept for audit.
func DeactivateMapping(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid id"})
	}

	var model interface{}
	switch c.Params("table") {
	case "merchant-map":
		model = &models.MerchantMap{}
	case "category-map":
		model = &models.CategoryMap{}
	default:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown mapping table"})
	}

	res := database.DB.Model(model).Where("id = ?", id).
		Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now()})
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to deactivate"})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "mapping not found"})
	}
	return c.JSON(fiber.Map{"message": "deactivated"})
}

// ExclusionRuleRequest creates one exclusion rule.
type ExclusionRuleRequest struct {
	RuleType string `json:"rule_type"`
	Value    string `json:"value"`
}

// CreateExclusionRule adds a rule; duplicates by value are rejected.
func CreateExclusionRule(c *fiber.Ctx) error {
	var req ExclusionRuleRequest
	if err := c.BodyParser(&req); err != nil || req.Value == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "value required"})
	}
	switch req.RuleType {
	case models.RuleExact, models.RulePattern, models.RuleCategory:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "rule_type must be exact, pattern or category"})
	}

	var existing models.ExclusionRule
	if err := database.DB.First(&existing, "value = ?", req.Value).Error; err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "rule already exists"})
	}

	rule := models.ExclusionRule{RuleType: req.RuleType, Value: req.Value, IsActive: true}
	if err := database.DB.Create(&rule).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create rule"})
	}
	return c.Status(fiber.StatusCreated).JSON(rule)
}

// ListExclusionRules returns all exclusion rules.
func ListExclusionRules(c *fiber.Ctx) error {
	var rows []models.ExclusionRule
	if err := database.DB.Order("created_at asc").Find(&rows).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load rules"})
	}
	return c.JSON(rows)
}

// ReapplyExclusions re-evaluates active rules across the whole store.
func ReapplyExclusions(c *fiber.Ctx) error {
	changed, excluded, err := enrich.ReapplyExclusions(database.DB)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"changed": changed, "excluded": excluded})
}

// Reenrich re-runs enrichment for transactions missing a merchant or a
// category, honoring mapping edits made since import.
func Reenrich(c *fiber.Ctx) error {
	updated, err := enrich.ReenrichAll(database.DB)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"updated": updated})
}
