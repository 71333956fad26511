package handlers

import (
	"github.com/gofiber/fiber/v2"

	"finapp-go-be/database"
	"finapp-go-be/importer"
	"finapp-go-be/reconcile"
)

// ImportRequest is the shared payload for all bulk CSV loads. Partial
// row failures populate the report's errors array; only an unreadable
// file or a storage failure makes the call itself fail.
type ImportRequest struct {
	Path            string `json:"path"`
	ReplaceExisting bool   `json:"replace_existing"`
	DryRun          bool   `json:"dry_run"`
	SourceLabel     string `json:"source_label"` // transactions only
}

func runImport(c *fiber.Ctx, load func(req ImportRequest) (*reconcile.Report, error)) error {
	var req ImportRequest
	if err := c.BodyParser(&req); err != nil || req.Path == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "path required"})
	}

	report, err := load(req)
	if err != nil {
		log.Error().Err(err).Str("path", req.Path).Msg("import failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(report)
}

// ImportMerchantMap bulk-loads a merchant-map CSV.
func ImportMerchantMap(c *fiber.Ctx) error {
	return runImport(c, func(req ImportRequest) (*reconcile.Report, error) {
		return importer.ImportMerchantMap(database.DB, req.Path, req.ReplaceExisting, req.DryRun)
	})
}

// ImportCategoryMap bulk-loads a category-map CSV.
func ImportCategoryMap(c *fiber.Ctx) error {
	return runImport(c, func(req ImportRequest) (*reconcile.Report, error) {
		return importer.ImportCategoryMap(database.DB, req.Path, req.ReplaceExisting, req.DryRun)
	})
}

// ImportTaxonomy bulk-loads the taxonomy seed CSV.
func ImportTaxonomy(c *fiber.Ctx) error {
	return runImport(c, func(req ImportRequest) (*reconcile.Report, error) {
		return importer.ImportTaxonomy(database.DB, req.Path, req.ReplaceExisting, req.DryRun)
	})
}

// ImportExclusionRules bulk-loads an exclusion-rule CSV.
func ImportExclusionRules(c *fiber.Ctx) error {
	return runImport(c, func(req ImportRequest) (*reconcile.Report, error) {
		return importer.ImportExclusionRules(database.DB, req.Path, req.ReplaceExisting, req.DryRun)
	})
}

// ImportTransactions bulk-loads a bank-export CSV into the transaction
// store; fingerprint duplicates classify as skips.
func ImportTransactions(c *fiber.Ctx) error {
	return runImport(c, func(req ImportRequest) (*reconcile.Report, error) {
		return importer.ImportTransactions(database.DB, req.Path, req.SourceLabel, req.DryRun)
	})
}
