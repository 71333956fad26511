package handlers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"finapp-go-be/database"
	"finapp-go-be/models"
)

// Export column orders are stable: reporting consumers parse these
// positionally. Dates are ISO-8601, amounts carry two fractional digits.
var transactionHeader = []string{
	"date", "raw_description", "clean_description", "standardized_merchant",
	"category_id", "amount", "account_name", "import_method", "is_excluded",
	"fingerprint", "updated_at",
}

// ExportTransactions streams the committed store as CSV or XLSX.
func ExportTransactions(c *fiber.Ctx) error {
	var rows []models.Transaction
	if err := database.DB.Order("date desc").Find(&rows).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load transactions"})
	}

	records := make([][]string, 0, len(rows))
	for _, t := range rows {
		categoryID := ""
		if t.CategoryID != nil {
			categoryID = *t.CategoryID
		}
		records = append(records, []string{
			t.Date.Format("2006-01-02"),
			t.RawDescription,
			t.CleanDescription,
			t.StandardizedMerchant,
			categoryID,
			decimal.NewFromFloat(t.Amount).StringFixed(2),
			t.AccountName,
			t.ImportMethod,
			strconv.FormatBool(t.IsExcluded),
			t.Fingerprint,
			t.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}

	if c.Query("format") == "xlsx" {
		return sendXLSX(c, "transactions", transactionHeader, records)
	}
	return sendCSV(c, "transactions", transactionHeader, records)
}

// ExportMerchantMap streams the merchant map as CSV.
func ExportMerchantMap(c *fiber.Ctx) error {
	var rows []models.MerchantMap
	if err := database.DB.Order("raw_description asc").Find(&rows).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load merchant map"})
	}

	header := []string{"raw_description", "standardized_merchant", "notes", "is_active", "updated_at"}
	records := make([][]string, 0, len(rows))
	for _, m := range rows {
		records = append(records, []string{
			m.RawDescription,
			m.StandardizedMerchant,
			m.Notes,
			strconv.FormatBool(m.IsActive),
			m.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return sendCSV(c, "merchant_map", header, records)
}

// ExportCategoryMap streams the category map as CSV.
func ExportCategoryMap(c *fiber.Ctx) error {
	var rows []models.CategoryMap
	if err := database.DB.Order("unmapped_description asc").Find(&rows).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load category map"})
	}

	header := []string{"unmapped_description", "scsc_id", "source", "is_active", "updated_at"}
	records := make([][]string, 0, len(rows))
	for _, m := range rows {
		records = append(records, []string{
			m.UnmappedDescription,
			m.SCSCID,
			m.Source,
			strconv.FormatBool(m.IsActive),
			m.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return sendCSV(c, "category_map", header, records)
}

func sendCSV(c *fiber.Ctx, name string, header []string, records [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to write csv"})
	}
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to write csv"})
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to write csv"})
	}

	c.Set("Content-Type", "text/csv; charset=utf-8")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+"_"+time.Now().Format("20060102")+".csv"))
	return c.Send(buf.Bytes())
}

func sendXLSX(c *fiber.Ctx, name string, header []string, records [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for col, h := range header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, rec := range records {
		for col, v := range rec {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to write xlsx"})
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+"_"+time.Now().Format("20060102")+".xlsx"))
	return c.Send(buf.Bytes())
}
