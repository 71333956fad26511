package handlers

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"google.golang.org/genai"

	"finapp-go-be/database"
	"finapp-go-be/models"
)

// CategorySuggestion is one proposed mapping from the model.
type CategorySuggestion struct {
	Description string `json:"description"`
	CategoryID  string `json:"category_id"`
}

// SuggestCategories asks Gemini to propose category mappings for
// uncategorized transactions. Valid suggestions are persisted as
// CategoryMap rows with automated-suggestion provenance and applied to
// the matching uncategorized rows; everything else about the AI cycle
// stays outside this system.
func SuggestCategories(c *fiber.Ctx) error {
	var txns []models.Transaction
	if err := database.DB.Where("category_id IS NULL").Limit(200).Find(&txns).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch transactions"})
	}
	if len(txns) == 0 {
		return c.JSON(fiber.Map{"message": "no uncategorized transactions", "suggestions": []CategorySuggestion{}})
	}

	// Unique descriptions only, to keep the prompt small.
	seen := map[string]bool{}
	var descriptions []string
	for _, t := range txns {
		d := t.RawDescription
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		descriptions = append(descriptions, d)
		if len(descriptions) >= 50 {
			break
		}
	}

	var categories []models.Category
	if err := database.DB.Find(&categories).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch taxonomy"})
	}
	validIDs := make(map[string]bool, len(categories))
	for _, cat := range categories {
		validIDs[cat.ID] = true
	}

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return c.Status(fiber.StatusPreconditionFailed).JSON(fiber.Map{"error": "GEMINI_API_KEY not set"})
	}

	client, err := genai.NewClient(c.Context(), &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		log.Error().Err(err).Msg("init AI client failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to init AI client"})
	}

	prompt := buildCategorizationPrompt(descriptions, categories)
	resp, err := client.Models.GenerateContent(c.Context(), cfg.AI.Model, genai.Text(prompt), nil)
	if err != nil {
		log.Error().Err(err).Msg("AI generation failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "AI generation failed: " + err.Error()})
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "empty response from AI"})
	}

	rawText := ""
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			rawText += part.Text
		}
	}
	// Gemini loves wrapping JSON in markdown fences.
	rawText = strings.TrimSpace(rawText)
	rawText = strings.TrimPrefix(rawText, "```json")
	rawText = strings.TrimPrefix(rawText, "```")
	rawText = strings.TrimSuffix(rawText, "```")

	var suggestions []CategorySuggestion
	if err := json.Unmarshal([]byte(rawText), &suggestions); err != nil {
		log.Error().Err(err).Str("raw", rawText).Msg("failed to parse AI response")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "failed to parse AI response"})
	}

	saved, applied := 0, 0
	for _, s := range suggestions {
		if s.Description == "" || s.CategoryID == "" || !validIDs[s.CategoryID] {
			continue
		}

		var existing models.CategoryMap
		if err := database.DB.First(&existing, "unmapped_description = ?", s.Description).Error; err != nil {
			rule := models.CategoryMap{
				UnmappedDescription: s.Description,
				SCSCID:              s.CategoryID,
				Source:              models.ProvenanceAutomated,
				IsActive:            true,
			}
			if err := database.DB.Create(&rule).Error; err != nil {
				log.Warn().Err(err).Str("description", s.Description).Msg("failed to save suggestion")
				continue
			}
			saved++
		}

		res := database.DB.Model(&models.Transaction{}).
			Where("raw_description = ? AND category_id IS NULL", s.Description).
			Update("category_id", s.CategoryID)
		applied += int(res.RowsAffected)
	}

	return c.JSON(fiber.Map{
		"suggestions":   suggestions,
		"rules_saved":   saved,
		"rows_applied":  applied,
		"uncategorized": len(txns),
	})
}

func buildCategorizationPrompt(descriptions []string, categories []models.Category) string {
	var b strings.Builder
	b.WriteString("You are a financial categorization assistant. Match each transaction description to the best category ID from the taxonomy.\n\n")
	b.WriteString("### Taxonomy (ID | Path):\n")
	for _, c := range categories {
		path := c.Section + " > " + c.Category
		if c.Subcategory != nil {
			path += " > " + *c.Subcategory
		}
		fmt.Fprintf(&b, "- %s | %s\n", c.ID, path)
	}
	b.WriteString("\n### Transactions:\n")
	for _, d := range descriptions {
		fmt.Fprintf(&b, "- %s\n", d)
	}
	b.WriteString("\nReturn ONLY a raw JSON array, no markdown. Each object: {\"description\": <exact input>, \"category_id\": <taxonomy id>}. Skip descriptions with no good fit.\n")
	return b.String()
}
