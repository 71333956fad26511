package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"finapp-go-be/database"
	"finapp-go-be/models"
	"finapp-go-be/simplefin"
)

const accessURLSettingKey = "simplefin_access_url"

// ClaimRequest carries a one-time SimpleFin setup token.
type ClaimRequest struct {
	SetupToken string `json:"setup_token"`
}

// ClaimToken exchanges a setup token for an access URL and persists it.
func ClaimToken(c *fiber.Ctx) error {
	var req ClaimRequest
	if err := c.BodyParser(&req); err != nil || req.SetupToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "setup_token required"})
	}

	accessURL, err := simplefin.ClaimSetupToken(c.Context(), req.SetupToken)
	if err != nil {
		log.Error().Err(err).Msg("claim setup token failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	setting := models.AppSetting{Key: accessURLSettingKey, Value: accessURL, Component: "simplefin"}
	if err := database.DB.Save(&setting).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save access url"})
	}
	return c.JSON(fiber.Map{"message": "access url saved"})
}

// SyncRequest optionally overrides the configured lookback window.
type SyncRequest struct {
	LookbackDays int `json:"lookback_days"`
}

// SyncToStaging fetches the lookback window from SimpleFin and stages
// new records as pending.
func SyncToStaging(c *fiber.Ctx) error {
	var req SyncRequest
	_ = c.BodyParser(&req) // body is optional
	lookback := req.LookbackDays
	if lookback <= 0 {
		lookback = cfg.Sync.LookbackDays
	}

	accessURL, err := loadAccessURL()
	if err != nil {
		return c.Status(fiber.StatusPreconditionFailed).JSON(fiber.Map{"error": err.Error()})
	}

	client, err := simplefin.NewClient(accessURL, time.Duration(cfg.Sync.HTTPTimeoutSeconds)*time.Second)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	report, err := stager.Sync(c.Context(), client, lookback)
	if err != nil {
		log.Error().Err(err).Msg("sync to staging failed")
		// The incomplete report still tells the caller what happened.
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error(), "report": report})
	}
	return c.JSON(report)
}

// ListStaged returns the pending review queue.
func ListStaged(c *fiber.Ctx) error {
	rows, err := stager.Pending()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load staged rows"})
	}
	return c.JSON(fiber.Map{"count": len(rows), "staged": rows})
}

// StagedIDsRequest selects staged rows for approval or rejection.
type StagedIDsRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

// ApproveStaged converts the selected pending rows into transactions.
func ApproveStaged(c *fiber.Ctx) error {
	var req StagedIDsRequest
	if err := c.BodyParser(&req); err != nil || len(req.IDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "ids required"})
	}

	report, err := stager.Approve(req.IDs)
	if err != nil {
		log.Error().Err(err).Msg("staging approval failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(report)
}

// RejectStaged tombstones the selected pending rows.
func RejectStaged(c *fiber.Ctx) error {
	var req StagedIDsRequest
	if err := c.BodyParser(&req); err != nil || len(req.IDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "ids required"})
	}

	rejected, err := stager.Reject(req.IDs)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"rejected": rejected})
}

func loadAccessURL() (string, error) {
	var setting models.AppSetting
	if err := database.DB.First(&setting, "key = ?", accessURLSettingKey).Error; err != nil {
		return "", errors.New("no SimpleFin access URL configured; claim a setup token first")
	}
	return setting.Value, nil
}
