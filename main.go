package main

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"

	"finapp-go-be/config"
	"finapp-go-be/database"
	"finapp-go-be/handlers"
	"finapp-go-be/logger"
	"finapp-go-be/staging"
)

func main() {
	log := logger.New()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	// Back up the local store before touching it.
	if cfg.Database.Driver == "sqlite" || cfg.Database.Driver == "" {
		if err := database.DailyBackup(log, cfg.Database.Path, cfg.Backup.Dir, cfg.Backup.RetentionDays); err != nil {
			log.Warn().Err(err).Msg("daily backup failed")
		}
	}

	if err := database.ConnectDB(cfg.Database); err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	log.Info().Str("driver", cfg.Database.Driver).Msg("connected to database")

	earliest, err := cfg.EarliestSyncDate()
	if err != nil {
		log.Fatal().Err(err).Msg("parse sync cutoff")
	}
	stager := staging.NewManager(database.DB, log, earliest)
	handlers.Init(cfg, log, stager)

	app := fiber.New()

	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// SimpleFin sync and the staging review queue
	api.Post("/simplefin/claim", handlers.ClaimToken)
	api.Post("/sync", handlers.SyncToStaging)
	api.Get("/staging", handlers.ListStaged)
	api.Post("/staging/approve", handlers.ApproveStaged)
	api.Post("/staging/reject", handlers.RejectStaged)

	// Bulk CSV loads, all through the same reconciliation engine
	api.Post("/import/merchant-map", handlers.ImportMerchantMap)
	api.Post("/import/category-map", handlers.ImportCategoryMap)
	api.Post("/import/taxonomy", handlers.ImportTaxonomy)
	api.Post("/import/exclusions", handlers.ImportExclusionRules)
	api.Post("/import/transactions", handlers.ImportTransactions)

	// Mapping tables and enrichment maintenance
	api.Post("/transactions/map", handlers.RemapTransaction)
	api.Get("/mappings/merchant-map", handlers.ListMerchantMap)
	api.Get("/mappings/category-map", handlers.ListCategoryMap)
	api.Post("/mappings/:table/:id/deactivate", handlers.DeactivateMapping)
	api.Get("/exclusions", handlers.ListExclusionRules)
	api.Post("/exclusions", handlers.CreateExclusionRule)
	api.Post("/exclusions/reapply", handlers.ReapplyExclusions)
	api.Post("/enrich/rerun", handlers.Reenrich)

	// AI-proposed category mappings
	api.Post("/analyze", handlers.SuggestCategories)

	// Exports for reporting
	api.Get("/export/transactions", handlers.ExportTransactions)
	api.Get("/export/merchant-map", handlers.ExportMerchantMap)
	api.Get("/export/category-map", handlers.ExportCategoryMap)

	log.Info().Str("port", cfg.Server.Port).Msg("starting server")
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
