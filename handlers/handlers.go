package handlers

import (
	"github.com/rs/zerolog"

	"finapp-go-be/config"
	"finapp-go-be/staging"
)

var (
	cfg     *config.Config
	log     zerolog.Logger
	stager  *staging.Manager
)

// Init wires the shared configuration, logger and staging manager into
// the handler package. Must run once before routes are served.
func Init(c *config.Config, l zerolog.Logger, m *staging.Manager) {
	cfg = c
	log = l
	stager = m
}
