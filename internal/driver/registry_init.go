// internal/driver/registry_init.go
package driver

import (
	"go.uber.org/zap"

	"stone-hmi-service/internal/driver/stone"
)

// RegisterDefaultDrivers registers the display models this service knows about
func RegisterDefaultDrivers(registry *Registry, logger *zap.Logger) {
	registerStoneDrivers(registry)

	logger.Info("Display drivers registered",
		zap.Int("models", len(registry.ListModels())),
	)
}

func registerStoneDrivers(registry *Registry) {
	// STVI/STVC intelligent TFT series
	registry.Register(ModelProfile{
		Model:       "STONE_STVI",
		Description: "STONE STVI series TFT module",
		HeaderHigh:  stone.DefaultHeaderHigh,
		HeaderLow:   stone.DefaultHeaderLow,
	})

	registry.Register(ModelProfile{
		Model:       "STONE_STVC",
		Description: "STONE STVC series TFT module",
		HeaderHigh:  stone.DefaultHeaderHigh,
		HeaderLow:   stone.DefaultHeaderLow,
	})

	// DGUS-compatible panels share the frame layout
	registry.Register(ModelProfile{
		Model:       "DGUS",
		Description: "DGUS-compatible serial display",
		HeaderHigh:  stone.DefaultHeaderHigh,
		HeaderLow:   stone.DefaultHeaderLow,
	})

	// Anything else: assume factory defaults, headers come from config
	registry.Register(ModelProfile{
		Model:       "*",
		Description: "Generic A5 5A framed display",
		HeaderHigh:  stone.DefaultHeaderHigh,
		HeaderLow:   stone.DefaultHeaderLow,
	})
}
