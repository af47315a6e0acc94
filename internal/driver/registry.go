// internal/driver/registry.go
package driver

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"stone-hmi-service/internal/driver/stone"
	"stone-hmi-service/pkg/driver"
)

// DriverFactory builds a display protocol instance on top of an open stream
type DriverFactory func(stream driver.Stream, opts ...stone.Option) *stone.Display

// ModelProfile describes the wire defaults of one display model
type ModelProfile struct {
	Model       string        `json:"model"`
	Description string        `json:"description"`
	HeaderHigh  byte          `json:"header_high"`
	HeaderLow   byte          `json:"header_low"`
	Factory     DriverFactory `json:"-"`
}

// Registry manages display model registration and driver creation
type Registry struct {
	models map[string]ModelProfile
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewRegistry creates a new driver registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		models: make(map[string]ModelProfile),
		logger: logger,
	}
}

func normalizeModel(model string) string {
	return strings.ToUpper(strings.TrimSpace(model))
}

// Register registers a model profile, replacing any earlier one
func (r *Registry) Register(profile ModelProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if profile.Factory == nil {
		profile.Factory = stone.New
	}
	profile.Model = normalizeModel(profile.Model)
	r.models[profile.Model] = profile

	r.logger.Info("Driver registered",
		zap.String("model", profile.Model),
		zap.Uint8("header_high", profile.HeaderHigh),
		zap.Uint8("header_low", profile.HeaderLow),
	)
}

// Lookup returns the profile for model, falling back to the "*" wildcard
func (r *Registry) Lookup(model string) (ModelProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.models[normalizeModel(model)]; ok {
		return p, true
	}
	p, ok := r.models["*"]
	return p, ok
}

// CreateDriver creates a display for model on stream. The model's header
// bytes are applied first so explicit options can still override them.
func (r *Registry) CreateDriver(model string, stream driver.Stream, opts ...stone.Option) (*stone.Display, error) {
	profile, ok := r.Lookup(model)
	if !ok {
		return nil, fmt.Errorf("no driver found for model=%s", model)
	}

	all := make([]stone.Option, 0, len(opts)+1)
	all = append(all, stone.WithHeader(profile.HeaderHigh, profile.HeaderLow))
	all = append(all, opts...)
	return profile.Factory(stream, all...), nil
}

// ResolveHeader returns the frame header for model. A non-negative high or low
// replaces the matching profile byte.
func (r *Registry) ResolveHeader(model string, high, low int) (byte, byte) {
	hi, lo := stone.DefaultHeaderHigh, stone.DefaultHeaderLow
	if profile, ok := r.Lookup(model); ok {
		hi, lo = profile.HeaderHigh, profile.HeaderLow
	}
	if high >= 0 {
		hi = byte(high)
	}
	if low >= 0 {
		lo = byte(low)
	}
	return hi, lo
}

// IsSupported checks if a model can be driven
func (r *Registry) IsSupported(model string) bool {
	_, ok := r.Lookup(model)
	return ok
}

// ListModels returns all registered profiles sorted by model name
func (r *Registry) ListModels() []ModelProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profiles := make([]ModelProfile, 0, len(r.models))
	for _, p := range r.models {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Model < profiles[j].Model })
	return profiles
}
