// internal/discovery/scanner.go
package discovery

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"stone-hmi-service/internal/driver/stone"
	"stone-hmi-service/internal/model"
	"stone-hmi-service/internal/protocol"
)

// Scanner looks for displays reachable over one kind of link
type Scanner interface {
	Scan(ctx context.Context) ([]*DiscoveredDisplay, error)
	GetScannerType() string
	IsAvailable() bool
}

// DiscoveredDisplay is a link on which a display answered a probe
type DiscoveredDisplay struct {
	ConnectionType  model.ConnectionType   `json:"connection_type"`
	ConnectionInfo  map[string]interface{} `json:"connection_info"`
	FirmwareVersion int                    `json:"firmware_version"`
	ResponseTimeMs  int64                  `json:"response_time_ms"`
}

// ProbeConfig controls how a candidate link is probed
type ProbeConfig struct {
	HeaderHigh byte
	HeaderLow  byte
	Timeout    time.Duration
}

// Probe opens conn, reads the firmware version register and closes conn
// again. A display is only considered present when it answers with a valid
// frame.
func Probe(ctx context.Context, conn protocol.Connection, cfg ProbeConfig) (byte, time.Duration, error) {
	if err := conn.Open(ctx); err != nil {
		return 0, 0, err
	}
	defer conn.Close()

	display := stone.New(conn,
		stone.WithHeader(cfg.HeaderHigh, cfg.HeaderLow),
		stone.WithTimeout(cfg.Timeout),
	)
	display.DrainInput()

	start := time.Now()
	version, err := display.FirmwareVersion()
	if err != nil {
		return 0, 0, err
	}
	return version, time.Since(start), nil
}

// ScannerManager runs the registered scanners
type ScannerManager struct {
	scanners map[string]Scanner
	logger   *zap.Logger
}

// NewScannerManager creates a new scanner manager
func NewScannerManager(logger *zap.Logger) *ScannerManager {
	return &ScannerManager{
		scanners: make(map[string]Scanner),
		logger:   logger,
	}
}

// RegisterScanner registers a scanner under its type
func (sm *ScannerManager) RegisterScanner(scanner Scanner) {
	scannerType := scanner.GetScannerType()
	sm.scanners[scannerType] = scanner
	sm.logger.Info("Scanner registered", zap.String("type", scannerType))
}

// ScanAll runs every available scanner. A failing scanner is logged and
// skipped.
func (sm *ScannerManager) ScanAll(ctx context.Context) ([]*DiscoveredDisplay, error) {
	var all []*DiscoveredDisplay

	for _, scannerType := range sm.types() {
		scanner := sm.scanners[scannerType]
		if !scanner.IsAvailable() {
			sm.logger.Debug("Scanner not available, skipping", zap.String("type", scannerType))
			continue
		}

		found, err := scanner.Scan(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			sm.logger.Error("Scanner failed", zap.String("type", scannerType), zap.Error(err))
			continue
		}

		all = append(all, found...)
		sm.logger.Info("Scanner completed",
			zap.String("type", scannerType),
			zap.Int("displays_found", len(found)),
		)
	}

	return all, nil
}

// ScanByType runs one scanner
func (sm *ScannerManager) ScanByType(ctx context.Context, scannerType string) ([]*DiscoveredDisplay, error) {
	scanner, exists := sm.scanners[scannerType]
	if !exists {
		return nil, fmt.Errorf("scanner type not found: %s", scannerType)
	}

	if !scanner.IsAvailable() {
		return nil, fmt.Errorf("scanner not available: %s", scannerType)
	}

	return scanner.Scan(ctx)
}

// GetAvailableScanners returns the available scanner types, sorted
func (sm *ScannerManager) GetAvailableScanners() []string {
	available := []string{}
	for _, scannerType := range sm.types() {
		if sm.scanners[scannerType].IsAvailable() {
			available = append(available, scannerType)
		}
	}
	return available
}

func (sm *ScannerManager) types() []string {
	types := make([]string, 0, len(sm.scanners))
	for t := range sm.scanners {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
