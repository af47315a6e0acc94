// internal/discovery/serial/scanner.go
package serial

import (
	"context"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"

	"stone-hmi-service/internal/discovery"
	"stone-hmi-service/internal/model"
	"stone-hmi-service/internal/protocol"
)

// Config for the serial scanner
type Config struct {
	BaudRates    []int         `json:"baud_rates"`
	PortPatterns []string      `json:"port_patterns"`
	Timeout      time.Duration `json:"timeout"`
	HeaderHigh   byte          `json:"header_high"`
	HeaderLow    byte          `json:"header_low"`
}

// DefaultConfig probes the common Stone baud rates with the default header
func DefaultConfig() *Config {
	return &Config{
		BaudRates:    []int{115200, 9600, 19200, 38400, 57600},
		PortPatterns: defaultPortPatterns(),
		Timeout:      100 * time.Millisecond,
		HeaderHigh:   0xA5,
		HeaderLow:    0x5A,
	}
}

// Scanner probes serial ports for a display
type Scanner struct {
	config    *Config
	logger    *zap.Logger
	listPorts func() ([]protocol.SerialPortInfo, error)
	dial      func(cfg *protocol.SerialConfig) protocol.Connection
}

var _ discovery.Scanner = (*Scanner)(nil)

// NewScanner creates a new serial scanner; a nil config uses DefaultConfig
func NewScanner(logger *zap.Logger, config *Config) *Scanner {
	if config == nil {
		config = DefaultConfig()
	}

	return &Scanner{
		config:    config,
		logger:    logger.With(zap.String("scanner", "serial")),
		listPorts: protocol.ListSerialPorts,
		dial: func(cfg *protocol.SerialConfig) protocol.Connection {
			return protocol.NewSerialConnection(cfg, logger)
		},
	}
}

func (s *Scanner) GetScannerType() string { return "serial" }

func (s *Scanner) IsAvailable() bool { return true }

// Scan tries each matching port at each baud rate and stops at the first
// rate a display answers on. Ports in use by another process fail to open
// and are skipped.
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredDisplay, error) {
	ports, err := s.listPorts()
	if err != nil {
		return nil, err
	}

	probe := discovery.ProbeConfig{
		HeaderHigh: s.config.HeaderHigh,
		HeaderLow:  s.config.HeaderLow,
		Timeout:    s.config.Timeout,
	}

	discovered := []*discovery.DiscoveredDisplay{}
	for _, port := range ports {
		if !s.matches(port.Name) {
			continue
		}

		for _, baud := range s.config.BaudRates {
			if err := ctx.Err(); err != nil {
				return discovered, err
			}

			conn := s.dial(&protocol.SerialConfig{
				Port:        port.Name,
				BaudRate:    baud,
				DataBits:    8,
				StopBits:    1,
				Parity:      "none",
				ReadTimeout: 20 * time.Millisecond,
			})
			version, rtt, err := discovery.Probe(ctx, conn, probe)
			if err != nil {
				s.logger.Debug("No display on port",
					zap.String("port", port.Name),
					zap.Int("baud_rate", baud),
					zap.Error(err),
				)
				continue
			}

			s.logger.Info("Display found",
				zap.String("port", port.Name),
				zap.Int("baud_rate", baud),
				zap.Uint8("firmware_version", version),
			)
			discovered = append(discovered, &discovery.DiscoveredDisplay{
				ConnectionType: model.ConnectionTypeSerial,
				ConnectionInfo: map[string]interface{}{
					"port":      port.Name,
					"baud_rate": baud,
				},
				FirmwareVersion: int(version),
				ResponseTimeMs:  rtt.Milliseconds(),
			})
			break
		}
	}

	return discovered, nil
}

func (s *Scanner) matches(port string) bool {
	if len(s.config.PortPatterns) == 0 {
		return true
	}
	for _, pattern := range s.config.PortPatterns {
		if ok, _ := filepath.Match(pattern, port); ok {
			return true
		}
	}
	return false
}

func defaultPortPatterns() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"COM*"}
	case "darwin":
		return []string{"/dev/cu.usbserial*", "/dev/cu.usbmodem*", "/dev/cu.SLAB*", "/dev/cu.wchusbserial*"}
	default:
		return []string{"/dev/ttyUSB*", "/dev/ttyACM*", "/dev/ttyS*", "/dev/ttyAMA*"}
	}
}
