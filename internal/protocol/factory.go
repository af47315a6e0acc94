// internal/protocol/factory.go
package protocol

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"stone-hmi-service/internal/config"
	"stone-hmi-service/internal/model"
)

var validBaudRates = []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600}

// ParseConnectionType maps a config string to a ConnectionType
func ParseConnectionType(s string) (model.ConnectionType, error) {
	switch ct := model.ConnectionType(strings.ToUpper(s)); ct {
	case model.ConnectionTypeSerial, model.ConnectionTypeTCP, model.ConnectionTypeUSB:
		return ct, nil
	default:
		return "", fmt.Errorf("unsupported connection type: %s", s)
	}
}

// CreateConnection creates a display link from configuration
func CreateConnection(cfg config.ConnectionConfig, logger *zap.Logger) (Connection, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	connectionType, _ := ParseConnectionType(cfg.Type)

	switch connectionType {
	case model.ConnectionTypeSerial:
		return createSerialConnection(cfg.Serial, logger), nil
	case model.ConnectionTypeUSB:
		return createUSBConnection(cfg.USB, logger), nil
	default:
		return createTCPConnection(cfg.TCP, logger), nil
	}
}

// createSerialConnection creates a serial connection
func createSerialConnection(cfg config.SerialPortConfig, logger *zap.Logger) *SerialConnection {
	serialConfig := &SerialConfig{
		Port:        cfg.Port,
		BaudRate:    cfg.BaudRate,
		DataBits:    cfg.DataBits,
		StopBits:    cfg.StopBits,
		Parity:      cfg.Parity,
		ReadTimeout: cfg.ReadTimeout,
	}
	if serialConfig.BaudRate == 0 {
		serialConfig.BaudRate = 115200
	}
	if serialConfig.DataBits == 0 {
		serialConfig.DataBits = 8
	}
	if serialConfig.StopBits == 0 {
		serialConfig.StopBits = 1
	}
	if serialConfig.ReadTimeout <= 0 {
		serialConfig.ReadTimeout = 50 * time.Millisecond
	}

	logger.Info("Creating serial connection",
		zap.String("port", serialConfig.Port),
		zap.Int("baud_rate", serialConfig.BaudRate),
	)

	return NewSerialConnection(serialConfig, logger)
}

// createUSBConnection creates a USB connection
func createUSBConnection(cfg config.USBPortConfig, logger *zap.Logger) *USBConnection {
	usbConfig := &USBConfig{
		VendorID:     cfg.VendorID,
		ProductID:    cfg.ProductID,
		Interface:    cfg.Interface,
		InEndpoint:   cfg.InEndpoint,
		OutEndpoint:  cfg.OutEndpoint,
		SerialNumber: cfg.SerialNumber,
		Timeout:      cfg.Timeout,
	}
	if usbConfig.InEndpoint == 0 {
		usbConfig.InEndpoint = 1
	}
	if usbConfig.OutEndpoint == 0 {
		usbConfig.OutEndpoint = 1
	}

	logger.Info("Creating USB connection",
		zap.String("vendor_id", usbConfig.VendorID),
		zap.String("product_id", usbConfig.ProductID),
		zap.Int("interface", usbConfig.Interface),
	)

	return NewUSBConnection(usbConfig, logger)
}

// createTCPConnection creates a TCP connection
func createTCPConnection(cfg config.TCPPortConfig, logger *zap.Logger) *TCPConnection {
	tcpConfig := &TCPConfig{
		Host:         cfg.Host,
		Port:         cfg.Port,
		SSL:          cfg.SSL,
		KeepAlive:    cfg.KeepAlive,
		Timeout:      cfg.ConnectTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if tcpConfig.Timeout <= 0 {
		tcpConfig.Timeout = 10 * time.Second
	}

	logger.Info("Creating TCP connection",
		zap.String("host", tcpConfig.Host),
		zap.Int("port", tcpConfig.Port),
		zap.Bool("ssl", tcpConfig.SSL),
	)

	return NewTCPConnection(tcpConfig, logger)
}

// ValidateConfig validates configuration for the selected connection type
func ValidateConfig(cfg config.ConnectionConfig) error {
	connectionType, err := ParseConnectionType(cfg.Type)
	if err != nil {
		return err
	}

	switch connectionType {
	case model.ConnectionTypeSerial:
		return validateSerialConfig(cfg.Serial)
	case model.ConnectionTypeUSB:
		return validateUSBConfig(cfg.USB)
	default:
		return validateTCPConfig(cfg.TCP)
	}
}

// validateSerialConfig validates serial configuration
func validateSerialConfig(cfg config.SerialPortConfig) error {
	if cfg.Port == "" {
		return fmt.Errorf("serial port is required")
	}

	if cfg.BaudRate != 0 {
		valid := false
		for _, rate := range validBaudRates {
			if cfg.BaudRate == rate {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid baud rate: %d", cfg.BaudRate)
		}
	}

	switch cfg.Parity {
	case "", "none", "odd", "even", "mark", "space":
	default:
		return fmt.Errorf("invalid parity: %s", cfg.Parity)
	}

	return nil
}

// validateUSBConfig validates USB configuration
func validateUSBConfig(cfg config.USBPortConfig) error {
	if cfg.VendorID == "" {
		return fmt.Errorf("USB vendor_id is required")
	}
	if _, err := ParseHexID(cfg.VendorID); err != nil {
		return fmt.Errorf("invalid USB vendor_id %q: %w", cfg.VendorID, err)
	}

	if cfg.ProductID == "" {
		return fmt.Errorf("USB product_id is required")
	}
	if _, err := ParseHexID(cfg.ProductID); err != nil {
		return fmt.Errorf("invalid USB product_id %q: %w", cfg.ProductID, err)
	}

	return nil
}

// validateTCPConfig validates TCP configuration
func validateTCPConfig(cfg config.TCPPortConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("TCP host is required")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", cfg.Port)
	}
	return nil
}
