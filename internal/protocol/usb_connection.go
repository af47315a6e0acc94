// internal/protocol/usb_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"stone-hmi-service/internal/model"
)

// USBConnection implements Connection for displays exposing a vendor bulk
// interface instead of a CDC serial port
type USBConnection struct {
	config    *USBConfig
	usbCtx    *gousb.Context
	device    *gousb.Device
	usbConfig *gousb.Config
	intf      *gousb.Interface
	outEndpt  *gousb.OutEndpoint
	inEndpt   *gousb.InEndpoint
	input     *inputBuffer
	stopPump  context.CancelFunc
	logger    *zap.Logger
	mutex     sync.RWMutex
	isOpen    bool
	stats     statsRecorder
}

// NewUSBConnection creates a new USB connection
func NewUSBConnection(config *USBConfig, logger *zap.Logger) *USBConnection {
	return &USBConnection{
		config: config,
		logger: logger.With(
			zap.String("protocol", "usb"),
			zap.String("vendor_id", config.VendorID),
			zap.String("product_id", config.ProductID),
		),
	}
}

// Open claims the bulk interface and starts buffering input
func (uc *USBConnection) Open(ctx context.Context) error {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()

	if uc.isOpen {
		return nil
	}

	uc.logger.Info("Opening USB connection",
		zap.String("vendor_id", uc.config.VendorID),
		zap.String("product_id", uc.config.ProductID),
		zap.Int("interface", uc.config.Interface),
	)

	vendorID, err := ParseHexID(uc.config.VendorID)
	if err != nil {
		return fmt.Errorf("invalid vendor ID: %w", err)
	}
	productID, err := ParseHexID(uc.config.ProductID)
	if err != nil {
		return fmt.Errorf("invalid product ID: %w", err)
	}

	uc.usbCtx = gousb.NewContext()

	device, err := uc.findAndOpenDevice(vendorID, productID)
	if err != nil {
		uc.release()
		return fmt.Errorf("failed to find USB device: %w", err)
	}
	uc.device = device
	device.SetAutoDetach(true)

	cfgNum, err := device.ActiveConfigNum()
	if err != nil {
		uc.release()
		return fmt.Errorf("failed to read active configuration: %w", err)
	}
	if uc.usbConfig, err = device.Config(cfgNum); err != nil {
		uc.release()
		return fmt.Errorf("failed to select configuration %d: %w", cfgNum, err)
	}
	if uc.intf, err = uc.usbConfig.Interface(uc.config.Interface, 0); err != nil {
		uc.release()
		return fmt.Errorf("failed to claim interface %d: %w", uc.config.Interface, err)
	}
	if uc.outEndpt, err = uc.intf.OutEndpoint(uc.config.OutEndpoint); err != nil {
		uc.release()
		return fmt.Errorf("failed to get out endpoint: %w", err)
	}
	// The display always answers, so an IN endpoint is mandatory here
	if uc.inEndpt, err = uc.intf.InEndpoint(uc.config.InEndpoint); err != nil {
		uc.release()
		return fmt.Errorf("failed to get in endpoint: %w", err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	uc.startPump(&usbReader{ep: uc.inEndpt, ctx: pumpCtx}, cancel)

	uc.logger.Info("USB connection opened successfully")
	return nil
}

// startPump begins buffering r; stop must make r return. Caller holds the mutex.
func (uc *USBConnection) startPump(r io.Reader, stop context.CancelFunc) {
	uc.stopPump = stop
	uc.input = newInputBuffer()
	uc.isOpen = true
	uc.stats.setConnected(true)
	go uc.input.pump(r, &uc.stats, uc.logger)
}

// release frees whatever Open managed to acquire. Caller holds the mutex.
func (uc *USBConnection) release() {
	if uc.intf != nil {
		uc.intf.Close()
		uc.intf = nil
	}
	if uc.usbConfig != nil {
		uc.usbConfig.Close()
		uc.usbConfig = nil
	}
	if uc.device != nil {
		uc.device.Close()
		uc.device = nil
	}
	if uc.usbCtx != nil {
		uc.usbCtx.Close()
		uc.usbCtx = nil
	}
	uc.outEndpt = nil
	uc.inEndpt = nil
}

// Close closes the USB connection
func (uc *USBConnection) Close() error {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()

	if !uc.isOpen {
		return nil
	}

	uc.stopPump()
	<-uc.input.done
	uc.release()
	uc.isOpen = false
	uc.stats.setConnected(false)

	uc.logger.Info("USB connection closed successfully")
	return nil
}

// IsOpen returns whether the interface is claimed and the IN endpoint still
// answers. Unplugging the display fails the pump and turns this false.
func (uc *USBConnection) IsOpen() bool {
	uc.mutex.RLock()
	defer uc.mutex.RUnlock()
	return uc.isOpen && uc.outEndpt != nil && uc.input.Err() == nil
}

func (uc *USBConnection) Buffered() int {
	uc.mutex.RLock()
	defer uc.mutex.RUnlock()
	if uc.input == nil {
		return 0
	}
	return uc.input.Buffered()
}

func (uc *USBConnection) ReadByte() (byte, error) {
	uc.mutex.RLock()
	defer uc.mutex.RUnlock()
	if uc.input == nil {
		return 0, ErrNotOpen
	}
	return uc.input.ReadByte()
}

func (uc *USBConnection) WriteByte(b byte) error {
	_, err := uc.Write([]byte{b})
	return err
}

// Write writes data to the bulk OUT endpoint
func (uc *USBConnection) Write(data []byte) (int, error) {
	uc.mutex.RLock()
	defer uc.mutex.RUnlock()

	if !uc.isOpen || uc.outEndpt == nil {
		return 0, ErrNotOpen
	}

	ctx := context.Background()
	if uc.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.config.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	n, err := uc.outEndpt.WriteContext(ctx, data)
	if err != nil {
		uc.stats.recordError()
		uc.logger.Error("USB write failed", zap.Error(err))
		return n, fmt.Errorf("failed to write to USB device: %w", err)
	}

	if n != len(data) {
		uc.stats.recordError()
		return n, fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}

	uc.stats.recordWrite(n, time.Since(startTime))
	uc.logger.Debug("USB write completed", zap.Int("bytes", n))
	return n, nil
}

// Type returns the connection type
func (uc *USBConnection) Type() model.ConnectionType {
	return model.ConnectionTypeUSB
}

// Stats returns a snapshot of link statistics
func (uc *USBConnection) Stats() ProtocolStats {
	return uc.stats.snapshot()
}

// findAndOpenDevice opens the first device matching VID/PID and, when
// configured, the serial number
func (uc *USBConnection) findAndOpenDevice(vendorID, productID gousb.ID) (*gousb.Device, error) {
	devices, err := uc.usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == vendorID && desc.Product == productID
	})
	if err != nil && len(devices) == 0 {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}

	var match *gousb.Device
	for _, dev := range devices {
		if match == nil && uc.serialMatches(dev) {
			match = dev
			continue
		}
		dev.Close()
	}

	if match == nil {
		return nil, fmt.Errorf("USB device not found (VID: %04X, PID: %04X)", vendorID, productID)
	}
	if len(devices) > 1 {
		uc.logger.Warn("Multiple matching USB devices found, using first match",
			zap.Int("count", len(devices)))
	}
	return match, nil
}

func (uc *USBConnection) serialMatches(dev *gousb.Device) bool {
	if uc.config.SerialNumber == "" {
		return true
	}
	sn, err := dev.SerialNumber()
	if err != nil {
		uc.logger.Debug("Failed to read USB serial number", zap.Error(err))
		return false
	}
	return sn == uc.config.SerialNumber
}

// ParseHexID parses a USB ID written as 0x1234 or 1234
func ParseHexID(hexStr string) (gousb.ID, error) {
	hexStr = strings.TrimPrefix(strings.ToLower(hexStr), "0x")
	id, err := strconv.ParseUint(hexStr, 16, 16)
	if err != nil {
		return 0, err
	}
	return gousb.ID(id), nil
}

type usbReader struct {
	ep  *gousb.InEndpoint
	ctx context.Context
}

func (r *usbReader) Read(p []byte) (int, error) {
	n, err := r.ep.ReadContext(r.ctx, p)
	if err != nil && r.ctx.Err() != nil {
		return n, errPumpStopped
	}
	if errors.Is(err, gousb.TransferTimedOut) {
		return n, nil
	}
	return n, err
}
