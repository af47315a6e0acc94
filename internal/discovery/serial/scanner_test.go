package serial

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stone-hmi-service/internal/displaytest"
	"stone-hmi-service/internal/model"
	"stone-hmi-service/internal/protocol"
)

func newTestScanner(ports []string, answer map[string]int) (*Scanner, *[]string) {
	s := NewScanner(zap.NewNop(), &Config{
		BaudRates:    []int{9600, 115200},
		PortPatterns: []string{"/dev/ttyUSB*"},
		Timeout:      5 * time.Millisecond,
		HeaderHigh:   0xA5,
		HeaderLow:    0x5A,
	})

	var tried []string
	s.listPorts = func() ([]protocol.SerialPortInfo, error) {
		infos := make([]protocol.SerialPortInfo, len(ports))
		for i, p := range ports {
			infos[i] = protocol.SerialPortInfo{Name: p}
		}
		return infos, nil
	}
	s.dial = func(cfg *protocol.SerialConfig) protocol.Connection {
		tried = append(tried, cfg.Port)
		sim := displaytest.NewSim()
		if baud, ok := answer[cfg.Port]; ok && baud == cfg.BaudRate {
			sim.SetRegister(0x00, 0x17)
		} else {
			sim.SetSilent(true)
		}
		return sim
	}
	return s, &tried
}

func TestScanFindsAnsweringPort(t *testing.T) {
	s, tried := newTestScanner(
		[]string{"/dev/ttyS0", "/dev/ttyUSB0", "/dev/ttyUSB1"},
		map[string]int{"/dev/ttyUSB1": 115200},
	)

	found, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 1)

	assert.Equal(t, model.ConnectionTypeSerial, found[0].ConnectionType)
	assert.Equal(t, "/dev/ttyUSB1", found[0].ConnectionInfo["port"])
	assert.Equal(t, 115200, found[0].ConnectionInfo["baud_rate"])
	assert.Equal(t, 0x17, found[0].FirmwareVersion)

	// ttyS0 is filtered out; each USB port is tried at both rates
	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyUSB1"}, *tried)
}

func TestScanSkipsPortsThatFailToOpen(t *testing.T) {
	s, _ := newTestScanner([]string{"/dev/ttyUSB0"}, nil)
	s.dial = func(*protocol.SerialConfig) protocol.Connection {
		sim := displaytest.NewSim()
		sim.SetOpenError(errors.New("resource busy"))
		return sim
	}

	found, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestScanHonoursContext(t *testing.T) {
	s, tried := newTestScanner([]string{"/dev/ttyUSB0"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, *tried)
}

func TestMatches(t *testing.T) {
	s := NewScanner(zap.NewNop(), &Config{})
	assert.True(t, s.matches("/dev/anything"))

	s.config.PortPatterns = []string{"COM*"}
	assert.True(t, s.matches("COM3"))
	assert.False(t, s.matches("/dev/ttyUSB0"))
}
