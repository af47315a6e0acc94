package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stone-hmi-service/internal/displaytest"
	"stone-hmi-service/internal/driver/stone"
	"stone-hmi-service/internal/model"
)

type stubScanner struct {
	kind      string
	available bool
	found     []*DiscoveredDisplay
	err       error
}

func (s *stubScanner) Scan(context.Context) ([]*DiscoveredDisplay, error) { return s.found, s.err }
func (s *stubScanner) GetScannerType() string                             { return s.kind }
func (s *stubScanner) IsAvailable() bool                                  { return s.available }

func TestScannerManager(t *testing.T) {
	sm := NewScannerManager(zap.NewNop())
	sm.RegisterScanner(&stubScanner{kind: "serial", available: true, found: []*DiscoveredDisplay{{ConnectionType: model.ConnectionTypeSerial}}})
	sm.RegisterScanner(&stubScanner{kind: "tcp", available: true, err: errors.New("unreachable")})
	sm.RegisterScanner(&stubScanner{kind: "usb"})

	found, err := sm.ScanAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, found, 1)

	assert.Equal(t, []string{"serial", "tcp"}, sm.GetAvailableScanners())

	_, err = sm.ScanByType(context.Background(), "usb")
	assert.ErrorContains(t, err, "not available")
	_, err = sm.ScanByType(context.Background(), "bluetooth")
	assert.ErrorContains(t, err, "not found")
}

func TestProbe(t *testing.T) {
	cfg := ProbeConfig{HeaderHigh: 0xA5, HeaderLow: 0x5A, Timeout: 5 * time.Millisecond}

	sim := displaytest.NewSim()
	sim.SetRegister(0x00, 0x21)
	sim.Inject(0xFF, 0xFF)

	version, _, err := Probe(context.Background(), sim, cfg)
	require.NoError(t, err)
	assert.Equal(t, byte(0x21), version)
	assert.False(t, sim.IsOpen())

	sim.SetSilent(true)
	_, _, err = Probe(context.Background(), sim, cfg)
	assert.ErrorIs(t, err, stone.ErrTimeout)
}
