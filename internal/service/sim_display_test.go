package service

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"stone-hmi-service/internal/config"
	"stone-hmi-service/internal/displaytest"
	internalDriver "stone-hmi-service/internal/driver"
	"stone-hmi-service/internal/protocol"
	"stone-hmi-service/pkg/driver"
)

type recordingEvents struct {
	mu           sync.Mutex
	connected    int
	disconnected []string
	errors       []error
	inputs       []*driver.InputEvent
}

func (r *recordingEvents) OnDeviceConnected(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected++
}

func (r *recordingEvents) OnDeviceDisconnected(_ string, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = append(r.disconnected, reason)
}

func (r *recordingEvents) OnDeviceError(_ string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

func (r *recordingEvents) OnDisplayEvent(_ string, ev *driver.InputEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = append(r.inputs, ev)
}

func testConfig() *config.Config {
	return &config.Config{
		Display: config.DisplayConfig{
			DeviceID:          "hmi-test",
			Model:             "STONE_STVI",
			HeaderHigh:        0xA5,
			HeaderLow:         0x5A,
			Timeout:           5 * time.Millisecond,
			EventPollInterval: time.Millisecond,
			MaxEventWords:     8,
		},
		Connection: config.ConnectionConfig{Type: "serial"},
	}
}

func newTestService(t *testing.T, sim *displaytest.Sim) (*DisplayService, *recordingEvents) {
	t.Helper()
	registry := internalDriver.NewRegistry(zap.NewNop())
	internalDriver.RegisterDefaultDrivers(registry, zap.NewNop())

	events := &recordingEvents{}
	svc := NewDisplayService(testConfig(), registry,
		func() (protocol.Connection, error) { return sim, nil },
		nil, events, zap.NewNop())
	return svc, events
}
