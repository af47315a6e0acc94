package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stone-hmi-service/internal/displaytest"
	internalDriver "stone-hmi-service/internal/driver"
	"stone-hmi-service/internal/driver/stone"
	"stone-hmi-service/internal/model"
)

func connectedService(t *testing.T) (*DisplayService, *displaytest.Sim, *recordingEvents) {
	t.Helper()
	sim := displaytest.NewSim()
	sim.SetRegister(stone.RegVersion, 0x17)
	svc, events := newTestService(t, sim)
	require.NoError(t, svc.Connect(context.Background()))
	return svc, sim, events
}

func TestConnectReadsFirmware(t *testing.T) {
	svc, _, events := connectedService(t)

	info, err := svc.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.DisplayStatusOnline, info.Status)
	assert.Equal(t, model.ConnectionTypeSerial, info.ConnectionType)
	require.NotNil(t, info.FirmwareVersion)
	assert.Equal(t, 0x17, *info.FirmwareVersion)
	assert.Equal(t, byte(0xA5), info.HeaderHigh)
	assert.Equal(t, 1, events.connected)
	assert.True(t, svc.IsConnected())

	// second connect is a no-op
	require.NoError(t, svc.Connect(context.Background()))
	assert.Equal(t, 1, events.connected)
}

func TestHeaderComesFromModelProfile(t *testing.T) {
	registry := internalDriver.NewRegistry(zap.NewNop())
	registry.Register(internalDriver.ModelProfile{Model: "STONE_STVI", HeaderHigh: 0xAA, HeaderLow: 0xBB})

	cfg := testConfig()
	cfg.Display.HeaderHigh, cfg.Display.HeaderLow = -1, -1
	svc := NewDisplayService(cfg, registry, nil, nil, nil, zap.NewNop())

	info, err := svc.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(0xAA), info.HeaderHigh)
	assert.Equal(t, byte(0xBB), info.HeaderLow)

	cfg.Display.HeaderLow = 0x5A
	svc = NewDisplayService(cfg, registry, nil, nil, nil, zap.NewNop())
	info, err = svc.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(0xAA), info.HeaderHigh)
	assert.Equal(t, byte(0x5A), info.HeaderLow)
}

func TestConnectOpenFailure(t *testing.T) {
	sim := displaytest.NewSim()
	sim.SetOpenError(errors.New("no such port"))
	svc, events := newTestService(t, sim)

	err := svc.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such port")

	info, err := svc.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.DisplayStatusError, info.Status)
	require.NotNil(t, info.LastError)
	assert.Len(t, events.errors, 1)
}

func TestOperationsRequireConnection(t *testing.T) {
	svc, _ := newTestService(t, displaytest.NewSim())

	_, err := svc.ReadRegister(context.Background(), 0x00, 1)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, err, stone.ErrNotReady)
	assert.Empty(t, svc.RecentOperations(0))
}

func TestRegisterRoundTrip(t *testing.T) {
	svc, _, _ := connectedService(t)
	ctx := WithRequestID(context.Background(), "req-1")

	require.NoError(t, svc.WriteRegister(ctx, 0x40, []byte{1, 2, 3}))
	data, err := svc.ReadRegister(ctx, 0x40, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	ops := svc.RecentOperations(0)
	require.Len(t, ops, 2)
	assert.Equal(t, model.OperationTypeRegisterRead, ops[0].OperationType)
	assert.Equal(t, model.OperationTypeRegisterWrite, ops[1].OperationType)
	assert.Equal(t, "req-1", ops[0].RequestID)
	assert.True(t, ops[0].IsSuccessful())
}

func TestVariableRoundTrip(t *testing.T) {
	svc, sim, _ := connectedService(t)
	ctx := context.Background()

	require.NoError(t, svc.WriteVariable(ctx, 0x1000, []uint16{0x1234, 0xBEEF}))
	assert.Equal(t, uint16(0xBEEF), sim.Variable(0x1001))

	words, err := svc.ReadVariable(ctx, 0x1000, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x1234, 0xBEEF}, words)
}

func TestRTCRoundTrip(t *testing.T) {
	svc, _, _ := connectedService(t)
	ctx := context.Background()

	want := stone.NewDateTime(2025, 6, 30, 1, 12, 34, 56)
	require.NoError(t, svc.SetRTC(ctx, want, false))

	got, err := svc.GetRTC(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	resp := FromDateTime(got)
	assert.Equal(t, 2025, resp.Year)
	assert.Equal(t, 56, resp.Second)
	assert.Equal(t, got.String(), resp.Readable)
}

func TestTimeoutIsRecorded(t *testing.T) {
	svc, sim, _ := connectedService(t)
	sim.SetSilent(true)

	_, err := svc.ReadRegister(context.Background(), 0x00, 1)
	require.ErrorIs(t, err, stone.ErrTimeout)

	ops := svc.RecentOperations(1)
	require.Len(t, ops, 1)
	assert.Equal(t, model.OperationStatusTimeout, ops[0].Status)
	require.NotNil(t, ops[0].ErrorMessage)

	h := svc.Health()
	assert.Equal(t, int64(1), h.TotalOperations)
	assert.Equal(t, int64(1), h.TimeoutCount)
	assert.Equal(t, 0, h.HealthScore)

	st, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.HasError)
	assert.True(t, st.IsReady)
}

func TestHelpersGoThroughService(t *testing.T) {
	svc, sim, _ := connectedService(t)
	ctx := context.Background()

	require.NoError(t, svc.SwitchPage(ctx, 0x0102))
	page, err := svc.CurrentPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0102), page)

	require.NoError(t, svc.SetBacklight(ctx, 0x20))
	assert.Equal(t, byte(0x20), sim.Register(stone.RegBacklight))

	require.NoError(t, svc.Beep(ctx, 100*time.Millisecond))
	assert.Equal(t, byte(10), sim.Register(stone.RegBuzzer))

	require.NoError(t, svc.SetTouchEnabled(ctx, false))
	assert.Equal(t, byte(0x00), sim.Register(stone.RegTouchEnable))

	require.NoError(t, svc.ClearCurves(ctx, 2))
	assert.Equal(t, byte(0x58), sim.Register(stone.RegCurveClear))

	require.NoError(t, svc.ResetDisplay(ctx))
	assert.Equal(t, byte(0x5A), sim.Register(stone.RegReset))
	assert.Equal(t, byte(0xA5), sim.Register(stone.RegReset+1))

	require.NoError(t, svc.Ping(ctx))
	assert.Equal(t, int64(8), svc.Health().TotalOperations)
}

func TestSetTimeout(t *testing.T) {
	svc, _, _ := connectedService(t)
	ctx := context.Background()

	assert.Error(t, svc.SetTimeout(ctx, 0))
	require.NoError(t, svc.SetTimeout(ctx, 750*time.Millisecond))

	info, err := svc.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(750), info.TimeoutMs)
}

func TestDrain(t *testing.T) {
	svc, sim, _ := connectedService(t)
	sim.Inject(0x01, 0x02, 0x03)

	n, err := svc.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestLockHonoursContext(t *testing.T) {
	svc, _, _ := connectedService(t)

	svc.sem <- struct{}{}
	defer svc.unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := svc.ReadRegister(ctx, 0x00, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDisconnect(t *testing.T) {
	svc, sim, events := connectedService(t)

	require.NoError(t, svc.Disconnect(context.Background(), "shutdown"))
	assert.False(t, sim.IsOpen())
	assert.False(t, svc.IsConnected())
	assert.Equal(t, []string{"shutdown"}, events.disconnected)
	assert.Nil(t, svc.ConnectionStats())

	// disconnecting twice is harmless
	require.NoError(t, svc.Disconnect(context.Background(), "again"))
	assert.Len(t, events.disconnected, 1)
}
