package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stone-hmi-service/internal/driver/stone"
	"stone-hmi-service/internal/model"
)

func TestPollEventsCollectsFrames(t *testing.T) {
	svc, sim, _ := connectedService(t)
	sim.Inject(
		0x00, // line noise
		0xA5, 0x5A, 0x06, 0x83, 0x00, 0x10, 0x01, 0x00, 0x2A,
		0xA5, 0x5A, 0x08, 0x83, 0x00, 0x20, 0x02, 0x00, 0x01, 0x00, 0x02,
	)

	events := svc.PollEvents(context.Background())
	require.Len(t, events, 2)
	assert.Equal(t, uint16(0x0010), events[0].Address)
	assert.Equal(t, []uint16{0x2A}, events[0].Data)
	assert.Equal(t, byte(stone.CmdVariableRead), events[1].Command)
	assert.Equal(t, []uint16{1, 2}, events[1].Data)
	assert.False(t, events[1].Truncated)
}

func TestPollEventsReportsBadFrame(t *testing.T) {
	svc, sim, recorder := connectedService(t)
	sim.Inject(0xA5, 0x00)

	assert.Empty(t, svc.PollEvents(context.Background()))
	require.Len(t, recorder.errors, 1)
	assert.ErrorIs(t, recorder.errors[0], stone.ErrFrameMismatch)
}

func TestPollEventsDetectsLostLink(t *testing.T) {
	svc, sim, recorder := connectedService(t)
	require.NoError(t, sim.Close())

	assert.Empty(t, svc.PollEvents(context.Background()))
	assert.False(t, svc.IsConnected())
	assert.Equal(t, []string{ErrLinkLost.Error()}, recorder.disconnected)

	info, err := svc.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.DisplayStatusError, info.Status)
}

func TestStartEventPollingDeliversEvents(t *testing.T) {
	svc, sim, recorder := connectedService(t)
	sim.Inject(0xA5, 0x5A, 0x06, 0x83, 0x00, 0x10, 0x01, 0x00, 0x2A)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.StartEventPolling(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		recorder.mu.Lock()
		defer recorder.mu.Unlock()
		return len(recorder.inputs) == 1
	}, time.Second, time.Millisecond)

	cancel()
	<-done
}
