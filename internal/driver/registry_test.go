package driver

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stone-hmi-service/internal/driver/stone"
)

type nullStream struct{ bytes.Buffer }

func (s *nullStream) Buffered() int { return s.Len() }

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	RegisterDefaultDrivers(r, zap.NewNop())

	assert.True(t, r.IsSupported("stone_stvi"))
	assert.True(t, r.IsSupported("unknown-panel"))
	assert.Len(t, r.ListModels(), 4)
	assert.Equal(t, "*", r.ListModels()[0].Model)
}

func TestRegistryCreateDriverAppliesHeader(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Register(ModelProfile{Model: "custom", HeaderHigh: 0xAA, HeaderLow: 0xBB})

	d, err := r.CreateDriver("CUSTOM", &nullStream{})
	require.NoError(t, err)
	hi, lo := d.Header()
	assert.Equal(t, byte(0xAA), hi)
	assert.Equal(t, byte(0xBB), lo)

	d, err = r.CreateDriver("custom", &nullStream{}, stone.WithHeader(0x11, 0x22))
	require.NoError(t, err)
	hi, lo = d.Header()
	assert.Equal(t, byte(0x11), hi)
	assert.Equal(t, byte(0x22), lo)
}

func TestRegistryResolveHeader(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Register(ModelProfile{Model: "custom", HeaderHigh: 0xAA, HeaderLow: 0xBB})

	tests := []struct {
		name      string
		model     string
		high, low int
		wantHi    byte
		wantLo    byte
	}{
		{"profile", "custom", -1, -1, 0xAA, 0xBB},
		{"high overridden", "custom", 0xA5, -1, 0xA5, 0xBB},
		{"both overridden", "custom", 0x11, 0x22, 0x11, 0x22},
		{"zero is a value", "custom", -1, 0, 0xAA, 0x00},
		{"unknown model", "nothing", -1, -1, stone.DefaultHeaderHigh, stone.DefaultHeaderLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hi, lo := r.ResolveHeader(tt.model, tt.high, tt.low)
			assert.Equal(t, tt.wantHi, hi)
			assert.Equal(t, tt.wantLo, lo)
		})
	}
}

func TestRegistryUnknownModel(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	_, err := r.CreateDriver("nothing", &nullStream{})
	assert.Error(t, err)
	assert.False(t, r.IsSupported("nothing"))
}
