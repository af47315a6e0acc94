package stone

import (
	"time"

	"go.uber.org/zap"
)

// Observer is notified about every frame exchange. It is used by the metrics
// layer and must not block.
type Observer interface {
	ObserveRequest(cmd byte)
	ObserveResponse(cmd byte, latency time.Duration, err error)
	ObserveEvent(cmd byte, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(byte)                        {}
func (nopObserver) ObserveResponse(byte, time.Duration, error) {}
func (nopObserver) ObserveEvent(byte, error)                   {}

// Config holds the session state of a display handle.
type Config struct {
	// HeaderHigh and HeaderLow identify this display's frames on a shared link
	HeaderHigh byte
	HeaderLow  byte

	// Timeout is the per-byte wait budget for reads
	Timeout time.Duration

	// PollInterval is how long the reader sleeps between availability checks
	PollInterval time.Duration

	Logger   *zap.Logger
	Observer Observer
}

func defaultConfig() Config {
	return Config{
		HeaderHigh:   DefaultHeaderHigh,
		HeaderLow:    DefaultHeaderLow,
		Timeout:      DefaultTimeout,
		PollInterval: DefaultPollInterval,
		Logger:       zap.NewNop(),
		Observer:     nopObserver{},
	}
}

// Option is a functional option for configuring a Display.
type Option func(*Config)

// WithHeader sets the two frame identification bytes.
//
// Example:
//
//	d := stone.New(port, stone.WithHeader(0xA5, 0x5B))
func WithHeader(hi, lo byte) Option {
	return func(c *Config) {
		c.HeaderHigh = hi
		c.HeaderLow = lo
	}
}

// WithTimeout sets the per-byte read timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithPollInterval sets the sleep between input availability checks.
// Zero spins without sleeping.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Config) {
		if interval >= 0 {
			c.PollInterval = interval
		}
	}
}

// WithLogger sets a logger for frame tracing.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithObserver attaches a frame observer, typically Prometheus metrics.
func WithObserver(o Observer) Option {
	return func(c *Config) {
		if o != nil {
			c.Observer = o
		}
	}
}
