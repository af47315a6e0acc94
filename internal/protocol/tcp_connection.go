// internal/protocol/tcp_connection.go
package protocol

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"stone-hmi-service/internal/model"
)

// TCPConnection implements Connection for serial-to-Ethernet bridges that
// expose the display's UART as a raw TCP socket
type TCPConnection struct {
	config *TCPConfig
	conn   net.Conn
	input  *inputBuffer
	logger *zap.Logger
	mutex  sync.RWMutex
	isOpen bool
	stats  statsRecorder
}

// NewTCPConnection creates a new TCP connection
func NewTCPConnection(config *TCPConfig, logger *zap.Logger) *TCPConnection {
	return &TCPConnection{
		config: config,
		logger: logger.With(
			zap.String("protocol", "tcp"),
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
		),
	}
}

// Open dials the bridge and starts buffering input
func (tc *TCPConnection) Open(ctx context.Context) error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tc.isOpen {
		return nil
	}

	tc.logger.Info("Opening TCP connection",
		zap.String("host", tc.config.Host),
		zap.Int("port", tc.config.Port),
		zap.Bool("ssl", tc.config.SSL),
	)

	dialer := &net.Dialer{
		Timeout:   tc.config.Timeout,
		KeepAlive: 30 * time.Second,
	}
	if !tc.config.KeepAlive {
		dialer.KeepAlive = -1
	}

	address := net.JoinHostPort(tc.config.Host, strconv.Itoa(tc.config.Port))

	var conn net.Conn
	var err error

	if tc.config.SSL {
		tlsDialer := &tls.Dialer{
			NetDialer: dialer,
			Config:    &tls.Config{ServerName: tc.config.Host},
		}
		conn, err = tlsDialer.DialContext(ctx, "tcp", address)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", address)
	}

	if err != nil {
		tc.logger.Error("Failed to open TCP connection", zap.Error(err))
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		// frames are tiny; do not let Nagle hold back a request
		tcpConn.SetNoDelay(true)
	}

	tc.conn = conn
	tc.input = newInputBuffer()
	tc.isOpen = true
	tc.stats.setConnected(true)
	go tc.input.pump(tcpReader{conn}, &tc.stats, tc.logger)

	tc.logger.Info("TCP connection opened successfully")
	return nil
}

// Close closes the TCP connection
func (tc *TCPConnection) Close() error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if !tc.isOpen || tc.conn == nil {
		return nil
	}

	err := tc.conn.Close()
	if err == nil {
		<-tc.input.done
	}

	tc.conn = nil
	tc.isOpen = false
	tc.stats.setConnected(false)

	if err != nil {
		tc.logger.Error("Failed to close TCP connection", zap.Error(err))
		return fmt.Errorf("failed to close TCP connection: %w", err)
	}

	tc.logger.Info("TCP connection closed successfully")
	return nil
}

// IsOpen returns whether the connection is open and the peer has not hung up
func (tc *TCPConnection) IsOpen() bool {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.isOpen && tc.conn != nil && tc.input.Err() == nil
}

func (tc *TCPConnection) Buffered() int {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	if tc.input == nil {
		return 0
	}
	return tc.input.Buffered()
}

func (tc *TCPConnection) ReadByte() (byte, error) {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	if tc.input == nil {
		return 0, ErrNotOpen
	}
	return tc.input.ReadByte()
}

func (tc *TCPConnection) WriteByte(b byte) error {
	_, err := tc.Write([]byte{b})
	return err
}

// Write writes data to the TCP connection
func (tc *TCPConnection) Write(data []byte) (int, error) {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()

	if !tc.isOpen || tc.conn == nil {
		return 0, ErrNotOpen
	}

	if tc.config.WriteTimeout > 0 {
		tc.conn.SetWriteDeadline(time.Now().Add(tc.config.WriteTimeout))
	}

	startTime := time.Now()
	n, err := tc.conn.Write(data)
	if err != nil {
		tc.stats.recordError()
		tc.logger.Error("TCP write failed", zap.Error(err))
		return n, fmt.Errorf("failed to write to TCP connection: %w", err)
	}

	tc.stats.recordWrite(n, time.Since(startTime))
	tc.logger.Debug("TCP write completed", zap.Int("bytes", n))
	return n, nil
}

// Type returns the connection type
func (tc *TCPConnection) Type() model.ConnectionType {
	return model.ConnectionTypeTCP
}

// Stats returns a snapshot of link statistics
func (tc *TCPConnection) Stats() ProtocolStats {
	return tc.stats.snapshot()
}

type tcpReader struct {
	conn net.Conn
}

func (r tcpReader) Read(p []byte) (int, error) {
	n, err := r.conn.Read(p)
	if errors.Is(err, net.ErrClosed) {
		return n, errPumpStopped
	}
	return n, err
}
