package hook

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// Callbacks for hook events. Every callback is optional; Manager checks for
// nil before calling.
type Callbacks struct {
	OnOpen  func(pid, tid uint32, fd int32, path string, ts uint64)
	OnRead  func(pid, tid uint32, fd int32, n uint64, ts uint64)
	OnWrite func(pid, tid uint32, fd int32, n uint64, ts uint64)
	OnClose func(pid, tid uint32, fd int32, ts uint64)
}

// Manager listens on a Unix DGRAM socket for hook events from the preloaded
// intercept shim. A pool of reader goroutines dispatches datagrams
// concurrently; DGRAM sockets guarantee each Read() returns one complete
// message, so concurrent readers never tear a message in half.
type Manager struct {
	socketPath string
	logger     *zap.Logger
	callbacks  Callbacks
	numWorkers int

	conn    *net.UnixConn
	control *ControlFile
	wg      sync.WaitGroup
	stopCh  chan struct{}
}

// NewManager creates a new hook manager.
func NewManager(socketPath string, callbacks Callbacks, logger *zap.Logger) *Manager {
	workers := runtime.GOMAXPROCS(0)
	if workers < 2 {
		workers = 2
	}
	if workers > 8 {
		workers = 8
	}

	return &Manager{
		socketPath: socketPath,
		logger:     logger,
		callbacks:  callbacks,
		numWorkers: workers,
		stopCh:     make(chan struct{}),
	}
}

// Start begins listening for hook events.
func (m *Manager) Start(ctx context.Context) error {
	dir := filepath.Dir(m.socketPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}

	os.Remove(m.socketPath)

	addr := &net.UnixAddr{Name: m.socketPath, Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return fmt.Errorf("listen unix: %w", err)
	}
	m.conn = conn

	conn.SetReadBuffer(4 * 1024 * 1024)
	os.Chmod(m.socketPath, 0777)

	ctrl, err := CreateControlFile(dir)
	if err != nil {
		m.logger.Warn("failed to create control file (on-demand tracing unavailable)", zap.Error(err))
	} else {
		m.control = ctrl
		m.logger.Info("control file created", zap.String("path", ctrl.Path()))
	}

	m.logger.Info("hook manager listening",
		zap.String("socket", m.socketPath),
		zap.Int("workers", m.numWorkers),
	)

	for i := 0; i < m.numWorkers; i++ {
		m.wg.Add(1)
		go m.readLoop(ctx, i)
	}

	return nil
}

// Stop shuts down the hook manager.
func (m *Manager) Stop() error {
	close(m.stopCh)
	if m.conn != nil {
		m.conn.Close()
	}
	m.wg.Wait()
	if m.control != nil {
		m.control.Close()
		m.control.Remove()
	}
	os.Remove(m.socketPath)
	return nil
}

// EnableTracing activates tracing in all hooked processes via shared memory.
func (m *Manager) EnableTracing() error {
	if m.control == nil {
		return fmt.Errorf("control file not available")
	}
	m.logger.Info("tracing enabled")
	return m.control.Enable()
}

// DisableTracing deactivates tracing. Hooks become pass-through (~1ns overhead).
func (m *Manager) DisableTracing() error {
	if m.control == nil {
		return fmt.Errorf("control file not available")
	}
	m.logger.Info("tracing disabled (dormant)")
	return m.control.Disable()
}

// IsTracingEnabled returns the current tracing state.
func (m *Manager) IsTracingEnabled() bool {
	if m.control == nil {
		return true // no control file = legacy always-active mode
	}
	enabled, _ := m.control.IsEnabled()
	return enabled
}

func (m *Manager) readLoop(ctx context.Context, workerID int) {
	defer m.wg.Done()

	buf := make([]byte, HeaderSize+MaxPayload)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		default:
		}

		n, err := m.conn.Read(buf)
		if err != nil {
			select {
			case <-m.stopCh:
				return
			default:
				m.logger.Debug("read error", zap.Int("worker", workerID), zap.Error(err))
				continue
			}
		}

		if n < HeaderSize {
			m.logger.Debug("message too short", zap.Int("size", n))
			continue
		}

		msg, err := ParseMessage(buf[:n])
		if err != nil {
			m.logger.Debug("parse error", zap.Error(err))
			continue
		}

		m.dispatch(msg)
	}
}

func (m *Manager) dispatch(msg *Message) {
	h := msg.Header

	switch h.MsgType {
	case MsgOpen:
		if m.callbacks.OnOpen != nil {
			m.callbacks.OnOpen(h.PID, h.TID, h.FD, msg.Path(), h.TimestampNS)
		}

	case MsgRead:
		if m.callbacks.OnRead != nil {
			m.callbacks.OnRead(h.PID, h.TID, h.FD, msg.ByteCount(), h.TimestampNS)
		}

	case MsgWrite:
		if m.callbacks.OnWrite != nil {
			m.callbacks.OnWrite(h.PID, h.TID, h.FD, msg.ByteCount(), h.TimestampNS)
		}

	case MsgClose:
		if m.callbacks.OnClose != nil {
			m.callbacks.OnClose(h.PID, h.TID, h.FD, h.TimestampNS)
		}
	}
}
