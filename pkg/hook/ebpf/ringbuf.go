//go:build linux

package ebpf

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/noahyzhang/fioscope/pkg/hook"
	"go.uber.org/zap"
)

// Event types — must match the constants in fioscope.bpf.c.
const (
	eventOpen  = 1
	eventRead  = 2
	eventWrite = 3
	eventClose = 4
)

// fioscopeEvent is the Go representation of struct fioscope_event from BPF.
// It matches the exact memory layout of the C struct. Path is only
// populated for eventOpen; read/write events carry a byte count in
// PayloadLen and no path (the kernel-side fd_path_map already has it).
type fioscopeEvent struct {
	EventType   uint8
	_pad        [3]byte
	PID         uint32
	TID         uint32
	FD          int32
	PayloadLen  uint32
	TimestampNS uint64
	Path        [256]byte
}

const fioscopeEventSize = 4 + 4 + 4 + 4 + 4 + 4 + 8 + 256 // 288 bytes (4 bytes of padding before TimestampNS)

// eventReader wraps a BPF ring buffer reader and dispatches events to Callbacks.
type eventReader struct {
	reader    *ringbuf.Reader
	callbacks hook.Callbacks
	logger    *zap.Logger
}

// newEventReader creates a ring buffer reader for the given BPF map.
func newEventReader(eventsMap *ebpf.Map, callbacks hook.Callbacks, logger *zap.Logger) (*eventReader, error) {
	rd, err := ringbuf.NewReader(eventsMap)
	if err != nil {
		return nil, fmt.Errorf("create ring buffer reader: %w", err)
	}
	return &eventReader{
		reader:    rd,
		callbacks: callbacks,
		logger:    logger,
	}, nil
}

// readLoop reads events from the ring buffer and dispatches to callbacks.
// It blocks until the reader is closed or an unrecoverable error occurs.
func (er *eventReader) readLoop() {
	for {
		record, err := er.reader.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) {
				return
			}
			er.logger.Debug("ring buffer read error", zap.Error(err))
			continue
		}

		er.dispatch(record.RawSample)
	}
}

// dispatch parses a raw ring buffer sample and calls the appropriate callback.
func (er *eventReader) dispatch(raw []byte) {
	if len(raw) < 32 { // minimum event header size (without path)
		er.logger.Debug("event too short", zap.Int("len", len(raw)))
		return
	}

	eventType := raw[0]
	pid := binary.LittleEndian.Uint32(raw[4:8])
	tid := binary.LittleEndian.Uint32(raw[8:12])
	fd := int32(binary.LittleEndian.Uint32(raw[12:16]))
	payloadLen := binary.LittleEndian.Uint32(raw[16:20])
	ts := binary.LittleEndian.Uint64(raw[24:32])

	var path string
	const pathOffset = 32
	if eventType == eventOpen && len(raw) > pathOffset {
		end := pathOffset
		for end < len(raw) && raw[end] != 0 {
			end++
		}
		path = string(raw[pathOffset:end])
	}

	switch eventType {
	case eventOpen:
		if er.callbacks.OnOpen != nil {
			er.callbacks.OnOpen(pid, tid, fd, path, ts)
		}

	case eventRead:
		if er.callbacks.OnRead != nil {
			er.callbacks.OnRead(pid, tid, fd, uint64(payloadLen), ts)
		}

	case eventWrite:
		if er.callbacks.OnWrite != nil {
			er.callbacks.OnWrite(pid, tid, fd, uint64(payloadLen), ts)
		}

	case eventClose:
		if er.callbacks.OnClose != nil {
			er.callbacks.OnClose(pid, tid, fd, ts)
		}
	}
}

// close closes the ring buffer reader.
func (er *eventReader) close() error {
	return er.reader.Close()
}
