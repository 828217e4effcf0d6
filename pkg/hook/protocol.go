package hook

import (
	"encoding/binary"
	"fmt"
)

// Message types matching the C shim's msg_type field. The shim emits one of
// these for every open/openat/creat, read/pread, write/pwrite, and close it
// intercepts.
const (
	MsgOpen  = 1
	MsgRead  = 2
	MsgWrite = 3
	MsgClose = 4
)

// HeaderSize is the fixed size of the binary wire protocol header.
const HeaderSize = 32

// MaxPayload is the maximum payload per message: large enough for any path
// this collector is expected to see, small enough to bound a single
// datagram.
const MaxPayload = 4 * 1024

// Header is the Go representation of the shim's msg_header_t. PayloadLen
// doubles as the byte count for MsgRead/MsgWrite (see Message.ByteCount):
// those messages carry no payload, so rather than grow the header, byte
// counts up to 4GiB per syscall ride in PayloadLen, and the descriptor rides
// in FD for every message type.
type Header struct {
	MsgType     uint8
	PID         uint32
	TID         uint32
	FD          int32
	PayloadLen  uint32
	TimestampNS uint64
}

// Message is a complete hook event with header and optional payload. For
// MsgOpen the payload is the opened path; for MsgRead/MsgWrite/MsgClose
// there is no payload, and PayloadLen carries the byte count moved by that
// syscall (ignored for MsgClose).
type Message struct {
	Header  Header
	Payload []byte
}

// MsgTypeName returns a human-readable name for a message type.
func MsgTypeName(t uint8) string {
	switch t {
	case MsgOpen:
		return "OPEN"
	case MsgRead:
		return "READ"
	case MsgWrite:
		return "WRITE"
	case MsgClose:
		return "CLOSE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", t)
	}
}

// Path returns the opened path for an MsgOpen message, or "" otherwise.
func (m *Message) Path() string {
	if m.Header.MsgType != MsgOpen {
		return ""
	}
	return string(m.Payload)
}

// ByteCount returns the byte count carried by an MsgRead or MsgWrite
// message, or 0 otherwise.
func (m *Message) ByteCount() uint64 {
	if m.Header.MsgType != MsgRead && m.Header.MsgType != MsgWrite {
		return 0
	}
	return uint64(m.Header.PayloadLen)
}

// ParseHeader decodes a 32-byte binary header.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("buffer too small: %d < %d", len(buf), HeaderSize)
	}

	return Header{
		MsgType:     buf[0],
		PID:         binary.LittleEndian.Uint32(buf[4:8]),
		TID:         binary.LittleEndian.Uint32(buf[8:12]),
		FD:          int32(binary.LittleEndian.Uint32(buf[12:16])),
		PayloadLen:  binary.LittleEndian.Uint32(buf[16:20]),
		TimestampNS: binary.LittleEndian.Uint64(buf[24:32]),
	}, nil
}

// ParseMessage decodes a complete message from a byte buffer. Only MsgOpen
// carries a payload; other message types ignore any trailing bytes.
func ParseMessage(buf []byte) (*Message, error) {
	hdr, err := ParseHeader(buf)
	if err != nil {
		return nil, err
	}

	msg := &Message{Header: hdr}

	if hdr.MsgType == MsgOpen && hdr.PayloadLen > 0 {
		if uint32(len(buf)) < uint32(HeaderSize)+hdr.PayloadLen {
			return nil, fmt.Errorf("payload truncated: have %d, need %d",
				len(buf)-HeaderSize, hdr.PayloadLen)
		}
		msg.Payload = make([]byte, hdr.PayloadLen)
		copy(msg.Payload, buf[HeaderSize:HeaderSize+hdr.PayloadLen])
	}

	return msg, nil
}
