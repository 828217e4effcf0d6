package hook

import (
	"encoding/binary"
	"testing"
)

func TestParseHeader(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[0] = MsgWrite                                  // msg_type
	binary.LittleEndian.PutUint32(buf[4:8], 12345)     // pid
	binary.LittleEndian.PutUint32(buf[8:12], 67890)    // tid
	binary.LittleEndian.PutUint32(buf[12:16], 5)       // fd
	binary.LittleEndian.PutUint32(buf[16:20], 100)     // payload_len (byte count)
	binary.LittleEndian.PutUint64(buf[24:32], 1000000) // timestamp

	hdr, err := ParseHeader(buf)
	if err != nil {
		t.Fatalf("ParseHeader error: %v", err)
	}

	if hdr.MsgType != MsgWrite {
		t.Errorf("MsgType = %d, want %d", hdr.MsgType, MsgWrite)
	}
	if hdr.PID != 12345 {
		t.Errorf("PID = %d, want 12345", hdr.PID)
	}
	if hdr.TID != 67890 {
		t.Errorf("TID = %d, want 67890", hdr.TID)
	}
	if hdr.FD != 5 {
		t.Errorf("FD = %d, want 5", hdr.FD)
	}
	if hdr.PayloadLen != 100 {
		t.Errorf("PayloadLen = %d, want 100", hdr.PayloadLen)
	}
	if hdr.TimestampNS != 1000000 {
		t.Errorf("TimestampNS = %d, want 1000000", hdr.TimestampNS)
	}
}

func TestParseMessageOpenCarriesPath(t *testing.T) {
	payload := []byte("/var/log/app.log")
	buf := make([]byte, HeaderSize+len(payload))

	buf[0] = MsgOpen
	binary.LittleEndian.PutUint32(buf[4:8], 100)
	binary.LittleEndian.PutUint32(buf[8:12], 200)
	binary.LittleEndian.PutUint32(buf[12:16], 3)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)

	msg, err := ParseMessage(buf)
	if err != nil {
		t.Fatalf("ParseMessage error: %v", err)
	}

	if msg.Path() != "/var/log/app.log" {
		t.Errorf("Path() = %q", msg.Path())
	}
	if msg.ByteCount() != 0 {
		t.Errorf("ByteCount() = %d, want 0 for MsgOpen", msg.ByteCount())
	}
}

func TestParseMessageWriteCarriesByteCount(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[0] = MsgWrite
	binary.LittleEndian.PutUint32(buf[4:8], 100)
	binary.LittleEndian.PutUint32(buf[8:12], 200)
	binary.LittleEndian.PutUint32(buf[12:16], 3)
	binary.LittleEndian.PutUint32(buf[16:20], 4096)

	msg, err := ParseMessage(buf)
	if err != nil {
		t.Fatalf("ParseMessage error: %v", err)
	}
	if msg.ByteCount() != 4096 {
		t.Errorf("ByteCount() = %d, want 4096", msg.ByteCount())
	}
	if msg.Path() != "" {
		t.Errorf("Path() = %q, want empty for MsgWrite", msg.Path())
	}
}

func TestMsgTypeName(t *testing.T) {
	tests := []struct {
		t    uint8
		name string
	}{
		{MsgOpen, "OPEN"},
		{MsgRead, "READ"},
		{MsgWrite, "WRITE"},
		{MsgClose, "CLOSE"},
		{99, "UNKNOWN(99)"},
	}

	for _, tt := range tests {
		got := MsgTypeName(tt.t)
		if got != tt.name {
			t.Errorf("MsgTypeName(%d) = %q, want %q", tt.t, got, tt.name)
		}
	}
}

func TestParseHeaderRejectsShortBuffer(t *testing.T) {
	_, err := ParseHeader(make([]byte, HeaderSize-1))
	if err == nil {
		t.Fatal("expected error for undersized buffer")
	}
}

func TestParseMessageRejectsTruncatedPayload(t *testing.T) {
	buf := make([]byte, HeaderSize+2)
	buf[0] = MsgOpen
	binary.LittleEndian.PutUint32(buf[16:20], 100) // claims 100 bytes, only 2 present

	_, err := ParseMessage(buf)
	if err == nil {
		t.Fatal("expected error for truncated payload")
	}
}
