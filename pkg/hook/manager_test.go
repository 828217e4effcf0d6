// Copyright 2024-2026 Madhukar Beema. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package hook

import (
	"encoding/binary"
	"testing"
)

func TestDispatchWrite(t *testing.T) {
	var gotPID, gotTID uint32
	var gotFD int32
	var gotN uint64
	var gotTS uint64
	called := false

	m := &Manager{
		callbacks: Callbacks{
			OnWrite: func(pid, tid uint32, fd int32, n uint64, ts uint64) {
				called = true
				gotPID = pid
				gotTID = tid
				gotFD = fd
				gotN = n
				gotTS = ts
			},
		},
	}

	buf := make([]byte, HeaderSize)
	buf[0] = MsgWrite
	binary.LittleEndian.PutUint32(buf[4:8], 1234)
	binary.LittleEndian.PutUint32(buf[8:12], 5678)
	binary.LittleEndian.PutUint32(buf[12:16], 3)
	binary.LittleEndian.PutUint32(buf[16:20], 2048)
	binary.LittleEndian.PutUint64(buf[24:32], 42000)

	msg, err := ParseMessage(buf)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}

	m.dispatch(msg)

	if !called {
		t.Fatal("OnWrite callback was not called")
	}
	if gotPID != 1234 {
		t.Errorf("PID = %d, want 1234", gotPID)
	}
	if gotTID != 5678 {
		t.Errorf("TID = %d, want 5678", gotTID)
	}
	if gotFD != 3 {
		t.Errorf("FD = %d, want 3", gotFD)
	}
	if gotN != 2048 {
		t.Errorf("n = %d, want 2048", gotN)
	}
	if gotTS != 42000 {
		t.Errorf("TS = %d, want 42000", gotTS)
	}
}

func TestDispatchOpenCarriesPath(t *testing.T) {
	var gotPath string
	called := false
	m := &Manager{
		callbacks: Callbacks{
			OnOpen: func(pid, tid uint32, fd int32, path string, ts uint64) {
				called = true
				gotPath = path
			},
		},
	}

	payload := []byte("/tmp/data.bin")
	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = MsgOpen
	binary.LittleEndian.PutUint32(buf[12:16], 7)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)

	msg, err := ParseMessage(buf)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	m.dispatch(msg)

	if !called {
		t.Fatal("OnOpen callback was not called")
	}
	if gotPath != "/tmp/data.bin" {
		t.Errorf("path = %q, want /tmp/data.bin", gotPath)
	}
}

func TestDispatchNilCallbackDoesNotPanic(t *testing.T) {
	m := &Manager{callbacks: Callbacks{}}

	msg := &Message{
		Header: Header{MsgType: MsgClose, PID: 100, TID: 200, FD: 5},
	}

	m.dispatch(msg)
}
