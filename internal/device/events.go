// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package device

// Event is a protocol-level occurrence retained in the control block's
// event log. Each event encodes to the byte form served by the
// get-com-event-log function.
type Event interface {
	Encode() []byte
}

// ReceiveEvent records a message received on the bus.
type ReceiveEvent struct {
	Overrun    bool
	ListenOnly bool
	Broadcast  bool
	CommError  bool
}

func (e ReceiveEvent) Encode() []byte {
	b := byte(0x80)
	if e.Broadcast {
		b |= 0x40
	}
	if e.ListenOnly {
		b |= 0x20
	}
	if e.Overrun {
		b |= 0x10
	}
	if e.CommError {
		b |= 0x02
	}
	return []byte{b}
}

// SendEvent records a response sent (or suppressed) by the device.
type SendEvent struct {
	ListenOnly    bool
	WriteTimeout  bool
	SlaveNAK      bool
	SlaveBusy     bool
	SlaveAbort    bool
	ReadException bool
}

func (e SendEvent) Encode() []byte {
	b := byte(0x40)
	if e.ListenOnly {
		b |= 0x20
	}
	if e.WriteTimeout {
		b |= 0x10
	}
	if e.SlaveNAK {
		b |= 0x08
	}
	if e.SlaveBusy {
		b |= 0x04
	}
	if e.SlaveAbort {
		b |= 0x02
	}
	if e.ReadException {
		b |= 0x01
	}
	return []byte{b}
}

// EnteredListenModeEvent records the device entering listen-only mode.
type EnteredListenModeEvent struct{}

func (EnteredListenModeEvent) Encode() []byte { return []byte{0x04} }

// CommunicationRestartEvent records a communication restart.
type CommunicationRestartEvent struct{}

func (CommunicationRestartEvent) Encode() []byte { return []byte{0x00} }
