// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package device

import "sync"

// Serial framing modes accepted by the control block.
const (
	ModeASCII = "ASCII"
	ModeRTU   = "RTU"
)

// MaxEvents bounds the event log; older entries are dropped.
const MaxEvents = 64

const diagnosticBits = 16

// ControlBlock aggregates the identity, counters, diagnostic register and
// event log of the serving node, plus the serial mode, delimiter and
// listen-only state. A single block exists per node; every request path
// consults and updates the same instance.
type ControlBlock struct {
	identity *Identity
	counters *Counters

	mu         sync.Mutex
	events     []Event
	diagnostic [diagnosticBits]bool
	mode       string
	delimiter  byte
	listenOnly bool
}

// NewControlBlock returns a control block with an empty identity, zeroed
// counters, ASCII mode and a carriage-return delimiter.
func NewControlBlock() *ControlBlock {
	return &ControlBlock{
		identity:  NewIdentity(nil),
		counters:  &Counters{},
		mode:      ModeASCII,
		delimiter: '\r',
	}
}

// Identity returns the device identification store.
func (cb *ControlBlock) Identity() *Identity { return cb.identity }

// Counters returns the diagnostic counters.
func (cb *ControlBlock) Counters() *Counters { return cb.counters }

// AddEvent prepends event to the log, drops entries beyond MaxEvents and
// increments the event counter.
func (cb *ControlBlock) AddEvent(event Event) {
	cb.mu.Lock()
	cb.events = append([]Event{event}, cb.events...)
	if len(cb.events) > MaxEvents {
		cb.events = cb.events[:MaxEvents]
	}
	cb.mu.Unlock()
	cb.counters.Inc(CntEvent)
}

// Events returns a snapshot of the log, newest first.
func (cb *ControlBlock) Events() []Event {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	out := make([]Event, len(cb.events))
	copy(out, cb.events)
	return out
}

// GetEvents returns the concatenated encoding of every retained event,
// newest first, as served by the get-com-event-log function.
func (cb *ControlBlock) GetEvents() []byte {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	var raw []byte
	for _, event := range cb.events {
		raw = append(raw, event.Encode()...)
	}
	return raw
}

// Reset clears the event log, the counters and the diagnostic register.
// Identity, mode and delimiter persist across a reset.
func (cb *ControlBlock) Reset() {
	cb.mu.Lock()
	cb.events = nil
	cb.diagnostic = [diagnosticBits]bool{}
	cb.mu.Unlock()
	cb.counters.Reset()
}

// Mode returns the current serial framing mode.
func (cb *ControlBlock) Mode() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.mode
}

// SetMode switches the serial framing mode. Values other than ModeASCII
// and ModeRTU are ignored and the previous mode is retained.
func (cb *ControlBlock) SetMode(mode string) {
	if mode != ModeASCII && mode != ModeRTU {
		return
	}
	cb.mu.Lock()
	cb.mode = mode
	cb.mu.Unlock()
}

// Delimiter returns the ASCII-mode end-of-frame delimiter.
func (cb *ControlBlock) Delimiter() byte {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.delimiter
}

// SetDelimiter changes the end-of-frame delimiter.
func (cb *ControlBlock) SetDelimiter(delimiter byte) {
	cb.mu.Lock()
	cb.delimiter = delimiter
	cb.mu.Unlock()
}

// SetDelimiterString changes the delimiter from a one-character string.
// Strings of any other length are ignored.
func (cb *ControlBlock) SetDelimiterString(s string) {
	if len(s) != 1 {
		return
	}
	cb.SetDelimiter(s[0])
}

// ListenOnly reports whether the node is in listen-only mode.
func (cb *ControlBlock) ListenOnly() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.listenOnly
}

// SetListenOnly toggles listen-only mode.
func (cb *ControlBlock) SetListenOnly(v bool) {
	cb.mu.Lock()
	cb.listenOnly = v
	cb.mu.Unlock()
}

// SetDiagnostic sets bits of the diagnostic register from the mapping.
// Out-of-range bit indexes are ignored.
func (cb *ControlBlock) SetDiagnostic(bits map[int]bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	for bit, value := range bits {
		if bit >= 0 && bit < diagnosticBits {
			cb.diagnostic[bit] = value
		}
	}
}

// GetDiagnostic returns the value of one diagnostic bit. The second return
// is false when bit is out of range.
func (cb *ControlBlock) GetDiagnostic(bit int) (bool, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if bit < 0 || bit >= diagnosticBits {
		return false, false
	}
	return cb.diagnostic[bit], true
}

// DiagnosticRegister returns a snapshot of the whole diagnostic register.
func (cb *ControlBlock) DiagnosticRegister() [16]bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.diagnostic
}
