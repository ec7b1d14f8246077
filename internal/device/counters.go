// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package device

import "sync"

// Counter identifies one of the nine diagnostic counters of the device.
type Counter int

const (
	CntBusMessage Counter = iota
	CntBusCommunicationError
	CntBusExceptionError
	CntSlaveMessage
	CntSlaveNoResponse
	CntSlaveNAK
	CntSlaveBusy
	CntBusCharacterOverrun
	CntEvent

	numCounters = iota
)

func (c Counter) String() string {
	switch c {
	case CntBusMessage:
		return "BusMessage"
	case CntBusCommunicationError:
		return "BusCommunicationError"
	case CntBusExceptionError:
		return "BusExceptionError"
	case CntSlaveMessage:
		return "SlaveMessage"
	case CntSlaveNoResponse:
		return "SlaveNoResponse"
	case CntSlaveNAK:
		return "SlaveNAK"
	case CntSlaveBusy:
		return "SlaveBusy"
	case CntBusCharacterOverrun:
		return "BusCharacterOverrun"
	case CntEvent:
		return "Event"
	default:
		return "unknown counter"
	}
}

// Counters keeps the nine 16-bit diagnostic counters of the device.
// Counters wrap around on overflow.
type Counters struct {
	mu     sync.Mutex
	values [numCounters]uint16
}

// Inc adds one to cnt. Unknown counters are ignored.
func (c *Counters) Inc(cnt Counter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cnt < 0 || int(cnt) >= numCounters {
		return
	}
	c.values[cnt]++
}

// Get returns the current value of cnt.
func (c *Counters) Get(cnt Counter) uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cnt < 0 || int(cnt) >= numCounters {
		return 0
	}
	return c.values[cnt]
}

// Update adds each delta in deltas to the named counter.
func (c *Counters) Update(deltas map[Counter]uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for cnt, delta := range deltas {
		if cnt < 0 || int(cnt) >= numCounters {
			continue
		}
		c.values[cnt] += delta
	}
}

// Reset zeroes all counters.
func (c *Counters) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = [numCounters]uint16{}
}

// Summary returns a byte with bit i set when the i-th counter is nonzero.
// The mask covers the first eight counters only; the event counter has no
// summary bit.
func (c *Counters) Summary() byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var mask byte
	for i := 0; i < 8; i++ {
		if c.values[i] != 0 {
			mask |= 1 << i
		}
	}
	return mask
}

// All returns a snapshot of every counter, indexed by Counter.
func (c *Counters) All() []uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint16, numCounters)
	copy(out, c.values[:])
	return out
}
