// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package device

import "testing"

func TestCountersIncGet(t *testing.T) {
	var c Counters
	if got := c.Get(CntBusMessage); got != 0 {
		t.Fatalf("Get(CntBusMessage) = %d, want 0", got)
	}

	c.Inc(CntBusMessage)
	c.Inc(CntBusMessage)
	c.Inc(CntSlaveMessage)
	if got := c.Get(CntBusMessage); got != 2 {
		t.Errorf("Get(CntBusMessage) = %d, want 2", got)
	}
	if got := c.Get(CntSlaveMessage); got != 1 {
		t.Errorf("Get(CntSlaveMessage) = %d, want 1", got)
	}
	if got := c.Get(CntSlaveNAK); got != 0 {
		t.Errorf("Get(CntSlaveNAK) = %d, want 0", got)
	}
}

func TestCountersUnknownIgnored(t *testing.T) {
	var c Counters
	c.Inc(Counter(-1))
	c.Inc(Counter(99))
	c.Update(map[Counter]uint16{Counter(42): 7})
	if got := c.Get(Counter(99)); got != 0 {
		t.Errorf("Get(unknown) = %d, want 0", got)
	}
	if got := c.Summary(); got != 0 {
		t.Errorf("Summary() = %#02x, want 0", got)
	}
}

func TestCountersUpdateAccumulates(t *testing.T) {
	var c Counters
	c.Inc(CntBusExceptionError)
	c.Update(map[Counter]uint16{
		CntBusExceptionError: 4,
		CntSlaveBusy:         2,
	})
	if got := c.Get(CntBusExceptionError); got != 5 {
		t.Errorf("Get(CntBusExceptionError) = %d, want 5", got)
	}
	if got := c.Get(CntSlaveBusy); got != 2 {
		t.Errorf("Get(CntSlaveBusy) = %d, want 2", got)
	}
}

func TestCountersWrapAround(t *testing.T) {
	var c Counters
	c.Update(map[Counter]uint16{CntBusMessage: 0xFFFF})
	c.Inc(CntBusMessage)
	if got := c.Get(CntBusMessage); got != 0 {
		t.Errorf("Get(CntBusMessage) after overflow = %d, want 0", got)
	}
}

func TestCountersSummary(t *testing.T) {
	tests := []struct {
		name string
		set  []Counter
		want byte
	}{
		{"Zeroed", nil, 0x00},
		{"FirstOnly", []Counter{CntBusMessage}, 0x01},
		{"TwoBits", []Counter{CntBusCommunicationError, CntSlaveNoResponse}, 0x12},
		{"LastMaskBit", []Counter{CntBusCharacterOverrun}, 0x80},
		{"EventExcluded", []Counter{CntEvent}, 0x00},
		{"EventPlusFirst", []Counter{CntEvent, CntBusMessage}, 0x01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Counters
			for _, cnt := range tt.set {
				c.Inc(cnt)
			}
			if got := c.Summary(); got != tt.want {
				t.Errorf("Summary() = %#02x, want %#02x", got, tt.want)
			}
		})
	}
}

func TestCountersReset(t *testing.T) {
	var c Counters
	for cnt := CntBusMessage; cnt <= CntEvent; cnt++ {
		c.Inc(cnt)
	}
	c.Reset()
	for i, v := range c.All() {
		if v != 0 {
			t.Errorf("counter %s = %d after Reset, want 0", Counter(i), v)
		}
	}
	if got := c.Summary(); got != 0 {
		t.Errorf("Summary() after Reset = %#02x, want 0", got)
	}
}

func TestCounterString(t *testing.T) {
	if got := CntSlaveNoResponse.String(); got != "SlaveNoResponse" {
		t.Errorf("CntSlaveNoResponse.String() = %q", got)
	}
	if got := Counter(99).String(); got != "unknown counter" {
		t.Errorf("Counter(99).String() = %q", got)
	}
}
