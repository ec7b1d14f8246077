// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package device

import "sync"

// Object IDs defined by the read-device-identification function (section
// 6.21 of the Modbus application protocol). IDs 0x07 and 0x08 are
// reserved; 0x80 and above are private, vendor defined.
const (
	IDVendorName          byte = 0x00
	IDProductCode         byte = 0x01
	IDMajorMinorRevision  byte = 0x02
	IDVendorURL           byte = 0x03
	IDProductName         byte = 0x04
	IDModelName           byte = 0x05
	IDUserApplicationName byte = 0x06
)

// Identity supplies the device identification objects served to masters.
//
// Two distinct key policies apply. At construction time only the public
// block 0x00-0x06 and the extended block 0x09-0x7F are admitted. On Set
// only the two reserved keys 0x07 and 0x08 are blocked. Update bypasses
// both guards and is meant for administrative bulk loads.
type Identity struct {
	mu   sync.Mutex
	data map[byte]string
}

// NewIdentity returns an identity seeded from info, dropping keys the
// construction policy rejects. A nil info yields an identity with the
// standard objects present and empty.
func NewIdentity(info map[byte]string) *Identity {
	id := &Identity{data: make(map[byte]string)}
	for key := byte(0x00); key <= 0x08; key++ {
		id.data[key] = ""
	}
	for key, value := range info {
		if admissibleAtConstruction(key) {
			id.data[key] = value
		}
	}
	return id
}

// admissibleAtConstruction is the constructor-time key filter.
func admissibleAtConstruction(key byte) bool {
	return key <= 0x06 || (key > 0x08 && key < 0x80)
}

// settable is the per-key write guard; only the reserved keys are blocked.
func settable(key byte) bool {
	return key != 0x07 && key != 0x08
}

// Get returns the value stored for key. An unknown key materializes as an
// empty entry and is visible on subsequent iteration.
func (id *Identity) Get(key byte) string {
	id.mu.Lock()
	defer id.mu.Unlock()
	value, ok := id.data[key]
	if !ok {
		id.data[key] = ""
	}
	return value
}

// Set stores value under key. Writes to the reserved keys are ignored.
func (id *Identity) Set(key byte, value string) {
	if !settable(key) {
		return
	}
	id.mu.Lock()
	defer id.mu.Unlock()
	id.data[key] = value
}

// Update overwrites entries from info unconditionally, reserved keys
// included.
func (id *Identity) Update(info map[byte]string) {
	id.mu.Lock()
	defer id.mu.Unlock()
	for key, value := range info {
		id.data[key] = value
	}
}

// All returns a copy of every stored object.
func (id *Identity) All() map[byte]string {
	id.mu.Lock()
	defer id.mu.Unlock()
	out := make(map[byte]string, len(id.data))
	for key, value := range id.data {
		out[key] = value
	}
	return out
}

// Named accessors for the standard objects.

func (id *Identity) VendorName() string             { return id.Get(IDVendorName) }
func (id *Identity) SetVendorName(v string)         { id.Set(IDVendorName, v) }
func (id *Identity) ProductCode() string            { return id.Get(IDProductCode) }
func (id *Identity) SetProductCode(v string)        { id.Set(IDProductCode, v) }
func (id *Identity) MajorMinorRevision() string     { return id.Get(IDMajorMinorRevision) }
func (id *Identity) SetMajorMinorRevision(v string) { id.Set(IDMajorMinorRevision, v) }
func (id *Identity) VendorURL() string              { return id.Get(IDVendorURL) }
func (id *Identity) SetVendorURL(v string)          { id.Set(IDVendorURL, v) }
func (id *Identity) ProductName() string            { return id.Get(IDProductName) }
func (id *Identity) SetProductName(v string)        { id.Set(IDProductName, v) }
func (id *Identity) ModelName() string              { return id.Get(IDModelName) }
func (id *Identity) SetModelName(v string)          { id.Set(IDModelName, v) }
func (id *Identity) UserApplicationName() string    { return id.Get(IDUserApplicationName) }
func (id *Identity) SetUserApplicationName(v string) {
	id.Set(IDUserApplicationName, v)
}
