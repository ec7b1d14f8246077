// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package store holds the register data of the local device. It uses a
// simple flat memory model covering the full 16-bit address space and
// implements the datastore contract consulted by PDU execution.
package store

import (
	"sync"

	"github.com/pombreda/modbus-device/modbus"
)

const (
	MaxAddress = 65535
)

// TableType identifies one of the four Modbus data tables.
type TableType int

const (
	TableCoils TableType = iota
	TableDiscreteInputs
	TableHoldingRegisters
	TableInputRegisters
)

// WriteHook is called after a range of a table has been modified. It lets
// a persistence backend sync changes to disk or a database.
type WriteHook func(table TableType, address, quantity uint16)

// DataModel holds the modbus data in memory.
type DataModel struct {
	mu sync.RWMutex

	// 0x Coils (Read/Write). Stored as 1 (ON) or 0 (OFF).
	Coils []byte
	// 1x Discrete Inputs (Read Only). Stored as 1 (ON) or 0 (OFF).
	DiscreteInputs []byte
	// 4x Holding Registers (Read/Write).
	HoldingRegisters []uint16
	// 3x Input Registers (Read Only).
	InputRegisters []uint16

	onWrite WriteHook
}

var _ modbus.Datastore = (*DataModel)(nil)

// NewDataModel creates a new memory model initialized to zero.
func NewDataModel() *DataModel {
	return &DataModel{
		Coils:            make([]byte, MaxAddress+1),
		DiscreteInputs:   make([]byte, MaxAddress+1),
		HoldingRegisters: make([]uint16, MaxAddress+1),
		InputRegisters:   make([]uint16, MaxAddress+1),
	}
}

// SetWriteHook installs hook to be called after every mutation.
func (m *DataModel) SetWriteHook(hook WriteHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onWrite = hook
}

// tableFor maps a function code to the data table it addresses.
func tableFor(funcCode byte) (TableType, bool) {
	switch funcCode {
	case modbus.FuncCodeReadCoils,
		modbus.FuncCodeWriteSingleCoil,
		modbus.FuncCodeWriteMultipleCoils:
		return TableCoils, true
	case modbus.FuncCodeReadDiscreteInputs:
		return TableDiscreteInputs, true
	case modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeWriteSingleRegister,
		modbus.FuncCodeWriteMultipleRegisters,
		modbus.FuncCodeReadWriteMultipleRegisters:
		return TableHoldingRegisters, true
	case modbus.FuncCodeReadInputRegisters:
		return TableInputRegisters, true
	default:
		return 0, false
	}
}

// Validate reports whether [address, address+count) addresses an existing
// range of the table selected by funcCode.
func (m *DataModel) Validate(funcCode byte, address, count uint16) bool {
	if _, ok := tableFor(funcCode); !ok {
		return false
	}
	if count == 0 {
		return false
	}
	// address is 0-based.
	return int(address)+int(count) <= MaxAddress+1
}

// SetValues writes values into the addressed table starting at address.
// Out-of-range writes are truncated at the end of the table; callers are
// expected to Validate first.
func (m *DataModel) SetValues(funcCode byte, address uint16, values []uint16) {
	table, ok := tableFor(funcCode)
	if !ok {
		return
	}

	m.mu.Lock()
	n := 0
	for i, value := range values {
		addr := int(address) + i
		if addr > MaxAddress {
			break
		}
		switch table {
		case TableCoils:
			if value != 0 {
				m.Coils[addr] = 1
			} else {
				m.Coils[addr] = 0
			}
		case TableDiscreteInputs:
			if value != 0 {
				m.DiscreteInputs[addr] = 1
			} else {
				m.DiscreteInputs[addr] = 0
			}
		case TableHoldingRegisters:
			m.HoldingRegisters[addr] = value
		case TableInputRegisters:
			m.InputRegisters[addr] = value
		}
		n++
	}
	hook := m.onWrite
	m.mu.Unlock()

	if hook != nil && n > 0 {
		hook(table, address, uint16(n))
	}
}

// GetValues reads count values from the addressed table starting at
// address. Coil and discrete-input bits are returned as 0 or 1.
func (m *DataModel) GetValues(funcCode byte, address, count uint16) []uint16 {
	table, ok := tableFor(funcCode)
	if !ok {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	values := make([]uint16, 0, count)
	for i := 0; i < int(count); i++ {
		addr := int(address) + i
		if addr > MaxAddress {
			break
		}
		switch table {
		case TableCoils:
			values = append(values, uint16(m.Coils[addr]))
		case TableDiscreteInputs:
			values = append(values, uint16(m.DiscreteInputs[addr]))
		case TableHoldingRegisters:
			values = append(values, m.HoldingRegisters[addr])
		case TableInputRegisters:
			values = append(values, m.InputRegisters[addr])
		}
	}
	return values
}
