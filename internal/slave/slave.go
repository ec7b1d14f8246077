// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package slave implements the Modbus protocol logic of the local device:
// it decodes inbound PDUs, runs them against the register store and keeps
// the shared control block's counters and event log up to date.
package slave

import (
	"encoding/binary"
	"errors"

	"github.com/pombreda/modbus-device/internal/device"
	"github.com/pombreda/modbus-device/internal/store"
	"github.com/pombreda/modbus-device/internal/store/persistence"
	"github.com/pombreda/modbus-device/modbus"
)

// ErrNoResponse is returned by Process when the node is in listen-only
// mode: the request was consumed but no response may be sent.
var ErrNoResponse = errors.New("modbus: listen-only mode, response suppressed")

// Slave executes Modbus requests against a DataModel on behalf of the
// serving node. All executions share one control block.
type Slave struct {
	model   *store.DataModel
	storage persistence.Storage
	control *device.ControlBlock
}

// NewSlave creates a new Slave. When storage is non-nil its OnWrite hook
// is installed on the model so register writes persist in real time.
func NewSlave(m *store.DataModel, storage persistence.Storage, control *device.ControlBlock) *Slave {
	if storage != nil {
		m.SetWriteHook(storage.OnWrite)
	}
	return &Slave{model: m, storage: storage, control: control}
}

// Control returns the shared control block.
func (s *Slave) Control() *device.ControlBlock { return s.control }

// EnterListenOnly puts the node in listen-only mode and records the event.
func (s *Slave) EnterListenOnly() {
	s.control.SetListenOnly(true)
	s.control.AddEvent(device.EnteredListenModeEvent{})
}

// Restart leaves listen-only mode, clears the control block's counters,
// diagnostics and event log, and records a communication restart.
func (s *Slave) Restart() {
	s.control.SetListenOnly(false)
	s.control.Reset()
	s.control.AddEvent(device.CommunicationRestartEvent{})
}

// Process executes the Modbus function code against the register store.
// It returns ErrNoResponse when the node is in listen-only mode.
func (s *Slave) Process(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	counters := s.control.Counters()
	counters.Inc(device.CntBusMessage)

	if s.control.ListenOnly() {
		s.control.AddEvent(device.ReceiveEvent{ListenOnly: true})
		counters.Inc(device.CntSlaveNoResponse)
		return modbus.ProtocolDataUnit{}, ErrNoResponse
	}
	s.control.AddEvent(device.ReceiveEvent{})
	counters.Inc(device.CntSlaveMessage)

	var resp modbus.ProtocolDataUnit
	switch req.FunctionCode {
	case modbus.FuncCodeWriteSingleRegister:
		resp = s.execute(&modbus.WriteSingleRegisterRequest{}, req)
	case modbus.FuncCodeWriteMultipleRegisters:
		resp = s.execute(&modbus.WriteMultipleRegistersRequest{}, req)
	case modbus.FuncCodeReadCoils, modbus.FuncCodeReadDiscreteInputs:
		resp = s.handleReadBits(req)
	case modbus.FuncCodeReadHoldingRegisters, modbus.FuncCodeReadInputRegisters:
		resp = s.handleReadRegisters(req)
	case modbus.FuncCodeWriteSingleCoil:
		resp = s.handleWriteSingleCoil(req)
	case modbus.FuncCodeWriteMultipleCoils:
		resp = s.handleWriteMultipleCoils(req)
	default:
		resp = modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalFunction)
	}

	if resp.IsException() {
		counters.Inc(device.CntBusExceptionError)
		s.control.AddEvent(device.SendEvent{ReadException: true})
	} else {
		s.control.AddEvent(device.SendEvent{})
	}
	return resp, nil
}

// execute decodes the request body into req and runs it against the store.
// A body the codec rejects produces an illegal-data-value exception.
func (s *Slave) execute(req modbus.Request, pdu modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if err := req.Decode(pdu.Data); err != nil {
		return modbus.Exception(pdu.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	return req.Execute(s.model)
}

func (s *Slave) handleReadBits(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity < 1 || quantity > 2000 {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	if !s.model.Validate(req.FunctionCode, address, quantity) {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}

	values := s.model.GetValues(req.FunctionCode, address, quantity)

	// Pack bits: (quantity + 7) / 8 bytes, LSB first.
	byteCount := (int(quantity) + 7) / 8
	respData := make([]byte, 1+byteCount)
	respData[0] = byte(byteCount)
	for i, v := range values {
		if v != 0 {
			respData[1+i/8] |= 1 << (i % 8)
		}
	}

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}
}

func (s *Slave) handleReadRegisters(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity < 1 || quantity > 125 {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	if !s.model.Validate(req.FunctionCode, address, quantity) {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}

	values := s.model.GetValues(req.FunctionCode, address, quantity)

	respData := make([]byte, 1+len(values)*2)
	respData[0] = byte(len(values) * 2)
	for i, v := range values {
		binary.BigEndian.PutUint16(respData[1+i*2:], v)
	}

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}
}

func (s *Slave) handleWriteSingleCoil(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	if value != 0xFF00 && value != 0x0000 {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	if !s.model.Validate(req.FunctionCode, address, 1) {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}

	s.model.SetValues(req.FunctionCode, address, []uint16{value})

	return req // Echo request
}

func (s *Slave) handleWriteMultipleCoils(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) < 6 {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := req.Data[4]

	if quantity < 1 || quantity > 1968 {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	// byteCount must agree with both the announced quantity and the body
	// length before the bit-unpack loop may trust either.
	if int(byteCount) != (int(quantity)+7)/8 {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	if byte(len(req.Data)-5) != byteCount {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	if !s.model.Validate(req.FunctionCode, address, quantity) {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}

	values := make([]uint16, quantity)
	for i := range values {
		if req.Data[5+i/8]&(1<<(i%8)) != 0 {
			values[i] = 1
		}
	}
	s.model.SetValues(req.FunctionCode, address, values)

	respData := make([]byte, 4)
	binary.BigEndian.PutUint16(respData[0:2], address)
	binary.BigEndian.PutUint16(respData[2:4], quantity)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}
}
