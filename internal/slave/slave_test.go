// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"bytes"
	"errors"
	"testing"

	"github.com/pombreda/modbus-device/internal/device"
	"github.com/pombreda/modbus-device/internal/store"
	"github.com/pombreda/modbus-device/modbus"
)

func newTestSlave() *Slave {
	return NewSlave(store.NewDataModel(), nil, device.NewControlBlock())
}

func TestProcessWriteSingleRegister(t *testing.T) {
	s := newTestSlave()
	req := modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWriteSingleRegister,
		Data:         []byte{0x00, 0x10, 0x12, 0x34},
	}

	resp, err := s.Process(req)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if resp.FunctionCode != modbus.FuncCodeWriteSingleRegister {
		t.Errorf("response function code = %#02x", resp.FunctionCode)
	}
	if !bytes.Equal(resp.Data, req.Data) {
		t.Errorf("response data = % 02x, want echo % 02x", resp.Data, req.Data)
	}

	values := s.model.GetValues(modbus.FuncCodeReadHoldingRegisters, 0x10, 1)
	if values[0] != 0x1234 {
		t.Errorf("register 0x10 = %#04x, want 0x1234", values[0])
	}

	counters := s.Control().Counters()
	if got := counters.Get(device.CntBusMessage); got != 1 {
		t.Errorf("bus message counter = %d, want 1", got)
	}
	if got := counters.Get(device.CntSlaveMessage); got != 1 {
		t.Errorf("slave message counter = %d, want 1", got)
	}
	if got := counters.Get(device.CntBusExceptionError); got != 0 {
		t.Errorf("exception counter = %d, want 0", got)
	}

	// One receive and one send event, newest first.
	events := s.Control().Events()
	if len(events) != 2 {
		t.Fatalf("event log length = %d, want 2", len(events))
	}
	if _, ok := events[0].(device.SendEvent); !ok {
		t.Errorf("events[0] = %T, want SendEvent", events[0])
	}
	if _, ok := events[1].(device.ReceiveEvent); !ok {
		t.Errorf("events[1] = %T, want ReceiveEvent", events[1])
	}
}

func TestProcessWriteMultipleRegisters(t *testing.T) {
	s := newTestSlave()
	req := modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWriteMultipleRegisters,
		Data:         []byte{0x00, 0x01, 0x00, 0x02, 0x04, 0x00, 0x0A, 0x01, 0x02},
	}

	resp, err := s.Process(req)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	want := []byte{0x00, 0x01, 0x00, 0x02}
	if !bytes.Equal(resp.Data, want) {
		t.Fatalf("response data = % 02x, want % 02x", resp.Data, want)
	}

	values := s.model.GetValues(modbus.FuncCodeReadHoldingRegisters, 1, 2)
	if values[0] != 0x000A || values[1] != 0x0102 {
		t.Errorf("registers = %#04x %#04x, want 0x000A 0x0102", values[0], values[1])
	}
}

func TestProcessMalformedWriteBody(t *testing.T) {
	s := newTestSlave()
	req := modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWriteSingleRegister,
		Data:         []byte{0x00, 0x10, 0x12},
	}

	resp, err := s.Process(req)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if code := resp.ExceptionCode(); code != modbus.ExceptionCodeIllegalDataValue {
		t.Errorf("exception code = %d, want %d", code, modbus.ExceptionCodeIllegalDataValue)
	}
}

func TestProcessIllegalFunction(t *testing.T) {
	s := newTestSlave()
	req := modbus.ProtocolDataUnit{FunctionCode: 0x55, Data: nil}

	resp, err := s.Process(req)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if resp.FunctionCode != 0x55|0x80 {
		t.Errorf("response function code = %#02x, want %#02x", resp.FunctionCode, 0x55|0x80)
	}
	if code := resp.ExceptionCode(); code != modbus.ExceptionCodeIllegalFunction {
		t.Errorf("exception code = %d, want %d", code, modbus.ExceptionCodeIllegalFunction)
	}

	counters := s.Control().Counters()
	if got := counters.Get(device.CntBusExceptionError); got != 1 {
		t.Errorf("exception counter = %d, want 1", got)
	}
	events := s.Control().Events()
	if send, ok := events[0].(device.SendEvent); !ok || !send.ReadException {
		t.Errorf("events[0] = %+v, want SendEvent with ReadException", events[0])
	}
}

func TestProcessListenOnly(t *testing.T) {
	s := newTestSlave()
	s.EnterListenOnly()
	if !s.Control().ListenOnly() {
		t.Fatal("node should be in listen-only mode")
	}

	req := modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWriteSingleRegister,
		Data:         []byte{0x00, 0x10, 0x12, 0x34},
	}
	_, err := s.Process(req)
	if !errors.Is(err, ErrNoResponse) {
		t.Fatalf("Process() error = %v, want ErrNoResponse", err)
	}

	counters := s.Control().Counters()
	if got := counters.Get(device.CntBusMessage); got != 1 {
		t.Errorf("bus message counter = %d, want 1", got)
	}
	if got := counters.Get(device.CntSlaveNoResponse); got != 1 {
		t.Errorf("no-response counter = %d, want 1", got)
	}
	if got := counters.Get(device.CntSlaveMessage); got != 0 {
		t.Errorf("slave message counter = %d, want 0", got)
	}
	events := s.Control().Events()
	if recv, ok := events[0].(device.ReceiveEvent); !ok || !recv.ListenOnly {
		t.Errorf("events[0] = %+v, want ReceiveEvent with ListenOnly", events[0])
	}
}

func TestRestart(t *testing.T) {
	s := newTestSlave()
	s.EnterListenOnly()
	s.Control().Counters().Inc(device.CntBusCommunicationError)

	s.Restart()

	if s.Control().ListenOnly() {
		t.Error("listen-only mode should clear on restart")
	}
	if got := s.Control().Counters().Get(device.CntBusCommunicationError); got != 0 {
		t.Errorf("communication error counter = %d after restart, want 0", got)
	}
	events := s.Control().Events()
	if len(events) != 1 {
		t.Fatalf("event log length = %d after restart, want 1", len(events))
	}
	if _, ok := events[0].(device.CommunicationRestartEvent); !ok {
		t.Errorf("events[0] = %T, want CommunicationRestartEvent", events[0])
	}
}

func TestProcessReadHoldingRegisters(t *testing.T) {
	s := newTestSlave()
	s.model.SetValues(modbus.FuncCodeWriteMultipleRegisters, 10, []uint16{0xAABB, 0xCCDD})

	req := modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeReadHoldingRegisters,
		Data:         []byte{0x00, 0x0A, 0x00, 0x02},
	}
	resp, err := s.Process(req)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	want := []byte{0x04, 0xAA, 0xBB, 0xCC, 0xDD}
	if !bytes.Equal(resp.Data, want) {
		t.Errorf("response data = % 02x, want % 02x", resp.Data, want)
	}
}

func TestProcessReadRegistersQuantityBounds(t *testing.T) {
	s := newTestSlave()
	tests := []struct {
		name     string
		quantity uint16
		wantCode byte
	}{
		{"QuantityZero", 0, modbus.ExceptionCodeIllegalDataValue},
		{"QuantityOverMax", 126, modbus.ExceptionCodeIllegalDataValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := modbus.ProtocolDataUnit{
				FunctionCode: modbus.FuncCodeReadInputRegisters,
				Data:         []byte{0x00, 0x00, byte(tt.quantity >> 8), byte(tt.quantity)},
			}
			resp, err := s.Process(req)
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if code := resp.ExceptionCode(); code != tt.wantCode {
				t.Errorf("exception code = %d, want %d", code, tt.wantCode)
			}
		})
	}
}

func TestProcessReadCoils(t *testing.T) {
	s := newTestSlave()
	s.model.SetValues(modbus.FuncCodeWriteMultipleCoils, 0, []uint16{1, 0, 1, 1, 0, 0, 0, 0, 1})

	req := modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeReadCoils,
		Data:         []byte{0x00, 0x00, 0x00, 0x09},
	}
	resp, err := s.Process(req)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	want := []byte{0x02, 0x0D, 0x01}
	if !bytes.Equal(resp.Data, want) {
		t.Errorf("response data = % 02x, want % 02x", resp.Data, want)
	}
}

func TestProcessWriteSingleCoil(t *testing.T) {
	s := newTestSlave()

	req := modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWriteSingleCoil,
		Data:         []byte{0x00, 0x03, 0xFF, 0x00},
	}
	resp, err := s.Process(req)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !bytes.Equal(resp.Data, req.Data) {
		t.Errorf("response data = % 02x, want echo", resp.Data)
	}
	if v := s.model.GetValues(modbus.FuncCodeReadCoils, 3, 1)[0]; v != 1 {
		t.Errorf("coil 3 = %d, want 1", v)
	}

	bad := modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWriteSingleCoil,
		Data:         []byte{0x00, 0x03, 0x12, 0x34},
	}
	resp, err = s.Process(bad)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if code := resp.ExceptionCode(); code != modbus.ExceptionCodeIllegalDataValue {
		t.Errorf("exception code = %d, want %d", code, modbus.ExceptionCodeIllegalDataValue)
	}
}

func TestProcessWriteMultipleCoilsByteCountMismatch(t *testing.T) {
	s := newTestSlave()
	tests := []struct {
		name string
		data []byte
	}{
		// Quantity 16 needs 2 data bytes; header announces 1 and the
		// body carries 1.
		{"QuantityExceedsBody", []byte{0x00, 0x00, 0x00, 0x10, 0x01, 0xFF}},
		// Header announces 2 data bytes but quantity 8 needs 1.
		{"ByteCountExceedsQuantity", []byte{0x00, 0x00, 0x00, 0x08, 0x02, 0xFF, 0xFF}},
		// Header announces 1 data byte but the body carries 2.
		{"BodyExceedsByteCount", []byte{0x00, 0x00, 0x00, 0x08, 0x01, 0xFF, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := modbus.ProtocolDataUnit{
				FunctionCode: modbus.FuncCodeWriteMultipleCoils,
				Data:         tt.data,
			}
			resp, err := s.Process(req)
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if code := resp.ExceptionCode(); code != modbus.ExceptionCodeIllegalDataValue {
				t.Errorf("exception code = %d, want %d", code, modbus.ExceptionCodeIllegalDataValue)
			}
		})
	}
}

func TestProcessWriteMultipleCoils(t *testing.T) {
	s := newTestSlave()
	req := modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWriteMultipleCoils,
		Data:         []byte{0x00, 0x00, 0x00, 0x0A, 0x02, 0xCD, 0x01},
	}

	resp, err := s.Process(req)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	want := []byte{0x00, 0x00, 0x00, 0x0A}
	if !bytes.Equal(resp.Data, want) {
		t.Fatalf("response data = % 02x, want % 02x", resp.Data, want)
	}

	values := s.model.GetValues(modbus.FuncCodeReadCoils, 0, 10)
	wantBits := []uint16{1, 0, 1, 1, 0, 0, 1, 1, 1, 0}
	for i := range wantBits {
		if values[i] != wantBits[i] {
			t.Errorf("coil %d = %d, want %d", i, values[i], wantBits[i])
		}
	}
}
