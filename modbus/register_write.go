// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"encoding/binary"
	"fmt"
)

// MaxWriteRegisters is the largest register block a single
// write-multiple-registers request may carry.
const MaxWriteRegisters = 123

// WriteSingleRegisterRequest writes one holding register in a remote
// device. Registers are addressed starting at zero, so register number 1
// is addressed as 0.
type WriteSingleRegisterRequest struct {
	Address uint16
	Value   uint16
}

// Encode packs the request into its 4-byte wire form.
func (req *WriteSingleRegisterRequest) Encode() []byte {
	raw := make([]byte, 4)
	binary.BigEndian.PutUint16(raw[0:2], req.Address)
	binary.BigEndian.PutUint16(raw[2:4], req.Value)
	return raw
}

// Decode unpacks a 4-byte request body. A buffer of any other length is a
// framing error on the caller's side.
func (req *WriteSingleRegisterRequest) Decode(raw []byte) error {
	if len(raw) != 4 {
		return fmt.Errorf("modbus: write single register request length '%v' must be 4", len(raw))
	}
	req.Address = binary.BigEndian.Uint16(raw[0:2])
	req.Value = binary.BigEndian.Uint16(raw[2:4])
	return nil
}

// Execute runs the write against ds. The response echoes the address and
// the value read back after the write, so any clamping or transformation
// the datastore applies is visible to the requesting master.
func (req *WriteSingleRegisterRequest) Execute(ds Datastore) ProtocolDataUnit {
	// The 0..0xFFFF value range check is carried by the uint16 type.
	if !ds.Validate(FuncCodeWriteSingleRegister, req.Address, 1) {
		return Exception(FuncCodeWriteSingleRegister, ExceptionCodeIllegalDataAddress)
	}
	ds.SetValues(FuncCodeWriteSingleRegister, req.Address, []uint16{req.Value})
	values := ds.GetValues(FuncCodeWriteSingleRegister, req.Address, 1)
	resp := WriteSingleRegisterResponse{Address: req.Address, Value: values[0]}
	return ProtocolDataUnit{
		FunctionCode: FuncCodeWriteSingleRegister,
		Data:         resp.Encode(),
	}
}

func (req *WriteSingleRegisterRequest) String() string {
	return fmt.Sprintf("WriteSingleRegisterRequest %d => %d", req.Address, req.Value)
}

// WriteSingleRegisterResponse is an echo of the request, returned after
// the register contents have been written.
type WriteSingleRegisterResponse struct {
	Address uint16
	Value   uint16
}

// Encode packs the response into its 4-byte wire form, identical in layout
// to the request.
func (resp *WriteSingleRegisterResponse) Encode() []byte {
	raw := make([]byte, 4)
	binary.BigEndian.PutUint16(raw[0:2], resp.Address)
	binary.BigEndian.PutUint16(raw[2:4], resp.Value)
	return raw
}

// Decode unpacks a 4-byte response body.
func (resp *WriteSingleRegisterResponse) Decode(raw []byte) error {
	if len(raw) != 4 {
		return fmt.Errorf("modbus: write single register response length '%v' must be 4", len(raw))
	}
	resp.Address = binary.BigEndian.Uint16(raw[0:2])
	resp.Value = binary.BigEndian.Uint16(raw[2:4])
	return nil
}

// WriteMultipleRegistersRequest writes a block of up to 123 contiguous
// holding registers in a remote device, two bytes per register.
type WriteMultipleRegistersRequest struct {
	Address uint16
	// ByteCount is the header byte announcing the length of the register
	// data. Execute rejects the request when it disagrees with the actual
	// register count.
	ByteCount byte
	Registers []uint16
}

// NewWriteMultipleRegistersRequest returns a request with a zeroed register
// block pre-sized for count registers starting at address.
func NewWriteMultipleRegistersRequest(address uint16, count int) *WriteMultipleRegistersRequest {
	req := &WriteMultipleRegistersRequest{Address: address}
	if count > 0 {
		req.Registers = make([]uint16, count)
		req.ByteCount = byte(count * 2)
	}
	return req
}

// Encode packs the request: address, register count, byte count, then the
// register values, all big-endian.
func (req *WriteMultipleRegistersRequest) Encode() []byte {
	count := len(req.Registers)
	raw := make([]byte, 5+count*2)
	binary.BigEndian.PutUint16(raw[0:2], req.Address)
	binary.BigEndian.PutUint16(raw[2:4], uint16(count))
	raw[4] = byte(count * 2)
	for i, reg := range req.Registers {
		binary.BigEndian.PutUint16(raw[5+i*2:], reg)
	}
	return raw
}

// Decode unpacks the 5-byte header and exactly count registers. The byte
// count is kept as received so that Execute can reject headers that
// disagree with the register data.
func (req *WriteMultipleRegistersRequest) Decode(raw []byte) error {
	if len(raw) < 5 {
		return fmt.Errorf("modbus: write multiple registers request length '%v' does not meet minimum '5'", len(raw))
	}
	req.Address = binary.BigEndian.Uint16(raw[0:2])
	count := binary.BigEndian.Uint16(raw[2:4])
	req.ByteCount = raw[4]
	if len(raw)-5 != int(count)*2 {
		return fmt.Errorf("modbus: write multiple registers request carries %v data bytes, header announces %v registers", len(raw)-5, count)
	}
	req.Registers = make([]uint16, count)
	for i := range req.Registers {
		req.Registers[i] = binary.BigEndian.Uint16(raw[5+i*2:])
	}
	return nil
}

// Execute runs the block write against ds. The range and consistency
// checks come before the datastore validation: a malformed request is
// rejected without consulting the datastore.
func (req *WriteMultipleRegistersRequest) Execute(ds Datastore) ProtocolDataUnit {
	count := len(req.Registers)
	if count < 1 || count > MaxWriteRegisters {
		return Exception(FuncCodeWriteMultipleRegisters, ExceptionCodeIllegalDataValue)
	}
	if int(req.ByteCount) != count*2 {
		return Exception(FuncCodeWriteMultipleRegisters, ExceptionCodeIllegalDataValue)
	}
	if !ds.Validate(FuncCodeWriteMultipleRegisters, req.Address, uint16(count)) {
		return Exception(FuncCodeWriteMultipleRegisters, ExceptionCodeIllegalDataAddress)
	}
	ds.SetValues(FuncCodeWriteMultipleRegisters, req.Address, req.Registers)
	resp := WriteMultipleRegistersResponse{Address: req.Address, Count: uint16(count)}
	return ProtocolDataUnit{
		FunctionCode: FuncCodeWriteMultipleRegisters,
		Data:         resp.Encode(),
	}
}

func (req *WriteMultipleRegistersRequest) String() string {
	return fmt.Sprintf("WriteMultipleRegistersRequest %d => %v", req.Address, req.Registers)
}

// WriteMultipleRegistersResponse confirms the extent of a block write: it
// carries the starting address and the quantity of registers written, not
// the register values themselves.
type WriteMultipleRegistersResponse struct {
	Address uint16
	Count   uint16
}

// Encode packs the response into its 4-byte wire form.
func (resp *WriteMultipleRegistersResponse) Encode() []byte {
	raw := make([]byte, 4)
	binary.BigEndian.PutUint16(raw[0:2], resp.Address)
	binary.BigEndian.PutUint16(raw[2:4], resp.Count)
	return raw
}

// Decode unpacks a 4-byte response body.
func (resp *WriteMultipleRegistersResponse) Decode(raw []byte) error {
	if len(raw) != 4 {
		return fmt.Errorf("modbus: write multiple registers response length '%v' must be 4", len(raw))
	}
	resp.Address = binary.BigEndian.Uint16(raw[0:2])
	resp.Count = binary.BigEndian.Uint16(raw[2:4])
	return nil
}
