// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package modbus holds the transport-independent protocol types: the
// ProtocolDataUnit, function and exception codes, and the typed
// register-write request/response messages executed against a Datastore.
package modbus

// ProtocolDataUnit is the function-code tagged payload of a Modbus message,
// independent of transport framing (MBAP header, slave address, CRC).
type ProtocolDataUnit struct {
	FunctionCode byte
	Data         []byte
}

// Function codes.
const (
	FuncCodeReadCoils              = 0x01
	FuncCodeReadDiscreteInputs     = 0x02
	FuncCodeReadHoldingRegisters   = 0x03
	FuncCodeReadInputRegisters     = 0x04
	FuncCodeWriteSingleCoil        = 0x05
	FuncCodeWriteSingleRegister    = 0x06
	FuncCodeWriteMultipleCoils     = 0x0F
	FuncCodeWriteMultipleRegisters = 0x10
	FuncCodeMaskWriteRegister      = 0x16

	FuncCodeReadWriteMultipleRegisters = 0x17
	FuncCodeReadFIFOQueue              = 0x18
	FuncCodeReadDeviceIdentification   = 0x2B
)

// Exception codes carried in the single data byte of an exception response.
const (
	ExceptionCodeIllegalFunction        = 0x01
	ExceptionCodeIllegalDataAddress     = 0x02
	ExceptionCodeIllegalDataValue       = 0x03
	ExceptionCodeSlaveDeviceFailure     = 0x04
	ExceptionCodeAcknowledge            = 0x05
	ExceptionCodeSlaveDeviceBusy        = 0x06
	ExceptionCodeMemoryParityError      = 0x08
	ExceptionCodeGatewayPathUnavailable = 0x0A
	ExceptionCodeGatewayTargetFailed    = 0x0B
)

// exceptionBit marks a function code as an exception response on the wire.
const exceptionBit = 0x80

// Exception builds an exception response PDU for the given function code.
func Exception(funcCode byte, code byte) ProtocolDataUnit {
	return ProtocolDataUnit{
		FunctionCode: funcCode | exceptionBit,
		Data:         []byte{code},
	}
}

// IsException reports whether pdu is an exception response.
func (pdu ProtocolDataUnit) IsException() bool {
	return pdu.FunctionCode&exceptionBit != 0
}

// ExceptionCode returns the exception code carried by pdu, or 0 if pdu is
// not an exception response.
func (pdu ProtocolDataUnit) ExceptionCode() byte {
	if !pdu.IsException() || len(pdu.Data) < 1 {
		return 0
	}
	return pdu.Data[0]
}

// Datastore is the external component holding the actual register values.
// Execute consults and mutates it; a Datastore is supplied per call and is
// never retained by a request.
type Datastore interface {
	// Validate reports whether the address range [address, address+count)
	// is writable/readable for the given function code.
	Validate(funcCode byte, address, count uint16) bool
	// SetValues writes values starting at address.
	SetValues(funcCode byte, address uint16, values []uint16)
	// GetValues reads count values starting at address.
	GetValues(funcCode byte, address, count uint16) []uint16
}

// Request is a decoded request PDU that can run against a datastore,
// producing either a normal response PDU or an exception response.
type Request interface {
	Encode() []byte
	Decode(raw []byte) error
	Execute(ds Datastore) ProtocolDataUnit
}
