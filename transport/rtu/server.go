// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package rtu implements the Modbus RTU serial transport of the device.
package rtu

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/grid-x/serial"

	"github.com/pombreda/modbus-device/internal/config"
	"github.com/pombreda/modbus-device/modbus"
	"github.com/pombreda/modbus-device/modbus/crc"
	"github.com/pombreda/modbus-device/transport"
)

// Server implements a Modbus RTU server: it acts as a slave on the serial
// bus, waiting for requests from an external master.
type Server struct {
	Config config.SerialConfig
}

// NewServer creates a new RTU Server.
func NewServer(cfg config.SerialConfig) *Server {
	return &Server{
		Config: cfg,
	}
}

// newPortConfig translates the listener settings into a serial.Config.
func newPortConfig(cfg config.SerialConfig) *serial.Config {
	spConfig := &serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.Timeout, // Read timeout
	}
	if cfg.RS485 {
		spConfig.RS485.Enabled = true
		spConfig.RS485.DelayRtsBeforeSend = cfg.DelayRtsBeforeSend
		spConfig.RS485.DelayRtsAfterSend = cfg.DelayRtsAfterSend
		spConfig.RS485.RtsHighDuringSend = cfg.RtsHighDuringSend
		spConfig.RS485.RtsHighAfterSend = cfg.RtsHighAfterSend
		spConfig.RS485.RxDuringTx = cfg.RxDuringTx
	}
	return spConfig
}

// Start opens the serial port and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, handler transport.RequestHandler) error {
	port, err := serial.Open(newPortConfig(s.Config))
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.Config.Device, err)
	}
	defer port.Close()
	slog.Info("RTU server listening", "device", s.Config.Device)

	go func() {
		<-ctx.Done()
		port.Close()
	}()

	return s.scanLoop(ctx, port, handler)
}

func (s *Server) scanLoop(ctx context.Context, port io.ReadWriteCloser, handler transport.RequestHandler) error {
	buf := make([]byte, rtuMaxSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// Read 1 byte to unblock
		n, err := port.Read(buf[:1])
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		if n == 0 {
			continue
		}

		// Read header (attempt 7 bytes total to cover ByteCount for variable length functions)
		current := 1
		need := 7

		for current < need {
			n, err := port.Read(buf[current:need])
			if err != nil {
				break
			}
			current += n
		}

		if current < 2 {
			continue
		}

		functionCode := buf[1]

		expectedLen, err := calculateRequestLength(functionCode, buf[:current])
		if err != nil {
			// Invalid request or partial read; resynchronize on the next byte.
			continue
		}

		// Read remaining
		for current < expectedLen {
			n, err := port.Read(buf[current:expectedLen])
			if err != nil {
				break
			}
			current += n
		}

		if current != expectedLen {
			continue
		}

		// Verify CRC
		var c crc.CRC
		c.Reset().PushBytes(buf[:expectedLen-2])
		checksum := c.Value()
		receivedChecksum := uint16(buf[expectedLen-1])<<8 | uint16(buf[expectedLen-2])

		if checksum != receivedChecksum {
			// CRC Mismatch
			continue
		}

		// Extract PDU
		slaveID := buf[0]
		pduData := make([]byte, expectedLen-3)
		copy(pduData, buf[1:expectedLen-2])

		// pduData[0] is Code, pduData[1:] is Data
		reqPDU := modbus.ProtocolDataUnit{
			FunctionCode: functionCode,
			Data:         pduData[1:],
		}

		// Dispatch
		go func(sid byte, pdu modbus.ProtocolDataUnit) {
			respPDU, err := handler(ctx, sid, pdu)
			if err != nil {
				// Response suppressed (listen-only mode or not our slave ID).
				slog.Debug("Request consumed without response", "slaveID", sid, "err", err)
				return
			}

			respAdu := &ApplicationDataUnit{SlaveID: sid, Pdu: respPDU}
			respBuf, err := respAdu.Encode()
			if err != nil {
				slog.Error("Failed to encode RTU response", "err", err)
				return
			}

			_, _ = port.Write(respBuf)
		}(slaveID, reqPDU)
	}
}

// calculateRequestLength returns the expected total length of the RTU ADU
func calculateRequestLength(funcCode byte, header []byte) (int, error) {
	// Header should be at least 7 bytes to cover ByteCount for 0x0F/0x10.
	// [SlaveID, Func, Appd1, Appd2, Appd3, Appd4/ByteCount]

	switch funcCode {
	case modbus.FuncCodeReadCoils,
		modbus.FuncCodeReadDiscreteInputs,
		modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeReadInputRegisters,
		modbus.FuncCodeWriteSingleCoil,
		modbus.FuncCodeWriteSingleRegister:
		// Fixed 8 bytes: [SlaveID, Func, Addr(2), Val(2), CRC(2)]
		return 8, nil
	case modbus.FuncCodeWriteMultipleCoils,
		modbus.FuncCodeWriteMultipleRegisters:
		// Req: [SlaveID, Func, Addr(2), Quant(2), ByteCount(1), Data(N), CRC(2)]
		// ByteCount is at Offset 6 (0-indexed) = header[6]

		if len(header) < 7 {
			return 0, fmt.Errorf("need 7 bytes to determine length for 0x%02X, got %d", funcCode, len(header))
		}

		byteCount := int(header[6])
		// Total = 7 (Header up to ByteCount) + N (Data) + 2 (CRC)
		return 7 + byteCount + 2, nil
	default:
		return 0, fmt.Errorf("unsupported function code: 0x%02X", funcCode)
	}
}

// Close is a no-op; the port closes when Start's context is cancelled.
func (s *Server) Close() error {
	return nil
}
