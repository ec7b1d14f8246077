// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/pombreda/modbus-device/internal/device"
	"github.com/pombreda/modbus-device/modbus"
)

func TestADURoundTrip(t *testing.T) {
	adu := &ApplicationDataUnit{
		TransactionID: 0x0102,
		ProtocolID:    0,
		Length:        6,
		SlaveID:       1,
		Pdu: modbus.ProtocolDataUnit{
			FunctionCode: modbus.FuncCodeWriteSingleRegister,
			Data:         []byte{0x00, 0x10, 0x12, 0x34},
		},
	}

	raw, err := adu.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := []byte{0x01, 0x02, 0x00, 0x00, 0x00, 0x06, 0x01, 0x06, 0x00, 0x10, 0x12, 0x34}
	if !bytes.Equal(raw, want) {
		t.Fatalf("Encode() = % 02x, want % 02x", raw, want)
	}

	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.TransactionID != adu.TransactionID || got.SlaveID != adu.SlaveID ||
		got.Pdu.FunctionCode != adu.Pdu.FunctionCode || !bytes.Equal(got.Pdu.Data, adu.Pdu.Data) {
		t.Errorf("Decode() = %+v, want %+v", got, adu)
	}
}

func TestADUDecodeTooShort(t *testing.T) {
	if _, err := Decode([]byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x02, 0x01}); err == nil {
		t.Error("Decode() of 7 bytes should fail")
	}
}

func TestADUVerifyTransactionID(t *testing.T) {
	req := &ApplicationDataUnit{TransactionID: 5}
	if err := req.Verify(&ApplicationDataUnit{TransactionID: 5}); err != nil {
		t.Errorf("Verify() error = %v, want nil", err)
	}
	if err := req.Verify(&ApplicationDataUnit{TransactionID: 6}); err == nil {
		t.Error("Verify() should reject a mismatched transaction id")
	}
}

// startServer runs srv in the background and waits for it to bind.
func startServer(t *testing.T, srv *Server, handler func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error)) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go srv.Start(ctx, handler)

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("server did not bind in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return srv.Addr().String()
}

func TestServerRoundTrip(t *testing.T) {
	srv := NewServer("127.0.0.1:0", device.NewAccessControl())
	addr := startServer(t, srv, func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
		req := &modbus.WriteSingleRegisterRequest{}
		if err := req.Decode(pdu.Data); err != nil {
			return modbus.Exception(pdu.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
		}
		return pdu, nil
	})

	client := NewClient(addr)
	client.Timeout = 2 * time.Second

	reqPdu := modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWriteSingleRegister,
		Data:         []byte{0x00, 0x10, 0x12, 0x34},
	}
	resp, err := client.Send(context.Background(), 1, reqPdu)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp.FunctionCode != reqPdu.FunctionCode || !bytes.Equal(resp.Data, reqPdu.Data) {
		t.Errorf("response = %+v, want echo of %+v", resp, reqPdu)
	}
}

func TestServerReassemblesSplitFrame(t *testing.T) {
	srv := NewServer("127.0.0.1:0", device.NewAccessControl())
	addr := startServer(t, srv, func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
		return pdu, nil
	})

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	frame := []byte{0x00, 0x07, 0x00, 0x00, 0x00, 0x06, 0x01, 0x06, 0x00, 0x10, 0x12, 0x34}
	if _, err := conn.Write(frame[:4]); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, err := conn.Write(frame[4:]); err != nil {
		t.Fatal(err)
	}

	resp := make([]byte, len(frame))
	if _, err := io.ReadFull(conn, resp); err != nil {
		t.Fatalf("reading response: %v", err)
	}
	if !bytes.Equal(resp[6:], frame[6:]) {
		t.Errorf("response payload = % 02x, want echo % 02x", resp[6:], frame[6:])
	}
	if !bytes.Equal(resp[0:2], frame[0:2]) {
		t.Errorf("response transaction id = % 02x, want % 02x", resp[0:2], frame[0:2])
	}
}

func TestServerSuppressedResponse(t *testing.T) {
	srv := NewServer("127.0.0.1:0", device.NewAccessControl())
	addr := startServer(t, srv, func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
		return modbus.ProtocolDataUnit{}, errors.New("not our slave id")
	})

	client := NewClient(addr)
	client.Timeout = 500 * time.Millisecond

	_, err := client.Send(context.Background(), 9, modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeReadHoldingRegisters,
		Data:         []byte{0x00, 0x00, 0x00, 0x01},
	})
	if err == nil {
		t.Fatal("Send() should time out when the server suppresses the response")
	}
}

func TestServerRejectsUnknownHost(t *testing.T) {
	access := device.NewAccessControl()
	access.Remove(device.DefaultAllowedHost)

	srv := NewServer("127.0.0.1:0", access)
	addr := startServer(t, srv, func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
		return pdu, nil
	})

	client := NewClient(addr)
	client.Timeout = 2 * time.Second

	_, err := client.Send(context.Background(), 1, modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeReadHoldingRegisters,
		Data:         []byte{0x00, 0x00, 0x00, 0x01},
	})
	if err == nil {
		t.Fatal("Send() should fail when the client host is not in the access table")
	}
}
