// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/pombreda/modbus-device/internal/device"
	"github.com/pombreda/modbus-device/transport"
)

// Server implements a Modbus TCP server serving the local device.
type Server struct {
	Address string
	Handler transport.RequestHandler

	// Access, when set, is consulted for every inbound connection;
	// connections from hosts not in the table are closed immediately.
	Access *device.AccessControl

	listener net.Listener
}

// NewServer creates a new TCP Server guarded by the given access table.
func NewServer(address string, access *device.AccessControl) *Server {
	return &Server{
		Address: address,
		Access:  access,
	}
}

// Start starts the TCP server.
func (s *Server) Start(ctx context.Context, handler transport.RequestHandler) error {
	s.Handler = handler
	listener, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Address, err)
	}
	s.listener = listener
	slog.Info("Modbus TCP server listening", "addr", listener.Addr())

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Check if closed
			select {
			case <-ctx.Done():
				return nil
			default:
				slog.Error("Failed to accept connection", "err", err)
				continue
			}
		}

		if !s.allowed(conn) {
			slog.Warn("Rejecting connection from unknown host", "addr", conn.RemoteAddr())
			conn.Close()
			continue
		}

		go s.handleConnection(ctx, conn)
	}
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close closes the server listener.
func (s *Server) Close() error {
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *Server) allowed(conn net.Conn) bool {
	if s.Access == nil {
		return true
	}
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return false
	}
	return s.Access.Check(host)
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	slog.Info("New TCP client connected", "addr", conn.RemoteAddr())

	for {
		// Check context
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Read the 6-byte MBAP header, then exactly the announced
		// payload; requests may arrive split across TCP segments.
		header := make([]byte, 6)
		if _, err := io.ReadFull(conn, header); err != nil {
			if err == io.EOF {
				slog.Info("TCP client disconnected gracefully", "addr", conn.RemoteAddr())
			} else {
				slog.Error("Failed to read from connection", "addr", conn.RemoteAddr(), "err", err)
			}
			return
		}

		// Length covers slave ID + PDU; max MODBUS TCP ADU = 260 bytes.
		length := int(header[4])<<8 | int(header[5])
		if length < 2 || length > tcpMaxSize-6 {
			slog.Error("Invalid request length", "length", length)
			return
		}

		frame := make([]byte, 6+length)
		copy(frame, header)
		if _, err := io.ReadFull(conn, frame[6:]); err != nil {
			slog.Error("Failed to read request body", "addr", conn.RemoteAddr(), "err", err)
			return
		}

		adu, err := Decode(frame)
		if err != nil {
			slog.Error("Failed to decode TCP request", "err", err)
			continue
		}

		if s.Handler == nil {
			slog.Error("No handler defined for TCP server")
			return
		}

		respPdu, err := s.Handler(ctx, adu.SlaveID, adu.Pdu)
		if err != nil {
			// Response suppressed (listen-only mode or not our slave ID).
			slog.Debug("Request consumed without response", "slaveID", adu.SlaveID, "err", err)
			continue
		}

		// Construct Response ADU
		respAdu := &ApplicationDataUnit{
			TransactionID: adu.TransactionID,
			ProtocolID:    adu.ProtocolID,
			Length:        uint16(1 + 1 + len(respPdu.Data)), // SlaveID + FunctionCode + Data
			SlaveID:       adu.SlaveID,
			Pdu:           respPdu,
		}

		respRaw, err := respAdu.Encode()
		if err != nil {
			slog.Error("Failed to encode TCP response", "err", err)
			continue
		}

		_, err = conn.Write(respRaw)
		if err != nil {
			slog.Error("Failed to write response to connection", "err", err)
			return
		}
	}
}
