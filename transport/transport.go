// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"

	"github.com/pombreda/modbus-device/modbus"
)

// RequestHandler handles a Modbus request/response cycle. The transport
// strips its framing (MBAP header or slave address and CRC), hands the
// bare PDU with the addressed slave ID to the handler, and frames the
// returned PDU as the response. A handler error suppresses the response.
type RequestHandler func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error)

// Server is a transport front-end accepting requests from masters.
type Server interface {
	// Start starts the server and blocks. It should be called in a
	// goroutine and returns when ctx is cancelled.
	Start(ctx context.Context, handler RequestHandler) error
	Close() error
}
