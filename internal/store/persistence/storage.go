// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package persistence provides pluggable backends for keeping the device's
// register data across restarts.
package persistence

import (
	"github.com/pombreda/modbus-device/internal/store"
)

// Storage defines the interface for persisting the register data model.
type Storage interface {
	// Load loads the data model from storage. If no data exists it
	// returns a fresh zeroed model.
	Load() (*store.DataModel, error)

	// Save saves the current data model to storage.
	Save(m *store.DataModel) error

	// OnWrite is a hook called whenever a register range is modified,
	// allowing the backend to perform real-time persistence.
	OnWrite(table store.TableType, address, quantity uint16)
}
