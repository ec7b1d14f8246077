// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import "github.com/pombreda/modbus-device/internal/store"

// MemoryStorage is a no-op storage (non-persistent).
type MemoryStorage struct{}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (ms *MemoryStorage) Load() (*store.DataModel, error) {
	return store.NewDataModel(), nil
}

func (ms *MemoryStorage) Save(m *store.DataModel) error {
	return nil
}

func (ms *MemoryStorage) OnWrite(table store.TableType, address, quantity uint16) {
	// No-op
}
