// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/pombreda/modbus-device/internal/store"
)

// SQLStorage implements persistence using a SQL database with one row per
// non-zero register.
type SQLStorage struct {
	driver string
	dsn    string
	db     *sql.DB
	model  *store.DataModel
}

// NewSQLStorage creates a new SQLStorage.
// Note: The driver (e.g., sqlite3, mysql) must be imported by the program.
func NewSQLStorage(driver, dsn string) *SQLStorage {
	return &SQLStorage{
		driver: driver,
		dsn:    dsn,
	}
}

// Load connects to the DB and loads the data.
func (s *SQLStorage) Load() (*store.DataModel, error) {
	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	s.db = db

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	m := store.NewDataModel()
	s.model = m // OnWrite reads the fresh values back out of the model

	rows, err := db.Query("SELECT table_type, address, value FROM modbus_registers")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to query registers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t int
		var addr, val int
		if err := rows.Scan(&t, &addr, &val); err != nil {
			continue
		}
		if addr > store.MaxAddress {
			continue
		}

		switch store.TableType(t) {
		case store.TableCoils:
			m.Coils[addr] = byte(val)
		case store.TableDiscreteInputs:
			m.DiscreteInputs[addr] = byte(val)
		case store.TableHoldingRegisters:
			m.HoldingRegisters[addr] = uint16(val)
		case store.TableInputRegisters:
			m.InputRegisters[addr] = uint16(val)
		}
	}

	return m, nil
}

func (s *SQLStorage) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS modbus_registers (
		table_type INTEGER,
		address INTEGER,
		value INTEGER,
		PRIMARY KEY (table_type, address)
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Save is a no-op for SQL: OnWrite keeps the database in sync row by row,
// so a full dump would be redundant.
func (s *SQLStorage) Save(m *store.DataModel) error {
	return nil
}

// OnWrite upserts the changed registers to the DB. It is called after the
// model update, so the new values are read back from the model.
func (s *SQLStorage) OnWrite(table store.TableType, address, quantity uint16) {
	if s.db == nil || s.model == nil {
		return
	}

	for i := 0; i < int(quantity); i++ {
		addr := int(address) + i
		var val int64

		switch table {
		case store.TableCoils:
			val = int64(s.model.Coils[addr])
		case store.TableDiscreteInputs:
			val = int64(s.model.DiscreteInputs[addr])
		case store.TableHoldingRegisters:
			val = int64(s.model.HoldingRegisters[addr])
		case store.TableInputRegisters:
			val = int64(s.model.InputRegisters[addr])
		}

		// Upsert (SQLite compatible)
		query := "INSERT INTO modbus_registers (table_type, address, value) VALUES (?, ?, ?) ON CONFLICT(table_type, address) DO UPDATE SET value=excluded.value"
		_, err := s.db.Exec(query, int(table), addr, val)
		if err != nil {
			slog.Error("Failed to persist register", "table", table, "addr", addr, "err", err)
		}
	}
}

func (s *SQLStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
