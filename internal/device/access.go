// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package device implements the server-side control state of a Modbus
// node: the network access table, device identification, diagnostic
// counters and the control block tying them together. One instance of
// each exists per running node and is shared by every request path.
package device

import "sync"

// DefaultAllowedHost seeds every new access table.
const DefaultAllowedHost = "127.0.0.1"

// AccessControl is a network management table controlling which peers may
// talk to the server. A host present in the table is allowed access;
// connections from unknown hosts are simply closed.
type AccessControl struct {
	mu    sync.RWMutex
	hosts []string
	index map[string]struct{}
}

// NewAccessControl returns a table containing only the loopback address.
func NewAccessControl() *AccessControl {
	ac := &AccessControl{index: make(map[string]struct{})}
	ac.Add(DefaultAllowedHost)
	return ac
}

// Add inserts hosts into the table. Hosts already present are ignored.
func (ac *AccessControl) Add(hosts ...string) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	for _, h := range hosts {
		if _, ok := ac.index[h]; ok {
			continue
		}
		ac.index[h] = struct{}{}
		ac.hosts = append(ac.hosts, h)
	}
}

// Remove deletes hosts from the table. Absent hosts are ignored.
func (ac *AccessControl) Remove(hosts ...string) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	for _, h := range hosts {
		if _, ok := ac.index[h]; !ok {
			continue
		}
		delete(ac.index, h)
		for i, known := range ac.hosts {
			if known == h {
				ac.hosts = append(ac.hosts[:i], ac.hosts[i+1:]...)
				break
			}
		}
	}
}

// Check reports whether host is allowed to access the server.
func (ac *AccessControl) Check(host string) bool {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	_, ok := ac.index[host]
	return ok
}

// Hosts returns a snapshot of the table. Callers must treat the result as
// a set; the ordering is not part of the contract.
func (ac *AccessControl) Hosts() []string {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	out := make([]string, len(ac.hosts))
	copy(out, ac.hosts)
	return out
}
