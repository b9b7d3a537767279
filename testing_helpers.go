// go-spiipc
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-spiipc.
//
// go-spiipc is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-spiipc is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-spiipc; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package spiipc

import (
	"sync"
	"time"
)

// DirectLink is a Bus wired straight to a Slave in the same goroutine. Each
// Exchange returns the word the slave had preloaded and then runs the
// slave's handler, which is exactly the one-exchange lag of a real
// full-duplex bus. Use transport/loopback for a link with a separate
// interrupt context and fault injection.
type DirectLink struct {
	slave   *Slave
	mu      sync.Mutex
	preload Word
	closed  bool
}

// NewDirectLink creates a link to slave with the slave's idle word preloaded
func NewDirectLink(slave *Slave) *DirectLink {
	return &DirectLink{slave: slave, preload: slave.Preload()}
}

// Exchange implements Bus
func (l *DirectLink) Exchange(tx Word) (Word, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, NewBusClosedError("exchange", "direct")
	}
	rx := l.preload
	l.preload = l.slave.HandleExchange(tx)
	return rx, nil
}

// Close implements Bus
func (l *DirectLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// SetTimeout implements Bus; a direct link never waits
func (*DirectLink) SetTimeout(time.Duration) error {
	return nil
}

// IsConnected implements Bus
func (l *DirectLink) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.closed
}

// Type implements Bus
func (*DirectLink) Type() BusType {
	return BusLoopback
}

// MockBus is a scripted bus. ResponseFunc decides the received word for each
// transmitted word; every transmitted word is recorded.
type MockBus struct {
	ResponseFunc func(tx Word) (Word, error)
	sent         []Word
	mu           sync.Mutex
	closed       bool
}

// NewMockBus creates a mock bus answering every exchange with fn
func NewMockBus(fn func(tx Word) (Word, error)) *MockBus {
	return &MockBus{ResponseFunc: fn}
}

// NewMockBusWithSequence creates a mock bus answering with rx in order and
// Idle-like zero words once the sequence runs out.
func NewMockBusWithSequence(rx ...Word) *MockBus {
	var i int
	return NewMockBus(func(Word) (Word, error) {
		if i >= len(rx) {
			return 0, nil
		}
		w := rx[i]
		i++
		return w, nil
	})
}

// Exchange implements Bus
func (m *MockBus) Exchange(tx Word) (Word, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, NewBusClosedError("exchange", "mock")
	}
	m.sent = append(m.sent, tx)
	if m.ResponseFunc == nil {
		return 0, nil
	}
	return m.ResponseFunc(tx)
}

// Sent returns a copy of every word transmitted so far
func (m *MockBus) Sent() []Word {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Word(nil), m.sent...)
}

// Close implements Bus
func (m *MockBus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SetTimeout implements Bus
func (*MockBus) SetTimeout(time.Duration) error {
	return nil
}

// IsConnected implements Bus
func (m *MockBus) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// Type implements Bus
func (*MockBus) Type() BusType {
	return BusMock
}

// BlockingMockBus is a mock bus whose exchanges block until Unblock is
// called, the timeout expires or the bus is closed. It stands in for a slave
// that is powered down or not servicing its interrupt.
type BlockingMockBus struct {
	blockChan chan struct{}
	Response  Word
	timeout   time.Duration
	mu        sync.Mutex
	closed    bool
}

// NewBlockingMockBus creates a new blocking mock bus
func NewBlockingMockBus() *BlockingMockBus {
	return &BlockingMockBus{
		blockChan: make(chan struct{}),
		timeout:   5 * time.Second,
	}
}

// Exchange blocks until Unblock, timeout or Close
func (m *BlockingMockBus) Exchange(Word) (Word, error) {
	m.mu.Lock()
	blockChan := m.blockChan
	closed := m.closed
	timeout := m.timeout
	m.mu.Unlock()

	if closed {
		return 0, NewBusClosedError("exchange", "mock")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-blockChan:
	case <-timer.C:
		return 0, NewTimeoutError("exchange", "mock")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, NewBusClosedError("exchange", "mock")
	}
	return m.Response, nil
}

// Unblock releases every exchange blocked so far
func (m *BlockingMockBus) Unblock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		close(m.blockChan)
		m.blockChan = make(chan struct{})
	}
}

// Close unblocks all exchanges and marks the bus closed
func (m *BlockingMockBus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.blockChan)
	}
	return nil
}

// SetTimeout bounds how long an exchange blocks
func (m *BlockingMockBus) SetTimeout(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
	return nil
}

// IsConnected implements Bus
func (m *BlockingMockBus) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// Type implements Bus
func (*BlockingMockBus) Type() BusType {
	return BusMock
}
