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

// Package loopback simulates the full-duplex wire between a master and a
// slave in one process.
//
// Every master Exchange swaps the master's word with the slave's shift
// register and raises the slave's exchange interrupt. The interrupt handler
// runs on the goroutine that calls Run, one exchange at a time, so the slave
// state machine sees exactly the ordering it would see on hardware. The next
// exchange waits until the handler has acknowledged the interrupt; a slave
// that never acknowledges makes the master time out.
package loopback

import (
	"context"
	"sync"
	"time"

	spiipc "github.com/ZaparooProject/go-spiipc"
)

const (
	// DefaultTimeout bounds how long an exchange waits for the slave to
	// acknowledge the previous interrupt.
	DefaultTimeout = 100 * time.Millisecond

	portName = "loopback"
)

// Faults counts the faults injected so far
type Faults struct {
	Dropped    uint64 // Interrupts never delivered to the slave
	Duplicated uint64 // Interrupts delivered twice
	Stalls     uint64 // Times the slave stopped servicing interrupts
}

// Link is a simulated bus. It implements spiipc.Bus for the master and
// spiipc.Registers for the slave's interrupt handler.
type Link struct {
	slave *spiipc.Slave

	// irq carries one raised interrupt to Run
	irq chan struct{}
	// ready holds a token while the slave can take another exchange
	ready chan struct{}
	// resume is closed to release a stalled handler
	resume chan struct{}
	done   chan struct{}

	// shift registers, guarded by mu
	txReg spiipc.Word
	rxReg spiipc.Word

	faults        Faults
	timeout       time.Duration
	dropNext      int
	duplicateNext int
	mu            sync.Mutex
	stalled       bool
	closed        bool
	closeOnce     sync.Once
}

// New creates a link to slave and preloads the slave's idle word. Call Run
// before the first exchange.
func New(slave *spiipc.Slave) *Link {
	l := &Link{
		slave:   slave,
		irq:     make(chan struct{}, 1),
		ready:   make(chan struct{}, 1),
		resume:  make(chan struct{}),
		done:    make(chan struct{}),
		timeout: DefaultTimeout,
	}
	slave.Init(l)
	l.ready <- struct{}{}
	return l
}

// Slave returns the slave driven by the link
func (l *Link) Slave() *spiipc.Slave {
	return l.slave
}

// Run services slave interrupts until ctx is done or the link is closed
func (l *Link) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case <-l.irq:
		}

		if err := l.waitWhileStalled(ctx); err != nil {
			return err
		}

		l.mu.Lock()
		duplicate := l.duplicateNext > 0
		if duplicate {
			l.duplicateNext--
			l.faults.Duplicated++
		}
		l.mu.Unlock()

		if duplicate {
			// The master stays held until the second pass acknowledges
			l.slave.ServiceInterrupt(heldLink{l})
		}
		l.slave.ServiceInterrupt(l)
	}
}

// heldLink services an interrupt without acknowledging it
type heldLink struct {
	*Link
}

func (heldLink) ClearPending() {}

func (l *Link) waitWhileStalled(ctx context.Context) error {
	l.mu.Lock()
	stalled := l.stalled
	resume := l.resume
	l.mu.Unlock()

	if !stalled {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return nil
	case <-resume:
		return nil
	}
}

// Exchange implements spiipc.Bus
func (l *Link) Exchange(tx spiipc.Word) (spiipc.Word, error) {
	l.mu.Lock()
	timeout := l.timeout
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return 0, spiipc.NewBusClosedError("exchange", portName)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-l.done:
		return 0, spiipc.NewBusClosedError("exchange", portName)
	case <-timer.C:
		return 0, spiipc.NewTimeoutError("exchange", portName)
	case <-l.ready:
	}

	l.mu.Lock()
	if l.closed {
		// Close won the race for the token
		l.mu.Unlock()
		l.ready <- struct{}{}
		return 0, spiipc.NewBusClosedError("exchange", portName)
	}
	rx := l.txReg
	l.rxReg = tx
	drop := l.dropNext > 0
	if drop {
		l.dropNext--
		l.faults.Dropped++
	}
	l.mu.Unlock()

	if drop {
		// The word was shifted but the slave never saw the interrupt
		l.ready <- struct{}{}
		return rx, nil
	}

	l.irq <- struct{}{}
	return rx, nil
}

// WriteTx implements spiipc.Registers
func (l *Link) WriteTx(w spiipc.Word) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.txReg = w
}

// ReadRx implements spiipc.Registers
func (l *Link) ReadRx() spiipc.Word {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rxReg
}

// ClearPending implements spiipc.Registers
func (l *Link) ClearPending() {
	select {
	case l.ready <- struct{}{}:
	default:
	}
}

// DropNext makes the slave miss the next n interrupts
func (l *Link) DropNext(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropNext += n
}

// DuplicateNext makes the next n interrupts fire twice
func (l *Link) DuplicateNext(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.duplicateNext += n
}

// Stall stops the slave from servicing interrupts until Resume
func (l *Link) Stall() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.stalled {
		l.stalled = true
		l.faults.Stalls++
	}
}

// Resume releases a stalled slave. The interrupt raised while stalled is
// serviced first.
func (l *Link) Resume() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stalled {
		l.stalled = false
		close(l.resume)
		l.resume = make(chan struct{})
	}
}

// Faults returns the faults injected so far
func (l *Link) Faults() Faults {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.faults
}

// Close implements spiipc.Bus. Run returns once the link is closed.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		close(l.done)
	})
	return nil
}

// SetTimeout implements spiipc.Bus
func (l *Link) SetTimeout(timeout time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timeout = timeout
	return nil
}

// IsConnected implements spiipc.Bus
func (l *Link) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.closed
}

// Type implements spiipc.Bus
func (*Link) Type() spiipc.BusType {
	return spiipc.BusLoopback
}
