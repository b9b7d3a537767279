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
	"fmt"
	"sync/atomic"
)

// Phase is the position of the slave within a transfer cycle
type Phase uint8

const (
	// PhaseAwaitingBegin is protocol index 1: the master is expected to
	// announce a cycle with Begin.
	PhaseAwaitingBegin Phase = iota
	// PhaseIndexHandshakeConsumed is protocol index 2: Begin has been seen
	// and the next data word lands at offset 0.
	PhaseIndexHandshakeConsumed
	// PhaseReceivingData is protocol index offset+2 for offsets 1..S-1
	PhaseReceivingData
	// PhaseCycleComplete is transient: the last word has been stored and the
	// slots rotate before the handler returns.
	PhaseCycleComplete
)

// String returns a readable name for the phase
func (p Phase) String() string {
	switch p {
	case PhaseAwaitingBegin:
		return "awaiting-begin"
	case PhaseIndexHandshakeConsumed:
		return "handshake-consumed"
	case PhaseReceivingData:
		return "receiving-data"
	case PhaseCycleComplete:
		return "cycle-complete"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// SlaveCounters is a point-in-time copy of the slave's counters
type SlaveCounters struct {
	Exchanges        uint64 // Interrupts serviced
	Cycles           uint64 // Frames completed and rotated
	Begins           uint64 // Begin words received
	MidCycleBegins   uint64 // Begin words received outside PhaseAwaitingBegin
	OutOfRangeWrites uint64 // Data words with no legal offset, dropped
	Resyncs          uint64 // Cycles dropped after a mid-cycle Begin
}

// SlaveOption configures a Slave
type SlaveOption func(*Slave)

// WithResyncOnBegin makes a Begin received mid-cycle abandon the cycle.
// The index keeps stepping as usual, since the requests already shifted out
// still name the old offsets, but the frame is dropped at the cycle end
// instead of published and the slot is reused. The master sees the early End
// and retries from a clean reset.
func WithResyncOnBegin(enabled bool) SlaveOption {
	return func(s *Slave) {
		s.resyncOnBegin = enabled
	}
}

// Slave is the control-side reception state machine. It is driven once per
// bus exchange by ServiceInterrupt (or HandleExchange) and writes incoming
// frames into its FramePool.
//
// The handler never blocks, never allocates and never returns an error:
// anomalies are counted and the machine realigns at the next cycle reset.
// Phase and Index read unsynchronised state and must only be called from the
// goroutine servicing interrupts, or while it is idle.
type Slave struct {
	pool      *FramePool
	sentinels Sentinels
	frameSize int

	phase  Phase
	offset int

	resyncOnBegin bool
	abandoned     bool

	exchanges        atomic.Uint64
	cycles           atomic.Uint64
	begins           atomic.Uint64
	midCycleBegins   atomic.Uint64
	outOfRangeWrites atomic.Uint64
	resyncs          atomic.Uint64
}

// NewSlave creates a slave state machine and its frame pool
func NewSlave(cfg BusConfig, opts ...SlaveOption) (*Slave, error) {
	if cfg.Role != RoleSlave {
		return nil, fmt.Errorf("%w: slave needs role %q, got %q", ErrInvalidConfig, RoleSlave, cfg.Role)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool, err := NewFramePool(cfg.BufferCount, cfg.FrameSize)
	if err != nil {
		return nil, err
	}

	s := &Slave{
		pool:      pool,
		sentinels: cfg.Sentinels,
		frameSize: cfg.FrameSize,
		phase:     PhaseAwaitingBegin,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Pool returns the frame pool the slave writes into
func (s *Slave) Pool() *FramePool {
	return s.pool
}

// Phase returns the current cycle phase
func (s *Slave) Phase() Phase {
	return s.phase
}

// Index returns the protocol index, 1..S+1 between interrupts
func (s *Slave) Index() int {
	switch s.phase {
	case PhaseAwaitingBegin:
		return 1
	case PhaseIndexHandshakeConsumed:
		return 2
	case PhaseReceivingData:
		return s.offset + 2
	default:
		return s.frameSize + 2
	}
}

// Preload returns the word to load into the transmit register before
// interrupts are enabled, so the first exchange shifts out a defined value.
func (s *Slave) Preload() Word {
	return s.sentinels.Idle
}

// Init preloads the idle word. Call it once before enabling the exchange
// interrupt.
func (s *Slave) Init(reg Registers) {
	reg.WriteTx(s.Preload())
}

// ServiceInterrupt is the exchange interrupt handler. The outbound word for
// the next exchange is queued before the received word is read, and the
// interrupt is acknowledged last.
func (s *Slave) ServiceInterrupt(reg Registers) {
	reg.WriteTx(s.outbound())
	s.receive(reg.ReadRx())
	reg.ClearPending()
}

// HandleExchange is ServiceInterrupt without a register file: it consumes the
// received word and returns the word to shift out on the next exchange.
func (s *Slave) HandleExchange(rx Word) Word {
	tx := s.outbound()
	s.receive(rx)
	return tx
}

// Counters returns a copy of the slave's counters. Safe to call from any
// goroutine.
func (s *Slave) Counters() SlaveCounters {
	return SlaveCounters{
		Exchanges:        s.exchanges.Load(),
		Cycles:           s.cycles.Load(),
		Begins:           s.begins.Load(),
		MidCycleBegins:   s.midCycleBegins.Load(),
		OutOfRangeWrites: s.outOfRangeWrites.Load(),
		Resyncs:          s.resyncs.Load(),
	}
}

func (s *Slave) outbound() Word {
	return requestFor(s.Index(), s.frameSize, s.sentinels)
}

func (s *Slave) receive(rx Word) {
	s.exchanges.Add(1)

	if rx == s.sentinels.Begin {
		s.begins.Add(1)
		if s.phase != PhaseAwaitingBegin {
			s.midCycleBegins.Add(1)
			if s.resyncOnBegin {
				s.abandoned = true
			}
		}
	} else if !s.pool.store(s.dataOffset(), rx) {
		// Raw data before Begin: the master is trusted, the index still moves
		s.outOfRangeWrites.Add(1)
	}

	s.advance()

	if s.phase == PhaseCycleComplete {
		if s.abandoned {
			s.abandoned = false
			s.resyncs.Add(1)
		} else {
			s.pool.Rotate()
			s.cycles.Add(1)
		}
		s.phase = PhaseAwaitingBegin
		s.offset = 0
	}
}

// dataOffset returns the frame offset a data word received now belongs to,
// or -1 when the current step carries no data.
func (s *Slave) dataOffset() int {
	switch s.phase {
	case PhaseIndexHandshakeConsumed:
		return 0
	case PhaseReceivingData:
		return s.offset
	default:
		return -1
	}
}

func (s *Slave) advance() {
	switch s.phase {
	case PhaseAwaitingBegin:
		s.phase = PhaseIndexHandshakeConsumed
	case PhaseIndexHandshakeConsumed:
		s.enterData(1)
	case PhaseReceivingData:
		s.enterData(s.offset + 1)
	case PhaseCycleComplete:
	}
}

func (s *Slave) enterData(offset int) {
	if offset < s.frameSize {
		s.phase = PhaseReceivingData
		s.offset = offset
		return
	}
	s.phase = PhaseCycleComplete
}
