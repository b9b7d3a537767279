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

// NoFrame is the last-complete slot index before the first cycle completes
const NoFrame = -1

// Snapshot is a consumer-side copy of the last complete frame
type Snapshot struct {
	// Words holds the S payload words of the frame
	Words []Word
	// Sequence counts completed cycles; it is 1 for the first frame
	Sequence uint64
	// Slot is the physical buffer slot the frame was copied from
	Slot int
}

// FramePool is a fixed pool of B frame slots of S words each.
//
// Two roles are tracked: the current slot, which the slave state machine is
// filling, and the last complete slot, which consumers may read. Both are
// derived from a single rotation counter, so current never equals last
// complete. The remaining B-2 slots are headroom: a consumer reading the last
// complete slot has B-1 cycles before the writer comes back around to it.
//
// The pool has exactly one writer (the slave state machine) and any number of
// polling readers. Words are stored atomically so readers never need a lock.
type FramePool struct {
	slots [][]atomic.Uint32
	// seq is the number of completed rotations
	seq   atomic.Uint64
	count int
	size  int
}

// NewFramePool allocates a pool of count slots holding size words each
func NewFramePool(count, size int) (*FramePool, error) {
	if count < MinBufferCount {
		return nil, fmt.Errorf("%w: need at least %d frame buffers, got %d", ErrInvalidConfig, MinBufferCount, count)
	}
	if size < 1 {
		return nil, fmt.Errorf("%w: frame size must be at least 1, got %d", ErrInvalidConfig, size)
	}

	slots := make([][]atomic.Uint32, count)
	for i := range slots {
		slots[i] = make([]atomic.Uint32, size)
	}
	return &FramePool{slots: slots, count: count, size: size}, nil
}

// Count returns B, the number of slots
func (p *FramePool) Count() int {
	return p.count
}

// Size returns S, the number of words per slot
func (p *FramePool) Size() int {
	return p.size
}

// Sequence returns the number of frames completed so far. Consumers poll it
// to learn that a new frame is available.
func (p *FramePool) Sequence() uint64 {
	return p.seq.Load()
}

// Current returns the slot being filled
func (p *FramePool) Current() int {
	return p.currentFor(p.seq.Load())
}

// LastCompleteIndex returns the slot holding the most recent complete frame,
// or NoFrame before the first rotation.
func (p *FramePool) LastCompleteIndex() int {
	return p.lastFor(p.seq.Load())
}

func (p *FramePool) currentFor(seq uint64) int {
	return int(seq % uint64(p.count))
}

func (p *FramePool) lastFor(seq uint64) int {
	if seq == 0 {
		return NoFrame
	}
	return int((seq - 1) % uint64(p.count))
}

// Rotate publishes the current slot as last complete and moves on to the
// next slot modulo B.
func (p *FramePool) Rotate() {
	p.seq.Add(1)
}

// store writes w at offset in the current slot. Offsets outside the frame
// are refused rather than written.
func (p *FramePool) store(offset int, w Word) bool {
	if offset < 0 || offset >= p.size {
		return false
	}
	p.slots[p.Current()][offset].Store(uint32(w))
	return true
}

// ReadLastComplete copies the last complete frame into dst, which must hold
// at least S words. It returns the slot and sequence of the copied frame.
//
// If the writer wrapped around onto the slot while it was being copied the
// copy is reported with ErrSnapshotOverrun.
func (p *FramePool) ReadLastComplete(dst []Word) (slot int, seq uint64, err error) {
	if len(dst) < p.size {
		return NoFrame, 0, &IndexOutOfRangeError{Index: len(dst), Min: p.size, Max: p.size}
	}

	seq = p.seq.Load()
	slot = p.lastFor(seq)
	if slot == NoFrame {
		return NoFrame, 0, ErrNoFrame
	}

	src := p.slots[slot]
	for i := range src {
		dst[i] = Word(src[i].Load())
	}

	if p.overran(seq, p.seq.Load()) {
		return slot, seq, ErrSnapshotOverrun
	}
	return slot, seq, nil
}

// overran reports whether the slot published at sequence from has become
// current again by sequence now, which takes B-1 further rotations.
func (p *FramePool) overran(from, now uint64) bool {
	return now-from >= uint64(p.count-1)
}

// LastComplete returns a copy of the last complete frame
func (p *FramePool) LastComplete() (Snapshot, error) {
	words := make([]Word, p.size)
	slot, seq, err := p.ReadLastComplete(words)
	if err != nil {
		return Snapshot{Slot: slot, Sequence: seq}, err
	}
	return Snapshot{Words: words, Slot: slot, Sequence: seq}, nil
}
