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
)

// Word is one data unit exchanged on the bus. Buses configured for 8-bit
// transfers only use the low byte.
type Word uint16

// Word widths supported by the peripheral.
const (
	WordBits8  = 8
	WordBits16 = 16
)

// Sentinels holds the reserved words that carry protocol meaning.
//
// Begin travels master to slave and announces a new cycle. End travels slave
// to master and tells the master the cycle is done. Idle is what the slave
// shifts out when it has nothing to request; the master reads it as index 0.
type Sentinels struct {
	Begin Word
	End   Word
	Idle  Word
}

// DefaultSentinels returns the sentinel set for the given word width.
func DefaultSentinels(wordBits int) Sentinels {
	if wordBits == WordBits8 {
		return Sentinels{Begin: 0xFE, End: 0xFD, Idle: 0x00}
	}
	return Sentinels{Begin: 0xFFFE, End: 0xFFFD, Idle: 0x0000}
}

// WordMask returns the mask of legal bits for a word width.
func WordMask(wordBits int) Word {
	if wordBits == WordBits8 {
		return 0x00FF
	}
	return 0xFFFF
}

// Validate checks that the sentinels are distinct, fit the word width and
// cannot be confused with an index the slave emits for a frame of frameSize.
func (s Sentinels) Validate(wordBits, frameSize int) error {
	mask := WordMask(wordBits)
	for name, w := range map[string]Word{"begin": s.Begin, "end": s.End, "idle": s.Idle} {
		if w&^mask != 0 {
			return fmt.Errorf("%w: %s sentinel 0x%04X exceeds %d-bit word", ErrInvalidConfig, name, w, wordBits)
		}
	}
	if s.Begin == s.End || s.Begin == s.Idle || s.End == s.Idle {
		return fmt.Errorf("%w: sentinels must be distinct (begin=0x%04X end=0x%04X idle=0x%04X)",
			ErrInvalidConfig, s.Begin, s.End, s.Idle)
	}

	// The slave requests indices 1..S-1 on the wire
	for _, w := range []Word{s.Begin, s.End, s.Idle} {
		if int(w) >= 1 && int(w) <= frameSize-1 {
			return fmt.Errorf("%w: sentinel 0x%04X collides with frame index range 1..%d",
				ErrInvalidConfig, w, frameSize-1)
		}
	}
	return nil
}

// ValidatePayload checks that payload is exactly one frame of legal words.
// Begin is the only sentinel the slave interprets on receive, so it is the
// only value a payload may not carry.
func ValidatePayload(payload []Word, sentinels Sentinels, wordBits, frameSize int) error {
	if len(payload) != frameSize {
		return fmt.Errorf("%w: got %d words, frame size is %d", ErrInvalidPayload, len(payload), frameSize)
	}
	mask := WordMask(wordBits)
	for i, w := range payload {
		if w&^mask != 0 {
			return fmt.Errorf("%w: word %d (0x%04X) exceeds %d-bit width", ErrInvalidPayload, i, w, wordBits)
		}
		if w == sentinels.Begin {
			return fmt.Errorf("%w: word %d equals the begin sentinel 0x%04X", ErrInvalidPayload, i, w)
		}
	}
	return nil
}

// requestFor returns the word the slave shifts out while sitting at the
// given protocol index: the index itself while data is still expected, End
// on the last data step and Idle once the cycle has nothing left to ask for.
func requestFor(index, frameSize int, s Sentinels) Word {
	switch {
	case index < frameSize:
		return Word(index)
	case index == frameSize:
		return s.End
	default:
		return s.Idle
	}
}
