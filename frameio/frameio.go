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

// Package frameio stores frame snapshots as a stream of CBOR records.
//
// Each record is a CBOR map with small integer keys:
//
//	1: sequence (uint)
//	2: slot (int)
//	3: words (array of uint)
//	4: capture time, Unix nanoseconds (int)
//
// A record file is simply records written back to back.
package frameio

import (
	"errors"
	"fmt"
	"io"
	"time"

	spiipc "github.com/ZaparooProject/go-spiipc"
	"github.com/fxamacker/cbor/v2"
)

// ErrMalformedRecord is returned for records that decode but make no sense
var ErrMalformedRecord = errors.New("malformed frame record")

// Record is one captured frame
type Record struct {
	Words    []spiipc.Word `cbor:"3,keyasint"`
	Sequence uint64        `cbor:"1,keyasint"`
	Slot     int           `cbor:"2,keyasint"`
	Time     int64         `cbor:"4,keyasint,omitempty"`
}

// NewRecord captures snap at time at
func NewRecord(snap spiipc.Snapshot, at time.Time) Record {
	words := make([]spiipc.Word, len(snap.Words))
	copy(words, snap.Words)
	return Record{
		Sequence: snap.Sequence,
		Slot:     snap.Slot,
		Words:    words,
		Time:     at.UnixNano(),
	}
}

// Snapshot converts the record back to a snapshot
func (r Record) Snapshot() spiipc.Snapshot {
	return spiipc.Snapshot{Words: r.Words, Sequence: r.Sequence, Slot: r.Slot}
}

// CapturedAt returns the capture time, or the zero time if none was stored
func (r Record) CapturedAt() time.Time {
	if r.Time == 0 {
		return time.Time{}
	}
	return time.Unix(0, r.Time)
}

func (r Record) validate() error {
	if r.Sequence == 0 {
		return fmt.Errorf("%w: sequence 0", ErrMalformedRecord)
	}
	if r.Slot < 0 {
		return fmt.Errorf("%w: slot %d", ErrMalformedRecord, r.Slot)
	}
	if len(r.Words) == 0 {
		return fmt.Errorf("%w: no words", ErrMalformedRecord)
	}
	return nil
}

var encMode = func() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// Marshal encodes a single record
func Marshal(r Record) ([]byte, error) {
	data, err := encMode.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame record: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a single record
func Unmarshal(data []byte) (Record, error) {
	var r Record
	if err := cbor.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("failed to decode frame record: %w", err)
	}
	if err := r.validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Recorder appends records to a stream
type Recorder struct {
	enc   *cbor.Encoder
	now   func() time.Time
	count int
}

// NewRecorder creates a recorder writing to w
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{enc: encMode.NewEncoder(w), now: time.Now}
}

// Record writes snap as the next record
func (r *Recorder) Record(snap spiipc.Snapshot) error {
	if err := r.enc.Encode(NewRecord(snap, r.now())); err != nil {
		return fmt.Errorf("failed to write frame record: %w", err)
	}
	r.count++
	return nil
}

// Count returns the number of records written
func (r *Recorder) Count() int {
	return r.count
}

// Replay reads records back from a stream
type Replay struct {
	dec *cbor.Decoder
}

// NewReplay creates a replay reading from rd
func NewReplay(rd io.Reader) *Replay {
	return &Replay{dec: cbor.NewDecoder(rd)}
}

// Next returns the next record, or io.EOF after the last one
func (p *Replay) Next() (Record, error) {
	var r Record
	if err := p.dec.Decode(&r); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("failed to read frame record: %w", err)
	}
	if err := r.validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// ForEach calls fn for every remaining record
func (p *Replay) ForEach(fn func(Record) error) error {
	for {
		r, err := p.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
}
