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

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	spiipc "github.com/ZaparooProject/go-spiipc"
	"github.com/ZaparooProject/go-spiipc/detection"
)

// parseWords parses a comma or space separated list of words. Values may be
// decimal or 0x-prefixed hex.
func parseWords(s string, wordBits int) ([]spiipc.Word, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	words := make([]spiipc.Word, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(f, 0, wordBits)
		if err != nil {
			return nil, fmt.Errorf("invalid word %q: %w", f, err)
		}
		words = append(words, spiipc.Word(v))
	}
	return words, nil
}

// counterPayload returns a frame whose words count up from the cycle
// number. Values that collide with the begin sentinel are skipped so the
// frame is always valid.
func counterPayload(cycle, size int, sentinels spiipc.Sentinels, mask spiipc.Word) []spiipc.Word {
	words := make([]spiipc.Word, size)
	v := spiipc.Word(cycle)
	for i := range words {
		v &= mask
		if v == sentinels.Begin {
			v = (v + 1) & mask
		}
		words[i] = v
		v++
	}
	return words
}

func formatWords(words []spiipc.Word, wordBits int) string {
	digits := wordBits / 4
	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%0*X", digits, uint16(w))
	}
	return b.String()
}

func printSnapshot(w io.Writer, snap spiipc.Snapshot, wordBits int) {
	fmt.Fprintf(w, "frame %6d slot %d: %s\n", snap.Sequence, snap.Slot, formatWords(snap.Words, wordBits))
}

func printDevices(w io.Writer, devices []detection.DeviceInfo) {
	for _, d := range devices {
		fmt.Fprintf(w, "%-8s %-24s %-6s %s\n", d.Transport, d.Path, d.Confidence, d.Name)
	}
}
