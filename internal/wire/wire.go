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

// Package wire converts bus words to and from the byte streams used by
// byte-oriented links (spidev in 8-bit mode, serial and WebSocket bridges).
// Words always travel most significant byte first, matching the bit order of
// a 16-bit SPI frame.
package wire

import (
	spiipc "github.com/ZaparooProject/go-spiipc"
)

// HelloByte opens a bridge session. The bridge answers with HelloByte
// followed by the word width it was configured for.
const HelloByte = 0xA5

// Size returns the number of bytes one word occupies on the wire
func Size(wordBits int) int {
	if wordBits == spiipc.WordBits8 {
		return 1
	}
	return 2
}

// PutWord encodes w into b, which must hold at least Size(wordBits) bytes
func PutWord(b []byte, w spiipc.Word, wordBits int) {
	if wordBits == spiipc.WordBits8 {
		b[0] = byte(w)
		return
	}
	b[0] = byte(w >> 8)
	b[1] = byte(w)
}

// GetWord decodes one word from b
func GetWord(b []byte, wordBits int) spiipc.Word {
	if wordBits == spiipc.WordBits8 {
		return spiipc.Word(b[0])
	}
	return spiipc.Word(b[0])<<8 | spiipc.Word(b[1])
}
