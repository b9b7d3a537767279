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

package bridge

import (
	"errors"
	"fmt"
	"io"
	"net"

	spiipc "github.com/ZaparooProject/go-spiipc"
	"github.com/ZaparooProject/go-spiipc/internal/wire"
)

// Serve runs the bridge end of a session with slave standing in for the
// SPI peripheral: it answers the hello, then for every word received writes
// back the word the slave had preloaded and runs the slave's handler. It
// returns nil when the stream ends and is used to emulate bridge firmware.
func Serve(conn io.ReadWriter, slave *spiipc.Slave, wordBits int) error {
	size := wire.Size(wordBits)
	hello := make([]byte, 1)
	if _, err := io.ReadFull(conn, hello); err != nil {
		return endOfStream(err)
	}
	if hello[0] != wire.HelloByte {
		return fmt.Errorf("%w: expected hello, got 0x%02X", spiipc.ErrBusRead, hello[0])
	}
	if _, err := conn.Write([]byte{wire.HelloByte, byte(wordBits)}); err != nil {
		return endOfStream(err)
	}

	preload := slave.Preload()
	in := make([]byte, size)
	out := make([]byte, size)
	for {
		if _, err := io.ReadFull(conn, in); err != nil {
			return endOfStream(err)
		}
		wire.PutWord(out, preload, wordBits)
		if _, err := conn.Write(out); err != nil {
			return endOfStream(err)
		}
		preload = slave.HandleExchange(wire.GetWord(in, wordBits))
	}
}

func endOfStream(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
