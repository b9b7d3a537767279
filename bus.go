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
	"time"
)

// Bus is the master side of a full-duplex serial link. Every Exchange shifts
// one word out and one word in. The master starts every exchange.
type Bus interface {
	// Exchange sends tx and returns the word the slave shifted out during the
	// same exchange. It blocks until the bus reports the received word ready.
	Exchange(tx Word) (Word, error)

	// Close closes the bus
	Close() error

	// SetTimeout bounds how long Exchange waits for the received word
	SetTimeout(timeout time.Duration) error

	// IsConnected returns true if the bus is open
	IsConnected() bool

	// Type returns the bus type
	Type() BusType
}

// BusType represents the kind of link behind a Bus
type BusType string

const (
	// BusSPI is a native SPI master (Linux spidev)
	BusSPI BusType = "spi"
	// BusSerial tunnels words through a USB serial SPI bridge
	BusSerial BusType = "serial"
	// BusWebSocket tunnels words through a networked SPI bridge
	BusWebSocket BusType = "websocket"
	// BusLoopback is an in-process simulated wire
	BusLoopback BusType = "loopback"
	// BusMock is a mock bus for testing
	BusMock BusType = "mock"
)

// Registers is the slave's view of its serial peripheral, the three register
// operations an interrupt handler performs.
type Registers interface {
	// WriteTx preloads the word shifted out on the next exchange
	WriteTx(w Word)
	// ReadRx returns the word received on the exchange that raised the interrupt
	ReadRx() Word
	// ClearPending acknowledges the interrupt. Until it is called no further
	// exchange interrupt is delivered.
	ClearPending()
}
