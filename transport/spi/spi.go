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

// Package spi provides the master bus on a native SPI controller (Linux
// spidev through periph.io)
package spi

import (
	"fmt"
	"io"
	"sync"
	"time"

	spiipc "github.com/ZaparooProject/go-spiipc"
	"github.com/ZaparooProject/go-spiipc/internal/wire"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// txer is the part of spi.Conn an exchange needs
type txer interface {
	Tx(w, r []byte) error
}

// Transport implements spiipc.Bus on an SPI controller. Words are clocked
// MSB first; a 16-bit word is sent as two bytes under one chip select, which
// is the same frame a 16-bit peripheral shifts.
type Transport struct {
	conn     txer
	port     io.Closer
	portName string
	tx       []byte
	rx       []byte
	wordBits int
	mu       sync.Mutex
}

// New opens portName (for example "/dev/spidev0.0" or "SPI0.0") as bus master
// with the clock, mode and word width from cfg
func New(portName string, cfg spiipc.BusConfig) (*Transport, error) {
	if cfg.Role != spiipc.RoleMaster {
		return nil, fmt.Errorf("%w: spi transport drives the master end", spiipc.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, spiipc.NewBusError("open", portName, err, spiipc.ErrorTypePermanent)
	}

	freq := physic.Frequency(cfg.ClockHz) * physic.Hertz
	conn, err := port.Connect(freq, spi.Mode(cfg.SPIMode()), 8)
	if err != nil {
		_ = port.Close()
		return nil, spiipc.NewBusError("connect", portName, err, spiipc.ErrorTypePermanent)
	}

	debugf("opened %s at %v mode %d, %d-bit words", portName, freq, cfg.SPIMode(), cfg.WordBits)
	return newTransport(conn, port, portName, cfg.WordBits), nil
}

func newTransport(conn txer, port io.Closer, portName string, wordBits int) *Transport {
	size := wire.Size(wordBits)
	return &Transport{
		conn:     conn,
		port:     port,
		portName: portName,
		wordBits: wordBits,
		tx:       make([]byte, size),
		rx:       make([]byte, size),
	}
}

// Exchange implements spiipc.Bus. The controller clocks the whole word
// synchronously, so the exchange itself never waits on the slave.
func (t *Transport) Exchange(tx spiipc.Word) (spiipc.Word, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return 0, spiipc.NewBusClosedError("exchange", t.portName)
	}

	wire.PutWord(t.tx, tx, t.wordBits)
	if err := t.conn.Tx(t.tx, t.rx); err != nil {
		return 0, spiipc.NewBusError("exchange", t.portName,
			fmt.Errorf("%w: %w", spiipc.ErrBusWrite, err), spiipc.ErrorTypeTransient)
	}
	return wire.GetWord(t.rx, t.wordBits), nil
}

// SetTimeout implements spiipc.Bus. The timeout is ignored: spidev clocks
// each word synchronously and the master bounds exchanges through the
// context adapter.
func (*Transport) SetTimeout(time.Duration) error {
	return nil
}

// Close releases the SPI port
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.conn = nil
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return fmt.Errorf("failed to close %s: %w", t.portName, err)
	}
	return nil
}

// IsConnected returns true if the port is open
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Type returns the bus type
func (*Transport) Type() spiipc.BusType {
	return spiipc.BusSPI
}
