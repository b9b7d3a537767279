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

// Package bridge tunnels bus exchanges through a byte stream to an SPI
// bridge: a small adapter board (or a networked gateway) that owns the
// physical SPI master. Each exchange writes one word and reads back the word
// the slave shifted out, MSB first.
//
// A session opens with a hello: the host writes wire.HelloByte and the
// bridge answers wire.HelloByte followed by its word width.
package bridge

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	spiipc "github.com/ZaparooProject/go-spiipc"
	"github.com/ZaparooProject/go-spiipc/internal/retry"
	"github.com/ZaparooProject/go-spiipc/internal/wire"
)

const (
	// DefaultTimeout bounds one exchange round trip through the bridge
	DefaultTimeout = 50 * time.Millisecond

	// pollInterval is how long a single read waits before the deadline loop
	// checks again
	pollInterval = 5 * time.Millisecond
)

// readDeadliner is implemented by network connections
type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// inputResetter is implemented by serial ports
type inputResetter interface {
	ResetInputBuffer() error
}

// Config describes a bridge session
type Config struct {
	PortName string
	Type     spiipc.BusType
	WordBits int
	Timeout  time.Duration
}

// Transport implements spiipc.Bus over a bridge byte stream
type Transport struct {
	conn     io.ReadWriteCloser
	portName string
	busType  spiipc.BusType
	tx       []byte
	rx       []byte
	timeout  time.Duration
	wordBits int
	mu       sync.Mutex
	closed   bool
}

// New performs the hello handshake on conn and returns the bus. conn is
// closed if the handshake fails.
func New(conn io.ReadWriteCloser, cfg Config) (*Transport, error) {
	if cfg.WordBits != spiipc.WordBits8 && cfg.WordBits != spiipc.WordBits16 {
		return nil, fmt.Errorf("%w: word width must be 8 or 16 bits, got %d", spiipc.ErrInvalidConfig, cfg.WordBits)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	size := wire.Size(cfg.WordBits)
	t := &Transport{
		conn:     conn,
		portName: cfg.PortName,
		busType:  cfg.Type,
		wordBits: cfg.WordBits,
		timeout:  cfg.Timeout,
		tx:       make([]byte, size),
		rx:       make([]byte, size),
	}

	if err := t.hello(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	debugf("bridge %s ready, %d-bit words", cfg.PortName, cfg.WordBits)
	return t, nil
}

func (t *Transport) hello() error {
	if _, err := t.conn.Write([]byte{wire.HelloByte}); err != nil {
		return spiipc.NewBusError("hello", t.portName, fmt.Errorf("%w: %w", spiipc.ErrBusWrite, err),
			spiipc.ErrorTypePermanent)
	}

	reply := make([]byte, 2)
	if err := t.readFull(reply, 10*t.timeout); err != nil {
		return fmt.Errorf("bridge did not answer hello: %w", err)
	}
	if reply[0] != wire.HelloByte {
		return spiipc.NewBusError("hello", t.portName,
			fmt.Errorf("%w: unexpected hello reply 0x%02X", spiipc.ErrBusRead, reply[0]), spiipc.ErrorTypePermanent)
	}
	if int(reply[1]) != t.wordBits {
		return fmt.Errorf("%w: bridge uses %d-bit words, expected %d", spiipc.ErrInvalidConfig, reply[1], t.wordBits)
	}
	return nil
}

// Exchange implements spiipc.Bus
func (t *Transport) Exchange(tx spiipc.Word) (spiipc.Word, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, spiipc.NewBusClosedError("exchange", t.portName)
	}

	wire.PutWord(t.tx, tx, t.wordBits)
	if _, err := t.conn.Write(t.tx); err != nil {
		return 0, spiipc.NewBusError("exchange", t.portName,
			fmt.Errorf("%w: %w", spiipc.ErrBusWrite, err), spiipc.ErrorTypeTransient)
	}

	if err := t.readFull(t.rx, t.timeout); err != nil {
		if errors.Is(err, spiipc.ErrBusTimeout) {
			t.resync()
		}
		return 0, err
	}
	return wire.GetWord(t.rx, t.wordBits), nil
}

// readFull fills buf from the stream or fails once timeout has passed
func (t *Transport) readFull(buf []byte, timeout time.Duration) error {
	got := 0
	_, err := retry.TimeoutRetry(timeout, t.portName, func() (struct{}, bool, error) {
		if d, ok := t.conn.(readDeadliner); ok {
			_ = d.SetReadDeadline(time.Now().Add(pollInterval))
		}

		n, err := t.conn.Read(buf[got:])
		got += n
		switch {
		case err == nil:
		case isTimeout(err):
		case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe):
			return struct{}{}, false, spiipc.NewBusClosedError("read", t.portName)
		default:
			return struct{}{}, false, spiipc.NewBusError("read", t.portName,
				fmt.Errorf("%w: %w", spiipc.ErrBusRead, err), spiipc.ErrorTypeTransient)
		}
		return struct{}{}, got < len(buf), nil
	})
	return err
}

// resync discards a reply that may still arrive after a timeout, so the
// next exchange does not read a stale word
func (t *Transport) resync() {
	if r, ok := t.conn.(inputResetter); ok {
		if err := r.ResetInputBuffer(); err != nil {
			debugf("bridge %s: reset input buffer: %v", t.portName, err)
		}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// SetTimeout bounds one exchange round trip
func (t *Transport) SetTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %v", spiipc.ErrInvalidConfig, timeout)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// Close closes the underlying stream
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.conn.Close(); err != nil {
		return fmt.Errorf("failed to close bridge %s: %w", t.portName, err)
	}
	return nil
}

// IsConnected returns true until Close
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Type returns the bus type given at creation
func (t *Transport) Type() spiipc.BusType {
	return t.busType
}
