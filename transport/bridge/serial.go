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
	"time"

	spiipc "github.com/ZaparooProject/go-spiipc"
	"github.com/ZaparooProject/go-spiipc/internal/retry"
	"go.bug.st/serial"
)

// DefaultBaudRate is the rate USB bridges are flashed with
const DefaultBaudRate = 921600

// OpenSerial opens a USB serial SPI bridge. A port that is still busy (for
// example while the bridge re-enumerates after a reset) is retried briefly.
func OpenSerial(portName string, baudRate, wordBits int) (*Transport, error) {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := retry.WithRetry(retry.Config{
		Description: "open",
		Port:        portName,
		MaxRetries:  3,
		RetryDelay:  100 * time.Millisecond,
		OnRetry: func(attempt int) {
			debugf("serial port %s busy, retry %d", portName, attempt)
		},
	}, func() (serial.Port, bool, error) {
		p, openErr := serial.Open(portName, mode)
		if openErr == nil {
			return p, false, nil
		}
		var portErr *serial.PortError
		if errors.As(openErr, &portErr) && portErr.Code() == serial.PortBusy {
			return nil, true, nil
		}
		return nil, false, spiipc.NewBusError("open", portName, openErr, spiipc.ErrorTypePermanent)
	})
	if err != nil {
		return nil, err
	}

	// Reads return empty on timeout so the exchange deadline loop stays in charge
	if err := port.SetReadTimeout(pollInterval); err != nil {
		_ = port.Close()
		return nil, spiipc.NewBusError("configure", portName, err, spiipc.ErrorTypePermanent)
	}
	if err := port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return nil, spiipc.NewBusError("configure", portName, err, spiipc.ErrorTypePermanent)
	}

	return New(port, Config{
		PortName: portName,
		Type:     spiipc.BusSerial,
		WordBits: wordBits,
	})
}
