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

/*
Package spiipc implements an inter-processor channel over a synchronous
serial bus between a bus master (sensor processor) and a bus slave (control
processor).

Every exchange on the bus is full duplex: the master shifts one word out and
receives the word the slave preloaded during the previous exchange. The
protocol uses that to let the slave steer the transfer. A cycle looks like
this for a frame of S words:

	master sends:    Begin   p[0]   p[1]   ...  p[S-1]
	master receives: Idle    1      2      ...  End

The master opens with Begin, then answers every index it receives with the
matching payload word until the slave says End. The slave stores the words
at offsets 0..S-1 of its current frame buffer and rotates its buffers at the
end of the cycle, publishing the finished frame to consumers.

Features:
  - Slave reception state machine with explicit phases, driven once per
    exchange from an interrupt handler (or its hosted equivalent)
  - Frame pool of B slots with lock-free single-writer polling readers
  - Master send routine with per-exchange timeouts and retry with backoff
  - Buses: Linux spidev, serial and WebSocket SPI bridges, in-process loopback
  - Frame monitoring, CBOR recording and MQTT publishing of received frames

Basic Usage:

	import (
	    "github.com/ZaparooProject/go-spiipc"
	    "github.com/ZaparooProject/go-spiipc/transport/spi"
	)

	cfg := spiipc.DefaultMasterConfig()
	bus, err := spi.New("/dev/spidev0.0", cfg)
	if err != nil {
	    log.Fatal(err)
	}
	defer bus.Close()

	master, err := spiipc.NewMaster(bus, cfg,
	    spiipc.WithTimeout(5*time.Millisecond),
	    spiipc.WithMaxRetries(5),
	)
	if err != nil {
	    log.Fatal(err)
	}

	payload := make([]spiipc.Word, cfg.FrameSize)
	// ... fill payload ...
	if _, err := master.Send(ctx, payload); err != nil {
	    log.Fatal(err)
	}

On the slave side, call Slave.Init once and Slave.ServiceInterrupt from the
exchange interrupt. Consumers poll Slave.Pool().LastComplete().

Error Handling:

	if errors.Is(err, spiipc.ErrTimeout) {
	    // slave not answering
	}
	if errors.Is(err, spiipc.ErrIndexOutOfRange) {
	    // slave out of step with the master
	}

Thread Safety:

Master is not thread-safe. Slave is driven from a single interrupt context;
its FramePool and counters may be read from any goroutine.
*/
package spiipc
