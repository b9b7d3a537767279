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
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	spiipc "github.com/ZaparooProject/go-spiipc"
	"github.com/ZaparooProject/go-spiipc/transport/bridge"
	"github.com/ZaparooProject/go-spiipc/transport/spi"
	"github.com/spf13/cobra"
)

var (
	sendSPI      string
	sendPort     string
	sendBaud     int
	sendURL      string
	sendWords    string
	sendCount    int
	sendInterval time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send frames to a slave",
	Long: `Send frames to a slave over a native SPI controller (--spi), a USB serial
bridge (--port) or a networked bridge (--url).

With --words every frame carries the given words, otherwise counting frames
are sent.`,
	RunE: runSend,
}

func init() {
	flags := sendCmd.Flags()
	flags.StringVar(&sendSPI, "spi", "", "spidev device or periph port name")
	flags.StringVarP(&sendPort, "port", "p", "", "Serial bridge device")
	flags.IntVarP(&sendBaud, "baud", "b", bridge.DefaultBaudRate, "Serial bridge baud rate")
	flags.StringVarP(&sendURL, "url", "u", "", "WebSocket bridge URL (ws:// or wss://)")
	flags.StringVarP(&sendWords, "words", "w", "", "Frame words, comma separated (decimal or 0x hex)")
	flags.IntVarP(&sendCount, "count", "n", 1, "Frames to send")
	flags.DurationVar(&sendInterval, "interval", 0, "Delay between frames")
	sendCmd.MarkFlagsMutuallyExclusive("spi", "port", "url")
	rootCmd.AddCommand(sendCmd)
}

// openBus opens the link selected by the send flags
func openBus(ctx context.Context, cfg spiipc.BusConfig) (spiipc.Bus, error) {
	switch {
	case sendSPI != "":
		return spi.New(sendSPI, cfg)
	case sendPort != "":
		return bridge.OpenSerial(sendPort, sendBaud, cfg.WordBits)
	case sendURL != "":
		return bridge.DialWebSocket(ctx, sendURL, http.Header{}, cfg.WordBits)
	default:
		return nil, errors.New("no link selected: use --spi, --port or --url")
	}
}

func runSend(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cfg, err := busConfig(spiipc.RoleMaster)
	if err != nil {
		return err
	}

	var fixed []spiipc.Word
	if sendWords != "" {
		if fixed, err = parseWords(sendWords, cfg.WordBits); err != nil {
			return err
		}
		if err := spiipc.ValidatePayload(fixed, cfg.Sentinels, cfg.WordBits, cfg.FrameSize); err != nil {
			return err
		}
	}

	bus, err := openBus(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = bus.Close() }()

	master, err := spiipc.NewMaster(bus, cfg, masterOptions()...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	mask := spiipc.WordMask(cfg.WordBits)
	for cycle := 0; cycle < sendCount; cycle++ {
		payload := fixed
		if payload == nil {
			payload = counterPayload(cycle, cfg.FrameSize, cfg.Sentinels, mask)
		}

		result, err := master.Send(ctx, payload)
		if err != nil {
			return fmt.Errorf("frame %d: %w", cycle, err)
		}
		fmt.Fprintf(out, "frame %d sent in %v (%d attempts)\n", cycle, result.Duration, result.Attempts)

		if sendInterval > 0 && cycle+1 < sendCount {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sendInterval):
			}
		}
	}

	fmt.Fprintln(out, master.Statistics().Report(nil).String())
	return nil
}
