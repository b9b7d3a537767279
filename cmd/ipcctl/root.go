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
	"flag"
	"fmt"
	"time"

	spiipc "github.com/ZaparooProject/go-spiipc"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

var (
	frameSize   int
	bufferCount int
	wordBits    int
	clockHz     int64
	spiMode     int
	timeout     time.Duration
	maxAttempts int
)

var rootCmd = &cobra.Command{
	Use:   "ipcctl",
	Short: "SPI inter-processor link tool",
	Long: `ipcctl sends frames over an SPI inter-processor link and inspects what
arrives on the other end.

Links:
  Simulated: ipcctl sim
  Native:    ipcctl send --spi /dev/spidev0.0
  Serial:    ipcctl send --port /dev/ttyACM0
  WebSocket: ipcctl send --url ws://host/spi

Both ends must agree on --frame-size and --word-bits. Logging uses glog; pass
-v=2 for protocol tracing.`,
	SilenceUsage: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		// glog complains unless the go flag set has been parsed
		if err := flag.CommandLine.Parse(nil); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		glog.Flush()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.IntVarP(&frameSize, "frame-size", "s", spiipc.DefaultFrameSize, "Payload words per cycle")
	flags.IntVar(&bufferCount, "buffers", spiipc.DefaultBufferCount, "Frame slots on the slave")
	flags.IntVar(&wordBits, "word-bits", spiipc.WordBits16, "Transfer width, 8 or 16")
	flags.Int64Var(&clockHz, "clock", spiipc.DefaultClockHz, "Serial clock rate in Hz")
	flags.IntVar(&spiMode, "mode", 0, "SPI mode 0-3")
	flags.DurationVar(&timeout, "timeout", spiipc.DefaultExchangeTimeout, "Per-exchange timeout")
	flags.IntVar(&maxAttempts, "attempts", spiipc.DefaultRetryConfig().MaxAttempts, "Send attempts per frame")
	flags.AddGoFlagSet(flag.CommandLine)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// busConfig builds the link configuration for role from the global flags
func busConfig(role spiipc.Role) (spiipc.BusConfig, error) {
	cfg := spiipc.DefaultMasterConfig()
	if role == spiipc.RoleSlave {
		cfg = spiipc.DefaultSlaveConfig()
	}
	cfg.FrameSize = frameSize
	cfg.BufferCount = bufferCount
	cfg.WordBits = wordBits
	cfg.Sentinels = spiipc.DefaultSentinels(wordBits)
	cfg.ClockHz = clockHz
	if spiMode < 0 || spiMode > 3 {
		return cfg, fmt.Errorf("%w: SPI mode must be 0-3, got %d", spiipc.ErrInvalidConfig, spiMode)
	}
	cfg.ClockPolarity = spiMode >> 1
	cfg.ClockPhase = spiMode & 1
	return cfg, cfg.Validate()
}

// masterOptions returns the master options selected by the global flags
func masterOptions() []spiipc.Option {
	return []spiipc.Option{
		spiipc.WithTimeout(timeout),
		spiipc.WithMaxRetries(maxAttempts),
	}
}
