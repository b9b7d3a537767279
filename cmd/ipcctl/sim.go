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
	"fmt"
	"os"
	"os/signal"
	"time"

	spiipc "github.com/ZaparooProject/go-spiipc"
	"github.com/ZaparooProject/go-spiipc/monitor"
	"github.com/ZaparooProject/go-spiipc/transport/loopback"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

var (
	simCycles         int
	simInterval       time.Duration
	simResync         bool
	simDropEvery      int
	simDuplicateEvery int
	simRecord         string
	simBroker         string
	simQuiet          bool
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run a master and slave over a simulated link",
	Long: `Run a master and a slave in one process joined by a simulated wire.

The master sends counting frames; a monitor follows the slave's frame pool and
prints every new frame. Faults can be injected to watch the link recover:
--drop-every makes the slave miss an interrupt, --duplicate-every makes one
fire twice.

Received frames can be written to a CBOR record file (--record) and published
to an MQTT broker (--mqtt mqtt://host:1883/prefix).`,
	RunE: runSim,
}

func init() {
	flags := simCmd.Flags()
	flags.IntVarP(&simCycles, "cycles", "n", 10, "Frames to send")
	flags.DurationVar(&simInterval, "interval", 10*time.Millisecond, "Delay between frames")
	flags.BoolVar(&simResync, "resync", false, "Drop a cycle interrupted by a begin word instead of publishing it")
	flags.IntVar(&simDropEvery, "drop-every", 0, "Drop one slave interrupt every N frames")
	flags.IntVar(&simDuplicateEvery, "duplicate-every", 0, "Duplicate one slave interrupt every N frames")
	flags.StringVar(&simRecord, "record", "", "Write received frames to a CBOR record file")
	flags.StringVar(&simBroker, "mqtt", "", "Publish received frames to this MQTT broker URL")
	flags.BoolVarP(&simQuiet, "quiet", "q", false, "Do not print frames")
	rootCmd.AddCommand(simCmd)
}

func runSim(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	slaveCfg, err := busConfig(spiipc.RoleSlave)
	if err != nil {
		return err
	}
	masterCfg, err := busConfig(spiipc.RoleMaster)
	if err != nil {
		return err
	}

	slave, err := spiipc.NewSlave(slaveCfg, spiipc.WithResyncOnBegin(simResync))
	if err != nil {
		return err
	}
	link := loopback.New(slave)
	defer func() { _ = link.Close() }()

	linkCtx, cancelLink := context.WithCancel(ctx)
	linkDone := make(chan error, 1)
	go func() { linkDone <- link.Run(linkCtx) }()
	defer func() {
		cancelLink()
		<-linkDone
	}()

	master, err := spiipc.NewMaster(link, masterCfg, masterOptions()...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	sink, err := newFrameSink(out, simRecord, simBroker, simQuiet)
	if err != nil {
		return err
	}

	mon := monitor.New(slave.Pool(), &monitor.Config{
		PollInterval: time.Millisecond,
		IdleInterval: 50 * time.Millisecond,
		IdleAfter:    time.Second,
	})
	mon.OnFrame = sink.OnFrame
	monCtx, cancelMon := context.WithCancel(ctx)
	monDone := make(chan error, 1)
	go func() { monDone <- mon.Run(monCtx) }()

	sendErr := simulate(ctx, master, link, masterCfg)

	// Give the slave a moment to finish the last cycle, then catch it
	time.Sleep(5 * time.Millisecond)
	cancelMon()
	<-monDone
	if _, err := mon.Poll(); err != nil {
		glog.Warningf("frame callback failed: %v", err)
	}

	counters := slave.Counters()
	fmt.Fprintln(out, master.Statistics().Report(&counters).String())
	faults := link.Faults()
	metrics := mon.Metrics()
	fmt.Fprintf(out, "faults: dropped=%d duplicated=%d\n", faults.Dropped, faults.Duplicated)
	fmt.Fprintf(out, "monitor: frames=%d missed=%d overruns=%d\n", metrics.Frames, metrics.Missed, metrics.Overruns)

	if err := sink.Close(); err != nil {
		return err
	}
	return sendErr
}

func simulate(ctx context.Context, master *spiipc.Master, link *loopback.Link, cfg spiipc.BusConfig) error {
	mask := spiipc.WordMask(cfg.WordBits)
	failures := 0
	for cycle := 0; cycle < simCycles; cycle++ {
		if simDropEvery > 0 && cycle%simDropEvery == simDropEvery-1 {
			link.DropNext(1)
		}
		if simDuplicateEvery > 0 && cycle%simDuplicateEvery == simDuplicateEvery-1 {
			link.DuplicateNext(1)
		}

		payload := counterPayload(cycle, cfg.FrameSize, cfg.Sentinels, mask)
		result, err := master.Send(ctx, payload)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			glog.Warningf("frame %d failed: %v", cycle, err)
		} else if result.Attempts > 1 {
			debugf("frame %d needed %d attempts", cycle, result.Attempts)
		}

		if simInterval > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(simInterval):
			}
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d frames failed", failures, simCycles)
	}
	return nil
}

func debugf(format string, args ...any) {
	glog.V(2).Infof(format, args...)
}
