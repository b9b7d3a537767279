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
	"fmt"
	"os"

	"github.com/ZaparooProject/go-spiipc/frameio"
	"github.com/spf13/cobra"
)

var replayTimes bool

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Print a CBOR frame record file",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func init() {
	replayCmd.Flags().BoolVarP(&replayTimes, "times", "t", false, "Print capture times")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open record file: %w", err)
	}
	defer func() { _ = f.Close() }()

	out := cmd.OutOrStdout()
	count := 0
	err = frameio.NewReplay(f).ForEach(func(r frameio.Record) error {
		if replayTimes {
			fmt.Fprintf(out, "%s ", r.CapturedAt().Format("15:04:05.000000"))
		}
		printSnapshot(out, r.Snapshot(), wordBits)
		count++
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d frames\n", count)
	return nil
}
