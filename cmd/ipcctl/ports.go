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

	"github.com/ZaparooProject/go-spiipc/detection"
	// Import all detectors to register them
	_ "github.com/ZaparooProject/go-spiipc/detection/serialbridge"
	_ "github.com/ZaparooProject/go-spiipc/detection/spidev"
	"github.com/spf13/cobra"
)

var (
	portsMode   string
	portsIgnore []string
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List candidate links",
	Long: `List native SPI controllers and USB SPI bridges.

Modes:
  passive  only list device nodes
  safe     also open them read-only to query their settings (default)
  full     also report and probe devices that could not be identified`,
	RunE: runPorts,
}

func init() {
	portsCmd.Flags().StringVar(&portsMode, "detect", "safe", "Detection mode: passive, safe or full")
	portsCmd.Flags().StringSliceVar(&portsIgnore, "ignore", nil, "Device paths to skip")
	rootCmd.AddCommand(portsCmd)
}

func parseMode(s string) (detection.Mode, error) {
	for _, m := range []detection.Mode{detection.Passive, detection.Safe, detection.Full} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown detection mode %q", s)
}

func runPorts(cmd *cobra.Command, _ []string) error {
	mode, err := parseMode(portsMode)
	if err != nil {
		return err
	}
	opts := detection.DefaultOptions()
	opts.Mode = mode
	opts.IgnorePaths = portsIgnore

	devices, err := detection.DetectAllContext(cmd.Context(), opts)
	if err != nil {
		return err
	}
	printDevices(cmd.OutOrStdout(), devices)
	return nil
}
