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
	"bytes"
	"path/filepath"
	"testing"

	spiipc "github.com/ZaparooProject/go-spiipc"
	"github.com/ZaparooProject/go-spiipc/detection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWords(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		want     []spiipc.Word
		wordBits int
		wantErr  bool
	}{
		{name: "decimal", input: "10,20,30,40", wordBits: 16, want: []spiipc.Word{10, 20, 30, 40}},
		{name: "hex and spaces", input: "0x1 0xFFFF, 7", wordBits: 16, want: []spiipc.Word{1, 0xFFFF, 7}},
		{name: "too wide for 8 bits", input: "0x100", wordBits: 8, wantErr: true},
		{name: "not a number", input: "1,two", wordBits: 16, wantErr: true},
		{name: "empty", input: "", wordBits: 16, want: []spiipc.Word{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseWords(tt.input, tt.wordBits)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCounterPayload_SkipsBegin(t *testing.T) {
	t.Parallel()
	sentinels := spiipc.DefaultSentinels(spiipc.WordBits8)
	payload := counterPayload(0xFC, 4, sentinels, spiipc.WordMask(spiipc.WordBits8))

	assert.Equal(t, []spiipc.Word{0xFC, 0xFD, 0xFF, 0x00}, payload)
	require.NoError(t, spiipc.ValidatePayload(payload, sentinels, spiipc.WordBits8, 4))
}

func TestFormatWords(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "000A FFFD", formatWords([]spiipc.Word{10, 0xFFFD}, 16))
	assert.Equal(t, "0A FD", formatWords([]spiipc.Word{10, 0xFD}, 8))
}

func TestParseMode(t *testing.T) {
	t.Parallel()
	mode, err := parseMode("passive")
	require.NoError(t, err)
	assert.Equal(t, detection.Passive, mode)

	_, err = parseMode("aggressive")
	require.Error(t, err)
}

func TestPrintDevices(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	printDevices(&buf, []detection.DeviceInfo{
		{Transport: "spi", Path: "/dev/spidev0.0", Name: "SPI bus 0 chip select 0", Confidence: detection.High},
	})
	assert.Contains(t, buf.String(), "/dev/spidev0.0")
	assert.Contains(t, buf.String(), "high")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

//nolint:paralleltest // commands share global flag state
func TestSimThenReplay(t *testing.T) {
	record := filepath.Join(t.TempDir(), "frames.cbor")

	out, err := execute(t, "sim", "--frame-size", "4", "-n", "3", "--interval", "5ms",
		"--record", record, "-q")
	require.NoError(t, err)
	assert.Contains(t, out, "master: cycles=3")
	assert.Contains(t, out, "recorded")

	out, err = execute(t, "replay", record, "--frame-size", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "frame")
	assert.Contains(t, out, "frames\n")
}

//nolint:paralleltest // commands share global flag state
func TestSimWithFaults(t *testing.T) {
	out, err := execute(t, "sim", "--frame-size", "4", "-n", "4", "--interval", "0",
		"--drop-every", "2", "-q", "--record", "")
	require.NoError(t, err)
	assert.Contains(t, out, "master: cycles=4")
	assert.Contains(t, out, "faults: dropped=2")
}

//nolint:paralleltest // commands share global flag state
func TestSend_NoLink(t *testing.T) {
	_, err := execute(t, "send", "--frame-size", "4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no link selected")
}

//nolint:paralleltest // commands share global flag state
func TestSend_InvalidWords(t *testing.T) {
	_, err := execute(t, "send", "--frame-size", "4", "--words", "1,2,3", "--port", "/dev/null")
	require.ErrorIs(t, err, spiipc.ErrInvalidPayload)
}

//nolint:paralleltest // commands share global flag state
func TestReplay_MissingFile(t *testing.T) {
	_, err := execute(t, "replay", filepath.Join(t.TempDir(), "missing.cbor"))
	require.Error(t, err)
}
