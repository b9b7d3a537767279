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

// Package spidev detects native SPI controllers exposed through the Linux
// spidev driver. Importing it registers the detector.
package spidev

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/ZaparooProject/go-spiipc/detection"
)

const (
	transportName = "spi"
	devicePattern = "/dev/spidev*.*"
)

// settings holds what a probe read back from the controller
type settings struct {
	Mode     uint32
	MaxSpeed uint32
}

type detector struct {
	probe   func(path string) (settings, error)
	pattern string
}

// New creates a spidev detector
func New() detection.Detector {
	return &detector{pattern: devicePattern, probe: probeDevice}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return transportName
}

// Detect lists spidev nodes. Outside passive mode each node is opened to
// read its current mode and clock limit.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	if !supported {
		return nil, detection.ErrUnsupportedPlatform
	}
	if opts == nil {
		opts = detection.DefaultOptions()
	}

	matches, err := filepath.Glob(d.pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to scan for spidev nodes: %w", err)
	}

	devices := make([]detection.DeviceInfo, 0, len(matches))
	for _, path := range matches {
		select {
		case <-ctx.Done():
			return devices, detection.ErrDetectionTimeout
		default:
		}

		device, ok := d.describe(path, opts)
		if ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func (d *detector) describe(path string, opts *detection.Options) (detection.DeviceInfo, bool) {
	if detection.IsPathIgnored(path, opts.IgnorePaths) {
		return detection.DeviceInfo{}, false
	}

	var bus, chipSelect int
	if _, err := fmt.Sscanf(filepath.Base(path), "spidev%d.%d", &bus, &chipSelect); err != nil {
		return detection.DeviceInfo{}, false
	}

	device := detection.DeviceInfo{
		Transport:  transportName,
		Path:       path,
		Name:       fmt.Sprintf("SPI bus %d chip select %d", bus, chipSelect),
		Confidence: detection.Medium,
		Metadata: map[string]string{
			"bus":         strconv.Itoa(bus),
			"chip_select": strconv.Itoa(chipSelect),
		},
	}
	if opts.Mode == detection.Passive {
		return device, true
	}

	s, err := d.probe(path)
	if err != nil {
		// Usually a permissions problem; only full mode reports it
		if opts.Mode != detection.Full {
			return detection.DeviceInfo{}, false
		}
		device.Confidence = detection.Low
		device.Metadata["error"] = err.Error()
		return device, true
	}

	device.Confidence = detection.High
	device.Metadata["mode"] = strconv.FormatUint(uint64(s.Mode&0x3), 10)
	device.Metadata["max_speed_hz"] = strconv.FormatUint(uint64(s.MaxSpeed), 10)
	return device, true
}
