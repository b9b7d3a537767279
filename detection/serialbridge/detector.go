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

// Package serialbridge detects USB serial SPI bridges. Importing it registers
// the detector.
package serialbridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-spiipc/detection"
	"github.com/ZaparooProject/go-spiipc/transport/bridge"
	"go.bug.st/serial/enumerator"
)

const transportName = "serial"

// knownBridges maps VID:PID to bridge names
var knownBridges = map[string]string{
	"1A86:5512": "CH341",
	"0403:6014": "FT232H",
	"10C4:87A0": "CP2130",
	"2E8A:000A": "RP2040 bridge",
}

type detector struct {
	list  func() ([]*enumerator.PortDetails, error)
	hello func(path string) error
}

// New creates a serial bridge detector
func New() detection.Detector {
	return &detector{list: enumerator.GetDetailedPortsList, hello: helloProbe}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return transportName
}

// Detect enumerates serial ports. Known bridges are reported with high
// confidence. In full mode other USB ports are probed with the bridge hello.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	if opts == nil {
		opts = detection.DefaultOptions()
	}

	ports, err := d.list()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, port := range ports {
		select {
		case <-ctx.Done():
			return devices, detection.ErrDetectionTimeout
		default:
		}

		if device, ok := d.describe(port, opts); ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func (d *detector) describe(port *enumerator.PortDetails, opts *detection.Options) (detection.DeviceInfo, bool) {
	if port == nil || !port.IsUSB || detection.IsPathIgnored(port.Name, opts.IgnorePaths) {
		return detection.DeviceInfo{}, false
	}

	vidpid := detection.FormatVIDPID(port.VID, port.PID)
	if vidpid != "" && detection.IsBlocked(vidpid, opts.Blocklist) {
		debugf("skipping blocked device %s at %s", vidpid, port.Name)
		return detection.DeviceInfo{}, false
	}

	device := detection.DeviceInfo{
		Transport: transportName,
		Path:      port.Name,
		Name:      port.Name,
		Metadata: map[string]string{
			"vidpid": vidpid,
		},
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}
	if product := strings.TrimSpace(port.Product); product != "" {
		device.Name = product
	}

	if name, ok := knownBridges[vidpid]; ok {
		device.Confidence = detection.High
		device.Metadata["bridge"] = name
		if device.Name == port.Name {
			device.Name = name
		}
		return device, true
	}

	if opts.Mode != detection.Full {
		return detection.DeviceInfo{}, false
	}
	device.Confidence = detection.Low
	if err := d.hello(port.Name); err != nil {
		device.Metadata["error"] = err.Error()
		return device, true
	}
	device.Confidence = detection.Medium
	return device, true
}

// helloProbe opens the port and runs the bridge hello exchange
func helloProbe(path string) error {
	t, err := bridge.OpenSerial(path, bridge.DefaultBaudRate, 16)
	if err != nil {
		return err
	}
	return t.Close()
}
