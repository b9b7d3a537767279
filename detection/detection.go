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

// Package detection finds candidate links to a slave: native SPI controllers
// and USB serial SPI bridges. Detectors register themselves on import; see
// detection/spidev and detection/serialbridge.
package detection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Detection errors
var (
	ErrNoDevicesFound      = errors.New("no devices found")
	ErrUnsupportedPlatform = errors.New("detection not supported on this platform")
	ErrDetectionTimeout    = errors.New("detection timed out")
)

// Mode controls how intrusive detection is
type Mode int

const (
	// Passive only lists device nodes, nothing is opened
	Passive Mode = iota
	// Safe opens devices read-only to query their settings
	Safe
	// Full also reports devices that could not be identified
	Full
)

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case Passive:
		return "passive"
	case Safe:
		return "safe"
	case Full:
		return "full"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Confidence rates how likely a device is a usable link
type Confidence int

const (
	Low Confidence = iota
	Medium
	High
)

// String returns the confidence name
func (c Confidence) String() string {
	switch c {
	case High:
		return "high"
	case Medium:
		return "medium"
	default:
		return "low"
	}
}

// DeviceInfo describes a detected device
type DeviceInfo struct {
	Metadata   map[string]string
	Transport  string
	Path       string
	Name       string
	Confidence Confidence
}

// Options configures detection
type Options struct {
	// Blocklist holds VID:PID pairs that must never be opened
	Blocklist []string
	// IgnorePaths holds device paths to skip
	IgnorePaths []string
	Timeout     time.Duration
	Mode        Mode
}

// DefaultOptions returns safe detection with the default blocklist
func DefaultOptions() *Options {
	return &Options{
		Mode:      Safe,
		Timeout:   5 * time.Second,
		Blocklist: DefaultBlocklist(),
	}
}

// Detector finds devices reachable through one kind of transport
type Detector interface {
	// Transport returns the transport name, e.g. "spi"
	Transport() string
	// Detect returns the devices found
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Detector{}
)

// RegisterDetector makes a detector available to DetectAll. Registering the
// same transport twice replaces the earlier detector.
func RegisterDetector(d Detector) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d.Transport()] = d
}

// Detectors returns the registered detectors sorted by transport name
func Detectors() []Detector {
	registryMu.RLock()
	defer registryMu.RUnlock()

	detectors := make([]Detector, 0, len(registry))
	for _, d := range registry {
		detectors = append(detectors, d)
	}
	sort.Slice(detectors, func(i, j int) bool {
		return detectors[i].Transport() < detectors[j].Transport()
	})
	return detectors
}

// DetectAll runs every registered detector
func DetectAll(opts *Options) ([]DeviceInfo, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	return DetectAllContext(ctx, opts)
}

// DetectAllContext runs every registered detector until ctx is done.
// Detectors that are unsupported on this platform or find nothing are
// skipped; the results are ordered by confidence, highest first.
func DetectAllContext(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	var devices []DeviceInfo
	for _, d := range Detectors() {
		select {
		case <-ctx.Done():
			if len(devices) > 0 {
				return devices, nil
			}
			return nil, ErrDetectionTimeout
		default:
		}

		found, err := d.Detect(ctx, opts)
		switch {
		case err == nil:
			devices = append(devices, found...)
		case errors.Is(err, ErrNoDevicesFound), errors.Is(err, ErrUnsupportedPlatform):
		default:
			return devices, fmt.Errorf("%s detection failed: %w", d.Transport(), err)
		}
	}

	if len(devices) == 0 {
		return nil, ErrNoDevicesFound
	}
	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].Confidence > devices[j].Confidence
	})
	return devices, nil
}
