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

package detection

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDetector struct {
	err       error
	transport string
	devices   []DeviceInfo
}

func (s *stubDetector) Transport() string { return s.transport }

func (s *stubDetector) Detect(context.Context, *Options) ([]DeviceInfo, error) {
	return s.devices, s.err
}

// withRegistry swaps the global registry for the duration of a test. Tests
// using it must not run in parallel with each other.
func withRegistry(t *testing.T, detectors ...Detector) {
	t.Helper()
	registryMu.Lock()
	saved := registry
	registry = map[string]Detector{}
	registryMu.Unlock()

	for _, d := range detectors {
		RegisterDetector(d)
	}
	t.Cleanup(func() {
		registryMu.Lock()
		registry = saved
		registryMu.Unlock()
	})
}

//nolint:paralleltest // mutates the global registry
func TestDetectAllContext_MergesAndSorts(t *testing.T) {
	withRegistry(t,
		&stubDetector{transport: "serial", devices: []DeviceInfo{{Path: "/dev/ttyACM0", Confidence: Low}}},
		&stubDetector{transport: "spi", devices: []DeviceInfo{{Path: "/dev/spidev0.0", Confidence: High}}},
		&stubDetector{transport: "i2c", err: ErrUnsupportedPlatform},
	)

	devices, err := DetectAllContext(context.Background(), DefaultOptions())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "/dev/spidev0.0", devices[0].Path)
	assert.Equal(t, "/dev/ttyACM0", devices[1].Path)
}

//nolint:paralleltest // mutates the global registry
func TestDetectAllContext_NothingFound(t *testing.T) {
	withRegistry(t, &stubDetector{transport: "spi", err: ErrNoDevicesFound})

	_, err := DetectAll(nil)
	require.ErrorIs(t, err, ErrNoDevicesFound)
}

//nolint:paralleltest // mutates the global registry
func TestDetectAllContext_DetectorFailure(t *testing.T) {
	boom := errors.New("permission denied")
	withRegistry(t, &stubDetector{transport: "spi", err: boom})

	_, err := DetectAllContext(context.Background(), nil)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "spi detection failed")
}

//nolint:paralleltest // mutates the global registry
func TestDetectAllContext_Cancelled(t *testing.T) {
	withRegistry(t, &stubDetector{transport: "spi", devices: []DeviceInfo{{Path: "/dev/spidev0.0"}}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DetectAllContext(ctx, nil)
	require.ErrorIs(t, err, ErrDetectionTimeout)
}

//nolint:paralleltest // mutates the global registry
func TestRegisterDetector_Replaces(t *testing.T) {
	withRegistry(t,
		&stubDetector{transport: "spi", err: ErrNoDevicesFound},
		&stubDetector{transport: "spi", devices: []DeviceInfo{{Path: "/dev/spidev1.0"}}},
	)

	require.Len(t, Detectors(), 1)
	devices, err := DetectAllContext(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "/dev/spidev1.0", devices[0].Path)
}

func TestDefaultOptions(t *testing.T) {
	t.Parallel()
	opts := DefaultOptions()
	assert.Equal(t, Safe, opts.Mode)
	assert.Nil(t, opts.IgnorePaths)
	assert.NotEmpty(t, opts.Blocklist)
}

func TestModeAndConfidenceStrings(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "passive", Passive.String())
	assert.Equal(t, "full", Full.String())
	assert.Equal(t, "mode(7)", Mode(7).String())
	assert.Equal(t, "high", High.String())
	assert.Equal(t, "low", Low.String())
}
