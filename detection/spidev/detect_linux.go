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

//go:build linux

package spidev

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const supported = true

// spidev ioctl requests, _IOR('k', n, __u32)
const (
	spiIocRdMaxSpeedHz = 0x80046B04
	spiIocRdMode32     = 0x80046B05
)

// probeDevice opens the node read-only and queries its settings
func probeDevice(path string) (settings, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return settings{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = unix.Close(fd) }()

	mode, err := unix.IoctlGetUint32(fd, spiIocRdMode32)
	if err != nil {
		return settings{}, fmt.Errorf("read mode of %s: %w", path, err)
	}
	speed, err := unix.IoctlGetUint32(fd, spiIocRdMaxSpeedHz)
	if err != nil {
		return settings{}, fmt.Errorf("read max speed of %s: %w", path, err)
	}
	return settings{Mode: mode, MaxSpeed: speed}, nil
}
