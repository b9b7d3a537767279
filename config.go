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

package spiipc

import (
	"fmt"
)

// Role selects which end of the bus a peripheral drives
type Role string

const (
	// RoleMaster drives the clock and starts every exchange (sensor side)
	RoleMaster Role = "master"
	// RoleSlave answers exchanges from its interrupt handler (control side)
	RoleSlave Role = "slave"
)

// Defaults shared by both ends of the link
const (
	DefaultClockHz           = 10_000_000
	DefaultFrameSize         = 32
	DefaultBufferCount       = 3
	DefaultInterruptPriority = 6
	MinBufferCount           = 3
	maxInterruptPriority     = 7
)

// BusConfig describes how a peripheral is set up. Both ends must agree on
// everything except Role and InterruptPriority.
type BusConfig struct {
	Sentinels Sentinels
	Role      Role
	// ClockHz is the serial clock rate
	ClockHz int64
	// WordBits is the transfer width, 8 or 16
	WordBits int
	// ClockPolarity is the idle level of the clock (CPOL)
	ClockPolarity int
	// ClockPhase selects the sampling edge (CPHA)
	ClockPhase int
	// InterruptPriority is only meaningful for the slave
	InterruptPriority int
	// FrameSize is S, the number of payload words per cycle
	FrameSize int
	// BufferCount is B, the number of frame slots on the slave
	BufferCount int
}

// DefaultMasterConfig returns the sensor-side configuration: 16-bit words,
// mode 0 at 10 MHz.
func DefaultMasterConfig() BusConfig {
	return BusConfig{
		Role:        RoleMaster,
		ClockHz:     DefaultClockHz,
		WordBits:    WordBits16,
		FrameSize:   DefaultFrameSize,
		BufferCount: DefaultBufferCount,
		Sentinels:   DefaultSentinels(WordBits16),
	}
}

// DefaultSlaveConfig returns the control-side configuration
func DefaultSlaveConfig() BusConfig {
	cfg := DefaultMasterConfig()
	cfg.Role = RoleSlave
	cfg.InterruptPriority = DefaultInterruptPriority
	return cfg
}

// SPIMode returns the conventional SPI mode number (CPOL<<1 | CPHA)
func (c BusConfig) SPIMode() int {
	return c.ClockPolarity<<1 | c.ClockPhase
}

// Validate checks the configuration for consistency
func (c BusConfig) Validate() error {
	switch c.Role {
	case RoleMaster, RoleSlave:
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidConfig, c.Role)
	}
	if c.ClockHz <= 0 {
		return fmt.Errorf("%w: clock rate must be positive, got %d", ErrInvalidConfig, c.ClockHz)
	}
	if c.WordBits != WordBits8 && c.WordBits != WordBits16 {
		return fmt.Errorf("%w: word width must be 8 or 16 bits, got %d", ErrInvalidConfig, c.WordBits)
	}
	if c.ClockPolarity != 0 && c.ClockPolarity != 1 {
		return fmt.Errorf("%w: clock polarity must be 0 or 1, got %d", ErrInvalidConfig, c.ClockPolarity)
	}
	if c.ClockPhase != 0 && c.ClockPhase != 1 {
		return fmt.Errorf("%w: clock phase must be 0 or 1, got %d", ErrInvalidConfig, c.ClockPhase)
	}
	if c.FrameSize < 1 {
		return fmt.Errorf("%w: frame size must be at least 1, got %d", ErrInvalidConfig, c.FrameSize)
	}
	if c.Role == RoleSlave {
		if c.BufferCount < MinBufferCount {
			return fmt.Errorf("%w: need at least %d frame buffers, got %d",
				ErrInvalidConfig, MinBufferCount, c.BufferCount)
		}
		if c.InterruptPriority < 1 || c.InterruptPriority > maxInterruptPriority {
			return fmt.Errorf("%w: interrupt priority must be 1-%d, got %d",
				ErrInvalidConfig, maxInterruptPriority, c.InterruptPriority)
		}
	}
	return c.Sentinels.Validate(c.WordBits, c.FrameSize)
}
