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
	"time"
)

// Option is a functional option for configuring a Master
type Option func(*Master) error

// WithTimeout bounds the wait for each exchange
func WithTimeout(timeout time.Duration) Option {
	return func(m *Master) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: exchange timeout must be positive, got %v", ErrInvalidConfig, timeout)
		}
		m.timeout = timeout
		return nil
	}
}

// WithRetryConfig sets the retry configuration for cycles
func WithRetryConfig(config *RetryConfig) Option {
	return func(m *Master) error {
		if config == nil {
			config = DefaultRetryConfig()
		}
		cfg := *config
		m.retry = &cfg
		return nil
	}
}

// WithMaxRetries sets the maximum number of attempts per cycle
func WithMaxRetries(maxAttempts int) Option {
	return func(m *Master) error {
		if maxAttempts < 1 {
			return fmt.Errorf("%w: need at least one attempt, got %d", ErrInvalidConfig, maxAttempts)
		}
		m.retry.MaxAttempts = maxAttempts
		return nil
	}
}

// WithRetryBackoff sets the initial backoff duration for retries
func WithRetryBackoff(initialBackoff time.Duration) Option {
	return func(m *Master) error {
		m.retry.InitialBackoff = initialBackoff
		return nil
	}
}

// WithStatistics records cycle outcomes into stats, which may be shared
// between masters.
func WithStatistics(stats *Statistics) Option {
	return func(m *Master) error {
		if stats != nil {
			m.stats = stats
		}
		return nil
	}
}
