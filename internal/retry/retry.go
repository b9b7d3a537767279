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

// Package retry provides internal retry utilities shared by the transports
package retry

import (
	"time"

	spiipc "github.com/ZaparooProject/go-spiipc"
)

// Operation represents a function that can be retried
// Returns: data, shouldRetry, error
// - data: the result if successful
// - shouldRetry: true if the operation should be retried
// - error: any permanent error that should stop retries
type Operation[T any] func() (T, bool, error)

// Config configures retry behavior
type Config struct {
	OnRetry     func(attempt int)
	Description string
	Port        string
	MaxRetries  int
	RetryDelay  time.Duration
}

// WithRetry executes an operation until it stops asking for a retry or
// MaxRetries is used up
func WithRetry[T any](config Config, operation Operation[T]) (T, error) {
	var zero T

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result, shouldRetry, err := operation()
		if err != nil {
			return zero, err
		}

		if !shouldRetry {
			return result, nil
		}

		if attempt >= config.MaxRetries {
			break
		}

		if config.OnRetry != nil {
			config.OnRetry(attempt + 1)
		}

		if config.RetryDelay > 0 {
			time.Sleep(config.RetryDelay)
		}
	}

	return zero, spiipc.NewBusError(description(config), config.Port, spiipc.ErrBusRead, spiipc.ErrorTypeTransient)
}

// TimeoutRetry executes an operation until it stops asking for a retry or
// the timeout expires. Used to poll partial reads from byte links.
func TimeoutRetry[T any](timeout time.Duration, port string, operation Operation[T]) (T, error) {
	var zero T
	deadline := time.Now().Add(timeout)

	for {
		result, shouldRetry, err := operation()
		if err != nil {
			return zero, err
		}

		if !shouldRetry {
			return result, nil
		}

		if !time.Now().Before(deadline) {
			return zero, spiipc.NewTimeoutError("timeoutRetry", port)
		}

		time.Sleep(time.Millisecond)
	}
}

func description(config Config) string {
	if config.Description == "" {
		return "retry"
	}
	return config.Description
}
