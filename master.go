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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"
)

// DefaultExchangeTimeout bounds the wait for a single exchange. At 10 MHz a
// 16-bit exchange takes under two microseconds, so this only trips when the
// slave is not servicing its interrupt.
const DefaultExchangeTimeout = 10 * time.Millisecond

// SendResult describes a completed cycle
type SendResult struct {
	// Exchanges is the number of words exchanged in the successful attempt,
	// S+1 for a healthy link (Begin plus S payload words).
	Exchanges int
	// Attempts is the number of attempts used, 1 when no retry was needed
	Attempts int
	// Duration covers all attempts including backoff
	Duration time.Duration
}

// Master is the sensor-side send routine. It walks the slave through one
// cycle per Send: announce with Begin, then answer every index the slave
// requests with the matching payload word until the slave says End.
//
// Thread Safety: Master is NOT thread-safe. A bus carries one cycle at a
// time; serialise Send calls or use one Master per bus.
type Master struct {
	bus     BusContext
	retry   *RetryConfig
	stats   *Statistics
	config  BusConfig
	timeout time.Duration
}

// NewMaster creates a master driving bus with the given configuration
func NewMaster(bus Bus, cfg BusConfig, opts ...Option) (*Master, error) {
	if bus == nil {
		return nil, fmt.Errorf("%w: bus cannot be nil", ErrInvalidConfig)
	}
	if cfg.Role != RoleMaster {
		return nil, fmt.Errorf("%w: master needs role %q, got %q", ErrInvalidConfig, RoleMaster, cfg.Role)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Master{
		bus:     AsBusContext(bus),
		config:  cfg,
		retry:   DefaultRetryConfig(),
		stats:   NewStatistics(),
		timeout: DefaultExchangeTimeout,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Config returns the bus configuration
func (m *Master) Config() BusConfig {
	return m.config
}

// Statistics returns the master's statistics tracker
func (m *Master) Statistics() *Statistics {
	return m.stats
}

// Send transfers one full frame. payload must hold exactly S words and is
// only read. Send returns once the slave has signalled End.
//
// A slave that stops answering yields an error matching ErrTimeout after
// the retry budget is spent. A slave that requests an index outside the
// frame, or one that does not follow the previous request, yields an
// *IndexOutOfRangeError, one that never signals End yields
// ErrCycleOverrun and one that signals End early yields ErrCycleUnderrun.
// These are retried first since a desynchronised slave realigns at its next
// cycle reset.
func (m *Master) Send(ctx context.Context, payload []Word) (*SendResult, error) {
	if err := ValidatePayload(payload, m.config.Sentinels, m.config.WordBits, m.config.FrameSize); err != nil {
		return nil, err
	}

	start := time.Now()
	attempts := 0
	exchanges := 0

	err := RetryWithConfig(ctx, m.retry, func() error {
		attempts++
		if attempts > 1 {
			m.stats.recordRetry()
		}

		cycleStart := time.Now()
		n, err := m.sendCycle(ctx, payload)
		if err != nil {
			m.stats.recordAttemptError(err)
			if IsRetryable(err) {
				glog.Warningf("cycle attempt %d failed after %d exchanges: %v", attempts, n, err)
			}
			return err
		}

		exchanges = n
		m.stats.recordCycle(n, time.Since(cycleStart))
		return nil
	})
	if err != nil {
		m.stats.recordFailure()
		if GetErrorType(err) == ErrorTypeTimeout && !errors.Is(err, ErrTimeout) {
			return nil, fmt.Errorf("%w: slave did not answer: %w", ErrTimeout, err)
		}
		return nil, err
	}

	debugf("cycle complete: %d exchanges, %d attempt(s)", exchanges, attempts)
	return &SendResult{
		Exchanges: exchanges,
		Attempts:  attempts,
		Duration:  time.Since(start),
	}, nil
}

// sendCycle runs one cycle and returns the number of exchanges performed
func (m *Master) sendCycle(ctx context.Context, payload []Word) (int, error) {
	s := m.config.Sentinels
	frameSize := m.config.FrameSize

	rx, err := m.exchange(ctx, s.Begin)
	if err != nil {
		return 0, err
	}

	prev := -1
	for n := 1; ; n++ {
		if rx == s.End {
			if n != frameSize+1 {
				return n, fmt.Errorf("%w: end after %d of %d exchanges", ErrCycleUnderrun, n, frameSize+1)
			}
			return n, nil
		}
		if n > frameSize {
			return n, fmt.Errorf("%w: no end after %d exchanges", ErrCycleOverrun, n)
		}

		// Idle is what an idle slave shifts out ahead of the first request
		index := int(rx)
		if rx == s.Idle {
			index = 0
		}

		// The first request may come from a slave still finishing an older
		// cycle; every later one must follow it. With End only accepted on
		// exchange S+1 this pins the n-th request to index n-1.
		switch {
		case prev < 0 && index >= frameSize:
			return n, &IndexOutOfRangeError{Index: index, Min: 0, Max: frameSize - 1}
		case prev >= 0 && index != prev+1:
			return n, &IndexOutOfRangeError{Index: index, Min: prev + 1, Max: prev + 1}
		}
		prev = index

		rx, err = m.exchange(ctx, payload[index])
		if err != nil {
			return n, err
		}
	}
}

// exchange performs one exchange bounded by the per-exchange timeout
func (m *Master) exchange(ctx context.Context, tx Word) (Word, error) {
	exCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	rx, err := m.bus.ExchangeContext(exCtx, tx)
	if err == nil {
		return rx, nil
	}

	// The caller's own cancellation is not retried
	if ctxErr := ctx.Err(); ctxErr != nil {
		return 0, fmt.Errorf("exchange aborted: %w", ctxErr)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return 0, NewTimeoutError("exchange", string(m.bus.Type()))
	}
	return 0, err
}
