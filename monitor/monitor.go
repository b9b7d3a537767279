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

// Package monitor follows a frame pool from the consumer side and hands each
// newly completed frame to a callback.
package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	spiipc "github.com/ZaparooProject/go-spiipc"
	"github.com/golang/glog"
)

// Config holds the polling cadence
type Config struct {
	// PollInterval is the polling period while frames are arriving
	PollInterval time.Duration
	// IdleInterval is the slower period used once the link goes quiet
	IdleInterval time.Duration
	// IdleAfter is how long without a new frame before slowing down
	IdleAfter time.Duration
}

// DefaultConfig returns the default polling cadence
func DefaultConfig() *Config {
	return &Config{
		PollInterval: 5 * time.Millisecond,
		IdleInterval: 100 * time.Millisecond,
		IdleAfter:    time.Second,
	}
}

// Metrics tracks what the monitor has seen
type Metrics struct {
	Polls           int64         // Total number of polls
	Frames          int64         // Frames handed to OnFrame
	Missed          int64         // Frames that completed between two polls and were never seen
	Overruns        int64         // Copies discarded because the writer wrapped onto the slot
	CallbackErrors  int64         // Errors returned by OnFrame
	LastPollLatency time.Duration // Duration of the last poll
}

// Monitor polls a frame pool for new complete frames
type Monitor struct {
	pool   *spiipc.FramePool
	config *Config
	// OnFrame is called on the polling goroutine for every new frame
	OnFrame func(spiipc.Snapshot) error

	lastSeq  uint64
	seen     bool
	lastSeen time.Time

	polls           atomic.Int64
	frames          atomic.Int64
	missed          atomic.Int64
	overruns        atomic.Int64
	callbackErrors  atomic.Int64
	lastPollLatency atomic.Int64
	currentInterval atomic.Int64
}

// withDefaults returns a copy of c with unset or negative durations replaced
// by the defaults
func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.PollInterval <= 0 {
		out.PollInterval = def.PollInterval
	}
	if out.IdleInterval <= 0 {
		out.IdleInterval = def.IdleInterval
	}
	if out.IdleAfter <= 0 {
		out.IdleAfter = def.IdleAfter
	}
	return &out
}

// New creates a monitor over pool. A nil config uses DefaultConfig, and any
// zero or negative duration in config takes its default.
func New(pool *spiipc.FramePool, config *Config) *Monitor {
	config = config.withDefaults()
	m := &Monitor{
		pool:     pool,
		config:   config,
		lastSeen: time.Now(),
	}
	m.currentInterval.Store(int64(config.PollInterval))
	return m
}

// Run polls until ctx is done
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if _, err := m.Poll(); err != nil {
			glog.Warningf("frame callback failed: %v", err)
		}

		if interval := m.adjustInterval(); interval != 0 {
			ticker.Reset(interval)
		}
	}
}

// Poll checks the pool once and delivers the last complete frame if it is
// new. It reports whether a frame was delivered. Poll must not be called
// concurrently with Run.
func (m *Monitor) Poll() (bool, error) {
	start := time.Now()
	defer func() {
		m.polls.Add(1)
		m.lastPollLatency.Store(int64(time.Since(start)))
	}()

	if seq := m.pool.Sequence(); m.seen && seq == m.lastSeq {
		return false, nil
	}

	snap, err := m.pool.LastComplete()
	switch {
	case errors.Is(err, spiipc.ErrNoFrame):
		return false, nil
	case errors.Is(err, spiipc.ErrSnapshotOverrun):
		// Copy was torn; the next poll picks up a newer frame
		m.overruns.Add(1)
		return false, nil
	case err != nil:
		return false, err
	}

	if m.seen && snap.Sequence > m.lastSeq+1 {
		m.missed.Add(int64(snap.Sequence - m.lastSeq - 1))
	}
	m.lastSeq = snap.Sequence
	m.seen = true
	m.lastSeen = start
	m.frames.Add(1)

	if m.OnFrame == nil {
		return true, nil
	}
	if err := m.OnFrame(snap); err != nil {
		m.callbackErrors.Add(1)
		return true, err
	}
	return true, nil
}

// adjustInterval slows polling once no frame has arrived for IdleAfter. It
// returns the new interval, or 0 if it is unchanged.
func (m *Monitor) adjustInterval() time.Duration {
	want := m.config.PollInterval
	if m.config.IdleInterval > want && time.Since(m.lastSeen) > m.config.IdleAfter {
		want = m.config.IdleInterval
	}
	if time.Duration(m.currentInterval.Swap(int64(want))) == want {
		return 0
	}
	debugf("poll interval now %v", want)
	return want
}

// Metrics returns the current metrics
func (m *Monitor) Metrics() Metrics {
	return Metrics{
		Polls:           m.polls.Load(),
		Frames:          m.frames.Load(),
		Missed:          m.missed.Load(),
		Overruns:        m.overruns.Load(),
		CallbackErrors:  m.callbackErrors.Load(),
		LastPollLatency: time.Duration(m.lastPollLatency.Load()),
	}
}

// CurrentInterval returns the polling interval in use
func (m *Monitor) CurrentInterval() time.Duration {
	return time.Duration(m.currentInterval.Load())
}

func debugf(format string, args ...any) {
	glog.V(2).Infof(format, args...)
}
