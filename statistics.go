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
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// MasterCounters is a point-in-time copy of the master's counters
type MasterCounters struct {
	Cycles           uint64        // Cycles completed with End
	Exchanges        uint64        // Words exchanged in completed cycles
	Retries          uint64        // Cycles restarted after a retryable error
	Timeouts         uint64        // Exchanges the slave never answered
	IndexErrors      uint64        // Requested indices outside the frame or out of sequence
	Overruns         uint64        // Cycles with no End in S+1 exchanges
	Underruns        uint64        // Cycles ended by the slave too early
	Failures         uint64        // Send calls that returned an error
	LastCycleLatency time.Duration // Duration of the last completed cycle
}

// Statistics tracks master-side cycle outcomes. All methods are safe for
// concurrent use.
type Statistics struct {
	start            time.Time
	cycles           atomic.Uint64
	exchanges        atomic.Uint64
	retries          atomic.Uint64
	timeouts         atomic.Uint64
	indexErrors      atomic.Uint64
	overruns         atomic.Uint64
	underruns        atomic.Uint64
	failures         atomic.Uint64
	lastCycleLatency atomic.Int64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{start: time.Now()}
}

func (s *Statistics) recordCycle(exchanges int, latency time.Duration) {
	s.cycles.Add(1)
	s.exchanges.Add(uint64(exchanges))
	s.lastCycleLatency.Store(latency.Nanoseconds())
}

// recordAttemptError classifies the error of one failed attempt
func (s *Statistics) recordAttemptError(err error) {
	switch {
	case errors.Is(err, ErrBusTimeout):
		s.timeouts.Add(1)
	case errors.Is(err, ErrIndexOutOfRange):
		s.indexErrors.Add(1)
	case errors.Is(err, ErrCycleOverrun):
		s.overruns.Add(1)
	case errors.Is(err, ErrCycleUnderrun):
		s.underruns.Add(1)
	}
}

func (s *Statistics) recordRetry() {
	s.retries.Add(1)
}

func (s *Statistics) recordFailure() {
	s.failures.Add(1)
}

// Counters returns a copy of the counters
func (s *Statistics) Counters() MasterCounters {
	return MasterCounters{
		Cycles:           s.cycles.Load(),
		Exchanges:        s.exchanges.Load(),
		Retries:          s.retries.Load(),
		Timeouts:         s.timeouts.Load(),
		IndexErrors:      s.indexErrors.Load(),
		Overruns:         s.overruns.Load(),
		Underruns:        s.underruns.Load(),
		Failures:         s.failures.Load(),
		LastCycleLatency: time.Duration(s.lastCycleLatency.Load()),
	}
}

// Report combines master counters, optional slave counters and rates
type Report struct {
	Slave     *SlaveCounters
	Master    MasterCounters
	Elapsed   time.Duration
	CycleRate float64 // cycles/sec
	ErrorRate float64 // failed attempts/sec
}

// Report builds a report. slave may be nil when the slave runs on other
// hardware.
func (s *Statistics) Report(slave *SlaveCounters) Report {
	r := Report{
		Master:  s.Counters(),
		Slave:   slave,
		Elapsed: time.Since(s.start),
	}
	if secs := r.Elapsed.Seconds(); secs > 0 {
		r.CycleRate = float64(r.Master.Cycles) / secs
		errs := r.Master.Timeouts + r.Master.IndexErrors + r.Master.Overruns + r.Master.Underruns
		r.ErrorRate = float64(errs) / secs
	}
	return r
}

// String formats the report for terminal output
func (r Report) String() string {
	var b strings.Builder
	m := r.Master
	fmt.Fprintf(&b, "elapsed %v, %.1f cycles/s, %.2f errors/s\n", r.Elapsed.Round(time.Millisecond), r.CycleRate, r.ErrorRate)
	fmt.Fprintf(&b, "master: cycles=%d exchanges=%d retries=%d timeouts=%d index_errors=%d overruns=%d underruns=%d failures=%d last=%v\n",
		m.Cycles, m.Exchanges, m.Retries, m.Timeouts, m.IndexErrors, m.Overruns, m.Underruns, m.Failures, m.LastCycleLatency)
	if sc := r.Slave; sc != nil {
		fmt.Fprintf(&b, "slave:  exchanges=%d cycles=%d begins=%d mid_cycle_begins=%d out_of_range=%d resyncs=%d\n",
			sc.Exchanges, sc.Cycles, sc.Begins, sc.MidCycleBegins, sc.OutOfRangeWrites, sc.Resyncs)
	}
	return b.String()
}
