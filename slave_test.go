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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSlave(t *testing.T, frameSize, buffers int, opts ...SlaveOption) *Slave {
	t.Helper()
	cfg := DefaultSlaveConfig()
	cfg.FrameSize = frameSize
	cfg.BufferCount = buffers
	slave, err := NewSlave(cfg, opts...)
	require.NoError(t, err)
	return slave
}

// runCycle feeds one healthy cycle (Begin plus payload) through a direct link
// and returns the words the master received.
func runCycle(t *testing.T, link *DirectLink, payload []Word) []Word {
	t.Helper()
	received := make([]Word, 0, len(payload)+1)
	for _, tx := range append([]Word{DefaultSentinels(WordBits16).Begin}, payload...) {
		rx, err := link.Exchange(tx)
		require.NoError(t, err)
		received = append(received, rx)
	}
	return received
}

type fakeRegisters struct {
	calls []string
	tx    Word
	rx    Word
}

func (f *fakeRegisters) WriteTx(w Word) {
	f.calls = append(f.calls, "tx")
	f.tx = w
}

func (f *fakeRegisters) ReadRx() Word {
	f.calls = append(f.calls, "rx")
	return f.rx
}

func (f *fakeRegisters) ClearPending() {
	f.calls = append(f.calls, "clear")
}

func TestNewSlave(t *testing.T) {
	t.Parallel()

	t.Run("DefaultConfig", func(t *testing.T) {
		t.Parallel()
		slave, err := NewSlave(DefaultSlaveConfig())
		require.NoError(t, err)
		assert.Equal(t, PhaseAwaitingBegin, slave.Phase())
		assert.Equal(t, 1, slave.Index())
		assert.Equal(t, DefaultBufferCount, slave.Pool().Count())
		assert.Equal(t, DefaultFrameSize, slave.Pool().Size())
	})

	t.Run("MasterRoleRejected", func(t *testing.T) {
		t.Parallel()
		_, err := NewSlave(DefaultMasterConfig())
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("TooFewBuffers", func(t *testing.T) {
		t.Parallel()
		cfg := DefaultSlaveConfig()
		cfg.BufferCount = 2
		_, err := NewSlave(cfg)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestSlave_InitPreloadsIdle(t *testing.T) {
	t.Parallel()
	slave := newTestSlave(t, 4, 3)
	regs := &fakeRegisters{tx: 0xAAAA}

	slave.Init(regs)

	assert.Equal(t, []string{"tx"}, regs.calls)
	assert.Equal(t, DefaultSentinels(WordBits16).Idle, regs.tx)
}

func TestSlave_ServiceInterruptOrder(t *testing.T) {
	t.Parallel()
	slave := newTestSlave(t, 4, 3)
	regs := &fakeRegisters{rx: DefaultSentinels(WordBits16).Begin}

	slave.ServiceInterrupt(regs)

	assert.Equal(t, []string{"tx", "rx", "clear"}, regs.calls)
	assert.Equal(t, Word(1), regs.tx, "slave at index 1 requests index 1")
	assert.Equal(t, PhaseIndexHandshakeConsumed, slave.Phase())
}

func TestSlave_ScenarioFrameOfFour(t *testing.T) {
	t.Parallel()
	sentinels := DefaultSentinels(WordBits16)
	slave := newTestSlave(t, 4, 3)
	link := NewDirectLink(slave)

	received := runCycle(t, link, []Word{10, 20, 30, 40})

	assert.Equal(t, []Word{sentinels.Idle, 1, 2, 3, sentinels.End}, received)

	snap, err := slave.Pool().LastComplete()
	require.NoError(t, err)
	assert.Equal(t, []Word{10, 20, 30, 40}, snap.Words)
	assert.Equal(t, 0, snap.Slot)
	assert.Equal(t, uint64(1), snap.Sequence)
	assert.Equal(t, 1, slave.Pool().Current())
	assert.Equal(t, 1, slave.Index())

	counters := slave.Counters()
	assert.Equal(t, uint64(5), counters.Exchanges)
	assert.Equal(t, uint64(1), counters.Cycles)
	assert.Equal(t, uint64(1), counters.Begins)
	assert.Zero(t, counters.OutOfRangeWrites)
}

func TestSlave_IndexMonotonicWithinCycle(t *testing.T) {
	t.Parallel()
	const frameSize = 8
	slave := newTestSlave(t, frameSize, 3)

	// S raw data words without Begin: index walks 1..S+1
	for i := 0; i < frameSize; i++ {
		before := slave.Index()
		slave.HandleExchange(Word(100 + i))
		assert.Equal(t, before+1, slave.Index(), "exchange %d", i)
	}
	assert.Equal(t, frameSize+1, slave.Index())

	// The S+1th word closes the cycle
	slave.HandleExchange(200)
	assert.Equal(t, 1, slave.Index())
	assert.Equal(t, uint64(1), slave.Counters().OutOfRangeWrites, "first raw word has no slot")
}

func TestSlave_CycleResetAfterBeginAndFrame(t *testing.T) {
	t.Parallel()
	const frameSize = 5
	sentinels := DefaultSentinels(WordBits16)
	slave := newTestSlave(t, frameSize, 3)

	slave.HandleExchange(sentinels.Begin)
	for i := 0; i < frameSize-1; i++ {
		slave.HandleExchange(Word(i + 1))
		assert.NotEqual(t, 1, slave.Index())
		assert.Equal(t, NoFrame, slave.Pool().LastCompleteIndex())
	}

	slave.HandleExchange(Word(frameSize))
	assert.Equal(t, 1, slave.Index())
	assert.Equal(t, PhaseAwaitingBegin, slave.Phase())
	assert.Equal(t, 0, slave.Pool().LastCompleteIndex())
	assert.Equal(t, 1, slave.Pool().Current())
}

func TestSlave_RawCycleWithoutBegin(t *testing.T) {
	t.Parallel()
	slave := newTestSlave(t, 3, 3)

	for _, w := range []Word{7, 8, 9, 10} {
		slave.HandleExchange(w)
	}

	snap, err := slave.Pool().LastComplete()
	require.NoError(t, err)
	assert.Equal(t, []Word{8, 9, 10}, snap.Words)
	assert.Equal(t, uint64(1), slave.Counters().OutOfRangeWrites)
}

func TestSlave_BeginConsumesIndexWithoutWrite(t *testing.T) {
	t.Parallel()
	sentinels := DefaultSentinels(WordBits16)
	slave := newTestSlave(t, 4, 3)

	slave.HandleExchange(sentinels.Begin)
	slave.HandleExchange(10)
	before := slave.Index()
	slave.HandleExchange(sentinels.Begin)
	assert.Equal(t, before+1, slave.Index())

	slave.HandleExchange(30)
	slave.HandleExchange(40)

	snap, err := slave.Pool().LastComplete()
	require.NoError(t, err)
	assert.Equal(t, []Word{10, 0, 30, 40}, snap.Words, "offset 1 left untouched")

	counters := slave.Counters()
	assert.Equal(t, uint64(2), counters.Begins)
	assert.Equal(t, uint64(1), counters.MidCycleBegins)
	assert.Zero(t, counters.Resyncs)
}

func TestSlave_ResyncOnBeginDropsCycle(t *testing.T) {
	t.Parallel()
	sentinels := DefaultSentinels(WordBits16)
	slave := newTestSlave(t, 4, 3, WithResyncOnBegin(true))

	for _, w := range []Word{sentinels.Begin, 10, 20, sentinels.Begin} {
		slave.HandleExchange(w)
	}
	assert.Equal(t, PhaseReceivingData, slave.Phase())
	assert.Equal(t, 5, slave.Index(), "index keeps stepping past the begin")

	slave.HandleExchange(30)
	assert.Equal(t, PhaseAwaitingBegin, slave.Phase())

	_, err := slave.Pool().LastComplete()
	require.ErrorIs(t, err, ErrNoFrame, "abandoned cycle is not published")
	counters := slave.Counters()
	assert.Equal(t, uint64(1), counters.Resyncs)
	assert.Zero(t, counters.Cycles)

	runCycle(t, NewDirectLink(slave), []Word{1, 2, 3, 4})

	snap, err := slave.Pool().LastComplete()
	require.NoError(t, err)
	assert.Equal(t, []Word{1, 2, 3, 4}, snap.Words)
	assert.Equal(t, uint64(1), snap.Sequence)
	assert.Equal(t, uint64(1), slave.Counters().Cycles)
}

func TestSlave_FrameOfOne(t *testing.T) {
	t.Parallel()
	sentinels := DefaultSentinels(WordBits16)
	slave := newTestSlave(t, 1, 3)
	link := NewDirectLink(slave)

	received := runCycle(t, link, []Word{42})

	assert.Equal(t, []Word{sentinels.Idle, sentinels.End}, received)
	snap, err := slave.Pool().LastComplete()
	require.NoError(t, err)
	assert.Equal(t, []Word{42}, snap.Words)
}

func TestSlave_BufferRotationBoundary(t *testing.T) {
	t.Parallel()
	slave := newTestSlave(t, 4, 3)
	link := NewDirectLink(slave)

	currents := []int{slave.Pool().Current()}
	for cycle := 0; cycle < 5; cycle++ {
		runCycle(t, link, []Word{Word(cycle), 1, 2, 3})
		currents = append(currents, slave.Pool().Current())
	}

	assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, currents)
	assert.Equal(t, 1, slave.Pool().LastCompleteIndex())
}

func TestSlave_CurrentNeverEqualsLastComplete(t *testing.T) {
	t.Parallel()
	sentinels := DefaultSentinels(WordBits16)
	slave := newTestSlave(t, 6, 4)
	pool := slave.Pool()

	// Mix of healthy cycles, stray Begins and raw data
	words := []Word{sentinels.Begin, 1, 2, 3, 4, 5, 6, 9, sentinels.Begin, 3, sentinels.Begin}
	for i := 0; i < 200; i++ {
		slave.HandleExchange(words[i%len(words)])
		assert.NotEqual(t, pool.Current(), pool.LastCompleteIndex(), "exchange %d", i)
	}
}

func TestPhase_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "awaiting-begin", PhaseAwaitingBegin.String())
	assert.Equal(t, "handshake-consumed", PhaseIndexHandshakeConsumed.String())
	assert.Equal(t, "receiving-data", PhaseReceivingData.String())
	assert.Equal(t, "cycle-complete", PhaseCycleComplete.String())
	assert.Equal(t, "phase(9)", Phase(9).String())
}
