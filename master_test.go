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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMasterConfig(frameSize int) BusConfig {
	cfg := DefaultMasterConfig()
	cfg.FrameSize = frameSize
	return cfg
}

func fastRetry(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2.0,
		RetryTimeout:      time.Second,
	}
}

func seqPayload(n int) []Word {
	p := make([]Word, n)
	for i := range p {
		p[i] = Word(0x1000 + i)
	}
	return p
}

func TestNewMaster(t *testing.T) {
	t.Parallel()

	t.Run("NilBus", func(t *testing.T) {
		t.Parallel()
		_, err := NewMaster(nil, DefaultMasterConfig())
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("SlaveRoleRejected", func(t *testing.T) {
		t.Parallel()
		_, err := NewMaster(NewMockBus(nil), DefaultSlaveConfig())
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("InvalidTimeout", func(t *testing.T) {
		t.Parallel()
		_, err := NewMaster(NewMockBus(nil), DefaultMasterConfig(), WithTimeout(0))
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("InvalidMaxRetries", func(t *testing.T) {
		t.Parallel()
		_, err := NewMaster(NewMockBus(nil), DefaultMasterConfig(), WithMaxRetries(0))
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("OptionsDoNotShareRetryConfig", func(t *testing.T) {
		t.Parallel()
		shared := fastRetry(3)
		_, err := NewMaster(NewMockBus(nil), DefaultMasterConfig(), WithRetryConfig(shared), WithMaxRetries(7))
		require.NoError(t, err)
		assert.Equal(t, 3, shared.MaxAttempts)
	})
}

func TestMaster_SendRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		frameSize int
	}{
		{name: "single word", frameSize: 1},
		{name: "four words", frameSize: 4},
		{name: "default frame", frameSize: DefaultFrameSize},
		{name: "large frame", frameSize: 200},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			slave := newTestSlave(t, tt.frameSize, 3)
			master, err := NewMaster(NewDirectLink(slave), testMasterConfig(tt.frameSize))
			require.NoError(t, err)

			payload := seqPayload(tt.frameSize)
			result, err := master.Send(context.Background(), payload)
			require.NoError(t, err)
			assert.Equal(t, tt.frameSize+1, result.Exchanges)
			assert.Equal(t, 1, result.Attempts)

			snap, err := slave.Pool().LastComplete()
			require.NoError(t, err)
			assert.Equal(t, payload, snap.Words)
			assert.Equal(t, 1, slave.Index())
		})
	}
}

func TestMaster_SendConsecutiveCycles(t *testing.T) {
	t.Parallel()
	const frameSize = 8
	slave := newTestSlave(t, frameSize, 3)
	master, err := NewMaster(NewDirectLink(slave), testMasterConfig(frameSize))
	require.NoError(t, err)

	for cycle := 0; cycle < 10; cycle++ {
		payload := make([]Word, frameSize)
		for i := range payload {
			payload[i] = Word(cycle*100 + i)
		}
		_, err := master.Send(context.Background(), payload)
		require.NoError(t, err)

		snap, err := slave.Pool().LastComplete()
		require.NoError(t, err)
		assert.Equal(t, payload, snap.Words, "cycle %d", cycle)
		assert.Equal(t, uint64(cycle+1), snap.Sequence)
	}

	counters := master.Statistics().Counters()
	assert.Equal(t, uint64(10), counters.Cycles)
	assert.Equal(t, uint64(10*(frameSize+1)), counters.Exchanges)
	assert.Zero(t, counters.Retries)
}

func TestMaster_InvalidPayloadSendsNothing(t *testing.T) {
	t.Parallel()
	begin := DefaultSentinels(WordBits16).Begin
	tests := []struct {
		name    string
		payload []Word
	}{
		{name: "too short", payload: []Word{1, 2, 3}},
		{name: "too long", payload: []Word{1, 2, 3, 4, 5}},
		{name: "contains begin", payload: []Word{1, begin, 3, 4}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			bus := NewMockBus(nil)
			master, err := NewMaster(bus, testMasterConfig(4))
			require.NoError(t, err)

			_, err = master.Send(context.Background(), tt.payload)
			require.ErrorIs(t, err, ErrInvalidPayload)
			assert.Empty(t, bus.Sent())
		})
	}
}

func TestMaster_SendTimeout(t *testing.T) {
	t.Parallel()
	bus := NewBlockingMockBus()
	defer func() { _ = bus.Close() }()

	master, err := NewMaster(bus, testMasterConfig(4),
		WithTimeout(5*time.Millisecond),
		WithRetryConfig(fastRetry(2)),
	)
	require.NoError(t, err)

	start := time.Now()
	_, err = master.Send(context.Background(), seqPayload(4))
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)

	counters := master.Statistics().Counters()
	assert.Equal(t, uint64(2), counters.Timeouts)
	assert.Equal(t, uint64(1), counters.Retries)
	assert.Equal(t, uint64(1), counters.Failures)
	assert.Zero(t, counters.Cycles)
}

func TestMaster_IndexOutOfRange(t *testing.T) {
	t.Parallel()
	// The slave asks for index 9 of a four-word frame
	bus := NewMockBus(func(Word) (Word, error) { return 9, nil })
	master, err := NewMaster(bus, testMasterConfig(4), WithRetryConfig(fastRetry(1)))
	require.NoError(t, err)

	_, err = master.Send(context.Background(), seqPayload(4))
	require.ErrorIs(t, err, ErrIndexOutOfRange)

	var rangeErr *IndexOutOfRangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, 9, rangeErr.Index)
	assert.Equal(t, 3, rangeErr.Max)
	assert.Equal(t, []Word{DefaultSentinels(WordBits16).Begin}, bus.Sent(), "nothing past Begin is sent")
	assert.Equal(t, uint64(1), master.Statistics().Counters().IndexErrors)
}

func TestMaster_CycleOverrun(t *testing.T) {
	t.Parallel()
	const frameSize = 4
	// A slave that keeps counting past the frame and never says End
	bus := NewMockBusWithSequence(DefaultSentinels(WordBits16).Idle, 1, 2, 3, 4)
	master, err := NewMaster(bus, testMasterConfig(frameSize), WithRetryConfig(fastRetry(1)))
	require.NoError(t, err)

	_, err = master.Send(context.Background(), seqPayload(frameSize))
	require.ErrorIs(t, err, ErrCycleOverrun)
	assert.Len(t, bus.Sent(), frameSize+1, "exchanges bounded to S+1")
	assert.Equal(t, uint64(1), master.Statistics().Counters().Overruns)
}

func TestMaster_CycleUnderrun(t *testing.T) {
	t.Parallel()
	end := DefaultSentinels(WordBits16).End
	bus := NewMockBusWithSequence(0, 1, end)
	master, err := NewMaster(bus, testMasterConfig(4), WithRetryConfig(fastRetry(1)))
	require.NoError(t, err)

	_, err = master.Send(context.Background(), seqPayload(4))
	require.ErrorIs(t, err, ErrCycleUnderrun)
	assert.Equal(t, uint64(1), master.Statistics().Counters().Underruns)
}

func TestMaster_RequestOutOfSequence(t *testing.T) {
	t.Parallel()
	idle := DefaultSentinels(WordBits16).Idle
	bus := NewMockBusWithSequence(idle, 1, 3)
	master, err := NewMaster(bus, testMasterConfig(4), WithRetryConfig(fastRetry(1)))
	require.NoError(t, err)

	payload := seqPayload(4)
	_, err = master.Send(context.Background(), payload)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.True(t, IsRetryable(err))

	var rangeErr *IndexOutOfRangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, 3, rangeErr.Index)
	assert.Equal(t, 2, rangeErr.Min)
	assert.Equal(t, 2, rangeErr.Max)
	assert.Equal(t, []Word{DefaultSentinels(WordBits16).Begin, payload[0], payload[1]}, bus.Sent(),
		"index 3 is never answered")
}

func TestMaster_RecoversFromDesync(t *testing.T) {
	t.Parallel()
	const frameSize = 4
	begin := DefaultSentinels(WordBits16).Begin

	for _, resync := range []bool{false, true} {
		// partial is the number of data words a restarted master left behind
		for partial := 0; partial < frameSize; partial++ {
			resync, partial := resync, partial
			t.Run(fmt.Sprintf("resync=%t/partial=%d", resync, partial), func(t *testing.T) {
				t.Parallel()
				slave := newTestSlave(t, frameSize, 3, WithResyncOnBegin(resync))
				link := NewDirectLink(slave)

				_, err := link.Exchange(begin)
				require.NoError(t, err)
				for i := 0; i < partial; i++ {
					_, err = link.Exchange(Word(7 + i))
					require.NoError(t, err)
				}

				master, err := NewMaster(link, testMasterConfig(frameSize), WithRetryConfig(fastRetry(3)))
				require.NoError(t, err)

				payload := []Word{10, 20, 30, 40}
				result, err := master.Send(context.Background(), payload)
				require.NoError(t, err)
				assert.Equal(t, 2, result.Attempts)

				snap, err := slave.Pool().LastComplete()
				require.NoError(t, err)
				assert.Equal(t, payload, snap.Words)

				if resync {
					assert.Equal(t, uint64(1), snap.Sequence, "only the clean frame is published")
					assert.Equal(t, uint64(1), slave.Counters().Resyncs)
				} else {
					assert.Equal(t, uint64(2), snap.Sequence)
					assert.Zero(t, slave.Counters().Resyncs)
				}

				counters := master.Statistics().Counters()
				assert.Equal(t, uint64(1), counters.Retries)
				assert.Equal(t, uint64(1), counters.Cycles)
				assert.Equal(t, uint64(1), counters.Underruns)
			})
		}
	}
}

func TestMaster_CancelledContext(t *testing.T) {
	t.Parallel()
	bus := NewMockBus(nil)
	master, err := NewMaster(bus, testMasterConfig(4))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = master.Send(ctx, seqPayload(4))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, bus.Sent())
}

func TestMaster_CancelDuringExchangeNotRetried(t *testing.T) {
	t.Parallel()
	bus := NewBlockingMockBus()
	defer func() { _ = bus.Close() }()

	master, err := NewMaster(bus, testMasterConfig(4),
		WithTimeout(time.Second),
		WithRetryConfig(fastRetry(5)),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err = master.Send(ctx, seqPayload(4))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Zero(t, master.Statistics().Counters().Retries)
}

func TestMaster_BusErrorPassesThrough(t *testing.T) {
	t.Parallel()
	bus := NewMockBus(func(Word) (Word, error) {
		return 0, NewBusError("exchange", "mock", errors.New("cable unplugged"), ErrorTypePermanent)
	})
	master, err := NewMaster(bus, testMasterConfig(4), WithRetryConfig(fastRetry(3)))
	require.NoError(t, err)

	_, err = master.Send(context.Background(), seqPayload(4))
	var busErr *BusError
	require.ErrorAs(t, err, &busErr)
	assert.Len(t, bus.Sent(), 1, "permanent errors are not retried")
}
