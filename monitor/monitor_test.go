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

package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	spiipc "github.com/ZaparooProject/go-spiipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/golang/glog.(*loggingT).flushDaemon"))
}

// newLink returns a master wired straight to a slave with frame size 4
func newLink(t *testing.T) (*spiipc.Master, *spiipc.Slave) {
	t.Helper()

	slaveCfg := spiipc.DefaultSlaveConfig()
	slaveCfg.FrameSize = 4
	slave, err := spiipc.NewSlave(slaveCfg)
	require.NoError(t, err)

	masterCfg := spiipc.DefaultMasterConfig()
	masterCfg.FrameSize = 4
	master, err := spiipc.NewMaster(spiipc.NewDirectLink(slave), masterCfg)
	require.NoError(t, err)
	return master, slave
}

func send(t *testing.T, master *spiipc.Master, payload ...spiipc.Word) {
	t.Helper()
	_, err := master.Send(context.Background(), payload)
	require.NoError(t, err)
}

func TestPoll_NoFrameYet(t *testing.T) {
	t.Parallel()
	_, slave := newLink(t)
	m := New(slave.Pool(), nil)

	delivered, err := m.Poll()
	require.NoError(t, err)
	assert.False(t, delivered)
	assert.Equal(t, int64(1), m.Metrics().Polls)
}

func TestPoll_DeliversEachFrameOnce(t *testing.T) {
	t.Parallel()
	master, slave := newLink(t)
	m := New(slave.Pool(), nil)

	var got []spiipc.Snapshot
	m.OnFrame = func(s spiipc.Snapshot) error {
		got = append(got, s)
		return nil
	}

	send(t, master, 10, 20, 30, 40)
	delivered, err := m.Poll()
	require.NoError(t, err)
	assert.True(t, delivered)

	delivered, err = m.Poll()
	require.NoError(t, err)
	assert.False(t, delivered, "same sequence twice")

	send(t, master, 1, 2, 3, 4)
	_, err = m.Poll()
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, []spiipc.Word{10, 20, 30, 40}, got[0].Words)
	assert.Equal(t, uint64(1), got[0].Sequence)
	assert.Equal(t, []spiipc.Word{1, 2, 3, 4}, got[1].Words)
	assert.Equal(t, uint64(2), got[1].Sequence)
	assert.Equal(t, int64(2), m.Metrics().Frames)
}

func TestPoll_CountsMissedFrames(t *testing.T) {
	t.Parallel()
	master, slave := newLink(t)
	m := New(slave.Pool(), nil)

	send(t, master, 1, 1, 1, 1)
	_, err := m.Poll()
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		send(t, master, 2, 2, 2, 2)
	}
	_, err = m.Poll()
	require.NoError(t, err)

	assert.Equal(t, int64(2), m.Metrics().Missed)
}

func TestPoll_CallbackError(t *testing.T) {
	t.Parallel()
	master, slave := newLink(t)
	m := New(slave.Pool(), nil)
	boom := errors.New("sink full")
	m.OnFrame = func(spiipc.Snapshot) error { return boom }

	send(t, master, 1, 2, 3, 4)
	delivered, err := m.Poll()
	require.ErrorIs(t, err, boom)
	assert.True(t, delivered)
	assert.Equal(t, int64(1), m.Metrics().CallbackErrors)
}

func TestRun_DeliversFrames(t *testing.T) {
	t.Parallel()
	master, slave := newLink(t)
	m := New(slave.Pool(), &Config{
		PollInterval: time.Millisecond,
		IdleInterval: 10 * time.Millisecond,
		IdleAfter:    time.Second,
	})

	var mu sync.Mutex
	var frames []uint64
	m.OnFrame = func(s spiipc.Snapshot) error {
		mu.Lock()
		defer mu.Unlock()
		frames = append(frames, s.Sequence)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	send(t, master, 10, 20, 30, 40)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(frames) == 1
	}, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.Positive(t, m.Metrics().Polls)
}

func TestRun_SlowsDownWhenIdle(t *testing.T) {
	t.Parallel()
	_, slave := newLink(t)
	m := New(slave.Pool(), &Config{
		PollInterval: time.Millisecond,
		IdleInterval: 5 * time.Millisecond,
		IdleAfter:    10 * time.Millisecond,
	})
	assert.Equal(t, time.Millisecond, m.CurrentInterval())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool {
		return m.CurrentInterval() == 5*time.Millisecond
	}, time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestNew_FillsUnsetDurations(t *testing.T) {
	t.Parallel()
	def := DefaultConfig()
	tests := []struct {
		config *Config
		name   string
		want   Config
	}{
		{name: "nil", config: nil, want: *def},
		{name: "zero", config: &Config{}, want: *def},
		{
			name:   "negative poll",
			config: &Config{PollInterval: -time.Millisecond, IdleInterval: time.Second, IdleAfter: time.Minute},
			want:   Config{PollInterval: def.PollInterval, IdleInterval: time.Second, IdleAfter: time.Minute},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, slave := newLink(t)
			m := New(slave.Pool(), tt.config)
			assert.Equal(t, tt.want, *m.config)
			assert.Equal(t, tt.want.PollInterval, m.CurrentInterval())
		})
	}
}

func TestRun_ZeroConfig(t *testing.T) {
	t.Parallel()
	_, slave := newLink(t)
	cfg := &Config{}
	m := New(slave.Pool(), cfg)
	assert.Zero(t, cfg.PollInterval, "caller's config is left alone")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NotPanics(t, func() {
		require.ErrorIs(t, m.Run(ctx), context.DeadlineExceeded)
	})
}

func TestAdjustInterval_BackToFastOnFrame(t *testing.T) {
	t.Parallel()
	master, slave := newLink(t)
	m := New(slave.Pool(), &Config{
		PollInterval: time.Millisecond,
		IdleInterval: 50 * time.Millisecond,
		IdleAfter:    time.Nanosecond,
	})

	time.Sleep(time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, m.adjustInterval())
	assert.Zero(t, m.adjustInterval(), "unchanged interval")

	m.config.IdleAfter = time.Hour
	send(t, master, 1, 2, 3, 4)
	_, err := m.Poll()
	require.NoError(t, err)
	assert.Equal(t, time.Millisecond, m.adjustInterval())
}
