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

package bridge

import (
	"context"
	"errors"
	"io"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	spiipc "github.com/ZaparooProject/go-spiipc"
	"github.com/gorilla/websocket"
)

// DialWebSocket connects to a networked SPI bridge at wsURL (ws:// or wss://)
func DialWebSocket(ctx context.Context, wsURL string, header http.Header, wordBits int) (*Transport, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid bridge URL: %w", spiipc.ErrInvalidConfig, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("%w: unsupported URL scheme %q (use ws:// or wss://)", spiipc.ErrInvalidConfig, u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, spiipc.NewBusError("dial", wsURL,
				fmt.Errorf("HTTP %d: %w", resp.StatusCode, err), spiipc.ErrorTypePermanent)
		}
		return nil, spiipc.NewBusError("dial", wsURL, err, spiipc.ErrorTypeTransient)
	}

	return New(newWSConn(conn), Config{
		PortName: wsURL,
		Type:     spiipc.BusWebSocket,
		WordBits: wordBits,
	})
}

// wsConn presents a WebSocket as a byte stream. Binary messages are pumped
// by a reader goroutine so a read deadline can expire without leaving the
// connection unusable.
type wsConn struct {
	conn     *websocket.Conn
	msgs     chan []byte
	done     chan struct{}
	failed   chan struct{}
	err      error
	buf      []byte
	deadline time.Time
	mu       sync.Mutex
	once     sync.Once
}

func newWSConn(conn *websocket.Conn) *wsConn {
	w := &wsConn{
		conn:   conn,
		msgs:   make(chan []byte),
		done:   make(chan struct{}),
		failed: make(chan struct{}),
	}
	go w.pump()
	return w
}

func (w *wsConn) pump() {
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			w.err = err
			w.mu.Unlock()
			close(w.failed)
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		select {
		case w.msgs <- data:
		case <-w.done:
			return
		}
	}
}

func (w *wsConn) Read(p []byte) (int, error) {
	if len(w.buf) > 0 {
		n := copy(p, w.buf)
		w.buf = w.buf[n:]
		return n, nil
	}

	w.mu.Lock()
	deadline := w.deadline
	w.mu.Unlock()

	var expired <-chan time.Time
	if !deadline.IsZero() {
		wait := time.Until(deadline)
		if wait <= 0 {
			return 0, os.ErrDeadlineExceeded
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case data := <-w.msgs:
		n := copy(p, data)
		w.buf = data[n:]
		return n, nil
	case <-w.failed:
		w.mu.Lock()
		defer w.mu.Unlock()
		var closeErr *websocket.CloseError
		if errors.As(w.err, &closeErr) {
			return 0, io.EOF
		}
		return 0, w.err
	case <-w.done:
		return 0, net.ErrClosed
	case <-expired:
		return 0, os.ErrDeadlineExceeded
	}
}

func (w *wsConn) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsConn) SetReadDeadline(t time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deadline = t
	return nil
}

func (w *wsConn) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		_ = w.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = w.conn.Close()
	})
	return err
}

// ServeWebSocket runs Serve over an accepted WebSocket connection and closes
// it when the session ends.
func ServeWebSocket(conn *websocket.Conn, slave *spiipc.Slave, wordBits int) error {
	stream := newWSConn(conn)
	defer func() { _ = stream.Close() }()
	return Serve(stream, slave, wordBits)
}
