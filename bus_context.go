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
	"fmt"
	"time"
)

// BusContext is a Bus with context support for cancellation and timeouts
type BusContext interface {
	Bus

	// ExchangeContext performs one exchange, giving up when ctx is done
	ExchangeContext(ctx context.Context, tx Word) (Word, error)
}

// busContextAdapter wraps a Bus to provide context support
type busContextAdapter struct {
	Bus
}

// ExchangeContext implements BusContext by racing the exchange against ctx
func (b *busContextAdapter) ExchangeContext(ctx context.Context, tx Word) (Word, error) {
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("context cancelled before exchange: %w", ctx.Err())
	default:
	}

	if deadline, ok := ctx.Deadline(); ok {
		if timeout := time.Until(deadline); timeout > 0 {
			if err := b.SetTimeout(timeout); err != nil {
				return 0, err
			}
		}
	}

	type result struct {
		err error
		rx  Word
	}
	resultChan := make(chan result, 1)

	go func() {
		rx, err := b.Exchange(tx)
		resultChan <- result{err: err, rx: rx}
	}()

	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("context cancelled while waiting for exchange: %w", ctx.Err())
	case res := <-resultChan:
		return res.rx, res.err
	}
}

// AsBusContext converts a Bus to BusContext
func AsBusContext(b Bus) BusContext {
	if bc, ok := b.(BusContext); ok {
		return bc
	}
	return &busContextAdapter{Bus: b}
}
