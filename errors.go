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
)

// Bus errors
var (
	ErrBusTimeout = errors.New("bus exchange timeout")
	ErrBusRead    = errors.New("bus read failed")
	ErrBusWrite   = errors.New("bus write failed")
	ErrBusClosed  = errors.New("bus closed")
)

// Protocol errors
var (
	// ErrTimeout is returned by Master.Send when the slave stops answering
	// and every retry has been used up.
	ErrTimeout = errors.New("operation timeout")

	// ErrIndexOutOfRange is returned when an index would address a word
	// outside the frame.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrCycleOverrun is returned when the slave keeps requesting data past
	// the end of a frame without ever signalling End.
	ErrCycleOverrun = errors.New("cycle overrun")

	// ErrCycleUnderrun is returned when the slave signals End before every
	// payload word was exchanged, which means it was out of step with the
	// master when the cycle began.
	ErrCycleUnderrun = errors.New("cycle underrun")

	ErrInvalidPayload = errors.New("invalid payload")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// Frame pool errors
var (
	ErrNoFrame         = errors.New("no complete frame yet")
	ErrSnapshotOverrun = errors.New("frame slot reused while copying")
)

// ErrorType classifies errors for retry decisions
type ErrorType int

const (
	// ErrorTypePermanent errors are not worth retrying
	ErrorTypePermanent ErrorType = iota
	// ErrorTypeTransient errors may clear on the next cycle
	ErrorTypeTransient
	// ErrorTypeTimeout errors mean the other side did not answer in time
	ErrorTypeTimeout
)

// String returns a readable name for the error type
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return "permanent"
	}
}

// BusError wraps an error raised by a bus with the operation that failed
type BusError struct {
	Err       error
	Op        string
	Port      string
	Type      ErrorType
	Retryable bool
}

// Error implements the error interface
func (e *BusError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s on %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *BusError) Unwrap() error {
	return e.Err
}

// IndexOutOfRangeError reports an index that fell outside the frame.
type IndexOutOfRangeError struct {
	Index int
	Min   int
	Max   int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("index %d is out of range: valid range is %d-%d", e.Index, e.Min, e.Max)
}

// Unwrap lets errors.Is match ErrIndexOutOfRange
func (*IndexOutOfRangeError) Unwrap() error {
	return ErrIndexOutOfRange
}

// NewBusError creates a new bus error
func NewBusError(op, port string, err error, errType ErrorType) *BusError {
	return &BusError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType != ErrorTypePermanent,
	}
}

// NewTimeoutError creates a retryable timeout error for a bus operation
func NewTimeoutError(op, port string) *BusError {
	return NewBusError(op, port, ErrBusTimeout, ErrorTypeTimeout)
}

// NewBusClosedError creates a permanent error for an operation on a closed bus
func NewBusClosedError(op, port string) *BusError {
	return NewBusError(op, port, ErrBusClosed, ErrorTypePermanent)
}

// IsRetryable reports whether err is worth another attempt
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var busErr *BusError
	if errors.As(err, &busErr) {
		return busErr.Retryable
	}

	switch {
	case errors.Is(err, ErrBusTimeout),
		errors.Is(err, ErrBusRead),
		errors.Is(err, ErrBusWrite),
		errors.Is(err, ErrCycleOverrun),
		errors.Is(err, ErrCycleUnderrun),
		errors.Is(err, ErrIndexOutOfRange):
		return true
	default:
		return false
	}
}

// GetErrorType returns the classification of err
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}

	var busErr *BusError
	if errors.As(err, &busErr) {
		return busErr.Type
	}

	switch {
	case errors.Is(err, ErrBusTimeout), errors.Is(err, ErrTimeout):
		return ErrorTypeTimeout
	case errors.Is(err, ErrBusRead), errors.Is(err, ErrBusWrite),
		errors.Is(err, ErrCycleOverrun), errors.Is(err, ErrCycleUnderrun),
		errors.Is(err, ErrIndexOutOfRange):
		return ErrorTypeTransient
	default:
		return ErrorTypePermanent
	}
}
