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

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	spiipc "github.com/ZaparooProject/go-spiipc"
	"github.com/ZaparooProject/go-spiipc/frameio"
	"github.com/ZaparooProject/go-spiipc/publish"
)

// frameSink fans received frames out to the terminal, a record file and an
// MQTT broker, whichever are enabled
type frameSink struct {
	out       io.Writer
	file      *os.File
	recorder  *frameio.Recorder
	publisher *publish.Publisher
	wordBits  int
	quiet     bool
}

func newFrameSink(out io.Writer, recordPath, brokerURL string, quiet bool) (*frameSink, error) {
	s := &frameSink{out: out, wordBits: wordBits, quiet: quiet}

	if recordPath != "" {
		f, err := os.Create(recordPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create record file: %w", err)
		}
		s.file = f
		s.recorder = frameio.NewRecorder(f)
	}

	if brokerURL != "" {
		p, err := publish.NewFromURL(brokerURL)
		if err == nil {
			err = p.Connect()
		}
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.publisher = p
	}
	return s, nil
}

// OnFrame handles one frame from the monitor
func (s *frameSink) OnFrame(snap spiipc.Snapshot) error {
	if !s.quiet {
		printSnapshot(s.out, snap, s.wordBits)
	}
	var errs []error
	if s.recorder != nil {
		errs = append(errs, s.recorder.Record(snap))
	}
	if s.publisher != nil {
		errs = append(errs, s.publisher.Publish(snap))
	}
	return errors.Join(errs...)
}

// Close flushes and releases the outputs
func (s *frameSink) Close() error {
	var errs []error
	if s.file != nil {
		errs = append(errs, s.file.Close())
		fmt.Fprintf(s.out, "recorded %d frames\n", s.recorder.Count())
	}
	if s.publisher != nil {
		published, failed := s.publisher.Counts()
		fmt.Fprintf(s.out, "published %d frames (%d failed)\n", published, failed)
		errs = append(errs, s.publisher.Close())
	}
	return errors.Join(errs...)
}
