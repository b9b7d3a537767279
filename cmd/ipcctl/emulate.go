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
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	spiipc "github.com/ZaparooProject/go-spiipc"
	"github.com/ZaparooProject/go-spiipc/monitor"
	"github.com/ZaparooProject/go-spiipc/transport/bridge"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var (
	emulateListen string
	emulatePath   string
	emulateResync bool
)

var emulateCmd = &cobra.Command{
	Use:   "emulate",
	Short: "Serve a slave behind a WebSocket bridge",
	Long: `Run a slave behind an emulated networked bridge so that "ipcctl send --url"
can be tried without hardware. Frames the slave completes are printed.`,
	RunE: runEmulate,
}

func init() {
	flags := emulateCmd.Flags()
	flags.StringVarP(&emulateListen, "listen", "l", "127.0.0.1:8765", "Listen address")
	flags.StringVar(&emulatePath, "path", "/spi", "WebSocket path")
	flags.BoolVar(&emulateResync, "resync", false, "Drop a cycle interrupted by a begin word instead of publishing it")
	rootCmd.AddCommand(emulateCmd)
}

func runEmulate(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cfg, err := busConfig(spiipc.RoleSlave)
	if err != nil {
		return err
	}
	slave, err := spiipc.NewSlave(cfg, spiipc.WithResyncOnBegin(emulateResync))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	mon := monitor.New(slave.Pool(), nil)
	mon.OnFrame = func(snap spiipc.Snapshot) error {
		printSnapshot(out, snap, cfg.WordBits)
		return nil
	}
	go func() { _ = mon.Run(ctx) }()

	// One session at a time; the slave state belongs to a single master
	sessions := make(chan struct{}, 1)
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc(emulatePath, func(w http.ResponseWriter, r *http.Request) {
		select {
		case sessions <- struct{}{}:
			defer func() { <-sessions }()
		default:
			http.Error(w, "bridge busy", http.StatusConflict)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			glog.Warningf("upgrade failed: %v", err)
			return
		}
		glog.Infof("bridge session from %s", r.RemoteAddr)
		if err := bridge.ServeWebSocket(conn, slave, cfg.WordBits); err != nil {
			glog.Warningf("bridge session ended: %v", err)
		}
	})

	srv := &http.Server{Addr: emulateListen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(out, "bridge listening on ws://%s%s\n", emulateListen, emulatePath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
