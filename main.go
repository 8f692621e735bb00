// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package main wires configuration loading, dependency bootstrap, and process
// lifecycle waiting for the triggerd daemon.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/seakee/triggerd/app"
	"github.com/seakee/triggerd/app/pkg/pidfile"
	"github.com/seakee/triggerd/bootstrap"
)

// main initializes runtime settings, boots the application, and blocks until
// a termination signal arrives, per spec.md §4.7's "supervisor installs
// signal handlers for SIGTERM and SIGINT" shutdown contract.
//
// Returns:
//   - None.
func main() {
	// Use all available CPUs because the service starts concurrent workers.
	runtime.GOMAXPROCS(runtime.NumCPU())

	config, err := app.LoadConfig()
	if err != nil {
		log.Fatal("Loading config error: ", err)
	}

	a, err := bootstrap.NewApp(config)
	if err != nil {
		log.Fatal("New App error: ", err)
	}

	pidPath := filepath.Join(config.Engine.DataDir, "daemon.pid")
	if err := pidfile.Write(pidPath); err != nil {
		log.Fatal("Writing pid file error: ", err)
	}
	defer pidfile.Remove(pidPath)

	ctx, cancel := context.WithCancel(context.Background())

	a.Start(ctx)

	s := waitForSignal()
	log.Println("Signal received, shutting down.", s)

	cancel()
	a.Shutdown(ctx)
}

// waitForSignal blocks until SIGTERM or SIGINT is received.
//
// Returns:
//   - os.Signal: the signal that terminates the process.
//
// Example:
//
//	sig := waitForSignal()
//	log.Println("shutdown:", sig)
func waitForSignal() os.Signal {
	signalChan := make(chan os.Signal, 1)
	defer close(signalChan)
	signal.Notify(signalChan, syscall.SIGTERM, os.Interrupt)
	s := <-signalChan
	signal.Stop(signalChan)
	return s
}
