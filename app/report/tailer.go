// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package report drives the optional MySQL report sink from the log
// store, the way the engine's own on_failure dispatch tails newly
// appended bytes rather than re-reading the whole file every cycle.
package report

import (
	"context"
	"os"
	"time"

	"github.com/seakee/triggerd/app/logstore"
	"github.com/seakee/triggerd/app/service/report"
	"github.com/sk-pkg/logger"
	"go.uber.org/zap"
)

const pollInterval = 2 * time.Second

// Tailer polls a logstore.Store for newly appended events and mirrors
// each one into a report.Sink. It is entirely optional and never runs on
// the engine's tick path.
type Tailer struct {
	logStore *logstore.Store
	sink     report.Sink
	logger   *logger.Manager
	host     string
	offset   int64
}

// NewTailer creates a Tailer reading from logStore and writing into sink.
//
// Parameters:
//   - logStore: the log store to tail.
//   - sink: the report sink newly observed events are mirrored into.
//   - log: logger manager for storage-failure warnings.
//
// Returns:
//   - *Tailer: ready-to-run tailer; call Run to start polling.
func NewTailer(logStore *logstore.Store, sink report.Sink, log *logger.Manager) *Tailer {
	host, _ := os.Hostname()
	return &Tailer{logStore: logStore, sink: sink, logger: log, host: host}
}

// Run polls the log store until ctx is cancelled, mirroring every newly
// appended event into the report sink.
//
// Parameters:
//   - ctx: context that stops the tailer when cancelled.
//
// Returns:
//   - None.
func (t *Tailer) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.poll(ctx)
		}
	}
}

func (t *Tailer) poll(ctx context.Context) {
	data, newOffset, err := t.logStore.TailSince(t.offset)
	t.offset = newOffset
	if err != nil {
		if t.logger != nil {
			t.logger.Warn(ctx, "report tailer: read failed", zap.Error(err))
		}
		return
	}
	if len(data) == 0 {
		return
	}

	for _, ev := range logstore.ParseEvents(data) {
		if err := t.sink.Record(ctx, t.host, ev); err != nil {
			if t.logger != nil {
				t.logger.Warn(ctx, "report tailer: record failed", zap.String("script_id", ev.ScriptID), zap.Error(err))
			}
		}
	}
}
