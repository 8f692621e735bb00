// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package report provides service-layer orchestration for the optional
// MySQL report sink, mirroring app/service/collector's shape.
package report

import (
	"context"
	"database/sql"
	"time"

	"github.com/seakee/triggerd/app/logstore"
	reportModel "github.com/seakee/triggerd/app/model/report"
	"github.com/seakee/triggerd/app/repository/report"
	"github.com/sk-pkg/logger"
	"gorm.io/gorm"
)

type (
	// Sink defines business operations for the MySQL report store.
	Sink interface {
		// Record mirrors one logstore.Event into the runs table.
		Record(ctx context.Context, host string, ev logstore.Event) error

		// History returns up to limit recorded runs, newest first,
		// optionally restricted to one script.
		History(scriptID string, limit int) ([]reportModel.Run, error)

		// Count returns the number of recorded runs, optionally restricted
		// to one script.
		Count(scriptID string) int64
	}

	// sink is the default Sink implementation.
	sink struct {
		repo   report.Repo
		logger *logger.Manager
	}
)

// Record persists one script execution event.
//
// Parameters:
//   - ctx: request or tick-scoped context.
//   - host: hostname of the triggerd instance that produced ev, so a fleet
//     sharing one MySQL instance can tell runs apart.
//   - ev: the logstore event to mirror.
//
// Returns:
//   - error: storage error.
func (s sink) Record(ctx context.Context, host string, ev logstore.Event) error {
	run := &reportModel.Run{
		Host:       host,
		RunID:      ev.RunID,
		ScriptID:   ev.ScriptID,
		ScriptName: ev.ScriptName,
		StartedAt:  unixToTime(ev.StartedAt),
		EndedAt:    unixToTime(ev.EndedAt),
		OK:         ev.OK,
		Timeout:    ev.Timeout,
		Error:      ev.Error,
	}
	if ev.ExitCode != nil {
		run.ExitCode = sql.NullInt64{Int64: int64(*ev.ExitCode), Valid: true}
	}

	_, err := s.repo.CreateRun(run)
	return err
}

// History returns recorded runs for reporting/export.
func (s sink) History(scriptID string, limit int) ([]reportModel.Run, error) {
	return s.repo.ListRuns(limit, scriptID)
}

// Count returns the number of recorded runs.
func (s sink) Count(scriptID string) int64 {
	return s.repo.CountRuns(scriptID)
}

// NewSink creates a Sink backed by db.
//
// Parameters:
//   - db: GORM database client for the report store.
//   - logger: logger manager for storage-failure warnings.
//
// Returns:
//   - Sink: initialized sink implementation.
func NewSink(db *gorm.DB, logger *logger.Manager) Sink {
	return &sink{repo: report.NewRunRepo(db), logger: logger}
}

// unixToTime converts a fractional Unix-epoch-seconds timestamp (the
// logstore.Event wire shape) into a time.Time, or the zero Time for an
// unset (0) timestamp.
func unixToTime(seconds float64) time.Time {
	if seconds == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(seconds*float64(time.Second)))
}
