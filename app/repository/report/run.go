// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package report implements repository access for the MySQL report sink,
// mirroring app/repository/collector's shape.
package report

import (
	reportModel "github.com/seakee/triggerd/app/model/report"
	"gorm.io/gorm"
)

type (
	// Repo defines persistence operations for recorded runs.
	Repo interface {
		CreateRun(*reportModel.Run) (int, error)
		ListRuns(limit int, scriptID string) ([]reportModel.Run, error)
		CountRuns(scriptID string) int64
	}

	// repo is a GORM-backed Repo implementation.
	repo struct {
		db *gorm.DB
	}
)

// CreateRun inserts a recorded run.
//
// Parameters:
//   - run: run model to persist.
//
// Returns:
//   - int: created record ID.
//   - error: insertion error.
func (r *repo) CreateRun(run *reportModel.Run) (int, error) {
	return run.Create(r.db)
}

// ListRuns returns up to limit runs, newest first, optionally filtered by
// script id.
//
// Parameters:
//   - limit: maximum rows returned; 0 means unlimited.
//   - scriptID: restricts results to one script when non-empty.
//
// Returns:
//   - []report.Run: matched runs.
//   - error: query error.
func (r *repo) ListRuns(limit int, scriptID string) ([]reportModel.Run, error) {
	m := &reportModel.Run{}
	if scriptID == "" {
		return m.ListByArgs(r.db, limit, "1 = 1")
	}
	return m.ListByArgs(r.db, limit, "script_id = ?", scriptID)
}

// CountRuns returns the number of recorded runs, optionally filtered by
// script id.
//
// Parameters:
//   - scriptID: restricts the count to one script when non-empty.
//
// Returns:
//   - int64: matched row count.
func (r *repo) CountRuns(scriptID string) int64 {
	m := &reportModel.Run{}
	if scriptID == "" {
		return m.CountByArgs(r.db, "1 = 1")
	}
	return m.CountByArgs(r.db, "script_id = ?", scriptID)
}

// NewRunRepo creates a run repository backed by db.
//
// Parameters:
//   - db: GORM database client.
//
// Returns:
//   - Repo: initialized repository implementation.
func NewRunRepo(db *gorm.DB) Repo {
	return &repo{db: db}
}
