// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package report defines the persistence model for the optional MySQL
// report sink, mirroring the teacher's app/model/collector.Log shape: a
// flat table fed by one source of truth (there, collected container log
// lines; here, logstore.Event records) and read back for fleet-wide
// reporting across more than one triggerd host.
package report

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Run is one persisted script execution, the MySQL mirror of a single
// logstore.Event line.
type Run struct {
	ID         int            `gorm:"primaryKey;column:id" json:"-"`
	Host       string         `gorm:"host" json:"host"`
	RunID      string         `gorm:"run_id" json:"run_id"`
	ScriptID   string         `gorm:"script_id" json:"script_id"`
	ScriptName string         `gorm:"script_name" json:"script_name"`
	StartedAt  time.Time      `gorm:"started_at" json:"started_at"`
	EndedAt    time.Time      `gorm:"ended_at" json:"ended_at"`
	OK         bool           `gorm:"ok" json:"ok"`
	ExitCode   sql.NullInt64  `gorm:"exit_code" json:"exit_code"`
	Timeout    bool           `gorm:"timeout" json:"timeout"`
	Error      string         `gorm:"error" json:"error"`
	Extra      datatypes.JSON `gorm:"extra" json:"extra"`
}

// TableName returns the database table name for Run.
//
// Returns:
//   - string: physical table name in MySQL.
func (r *Run) TableName() string {
	return "runs"
}

// Create inserts the current Run record into the database.
//
// Parameters:
//   - db: GORM database client.
//
// Returns:
//   - int: auto-increment primary key of the inserted record.
//   - error: wrapped create error when insertion fails.
func (r *Run) Create(db *gorm.DB) (id int, err error) {
	if err = db.Create(r).Error; err != nil {
		return 0, errors.Wrap(err, "create err")
	}

	return r.ID, nil
}

// ListByArgs returns runs filtered by raw query conditions, newest first.
//
// Parameters:
//   - db: GORM database client.
//   - limit: maximum rows returned.
//   - query: SQL where expression or struct condition.
//   - args: query placeholder arguments.
//
// Returns:
//   - []Run: matched runs ordered by descending ID.
//   - error: query error.
func (r *Run) ListByArgs(db *gorm.DB, limit int, query interface{}, args ...interface{}) (runs []Run, err error) {
	q := db.Where(query, args...).Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err = q.Find(&runs).Error
	return
}

// CountByArgs returns the number of runs matching raw query conditions.
//
// Parameters:
//   - db: GORM database client.
//   - query: SQL where expression or struct condition.
//   - args: query placeholder arguments.
//
// Returns:
//   - int64: matched row count.
func (r *Run) CountByArgs(db *gorm.DB, query interface{}, args ...interface{}) (total int64) {
	db.Model(&Run{}).Where(query, args...).Count(&total)
	return
}
