// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package admin provides the operator-facing HTTP handlers over the
// trigger engine: script listing/status, manual trigger, enable/disable,
// lock status, and tail/history views, the remote counterpart to
// cmd/triggerctl's local-file operations (spec.md §6).
package admin

import (
	"context"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/seakee/triggerd/app/engine"
	"github.com/seakee/triggerd/app/lock"
	"github.com/seakee/triggerd/app/logstore"
	"github.com/seakee/triggerd/app/pkg/e"
	"github.com/seakee/triggerd/app/registry"
	reportModel "github.com/seakee/triggerd/app/model/report"
	"github.com/seakee/triggerd/app/service/report"
	"github.com/sk-pkg/i18n"
	"github.com/sk-pkg/logger"
)

type (
	// Handler defines the admin HTTP surface over the trigger engine.
	Handler interface {
		ctx(c *gin.Context) context.Context

		// ListScripts returns every discovered script with its last run.
		ListScripts() gin.HandlerFunc
		// GetScript returns one script's manifest and last run.
		GetScript() gin.HandlerFunc
		// Trigger runs one script immediately and waits for its outcome.
		Trigger() gin.HandlerFunc
		// SetEnabled flips a script's enabled flag.
		SetEnabled() gin.HandlerFunc
		// Locks reports the lock broker's directory state.
		Locks() gin.HandlerFunc
		// Tail returns the last n execution log events.
		Tail() gin.HandlerFunc
		// History returns recorded runs from the optional MySQL report sink.
		History() gin.HandlerFunc
	}

	// handler is the default Handler implementation.
	handler struct {
		logger   *logger.Manager
		i18n     *i18n.Manager
		registry *registry.Registry
		logStore *logstore.Store
		engine   *engine.Engine
		locksDir string
		report   report.Sink // nil when no MySQL report sink is configured.
	}

	// scriptView is one row of ListScripts/GetScript's response payload.
	scriptView struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Enabled   bool            `json:"enabled"`
		Kind      registry.Kind   `json:"kind"`
		LockGroup string          `json:"lock_group,omitempty"`
		LastRun   *logstore.Event `json:"last_run,omitempty"`
	}
)

// New creates an admin handler over the trigger engine's shared stores.
//
// Parameters:
//   - logger: structured logger manager.
//   - i18n: i18n manager for localized API responses.
//   - reg: manifest registry to list/mutate scripts through.
//   - logStore: execution log store to read run history from.
//   - eng: running trigger engine, used for manual triggers.
//   - locksDir: lock broker's directory, for the Locks view.
//   - reportSink: optional MySQL report sink; nil disables History.
//
// Returns:
//   - Handler: initialized admin HTTP handler.
func New(logger *logger.Manager, i18n *i18n.Manager, reg *registry.Registry, logStore *logstore.Store, eng *engine.Engine, locksDir string, reportSink report.Sink) Handler {
	return &handler{
		logger:   logger,
		i18n:     i18n,
		registry: reg,
		logStore: logStore,
		engine:   eng,
		locksDir: locksDir,
		report:   reportSink,
	}
}

// ctx builds a request-scoped context carrying the trace ID from Gin context.
func (h *handler) ctx(c *gin.Context) context.Context {
	traceID, _ := c.Get("trace_id")
	if id, ok := traceID.(string); ok {
		return context.WithValue(context.Background(), logger.TraceIDKey, id)
	}
	return context.Background()
}

// ListScripts returns every discovered script, sorted by id, merged
// with its most recent logged run.
func (h *handler) ListScripts() gin.HandlerFunc {
	return func(c *gin.Context) {
		scripts, err := h.registry.Discover()
		if err != nil {
			h.i18n.JSON(c, e.ERROR, nil, err)
			return
		}

		last, err := h.logStore.LastByScript()
		if err != nil {
			h.i18n.JSON(c, e.ERROR, nil, err)
			return
		}

		views := make([]scriptView, 0, len(scripts))
		for _, s := range scripts {
			views = append(views, toScriptView(s, last))
		}
		sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })

		h.i18n.JSON(c, e.SUCCESS, gin.H{"scripts": views}, nil)
	}
}

// GetScript returns one script's manifest and most recent logged run.
func (h *handler) GetScript() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		scripts, err := h.registry.Discover()
		if err != nil {
			h.i18n.JSON(c, e.ERROR, nil, err)
			return
		}

		s, found := scripts[id]
		if !found {
			h.i18n.JSON(c, e.ScriptNotFound, nil, nil)
			return
		}

		last, _ := h.logStore.LastByScript()
		h.i18n.JSON(c, e.SUCCESS, gin.H{"script": toScriptView(s, last)}, nil)
	}
}

// Trigger runs one script immediately, outside its own schedule, and
// blocks until the run completes.
func (h *handler) Trigger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		ok, runID, err := h.engine.Trigger(h.ctx(c), id)
		switch {
		case err == engine.ErrScriptNotFound:
			h.i18n.JSON(c, e.ScriptNotFound, nil, nil)
		case err == engine.ErrScriptBusy:
			h.i18n.JSON(c, e.LockGroupBusy, nil, nil)
		case err != nil:
			h.i18n.JSON(c, e.LockGroupBusy, nil, err)
		default:
			h.i18n.JSON(c, e.SUCCESS, gin.H{"ok": ok, "run_id": runID}, nil)
		}
	}
}

type setEnabledReqParams struct {
	Enabled bool `json:"enabled"`
}

// SetEnabled flips a script's enabled flag in its manifest.
func (h *handler) SetEnabled() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		var params setEnabledReqParams
		if err := c.ShouldBindJSON(&params); err != nil {
			h.i18n.JSON(c, e.InvalidParams, nil, err)
			return
		}

		err := h.registry.Update(id, func(m map[string]interface{}) {
			m["enabled"] = params.Enabled
		})
		if err != nil {
			h.i18n.JSON(c, e.ScriptNotFound, nil, err)
			return
		}

		h.i18n.JSON(c, e.SUCCESS, gin.H{"id": id, "enabled": params.Enabled}, nil)
	}
}

// Locks reports one entry per lock file found under the broker directory.
func (h *handler) Locks() gin.HandlerFunc {
	return func(c *gin.Context) {
		names, err := lock.ListGroups(h.locksDir)
		if err != nil {
			h.i18n.JSON(c, e.ERROR, nil, err)
			return
		}
		h.i18n.JSON(c, e.SUCCESS, gin.H{"groups": names}, nil)
	}
}

// Tail returns the last n execution log events (default 50).
func (h *handler) Tail() gin.HandlerFunc {
	return func(c *gin.Context) {
		n := 50
		if raw := c.Query("n"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				n = parsed
			}
		}

		events, err := h.logStore.Recent(n)
		if err != nil {
			h.i18n.JSON(c, e.ERROR, nil, err)
			return
		}

		h.i18n.JSON(c, e.SUCCESS, gin.H{"events": events}, nil)
	}
}

// History returns recorded runs from the optional MySQL report sink.
// Returns an empty list, not an error, when no sink is configured: the
// report store is opt-in infrastructure (spec.md §9), not every deployment
// carries a MySQL instance.
func (h *handler) History() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.report == nil {
			h.i18n.JSON(c, e.SUCCESS, gin.H{"runs": []reportModel.Run{}}, nil)
			return
		}

		scriptID := c.Query("script_id")
		limit := 100
		if raw := c.Query("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}

		runs, err := h.report.History(scriptID, limit)
		if err != nil {
			h.i18n.JSON(c, e.ERROR, nil, err)
			return
		}

		h.i18n.JSON(c, e.SUCCESS, gin.H{"runs": runs, "count": h.report.Count(scriptID)}, nil)
	}
}

func toScriptView(s registry.Script, last map[string]logstore.Event) scriptView {
	view := scriptView{
		ID:        s.ID,
		Name:      s.Name,
		Enabled:   s.Enabled,
		Kind:      s.Schedule.Kind,
		LockGroup: s.LockGroup,
	}
	if ev, ok := last[s.ID]; ok {
		view.LastRun = &ev
	}
	return view
}
