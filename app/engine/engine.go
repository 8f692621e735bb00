// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package engine implements the Trigger Engine (spec.md §4.7): the single
// supervisor loop that ties the Manifest Registry, Scheduler State Store,
// Log Store, Lock Broker, Event Probes, and Script Executor together. It
// mirrors the teacher's app/pkg/schedule.Schedule.Start tick loop shape —
// a ticker-driven goroutine calling into per-schedule handlers — widened
// to the five trigger families this system supports.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/seakee/triggerd/app/executor"
	"github.com/seakee/triggerd/app/lock"
	"github.com/seakee/triggerd/app/logstore"
	"github.com/seakee/triggerd/app/notify"
	"github.com/seakee/triggerd/app/probe"
	"github.com/seakee/triggerd/app/registry"
	"github.com/seakee/triggerd/app/state"
	"go.uber.org/zap"
)

// Tunable thresholds fixed by spec.md §4.7.
const (
	idleResetSeconds          = 3.0
	eventDebounceSeconds      = 2.0
	networkFlapDampSeconds    = 2.0
	eventScriptCooldownSeconds = 2.0
	defaultDispatchTimeout    = 20.0
)

// LockBroker is the uniform shape both the host-local Broker and the
// optional Redis-backed DistributedBroker are adapted to, so the engine's
// dispatch discipline (§4.7.2) doesn't care which backend is configured.
type LockBroker interface {
	Acquire(group string, timeoutSeconds float64, pollInterval time.Duration) (acquired bool, release func())
}

// Logger is the narrow slice of sk-pkg/logger.Manager's interface the
// engine needs, kept narrow so tests can supply a no-op stand-in.
type Logger interface {
	Info(ctx context.Context, msg string, fields ...zap.Field)
	Warn(ctx context.Context, msg string, fields ...zap.Field)
}

// Engine is the tick-driven supervisor described in spec.md §4.7.
type Engine struct {
	registry *registry.Registry
	logStore *logstore.Store
	state    *state.Store
	lock     LockBroker
	runner   *executor.Runner

	idleProbe    probe.IdleProbe
	appsProbe    probe.AppsProbe
	networkProbe probe.NetworkProbe

	notifier notify.Notifier

	tick           time.Duration
	defaultTimeout float64
	logger         Logger

	onFailureMu     sync.Mutex
	onFailureStreak map[string]int // on_failure script id -> consecutive failure count. Guarded by onFailureMu: mutated from dispatch goroutines and purged from the tick goroutine.

	// Cross-tick bookkeeping. idleFired, nextPoll and lastMtime (and
	// onFailureStreak above) are purged per script id when a script
	// disappears from discovery (spec.md §4.7 step 2); lastApps and
	// lastEventAt are keyed by app/event rather than script id, and
	// cooldownAt entries are not purged.
	lastApps    map[string]bool
	lastEventAt map[string]time.Time // (event_kind:app) debounce cursor.
	idleFired   map[string]bool
	nextPoll    map[string]time.Time
	lastMtime   map[string]time.Time
	cooldownAt  map[string]time.Time // (id:event.type) cooldown cursor.

	hadNetwork      bool
	lastNetworkIP   string
	lastNetworkFlip time.Time

	idleSeconds float64
	idleSeenOK  bool

	onFailureOffset int64

	running  sync.Map // script id -> struct{}; in-process re-entry guard.
	inflight sync.WaitGroup
}

// Options configures a new Engine.
type Options struct {
	Registry       *registry.Registry
	LogStore       *logstore.Store
	State          *state.Store
	Lock           LockBroker
	Runner         *executor.Runner
	IdleProbe      probe.IdleProbe
	AppsProbe      probe.AppsProbe
	NetworkProbe   probe.NetworkProbe
	Notifier       notify.Notifier
	TickInterval   time.Duration
	DefaultTimeout float64
	Logger         Logger
}

// New builds an Engine from Options, filling safe defaults for anything
// left zero (nil probes become no-ops, per spec.md §9's "platform-specific
// probes" note).
func New(opts Options) *Engine {
	if opts.IdleProbe == nil {
		opts.IdleProbe = probe.NoopIdleProbe{}
	}
	if opts.AppsProbe == nil {
		opts.AppsProbe = probe.NoopAppsProbe{}
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NoopNotifier{}
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = 500 * time.Millisecond
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = defaultDispatchTimeout
	}

	// Seed the on_failure tailer at the log's current EOF, not 0: per
	// spec.md §5, a restart begins from the current end of the log, so
	// failures recorded before this process started never re-fire.
	var onFailureOffset int64
	if opts.LogStore != nil {
		if size, err := opts.LogStore.Size(); err == nil {
			onFailureOffset = size
		}
	}

	return &Engine{
		registry:       opts.Registry,
		logStore:       opts.LogStore,
		state:          opts.State,
		lock:           opts.Lock,
		runner:         opts.Runner,
		idleProbe:      opts.IdleProbe,
		appsProbe:      opts.AppsProbe,
		networkProbe:   opts.NetworkProbe,
		notifier:       opts.Notifier,
		tick:           opts.TickInterval,
		defaultTimeout: opts.DefaultTimeout,
		logger:         opts.Logger,

		lastApps:        map[string]bool{},
		lastEventAt:     map[string]time.Time{},
		idleFired:       map[string]bool{},
		nextPoll:        map[string]time.Time{},
		lastMtime:       map[string]time.Time{},
		cooldownAt:      map[string]time.Time{},
		onFailureStreak: map[string]int{},
		onFailureOffset: onFailureOffset,
	}
}

// Run drives the supervisor loop until ctx is cancelled, per spec.md §5's
// "single supervisor loop drives all trigger evaluation and dispatch"
// and §4.7's tick contract. Scheduler state is saved inside every tick that
// changes it, so none is left unsaved when Run returns; on cancellation Run
// waits for in-flight dispatches and then returns.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.inflight.Wait()
			return
		case <-ticker.C:
			e.runTick(ctx)
		}
	}
}

// runTick executes exactly one iteration of the tick contract (spec.md
// §4.7, steps 1-12).
func (e *Engine) runTick(ctx context.Context) {
	now := time.Now()

	scripts, err := e.registry.Discover()
	if err != nil {
		e.logWarn(ctx, "registry discover failed", err)
		return
	}

	enabled := map[string]registry.Script{}
	keep := map[string]bool{}
	for id, s := range scripts {
		keep[id] = true
		if s.Enabled {
			enabled[id] = s
		}
	}

	st := e.state.Load()
	mutated := st.Purge(keep)
	e.purgeTickMaps(keep)

	e.idlePreStep(ctx, now)
	appSignals := e.appDiffPreStep(ctx, now)
	netEvent, _ := e.networkDiffPreStep(ctx, now)

	e.idleDispatch(ctx, enabled, now)
	e.discreteEventDispatch(ctx, enabled, now, appSignals, netEvent)
	e.onFailureDispatch(ctx, enabled)

	if e.scheduledDispatch(ctx, enabled, st, now) {
		mutated = true
	}

	e.fileWatchDispatch(ctx, enabled, now)

	if mutated {
		if err := e.state.Save(st); err != nil {
			e.logWarn(ctx, "persist scheduler state failed", err)
		}
	}
}

// purgeTickMaps drops bookkeeping entries for script ids no longer
// discovered, per spec.md §4.7 step 2.
func (e *Engine) purgeTickMaps(keep map[string]bool) {
	for id := range e.idleFired {
		if !keep[id] {
			delete(e.idleFired, id)
		}
	}
	for id := range e.nextPoll {
		if !keep[id] {
			delete(e.nextPoll, id)
		}
	}
	for id := range e.lastMtime {
		if !keep[id] {
			delete(e.lastMtime, id)
		}
	}
	e.onFailureMu.Lock()
	for id := range e.onFailureStreak {
		if !keep[id] {
			delete(e.onFailureStreak, id)
		}
	}
	e.onFailureMu.Unlock()
}

func (e *Engine) logWarn(ctx context.Context, msg string, err error) {
	if e.logger == nil {
		return
	}
	e.logger.Warn(ctx, msg, zap.Error(err))
}
