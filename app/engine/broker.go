// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package engine

import (
	"time"

	"github.com/seakee/triggerd/app/lock"
)

// HostBroker adapts *lock.Broker to the engine's LockBroker interface.
type HostBroker struct {
	broker *lock.Broker
}

// NewHostBroker wraps a host-local lock.Broker for use by an Engine.
func NewHostBroker(b *lock.Broker) HostBroker {
	return HostBroker{broker: b}
}

func (h HostBroker) Acquire(group string, timeoutSeconds float64, pollInterval time.Duration) (bool, func()) {
	result, handle := h.broker.Acquire(group, timeoutSeconds, pollInterval)
	if !result.Acquired {
		return false, nil
	}
	return true, func() { lock.Release(handle) }
}

// DistributedLockBroker adapts *lock.DistributedBroker to the engine's
// LockBroker interface, for fleets coordinating across hosts over Redis.
type DistributedLockBroker struct {
	broker *lock.DistributedBroker
}

// NewDistributedBroker wraps a Redis-backed lock.DistributedBroker for use
// by an Engine.
func NewDistributedBroker(b *lock.DistributedBroker) DistributedLockBroker {
	return DistributedLockBroker{broker: b}
}

func (d DistributedLockBroker) Acquire(group string, timeoutSeconds float64, pollInterval time.Duration) (bool, func()) {
	_, acquired := d.broker.Acquire(group, timeoutSeconds, pollInterval)
	if !acquired {
		return false, nil
	}
	return true, func() { d.broker.Release(group) }
}
