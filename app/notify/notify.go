// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package notify implements the optional alerting channel named in
// SPEC_FULL.md's supplemented features: a Feishu ("Lark") notifier used for
// one thing the engine itself never talks about directly — an on_failure
// script that itself fails twice in a row (so a silently broken recovery
// script doesn't go unnoticed). Daemon start/stop sends no message. It is
// grounded on the teacher's own Feishu wiring (app/config.go's Feishu block,
// bootstrap/app.go's loadFeishu), built on the same github.com/sk-pkg/feishu
// manager the teacher constructs rather than a hand-rolled webhook call.
package notify

import (
	"context"
	"fmt"

	"github.com/sk-pkg/feishu"
)

// Notifier sends a short text alert to an operator-facing channel. The
// Engine substitutes NoopNotifier when none is configured, so wiring this
// up is opt-in.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// FeishuNotifier posts text messages through a *feishu.Manager, the same
// client the teacher constructs in bootstrap.loadFeishu.
type FeishuNotifier struct {
	mgr *feishu.Manager
}

// NewFeishuNotifier wraps an already-constructed Feishu manager. A nil mgr
// is accepted so callers can build a FeishuNotifier unconditionally and let
// Notify no-op until Feishu is actually enabled.
func NewFeishuNotifier(mgr *feishu.Manager) *FeishuNotifier {
	return &FeishuNotifier{mgr: mgr}
}

// Notify posts text as a Feishu message. It is a no-op when no manager is
// configured, so disabled deployments never attempt the call.
func (n *FeishuNotifier) Notify(ctx context.Context, text string) error {
	if n.mgr == nil {
		return nil
	}

	if err := n.mgr.SendText(text); err != nil {
		return fmt.Errorf("feishu notify: %w", err)
	}

	return nil
}

// NoopNotifier discards every message. Used as the Engine's default so
// alerting stays fully optional.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, string) error { return nil }
