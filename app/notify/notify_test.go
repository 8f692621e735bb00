// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package notify

import (
	"context"
	"testing"
)

func TestFeishuNotifierNoopWithoutManager(t *testing.T) {
	n := NewFeishuNotifier(nil)
	if err := n.Notify(context.Background(), "should not be sent"); err != nil {
		t.Fatalf("expected no-op notify to succeed, got %v", err)
	}
}

func TestNoopNotifierNeverErrors(t *testing.T) {
	if err := (NoopNotifier{}).Notify(context.Background(), "anything"); err != nil {
		t.Fatalf("expected NoopNotifier to never error, got %v", err)
	}
}
