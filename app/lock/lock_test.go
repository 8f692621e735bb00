// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package lock

import (
	"testing"
	"time"
)

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"":             "default",
		"net":          "net",
		"my group/1":   "my_group_1",
		"a-b_c.d":      "a-b_c.d",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAcquireExclusion(t *testing.T) {
	dir := t.TempDir()
	b := New(dir)

	res1, h1 := b.Acquire("net", 0, 0)
	if !res1.Acquired {
		t.Fatal("expected first acquire to succeed")
	}
	defer Release(h1)

	res2, h2 := b.Acquire("net", 0, 0)
	if res2.Acquired {
		t.Fatal("expected second concurrent acquire to fail")
	}
	if h2 != nil {
		t.Fatal("expected nil handle on failed acquire")
	}
}

func TestAcquireReleaseThenReacquire(t *testing.T) {
	dir := t.TempDir()
	b := New(dir)

	res1, h1 := b.Acquire("net", 0, 0)
	if !res1.Acquired {
		t.Fatal("expected acquire to succeed")
	}
	Release(h1)

	res2, h2 := b.Acquire("net", 0, 0)
	if !res2.Acquired {
		t.Fatal("expected reacquire after release to succeed")
	}
	Release(h2)
}

func TestAcquireWaitTimesOut(t *testing.T) {
	dir := t.TempDir()
	b := New(dir)

	_, h1 := b.Acquire("net", 0, 0)
	defer Release(h1)

	start := time.Now()
	res, h2 := b.Acquire("net", 0.2, 50*time.Millisecond)
	elapsed := time.Since(start)

	if res.Acquired || h2 != nil {
		t.Fatal("expected wait-mode acquire to time out while held")
	}
	if elapsed < 150*time.Millisecond {
		t.Fatalf("expected acquire to wait close to timeout, elapsed=%v", elapsed)
	}
}
