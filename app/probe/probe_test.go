// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sk-pkg/logger"
)

func TestNoopIdleProbeAlwaysUnknown(t *testing.T) {
	seconds, ok := (NoopIdleProbe{}).IdleSeconds(context.Background())
	if ok {
		t.Fatalf("expected NoopIdleProbe to never answer, got ok=true seconds=%v", seconds)
	}
}

func TestNoopAppsProbeAlwaysEmpty(t *testing.T) {
	apps := (NoopAppsProbe{}).RunningApps(context.Background())
	if len(apps) != 0 {
		t.Fatalf("expected NoopAppsProbe to report no apps, got %v", apps)
	}
}

func TestRestyNetworkProbeReturnsBodyOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("203.0.113.5\n"))
	}))
	defer srv.Close()

	log, err := logger.New()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	p := NewRestyNetworkProbe(srv.URL, log)
	ip, ok := p.LocalIP(context.Background())
	if !ok {
		t.Fatalf("expected probe to succeed")
	}
	if ip != "203.0.113.5" {
		t.Fatalf("expected trimmed IP body, got %q", ip)
	}
}

func TestRestyNetworkProbeUnreachableReportsNotOK(t *testing.T) {
	log, err := logger.New()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	p := NewRestyNetworkProbe("http://127.0.0.1:1", log)
	_, ok := p.LocalIP(context.Background())
	if ok {
		t.Fatalf("expected probe against an unreachable endpoint to report ok=false")
	}
}

func TestRestyNetworkProbeNonOKStatusReportsNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	log, err := logger.New()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	p := NewRestyNetworkProbe(srv.URL, log)
	_, ok := p.LocalIP(context.Background())
	if ok {
		t.Fatalf("expected a non-200 response to report ok=false")
	}
}

func TestTrimLeadingSlash(t *testing.T) {
	cases := map[string]string{
		"/my-container": "my-container",
		"no-slash":      "no-slash",
		"":              "",
	}
	for in, want := range cases {
		if got := trimLeadingSlash(in); got != want {
			t.Fatalf("trimLeadingSlash(%q) = %q, want %q", in, got, want)
		}
	}
}
