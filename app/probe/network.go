// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package probe

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sk-pkg/logger"
	"go.uber.org/zap"
)

// CheckIPEndpoint is the default public IP-echo endpoint polled by
// RestyNetworkProbe, the same shape of call the teacher's
// app/job/monitor/ip.ipHandler.Exec makes against CheckCNIpApi.
const CheckIPEndpoint = "http://whatismyip.akamai.com/"

const probeTimeout = 1 * time.Second

// RestyNetworkProbe implements NetworkProbe by polling a public endpoint
// that echoes back the caller's IP, exactly the probe shape the teacher's
// ipHandler used to watch for broadband IP changes — repurposed here as a
// presence check for spec.md §4.6's local_ip probe ("None when unreachable
// within a short timeout (<=1s)").
type RestyNetworkProbe struct {
	client   *resty.Client
	endpoint string
	logger   *logger.Manager
}

// NewRestyNetworkProbe creates a RestyNetworkProbe against endpoint
// (CheckIPEndpoint when empty).
func NewRestyNetworkProbe(endpoint string, log *logger.Manager) *RestyNetworkProbe {
	if endpoint == "" {
		endpoint = CheckIPEndpoint
	}
	return &RestyNetworkProbe{
		client:   resty.New().SetTimeout(probeTimeout),
		endpoint: endpoint,
		logger:   log,
	}
}

// LocalIP reports the IP the default route resolves to, or ok=false when
// the endpoint cannot be reached within the probe timeout.
func (p *RestyNetworkProbe) LocalIP(ctx context.Context) (string, bool) {
	res, err := p.client.R().SetContext(ctx).Get(p.endpoint)
	if err != nil || res == nil || res.StatusCode() != 200 {
		if err != nil {
			p.logger.Warn(ctx, "network probe: request failed", zap.Error(err))
		}
		return "", false
	}

	ip := strings.TrimSpace(string(res.Body()))
	if ip == "" {
		return "", false
	}

	return ip, true
}
