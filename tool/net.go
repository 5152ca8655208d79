package tool

import (
	"context"
	"fmt"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// ProbeResult is the outcome of an endpoint reachability preflight.
type ProbeResult struct {
	Host       string
	PacketLoss float64
	AvgRtt     time.Duration
}

// ProbeEndpoint ICMP-pings the endpoint host a few times before an upload.
// Unprivileged UDP ping mode, so it works without CAP_NET_RAW; treat failure
// as advisory only since many API hosts drop ICMP.
func ProbeEndpoint(ctx context.Context, endpoint string) (*ProbeResult, error) {
	host, err := EndpointHost(endpoint)
	if err != nil {
		return nil, err
	}

	pinger, err := probing.NewPinger(host)
	if err != nil {
		return nil, fmt.Errorf("failed to create pinger for %s: %v", host, err)
	}
	pinger.Count = 3
	pinger.Interval = 200 * time.Millisecond
	pinger.Timeout = 3 * time.Second
	pinger.SetPrivileged(false)

	if err := pinger.RunWithContext(ctx); err != nil {
		return nil, fmt.Errorf("probe of %s failed: %v", host, err)
	}
	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return nil, fmt.Errorf("probe of %s got no replies (host may drop ICMP)", host)
	}
	return &ProbeResult{
		Host:       host,
		PacketLoss: stats.PacketLoss,
		AvgRtt:     stats.AvgRtt,
	}, nil
}
