package device

import (
	"context"
	"net"
	"time"

	"github.com/projectdiscovery/gcache"
	"github.com/projectdiscovery/gologger"
)

const (
	DefaultProbeTimeout  = time.Second
	DefaultProbeCacheTTL = 10 * time.Second

	probeCacheSize = 1024
)

// Prober checks whether an ip device answers.
type Prober interface {
	Reachable(ctx context.Context, address string) bool
}

// TCPProber considers a host:port reachable when a TCP connection to it
// can be established. Results are remembered for a short while so several
// devices sharing an address cost a single dial per poll.
type TCPProber struct {
	timeout time.Duration
	results gcache.Cache[string, bool]
}

// NewTCPProber creates a prober. A cacheTTL of zero disables result caching.
func NewTCPProber(timeout, cacheTTL time.Duration) *TCPProber {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	p := &TCPProber{timeout: timeout}
	if cacheTTL > 0 {
		p.results = gcache.New[string, bool](probeCacheSize).
			LRU().
			Expiration(cacheTTL).
			Build()
	}
	return p
}

// Reachable dials address over TCP.
func (p *TCPProber) Reachable(ctx context.Context, address string) bool {
	if p.results != nil {
		if reachable, err := p.results.GetIFPresent(address); err == nil {
			return reachable
		}
	}

	gologger.Debug().Msgf("probe: connect %s", address)

	dialer := net.Dialer{Timeout: p.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	reachable := err == nil
	if conn != nil {
		_ = conn.Close()
	}

	// a cancelled probe says nothing about the device
	if p.results != nil && ctx.Err() == nil {
		_ = p.results.Set(address, reachable)
	}
	return reachable
}
