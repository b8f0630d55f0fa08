// Package connectivity classifies network reachability and drives mode
// switches on edge transitions.
package connectivity

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexvoice/internal/metrics"
)

// Checker probes reachability: a TCP dial to a well-known resolver first,
// an HTTP GET as fallback for networks that block raw DNS dials.
type Checker struct {
	logger   zerolog.Logger
	dialAddr string
	probeURL string
	timeout  time.Duration
	dialer   *net.Dialer
	client   *http.Client
}

// NewChecker creates a checker for the given probe targets.
func NewChecker(dialAddr, probeURL string, timeout time.Duration, logger zerolog.Logger) *Checker {
	return &Checker{
		logger:   logger.With().Str("component", "connectivity").Logger(),
		dialAddr: dialAddr,
		probeURL: probeURL,
		timeout:  timeout,
		dialer:   &net.Dialer{Timeout: timeout},
		client:   &http.Client{Timeout: timeout},
	}
}

// Check reports whether the network is reachable right now.
func (c *Checker) Check(ctx context.Context) bool {
	ok := c.probe(ctx)
	if ok {
		metrics.ConnectivityProbes.WithLabelValues("up").Inc()
	} else {
		metrics.ConnectivityProbes.WithLabelValues("down").Inc()
	}
	return ok
}

func (c *Checker) probe(ctx context.Context) bool {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.dialAddr)
	if err == nil {
		conn.Close()
		return true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Both connectivity probes failed")
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
