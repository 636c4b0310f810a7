// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics mirrors the teacher's network/metrics.go shape: one struct of
// prometheus collectors, registered together and updated from the hot
// path without holding any other lock.
type metrics struct {
	numPeers               prometheus.Gauge
	connected              prometheus.Counter
	disconnected           prometheus.Counter
	acceptFailed            prometheus.Counter
	inboundConnAllowed      prometheus.Counter
	inboundConnRateLimited  prometheus.Counter
	replaysRejected         prometheus.Counter
	authFailures            prometheus.Counter
	envelopeRejected        prometheus.Counter
	syncDuration            prometheus.Histogram
}

func newMetrics(namespace string, registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		numPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers",
			Help:      "Number of peers currently in the peer table",
		}),
		connected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "times_connected",
			Help:      "Times this node completed a handshake with a peer",
		}),
		disconnected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "times_disconnected",
			Help:      "Times a peer connection was closed after handshake",
		}),
		acceptFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accept_failed",
			Help:      "Times the listener failed to accept an inbound connection",
		}),
		inboundConnAllowed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_conn_allowed",
			Help:      "Inbound connections admitted by the per-IP connection guard",
		}),
		inboundConnRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_conn_rate_limited",
			Help:      "Inbound connections refused because the per-IP cap was reached",
		}),
		replaysRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replays_rejected",
			Help:      "Messages rejected for reusing a nonce within the freshness window",
		}),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures",
			Help:      "Messages rejected for failing HMAC verification",
		}),
		envelopeRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelope_rejected",
			Help:      "Messages rejected by envelope validation (stale, malformed, oversize)",
		}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Wall-clock duration of a complete pairwise sync",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	collectors := []prometheus.Collector{
		m.numPeers,
		m.connected,
		m.disconnected,
		m.acceptFailed,
		m.inboundConnAllowed,
		m.inboundConnRateLimited,
		m.replaysRejected,
		m.authFailures,
		m.envelopeRejected,
		m.syncDuration,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
