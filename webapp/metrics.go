// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package webapp

import (
	"context"
	"net/http"

	"github.com/hashicorp/oidc-webapp-demo/cache"
	"github.com/hashicorp/oidc-webapp-demo/security"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry           *prometheus.Registry
	securityEvents     *prometheus.CounterVec
	backChannelLogouts *prometheus.CounterVec
}

func newMetrics(registry *prometheus.Registry, c *cache.IntrospectionCache) *metrics {
	factory := promauto.With(registry)
	m := &metrics{
		registry: registry,
		securityEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webapp_security_events_total",
				Help: "Total number of security events published",
			},
			[]string{"type"},
		),
		backChannelLogouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webapp_back_channel_logouts_total",
				Help: "Total number of back-channel logout requests by outcome",
			},
			[]string{"outcome"},
		),
	}
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "webapp_introspection_cache_size",
			Help: "Number of access tokens in the introspection cache",
		},
		func() float64 { return float64(c.Size()) },
	)
	return m
}

// eventListener counts every security event by type.
func (m *metrics) eventListener() security.Listener {
	return security.ListenerFunc(func(_ context.Context, e security.Event) error {
		m.securityEvents.WithLabelValues(e.Type.String()).Inc()
		return nil
	})
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
