// Package metrics defines the Prometheus instrumentation shared across
// the onboarding and tenancy components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	// Onboarding metrics
	InstallationsTotal  *prometheus.CounterVec
	AuthorizationsTotal *prometheus.CounterVec

	// Provisioning metrics
	SchemasProvisioned prometheus.Counter
	MigrationsTotal    *prometheus.CounterVec
	ProvisionDuration  prometheus.Histogram

	// Tenant connection router metrics
	TenantCacheHits   prometheus.Counter
	TenantCacheMisses prometheus.Counter
	TenantPoolsActive prometheus.Gauge
}

// New creates and registers all collectors with the given registerer.
// Tests pass a private registry; main uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		InstallationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storegate_installations_total",
				Help: "Installation requests processed",
			},
			[]string{"result"},
		),

		AuthorizationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storegate_authorizations_total",
				Help: "Authorization requests processed",
			},
			[]string{"result"},
		),

		SchemasProvisioned: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "storegate_schemas_provisioned_total",
				Help: "Tenant schema provisioning runs completed",
			},
		),

		MigrationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storegate_migrations_total",
				Help: "Tenant schema migrations by result",
			},
			[]string{"result"},
		),

		ProvisionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "storegate_provision_duration_seconds",
				Help:    "Duration of tenant schema provisioning",
				Buckets: prometheus.DefBuckets,
			},
		),

		TenantCacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "storegate_tenant_cache_hits_total",
				Help: "Tenant connection resolutions served from cache",
			},
		),

		TenantCacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "storegate_tenant_cache_misses_total",
				Help: "Tenant connection resolutions requiring initialization",
			},
		),

		TenantPoolsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "storegate_tenant_pools_active",
				Help: "Live per-tenant connection pools",
			},
		),
	}
}
