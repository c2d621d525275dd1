// Package metrics holds the Prometheus collectors Sentinel exports on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// LoginDecisions counts gate decisions by the rule that produced them.
	LoginDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_login_decisions_total",
			Help: "Total number of login decisions by reason",
		},
		[]string{"reason"},
	)

	// MembershipLookupDuration measures roster round trips made by the membership oracle.
	MembershipLookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_membership_lookup_duration_seconds",
			Help:    "Duration of membership lookups in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"check"},
	)

	// StaleLinksRemoved counts links dropped because the Discord account left every guild.
	StaleLinksRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_stale_links_removed_total",
			Help: "Total number of links removed because the member left",
		},
	)

	// LinkCommands counts /link outcomes.
	LinkCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_link_commands_total",
			Help: "Total number of link command invocations by result",
		},
		[]string{"result"},
	)

	// QuarantineToggles counts quarantine role changes by direction.
	QuarantineToggles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_quarantine_toggles_total",
			Help: "Total number of quarantine role changes",
		},
		[]string{"action"},
	)

	// Kicks counts forced disconnects handed to the proxy.
	Kicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_kicks_total",
			Help: "Total number of forced disconnects issued",
		},
	)

	// ReconcilerPasses counts reconciliation passes by result.
	ReconcilerPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_reconciler_passes_total",
			Help: "Total number of role reconciliation passes",
		},
		[]string{"result"},
	)

	// RolesGranted counts linked-role grants made by the link command and the reconciler.
	RolesGranted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_linked_roles_granted_total",
			Help: "Total number of linked roles granted",
		},
	)
)

// Register adds every Sentinel collector to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		LoginDecisions,
		MembershipLookupDuration,
		StaleLinksRemoved,
		LinkCommands,
		QuarantineToggles,
		Kicks,
		ReconcilerPasses,
		RolesGranted,
	)
}
