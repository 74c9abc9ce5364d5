package api

import (
	"github.com/prometheus/client_golang/prometheus"

	"garrison-gate/core/guard"
	"garrison-gate/core/janitor"
	"garrison-gate/core/session"
	"garrison-gate/core/verify"
)

type engineMetricsCollector struct {
	sessions *session.Service
	gate     *guard.Gate
	waiter   *verify.Waiter
	janitor  *janitor.Janitor

	loggedInDesc       *prometheus.Desc
	sessionVersionDesc *prometheus.Desc
	denialsDesc        *prometheus.Desc
	waitingDesc        *prometheus.Desc
	cooldownDesc       *prometheus.Desc
	sweepRunsDesc      *prometheus.Desc
	sweptPendingDesc   *prometheus.Desc
	prunedEventsDesc   *prometheus.Desc
}

func newEngineMetricsCollector(sessions *session.Service, gate *guard.Gate, waiter *verify.Waiter, jan *janitor.Janitor) prometheus.Collector {
	return &engineMetricsCollector{
		sessions: sessions,
		gate:     gate,
		waiter:   waiter,
		janitor:  jan,
		loggedInDesc: prometheus.NewDesc(
			"garrison_session_logged_in",
			"1 when this window holds an authenticated session.",
			nil, nil,
		),
		sessionVersionDesc: prometheus.NewDesc(
			"garrison_session_version",
			"Monotonic session snapshot version.",
			nil, nil,
		),
		denialsDesc: prometheus.NewDesc(
			"garrison_guard_denials_total",
			"Route admissions denied, by reason.",
			[]string{"reason"}, nil,
		),
		waitingDesc: prometheus.NewDesc(
			"garrison_verification_waiting",
			"1 while an email-verification wait is active.",
			nil, nil,
		),
		cooldownDesc: prometheus.NewDesc(
			"garrison_verification_cooldown_seconds",
			"Seconds until a verification resend is allowed again.",
			nil, nil,
		),
		sweepRunsDesc: prometheus.NewDesc(
			"garrison_janitor_runs_total",
			"Completed janitor sweeps.",
			nil, nil,
		),
		sweptPendingDesc: prometheus.NewDesc(
			"garrison_janitor_expired_pending_total",
			"Expired pending-auth records removed by the janitor.",
			nil, nil,
		),
		prunedEventsDesc: prometheus.NewDesc(
			"garrison_janitor_pruned_events_total",
			"Cross-window events pruned by the janitor.",
			nil, nil,
		),
	}
}

func (c *engineMetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.loggedInDesc
	ch <- c.sessionVersionDesc
	ch <- c.denialsDesc
	ch <- c.waitingDesc
	ch <- c.cooldownDesc
	ch <- c.sweepRunsDesc
	ch <- c.sweptPendingDesc
	ch <- c.prunedEventsDesc
}

func (c *engineMetricsCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil {
		return
	}
	if c.sessions != nil {
		snap := c.sessions.Store().Snapshot()
		loggedIn := 0.0
		if snap.LoggedIn {
			loggedIn = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.loggedInDesc, prometheus.GaugeValue, loggedIn)
		ch <- prometheus.MustNewConstMetric(c.sessionVersionDesc, prometheus.GaugeValue, float64(snap.Version))
	}
	if c.gate != nil {
		for reason, n := range c.gate.DenialCounts() {
			ch <- prometheus.MustNewConstMetric(c.denialsDesc, prometheus.CounterValue, float64(n), reason)
		}
	}
	if c.waiter != nil {
		st := c.waiter.State()
		waiting := 0.0
		if st.Waiting {
			waiting = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.waitingDesc, prometheus.GaugeValue, waiting)
		ch <- prometheus.MustNewConstMetric(c.cooldownDesc, prometheus.GaugeValue, st.CooldownRemaining.Seconds())
	}
	if c.janitor != nil {
		stats := c.janitor.StatsSnapshot()
		ch <- prometheus.MustNewConstMetric(c.sweepRunsDesc, prometheus.CounterValue, float64(stats.Runs))
		ch <- prometheus.MustNewConstMetric(c.sweptPendingDesc, prometheus.CounterValue, float64(stats.ExpiredPending))
		ch <- prometheus.MustNewConstMetric(c.prunedEventsDesc, prometheus.CounterValue, float64(stats.PrunedEvents))
	}
}
