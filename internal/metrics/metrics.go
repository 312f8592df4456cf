// Package metrics exposes attendance and badge activity as Prometheus series.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/attendance"
)

const namespace = "attendance"

// Recorder implements application.Metrics and records HTTP traffic.
type Recorder struct {
	gatherer prometheus.Gatherer

	scans             *prometheus.CounterVec
	recognizedMinutes *prometheus.CounterVec
	deductedMinutes   *prometheus.CounterVec
	stayMinutes       *prometheus.HistogramVec
	goalsMet          prometheus.Counter
	badgeTransitions  *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

var _ application.Metrics = (*Recorder)(nil)

// New registers every series on reg. A nil reg uses a fresh registry so tests
// and repeated calls never collide on the default registerer.
func New(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Recorder{
		gatherer: reg,
		scans: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "transitions_total",
			Help:      "Scan transitions by action and outcome.",
		}, []string{"action", "outcome"}),
		recognizedMinutes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "zone",
			Name:      "recognized_minutes_total",
			Help:      "Recognized minutes credited at check-out per zone.",
		}, []string{"zone"}),
		deductedMinutes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "zone",
			Name:      "break_deduction_minutes_total",
			Help:      "Minutes deducted for scheduled breaks per zone.",
		}, []string{"zone"}),
		stayMinutes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "zone",
			Name:      "stay_recognized_minutes",
			Help:      "Recognized minutes of a single stay.",
			Buckets:   []float64{0, 5, 15, 30, 60, 90, 120, 180, 240, 480},
		}, []string{"zone"}),
		goalsMet: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goals_met_total",
			Help:      "Registrants that reached their attendance goal.",
		}),
		badgeTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "badge",
			Name:      "transitions_total",
			Help:      "Badge token state changes.",
		}, []string{"from", "to"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// ObserveTransition counts a scan attempt. Failed attempts are labelled with
// their error kind.
func (r *Recorder) ObserveTransition(action application.ScanAction, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = application.ErrorKind(err)
	}
	r.scans.WithLabelValues(string(action), outcome).Inc()
}

// ObserveCheckOut records the breakdown of a completed stay.
func (r *Recorder) ObserveCheckOut(zoneID string, breakdown attendance.Breakdown) {
	if r == nil {
		return
	}
	r.recognizedMinutes.WithLabelValues(zoneID).Add(float64(breakdown.RecognizedMinutes))
	r.deductedMinutes.WithLabelValues(zoneID).Add(float64(breakdown.DeductionMinutes))
	r.stayMinutes.WithLabelValues(zoneID).Observe(float64(breakdown.RecognizedMinutes))
}

// ObserveGoalMet counts a registrant crossing the goal threshold.
func (r *Recorder) ObserveGoalMet() {
	if r == nil {
		return
	}
	r.goalsMet.Inc()
}

// ObserveBadgeTransition counts a badge token state change.
func (r *Recorder) ObserveBadgeTransition(from, to attendance.BadgeState) {
	if r == nil {
		return
	}
	r.badgeTransitions.WithLabelValues(string(from), string(to)).Inc()
}

// ObserveRequest records one served HTTP request. route is the matched
// pattern, not the raw path.
func (r *Recorder) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
