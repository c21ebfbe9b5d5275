/*
Authpasswd - per-user password and password-policy authority.

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package metrics exposes Prometheus counters for the request
// processor. It is ambient observability: the core compiles and is
// fully testable against a no-op Recorder, and nothing in
// internal/passwdfile or internal/policyfile imports this package.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/authpasswd/authpasswd/internal/wire"
)

// Recorder is the collaborator the request processor calls after each
// dispatch completes. A zero-value noop satisfies it.
type Recorder interface {
	RecordCheck(status wire.Status)
	RecordPolicyOutcome(status wire.Status)
	RecordLockout()
	SetActiveUsers(n float64)
}

// Prometheus registers checks_total{status}, lockouts_total,
// policy_rejections_total and active_users against reg.
type Prometheus struct {
	checks      *prometheus.CounterVec
	lockouts    prometheus.Counter
	rejections  *prometheus.CounterVec
	activeUsers prometheus.Gauge
}

func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	factory := promauto.With(reg)
	return &Prometheus{
		checks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authpasswd",
			Name:      "checks_total",
			Help:      "Password and state checks processed, by resulting status.",
		}, []string{"status"}),
		lockouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "authpasswd",
			Name:      "lockouts_total",
			Help:      "Checks that tripped max-attempts lockout.",
		}),
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authpasswd",
			Name:      "policy_rejections_total",
			Help:      "Password-set attempts rejected, by resulting status.",
		}, []string{"status"}),
		activeUsers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "authpasswd",
			Name:      "active_users",
			Help:      "Number of users with a cached in-memory password or policy file.",
		}),
	}
}

func (p *Prometheus) RecordCheck(status wire.Status) {
	p.checks.WithLabelValues(status.String()).Inc()
	if status == wire.MaxAttemptsExceeded {
		p.lockouts.Inc()
	}
}

func (p *Prometheus) RecordPolicyOutcome(status wire.Status) {
	p.rejections.WithLabelValues(status.String()).Inc()
}

func (p *Prometheus) RecordLockout() { p.lockouts.Inc() }

func (p *Prometheus) SetActiveUsers(n float64) { p.activeUsers.Set(n) }

// Noop discards every call; used in tests and anywhere metrics wiring
// isn't needed.
type Noop struct{}

func (Noop) RecordCheck(wire.Status)         {}
func (Noop) RecordPolicyOutcome(wire.Status) {}
func (Noop) RecordLockout()                  {}
func (Noop) SetActiveUsers(float64)          {}
