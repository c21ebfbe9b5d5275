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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/authpasswd/authpasswd/internal/wire"
)

var (
	_ Recorder = Noop{}
	_ Recorder = (*Prometheus)(nil)
)

func TestNoopSatisfiesRecorder(t *testing.T) {
	var r Recorder = Noop{}
	r.RecordCheck(wire.Success)
	r.RecordPolicyOutcome(wire.InputParam)
	r.RecordLockout()
	r.SetActiveUsers(3)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestPrometheusRecordCheckIncrementsStatusLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.RecordCheck(wire.Success)
	p.RecordCheck(wire.Success)
	p.RecordCheck(wire.Mismatch)

	if got := counterValue(t, p.checks.WithLabelValues(wire.Success.String())); got != 2 {
		t.Errorf("checks[success] = %v, want 2", got)
	}
	if got := counterValue(t, p.checks.WithLabelValues(wire.Mismatch.String())); got != 1 {
		t.Errorf("checks[mismatch] = %v, want 1", got)
	}
}

func TestPrometheusRecordCheckTripsLockoutCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.RecordCheck(wire.MaxAttemptsExceeded)

	if got := counterValue(t, p.lockouts); got != 1 {
		t.Errorf("lockouts = %v, want 1", got)
	}
}

func TestPrometheusRecordLockoutIsIndependentOfRecordCheck(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.RecordLockout()
	p.RecordLockout()

	if got := counterValue(t, p.lockouts); got != 2 {
		t.Errorf("lockouts = %v, want 2", got)
	}
}

func TestPrometheusSetActiveUsers(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.SetActiveUsers(42)

	var m dto.Metric
	if err := p.activeUsers.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := m.GetGauge().GetValue(); got != 42 {
		t.Errorf("active_users = %v, want 42", got)
	}
}
