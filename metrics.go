// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package ad4826

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by Client and Device.
type Metrics struct {
	ExchangeTotal    *prometheus.CounterVec   // labels: cmd, result
	ExchangeDuration *prometheus.HistogramVec // labels: cmd
	GrossWeight      *prometheus.GaugeVec     // labels: unit, channel
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ExchangeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ad4826_exchange_total",
			Help: "Request/response exchanges by command and result.",
		}, []string{"cmd", "result"}),
		ExchangeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ad4826_exchange_duration_seconds",
			Help:    "Round-trip time of one exchange.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"cmd"}),
		GrossWeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ad4826_gross_weight",
			Help: "Last gross weight read from the instrument.",
		}, []string{"unit", "channel"}),
	}
	if reg != nil {
		reg.MustRegister(m.ExchangeTotal, m.ExchangeDuration, m.GrossWeight)
	}
	return m
}

// commandLabel keeps the cmd label bounded: codes other than the four known
// commands are reported as "other".
func commandLabel(padded string) string {
	switch padded {
	case CmdGrossWeight, CmdFillAmount, CmdStartCutout, CmdForcedDischarge, "invalid":
		return padded
	default:
		return "other"
	}
}

func (m *Metrics) observeExchange(cmd, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ExchangeTotal.WithLabelValues(cmd, result).Inc()
	m.ExchangeDuration.WithLabelValues(cmd).Observe(elapsed.Seconds())
}

func (m *Metrics) setWeight(unit, channel Code, weight float64) {
	if m == nil {
		return
	}
	m.GrossWeight.WithLabelValues(unit.String(), channel.String()).Set(weight)
}
