// Package metrics counts what the pipeline does to the report stream.
package metrics

import (
	gometrics "github.com/rcrowley/go-metrics"

	"pendrag/internal/filter"
	"pendrag/internal/report"
)

// Stats holds the pipeline counters in a private registry
type Stats struct {
	registry gometrics.Registry

	total      gometrics.Counter
	positional gometrics.Counter
	contacts   gometrics.Counter
	clicks     gometrics.Counter
	drags      gometrics.Counter
	held       gometrics.Counter
	rate       gometrics.Meter
}

// NewStats creates a zeroed set of counters
func NewStats() *Stats {
	r := gometrics.NewRegistry()
	return &Stats{
		registry:   r,
		total:      gometrics.NewRegisteredCounter("reports.total", r),
		positional: gometrics.NewRegisteredCounter("reports.positional", r),
		contacts:   gometrics.NewRegisteredCounter("contacts", r),
		clicks:     gometrics.NewRegisteredCounter("clicks", r),
		drags:      gometrics.NewRegisteredCounter("drags", r),
		held:       gometrics.NewRegisteredCounter("held", r),
		rate:       gometrics.NewRegisteredMeter("reports.rate", r),
	}
}

// Observe counts one event entering the pipeline
func (s *Stats) Observe(e report.Event) {
	s.total.Inc(1)
	s.rate.Mark(1)
	if _, ok := e.(report.Positional); ok {
		s.positional.Inc(1)
	}
}

// Transition counts filter phase changes. A contact that goes back to idle
// without dragging is a click.
func (s *Stats) Transition(tr filter.Transition) {
	switch {
	case tr.From == filter.Idle && tr.To == filter.Anchored:
		s.contacts.Inc(1)
	case tr.To == filter.Dragging:
		s.drags.Inc(1)
	case tr.From == filter.Anchored && tr.To == filter.Idle:
		s.clicks.Inc(1)
	}
}

// Hold counts a sample pinned to its anchor
func (s *Stats) Hold() {
	s.held.Inc(1)
}

// Attach wires the filter callbacks to these counters
func (s *Stats) Attach(f *filter.DragThreshold) {
	f.SetOnTransition(s.Transition)
	f.SetOnHold(s.Hold)
}

// Snapshot returns the current values keyed by metric name
func (s *Stats) Snapshot() map[string]any {
	out := make(map[string]any)
	s.registry.Each(func(name string, i interface{}) {
		switch m := i.(type) {
		case gometrics.Counter:
			out[name] = m.Count()
		case gometrics.Meter:
			snap := m.Snapshot()
			out[name+".count"] = snap.Count()
			out[name+".1m"] = snap.Rate1()
		}
	})
	return out
}
