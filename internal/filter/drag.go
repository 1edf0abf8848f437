// Package filter implements the drag threshold stage of the pen pipeline.
//
// While the pen tip is down the reported position is held at the point of
// contact until the pen has moved further than Threshold from it. Short
// presses therefore land as clicks on a single coordinate instead of tiny
// drags, and the release of such a press is reported at the press position.
package filter

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"pendrag/internal/pipeline"
	"pendrag/internal/report"
)

// DefaultThreshold is the drag distance in output units (px)
const DefaultThreshold = 5.0

// Config is fixed for the lifetime of a DragThreshold
type Config struct {
	// Threshold is the distance the pen must travel from the anchor
	// before movement is let through
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// SmoothTransition offsets the first sample past the threshold so the
	// cursor starts moving from the anchor instead of jumping
	SmoothTransition bool `json:"smooth_transition" yaml:"smooth_transition"`
}

// DefaultConfig returns the stock filter settings
func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold}
}

// Validate rejects thresholds the state machine has no meaning for
func (c Config) Validate() error {
	if math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, c.Threshold)
	}
	if c.Threshold < 0 {
		return fmt.Errorf("%w: %v", ErrNegativeThreshold, c.Threshold)
	}
	return nil
}

// Phase is the contact state of a filter
type Phase int

const (
	// Idle means no contact is in progress
	Idle Phase = iota
	// Anchored means the pen is down and held at the anchor
	Anchored
	// Dragging means the pen moved past the threshold during this contact
	Dragging
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Anchored:
		return "anchored"
	case Dragging:
		return "dragging"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is a snapshot of a filter's contact state
type State struct {
	Phase  Phase
	anchor r2.Vec
}

// Anchor returns the anchor of the current contact. ok is false when idle.
func (s State) Anchor() (p r2.Vec, ok bool) {
	if s.Phase == Idle {
		return r2.Vec{}, false
	}
	return s.anchor, true
}

// Transition describes a phase change
type Transition struct {
	From   Phase
	To     Phase
	Anchor r2.Vec
}

// DragThreshold holds the pen at its point of contact until it has moved
// far enough to count as a drag. One instance serves one input channel and
// must only be driven from a single goroutine.
type DragThreshold struct {
	cfg   Config
	state State
	subs  []func(report.Event)

	onTransition func(Transition)
	onHold       func()
}

// New creates a filter with the given configuration
func New(cfg Config) (*DragThreshold, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &DragThreshold{cfg: cfg}, nil
}

// Config returns the filter configuration
func (f *DragThreshold) Config() Config {
	return f.cfg
}

// State returns the current contact state
func (f *DragThreshold) State() State {
	return f.state
}

// Subscribe registers a downstream listener. Listeners are called in
// registration order for every consumed event.
func (f *DragThreshold) Subscribe(fn func(report.Event)) {
	f.subs = append(f.subs, fn)
}

// SetOnTransition sets the callback fired on every phase change
func (f *DragThreshold) SetOnTransition(fn func(Transition)) {
	f.onTransition = fn
}

// SetOnHold sets the callback fired whenever a sample is pinned to the anchor
func (f *DragThreshold) SetOnHold(fn func()) {
	f.onHold = fn
}

// Consume filters one event and emits it to every subscriber
func (f *DragThreshold) Consume(e report.Event) {
	if r, ok := e.(report.Positional); ok {
		f.ProcessReport(r)
	}
	for _, fn := range f.subs {
		fn(e)
	}
}

// ProcessReport applies the threshold state machine to r, rewriting its
// position in place when needed, and returns r.
func (f *DragThreshold) ProcessReport(r report.Positional) report.Positional {
	if r.ContactValue() > 0 {
		if f.state.Phase == Idle {
			f.setPhase(Anchored, r.Point())
		}
		if f.state.Phase == Anchored {
			f.anchored(r)
		}
		return r
	}

	// Pen lifted. A contact that never became a drag is released where
	// it was pressed so down and up land on the same coordinate.
	switch f.state.Phase {
	case Anchored:
		r.SetPoint(f.state.anchor)
		f.hold()
		f.setPhase(Idle, f.state.anchor)
	case Dragging:
		f.setPhase(Idle, f.state.anchor)
	}
	return r
}

func (f *DragThreshold) anchored(r report.Positional) {
	anchor := f.state.anchor
	offset := r2.Sub(r.Point(), anchor)
	distance := r2.Norm(offset)

	if distance <= f.cfg.Threshold {
		r.SetPoint(anchor)
		f.hold()
		return
	}

	f.setPhase(Dragging, anchor)
	if f.cfg.SmoothTransition {
		// distance > threshold >= 0, so offset is never zero here
		r.SetPoint(r2.Add(anchor, r2.Scale(distance-f.cfg.Threshold, r2.Unit(offset))))
	}
}

func (f *DragThreshold) setPhase(to Phase, anchor r2.Vec) {
	from := f.state.Phase
	f.state = State{Phase: to, anchor: anchor}
	if to == Idle {
		f.state.anchor = r2.Vec{}
	}
	if f.onTransition != nil && from != to {
		f.onTransition(Transition{From: from, To: to, Anchor: anchor})
	}
}

func (f *DragThreshold) hold() {
	if f.onHold != nil {
		f.onHold()
	}
}

// Position places the filter after coordinate transforms so the threshold
// is measured in output units
func (f *DragThreshold) Position() pipeline.Position {
	return pipeline.PostTransform
}
