// Package pipeline chains report stages into a push-based, in-order pipeline.
package pipeline

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r2"

	"pendrag/internal/report"
)

// Position orders a stage relative to the coordinate transform
type Position int

const (
	PreTransform Position = iota
	Transform
	PostTransform
)

func (p Position) String() string {
	switch p {
	case PreTransform:
		return "pre-transform"
	case Transform:
		return "transform"
	case PostTransform:
		return "post-transform"
	default:
		return "unknown"
	}
}

// Element is a pipeline stage. Consume must emit exactly one event to its
// subscribers for every event it receives, in order.
type Element interface {
	Consume(report.Event)
	Subscribe(func(report.Event))
	Position() Position
}

// Pipeline runs events through its elements, ordered by position
type Pipeline struct {
	elements []Element
	head     func(report.Event)
	subs     []func(report.Event)
}

// New builds a pipeline. Elements sharing a position keep the order given.
func New(elements ...Element) *Pipeline {
	p := &Pipeline{elements: append([]Element(nil), elements...)}
	sort.SliceStable(p.elements, func(i, j int) bool {
		return p.elements[i].Position() < p.elements[j].Position()
	})

	if len(p.elements) == 0 {
		p.head = p.emit
		return p
	}
	for i := 0; i < len(p.elements)-1; i++ {
		p.elements[i].Subscribe(p.elements[i+1].Consume)
	}
	p.elements[len(p.elements)-1].Subscribe(p.emit)
	p.head = p.elements[0].Consume
	return p
}

// Elements returns the stages in execution order
func (p *Pipeline) Elements() []Element {
	return p.elements
}

// Consume pushes one event through the pipeline
func (p *Pipeline) Consume(e report.Event) {
	p.head(e)
}

// Subscribe registers a listener for the pipeline output
func (p *Pipeline) Subscribe(fn func(report.Event)) {
	p.subs = append(p.subs, fn)
}

func (p *Pipeline) emit(e report.Event) {
	for _, fn := range p.subs {
		fn(e)
	}
}

// AreaMap linearly maps positions from a device area onto an output area
type AreaMap struct {
	From r2.Box
	To   r2.Box
	subs []func(report.Event)
}

// NewAreaMap creates a transform stage. A degenerate source axis maps to
// the target minimum.
func NewAreaMap(from, to r2.Box) *AreaMap {
	return &AreaMap{From: from, To: to}
}

func (m *AreaMap) Position() Position { return Transform }

func (m *AreaMap) Subscribe(fn func(report.Event)) {
	m.subs = append(m.subs, fn)
}

func (m *AreaMap) Consume(e report.Event) {
	if r, ok := e.(report.Positional); ok {
		r.SetPoint(m.Map(r.Point()))
	}
	for _, fn := range m.subs {
		fn(e)
	}
}

// Map converts a single point
func (m *AreaMap) Map(p r2.Vec) r2.Vec {
	return r2.Vec{
		X: scale(p.X, m.From.Min.X, m.From.Max.X, m.To.Min.X, m.To.Max.X),
		Y: scale(p.Y, m.From.Min.Y, m.From.Max.Y, m.To.Min.Y, m.To.Max.Y),
	}
}

func scale(v, fromMin, fromMax, toMin, toMax float64) float64 {
	span := fromMax - fromMin
	if span == 0 {
		return toMin
	}
	return toMin + (v-fromMin)/span*(toMax-toMin)
}
