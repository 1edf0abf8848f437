// Package input reads pen reports from local Linux event devices.
package input

import (
	"gonum.org/v1/gonum/spatial/r2"

	"pendrag/internal/report"
)

// Source produces reports until stopped
type Source interface {
	Start() error
	Stop() error
	Events() <-chan report.Event
}

// Linux input event types and codes used by pen tablets
const (
	EV_SYN = 0x00
	EV_KEY = 0x01
	EV_ABS = 0x03

	SYN_REPORT  = 0x00
	SYN_DROPPED = 0x03

	BTN_TOOL_PEN    = 0x140
	BTN_TOOL_RUBBER = 0x141
	BTN_TOUCH       = 0x14A
	BTN_STYLUS      = 0x14B
	BTN_STYLUS2     = 0x14C

	ABS_X        = 0x00
	ABS_Y        = 0x01
	ABS_PRESSURE = 0x18
)

// RawEvent is one decoded struct input_event
type RawEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// AxisRange is the min/max of an absolute axis
type AxisRange struct {
	Min int32
	Max int32
}

// Ranges holds the axis ranges of a tablet
type Ranges struct {
	X        AxisRange
	Y        AxisRange
	Pressure AxisRange
}

// Box returns the tablet area in device units
func (r Ranges) Box() r2.Box {
	return r2.Box{
		Min: r2.Vec{X: float64(r.X.Min), Y: float64(r.Y.Min)},
		Max: r2.Vec{X: float64(r.X.Max), Y: float64(r.Y.Max)},
	}
}
