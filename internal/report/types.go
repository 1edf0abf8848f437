// Package report defines the input events that flow through the pen pipeline.
package report

import (
	"gonum.org/v1/gonum/spatial/r2"
)

// Kind identifies the concrete type of an Event
type Kind string

const (
	KindTablet     Kind = "tablet"
	KindAux        Kind = "aux"
	KindDisconnect Kind = "disconnect"
)

// Button bits carried by tablet and aux reports
const (
	ButtonTip uint16 = 1 << iota
	ButtonBarrel1
	ButtonBarrel2
	ButtonEraser
)

// Header carries the fields every event shares
type Header struct {
	Device    string `json:"device,omitempty"`
	Seq       uint32 `json:"seq,omitempty"`
	Timestamp int64  `json:"ts"` // Unix ms timestamp
}

// Event is anything delivered into the pipeline. Stages that don't
// understand an event must forward it untouched.
type Event interface {
	Kind() Kind
	Meta() *Header
}

// Positional is an event with a rewritable position and a contact value.
// Contact is active while ContactValue is strictly greater than zero.
type Positional interface {
	Event
	Point() r2.Vec
	SetPoint(p r2.Vec)
	ContactValue() float64
}

// TabletReport is a single pen sample
type TabletReport struct {
	Header
	Position r2.Vec  `json:"position"`
	Pressure float64 `json:"pressure"`
	Buttons  uint16  `json:"buttons,omitempty"`
}

func (r *TabletReport) Kind() Kind            { return KindTablet }
func (r *TabletReport) Meta() *Header         { return &r.Header }
func (r *TabletReport) Point() r2.Vec         { return r.Position }
func (r *TabletReport) SetPoint(p r2.Vec)     { r.Position = p }
func (r *TabletReport) ContactValue() float64 { return r.Pressure }

// AuxReport carries express-key or barrel-button state without a position
type AuxReport struct {
	Header
	Buttons uint16 `json:"buttons"`
}

func (r *AuxReport) Kind() Kind    { return KindAux }
func (r *AuxReport) Meta() *Header { return &r.Header }

// Disconnect announces that a device went away. Per-device state must not
// survive it.
type Disconnect struct {
	Header
}

func (r *Disconnect) Kind() Kind    { return KindDisconnect }
func (r *Disconnect) Meta() *Header { return &r.Header }

// Device returns the device id of any event
func Device(e Event) string {
	if h := e.Meta(); h != nil {
		return h.Device
	}
	return ""
}
