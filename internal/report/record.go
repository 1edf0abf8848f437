package report

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"
)

// Record is the flat JSON form of an Event, used by replay files and the
// WebSocket stream.
type Record struct {
	Kind      Kind    `json:"kind"`
	Device    string  `json:"device,omitempty"`
	Seq       uint32  `json:"seq,omitempty"`
	Timestamp int64   `json:"ts,omitempty"`
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
	Pressure  float64 `json:"pressure,omitempty"`
	Buttons   uint16  `json:"buttons,omitempty"`
}

// ToRecord flattens an event
func ToRecord(e Event) Record {
	rec := Record{Kind: e.Kind()}
	if h := e.Meta(); h != nil {
		rec.Device = h.Device
		rec.Seq = h.Seq
		rec.Timestamp = h.Timestamp
	}
	switch ev := e.(type) {
	case *TabletReport:
		rec.X, rec.Y = ev.Position.X, ev.Position.Y
		rec.Pressure = ev.Pressure
		rec.Buttons = ev.Buttons
	case *AuxReport:
		rec.Buttons = ev.Buttons
	}
	return rec
}

// Event rebuilds the event described by the record. An empty kind is
// read as a tablet report.
func (rec Record) Event() (Event, error) {
	h := Header{Device: rec.Device, Seq: rec.Seq, Timestamp: rec.Timestamp}
	switch rec.Kind {
	case KindTablet, "":
		return &TabletReport{
			Header:   h,
			Position: r2.Vec{X: rec.X, Y: rec.Y},
			Pressure: rec.Pressure,
			Buttons:  rec.Buttons,
		}, nil
	case KindAux:
		return &AuxReport{Header: h, Buttons: rec.Buttons}, nil
	case KindDisconnect:
		return &Disconnect{Header: h}, nil
	default:
		return nil, fmt.Errorf("report: unknown kind %q", rec.Kind)
	}
}
