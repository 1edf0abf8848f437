package input

import (
	"encoding/binary"

	"gonum.org/v1/gonum/spatial/r2"

	"pendrag/internal/report"
)

// EventParser splits a byte stream into input_event structs. The kernel
// struct is 24 bytes with a 64-bit timeval and 16 bytes with a 32-bit one.
type EventParser struct {
	buf  []byte
	size int
}

// NewEventParser creates a parser for events of the given size (16 or 24).
func NewEventParser(size int) *EventParser {
	if size != 16 {
		size = 24
	}
	return &EventParser{size: size}
}

// Feed appends chunk and calls fn for every complete event in order.
// Trailing partial events are kept for the next call.
func (p *EventParser) Feed(chunk []byte, fn func(RawEvent)) {
	p.buf = append(p.buf, chunk...)
	for len(p.buf) >= p.size {
		ev := p.buf[:p.size]
		var raw RawEvent
		if p.size == 24 {
			raw.Sec = int64(binary.LittleEndian.Uint64(ev[0:8]))
			raw.Usec = int64(binary.LittleEndian.Uint64(ev[8:16]))
			raw.Type = binary.LittleEndian.Uint16(ev[16:18])
			raw.Code = binary.LittleEndian.Uint16(ev[18:20])
			raw.Value = int32(binary.LittleEndian.Uint32(ev[20:24]))
		} else {
			raw.Sec = int64(int32(binary.LittleEndian.Uint32(ev[0:4])))
			raw.Usec = int64(int32(binary.LittleEndian.Uint32(ev[4:8])))
			raw.Type = binary.LittleEndian.Uint16(ev[8:10])
			raw.Code = binary.LittleEndian.Uint16(ev[10:12])
			raw.Value = int32(binary.LittleEndian.Uint32(ev[12:16]))
		}
		fn(raw)
		p.buf = p.buf[p.size:]
	}
}

// Assembler folds raw events into one TabletReport per SYN_REPORT frame.
type Assembler struct {
	device string
	ranges Ranges

	x, y     int32
	pressure int32
	buttons  uint16
	touch    bool
	hasTouch bool
	dirty    bool
	dropped  bool
	seq      uint32
}

// NewAssembler creates an assembler for one device
func NewAssembler(device string, ranges Ranges) *Assembler {
	return &Assembler{device: device, ranges: ranges}
}

// Push consumes one raw event and returns a report when a frame completes
func (a *Assembler) Push(ev RawEvent) (*report.TabletReport, bool) {
	switch ev.Type {
	case EV_ABS:
		switch ev.Code {
		case ABS_X:
			a.x = ev.Value
		case ABS_Y:
			a.y = ev.Value
		case ABS_PRESSURE:
			a.pressure = ev.Value
		default:
			return nil, false
		}
		a.dirty = true
	case EV_KEY:
		pressed := ev.Value != 0
		switch ev.Code {
		case BTN_TOUCH:
			a.touch = pressed
			a.hasTouch = true
			a.setButton(report.ButtonTip, pressed)
		case BTN_STYLUS:
			a.setButton(report.ButtonBarrel1, pressed)
		case BTN_STYLUS2:
			a.setButton(report.ButtonBarrel2, pressed)
		case BTN_TOOL_RUBBER:
			a.setButton(report.ButtonEraser, pressed)
		default:
			return nil, false
		}
		a.dirty = true
	case EV_SYN:
		switch ev.Code {
		case SYN_DROPPED:
			// the kernel buffer overran; everything up to the next
			// SYN_REPORT is unreliable
			a.dropped = true
		case SYN_REPORT:
			if a.dropped {
				a.dropped = false
				a.dirty = false
				return nil, false
			}
			if !a.dirty {
				return nil, false
			}
			a.dirty = false
			return a.frame(ev), true
		}
	}
	return nil, false
}

func (a *Assembler) setButton(bit uint16, on bool) {
	if on {
		a.buttons |= bit
	} else {
		a.buttons &^= bit
	}
}

func (a *Assembler) frame(ev RawEvent) *report.TabletReport {
	a.seq++
	return &report.TabletReport{
		Header: report.Header{
			Device:    a.device,
			Seq:       a.seq,
			Timestamp: ev.Sec*1000 + ev.Usec/1000,
		},
		Position: r2.Vec{X: float64(a.x), Y: float64(a.y)},
		Pressure: a.contact(),
		Buttons:  a.buttons,
	}
}

// contact normalizes pressure to [0,1]. Devices without a pressure axis
// report 1 while BTN_TOUCH is held. A released BTN_TOUCH always means 0.
func (a *Assembler) contact() float64 {
	if a.hasTouch && !a.touch {
		return 0
	}
	r := a.ranges.Pressure
	if r.Max <= r.Min {
		if a.touch {
			return 1
		}
		return 0
	}
	p := float64(a.pressure-r.Min) / float64(r.Max-r.Min)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
