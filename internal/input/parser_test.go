package input

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"pendrag/internal/report"
)

func encode24(ev RawEvent) []byte {
	b := make([]byte, 24)
	binary.LittleEndian.PutUint64(b[0:8], uint64(ev.Sec))
	binary.LittleEndian.PutUint64(b[8:16], uint64(ev.Usec))
	binary.LittleEndian.PutUint16(b[16:18], ev.Type)
	binary.LittleEndian.PutUint16(b[18:20], ev.Code)
	binary.LittleEndian.PutUint32(b[20:24], uint32(ev.Value))
	return b
}

func encode16(ev RawEvent) []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint32(b[0:4], uint32(ev.Sec))
	binary.LittleEndian.PutUint32(b[4:8], uint32(ev.Usec))
	binary.LittleEndian.PutUint16(b[8:10], ev.Type)
	binary.LittleEndian.PutUint16(b[10:12], ev.Code)
	binary.LittleEndian.PutUint32(b[12:16], uint32(ev.Value))
	return b
}

func TestEventParserSplitsChunks(t *testing.T) {
	want := []RawEvent{
		{Sec: 100, Usec: 250000, Type: EV_ABS, Code: ABS_X, Value: 1200},
		{Sec: 100, Usec: 250000, Type: EV_ABS, Code: ABS_PRESSURE, Value: -1},
		{Sec: 100, Usec: 250001, Type: EV_SYN, Code: SYN_REPORT},
	}
	var stream []byte
	for _, ev := range want {
		stream = append(stream, encode24(ev)...)
	}

	p := NewEventParser(24)
	var got []RawEvent
	// odd chunk boundaries
	p.Feed(stream[:5], func(ev RawEvent) { got = append(got, ev) })
	assert.Empty(t, got)
	p.Feed(stream[5:30], func(ev RawEvent) { got = append(got, ev) })
	assert.Len(t, got, 1)
	p.Feed(stream[30:], func(ev RawEvent) { got = append(got, ev) })

	assert.Equal(t, want, got)
}

func TestEventParser32BitTimeval(t *testing.T) {
	ev := RawEvent{Sec: 7, Usec: 8, Type: EV_KEY, Code: BTN_TOUCH, Value: 1}
	p := NewEventParser(16)
	var got []RawEvent
	p.Feed(encode16(ev), func(e RawEvent) { got = append(got, e) })
	assert.Equal(t, []RawEvent{ev}, got)
}

func frame(a *Assembler, evs ...RawEvent) (*report.TabletReport, bool) {
	var out *report.TabletReport
	var ok bool
	for _, ev := range evs {
		if r, done := a.Push(ev); done {
			out, ok = r, true
		}
	}
	return out, ok
}

var syn = RawEvent{Type: EV_SYN, Code: SYN_REPORT, Sec: 2, Usec: 5000}

func TestAssemblerFrames(t *testing.T) {
	a := NewAssembler("/dev/input/event5", Ranges{
		X:        AxisRange{Max: 20000},
		Y:        AxisRange{Max: 12000},
		Pressure: AxisRange{Max: 2048},
	})

	r, ok := frame(a,
		RawEvent{Type: EV_ABS, Code: ABS_X, Value: 500},
		RawEvent{Type: EV_ABS, Code: ABS_Y, Value: 700},
		syn,
	)
	require.True(t, ok)
	assert.Equal(t, r2.Vec{X: 500, Y: 700}, r.Position)
	assert.Equal(t, 0.0, r.Pressure)
	assert.Equal(t, "/dev/input/event5", r.Device)
	assert.Equal(t, uint32(1), r.Seq)
	assert.Equal(t, int64(2005), r.Timestamp)

	r, ok = frame(a,
		RawEvent{Type: EV_KEY, Code: BTN_TOUCH, Value: 1},
		RawEvent{Type: EV_ABS, Code: ABS_PRESSURE, Value: 1024},
		syn,
	)
	require.True(t, ok)
	assert.Equal(t, 0.5, r.Pressure)
	assert.Equal(t, report.ButtonTip, r.Buttons)
	// position persists across frames
	assert.Equal(t, r2.Vec{X: 500, Y: 700}, r.Position)

	r, ok = frame(a,
		RawEvent{Type: EV_KEY, Code: BTN_STYLUS, Value: 1},
		RawEvent{Type: EV_KEY, Code: BTN_TOUCH, Value: 0},
		syn,
	)
	require.True(t, ok)
	// stale pressure is ignored once BTN_TOUCH is released
	assert.Equal(t, 0.0, r.Pressure)
	assert.Equal(t, report.ButtonBarrel1, r.Buttons)
}

func TestAssemblerSkipsEmptyAndDroppedFrames(t *testing.T) {
	a := NewAssembler("pen", Ranges{Pressure: AxisRange{Max: 100}})

	_, ok := frame(a, syn)
	assert.False(t, ok)

	_, ok = frame(a,
		RawEvent{Type: EV_ABS, Code: ABS_X, Value: 1},
		RawEvent{Type: EV_SYN, Code: SYN_DROPPED},
		RawEvent{Type: EV_ABS, Code: ABS_X, Value: 2},
		syn,
	)
	assert.False(t, ok)

	r, ok := frame(a, RawEvent{Type: EV_ABS, Code: ABS_Y, Value: 3}, syn)
	require.True(t, ok)
	assert.Equal(t, r2.Vec{X: 2, Y: 3}, r.Position)

	// unknown axes don't produce frames
	_, ok = frame(a, RawEvent{Type: EV_ABS, Code: 0x1a, Value: 9}, syn)
	assert.False(t, ok)
}

func TestAssemblerWithoutPressureAxis(t *testing.T) {
	a := NewAssembler("touch", Ranges{})
	r, ok := frame(a, RawEvent{Type: EV_KEY, Code: BTN_TOUCH, Value: 1}, syn)
	require.True(t, ok)
	assert.Equal(t, 1.0, r.Pressure)
}

func TestAssemblerClampsPressure(t *testing.T) {
	a := NewAssembler("pen", Ranges{Pressure: AxisRange{Min: 10, Max: 110}})
	r, ok := frame(a, RawEvent{Type: EV_ABS, Code: ABS_PRESSURE, Value: 500}, syn)
	require.True(t, ok)
	assert.Equal(t, 1.0, r.Pressure)

	r, ok = frame(a, RawEvent{Type: EV_ABS, Code: ABS_PRESSURE, Value: 0}, syn)
	require.True(t, ok)
	assert.Equal(t, 0.0, r.Pressure)
}

func TestRangesBox(t *testing.T) {
	box := Ranges{X: AxisRange{Min: -10, Max: 10}, Y: AxisRange{Max: 5}}.Box()
	assert.Equal(t, r2.Box{Min: r2.Vec{X: -10}, Max: r2.Vec{X: 10, Y: 5}}, box)
}
