package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"pendrag/internal/config"
	"pendrag/internal/filter"
	"pendrag/internal/report"
)

type emitted struct {
	rec   report.Record
	phase filter.Phase
}

func newTestService(t *testing.T, fc filter.Config) (*Service, *config.Manager, *[]emitted) {
	t.Helper()
	mgr, err := config.NewManagerAt(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	require.NoError(t, mgr.SetFilter(fc))

	svc := New(mgr)
	var out []emitted
	svc.AddSink(func(e report.Event, phase filter.Phase) {
		out = append(out, emitted{rec: report.ToRecord(e), phase: phase})
	})
	return svc, mgr, &out
}

func pen(device string, x, y, p float64) *report.TabletReport {
	return &report.TabletReport{
		Header:   report.Header{Device: device},
		Position: r2.Vec{X: x, Y: y},
		Pressure: p,
	}
}

func TestProcessClick(t *testing.T) {
	svc, _, out := newTestService(t, filter.Config{Threshold: 5})

	svc.Process(pen("a", 10, 10, 0.5))
	svc.Process(pen("a", 12, 13, 0.5))
	svc.Process(pen("a", 13, 13, 0))

	require.Len(t, *out, 3)
	for _, e := range *out {
		assert.Equal(t, 10.0, e.rec.X)
		assert.Equal(t, 10.0, e.rec.Y)
	}
	assert.Equal(t, filter.Anchored, (*out)[0].phase)
	assert.Equal(t, filter.Anchored, (*out)[1].phase)
	assert.Equal(t, filter.Idle, (*out)[2].phase)

	snap := svc.Stats().Snapshot()
	assert.Equal(t, int64(1), snap["clicks"])
	assert.Equal(t, int64(3), snap["reports.total"])
}

func TestDevicesAreIndependent(t *testing.T) {
	svc, _, out := newTestService(t, filter.Config{Threshold: 5})

	svc.Process(pen("a", 0, 0, 1))
	svc.Process(pen("b", 100, 100, 1))
	svc.Process(pen("a", 3, 0, 1))
	svc.Process(pen("b", 110, 100, 1))

	require.Len(t, *out, 4)
	assert.Equal(t, 0.0, (*out)[2].rec.X)
	assert.Equal(t, filter.Anchored, (*out)[2].phase)
	assert.Equal(t, 110.0, (*out)[3].rec.X)
	assert.Equal(t, filter.Dragging, (*out)[3].phase)

	st := svc.Status()
	require.Len(t, st.Devices, 2)
	assert.Equal(t, "a", st.Devices[0].Device)
	assert.Equal(t, "anchored", st.Devices[0].Phase)
	require.NotNil(t, st.Devices[0].Anchor)
	assert.Equal(t, [2]float64{0, 0}, *st.Devices[0].Anchor)
	assert.Equal(t, "dragging", st.Devices[1].Phase)
}

func TestDisconnectDropsState(t *testing.T) {
	svc, _, out := newTestService(t, filter.Config{Threshold: 5})

	svc.Process(pen("a", 0, 0, 1))
	svc.Process(&report.Disconnect{Header: report.Header{Device: "a"}})
	assert.Empty(t, svc.Status().Devices)

	// a fresh contact anchors at the new point
	svc.Process(pen("a", 50, 50, 1))
	svc.Process(pen("a", 52, 50, 1))

	require.Len(t, *out, 4)
	assert.Equal(t, report.KindDisconnect, (*out)[1].rec.Kind)
	assert.Equal(t, 50.0, (*out)[3].rec.X)
}

func TestDisconnectWithoutPipeline(t *testing.T) {
	svc, _, out := newTestService(t, filter.Config{Threshold: 5})

	svc.Process(&report.Disconnect{Header: report.Header{Device: "ghost"}})

	require.Len(t, *out, 1)
	assert.Equal(t, report.KindDisconnect, (*out)[0].rec.Kind)
	assert.Equal(t, filter.Idle, (*out)[0].phase)
	assert.Empty(t, svc.Status().Devices)
}

func TestConfigChangeRebuildsFilters(t *testing.T) {
	svc, mgr, out := newTestService(t, filter.Config{Threshold: 5})

	svc.Process(pen("a", 0, 0, 1))
	svc.Process(pen("a", 0, 0, 0))
	require.NoError(t, mgr.SetFilter(filter.Config{Threshold: 0}))

	// the idle pipeline is replaced on the next contact
	svc.Process(pen("a", 1, 0, 1))
	svc.Process(pen("a", 2, 0, 1))

	require.Len(t, *out, 4)
	assert.Equal(t, 1.0, (*out)[2].rec.X)
	assert.Equal(t, 2.0, (*out)[3].rec.X)
	assert.Equal(t, filter.Dragging, (*out)[3].phase)
	assert.Equal(t, 0.0, svc.Status().Threshold)
}

func TestConfigChangeKeepsAnchorUntilRelease(t *testing.T) {
	svc, mgr, out := newTestService(t, filter.Config{Threshold: 5})

	svc.Process(pen("a", 0, 0, 1))
	svc.Process(pen("a", 3, 0, 1))
	require.NoError(t, mgr.SetFilter(filter.Config{Threshold: 0}))

	st := svc.Status()
	require.Len(t, st.Devices, 1)
	assert.Equal(t, "anchored", st.Devices[0].Phase)

	// still held under the threshold the contact started with
	svc.Process(pen("a", 4, 0, 1))
	svc.Process(pen("a", 4, 0, 0))

	require.Len(t, *out, 4)
	for _, e := range *out {
		assert.Equal(t, 0.0, e.rec.X)
	}
	assert.Equal(t, filter.Anchored, (*out)[2].phase)
	assert.Equal(t, filter.Idle, (*out)[3].phase)

	// the next contact runs on the new threshold
	svc.Process(pen("a", 10, 10, 1))
	svc.Process(pen("a", 11, 10, 1))
	require.Len(t, *out, 6)
	assert.Equal(t, 11.0, (*out)[5].rec.X)
	assert.Equal(t, filter.Dragging, (*out)[5].phase)
}

func TestConfigChangeDuringDrag(t *testing.T) {
	svc, mgr, out := newTestService(t, filter.Config{Threshold: 5})

	svc.Process(pen("a", 0, 0, 1))
	svc.Process(pen("a", 10, 0, 1))
	require.NoError(t, mgr.SetFilter(filter.Config{Threshold: 50, SmoothTransition: true}))

	svc.Process(pen("a", 12, 0, 1))
	svc.Process(pen("a", 14, 0, 0))

	require.Len(t, *out, 4)
	assert.Equal(t, 12.0, (*out)[2].rec.X)
	assert.Equal(t, filter.Dragging, (*out)[2].phase)
	assert.Equal(t, 14.0, (*out)[3].rec.X)
	assert.Equal(t, filter.Idle, (*out)[3].phase)
}

func TestUnrelatedConfigChangeKeepsPipeline(t *testing.T) {
	svc, mgr, out := newTestService(t, filter.Config{Threshold: 5})

	svc.Process(pen("a", 0, 0, 1))
	before := svc.chains["a"]

	cfg := mgr.Get()
	cfg.API.Token = "secret"
	require.NoError(t, mgr.Set(cfg))
	assert.False(t, before.stale)

	svc.Process(pen("a", 4, 0, 1))
	svc.Process(pen("a", 4, 0, 0))
	svc.Process(pen("a", 20, 20, 1))

	assert.Same(t, before, svc.chains["a"])
	require.Len(t, *out, 4)
	assert.Equal(t, 0.0, (*out)[2].rec.X)
	assert.Equal(t, 20.0, (*out)[3].rec.X)
}

func TestDeviceAreaChangeWaitsForRelease(t *testing.T) {
	svc, mgr, out := newTestService(t, filter.Config{Threshold: 5})
	cfg := mgr.Get()
	cfg.Input.OutputWidth = 100
	cfg.Input.OutputHeight = 100
	require.NoError(t, mgr.Set(cfg))

	svc.SetDeviceArea("tab", r2.Box{Max: r2.Vec{X: 100, Y: 100}})
	svc.Process(pen("tab", 50, 50, 1))
	svc.SetDeviceArea("tab", r2.Box{Max: r2.Vec{X: 1000, Y: 1000}})
	svc.Process(pen("tab", 50, 50, 0))

	// new area applies from the next contact
	svc.Process(pen("tab", 500, 500, 1))

	require.Len(t, *out, 3)
	assert.Equal(t, 50.0, (*out)[1].rec.X)
	assert.InDelta(t, 50.0, (*out)[2].rec.X, 1e-9)
}

func TestDeviceAreaMapsBeforeThreshold(t *testing.T) {
	svc, mgr, out := newTestService(t, filter.Config{Threshold: 5})
	cfg := mgr.Get()
	cfg.Input.OutputWidth = 100
	cfg.Input.OutputHeight = 100
	require.NoError(t, mgr.Set(cfg))

	svc.SetDeviceArea("tab", r2.Box{Max: r2.Vec{X: 10000, Y: 10000}})

	// 400 device units is 4 px in the output area: still held
	svc.Process(pen("tab", 5000, 5000, 1))
	svc.Process(pen("tab", 5400, 5000, 1))
	// 600 device units is 6 px: dragging
	svc.Process(pen("tab", 5600, 5000, 1))

	require.Len(t, *out, 3)
	assert.Equal(t, 50.0, (*out)[1].rec.X)
	assert.InDelta(t, 56.0, (*out)[2].rec.X, 1e-9)
	assert.Equal(t, filter.Dragging, (*out)[2].phase)
}

func TestAuxPassesThrough(t *testing.T) {
	svc, _, out := newTestService(t, filter.Config{Threshold: 5})
	svc.Process(&report.AuxReport{Header: report.Header{Device: "a"}, Buttons: report.ButtonBarrel1})
	require.Len(t, *out, 1)
	assert.Equal(t, report.KindAux, (*out)[0].rec.Kind)
	assert.Equal(t, report.ButtonBarrel1, (*out)[0].rec.Buttons)
	assert.Equal(t, filter.Idle, (*out)[0].phase)
}

func TestRunDispatchesSubmittedEvents(t *testing.T) {
	mgr, err := config.NewManagerAt(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	svc := New(mgr)

	got := make(chan report.Record, 4)
	svc.AddSink(func(e report.Event, _ filter.Phase) {
		got <- report.ToRecord(e)
	})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- svc.Run(ctx) }()

	require.True(t, svc.Submit(pen("a", 1, 2, 1)))
	select {
	case rec := <-got:
		assert.Equal(t, 1.0, rec.X)
		assert.Equal(t, 2.0, rec.Y)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not dispatched")
	}

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.False(t, svc.Submit(pen("a", 1, 2, 1)))
}
