// Package service runs the per-device filter pipelines of the pendrag daemon.
package service

import (
	"context"
	"log"
	"slices"
	"strings"
	"sync"

	"gonum.org/v1/gonum/spatial/r2"

	"pendrag/internal/config"
	"pendrag/internal/filter"
	"pendrag/internal/metrics"
	"pendrag/internal/pipeline"
	"pendrag/internal/protocol"
	"pendrag/internal/report"
)

// QueueSize is the number of events Submit can buffer ahead of Run
const QueueSize = 1024

// Sink receives every event leaving a device pipeline together with the
// filter phase after that event was processed.
type Sink func(e report.Event, phase filter.Phase)

// chain is the pipeline of one input channel
type chain struct {
	filter *filter.DragThreshold
	pipe   *pipeline.Pipeline
	key    chainKey

	// stale chains are replaced once their filter is Idle
	stale bool
}

// chainKey is everything a pipeline is built from
type chainKey struct {
	filter  filter.Config
	area    r2.Box
	hasArea bool
	output  r2.Vec
}

// Service coordinates the report stream: events from every source are
// funneled through Run, which owns one filter instance per device.
type Service struct {
	mu        sync.Mutex
	configMgr *config.Manager
	stats     *metrics.Stats
	chains    map[string]*chain
	areas     map[string]r2.Box
	sinks     []Sink

	events chan report.Event
	done   chan struct{}
	once   sync.Once
}

// New creates a service bound to the config manager. Pipelines whose
// settings change are rebuilt at the start of their next contact.
func New(configMgr *config.Manager) *Service {
	s := &Service{
		configMgr: configMgr,
		stats:     metrics.NewStats(),
		chains:    make(map[string]*chain),
		areas:     make(map[string]r2.Box),
		events:    make(chan report.Event, QueueSize),
		done:      make(chan struct{}),
	}
	configMgr.RegisterChangeCallback(s.Reset)
	return s
}

// Stats returns the pipeline counters
func (s *Service) Stats() *metrics.Stats {
	return s.stats
}

// AddSink registers an output. Sinks run on the dispatch goroutine and
// must not block.
func (s *Service) AddSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// SetDeviceArea records the coordinate box a device reports in. When an
// output area is configured, reports of that device are mapped onto it
// before the threshold is applied.
func (s *Service) SetDeviceArea(device string, area r2.Box) {
	cfg := s.configMgr.Get()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.areas[device] = area
	if c, ok := s.chains[device]; ok && c.key != s.keyFor(device, cfg) {
		c.stale = true
	}
}

// Reset marks every pipeline built from outdated settings as stale. A stale
// pipeline finishes its current contact and is replaced on the first event
// after it returns to Idle, so a press and its release always share one
// anchor.
func (s *Service) Reset() {
	cfg := s.configMgr.Get()

	s.mu.Lock()
	n := 0
	for device, c := range s.chains {
		if !c.stale && c.key != s.keyFor(device, cfg) {
			c.stale = true
			n++
		}
	}
	s.mu.Unlock()
	if n > 0 {
		log.Printf("Service: Configuration changed, %d pipeline(s) will be rebuilt", n)
	}
}

// keyFor returns the settings a pipeline for device would be built from.
// Called with mu held.
func (s *Service) keyFor(device string, cfg config.Config) chainKey {
	k := chainKey{filter: cfg.Filter}
	if area, ok := s.areas[device]; ok && cfg.Input.OutputWidth > 0 && cfg.Input.OutputHeight > 0 {
		k.area = area
		k.hasArea = true
		k.output = r2.Vec{X: cfg.Input.OutputWidth, Y: cfg.Input.OutputHeight}
	}
	return k
}

// Submit queues an event for Run. It blocks while the queue is full and
// returns false once the service has stopped.
func (s *Service) Submit(e report.Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- e:
		return true
	case <-s.done:
		return false
	}
}

// Run dispatches queued events until ctx is cancelled
func (s *Service) Run(ctx context.Context) error {
	defer s.once.Do(func() { close(s.done) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-s.events:
			s.Process(e)
		}
	}
}

// Process runs one event through its device pipeline synchronously.
// Run is the only caller in the daemon.
func (s *Service) Process(e report.Event) {
	s.stats.Observe(e)

	device := report.Device(e)

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chains[device]
	if ok && c.stale && c.filter.State().Phase == filter.Idle {
		delete(s.chains, device)
		ok = false
	}

	if e.Kind() == report.KindDisconnect {
		if ok {
			c.pipe.Consume(e)
			delete(s.chains, device)
		} else {
			s.emit(e, filter.Idle)
		}
		delete(s.areas, device)
		log.Printf("Service: Device %q disconnected", device)
		return
	}

	if !ok {
		var err error
		if c, err = s.newChain(device); err != nil {
			log.Printf("Service: Cannot build pipeline for %q: %v", device, err)
			return
		}
		s.chains[device] = c
	}

	c.pipe.Consume(e)
}

// emit hands e to every sink. Called with mu held.
func (s *Service) emit(e report.Event, phase filter.Phase) {
	for _, sink := range s.sinks {
		sink(e, phase)
	}
}

// newChain builds the pipeline for one device. Called with mu held.
func (s *Service) newChain(device string) (*chain, error) {
	cfg := s.configMgr.Get()

	f, err := filter.New(cfg.Filter)
	if err != nil {
		return nil, err
	}
	s.stats.Attach(f)

	key := s.keyFor(device, cfg)
	elements := []pipeline.Element{f}
	if key.hasArea {
		elements = append(elements, pipeline.NewAreaMap(key.area, r2.Box{Max: key.output}))
	}

	c := &chain{filter: f, pipe: pipeline.New(elements...), key: key}
	// emitted from Process, so mu is held here
	c.pipe.Subscribe(func(e report.Event) {
		s.emit(e, c.filter.State().Phase)
	})

	log.Printf("Service: New pipeline for %q (threshold=%.2f, smooth=%v)",
		device, cfg.Filter.Threshold, cfg.Filter.SmoothTransition)
	return c, nil
}

// Status returns the filter state of every live device and the counters
func (s *Service) Status() protocol.StatusPayload {
	cfg := s.configMgr.Get()
	st := protocol.StatusPayload{
		Threshold:        cfg.Filter.Threshold,
		SmoothTransition: cfg.Filter.SmoothTransition,
		Devices:          []protocol.DeviceStatus{},
		Stats:            s.stats.Snapshot(),
	}

	s.mu.Lock()
	for device, c := range s.chains {
		state := c.filter.State()
		ds := protocol.DeviceStatus{Device: device, Phase: state.Phase.String()}
		if a, ok := state.Anchor(); ok {
			ds.Anchor = &[2]float64{a.X, a.Y}
		}
		st.Devices = append(st.Devices, ds)
	}
	s.mu.Unlock()

	slices.SortFunc(st.Devices, func(a, b protocol.DeviceStatus) int {
		return strings.Compare(a.Device, b.Device)
	})
	return st
}

// LogSink logs every report leaving the pipeline
func LogSink(e report.Event, phase filter.Phase) {
	rec := report.ToRecord(e)
	log.Printf("Report: %s dev=%q seq=%d x=%.2f y=%.2f p=%.3f buttons=%#x phase=%s",
		rec.Kind, rec.Device, rec.Seq, rec.X, rec.Y, rec.Pressure, rec.Buttons, phase)
}
