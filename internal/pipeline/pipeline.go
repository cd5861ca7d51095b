// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/motion_monitor/internal/config"
	"github.com/relabs-tech/motion_monitor/internal/history"
	"github.com/relabs-tech/motion_monitor/internal/imu"
	"github.com/relabs-tech/motion_monitor/internal/monitoring"
	"github.com/relabs-tech/motion_monitor/internal/motion"
	"github.com/relabs-tech/motion_monitor/internal/sensors"
)

// ErrUnknownSensor is returned for a sensor index outside 0..N-1.
var ErrUnknownSensor = errors.New("unknown sensor")

// State is the pipeline lifecycle state.
type State int32

const (
	Idle State = iota
	Waiting
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Waiting:
		return "waiting"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Options configures a Pipeline.
type Options struct {
	Decoder  imu.Decoder
	Deriver  motion.Deriver
	Capacity int
	Tick     time.Duration

	// Workers runs one polling goroutine per sensor instead of polling every
	// sensor in turn on each tick.
	Workers bool

	// StartupWait blocks Run until the first sensor delivers a datagram.
	StartupWait         bool
	StartupPollInterval time.Duration
	StartupMaxAttempts  int

	// StatsInterval enables a periodic per-sensor statistics log line.
	StatsInterval time.Duration
}

// OptionsFromConfig maps a loaded configuration onto pipeline options.
func OptionsFromConfig(cfg *config.Config) Options {
	mode := motion.Continuous
	if cfg.Mode == config.ModeMulti {
		mode = motion.Binary
	}
	return Options{
		Decoder:             imu.NewDecoder(cfg.FieldCount),
		Deriver:             motion.Deriver{Mode: mode, Threshold: cfg.Threshold, Scale: cfg.ScaleDivisor},
		Capacity:            cfg.Capacity,
		Tick:                cfg.Tick(),
		Workers:             cfg.Scheduling == config.SchedulingWorkers,
		StartupWait:         cfg.StartupWait,
		StartupPollInterval: cfg.PollInterval(),
		StartupMaxAttempts:  cfg.StartupMaxAttempts,
		StatsInterval:       cfg.StatsInterval(),
	}
}

// sensor is one endpoint's slice of the pipeline. The buffer has a single
// writer: the Tick loop in sequential mode, the sensor's worker otherwise.
type sensor struct {
	ep  sensors.Endpoint
	src sensors.Receiver
	buf *history.Buffer

	mu     sync.Mutex
	stats  Stats
	latest motion.Sample
	seq    uint64
}

// Pipeline drives receive, decode, derive and append for a fixed set of sensors.
type Pipeline struct {
	opts    Options
	sensors []*sensor

	state     atomic.Int32
	ticks     atomic.Uint64
	closeOnce sync.Once
	closeErr  error
}

// New builds a pipeline over receivers, indexed in slice order. The pipeline
// owns the receivers and closes them when Run returns or Close is called.
func New(receivers []sensors.Receiver, opts Options) *Pipeline {
	if opts.Capacity <= 0 {
		panic("pipeline: capacity must be positive")
	}
	p := &Pipeline{opts: opts, sensors: make([]*sensor, len(receivers))}
	for i, r := range receivers {
		ep := r.Endpoint()
		p.sensors[i] = &sensor{
			ep:    ep,
			src:   r,
			buf:   history.New(opts.Capacity),
			stats: Stats{Sensor: i, Port: ep.Port},
		}
	}
	return p
}

// Len returns the number of sensors.
func (p *Pipeline) Len() int { return len(p.sensors) }

// Capacity returns the history length of every sensor buffer.
func (p *Pipeline) Capacity() int { return p.opts.Capacity }

// Deriver returns the derivation policy in use.
func (p *Pipeline) Deriver() motion.Deriver { return p.opts.Deriver }

// State returns the lifecycle state.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// Ticks returns how many ticks have completed since the loop started.
func (p *Pipeline) Ticks() uint64 { return p.ticks.Load() }

func (p *Pipeline) sensor(i int) (*sensor, error) {
	if i < 0 || i >= len(p.sensors) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSensor, i)
	}
	return p.sensors[i], nil
}

// Endpoint returns sensor i's endpoint.
func (p *Pipeline) Endpoint(i int) (sensors.Endpoint, error) {
	s, err := p.sensor(i)
	if err != nil {
		return sensors.Endpoint{}, err
	}
	return s.ep, nil
}

// Snapshot returns a copy of sensor i's history, oldest first.
func (p *Pipeline) Snapshot(i int) ([]float64, error) {
	s, err := p.sensor(i)
	if err != nil {
		return nil, err
	}
	return s.buf.Snapshot(), nil
}

// Latest returns the last derived sample for sensor i and its sequence
// number. The sequence is 0 until the first append.
func (p *Pipeline) Latest(i int) (motion.Sample, uint64, error) {
	s, err := p.sensor(i)
	if err != nil {
		return motion.Sample{}, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.seq, nil
}

// Stats returns a copy of sensor i's counters.
func (p *Pipeline) Stats(i int) (Stats, error) {
	s, err := p.sensor(i)
	if err != nil {
		return Stats{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats, nil
}

// Tick makes one bounded receive attempt per sensor in index order.
func (p *Pipeline) Tick() {
	for _, s := range p.sensors {
		p.poll(s)
	}
	p.ticks.Add(1)
}

// Ingest runs decode, derive and append for a frame received outside the
// tick loop, such as the one observed by the startup wait.
func (p *Pipeline) Ingest(i int, frame imu.Frame) error {
	s, err := p.sensor(i)
	if err != nil {
		return err
	}
	return p.ingest(s, frame)
}

func (p *Pipeline) poll(s *sensor) {
	res := s.src.TryReceive()

	switch res.Status {
	case sensors.NoData:
		s.mu.Lock()
		s.stats.Attempts++
		s.stats.Timeouts++
		s.mu.Unlock()
	case sensors.Failed:
		s.mu.Lock()
		s.stats.Attempts++
		s.stats.TransportErrors++
		s.stats.LastError = res.Err.Error()
		s.mu.Unlock()
		if p.State() != Stopped {
			monitoring.Logf("%v", res.Err)
		}
	case sensors.Data:
		s.mu.Lock()
		s.stats.Attempts++
		s.mu.Unlock()
		_ = p.ingest(s, res.Frame)
	}
}

func (p *Pipeline) ingest(s *sensor, frame imu.Frame) error {
	s.mu.Lock()
	s.stats.Datagrams++
	s.stats.LastDatagram = frame.Received
	s.mu.Unlock()

	vec, err := p.opts.Decoder.Decode(frame.Payload)
	if err != nil {
		s.mu.Lock()
		if errors.Is(err, imu.ErrArityMismatch) {
			s.stats.ArityRejects++
		} else {
			s.stats.ParseRejects++
		}
		s.stats.LastError = err.Error()
		s.mu.Unlock()
		monitoring.Logf("%s: dropped datagram: %v", s.ep, err)
		return err
	}

	sample, err := p.opts.Deriver.Derive(vec)
	if err != nil {
		s.mu.Lock()
		s.stats.DeriveRejects++
		s.stats.LastError = err.Error()
		s.mu.Unlock()
		monitoring.Logf("%s: dropped datagram: %v", s.ep, err)
		return err
	}

	s.buf.Append(sample.Value)

	s.mu.Lock()
	s.latest = sample
	s.seq++
	s.stats.Appended++
	s.mu.Unlock()
	return nil
}

// Run drives the pipeline until ctx is cancelled, then closes every receiver.
// With StartupWait set it first blocks until sensor 0 delivers a datagram;
// that datagram is ingested before the first tick. A cancelled context is not
// an error.
func (p *Pipeline) Run(ctx context.Context) error {
	defer p.state.Store(int32(Stopped))

	// Closing the sockets unblocks any receive still in flight.
	stop := context.AfterFunc(ctx, func() {
		p.state.Store(int32(Stopped))
		p.Close()
	})
	defer stop()

	if p.opts.StartupWait && len(p.sensors) > 0 {
		p.state.Store(int32(Waiting))
		first := p.sensors[0]
		frame, err := sensors.WaitForData(ctx, first.src, p.opts.StartupPollInterval, p.opts.StartupMaxAttempts)
		if err != nil {
			p.Close()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		first.mu.Lock()
		first.stats.Attempts++
		first.mu.Unlock()
		_ = p.ingest(first, frame)
	}

	p.state.Store(int32(Running))
	monitoring.Logf("pipeline: running %d sensor(s), tick %v, workers=%v", len(p.sensors), p.opts.Tick, p.opts.Workers)

	var wg sync.WaitGroup
	if p.opts.StatsInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.logStats(ctx)
		}()
	}
	if p.opts.Workers {
		for _, s := range p.sensors {
			wg.Add(1)
			go func(s *sensor) {
				defer wg.Done()
				p.work(ctx, s)
			}(s)
		}
	}

	ticker := time.NewTicker(p.opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Close()
			wg.Wait()
			monitoring.Logf("pipeline: stopped after %d ticks", p.Ticks())
			return nil
		case <-ticker.C:
			if p.opts.Workers {
				// Workers own the receives; the tick only paces readers.
				p.ticks.Add(1)
			} else {
				p.Tick()
			}
		}
	}
}

// work polls one sensor on its own ticker.
func (p *Pipeline) work(ctx context.Context, s *sensor) {
	ticker := time.NewTicker(p.opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(s)
		}
	}
}

func (p *Pipeline) logStats(ctx context.Context) {
	ticker := time.NewTicker(p.opts.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i := range p.sensors {
				st, _ := p.Stats(i)
				monitoring.Logf("%s: %s", p.sensors[i].ep, st)
			}
		}
	}
}

// Close closes every receiver. It is safe to call more than once.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		rs := make([]sensors.Receiver, len(p.sensors))
		for i, s := range p.sensors {
			rs[i] = s.src
		}
		p.closeErr = sensors.CloseAll(rs)
	})
	return p.closeErr
}
