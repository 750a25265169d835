package enhance

import (
	"time"

	"github.com/rs/zerolog"

	"framelift/internal/aitool"
	"framelift/internal/batchdir"
)

// Snapshot is one progress observation. Throughput is frames per second
// since the stage started; ETA is remaining frames at that rate.
type Snapshot struct {
	Stage      aitool.Kind
	Range      batchdir.Range
	Done       int
	Total      int
	Throughput float64
	ETA        time.Duration
	Elapsed    time.Duration
	Finished   bool
}

func (s Snapshot) Percent() float64 {
	if s.Total <= 0 {
		return 0
	}
	p := float64(s.Done) / float64(s.Total) * 100
	if p > 100 {
		p = 100
	}
	return p
}

type monitorConfig struct {
	Stage    aitool.Kind
	Registry *batchdir.Registry
	OutStage batchdir.Stage
	Range    batchdir.Range
	Total    int
	Interval time.Duration
	Log      zerolog.Logger
	Emit     func(Snapshot)
}

// monitor polls the output frame count on a fixed interval. It only reads
// state; it never affects job completion or ordering. Poll failures are
// logged and polling continues.
type monitor struct {
	cfg     monitorConfig
	stopCh  chan struct{}
	doneCh  chan struct{}
	started time.Time
}

func newMonitor(cfg monitorConfig) *monitor {
	return &monitor{
		cfg:    cfg,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func (m *monitor) Start() {
	m.started = time.Now()
	go m.loop()
}

// StopAndJoin signals completion and blocks until the final snapshot has
// been emitted. Safe to call exactly once, from a defer.
func (m *monitor) StopAndJoin() {
	close(m.stopCh)
	<-m.doneCh
}

func (m *monitor) loop() {
	defer close(m.doneCh)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	lastDone := 0
	for {
		select {
		case <-m.stopCh:
			m.emit(m.poll(lastDone), true)
			return
		case <-ticker.C:
			snap := m.poll(lastDone)
			lastDone = snap.Done
			m.emit(snap, false)
		}
	}
}

func (m *monitor) poll(lastDone int) Snapshot {
	done, err := m.cfg.Registry.CountFrames(m.cfg.OutStage, m.cfg.Range)
	if err != nil {
		m.cfg.Log.Warn().Err(err).Str("stage", string(m.cfg.Stage)).Msg("progress poll failed")
		done = lastDone
	}
	elapsed := time.Since(m.started)
	snap := Snapshot{
		Stage:   m.cfg.Stage,
		Range:   m.cfg.Range,
		Done:    done,
		Total:   m.cfg.Total,
		Elapsed: elapsed,
	}
	if elapsed > 0 && done > 0 {
		snap.Throughput = float64(done) / elapsed.Seconds()
		remaining := m.cfg.Total - done
		if remaining > 0 && snap.Throughput > 0 {
			snap.ETA = time.Duration(float64(remaining)/snap.Throughput) * time.Second
		}
	}
	return snap
}

func (m *monitor) emit(snap Snapshot, finished bool) {
	snap.Finished = finished
	m.cfg.Log.Info().
		Str("stage", string(snap.Stage)).
		Str("batches", snap.Range.String()).
		Int("done", snap.Done).
		Int("total", snap.Total).
		Float64("fps", snap.Throughput).
		Dur("eta", snap.ETA).
		Msg("progress")
	if m.cfg.Emit != nil {
		m.cfg.Emit(snap)
	}
}
