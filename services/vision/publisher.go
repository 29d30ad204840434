package vision

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"github.com/hpalin2/picarnav/logging"
	"github.com/hpalin2/picarnav/utils"
)

// DefaultInterval is how often the detector runs, roughly the rate of inference on the car.
const DefaultInterval = time.Second

// Publisher runs a Detector in the background and keeps the latest Snapshot.
type Publisher struct {
	detector Detector
	clock    clock.Clock
	interval time.Duration
	logger   logging.Logger

	latest  atomic.Pointer[Snapshot]
	seq     atomic.Uint64
	errors  atomic.Int64
	// a dead camera fails every poll; warn about it at most this often
	warnEvery rate.Sometimes
	workers   *utils.StoppableWorkers
}

// NewPublisher returns a publisher that has not been started.
func NewPublisher(detector Detector, clk clock.Clock, interval time.Duration, logger logging.Logger) *Publisher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Publisher{
		detector:  detector,
		clock:     clk,
		interval:  interval,
		logger:    logger,
		warnEvery: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// Start launches the detection loop. Call Close to stop it.
func (p *Publisher) Start() {
	p.workers = utils.NewStoppableWorkers(p.run)
}

func (p *Publisher) run(ctx context.Context) {
	ticker := p.clock.Ticker(p.interval)
	defer ticker.Stop()
	for {
		p.Poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll runs the detector once and publishes the result. Failures are logged and leave the
// previous snapshot in place.
func (p *Publisher) Poll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	detections, err := p.detector.Detect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		count := p.errors.Inc()
		p.warnEvery.Do(func() {
			p.logger.Warnw("detector failed", "error", err, "failures", count)
		})
		return
	}
	p.Publish(detections)
}

// Publish stores detections as the newest snapshot.
func (p *Publisher) Publish(detections []Detection) *Snapshot {
	now := p.clock.Now()
	for i := range detections {
		if detections[i].Time.IsZero() {
			detections[i].Time = now
		}
	}
	snap := &Snapshot{Detections: detections, Captured: now, Seq: p.seq.Inc()}
	p.latest.Store(snap)
	if len(detections) > 0 {
		p.logger.Debugw("detections", "labels", snap.Labels(), "seq", snap.Seq)
	}
	return snap
}

// Latest returns the newest snapshot, nil before the first one.
func (p *Publisher) Latest() *Snapshot {
	return p.latest.Load()
}

// Errors is the number of failed detector runs.
func (p *Publisher) Errors() int64 {
	return p.errors.Load()
}

// Close stops the detection loop and waits for it to exit.
func (p *Publisher) Close() {
	if p.workers != nil {
		p.workers.Stop()
	}
}
