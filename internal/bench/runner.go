// Package bench drives many concurrent session.Channel readers against
// an RTSP server to measure connect latency and RTP delivery under load.
package bench

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/wavecrest-video/rtspchannel/internal/session"
)

// Config holds benchmark configuration.
type Config struct {
	URL           string
	Username      string
	Password      string
	Readers       int
	Duration      time.Duration
	Rate          float64 // connections per second
	StatsInterval time.Duration
	ReorderWindow int
}

// Aggregator sums RTP delivery snapshots across every active reader.
// Readers push their own per-channel deltas in periodically; nothing
// here touches a session.Channel directly, so readers can come and go
// without the aggregator needing to track which ones are still alive.
type Aggregator struct {
	packets atomic.Uint64
	lost    atomic.Uint64
	bytes   atomic.Uint64
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator { return &Aggregator{} }

func (a *Aggregator) add(prev, cur session.Snapshot) {
	if cur.Packets > prev.Packets {
		a.packets.Add(cur.Packets - prev.Packets)
	}
	if cur.Lost > prev.Lost {
		a.lost.Add(cur.Lost - prev.Lost)
	}
	if cur.Bytes > prev.Bytes {
		a.bytes.Add(cur.Bytes - prev.Bytes)
	}
}

// Snapshot returns current aggregate statistics.
func (a *Aggregator) Snapshot() session.Snapshot {
	return session.Snapshot{
		Packets: a.packets.Load(),
		Lost:    a.lost.Load(),
		Bytes:   a.bytes.Load(),
	}
}

// failureWindow decides, over a rolling sample of connect attempts,
// whether the spawn rate should back off, recover, or hold steady. It
// owns no clock itself: the caller tells it how many attempts and
// failures happened since the last check.
type failureWindow struct {
	every    int           // re-evaluate every N spawned connections
	minSpan  time.Duration // don't re-evaluate more often than this
	backoff  float64       // multiplier applied when failures spike
	recovery float64       // multiplier applied when failures are absent
	trigger  float64       // fraction of the sample that counts as "spiking"

	lastCheck    time.Time
	lastFailures int64
}

func newFailureWindow() *failureWindow {
	return &failureWindow{
		every:    10,
		minSpan:  2 * time.Second,
		backoff:  0.5,
		recovery: 1.2,
		trigger:  0.2,
		lastCheck: time.Now(),
	}
}

// verdict is what the window decided to do with the current limit.
type verdict int

const (
	holdRate verdict = iota
	backOffRate
	recoverRate
)

// evaluate compares the failures seen since its last check against a
// sample of `every` spawns and returns what the spawn loop should do,
// throttled to run at most once per minSpan and once per `every` spawns.
func (fw *failureWindow) evaluate(spawned int, cumulativeFailures int64) verdict {
	if spawned == 0 || spawned%fw.every != 0 {
		return holdRate
	}
	now := time.Now()
	if now.Sub(fw.lastCheck) < fw.minSpan {
		return holdRate
	}
	delta := cumulativeFailures - fw.lastFailures
	fw.lastCheck = now
	fw.lastFailures = cumulativeFailures

	switch {
	case float64(delta) > fw.trigger*float64(fw.every):
		return backOffRate
	case delta == 0:
		return recoverRate
	default:
		return holdRate
	}
}

// Runner orchestrates the benchmark.
type Runner struct {
	config     Config
	aggregator *Aggregator

	activeConnects atomic.Int64
	totalConnects  atomic.Int64
	totalFailures  atomic.Int64
	connectLatency atomic.Int64 // cumulative milliseconds
	connectCount   atomic.Int64

	latencies   []float64
	latenciesMu sync.Mutex
	minLatency  atomic.Int64
	maxLatency  atomic.Int64

	limiter   *rate.Limiter
	semaphore chan struct{}
	wg        sync.WaitGroup
}

const noLatencyYet = math.MaxInt64

// NewRunner creates a new benchmark runner.
func NewRunner(config Config, agg *Aggregator) *Runner {
	burst := 10
	if config.Rate > 100 {
		burst = int(config.Rate / 10)
	}
	if burst > 100 {
		burst = 100
	}

	maxConcurrent := 10000
	if config.Readers > 10000 {
		maxConcurrent = config.Readers / 10
		if maxConcurrent > 50000 {
			maxConcurrent = 50000
		}
	}

	r := &Runner{
		config:     config,
		aggregator: agg,
		limiter:    rate.NewLimiter(rate.Limit(config.Rate), burst),
		semaphore:  make(chan struct{}, maxConcurrent),
		latencies:  make([]float64, 0, 1000),
	}
	r.minLatency.Store(noLatencyYet)
	r.maxLatency.Store(0)
	return r
}

// Run executes the benchmark until ctx is done, then waits for every
// reader goroutine it spawned to finish.
func (r *Runner) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.wg.Add(1)
	go r.spawnConnections(runCtx)

	<-runCtx.Done()
	r.wg.Wait()
	return nil
}

// spawnConnections creates readers at the configured rate, consulting a
// failureWindow to slow down when connects start failing in bulk and
// speed back up toward the target rate once they stop.
func (r *Runner) spawnConnections(ctx context.Context) {
	defer r.wg.Done()

	fw := newFailureWindow()
	target := rate.Limit(r.config.Rate)

	for spawned := 0; spawned < r.config.Readers; spawned++ {
		if ctx.Err() != nil {
			return
		}

		switch fw.evaluate(spawned, r.totalFailures.Load()) {
		case backOffRate:
			if next := r.limiter.Limit() * rate.Limit(fw.backoff); next >= 1 {
				r.limiter.SetLimit(next)
			} else {
				r.limiter.SetLimit(1)
			}
		case recoverRate:
			if next := r.limiter.Limit() * rate.Limit(fw.recovery); next <= target {
				r.limiter.SetLimit(next)
			} else {
				r.limiter.SetLimit(target)
			}
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return
		}

		select {
		case r.semaphore <- struct{}{}:
		case <-ctx.Done():
			return
		}

		r.wg.Add(1)
		go r.runReader(ctx)
	}
}

// atomicMin stores v in dst if it is smaller than the current value.
func atomicMin(dst *atomic.Int64, v int64) {
	for {
		cur := dst.Load()
		if v >= cur || dst.CompareAndSwap(cur, v) {
			return
		}
	}
}

// atomicMax stores v in dst if it is larger than the current value.
func atomicMax(dst *atomic.Int64, v int64) {
	for {
		cur := dst.Load()
		if v <= cur || dst.CompareAndSwap(cur, v) {
			return
		}
	}
}

// retryWithBackoff calls fn up to attempts times, sleeping
// backoffBase*2^attempt between failures, stopping early if ctx is
// done. It returns the last error once attempts are exhausted.
func retryWithBackoff(ctx context.Context, attempts int, backoffBase time.Duration, fn func() error) error {
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts-1 {
			return err
		}
		time.Sleep(backoffBase * time.Duration(1<<attempt))
	}
	return err
}

// runReader manages a single RTSP reader: connect, DESCRIBE/SETUP/PLAY
// against track 0 ("/trackID=0"), drain RTP until the
// benchmark duration elapses or the server drops the connection.
func (r *Runner) runReader(ctx context.Context) {
	defer r.wg.Done()
	defer func() { <-r.semaphore }()

	const maxAttempts = 3
	var ch *session.Channel
	var connectDuration time.Duration

	start := time.Now()
	err := retryWithBackoff(ctx, maxAttempts, 100*time.Millisecond, func() error {
		c, err := session.New(r.config.URL, r.config.Username, r.config.Password,
			session.WithReorderWindow(r.config.ReorderWindow))
		if err != nil {
			return err
		}
		if err := c.Start(ctx); err != nil {
			return err
		}
		ch = c
		return nil
	})
	if err != nil {
		r.totalFailures.Add(1)
		return
	}
	connectDuration = time.Since(start)

	latencyMs := connectDuration.Milliseconds()
	r.connectLatency.Add(latencyMs)
	r.connectCount.Add(1)
	atomicMin(&r.minLatency, latencyMs)
	atomicMax(&r.maxLatency, latencyMs)

	r.latenciesMu.Lock()
	if len(r.latencies) < 10000 {
		r.latencies = append(r.latencies, float64(latencyMs))
	}
	r.latenciesMu.Unlock()

	r.totalConnects.Add(1)
	r.activeConnects.Add(1)
	defer r.activeConnects.Add(-1)

	runCtx, cancel := context.WithTimeout(ctx, r.config.Duration)
	defer cancel()

	if err := r.drive(runCtx, ch); err != nil && runCtx.Err() == nil {
		r.totalFailures.Add(1)
	}
	ch.Shutdown()
}

// drive issues the standard DESCRIBE/SETUP/PLAY sequence against
// track 0 and drains RTP packets, feeding periodic deltas into the
// shared aggregator, until runCtx is done.
func (r *Runner) drive(runCtx context.Context, ch *session.Channel) error {
	if _, err := ch.Describe(runCtx); err != nil {
		return fmt.Errorf("bench: describe: %w", err)
	}
	if _, err := ch.Setup(runCtx, "/trackID=0", [2]int{0, 1}); err != nil {
		return fmt.Errorf("bench: setup: %w", err)
	}
	if _, err := ch.Play(runCtx, "npt=0.000-"); err != nil {
		return fmt.Errorf("bench: play: %w", err)
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	prev := ch.Stats()

	for {
		select {
		case <-runCtx.Done():
			r.aggregator.add(prev, ch.Stats())
			return nil
		case <-ticker.C:
			cur := ch.Stats()
			r.aggregator.add(prev, cur)
			prev = cur
		case _, ok := <-ch.Packets():
			if !ok {
				r.aggregator.add(prev, ch.Stats())
				return fmt.Errorf("bench: connection closed")
			}
		}
	}
}

// Stats represents current benchmark statistics.
type Stats struct {
	ActiveConnects int64
	TotalConnects  int64
	TotalFailures  int64
	AvgConnectTime float64 // milliseconds
	MinConnectTime float64 // milliseconds
	MaxConnectTime float64 // milliseconds
	P95ConnectTime float64 // milliseconds
	RTPPackets     uint64
	RTPLoss        uint64
	RTPBytes       uint64
}

// GetStats returns current statistics.
func (r *Runner) GetStats() Stats {
	snapshot := r.aggregator.Snapshot()

	var avgConnect float64
	count := r.connectCount.Load()
	if count > 0 {
		avgConnect = float64(r.connectLatency.Load()) / float64(count)
	}

	var p95 float64
	r.latenciesMu.Lock()
	if len(r.latencies) > 0 {
		p95 = percentileNearestRank(r.latencies, 95)
	}
	r.latenciesMu.Unlock()

	minLat := float64(r.minLatency.Load())
	if minLat == noLatencyYet {
		minLat = 0
	}

	return Stats{
		ActiveConnects: r.activeConnects.Load(),
		TotalConnects:  r.totalConnects.Load(),
		TotalFailures:  r.totalFailures.Load(),
		AvgConnectTime: avgConnect,
		MinConnectTime: minLat,
		MaxConnectTime: float64(r.maxLatency.Load()),
		P95ConnectTime: p95,
		RTPPackets:     snapshot.Packets,
		RTPLoss:        snapshot.Lost,
		RTPBytes:       snapshot.Bytes,
	}
}

// percentileNearestRank picks the smallest sorted value whose rank
// covers the requested percentile, rather than interpolating between
// two ranks: rank = ceil(p/100 * n), clamped to the slice bounds.
func percentileNearestRank(values []float64, p float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	rank := int(math.Ceil(p / 100 * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}
