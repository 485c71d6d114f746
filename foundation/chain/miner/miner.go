// Package miner runs the single background mining task that builds and
// tries to solve candidate blocks. Coordination between the driver (owned
// by the node's serialized state) and the mining goroutine uses message
// passing for results and one shared atomic word for cancellation. No
// mutable structure crosses that boundary.
package miner

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coinforge/node/foundation/chain/block"
	"github.com/coinforge/node/foundation/chain/hash"
)

// Debounce is the default settle window before a restart request actually
// starts a new job.
const Debounce = 250 * time.Millisecond

// pollStride is how many nonce attempts the engine tries before polling
// the cancellation word. At the maximum supported difficulty (64, i.e. a
// practically unreachable full-hash match) this still keeps cancellation
// latency imperceptible relative to any real hash rate; at low
// difficulties it costs nothing since a solution is found long before a
// poll would matter.
const pollStride = 4096

// timestampRefreshStride is how many attempts elapse between refreshing
// the candidate's timestamp, so a slow-mining job doesn't stall behind
// the "timestamp <= now + 60s" acceptance check.
const timestampRefreshStride = 1 << 18

// Job is a fully assembled candidate block header, nonce 0, ready for the
// engine to search.
type Job struct {
	Header block.Header
}

// Status reports how a mining attempt ended.
type Status int

const (
	// Success means the engine found a nonce solving the header.
	Success Status = iota
	// Canceled means the cancel word was observed set before a solution
	// was found.
	Canceled
)

// Mine searches nonces starting at 0 until job's header hash meets its
// difficulty or cancel is set to 1. It polls cancel at least every
// pollStride attempts.
func Mine(job Job, cancel *atomic.Int32) (block.Block, Status) {
	h := job.Header
	h.Nonce = 0

	for attempts := 0; ; attempts++ {
		hh := block.HeaderHash(h)
		if hash.MeetsDifficulty(hh, h.Difficulty) {
			return block.New(h), Success
		}

		h.Nonce++

		if attempts%pollStride == 0 && cancel.Load() == 1 {
			return block.Block{}, Canceled
		}
		if attempts%timestampRefreshStride == 0 {
			h.Timestamp = time.Now().UnixMilli()
		}
	}
}

// =============================================================================

// BuildFunc assembles the next candidate job from the node's current
// state. ok is false when there is nothing to mine on yet (should not
// normally happen once genesis exists).
type BuildFunc func() (Job, bool)

// AcceptFunc hands a successfully mined block back to the node's ingest
// path, the same path used for externally received blocks.
type AcceptFunc func(block.Block)

// EventHandler receives human-readable progress notifications.
type EventHandler func(v string, args ...any)

// Driver runs at most one mining job at a time and restarts it, after a
// debounce window, whenever the canonical tip or the mempool changes.
type Driver struct {
	build  BuildFunc
	accept AcceptFunc
	ev     EventHandler

	mu             sync.Mutex
	enabled        bool
	running        bool
	restartPending bool
	cancel         *atomic.Int32
	timer          *time.Timer
	wg             sync.WaitGroup
}

// New constructs a Driver. Mining does not start until Start is called
// and the driver is enabled.
func New(build BuildFunc, accept AcceptFunc, ev EventHandler) *Driver {
	if ev == nil {
		ev = func(string, ...any) {}
	}
	return &Driver{
		build:  build,
		accept: accept,
		ev:     ev,
	}
}

// Start sets the initial enabled state and, when enabled, schedules the
// first job. Call once.
func (d *Driver) Start(enabled bool) {
	d.mu.Lock()
	d.enabled = enabled
	d.mu.Unlock()

	if enabled {
		d.RequestRestart()
	}
}

// Shutdown stops any running job and waits for the engine goroutine to
// drain. The driver must not be restarted afterward.
func (d *Driver) Shutdown() {
	d.mu.Lock()
	d.enabled = false
	d.restartPending = false
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.running && d.cancel != nil {
		d.cancel.Store(1)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

// Enabled reports whether mining is currently turned on for this node.
func (d *Driver) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// SetEnabled turns mining on or off, returning the previous state. This
// backs the mining control endpoints.
func (d *Driver) SetEnabled(enabled bool) (previous bool) {
	d.mu.Lock()
	previous = d.enabled
	d.enabled = enabled
	running := d.running
	cancel := d.cancel
	d.mu.Unlock()

	if enabled && !previous {
		d.RequestRestart()
	}
	if !enabled && running && cancel != nil {
		cancel.Store(1)
	}

	return previous
}

// RequestRestart schedules a debounced restart: if a job is currently
// running it is canceled and a restart is marked pending for when it
// finishes; otherwise a new job starts after the debounce window. Called
// whenever the canonical tip changes or the mempool gains/loses a
// transaction.
func (d *Driver) RequestRestart() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.enabled {
		return
	}

	if d.running {
		d.restartPending = true
		if d.cancel != nil {
			d.cancel.Store(1)
		}
		d.ev("miner: restart requested: job running, cancel signaled")
		return
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(Debounce, d.fireDebounced)
	d.ev("miner: restart requested: debounce scheduled")
}

// fireDebounced is invoked by the debounce timer.
func (d *Driver) fireDebounced() {
	d.mu.Lock()
	if !d.enabled || d.running {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	d.startJob()
}

// startJob assembles a candidate and launches the mining goroutine.
func (d *Driver) startJob() {

	// Claim the running interlock first so the debounce timer and a
	// finishing job can race into here without starting two engines.
	d.mu.Lock()
	if d.running {
		d.restartPending = true
		d.mu.Unlock()
		return
	}
	d.running = true
	d.restartPending = false
	cancel := &atomic.Int32{}
	d.cancel = cancel
	d.mu.Unlock()

	job, ok := d.build()
	if !ok {
		d.ev("miner: startJob: nothing to mine on yet")
		d.mu.Lock()
		d.running = false
		d.cancel = nil
		d.mu.Unlock()
		return
	}

	d.wg.Add(1)
	go d.runEngine(job, cancel)
}

// runEngine hosts the mining engine goroutine, respawning it on an
// unexpected panic.
func (d *Driver) runEngine(job Job, cancel *atomic.Int32) {
	defer d.wg.Done()

	result, status, err := d.safeMine(job, cancel)
	if err != nil {
		d.ev("miner: engine fault: %s: respawning after backoff", err)
		time.Sleep(engineRespawnBackoff)
		result, status, err = d.safeMine(job, cancel)
		if err != nil {
			d.ev("miner: engine fault: %s: giving up on this job", err)
			d.jobFinished()
			return
		}
	}

	switch status {
	case Success:
		d.ev("miner: job succeeded: height[%d] hash[%s]", result.Height, result.Hash)
		d.accept(result)
	case Canceled:
		d.ev("miner: job canceled")
	}

	d.jobFinished()
}

// engineRespawnBackoff is the fixed delay before retrying a job after the
// engine goroutine faults.
const engineRespawnBackoff = 200 * time.Millisecond

// safeMine runs Mine with a recover guard so a defect in the engine
// cannot take down the driver's goroutine silently.
func (d *Driver) safeMine(job Job, cancel *atomic.Int32) (b block.Block, status Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	b, status = Mine(job, cancel)
	return b, status, nil
}

// jobFinished releases the running interlock and, if a restart was
// requested while the job was in flight, starts the next one. Success and
// canceled release the interlock the same way.
func (d *Driver) jobFinished() {
	d.mu.Lock()
	d.running = false
	d.cancel = nil
	restart := d.restartPending
	d.restartPending = false
	enabled := d.enabled
	d.mu.Unlock()

	if restart && enabled {
		d.startJob()
	}
}
