// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdsched

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/cmdsched/device"
)

// Scheduler is the producer-facing entry point of the scheduling core.
//
// The producer goroutine records commands into the current chunk; Flush
// hands the chunk to the worker goroutine, which replays it against the
// CommandBufferManager. Submissions are numbered by a strictly increasing
// fence counter and travel through the same command stream as everything
// else, so the total recording order is also the total execution order.
//
// A Scheduler is explicitly constructed with NewScheduler and explicitly
// torn down with Shutdown. It is not a singleton; inject it into whatever
// rendering or state-tracking layer needs it.
//
// Record, Flush, SyncWorker, SubmitCommandBuffer and WaitForFenceCounter are
// meant to be called from a single producer goroutine. The fence counter
// accessors are safe from any goroutine.
type Scheduler struct {
	mgr  *CommandBufferManager
	opts schedulerOptions

	// chunk is exclusively owned by the producer goroutine until flushed.
	chunk *chunk

	// workMu guards the work queue, workerIdle and stop. workCond wakes the
	// worker; idleCond wakes SyncWorker callers.
	workMu     sync.Mutex
	workCond   *sync.Cond
	idleCond   *sync.Cond
	workQueue  []*chunk
	workerIdle bool
	stop       bool
	workerWG   sync.WaitGroup

	// reserveMu guards the chunk reuse pool, accessed by the producer
	// (acquire) and the worker (return).
	reserveMu sync.Mutex
	reserve   []*chunk

	// currentFenceCounter is the last fence counter handed out. Written by
	// the producer, read anywhere.
	currentFenceCounter atomic.Uint64

	shutdownDone bool
}

// NewScheduler creates a scheduler driving the given device and starts its
// worker goroutine. The device must outlive the scheduler.
func NewScheduler(dev device.Device, opts ...Option) (*Scheduler, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.commandBuffers < o.framesInFlight+1 {
		o.commandBuffers = o.framesInFlight + 1
	}

	mgr, err := newCommandBufferManager(dev, o)
	if err != nil {
		return nil, fmt.Errorf("cmdsched: %w", err)
	}

	s := &Scheduler{
		mgr:        mgr,
		opts:       o,
		workerIdle: true,
	}
	s.workCond = sync.NewCond(&s.workMu)
	s.idleCond = sync.NewCond(&s.workMu)
	s.acquireNewChunk()

	s.workerWG.Add(1)
	go s.workerLoop()

	Logger().Info("cmdsched: scheduler started",
		slog.Int("commandBuffers", o.commandBuffers),
		slog.Int("framesInFlight", o.framesInFlight),
		slog.Int("chunkCapacity", o.chunkCapacity))
	return s, nil
}

// Manager returns the command buffer manager the worker executes against.
// Useful for command bodies constructed outside closures.
func (s *Scheduler) Manager() *CommandBufferManager { return s.mgr }

// Record appends a command to the current chunk. When the chunk is full it
// is flushed to the worker and recording retries against a fresh chunk; the
// retry always succeeds for any command whose footprint fits an empty
// chunk. A command too large for an empty chunk is a configuration error
// and panics: recorded work must never be silently dropped.
//
// Record does not block on device work; the only wait it can incur is the
// queue hand-off on the overflow path.
func (s *Scheduler) Record(cmd Command) {
	if s.chunk.record(cmd) {
		return
	}

	s.Flush()
	if !s.chunk.record(cmd) {
		panic(fmt.Sprintf("cmdsched: command footprint %d bytes exceeds chunk capacity %d",
			commandSize(cmd), s.opts.chunkCapacity))
	}
}

// RecordFunc is shorthand for Record(CommandFunc(fn)).
func (s *Scheduler) RecordFunc(fn func(mgr *CommandBufferManager)) {
	s.Record(CommandFunc(fn))
}

// Flush hands the current chunk to the worker and acquires a replacement.
// No-op if nothing has been recorded since the last flush.
func (s *Scheduler) Flush() {
	if s.chunk.empty() {
		return
	}

	s.workMu.Lock()
	s.workerIdle = false
	s.workQueue = append(s.workQueue, s.chunk)
	s.workCond.Signal()
	s.workMu.Unlock()

	s.acquireNewChunk()
}

// SyncWorker flushes, then blocks until the worker has drained the entire
// queue and gone idle. After SyncWorker returns, every previously recorded
// command has been executed (not necessarily completed on the device; use
// WaitForFenceCounter for that).
func (s *Scheduler) SyncWorker() {
	s.Flush()

	s.workMu.Lock()
	for !s.workerIdle {
		s.idleCond.Wait()
	}
	s.workMu.Unlock()
}

// SubmitCommandBuffer assigns the next fence counter, records the
// end-of-recording + queue-submission of the active command buffer slot into
// the command stream, and returns the counter.
//
// With onWorkerThread set, the device-level submit call is pushed further to
// the manager's dedicated submission goroutine instead of running on the
// worker. With waitForCompletion set, the call flushes and blocks until the
// device has completed this submission; otherwise it just flushes and
// returns immediately (fire-and-forget pipelining).
//
// Pass a zero PresentTarget when no present is wanted.
func (s *Scheduler) SubmitCommandBuffer(onWorkerThread, waitForCompletion bool, present device.PresentTarget) uint64 {
	fenceCounter := s.currentFenceCounter.Add(1)

	s.Record(CommandFunc(func(mgr *CommandBufferManager) {
		mgr.SubmitCommandBuffer(fenceCounter, onWorkerThread, present)
	}))

	if waitForCompletion {
		s.WaitForFenceCounter(fenceCounter)
	} else {
		s.Flush()
	}
	return fenceCounter
}

// WaitForFenceCounter blocks until the device has completed the submission
// carrying the given counter. Returns immediately when the counter has
// already retired. Waiting on a counter that was never issued is a
// programming error and panics.
func (s *Scheduler) WaitForFenceCounter(counter uint64) {
	if s.mgr.GetCompletedFenceCounter() >= counter {
		return
	}
	if current := s.currentFenceCounter.Load(); counter > current {
		panic(fmt.Sprintf("cmdsched: waiting for fence counter %d, but only %d were issued",
			counter, current))
	}

	// Make sure the submission command actually ran before blocking on the
	// device.
	s.SyncWorker()
	s.mgr.WaitForFenceCounter(counter)
}

// GetCompletedFenceCounter returns the highest fence counter the device is
// known to have finished. Safe from any goroutine.
func (s *Scheduler) GetCompletedFenceCounter() uint64 {
	return s.mgr.GetCompletedFenceCounter()
}

// GetCurrentFenceCounter returns the last fence counter handed out by
// SubmitCommandBuffer. Safe from any goroutine.
func (s *Scheduler) GetCurrentFenceCounter() uint64 {
	return s.currentFenceCounter.Load()
}

// CheckLastPresentFailed reports whether the most recent present failed,
// clearing the flag. A true result usually means the swapchain must be
// recreated by the rendering layer.
func (s *Scheduler) CheckLastPresentFailed() bool { return s.mgr.CheckLastPresentFailed() }

// CheckLastPresentDone reports whether a present has completed since the
// last call, clearing the flag.
func (s *Scheduler) CheckLastPresentDone() bool { return s.mgr.CheckLastPresentDone() }

// GetLastPresentResult returns the device result of the most recent present.
func (s *Scheduler) GetLastPresentResult() device.Result { return s.mgr.GetLastPresentResult() }

// DeferDestruction schedules a device handle for release once the
// submission that is active at execution time has retired on the device.
func (s *Scheduler) DeferDestruction(kind device.ResourceKind, handle device.Handle) {
	s.Record(CommandFunc(func(mgr *CommandBufferManager) {
		mgr.DeferDestruction(kind, handle)
	}))
}

// SynchronizeSubmissionThread drains the worker and then the background
// submission goroutine, guaranteeing every submission handed off so far has
// reached the device queue.
func (s *Scheduler) SynchronizeSubmissionThread() {
	s.SyncWorker()
	s.mgr.WaitForSubmitWorkerIdle()
}

// QueueDepth reports how many chunks and submissions are still queued. Zero
// after Shutdown.
func (s *Scheduler) QueueDepth() int {
	s.workMu.Lock()
	depth := len(s.workQueue)
	s.workMu.Unlock()
	return depth + s.mgr.pendingWork()
}

// Shutdown drains the worker and the background submission goroutine, waits
// for all outstanding device work, runs remaining deferred destructions and
// stops every goroutine the scheduler owns. No command or submission is
// abandoned mid-flight. The scheduler must not be used afterwards.
//
// Shutdown is idempotent.
func (s *Scheduler) Shutdown() {
	if s.shutdownDone {
		return
	}
	s.shutdownDone = true

	s.SyncWorker()
	s.mgr.WaitForSubmitWorkerIdle()

	s.workMu.Lock()
	s.stop = true
	s.workCond.Broadcast()
	s.workMu.Unlock()
	s.workerWG.Wait()

	s.mgr.shutdown()
	Logger().Info("cmdsched: scheduler shut down")
}

// workerLoop drains flushed chunks in FIFO order and replays them against
// the manager. It parks on workCond while the queue is empty.
func (s *Scheduler) workerLoop() {
	defer s.workerWG.Done()

	s.workMu.Lock()
	for {
		for len(s.workQueue) == 0 && !s.stop {
			s.workerIdle = true
			s.idleCond.Broadcast()
			s.workCond.Wait()
		}
		if len(s.workQueue) == 0 {
			// Stopping with an empty queue; SyncWorker before Shutdown
			// guarantees this is the only way out.
			s.workerIdle = true
			s.idleCond.Broadcast()
			s.workMu.Unlock()
			return
		}

		work := s.workQueue[0]
		s.workQueue = s.workQueue[1:]
		s.workMu.Unlock()

		work.executeAll(s.mgr)

		s.reserveMu.Lock()
		s.reserve = append(s.reserve, work)
		s.reserveMu.Unlock()

		s.workMu.Lock()
	}
}

// acquireNewChunk installs a chunk from the reserve pool, or a fresh one
// when the pool is empty.
func (s *Scheduler) acquireNewChunk() {
	s.reserveMu.Lock()
	if n := len(s.reserve); n > 0 {
		s.chunk = s.reserve[n-1]
		s.reserve = s.reserve[:n-1]
		s.reserveMu.Unlock()
		return
	}
	s.reserveMu.Unlock()
	s.chunk = newChunk(s.opts.chunkCapacity)
}
