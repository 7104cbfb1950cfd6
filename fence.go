// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdsched

import (
	"fmt"
	"log/slog"
)

// GetCompletedFenceCounter returns the highest fence counter the device is
// known to have finished. Work tagged with counter N has completed whenever
// the returned value is >= N. Safe from any goroutine.
func (m *CommandBufferManager) GetCompletedFenceCounter() uint64 {
	return m.completedFenceCounter.Load()
}

// WaitForFenceCounter blocks until the completed counter reaches the given
// value. The submission carrying that counter must already have been handed
// to the device (the Scheduler guarantees this by draining the worker
// first).
func (m *CommandBufferManager) WaitForFenceCounter(counter uint64) {
	if m.completedFenceCounter.Load() >= counter {
		return
	}

	m.counterMu.Lock()
	for m.completedFenceCounter.Load() < counter {
		m.counterCond.Wait()
	}
	m.counterMu.Unlock()
}

// fenceLoop is the fence tracker goroutine. It waits on each queued device
// fence strictly in submission order: device completion is only meaningful
// observed in that order, since a later fence can complete only after all
// logically earlier queue operations have. For each completed fence it
// advances the completed counter, runs the owning slot's deferred
// destructions, and wakes counter waiters.
func (m *CommandBufferManager) fenceLoop() {
	defer m.fenceWG.Done()

	m.fenceMu.Lock()
	for {
		for len(m.pendingFences) == 0 && !m.fenceStop {
			m.fenceCond.Wait()
		}
		if len(m.pendingFences) == 0 {
			// Stop requested and nothing left to observe.
			m.fenceMu.Unlock()
			return
		}

		pf := m.pendingFences[0]
		m.pendingFences = m.pendingFences[1:]
		m.fenceMu.Unlock()

		if err := pf.fence.Wait(m.opts.fenceTimeout); err != nil {
			// An unresponsive device has no safe local recovery; every
			// later counter would be stuck behind this one.
			Logger().Error("cmdsched: device fence wait failed",
				slog.Uint64("fenceCounter", pf.counter),
				slog.String("error", err.Error()))
			panic(fmt.Sprintf("cmdsched: fence counter %d: fence wait failed: %v", pf.counter, err))
		}

		m.completedFenceCounter.Store(pf.counter)

		for _, fn := range pf.cleanups {
			fn()
		}

		m.counterMu.Lock()
		m.counterCond.Broadcast()
		m.counterMu.Unlock()

		m.fenceMu.Lock()
	}
}
