// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdsched

import (
	"log/slog"

	"github.com/gogpu/cmdsched/device"
)

// SubmitCommandBuffer ends recording on the active slot and hands it to the
// device queue under the given fence counter. Runs inside a scheduled
// command on the worker goroutine; the counter was assigned by
// Scheduler.SubmitCommandBuffer when the command was recorded.
//
// With onWorkerThread set, the device-level submit is queued to the
// dedicated submission goroutine (FIFO, one submission in flight at a time)
// so the worker can start replaying the next frame's commands immediately.
// Otherwise the submit happens inline on the calling goroutine.
func (m *CommandBufferManager) SubmitCommandBuffer(fenceCounter uint64, onWorkerThread bool, present device.PresentTarget) {
	slot := m.slots[m.currentSlot]
	slot.fenceCounter = fenceCounter
	m.frames[m.currentFrame].lastFenceCounter = fenceCounter

	// End recording up front; the submission goroutine must only touch the
	// device queue, never the recording state.
	if slot.initUsed {
		if err := slot.initBuffer.End(); err != nil {
			panic("cmdsched: end init command buffer: " + err.Error())
		}
	}
	if err := slot.drawBuffer.End(); err != nil {
		panic("cmdsched: end draw command buffer: " + err.Error())
	}

	// The fence tracker owns the cleanups from here; the slot can be
	// reused without touching them.
	cleanups := slot.cleanups
	slot.cleanups = nil

	Logger().Debug("cmdsched: submitting command buffer",
		slog.Uint64("fenceCounter", fenceCounter),
		slog.Int("slot", m.currentSlot),
		slog.Bool("onWorkerThread", onWorkerThread),
		slog.Bool("present", present.Valid()),
		slog.Bool("initUsed", slot.initUsed))

	if onWorkerThread {
		m.submitMu.Lock()
		m.submitIdle = false
		m.pendingSubmits = append(m.pendingSubmits, pendingSubmit{
			slot:     m.currentSlot,
			present:  present,
			cleanups: cleanups,
		})
		m.submitCond.Signal()
		m.submitMu.Unlock()
	} else {
		// Drain the submission goroutine first: an inline submit must not
		// overtake queued submissions, or the device sees overlapping
		// Submit calls and the fence tracker observes fences out of
		// submission order.
		m.WaitForSubmitWorkerIdle()
		m.submitToQueue(m.currentSlot, present, cleanups)
	}

	m.moveToNextCommandBuffer(present.Valid())
}

// submitToQueue performs the device-level submit (and present) for one
// slot, then hands the slot's fence to the fence tracker. Runs on the
// worker goroutine or the submission goroutine, never both at once.
func (m *CommandBufferManager) submitToQueue(slotIndex int, present device.PresentTarget, cleanups []func()) {
	slot := m.slots[slotIndex]

	info := device.SubmitInfo{Fence: slot.fence}
	if slot.initUsed {
		info.CommandBuffers = append(info.CommandBuffers, slot.initBuffer)
	}
	info.CommandBuffers = append(info.CommandBuffers, slot.drawBuffer)
	if slot.semaphoreUsed {
		info.WaitSemaphore = slot.waitSemaphore
	}
	if present.Valid() {
		info.SignalSemaphore = m.presentSemaphore
	}

	if res := m.dev.Submit(info); res.IsError() {
		// Reported via polled state, not propagated across goroutines:
		// the code that can react (recreate the swapchain, drop the
		// device) runs on the producer side.
		Logger().Warn("cmdsched: queue submit failed",
			slog.Uint64("fenceCounter", slot.fenceCounter),
			slog.String("result", res.String()))
		m.lastPresentResult.Store(int32(res))
		m.lastPresentFailed.Store(true)
	}

	// Queue the fence before presenting so completion is observed in
	// submission order even if the present stalls.
	m.fenceMu.Lock()
	m.pendingFences = append(m.pendingFences, pendingFence{
		fence:    slot.fence,
		counter:  slot.fenceCounter,
		cleanups: cleanups,
	})
	m.fenceCond.Signal()
	m.fenceMu.Unlock()

	if present.Valid() {
		res := m.dev.Present(present, m.presentSemaphore)
		m.lastPresentResult.Store(int32(res))
		if res != device.Success {
			Logger().Warn("cmdsched: present failed",
				slog.Uint64("fenceCounter", slot.fenceCounter),
				slog.String("result", res.String()))
			m.lastPresentFailed.Store(true)
		}
		m.lastPresentDone.Store(true)
	}
}

// submitLoop is the submission goroutine: it drains queued submissions in
// FIFO order, one at a time, and parks while the queue is empty.
func (m *CommandBufferManager) submitLoop() {
	defer m.submitWG.Done()

	m.submitMu.Lock()
	for {
		for len(m.pendingSubmits) == 0 && !m.submitStop {
			m.submitIdle = true
			m.submitIdleCond.Broadcast()
			m.submitCond.Wait()
		}
		if len(m.pendingSubmits) == 0 {
			m.submitIdle = true
			m.submitIdleCond.Broadcast()
			m.submitMu.Unlock()
			return
		}

		ps := m.pendingSubmits[0]
		m.pendingSubmits = m.pendingSubmits[1:]
		m.submitMu.Unlock()

		m.submitToQueue(ps.slot, ps.present, ps.cleanups)

		m.submitMu.Lock()
	}
}

// WaitForSubmitWorkerIdle blocks until the submission goroutine has drained
// its queue and gone idle, guaranteeing every submission handed off so far
// has reached the device queue.
func (m *CommandBufferManager) WaitForSubmitWorkerIdle() {
	m.submitMu.Lock()
	for !m.submitIdle {
		m.submitIdleCond.Wait()
	}
	m.submitMu.Unlock()
}

// ----------------------------------------------------------------------------
// Present status
// ----------------------------------------------------------------------------

// CheckLastPresentFailed reports whether the most recent present (or queue
// submit) failed, clearing the flag. The rendering layer polls this to
// trigger swapchain recreation.
func (m *CommandBufferManager) CheckLastPresentFailed() bool {
	return m.lastPresentFailed.Swap(false)
}

// CheckLastPresentDone reports whether a present completed since the last
// call, clearing the flag.
func (m *CommandBufferManager) CheckLastPresentDone() bool {
	return m.lastPresentDone.Swap(false)
}

// GetLastPresentResult returns the device result of the most recent present
// (or failed submit).
func (m *CommandBufferManager) GetLastPresentResult() device.Result {
	return device.Result(m.lastPresentResult.Load())
}
