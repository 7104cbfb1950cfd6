// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdsched

import (
	"strings"
	"testing"
	"time"

	"github.com/gogpu/cmdsched/device"
)

func newTestScheduler(t *testing.T, dev device.Device, opts ...Option) *Scheduler {
	t.Helper()
	s, err := NewScheduler(dev, opts...)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	t.Cleanup(s.Shutdown)
	return s
}

func TestRecordExecutesInOrder(t *testing.T) {
	s := newTestScheduler(t, newFakeDevice(true))

	var order []string
	for _, name := range []string{"A", "B", "C"} {
		name := name
		s.RecordFunc(func(mgr *CommandBufferManager) {
			order = append(order, name)
		})
	}
	s.SyncWorker()

	if got, want := strings.Join(order, ""), "ABC"; got != want {
		t.Errorf("execution order = %q, want %q", got, want)
	}
}

func TestRecordOverflowSplitsAcrossChunks(t *testing.T) {
	// Two 128-byte commands per chunk; five commands force two overflows.
	s := newTestScheduler(t, newFakeDevice(true), WithChunkCapacity(256))

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		s.Record(&sizedCommand{size: 128, fn: func(mgr *CommandBufferManager) {
			order = append(order, i)
		}})
	}
	s.SyncWorker()

	if got, want := len(order), 5; got != want {
		t.Fatalf("executed %d commands, want %d", got, want)
	}
	for i, v := range order {
		if v != i {
			t.Errorf("execution order[%d] = %d, want %d", i, v, i)
		}
	}

	// The overflow path recycles executed chunks through the reserve pool.
	s.reserveMu.Lock()
	reserved := len(s.reserve)
	s.reserveMu.Unlock()
	if reserved == 0 {
		t.Error("no chunks returned to the reserve pool after overflow")
	}
}

func TestRecordOversizedCommandPanics(t *testing.T) {
	s := newTestScheduler(t, newFakeDevice(true), WithChunkCapacity(64))

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Record() of oversized command did not panic")
		}
		if msg, ok := r.(string); !ok || !strings.Contains(msg, "exceeds chunk capacity") {
			t.Errorf("panic = %v, want message about chunk capacity", r)
		}
	}()
	s.Record(&sizedCommand{size: 128})
}

func TestFenceCountersStrictlyIncrease(t *testing.T) {
	s := newTestScheduler(t, newFakeDevice(true))

	if got := s.GetCurrentFenceCounter(); got != 0 {
		t.Fatalf("GetCurrentFenceCounter() before any submit = %d, want 0", got)
	}

	fc1 := s.SubmitCommandBuffer(false, false, device.PresentTarget{})
	fc2 := s.SubmitCommandBuffer(false, false, device.PresentTarget{})
	if fc1 != 1 || fc2 != 2 {
		t.Errorf("fence counters = %d, %d, want 1, 2", fc1, fc2)
	}
	if got := s.GetCurrentFenceCounter(); got != fc2 {
		t.Errorf("GetCurrentFenceCounter() = %d, want %d", got, fc2)
	}

	s.WaitForFenceCounter(fc2)
	if got := s.GetCompletedFenceCounter(); got < fc2 {
		t.Errorf("GetCompletedFenceCounter() = %d, want >= %d", got, fc2)
	}
}

func TestSubmitWaitForCompletionBlocks(t *testing.T) {
	dev := newFakeDevice(true)
	s := newTestScheduler(t, dev)

	// onWorkerThread routes the device submit through the background
	// submission goroutine; waitForCompletion must still cover it.
	fc := s.SubmitCommandBuffer(true, true, device.PresentTarget{})
	if got := s.GetCompletedFenceCounter(); got < fc {
		t.Errorf("GetCompletedFenceCounter() = %d after waited submit, want >= %d", got, fc)
	}
	if got := dev.submitCount(); got != 1 {
		t.Errorf("device submits = %d, want 1", got)
	}
}

func TestWaitForRetiredCounterReturnsImmediately(t *testing.T) {
	s := newTestScheduler(t, newFakeDevice(true))

	fc := s.SubmitCommandBuffer(false, true, device.PresentTarget{})

	done := make(chan struct{})
	go func() {
		s.WaitForFenceCounter(fc)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForFenceCounter on a retired counter blocked")
	}
}

func TestWaitForUnissuedCounterPanics(t *testing.T) {
	s := newTestScheduler(t, newFakeDevice(true))

	defer func() {
		if recover() == nil {
			t.Fatal("WaitForFenceCounter(99) did not panic")
		}
	}()
	s.WaitForFenceCounter(99)
}

func TestPresentStatusFlags(t *testing.T) {
	dev := newFakeDevice(true)
	s := newTestScheduler(t, dev)

	target := device.PresentTarget{Swapchain: "swapchain", ImageIndex: 3}
	s.SubmitCommandBuffer(false, true, target)

	if got := dev.presentCount(); got != 1 {
		t.Fatalf("device presents = %d, want 1", got)
	}
	if !s.CheckLastPresentDone() {
		t.Error("CheckLastPresentDone() = false after present, want true")
	}
	if s.CheckLastPresentDone() {
		t.Error("CheckLastPresentDone() second call = true, want cleared")
	}
	if s.CheckLastPresentFailed() {
		t.Error("CheckLastPresentFailed() = true after successful present")
	}
	if got := s.GetLastPresentResult(); got != device.Success {
		t.Errorf("GetLastPresentResult() = %v, want Success", got)
	}
}

func TestDeferDestructionRunsAfterCompletion(t *testing.T) {
	dev := newFakeDevice(true)
	s := newTestScheduler(t, dev)

	s.DeferDestruction(device.KindBuffer, "stale-buffer")
	s.SubmitCommandBuffer(false, true, device.PresentTarget{})

	waitUntil(t, time.Second, func() bool {
		return len(dev.destroyedHandles()) == 1
	}, "deferred destruction to run")
	if got := dev.destroyedHandles()[0]; got != "stale-buffer" {
		t.Errorf("destroyed handle = %v, want %q", got, "stale-buffer")
	}
}

func TestShutdownDrainsEverything(t *testing.T) {
	dev := newFakeDevice(true)
	s, err := NewScheduler(dev)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	executed := 0
	for i := 0; i < 10; i++ {
		s.RecordFunc(func(mgr *CommandBufferManager) { executed++ })
	}
	s.SubmitCommandBuffer(true, false, device.PresentTarget{})
	s.SubmitCommandBuffer(true, false, device.PresentTarget{})

	s.Shutdown()

	if executed != 10 {
		t.Errorf("executed %d commands before shutdown, want 10", executed)
	}
	if got := dev.submitCount(); got != 2 {
		t.Errorf("device submits = %d, want 2", got)
	}
	if got := s.QueueDepth(); got != 0 {
		t.Errorf("QueueDepth() after Shutdown = %d, want 0", got)
	}

	// Idempotent.
	s.Shutdown()
}

func TestSynchronizeSubmissionThread(t *testing.T) {
	dev := newFakeDevice(true)
	s := newTestScheduler(t, dev)

	for i := 0; i < 3; i++ {
		s.SubmitCommandBuffer(true, false, device.PresentTarget{})
	}
	s.SynchronizeSubmissionThread()

	if got := dev.submitCount(); got != 3 {
		t.Errorf("device submits after SynchronizeSubmissionThread = %d, want 3", got)
	}
}

func TestCommandBuffersRaisedAboveFramesInFlight(t *testing.T) {
	s := newTestScheduler(t, newFakeDevice(true),
		WithFramesInFlight(3), WithCommandBuffers(2))

	if got, want := len(s.mgr.slots), 4; got != want {
		t.Errorf("slot count = %d, want %d (framesInFlight+1)", got, want)
	}
}
