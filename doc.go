// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cmdsched decouples command recording from GPU submission latency.
//
// # Overview
//
// cmdsched provides an asynchronous command scheduling and resource-recycling
// core for GPU rendering: a render thread records closures into fixed-capacity
// chunks without ever blocking on device work, a worker goroutine replays them
// in order against a pooled set of command buffers, and a monotonically
// increasing fence counter tracks device completion so that CPU-side
// resources are recycled only after the GPU has provably finished with them.
//
// # Quick Start
//
//	dev := null.New() // or backend/vulkan, backend/wgpu
//	s, err := cmdsched.NewScheduler(dev)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer s.Shutdown()
//
//	// Record work; execution happens on the worker goroutine.
//	s.Record(cmdsched.CommandFunc(func(mgr *cmdsched.CommandBufferManager) {
//		cb := mgr.GetCurrentCommandBuffer()
//		_ = cb // encode draws into cb
//	}))
//
//	// Pipeline a frame and keep going without waiting.
//	counter := s.SubmitCommandBuffer(true, false, device.PresentTarget{})
//
//	// Later, reclaim resources once the GPU caught up.
//	s.WaitForFenceCounter(counter)
//
// # Architecture
//
// The package is organized around four cooperating pieces:
//   - Chunk: a capacity-bounded arena of type-erased commands, replayed in
//     recording order (chunk.go)
//   - Scheduler: the producer-facing record/flush/sync/submit API plus the
//     worker goroutine that drains flushed chunks (scheduler.go)
//   - CommandBufferManager: the ring of in-flight command buffer slots,
//     per-frame descriptor pools and deferred-destruction lists (manager.go,
//     submit.go)
//   - fence tracker: a goroutine that observes device fences in submission
//     order and advances the completed counter (fence.go)
//
// The GPU itself sits behind the interfaces in the device package; backends
// for Vulkan (backend/vulkan), gogpu/wgpu (backend/wgpu) and a host-only
// null device (backend/null) are provided.
//
// # Threading Model
//
// One producer goroutine records and flushes; one worker goroutine executes;
// submission and fence tracking each run on their own goroutine. Commands
// are never reordered and never run concurrently with each other, so command
// bodies need no locking of their own. CommandBufferManager methods are
// meant to be called from command bodies (worker context); the Scheduler
// API is meant for the producer.
package cmdsched
