// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdsched

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/cmdsched/device"
)

// CommandBufferManager owns the ring of in-flight command buffer slots, the
// per-frame transient descriptor pools and the deferred-destruction lists.
//
// Its methods are meant to be called from command bodies executing on the
// worker goroutine (the fence counter accessors and present status checks
// are safe from any goroutine). The manager never blocks the producer: all
// waiting happens on the worker, the submission goroutine or the fence
// tracker goroutine.
type CommandBufferManager struct {
	dev  device.Device
	opts schedulerOptions

	// completedFenceCounter is the highest counter known to have finished
	// on the device. Written only by the fence goroutine, read anywhere.
	completedFenceCounter atomic.Uint64

	// slots cycle in submission order; a slot is reused only after its
	// previous fence counter has retired.
	slots       []*slotResources
	frames      []frameResources
	currentSlot int
	// currentFrame advances only on presenting submissions: transient
	// allocations live for one display frame, not one submission.
	currentFrame int

	// presentSemaphore orders queue completion against presentation.
	presentSemaphore device.Semaphore

	// submitMu guards the pending submission queue. submitCond wakes the
	// submission goroutine, submitIdleCond wakes idle waiters.
	submitMu       sync.Mutex
	submitCond     *sync.Cond
	submitIdleCond *sync.Cond
	pendingSubmits []pendingSubmit
	submitIdle     bool
	submitStop     bool
	submitWG       sync.WaitGroup

	// fenceMu guards the pending fence queue consumed by the fence
	// tracker; counterMu/counterCond serve WaitForFenceCounter callers.
	fenceMu       sync.Mutex
	fenceCond     *sync.Cond
	pendingFences []pendingFence
	fenceStop     bool
	fenceWG       sync.WaitGroup

	counterMu   sync.Mutex
	counterCond *sync.Cond

	// Present status, polled and cleared by the rendering layer. Reported
	// out-of-band because the reacting code runs on a different goroutine
	// and usually a different frame than the present itself.
	lastPresentFailed atomic.Bool
	lastPresentDone   atomic.Bool
	lastPresentResult atomic.Int32
}

// slotResources is one unit of the submission ring: recording storage, a
// completion fence and the cleanup work tied to the submission using it.
type slotResources struct {
	pool       device.CommandPool
	initBuffer device.CommandBuffer
	drawBuffer device.CommandBuffer
	fence      device.Fence

	// waitSemaphore gates execution on swapchain image acquisition. Set by
	// the rendering layer per submission, consumed once.
	waitSemaphore device.Semaphore
	semaphoreUsed bool

	// fenceCounter is the counter assigned at submission; 0 while the slot
	// is free.
	fenceCounter uint64

	// initUsed is set lazily by GetCurrentInitCommandBuffer so empty init
	// buffers are never submitted.
	initUsed bool

	cleanups []func()
}

// frameResources is the transient allocation state of one frame in flight.
type frameResources struct {
	descriptorPools []device.DescriptorPool
	currentPool     int

	// lastFenceCounter is the newest submission recorded under this frame;
	// pools are reset only after it retires.
	lastFenceCounter uint64
}

// pendingSubmit describes one submission queued for the background
// submission goroutine. Consumed exactly once.
type pendingSubmit struct {
	slot     int
	present  device.PresentTarget
	cleanups []func()
}

// pendingFence pairs a device fence with its counter, in submission order.
// Consumed exactly once by the fence tracker.
type pendingFence struct {
	fence    device.Fence
	counter  uint64
	cleanups []func()
}

// newCommandBufferManager creates the slot ring and frame resources and
// starts the submission and fence tracker goroutines.
func newCommandBufferManager(dev device.Device, opts schedulerOptions) (*CommandBufferManager, error) {
	m := &CommandBufferManager{
		dev:        dev,
		opts:       opts,
		frames:     make([]frameResources, opts.framesInFlight),
		submitIdle: true,
	}
	m.submitCond = sync.NewCond(&m.submitMu)
	m.submitIdleCond = sync.NewCond(&m.submitMu)
	m.fenceCond = sync.NewCond(&m.fenceMu)
	m.counterCond = sync.NewCond(&m.counterMu)

	sem, err := dev.CreateSemaphore()
	if err != nil {
		return nil, fmt.Errorf("create present semaphore: %w", err)
	}
	m.presentSemaphore = sem

	for i := 0; i < opts.commandBuffers; i++ {
		slot, err := m.createSlot()
		if err != nil {
			m.destroyResources()
			return nil, fmt.Errorf("create command buffer slot %d: %w", i, err)
		}
		m.slots = append(m.slots, slot)
	}

	// Open recording on the first slot so GetCurrentCommandBuffer is valid
	// from the start.
	if err := m.beginCommandBuffer(); err != nil {
		m.destroyResources()
		return nil, err
	}

	m.submitWG.Add(1)
	go m.submitLoop()
	m.fenceWG.Add(1)
	go m.fenceLoop()

	return m, nil
}

// createSlot allocates the device resources for one ring slot.
func (m *CommandBufferManager) createSlot() (*slotResources, error) {
	pool, err := m.dev.CreateCommandPool()
	if err != nil {
		return nil, fmt.Errorf("create command pool: %w", err)
	}
	initBuf, err := pool.AllocateCommandBuffer()
	if err != nil {
		pool.Destroy()
		return nil, fmt.Errorf("allocate init command buffer: %w", err)
	}
	drawBuf, err := pool.AllocateCommandBuffer()
	if err != nil {
		pool.Destroy()
		return nil, fmt.Errorf("allocate draw command buffer: %w", err)
	}
	fence, err := m.dev.CreateFence(false)
	if err != nil {
		pool.Destroy()
		return nil, fmt.Errorf("create fence: %w", err)
	}
	return &slotResources{
		pool:       pool,
		initBuffer: initBuf,
		drawBuffer: drawBuf,
		fence:      fence,
	}, nil
}

// ----------------------------------------------------------------------------
// Recording handles
// ----------------------------------------------------------------------------

// GetCurrentCommandBuffer returns the active slot's main recording handle.
// Valid until the next submission; call again afterwards.
func (m *CommandBufferManager) GetCurrentCommandBuffer() device.CommandBuffer {
	return m.slots[m.currentSlot].drawBuffer
}

// GetCurrentInitCommandBuffer returns the active slot's init recording
// handle, for one-shot setup work (uploads, layout transitions) that must
// execute before the main handle's commands. Marks the init buffer used so
// it is included in the submission; an untouched init buffer is skipped
// entirely.
func (m *CommandBufferManager) GetCurrentInitCommandBuffer() device.CommandBuffer {
	slot := m.slots[m.currentSlot]
	slot.initUsed = true
	return slot.initBuffer
}

// SetWaitSemaphoreForCurrentCommandBuffer makes the active slot's
// submission wait on the given semaphore, typically the swapchain image
// acquisition signal. Consumed by the next submission.
func (m *CommandBufferManager) SetWaitSemaphoreForCurrentCommandBuffer(sem device.Semaphore) {
	slot := m.slots[m.currentSlot]
	slot.waitSemaphore = sem
	slot.semaphoreUsed = true
}

// ----------------------------------------------------------------------------
// Transient descriptor storage
// ----------------------------------------------------------------------------

// AllocateDescriptorSet carves a transient descriptor set for the given
// layout out of the current frame's pool set, growing it when exhausted.
// The set is valid until this frame index comes back around.
func (m *CommandBufferManager) AllocateDescriptorSet(layout device.DescriptorSetLayout) (device.DescriptorSet, error) {
	f := &m.frames[m.currentFrame]
	for {
		if f.currentPool < len(f.descriptorPools) {
			set, err := f.descriptorPools[f.currentPool].Allocate(layout)
			if err == nil {
				return set, nil
			}
			if !errors.Is(err, device.ErrPoolExhausted) {
				return nil, fmt.Errorf("cmdsched: allocate descriptor set: %w", err)
			}
			f.currentPool++
			continue
		}

		pool, err := m.dev.CreateDescriptorPool(m.opts.descriptorSetsPerPool)
		if err != nil {
			return nil, fmt.Errorf("cmdsched: grow descriptor pool set: %w", err)
		}
		f.descriptorPools = append(f.descriptorPools, pool)
		Logger().Debug("cmdsched: descriptor pool set grown",
			slog.Int("frame", m.currentFrame),
			slog.Int("pools", len(f.descriptorPools)))
	}
}

// ----------------------------------------------------------------------------
// Deferred destruction
// ----------------------------------------------------------------------------

// DeferCleanup runs fn once the submission that is currently being recorded
// has retired on the device.
func (m *CommandBufferManager) DeferCleanup(fn func()) {
	slot := m.slots[m.currentSlot]
	slot.cleanups = append(slot.cleanups, fn)
}

// DeferDestruction releases a device handle once the active slot's fence
// counter has retired.
func (m *CommandBufferManager) DeferDestruction(kind device.ResourceKind, handle device.Handle) {
	m.DeferCleanup(func() {
		m.dev.DestroyResource(kind, handle)
	})
}

// DeferBufferDestruction releases a buffer handle after the active
// submission retires.
func (m *CommandBufferManager) DeferBufferDestruction(handle device.Handle) {
	m.DeferDestruction(device.KindBuffer, handle)
}

// DeferBufferViewDestruction releases a buffer view handle after the active
// submission retires.
func (m *CommandBufferManager) DeferBufferViewDestruction(handle device.Handle) {
	m.DeferDestruction(device.KindBufferView, handle)
}

// DeferImageDestruction releases an image handle after the active
// submission retires.
func (m *CommandBufferManager) DeferImageDestruction(handle device.Handle) {
	m.DeferDestruction(device.KindImage, handle)
}

// DeferImageViewDestruction releases an image view handle after the active
// submission retires.
func (m *CommandBufferManager) DeferImageViewDestruction(handle device.Handle) {
	m.DeferDestruction(device.KindImageView, handle)
}

// DeferFramebufferDestruction releases a framebuffer handle after the
// active submission retires.
func (m *CommandBufferManager) DeferFramebufferDestruction(handle device.Handle) {
	m.DeferDestruction(device.KindFramebuffer, handle)
}

// ----------------------------------------------------------------------------
// Slot ring
// ----------------------------------------------------------------------------

// beginCommandBuffer opens recording on the current slot, first waiting for
// its previous submission to retire so the pool reset is safe.
func (m *CommandBufferManager) beginCommandBuffer() error {
	slot := m.slots[m.currentSlot]

	if slot.fenceCounter != 0 {
		m.WaitForFenceCounter(slot.fenceCounter)
		slot.fenceCounter = 0
	}

	if err := slot.fence.Reset(); err != nil {
		return fmt.Errorf("cmdsched: reset slot fence: %w", err)
	}
	if err := slot.pool.Reset(); err != nil {
		return fmt.Errorf("cmdsched: reset command pool: %w", err)
	}
	if err := slot.initBuffer.Begin(); err != nil {
		return fmt.Errorf("cmdsched: begin init command buffer: %w", err)
	}
	if err := slot.drawBuffer.Begin(); err != nil {
		return fmt.Errorf("cmdsched: begin draw command buffer: %w", err)
	}
	slot.initUsed = false
	slot.semaphoreUsed = false
	slot.waitSemaphore = nil
	return nil
}

// moveToNextCommandBuffer advances the slot ring and, when the finished
// submission presented, the frame index. The incoming frame's descriptor
// pools are reset once the work recorded under it last time has retired.
func (m *CommandBufferManager) moveToNextCommandBuffer(presented bool) {
	if presented {
		m.currentFrame = (m.currentFrame + 1) % len(m.frames)
		f := &m.frames[m.currentFrame]
		if f.lastFenceCounter != 0 {
			m.WaitForFenceCounter(f.lastFenceCounter)
			f.lastFenceCounter = 0
		}
		for _, pool := range f.descriptorPools {
			if err := pool.Reset(); err != nil {
				Logger().Warn("cmdsched: descriptor pool reset failed",
					slog.Int("frame", m.currentFrame),
					slog.String("error", err.Error()))
			}
		}
		f.currentPool = 0
	}

	m.currentSlot = (m.currentSlot + 1) % len(m.slots)
	if err := m.beginCommandBuffer(); err != nil {
		// Losing the recording storage mid-stream has no local recovery.
		panic(err.Error())
	}
}

// ----------------------------------------------------------------------------
// Teardown
// ----------------------------------------------------------------------------

// shutdown stops the submission and fence goroutines after draining them,
// waits out the device and destroys all pooled resources. Called by
// Scheduler.Shutdown once the worker is idle.
func (m *CommandBufferManager) shutdown() {
	m.submitMu.Lock()
	m.submitStop = true
	m.submitCond.Broadcast()
	m.submitMu.Unlock()
	m.submitWG.Wait()

	m.fenceMu.Lock()
	m.fenceStop = true
	m.fenceCond.Broadcast()
	m.fenceMu.Unlock()
	m.fenceWG.Wait()

	if err := m.dev.WaitIdle(); err != nil {
		Logger().Warn("cmdsched: device wait-idle failed during shutdown",
			slog.String("error", err.Error()))
	}

	// The current slot never submitted; release anything deferred on it.
	slot := m.slots[m.currentSlot]
	for _, fn := range slot.cleanups {
		fn()
	}
	slot.cleanups = nil

	m.destroyResources()
}

// destroyResources releases every device object the manager created.
func (m *CommandBufferManager) destroyResources() {
	for _, slot := range m.slots {
		if slot.fence != nil {
			slot.fence.Destroy()
		}
		if slot.pool != nil {
			slot.pool.Destroy()
		}
	}
	m.slots = nil
	for i := range m.frames {
		for _, pool := range m.frames[i].descriptorPools {
			pool.Destroy()
		}
		m.frames[i].descriptorPools = nil
	}
	if m.presentSemaphore != nil {
		m.dev.DestroySemaphore(m.presentSemaphore)
		m.presentSemaphore = nil
	}
}

// pendingWork reports queued submissions and unobserved fences, for
// post-shutdown verification.
func (m *CommandBufferManager) pendingWork() int {
	m.submitMu.Lock()
	n := len(m.pendingSubmits)
	m.submitMu.Unlock()
	m.fenceMu.Lock()
	n += len(m.pendingFences)
	m.fenceMu.Unlock()
	return n
}
