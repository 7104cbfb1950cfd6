// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package null provides a host-only device for the cmdsched core.
//
// The null device performs no GPU work: submissions complete immediately
// and their fences signal on submit. It exists for headless use and for
// exercising the scheduling core's ordering, pooling and recycling behavior
// without a GPU, the same role gg's pure-Go backend plays for rendering.
package null

import (
	"sync"
	"time"

	"github.com/gogpu/cmdsched/device"
)

// Device is a host-only implementation of device.Device.
// All operations succeed; Submit signals the submission's fence
// immediately. Safe for concurrent use.
type Device struct {
	mu        sync.Mutex
	submits   int
	presents  int
	destroyed []Destroyed
}

// Destroyed records one DestroyResource call, in order.
type Destroyed struct {
	Kind   device.ResourceKind
	Handle device.Handle
}

// New creates a null device.
func New() *Device { return &Device{} }

// Submits returns how many submissions reached the queue.
func (d *Device) Submits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submits
}

// Presents returns how many presents reached the queue.
func (d *Device) Presents() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.presents
}

// DestroyedResources returns the handles released so far, in order.
func (d *Device) DestroyedResources() []Destroyed {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Destroyed, len(d.destroyed))
	copy(out, d.destroyed)
	return out
}

// CreateCommandPool implements device.Device.
func (d *Device) CreateCommandPool() (device.CommandPool, error) {
	return &commandPool{}, nil
}

// CreateFence implements device.Device.
func (d *Device) CreateFence(signaled bool) (device.Fence, error) {
	f := &fence{}
	f.cond = sync.NewCond(&f.mu)
	f.signaled = signaled
	return f, nil
}

// CreateSemaphore implements device.Device.
func (d *Device) CreateSemaphore() (device.Semaphore, error) {
	return new(struct{}), nil
}

// CreateDescriptorPool implements device.Device.
func (d *Device) CreateDescriptorPool(maxSets uint32) (device.DescriptorPool, error) {
	return &descriptorPool{maxSets: int(maxSets)}, nil
}

// Submit implements device.Device: the work "completes" instantly, so the
// fence is signaled before returning.
func (d *Device) Submit(info device.SubmitInfo) device.Result {
	d.mu.Lock()
	d.submits++
	d.mu.Unlock()
	if info.Fence != nil {
		info.Fence.(*fence).signal()
	}
	return device.Success
}

// Present implements device.Device.
func (d *Device) Present(target device.PresentTarget, wait device.Semaphore) device.Result {
	d.mu.Lock()
	d.presents++
	d.mu.Unlock()
	return device.Success
}

// DestroyResource implements device.Device.
func (d *Device) DestroyResource(kind device.ResourceKind, handle device.Handle) {
	d.mu.Lock()
	d.destroyed = append(d.destroyed, Destroyed{Kind: kind, Handle: handle})
	d.mu.Unlock()
}

// DestroySemaphore implements device.Device.
func (d *Device) DestroySemaphore(sem device.Semaphore) {}

// WaitIdle implements device.Device.
func (d *Device) WaitIdle() error { return nil }

var _ device.Device = (*Device)(nil)

// commandPool is recording storage with no backing device objects.
type commandPool struct {
	buffers []*commandBuffer
}

func (p *commandPool) AllocateCommandBuffer() (device.CommandBuffer, error) {
	cb := &commandBuffer{}
	p.buffers = append(p.buffers, cb)
	return cb, nil
}

func (p *commandPool) Reset() error {
	for _, cb := range p.buffers {
		cb.recording = false
		cb.ended = false
	}
	return nil
}

func (p *commandPool) Destroy() {}

// commandBuffer tracks recording state only.
type commandBuffer struct {
	recording bool
	ended     bool
}

func (cb *commandBuffer) Begin() error {
	cb.recording = true
	cb.ended = false
	return nil
}

func (cb *commandBuffer) End() error {
	cb.recording = false
	cb.ended = true
	return nil
}

// fence is a host-side completion primitive.
type fence struct {
	mu       sync.Mutex
	cond     *sync.Cond
	signaled bool
}

func (f *fence) signal() {
	f.mu.Lock()
	f.signaled = true
	f.cond.Broadcast()
	f.mu.Unlock()
}

func (f *fence) Wait(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	f.mu.Lock()
	defer f.mu.Unlock()
	for !f.signaled {
		if time.Now().After(deadline) {
			return device.ErrTimeout
		}
		// Condition variables have no timed wait; poke the cond from a
		// timer so the deadline check above runs.
		t := time.AfterFunc(10*time.Millisecond, f.cond.Broadcast)
		f.cond.Wait()
		t.Stop()
	}
	return nil
}

func (f *fence) Reset() error {
	f.mu.Lock()
	f.signaled = false
	f.mu.Unlock()
	return nil
}

func (f *fence) Destroy() {}

// descriptorPool hands out opaque set tokens up to its capacity.
type descriptorPool struct {
	maxSets   int
	allocated int
}

func (p *descriptorPool) Allocate(layout device.DescriptorSetLayout) (device.DescriptorSet, error) {
	if p.allocated >= p.maxSets {
		return nil, device.ErrPoolExhausted
	}
	p.allocated++
	return new(struct{}), nil
}

func (p *descriptorPool) Reset() error {
	p.allocated = 0
	return nil
}

func (p *descriptorPool) Destroy() {}
