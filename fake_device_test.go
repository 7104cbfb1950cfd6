// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdsched

import (
	"sync"
	"testing"
	"time"

	"github.com/gogpu/cmdsched/device"
)

// fakeDevice implements device.Device with fences the test signals by hand.
// With autoSignal set, Submit signals the submission's fence immediately,
// which makes the whole pipeline run at full speed.
type fakeDevice struct {
	autoSignal bool

	// submitDelay stalls each Submit call, set before the scheduler starts.
	submitDelay time.Duration

	mu            sync.Mutex
	fences        []*fakeFence // in creation order; slot i owns fence i
	submits       []device.SubmitInfo
	presents      []device.PresentTarget
	destroyed     []device.Handle
	activeSubmits int
	overlapped    bool
}

func newFakeDevice(autoSignal bool) *fakeDevice {
	return &fakeDevice{autoSignal: autoSignal}
}

func (d *fakeDevice) fence(i int) *fakeFence {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fences[i]
}

func (d *fakeDevice) submitCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.submits)
}

func (d *fakeDevice) lastSubmit() device.SubmitInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submits[len(d.submits)-1]
}

func (d *fakeDevice) overlappedSubmits() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.overlapped
}

func (d *fakeDevice) presentCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.presents)
}

func (d *fakeDevice) destroyedHandles() []device.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]device.Handle, len(d.destroyed))
	copy(out, d.destroyed)
	return out
}

func (d *fakeDevice) CreateCommandPool() (device.CommandPool, error) {
	return &fakeCommandPool{}, nil
}

func (d *fakeDevice) CreateFence(signaled bool) (device.Fence, error) {
	f := &fakeFence{signaled: signaled}
	f.cond = sync.NewCond(&f.mu)
	d.mu.Lock()
	d.fences = append(d.fences, f)
	d.mu.Unlock()
	return f, nil
}

func (d *fakeDevice) CreateSemaphore() (device.Semaphore, error) {
	return new(struct{}), nil
}

func (d *fakeDevice) DestroySemaphore(sem device.Semaphore) {}

func (d *fakeDevice) CreateDescriptorPool(maxSets uint32) (device.DescriptorPool, error) {
	return &fakeDescriptorPool{maxSets: int(maxSets)}, nil
}

func (d *fakeDevice) Submit(info device.SubmitInfo) device.Result {
	d.mu.Lock()
	d.activeSubmits++
	if d.activeSubmits > 1 {
		d.overlapped = true
	}
	d.submits = append(d.submits, info)
	d.mu.Unlock()

	if d.submitDelay > 0 {
		time.Sleep(d.submitDelay)
	}

	d.mu.Lock()
	d.activeSubmits--
	d.mu.Unlock()
	if d.autoSignal && info.Fence != nil {
		info.Fence.(*fakeFence).signal()
	}
	return device.Success
}

func (d *fakeDevice) Present(target device.PresentTarget, wait device.Semaphore) device.Result {
	d.mu.Lock()
	d.presents = append(d.presents, target)
	d.mu.Unlock()
	return device.Success
}

func (d *fakeDevice) DestroyResource(kind device.ResourceKind, handle device.Handle) {
	d.mu.Lock()
	d.destroyed = append(d.destroyed, handle)
	d.mu.Unlock()
}

func (d *fakeDevice) WaitIdle() error { return nil }

var _ device.Device = (*fakeDevice)(nil)

// fakeFence is a manually signaled completion primitive.
type fakeFence struct {
	mu       sync.Mutex
	cond     *sync.Cond
	signaled bool
}

func (f *fakeFence) signal() {
	f.mu.Lock()
	f.signaled = true
	f.cond.Broadcast()
	f.mu.Unlock()
}

func (f *fakeFence) Wait(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	f.mu.Lock()
	defer f.mu.Unlock()
	for !f.signaled {
		if time.Now().After(deadline) {
			return device.ErrTimeout
		}
		t := time.AfterFunc(5*time.Millisecond, f.cond.Broadcast)
		f.cond.Wait()
		t.Stop()
	}
	return nil
}

func (f *fakeFence) Reset() error {
	f.mu.Lock()
	f.signaled = false
	f.mu.Unlock()
	return nil
}

func (f *fakeFence) Destroy() {}

type fakeCommandPool struct {
	resets int
}

func (p *fakeCommandPool) AllocateCommandBuffer() (device.CommandBuffer, error) {
	return &fakeCommandBuffer{}, nil
}

func (p *fakeCommandPool) Reset() error {
	p.resets++
	return nil
}

func (p *fakeCommandPool) Destroy() {}

type fakeCommandBuffer struct {
	begins int
	ends   int
}

func (cb *fakeCommandBuffer) Begin() error {
	cb.begins++
	return nil
}

func (cb *fakeCommandBuffer) End() error {
	cb.ends++
	return nil
}

type fakeDescriptorPool struct {
	maxSets   int
	allocated int
	resets    int
}

func (p *fakeDescriptorPool) Allocate(layout device.DescriptorSetLayout) (device.DescriptorSet, error) {
	if p.allocated >= p.maxSets {
		return nil, device.ErrPoolExhausted
	}
	p.allocated++
	return new(struct{}), nil
}

func (p *fakeDescriptorPool) Reset() error {
	p.allocated = 0
	p.resets++
	return nil
}

func (p *fakeDescriptorPool) Destroy() {}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", msg)
		}
		time.Sleep(time.Millisecond)
	}
}
