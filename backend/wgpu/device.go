// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu implements the cmdsched device boundary over the wgpu
// hardware abstraction layer (github.com/gogpu/wgpu/hal).
//
// The mapping is looser than the Vulkan backend's because the HAL exposes a
// WebGPU-shaped device:
//
//   - Command pools do not exist; encoders are transient. A cmdsched command
//     buffer owns a fresh HAL encoder per Begin/End cycle, and pool Reset
//     frees the retired HAL command buffers.
//   - Fences are timeline values. Reset advances the value the next submit
//     signals instead of touching a device object.
//   - Semaphores and presentation do not exist at the HAL level; queue
//     ordering is implicit and the surface owner presents. Present is
//     forwarded to the target's Presenter.
//
// As with the Vulkan backend, the host application owns the adapter, device
// and queue and hands them to New.
package wgpu

import (
	"log/slog"
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/cmdsched"
	"github.com/gogpu/cmdsched/device"
)

// waitIdleTimeout bounds the fence wait inside WaitIdle.
const waitIdleTimeout = 10 * time.Second

// Presenter presents one acquired surface image. The host places it in
// device.PresentTarget.Swapchain when scheduling a presenting submission.
type Presenter interface {
	Present(imageIndex uint32) error
}

// Config carries the host-owned HAL handles the backend drives.
type Config struct {
	// Device is the host's HAL device.
	Device hal.Device
	// Queue is the queue submissions go to.
	Queue hal.Queue
}

// Device implements device.Device over a wgpu HAL queue.
//
// The cmdsched core serializes all Submit and Present calls, so the backend
// performs no locking of its own around the queue.
type Device struct {
	dev   hal.Device
	queue hal.Queue
}

// New wraps host-owned HAL handles in a cmdsched device.
func New(cfg Config) *Device {
	return &Device{dev: cfg.Device, queue: cfg.Queue}
}

// CreateCommandPool implements device.Device.
func (d *Device) CreateCommandPool() (device.CommandPool, error) {
	return &commandPool{dev: d.dev}, nil
}

// CreateFence implements device.Device. HAL fences are timeline values; a
// fence created signaled simply has no pending value to wait for.
func (d *Device) CreateFence(signaled bool) (device.Fence, error) {
	f, err := d.dev.CreateFence()
	if err != nil {
		return nil, err
	}
	fe := &fence{dev: d.dev, f: f}
	if !signaled {
		fe.value = 1
	}
	return fe, nil
}

// CreateSemaphore implements device.Device. The HAL has no semaphores;
// submissions on one queue are implicitly ordered. The returned token only
// satisfies the boundary.
func (d *Device) CreateSemaphore() (device.Semaphore, error) {
	return new(struct{}), nil
}

// DestroySemaphore implements device.Device.
func (d *Device) DestroySemaphore(sem device.Semaphore) {}

// CreateDescriptorPool implements device.Device. Bind groups have no pool
// object in the HAL, so the pool is host-side accounting: it caps live sets
// at maxSets and destroys them all on Reset.
func (d *Device) CreateDescriptorPool(maxSets uint32) (device.DescriptorPool, error) {
	return &descriptorPool{dev: d.dev, maxSets: int(maxSets)}, nil
}

// Submit implements device.Device. Wait and signal semaphores are ignored;
// the queue orders submissions itself.
func (d *Device) Submit(info device.SubmitInfo) device.Result {
	buffers := make([]hal.CommandBuffer, 0, len(info.CommandBuffers))
	for _, cb := range info.CommandBuffers {
		buffers = append(buffers, cb.(*commandBuffer).finished)
	}

	var f hal.Fence
	var value uint64
	if info.Fence != nil {
		fe := info.Fence.(*fence)
		f = fe.f
		value = fe.value
	}
	if err := d.queue.Submit(buffers, f, value); err != nil {
		cmdsched.Logger().Warn("wgpu: queue submit failed",
			slog.String("error", err.Error()))
		return device.ErrorUnknown
	}
	return device.Success
}

// Present implements device.Device by forwarding to the target's Presenter.
func (d *Device) Present(target device.PresentTarget, wait device.Semaphore) device.Result {
	p, ok := target.Swapchain.(Presenter)
	if !ok {
		cmdsched.Logger().Warn("wgpu: present target does not implement Presenter")
		return device.ErrorUnknown
	}
	if err := p.Present(target.ImageIndex); err != nil {
		return device.ErrorOutOfDate
	}
	return device.Success
}

// DestroyResource implements device.Device. Called by the scheduling core
// only after the owning submission's fence has retired.
func (d *Device) DestroyResource(kind device.ResourceKind, handle device.Handle) {
	switch kind {
	case device.KindBuffer:
		d.dev.DestroyBuffer(handle.(hal.Buffer))
	case device.KindImage:
		d.dev.DestroyTexture(handle.(hal.Texture))
	case device.KindImageView:
		d.dev.DestroyTextureView(handle.(hal.TextureView))
	default:
		// Buffer views and framebuffers have no HAL analogue.
		cmdsched.Logger().Warn("wgpu: no HAL destructor for resource kind",
			slog.String("kind", kind.String()))
	}
}

// WaitIdle implements device.Device by submitting an empty command buffer
// behind everything already queued and waiting for its fence.
func (d *Device) WaitIdle() error {
	enc, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "cmdsched_wait_idle",
	})
	if err != nil {
		return err
	}
	if err := enc.BeginEncoding("cmdsched_wait_idle"); err != nil {
		return err
	}
	buf, err := enc.EndEncoding()
	if err != nil {
		return err
	}
	defer d.dev.FreeCommandBuffer(buf)

	f, err := d.dev.CreateFence()
	if err != nil {
		return err
	}
	defer d.dev.DestroyFence(f)

	if err := d.queue.Submit([]hal.CommandBuffer{buf}, f, 1); err != nil {
		return err
	}
	ok, err := d.dev.Wait(f, 1, waitIdleTimeout)
	if err != nil {
		return err
	}
	if !ok {
		return device.ErrTimeout
	}
	return nil
}

var _ device.Device = (*Device)(nil)
