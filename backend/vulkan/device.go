// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package vulkan implements the cmdsched device boundary over the Vulkan
// API via github.com/vulkan-go/vulkan.
//
// The package does not create a Vulkan instance or logical device; the host
// application owns those (and the swapchain) and hands the relevant handles
// to New. This keeps cmdsched a guest on the host's GPU context, the same
// arrangement gg uses for its device handles.
package vulkan

import (
	"log/slog"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/cmdsched"
	"github.com/gogpu/cmdsched/device"
)

// Config carries the host-owned Vulkan handles the backend drives.
type Config struct {
	// Device is the host's logical device.
	Device vk.Device
	// Queue is the queue submissions and presents go to.
	Queue vk.Queue
	// QueueFamilyIndex is the family Queue belongs to; command pools are
	// created against it.
	QueueFamilyIndex uint32
}

// Device implements device.Device over a Vulkan queue.
//
// The cmdsched core serializes all Submit and Present calls, so the backend
// performs no locking of its own around the queue.
type Device struct {
	dev    vk.Device
	queue  vk.Queue
	family uint32
}

// New wraps host-owned Vulkan handles in a cmdsched device.
func New(cfg Config) *Device {
	return &Device{
		dev:    cfg.Device,
		queue:  cfg.Queue,
		family: cfg.QueueFamilyIndex,
	}
}

// CreateCommandPool implements device.Device. The pool is created with the
// transient hint: its buffers are fully re-recorded every cycle.
func (d *Device) CreateCommandPool() (device.CommandPool, error) {
	var pool vk.CommandPool
	res := vk.CreateCommandPool(d.dev, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
		QueueFamilyIndex: d.family,
	}, nil, &pool)
	if err := vk.Error(res); err != nil {
		return nil, err
	}
	return &commandPool{dev: d.dev, pool: pool}, nil
}

// CreateFence implements device.Device.
func (d *Device) CreateFence(signaled bool) (device.Fence, error) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var f vk.Fence
	if err := vk.Error(vk.CreateFence(d.dev, &info, nil, &f)); err != nil {
		return nil, err
	}
	return &fence{dev: d.dev, fence: f}, nil
}

// CreateSemaphore implements device.Device.
func (d *Device) CreateSemaphore() (device.Semaphore, error) {
	var sem vk.Semaphore
	res := vk.CreateSemaphore(d.dev, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &sem)
	if err := vk.Error(res); err != nil {
		return nil, err
	}
	return sem, nil
}

// DestroySemaphore implements device.Device.
func (d *Device) DestroySemaphore(sem device.Semaphore) {
	vk.DestroySemaphore(d.dev, sem.(vk.Semaphore), nil)
}

// CreateDescriptorPool implements device.Device. The pool carries a spread
// of descriptor types proportioned for transient per-draw sets.
func (d *Device) CreateDescriptorPool(maxSets uint32) (device.DescriptorPool, error) {
	sizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBufferDynamic, DescriptorCount: maxSets},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: maxSets * 4},
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: maxSets},
		{Type: vk.DescriptorTypeStorageImage, DescriptorCount: maxSets},
		{Type: vk.DescriptorTypeUniformTexelBuffer, DescriptorCount: maxSets},
	}
	var pool vk.DescriptorPool
	res := vk.CreateDescriptorPool(d.dev, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}, nil, &pool)
	if err := vk.Error(res); err != nil {
		return nil, err
	}
	return &descriptorPool{dev: d.dev, pool: pool}, nil
}

// Submit implements device.Device.
func (d *Device) Submit(info device.SubmitInfo) device.Result {
	buffers := make([]vk.CommandBuffer, 0, len(info.CommandBuffers))
	for _, cb := range info.CommandBuffers {
		buffers = append(buffers, cb.(*commandBuffer).buf)
	}

	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(buffers)),
		PCommandBuffers:    buffers,
	}
	if info.WaitSemaphore != nil {
		submit.WaitSemaphoreCount = 1
		submit.PWaitSemaphores = []vk.Semaphore{info.WaitSemaphore.(vk.Semaphore)}
		submit.PWaitDstStageMask = []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		}
	}
	if info.SignalSemaphore != nil {
		submit.SignalSemaphoreCount = 1
		submit.PSignalSemaphores = []vk.Semaphore{info.SignalSemaphore.(vk.Semaphore)}
	}

	var f vk.Fence
	if info.Fence != nil {
		f = info.Fence.(*fence).fence
	}
	return toResult(vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{submit}, f))
}

// Present implements device.Device.
func (d *Device) Present(target device.PresentTarget, wait device.Semaphore) device.Result {
	info := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{target.Swapchain.(vk.Swapchain)},
		PImageIndices:  []uint32{target.ImageIndex},
	}
	if wait != nil {
		info.WaitSemaphoreCount = 1
		info.PWaitSemaphores = []vk.Semaphore{wait.(vk.Semaphore)}
	}
	return toResult(vk.QueuePresent(d.queue, &info))
}

// DestroyResource implements device.Device. Called by the scheduling core
// only after the owning submission's fence has retired.
func (d *Device) DestroyResource(kind device.ResourceKind, handle device.Handle) {
	switch kind {
	case device.KindBuffer:
		vk.DestroyBuffer(d.dev, handle.(vk.Buffer), nil)
	case device.KindBufferView:
		vk.DestroyBufferView(d.dev, handle.(vk.BufferView), nil)
	case device.KindImage:
		vk.DestroyImage(d.dev, handle.(vk.Image), nil)
	case device.KindImageView:
		vk.DestroyImageView(d.dev, handle.(vk.ImageView), nil)
	case device.KindFramebuffer:
		vk.DestroyFramebuffer(d.dev, handle.(vk.Framebuffer), nil)
	default:
		cmdsched.Logger().Warn("vulkan: unknown resource kind in deferred destruction",
			slog.String("kind", kind.String()))
	}
}

// WaitIdle implements device.Device.
func (d *Device) WaitIdle() error {
	return vk.Error(vk.DeviceWaitIdle(d.dev))
}

var _ device.Device = (*Device)(nil)

// toResult maps a vk.Result onto the device boundary's result codes.
func toResult(res vk.Result) device.Result {
	switch res {
	case vk.Success:
		return device.Success
	case vk.Suboptimal:
		return device.Suboptimal
	case vk.ErrorOutOfDate:
		return device.ErrorOutOfDate
	case vk.ErrorDeviceLost:
		return device.ErrorDeviceLost
	default:
		if res < 0 {
			return device.ErrorUnknown
		}
		return device.Success
	}
}
