// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"time"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/cmdsched/device"
)

// commandPool implements device.CommandPool over a VkCommandPool.
type commandPool struct {
	dev  vk.Device
	pool vk.CommandPool
}

func (p *commandPool) AllocateCommandBuffer() (device.CommandBuffer, error) {
	buffers := make([]vk.CommandBuffer, 1)
	res := vk.AllocateCommandBuffers(p.dev, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, buffers)
	if err := vk.Error(res); err != nil {
		return nil, err
	}
	return &commandBuffer{buf: buffers[0]}, nil
}

func (p *commandPool) Reset() error {
	return vk.Error(vk.ResetCommandPool(p.dev, p.pool, 0))
}

func (p *commandPool) Destroy() {
	vk.DestroyCommandPool(p.dev, p.pool, nil)
}

// commandBuffer implements device.CommandBuffer over a VkCommandBuffer.
// Buffers are recorded once per slot cycle, so the one-time-submit hint
// applies.
type commandBuffer struct {
	buf vk.CommandBuffer
}

func (cb *commandBuffer) Begin() error {
	return vk.Error(vk.BeginCommandBuffer(cb.buf, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}))
}

func (cb *commandBuffer) End() error {
	return vk.Error(vk.EndCommandBuffer(cb.buf))
}

// Handle exposes the underlying VkCommandBuffer for the rendering layer to
// encode into.
func (cb *commandBuffer) Handle() vk.CommandBuffer { return cb.buf }

// fence implements device.Fence over a VkFence.
type fence struct {
	dev   vk.Device
	fence vk.Fence
}

func (f *fence) Wait(timeout time.Duration) error {
	res := vk.WaitForFences(f.dev, 1, []vk.Fence{f.fence}, vk.True, uint64(timeout.Nanoseconds()))
	switch res {
	case vk.Success:
		return nil
	case vk.Timeout:
		return device.ErrTimeout
	case vk.ErrorDeviceLost:
		return device.ErrDeviceLost
	default:
		return vk.Error(res)
	}
}

func (f *fence) Reset() error {
	return vk.Error(vk.ResetFences(f.dev, 1, []vk.Fence{f.fence}))
}

func (f *fence) Destroy() {
	vk.DestroyFence(f.dev, f.fence, nil)
}

// descriptorPool implements device.DescriptorPool over a VkDescriptorPool.
type descriptorPool struct {
	dev  vk.Device
	pool vk.DescriptorPool
}

func (p *descriptorPool) Allocate(layout device.DescriptorSetLayout) (device.DescriptorSet, error) {
	sets := make([]vk.DescriptorSet, 1)
	res := vk.AllocateDescriptorSets(p.dev, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout.(vk.DescriptorSetLayout)},
	}, &sets[0])
	switch res {
	case vk.Success:
		return sets[0], nil
	case vk.ErrorOutOfPoolMemory, vk.ErrorFragmentedPool:
		return nil, device.ErrPoolExhausted
	default:
		return nil, vk.Error(res)
	}
}

func (p *descriptorPool) Reset() error {
	return vk.Error(vk.ResetDescriptorPool(p.dev, p.pool, 0))
}

func (p *descriptorPool) Destroy() {
	vk.DestroyDescriptorPool(p.dev, p.pool, nil)
}
