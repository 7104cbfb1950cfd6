// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/cmdsched/device"
)

// commandPool implements device.CommandPool. The HAL has no pool object;
// this tracks the buffers allocated through it so Reset can free their
// retired HAL command buffers in one place.
type commandPool struct {
	dev     hal.Device
	buffers []*commandBuffer
}

func (p *commandPool) AllocateCommandBuffer() (device.CommandBuffer, error) {
	cb := &commandBuffer{dev: p.dev}
	p.buffers = append(p.buffers, cb)
	return cb, nil
}

// Reset frees the HAL command buffers finished since the last cycle. The
// scheduling core calls it only after the owning submission's fence has
// retired.
func (p *commandPool) Reset() error {
	for _, cb := range p.buffers {
		if cb.finished != nil {
			p.dev.FreeCommandBuffer(cb.finished)
			cb.finished = nil
		}
	}
	return nil
}

func (p *commandPool) Destroy() {
	p.Reset()
	p.buffers = nil
}

// commandBuffer implements device.CommandBuffer over a transient HAL
// encoder: Begin opens a fresh encoder, End closes it into a HAL command
// buffer held until the pool resets.
type commandBuffer struct {
	dev      hal.Device
	enc      hal.CommandEncoder
	finished hal.CommandBuffer
}

func (cb *commandBuffer) Begin() error {
	enc, err := cb.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "cmdsched_slot",
	})
	if err != nil {
		return err
	}
	if err := enc.BeginEncoding("cmdsched_slot"); err != nil {
		return err
	}
	cb.enc = enc
	return nil
}

func (cb *commandBuffer) End() error {
	buf, err := cb.enc.EndEncoding()
	if err != nil {
		return err
	}
	cb.finished = buf
	cb.enc = nil
	return nil
}

// Encoder exposes the open HAL encoder for the rendering layer to encode
// into. Valid between Begin and End.
func (cb *commandBuffer) Encoder() hal.CommandEncoder { return cb.enc }

// fence implements device.Fence over a HAL timeline fence. value is what
// the next submit signals and what Wait waits for; Reset bumps it so the
// fence can be reused without a device round trip.
type fence struct {
	dev   hal.Device
	f     hal.Fence
	value uint64
}

func (f *fence) Wait(timeout time.Duration) error {
	ok, err := f.dev.Wait(f.f, f.value, timeout)
	if err != nil {
		return err
	}
	if !ok {
		return device.ErrTimeout
	}
	return nil
}

func (f *fence) Reset() error {
	f.value++
	return nil
}

func (f *fence) Destroy() {
	f.dev.DestroyFence(f.f)
}

// descriptorPool implements device.DescriptorPool over HAL bind groups.
// Allocate expects the layout to be a *hal.BindGroupDescriptor describing
// the set to create.
type descriptorPool struct {
	dev     hal.Device
	maxSets int
	groups  []hal.BindGroup
}

func (p *descriptorPool) Allocate(layout device.DescriptorSetLayout) (device.DescriptorSet, error) {
	if len(p.groups) >= p.maxSets {
		return nil, device.ErrPoolExhausted
	}
	bg, err := p.dev.CreateBindGroup(layout.(*hal.BindGroupDescriptor))
	if err != nil {
		return nil, err
	}
	p.groups = append(p.groups, bg)
	return bg, nil
}

func (p *descriptorPool) Reset() error {
	for _, bg := range p.groups {
		p.dev.DestroyBindGroup(bg)
	}
	p.groups = p.groups[:0]
	return nil
}

func (p *descriptorPool) Destroy() {
	p.Reset()
	p.groups = nil
}
