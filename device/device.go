// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package device defines the boundary between the cmdsched scheduling core
// and a concrete GPU device.
//
// cmdsched RECEIVES a device from the host, it does NOT create one. The host
// picks a backend (backend/vulkan, backend/wgpu, backend/null) or implements
// these interfaces over its own GPU layer and passes it to
// cmdsched.NewScheduler. This mirrors how gg receives a DeviceHandle from
// the application that owns the GPU context.
//
// The interfaces here are deliberately narrow: they describe only what the
// scheduling core needs — recording handles, a queue submission primitive
// that yields a waitable fence, descriptor storage, and a destruction
// primitive for deferred resource release. Pipelines, shaders and render
// passes are the concern of the layer above.
package device

import (
	"errors"
	"time"
)

// Errors returned by device implementations.
var (
	// ErrTimeout is returned by Fence.Wait when the device did not signal
	// the fence within the given bound. The scheduling core treats this as
	// unrecoverable for the affected submission.
	ErrTimeout = errors.New("device: fence wait timed out")

	// ErrPoolExhausted is returned by DescriptorPool.Allocate when the pool
	// has no room for another set. The caller is expected to grow its pool
	// set and retry.
	ErrPoolExhausted = errors.New("device: descriptor pool exhausted")

	// ErrDeviceLost is returned when the device is in an unrecoverable
	// state. No further submissions will succeed.
	ErrDeviceLost = errors.New("device: device lost")
)

// Result is a device-level status code, reported out-of-band for
// presentation operations. Negative values are failures; positive non-zero
// values are success-with-warning states that callers commonly react to
// (e.g. recreating a swapchain on Suboptimal).
type Result int32

const (
	// Success indicates the operation completed normally.
	Success Result = 0
	// Suboptimal indicates a present succeeded but the swapchain no longer
	// matches the surface exactly.
	Suboptimal Result = 1
	// ErrorOutOfDate indicates the swapchain is incompatible with the
	// surface and must be recreated before the next present.
	ErrorOutOfDate Result = -1
	// ErrorDeviceLost indicates the device is gone.
	ErrorDeviceLost Result = -2
	// ErrorUnknown covers any other device failure.
	ErrorUnknown Result = -3
)

// resultNames maps Result values to their string representation.
var resultNames = map[Result]string{
	Success:         "Success",
	Suboptimal:      "Suboptimal",
	ErrorOutOfDate:  "ErrorOutOfDate",
	ErrorDeviceLost: "ErrorDeviceLost",
	ErrorUnknown:    "ErrorUnknown",
}

// String returns the string representation of a Result.
func (r Result) String() string {
	if s, ok := resultNames[r]; ok {
		return s
	}
	return "Unknown"
}

// IsError reports whether the result is a hard failure.
func (r Result) IsError() bool { return r < 0 }

// ResourceKind identifies the type of a handle registered for deferred
// destruction. The kinds match the resources a rendering layer typically
// retires mid-frame.
type ResourceKind uint8

const (
	// KindBuffer is a device buffer allocation.
	KindBuffer ResourceKind = iota
	// KindBufferView is a view over a device buffer.
	KindBufferView
	// KindImage is a device image allocation.
	KindImage
	// KindImageView is a view over a device image.
	KindImageView
	// KindFramebuffer is a framebuffer object.
	KindFramebuffer
)

// kindNames maps ResourceKind values to their string representation.
var kindNames = [...]string{
	KindBuffer:      "Buffer",
	KindBufferView:  "BufferView",
	KindImage:       "Image",
	KindImageView:   "ImageView",
	KindFramebuffer: "Framebuffer",
}

// String returns the string representation of a ResourceKind.
func (k ResourceKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Handle is an opaque device resource handle. Backends define the concrete
// type (e.g. vk.Buffer in backend/vulkan).
type Handle any

// DescriptorSetLayout is an opaque layout handle used to allocate transient
// descriptor sets. Backends define the concrete type.
type DescriptorSetLayout any

// DescriptorSet is an opaque transient allocation handle. It is valid only
// until the frame that allocated it comes back around.
type DescriptorSet any

// PresentTarget identifies a swapchain image to present. The zero value
// means "no present requested".
type PresentTarget struct {
	// Swapchain is the backend's swapchain handle.
	Swapchain any
	// ImageIndex is the swapchain image to present.
	ImageIndex uint32
}

// Valid reports whether a present was actually requested.
func (p PresentTarget) Valid() bool { return p.Swapchain != nil }

// CommandBuffer is a recording handle. It is valid until the submission that
// consumes it; after that the owning slot hands out a fresh handle.
type CommandBuffer interface {
	// Begin starts recording into the buffer.
	Begin() error
	// End finishes recording. The buffer must not be recorded into again
	// until it has been reset.
	End() error
}

// Fence is a waitable completion primitive signaled by the device when a
// submission finishes.
type Fence interface {
	// Wait blocks until the fence is signaled or the timeout elapses.
	// Returns ErrTimeout on timeout.
	Wait(timeout time.Duration) error
	// Reset returns the fence to the unsignaled state for reuse.
	Reset() error
	// Destroy releases the fence.
	Destroy()
}

// Semaphore is an opaque queue synchronization handle used to order
// submissions against presentation.
type Semaphore any

// CommandPool owns the recording storage for one in-flight slot.
type CommandPool interface {
	// AllocateCommandBuffer carves a primary recording handle out of the
	// pool.
	AllocateCommandBuffer() (CommandBuffer, error)
	// Reset recycles all command buffers allocated from the pool. Only
	// legal once the work recorded through them has retired.
	Reset() error
	// Destroy releases the pool and everything allocated from it.
	Destroy()
}

// DescriptorPool holds transient descriptor storage for one frame in
// flight.
type DescriptorPool interface {
	// Allocate carves a descriptor set for the given layout out of the
	// pool. Returns ErrPoolExhausted when full.
	Allocate(layout DescriptorSetLayout) (DescriptorSet, error)
	// Reset returns all sets to the pool.
	Reset() error
	// Destroy releases the pool.
	Destroy()
}

// SubmitInfo describes one queue submission.
type SubmitInfo struct {
	// CommandBuffers are executed in order. All must have been ended.
	CommandBuffers []CommandBuffer
	// WaitSemaphore, if non-nil, gates execution on an external signal
	// (typically swapchain image acquisition).
	WaitSemaphore Semaphore
	// SignalSemaphore, if non-nil, is signaled when the submission
	// completes (typically consumed by the following present).
	SignalSemaphore Semaphore
	// Fence is signaled by the device once the submission has finished.
	Fence Fence
}

// Device is the queue-owning collaborator the scheduling core drives.
//
// Implementations must allow Submit and Present to be called from a
// different goroutine than the one that recorded the command buffers; the
// core serializes all submissions itself, so no two Submit or Present
// calls ever overlap.
type Device interface {
	// CreateCommandPool creates recording storage for one slot.
	CreateCommandPool() (CommandPool, error)
	// CreateFence creates a completion primitive, optionally pre-signaled.
	CreateFence(signaled bool) (Fence, error)
	// CreateSemaphore creates a queue synchronization handle.
	CreateSemaphore() (Semaphore, error)
	// CreateDescriptorPool creates transient descriptor storage holding up
	// to maxSets sets.
	CreateDescriptorPool(maxSets uint32) (DescriptorPool, error)

	// Submit hands recorded work to the device queue. The fence in info is
	// signaled when the work completes.
	Submit(info SubmitInfo) Result
	// Present queues a swapchain image for presentation, after waiting on
	// info's semaphore if one is given.
	Present(target PresentTarget, wait Semaphore) Result

	// DestroyResource releases a retired resource handle. Called by the
	// scheduling core only after the owning submission's fence counter has
	// completed.
	DestroyResource(kind ResourceKind, handle Handle)

	// DestroySemaphore releases a semaphore created by CreateSemaphore.
	DestroySemaphore(sem Semaphore)

	// WaitIdle blocks until the device queue has drained. Used during
	// teardown.
	WaitIdle() error
}
