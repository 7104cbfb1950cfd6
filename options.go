// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdsched

import "time"

// Defaults used when no option overrides them.
const (
	// DefaultChunkCapacity is the arena budget of one command chunk.
	DefaultChunkCapacity = 32 * 1024

	// DefaultFramesInFlight is the number of display frames whose transient
	// allocations are kept alive simultaneously.
	DefaultFramesInFlight = 2

	// DefaultCommandBuffers is the number of pooled command buffer slots.
	// One more than the frames in flight so recording never stalls on the
	// frame currently presenting.
	DefaultCommandBuffers = DefaultFramesInFlight + 1

	// DefaultFenceTimeout bounds each device fence wait. A device that
	// stays silent past this is considered lost.
	DefaultFenceTimeout = 10 * time.Second

	// DefaultDescriptorSetsPerPool is the size of each transient descriptor
	// pool; the pool set grows by this many sets at a time.
	DefaultDescriptorSetsPerPool = 1024
)

// Option configures a Scheduler during creation.
//
// Example:
//
//	// Defaults: 2 frames in flight, 3 command buffer slots, 32 KiB chunks.
//	s, err := cmdsched.NewScheduler(dev)
//
//	// Deeper pipelining for a capture tool that never presents:
//	s, err := cmdsched.NewScheduler(dev,
//	    cmdsched.WithFramesInFlight(3),
//	    cmdsched.WithCommandBuffers(4))
type Option func(*schedulerOptions)

// schedulerOptions holds optional configuration for Scheduler creation.
type schedulerOptions struct {
	chunkCapacity         int
	framesInFlight        int
	commandBuffers        int
	fenceTimeout          time.Duration
	descriptorSetsPerPool uint32
}

// defaultOptions returns the default scheduler options.
func defaultOptions() schedulerOptions {
	return schedulerOptions{
		chunkCapacity:         DefaultChunkCapacity,
		framesInFlight:        DefaultFramesInFlight,
		commandBuffers:        DefaultCommandBuffers,
		fenceTimeout:          DefaultFenceTimeout,
		descriptorSetsPerPool: DefaultDescriptorSetsPerPool,
	}
}

// WithChunkCapacity sets the byte budget of each command chunk. Larger
// chunks mean fewer flushes per frame; smaller chunks reduce the latency
// between recording a command and the worker seeing it.
func WithChunkCapacity(bytes int) Option {
	return func(o *schedulerOptions) {
		if bytes > 0 {
			o.chunkCapacity = bytes
		}
	}
}

// WithFramesInFlight sets how many display frames of transient allocations
// (descriptor pools) are kept alive at once.
func WithFramesInFlight(n int) Option {
	return func(o *schedulerOptions) {
		if n > 0 {
			o.framesInFlight = n
		}
	}
}

// WithCommandBuffers sets the number of pooled command buffer slots the
// submission ring cycles through. Must be at least WithFramesInFlight+1 to
// avoid stalling on the presenting frame; NewScheduler raises it if needed.
func WithCommandBuffers(n int) Option {
	return func(o *schedulerOptions) {
		if n > 0 {
			o.commandBuffers = n
		}
	}
}

// WithFenceTimeout bounds each device fence wait performed by the fence
// tracker. Exceeding the bound is treated as an unrecoverable device
// failure.
func WithFenceTimeout(d time.Duration) Option {
	return func(o *schedulerOptions) {
		if d > 0 {
			o.fenceTimeout = d
		}
	}
}

// WithDescriptorSetsPerPool sets how many descriptor sets each transient
// pool holds before the pool set grows.
func WithDescriptorSetsPerPool(n uint32) Option {
	return func(o *schedulerOptions) {
		if n > 0 {
			o.descriptorSetsPerPool = n
		}
	}
}
