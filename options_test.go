// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdsched

import (
	"testing"
	"time"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if o.chunkCapacity != DefaultChunkCapacity {
		t.Errorf("chunkCapacity = %d, want %d", o.chunkCapacity, DefaultChunkCapacity)
	}
	if o.framesInFlight != DefaultFramesInFlight {
		t.Errorf("framesInFlight = %d, want %d", o.framesInFlight, DefaultFramesInFlight)
	}
	if o.commandBuffers != DefaultCommandBuffers {
		t.Errorf("commandBuffers = %d, want %d", o.commandBuffers, DefaultCommandBuffers)
	}
	if o.fenceTimeout != DefaultFenceTimeout {
		t.Errorf("fenceTimeout = %v, want %v", o.fenceTimeout, DefaultFenceTimeout)
	}
	if o.descriptorSetsPerPool != DefaultDescriptorSetsPerPool {
		t.Errorf("descriptorSetsPerPool = %d, want %d", o.descriptorSetsPerPool, DefaultDescriptorSetsPerPool)
	}
}

func TestOptionsApply(t *testing.T) {
	o := defaultOptions()
	for _, opt := range []Option{
		WithChunkCapacity(4096),
		WithFramesInFlight(3),
		WithCommandBuffers(5),
		WithFenceTimeout(2 * time.Second),
		WithDescriptorSetsPerPool(64),
	} {
		opt(&o)
	}

	if o.chunkCapacity != 4096 {
		t.Errorf("chunkCapacity = %d, want 4096", o.chunkCapacity)
	}
	if o.framesInFlight != 3 {
		t.Errorf("framesInFlight = %d, want 3", o.framesInFlight)
	}
	if o.commandBuffers != 5 {
		t.Errorf("commandBuffers = %d, want 5", o.commandBuffers)
	}
	if o.fenceTimeout != 2*time.Second {
		t.Errorf("fenceTimeout = %v, want 2s", o.fenceTimeout)
	}
	if o.descriptorSetsPerPool != 64 {
		t.Errorf("descriptorSetsPerPool = %d, want 64", o.descriptorSetsPerPool)
	}
}

func TestOptionsIgnoreInvalidValues(t *testing.T) {
	o := defaultOptions()
	for _, opt := range []Option{
		WithChunkCapacity(0),
		WithFramesInFlight(-1),
		WithCommandBuffers(0),
		WithFenceTimeout(0),
		WithDescriptorSetsPerPool(0),
	} {
		opt(&o)
	}

	want := defaultOptions()
	if o != want {
		t.Errorf("invalid option values changed options: %+v, want %+v", o, want)
	}
}
