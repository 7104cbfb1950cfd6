// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package null

import (
	"errors"
	"testing"
	"time"

	"github.com/gogpu/cmdsched/device"
)

func TestSubmitSignalsFenceImmediately(t *testing.T) {
	d := New()
	f, err := d.CreateFence(false)
	if err != nil {
		t.Fatalf("CreateFence() error = %v", err)
	}

	if res := d.Submit(device.SubmitInfo{Fence: f}); res != device.Success {
		t.Fatalf("Submit() = %v, want Success", res)
	}
	if err := f.Wait(time.Second); err != nil {
		t.Errorf("Wait() after submit = %v, want nil", err)
	}
	if got := d.Submits(); got != 1 {
		t.Errorf("Submits() = %d, want 1", got)
	}
}

func TestFenceWaitTimesOut(t *testing.T) {
	d := New()
	f, err := d.CreateFence(false)
	if err != nil {
		t.Fatalf("CreateFence() error = %v", err)
	}

	err = f.Wait(20 * time.Millisecond)
	if !errors.Is(err, device.ErrTimeout) {
		t.Errorf("Wait() on unsignaled fence = %v, want ErrTimeout", err)
	}
}

func TestFenceResetUnsignals(t *testing.T) {
	d := New()
	f, _ := d.CreateFence(true)
	if err := f.Wait(time.Second); err != nil {
		t.Fatalf("Wait() on pre-signaled fence = %v", err)
	}
	if err := f.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if err := f.Wait(20 * time.Millisecond); !errors.Is(err, device.ErrTimeout) {
		t.Errorf("Wait() after Reset = %v, want ErrTimeout", err)
	}
}

func TestDescriptorPoolExhaustion(t *testing.T) {
	d := New()
	p, err := d.CreateDescriptorPool(2)
	if err != nil {
		t.Fatalf("CreateDescriptorPool() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := p.Allocate(nil); err != nil {
			t.Fatalf("Allocate #%d error = %v", i, err)
		}
	}
	if _, err := p.Allocate(nil); !errors.Is(err, device.ErrPoolExhausted) {
		t.Fatalf("Allocate beyond capacity = %v, want ErrPoolExhausted", err)
	}

	if err := p.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if _, err := p.Allocate(nil); err != nil {
		t.Errorf("Allocate after Reset error = %v", err)
	}
}

func TestDestroyedResourcesRecordedInOrder(t *testing.T) {
	d := New()
	d.DestroyResource(device.KindBuffer, "a")
	d.DestroyResource(device.KindImage, "b")

	got := d.DestroyedResources()
	if len(got) != 2 {
		t.Fatalf("DestroyedResources() len = %d, want 2", len(got))
	}
	if got[0].Handle != "a" || got[1].Handle != "b" {
		t.Errorf("DestroyedResources() order = %v, %v, want a, b", got[0].Handle, got[1].Handle)
	}
	if got[0].Kind != device.KindBuffer || got[1].Kind != device.KindImage {
		t.Errorf("DestroyedResources() kinds = %v, %v", got[0].Kind, got[1].Kind)
	}
}
