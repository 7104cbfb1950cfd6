// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdsched

import "testing"

// sizedCommand is a test command with an explicit byte footprint.
type sizedCommand struct {
	size int
	fn   func(mgr *CommandBufferManager)
}

func (c *sizedCommand) Execute(mgr *CommandBufferManager) {
	if c.fn != nil {
		c.fn(mgr)
	}
}

func (c *sizedCommand) CommandSize() int { return c.size }

func TestAlignUp(t *testing.T) {
	tests := []struct {
		n, align, want int
	}{
		{0, 16, 0},
		{1, 16, 16},
		{16, 16, 16},
		{17, 16, 32},
		{63, 16, 64},
		{64, 16, 64},
	}
	for _, tt := range tests {
		if got := alignUp(tt.n, tt.align); got != tt.want {
			t.Errorf("alignUp(%d, %d) = %d, want %d", tt.n, tt.align, got, tt.want)
		}
	}
}

func TestCommandSize_Default(t *testing.T) {
	cmd := CommandFunc(func(mgr *CommandBufferManager) {})
	if got := commandSize(cmd); got != defaultCommandSize {
		t.Errorf("commandSize(CommandFunc) = %d, want %d", got, defaultCommandSize)
	}
}

func TestCommandSize_Sizer(t *testing.T) {
	// A large sizer is charged its own (aligned) footprint.
	if got := commandSize(&sizedCommand{size: 100}); got != 112 {
		t.Errorf("commandSize(100) = %d, want 112", got)
	}
	// A sizer below the default wrapper size never undercuts it.
	if got := commandSize(&sizedCommand{size: 8}); got != defaultCommandSize {
		t.Errorf("commandSize(8) = %d, want %d", got, defaultCommandSize)
	}
}
