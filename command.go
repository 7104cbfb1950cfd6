// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdsched

// Command is a type-erased unit of work executed by the worker goroutine.
// A command performs exactly one scheduling-relevant action against the
// CommandBufferManager: a state change, a draw encoding, a submission, or a
// deferred resource release.
//
// A command is owned exclusively by the chunk that stores it: it is never
// copied elsewhere and its reference is dropped immediately after Execute
// returns.
type Command interface {
	// Execute performs the command against the manager. Called exactly
	// once, on the worker goroutine, in recording order.
	Execute(mgr *CommandBufferManager)
}

// CommandFunc adapts a closure to the Command interface. This is the common
// way to record work:
//
//	s.Record(cmdsched.CommandFunc(func(mgr *cmdsched.CommandBufferManager) {
//	    cb := mgr.GetCurrentCommandBuffer()
//	    // encode into cb
//	}))
type CommandFunc func(mgr *CommandBufferManager)

// Execute implements Command.
func (f CommandFunc) Execute(mgr *CommandBufferManager) { f(mgr) }

// Sizer is optionally implemented by commands that capture a lot of state.
// The reported size is charged against the chunk's byte budget in place of
// the default wrapper size, so a chunk fills up proportionally to what its
// commands actually hold.
type Sizer interface {
	// CommandSize returns the command's footprint in bytes.
	CommandSize() int
}

const (
	// commandAlign is the alignment each command footprint is rounded to.
	commandAlign = 16

	// defaultCommandSize is the footprint charged for commands that do not
	// implement Sizer. Sized to a closure wrapper with a handful of
	// captured words.
	defaultCommandSize = 64
)

// alignUp rounds n up to the next multiple of align. align must be a power
// of two.
func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// commandSize returns the aligned byte cost of a command.
func commandSize(cmd Command) int {
	size := defaultCommandSize
	if s, ok := cmd.(Sizer); ok {
		if n := s.CommandSize(); n > size {
			size = n
		}
	}
	return alignUp(size, commandAlign)
}
