// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmdsched

// chunk is a capacity-bounded arena of recorded commands.
//
// Commands are appended in recording order and replayed in the same order;
// together with FIFO chunk hand-off this gives a total order over every
// recorded operation. The backing slice is retained across reuse, so steady
// state recording does not allocate per chunk.
//
// A chunk is owned by exactly one goroutine at a time: the producer while it
// is being filled, the worker while it is being executed, and the reserve
// pool in between.
type chunk struct {
	commands []Command
	used     int
	capacity int
}

// newChunk creates an empty chunk with the given byte budget.
func newChunk(capacity int) *chunk {
	return &chunk{
		// Enough headroom for default-sized commands filling the budget.
		commands: make([]Command, 0, capacity/defaultCommandSize),
		capacity: capacity,
	}
}

// record appends a command if its aligned footprint fits the remaining
// budget. Returns false, leaving the chunk untouched, when it does not.
func (c *chunk) record(cmd Command) bool {
	size := commandSize(cmd)
	if c.used+size > c.capacity {
		return false
	}
	c.commands = append(c.commands, cmd)
	c.used += size
	return true
}

// executeAll replays every command in recording order and resets the chunk
// for reuse. Command references are dropped as soon as they have run so the
// captured state becomes collectable immediately, not when the chunk is
// next recycled.
func (c *chunk) executeAll(mgr *CommandBufferManager) {
	for i, cmd := range c.commands {
		c.commands[i] = nil
		cmd.Execute(mgr)
	}
	c.commands = c.commands[:0]
	c.used = 0
}

// empty reports whether any command has been recorded.
func (c *chunk) empty() bool { return c.used == 0 }
