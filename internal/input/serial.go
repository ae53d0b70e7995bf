package input

import "sync/atomic"

// SerialCounter hands out the server-wide event serials. Serials increase
// monotonically and are never reused within one server instance.
type SerialCounter struct {
	last atomic.Uint32
}

// Next allocates a fresh serial. Zero is never returned.
func (c *SerialCounter) Next() uint32 {
	for {
		s := c.last.Add(1)
		if s != 0 {
			return s
		}
	}
}

// Current returns the most recently allocated serial.
func (c *SerialCounter) Current() uint32 {
	return c.last.Load()
}
