package wire

import (
	"errors"

	"golang.org/x/sys/unix"
)

// ErrNoFD is returned when a message declares an fd argument but none was
// received with it.
var ErrNoFD = errors.New("no file descriptor available")

// FDQueue holds descriptors received through SCM_RIGHTS until fd arguments
// consume them, in arrival order.
type FDQueue struct {
	fds []int
}

// Push appends received descriptors.
func (q *FDQueue) Push(fds ...int) {
	q.fds = append(q.fds, fds...)
}

// Pop removes the oldest descriptor. The caller owns it afterwards.
func (q *FDQueue) Pop() (int, error) {
	if len(q.fds) == 0 {
		return -1, ErrNoFD
	}
	fd := q.fds[0]
	q.fds = q.fds[1:]
	return fd, nil
}

// Len reports how many descriptors are queued.
func (q *FDQueue) Len() int {
	return len(q.fds)
}

// CloseAll closes every queued descriptor.
func (q *FDQueue) CloseAll() {
	for _, fd := range q.fds {
		_ = unix.Close(fd)
	}
	q.fds = nil
}
