package server

import (
	"errors"
	"sync"
	"time"

	"github.com/bnema/waycore/internal/wire"
	"golang.org/x/sys/unix"
)

// ErrWriterClosed is returned by writes after Close.
var ErrWriterClosed = errors.New("writer closed")

// msgWriter is the sending half of a connection.
type msgWriter interface {
	WriteMsg(data []byte, fds []int) error
}

// BufferedWriter batches outgoing frames of one client and writes them
// with a single sendmsg. Buffered descriptors travel with the batch and are
// closed once sent.
type BufferedWriter struct {
	w         msgWriter
	buf       []byte
	fds       []int
	mu        sync.Mutex
	closed    bool
	flushChan chan struct{}
	done      chan struct{}
	maxDelay  time.Duration
	maxSize   int
	onError   func(error)
}

// NewBufferedWriter creates a writer that flushes at most maxDelay after
// the first buffered frame. onError is called when a background flush
// fails.
func NewBufferedWriter(w msgWriter, maxDelay time.Duration, maxSize int, onError func(error)) *BufferedWriter {
	if maxSize < wire.MaxMessageSize {
		maxSize = wire.MaxMessageSize
	}
	bw := &BufferedWriter{
		w:         w,
		buf:       make([]byte, 0, maxSize),
		flushChan: make(chan struct{}, 1),
		done:      make(chan struct{}),
		maxDelay:  maxDelay,
		maxSize:   maxSize,
		onError:   onError,
	}

	go bw.flushLoop()
	return bw
}

// WriteFrame buffers one frame and takes ownership of its descriptors.
func (bw *BufferedWriter) WriteFrame(f wire.Frame) error {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if bw.closed {
		closeAll(f.FDs)
		return ErrWriterClosed
	}

	// Flush first if this frame would overflow the batch
	if len(bw.buf)+len(f.Data) > bw.maxSize || len(bw.fds)+len(f.FDs) > wire.MaxFDsPerMessage {
		if err := bw.flushLocked(); err != nil {
			closeAll(f.FDs)
			return err
		}
	}

	bw.buf = append(bw.buf, f.Data...)
	bw.fds = append(bw.fds, f.FDs...)

	// Schedule flush if this is the first data
	if len(bw.buf) == len(f.Data) {
		select {
		case bw.flushChan <- struct{}{}:
		default:
		}
	}
	return nil
}

// Buffered returns the number of bytes and descriptors waiting.
func (bw *BufferedWriter) Buffered() (int, int) {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buf), len(bw.fds)
}

// Flush forces an immediate flush of the buffer
func (bw *BufferedWriter) Flush() error {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return bw.flushLocked()
}

// flushLocked sends the batch (caller must hold mutex). Descriptors are
// closed whether or not the send succeeded.
func (bw *BufferedWriter) flushLocked() error {
	if len(bw.buf) == 0 {
		closeAll(bw.fds)
		bw.fds = bw.fds[:0]
		return nil
	}

	err := bw.w.WriteMsg(bw.buf, bw.fds)
	closeAll(bw.fds)
	bw.buf = bw.buf[:0]
	bw.fds = bw.fds[:0]
	return err
}

func (bw *BufferedWriter) flushLoop() {
	timer := time.NewTimer(bw.maxDelay)
	timer.Stop()

	for {
		select {
		case <-bw.done:
			timer.Stop()
			return
		case <-bw.flushChan:
			timer.Reset(bw.maxDelay)
		case <-timer.C:
			if err := bw.Flush(); err != nil && bw.onError != nil {
				bw.onError(err)
			}
		}
	}
}

// Close flushes any remaining data and stops the writer. Later writes
// fail with ErrWriterClosed.
func (bw *BufferedWriter) Close() error {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	if bw.closed {
		return nil
	}
	bw.closed = true
	close(bw.done)
	return bw.flushLocked()
}

func closeAll(fds []int) {
	for _, fd := range fds {
		_ = unix.Close(fd)
	}
}
