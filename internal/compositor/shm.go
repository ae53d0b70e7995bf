package compositor

import (
	"fmt"

	"github.com/bnema/waycore/internal/dispatch"
	"github.com/bnema/waycore/internal/logger"
	"github.com/bnema/waycore/internal/registry"
	"golang.org/x/sys/unix"
)

// wl_shm, wl_shm_pool and wl_buffer requests.
const (
	shmCreatePool    = 0
	poolCreateBuffer = 0
	poolDestroy      = 1
	poolResize       = 2
	bufferDestroy    = 0
)

// wl_shm and wl_buffer events.
const (
	shmEventFormat     uint16 = 0
	bufferEventRelease uint16 = 0
)

// wl_shm error codes.
const (
	shmErrorInvalidFormat uint32 = 0
	shmErrorInvalidStride uint32 = 1
	shmErrorInvalidFD     uint32 = 2
)

// Pixel formats accepted from clients. Every wl_shm server must support
// both.
const (
	FormatARGB8888 uint32 = 0
	FormatXRGB8888 uint32 = 1
)

// shmPool is a client memory pool mapped read-only. The mapping lives
// until the pool object and every buffer created from it are gone. The
// descriptor stays open so resizes can be checked against the file size.
type shmPool struct {
	fd   int
	data []byte
	refs int
}

// mapPool maps size bytes of fd. It takes ownership of fd on success.
func mapPool(fd int, size int32) (*shmPool, error) {
	if err := checkFileSize(fd, size); err != nil {
		return nil, err
	}
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &shmPool{fd: fd, data: data, refs: 1}, nil
}

func checkFileSize(fd int, size int32) error {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return err
	}
	if st.Size < int64(size) {
		return fmt.Errorf("file is %d bytes, pool wants %d", st.Size, size)
	}
	return nil
}

func (p *shmPool) resize(size int32) error {
	if err := checkFileSize(p.fd, size); err != nil {
		return err
	}
	data, err := unix.Mremap(p.data, int(size), unix.MREMAP_MAYMOVE)
	if err != nil {
		return err
	}
	p.data = data
	return nil
}

func (p *shmPool) unref() {
	p.refs--
	if p.refs > 0 || p.data == nil {
		return
	}
	if err := unix.Munmap(p.data); err != nil {
		logger.Warnf("Failed to unmap shm pool: %v", err)
	}
	unix.Close(p.fd)
	p.data = nil
}

// ShmBuffer is a wl_buffer backed by a shared memory pool.
type ShmBuffer struct {
	pool   *shmPool
	offset int32
	width  int32
	height int32
	stride int32
	format uint32

	destroyed bool
	release   func()
}

// Size returns the buffer size in pixels.
func (b *ShmBuffer) Size() (int32, int32) {
	return b.width, b.height
}

// Stride returns the length of one row in bytes.
func (b *ShmBuffer) Stride() int32 {
	return b.stride
}

// Format returns the wl_shm pixel format.
func (b *ShmBuffer) Format() uint32 {
	return b.format
}

// Pixels returns the buffer contents. The slice aliases client memory and
// is nil once the pool is unmapped.
func (b *ShmBuffer) Pixels() []byte {
	if b.pool.data == nil {
		return nil
	}
	end := int(b.offset) + int(b.stride)*int(b.height)
	if end > len(b.pool.data) {
		return nil
	}
	return b.pool.data[b.offset:end]
}

// Release sends wl_buffer.release unless the client already destroyed the
// buffer.
func (b *ShmBuffer) Release() {
	if b.destroyed || b.release == nil {
		return
	}
	b.release()
}

func (b *ShmBuffer) destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true
	b.pool.unref()
}

func (c *Compositor) bindShm(client registry.ClientID, id, version uint32) error {
	c.post(client, id, shmEventFormat, FormatARGB8888)
	c.post(client, id, shmEventFormat, FormatXRGB8888)
	return nil
}

func (c *Compositor) handleShm(req *dispatch.Request) error {
	if req.Spec.Opcode != shmCreatePool {
		return nil
	}

	id, fd, size := req.Args.NewID(0), req.Args.FD(1), req.Args.Int(2)
	if size <= 0 {
		unix.Close(fd)
		return req.Errorf(shmErrorInvalidStride, "invalid size (%d)", size)
	}
	pool, err := mapPool(fd, size)
	if err != nil {
		unix.Close(fd)
		return req.Errorf(shmErrorInvalidFD, "failed mmap fd %d: %v", fd, err)
	}
	c.pools[objectKey{req.Client, id}] = pool
	return nil
}

func (c *Compositor) handleShmPool(req *dispatch.Request) error {
	key := objectKey{req.Client, req.Object.ID}
	pool, ok := c.pools[key]
	if !ok {
		return req.Errorf(shmErrorInvalidFD, "pool %d is not mapped", req.Object.ID)
	}
	args := req.Args

	switch req.Spec.Opcode {
	case poolCreateBuffer:
		id := args.NewID(0)
		offset, width, height, stride := args.Int(1), args.Int(2), args.Int(3), args.Int(4)
		format := args.Uint(5)

		if format != FormatARGB8888 && format != FormatXRGB8888 {
			return req.Errorf(shmErrorInvalidFormat, "invalid format 0x%x", format)
		}
		if offset < 0 || width <= 0 || height <= 0 || int64(stride) < int64(width)*4 ||
			int64(offset)+int64(stride)*int64(height) > int64(len(pool.data)) {
			return req.Errorf(shmErrorInvalidStride, "invalid width, height or stride (%dx%d, %d)", width, height, stride)
		}

		buf := &ShmBuffer{
			pool:   pool,
			offset: offset,
			width:  width,
			height: height,
			stride: stride,
			format: format,
		}
		client := req.Client
		buf.release = func() { c.post(client, id, bufferEventRelease) }
		pool.refs++
		c.buffers[objectKey{client, id}] = buf

	case poolDestroy:
		delete(c.pools, key)
		pool.unref()

	case poolResize:
		size := args.Int(0)
		if int(size) < len(pool.data) {
			return req.Errorf(shmErrorInvalidFD, "shrinking pool invalid")
		}
		if err := pool.resize(size); err != nil {
			return req.Errorf(shmErrorInvalidFD, "failed mremap: %v", err)
		}
	}
	return nil
}

func (c *Compositor) handleBuffer(req *dispatch.Request) error {
	if req.Spec.Opcode != bufferDestroy {
		return nil
	}
	key := objectKey{req.Client, req.Object.ID}
	if b, ok := c.buffers[key]; ok {
		b.destroy()
		delete(c.buffers, key)
	}
	return nil
}
