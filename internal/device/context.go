// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package device

import (
	"errors"
	"fmt"
	"sync"

	hc "github.com/mlnoga/haloconv/internal"
)

var (
	ErrAllocation       = errors.New("device memory allocation failed")
	ErrTransferMismatch = errors.New("transfer region does not match buffers")
	ErrInvalidNDRange   = errors.New("invalid work-item grid")
	ErrLocalMemory      = errors.New("kernel exceeds local memory")
	ErrReleased         = errors.New("object already released")
)

// Overrides for detected device properties. Zero values keep the detected value
type Options struct {
	GlobalMemBytes   uint64 // budget for all buffers of the context
	ComputeUnits     int
	MaxWorkGroupSize int
	LocalMemBytes    int
}

// An explicit execution context holding device properties and the memory accounting of its buffers
type Context struct {
	info      Info
	mu        sync.Mutex
	allocated uint64
	scratch   *hc.ArrayPool[float32]
}

// Creates a context on the host processor, applying the given overrides to the detected device info
func NewContext(opts Options) *Context {
	info := Detect()
	if opts.GlobalMemBytes > 0 {
		info.GlobalMemBytes = opts.GlobalMemBytes
	}
	if opts.ComputeUnits > 0 {
		info.ComputeUnits = opts.ComputeUnits
	}
	if opts.MaxWorkGroupSize > 0 {
		info.MaxWorkGroupSize = opts.MaxWorkGroupSize
	}
	if opts.LocalMemBytes > 0 {
		info.LocalMemBytes = opts.LocalMemBytes
	}
	return &Context{info: info, scratch: hc.NewArrayPool[float32]()}
}

func (c *Context) Info() Info { return c.info }

// Bytes currently allocated to buffers of this context
func (c *Context) Allocated() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocated
}

// Access mode of a buffer from the perspective of kernels
type MemFlags int

const (
	ReadWrite MemFlags = iota
	ReadOnly
	WriteOnly
)

func (f MemFlags) String() string {
	switch f {
	case ReadOnly:
		return "read-only"
	case WriteOnly:
		return "write-only"
	}
	return "read-write"
}

// A buffer of float32 values in device global memory. Contents are zero after creation
type Buffer struct {
	ctx   *Context
	Flags MemFlags
	data  []float32
}

// Allocates a buffer of the given number of floats, failing if the context's memory budget is exceeded
func (c *Context) CreateBuffer(flags MemFlags, floats int) (*Buffer, error) {
	if floats <= 0 {
		return nil, fmt.Errorf("%w: %d floats requested", ErrAllocation, floats)
	}
	bytes := uint64(floats) * 4
	c.mu.Lock()
	if c.info.GlobalMemBytes > 0 && c.allocated+bytes > c.info.GlobalMemBytes {
		allocated := c.allocated
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %d bytes requested, %d of %d in use", ErrAllocation, bytes, allocated, c.info.GlobalMemBytes)
	}
	c.allocated += bytes
	c.mu.Unlock()

	data := hc.PoolFloat32.Get(floats)
	clear(data)
	return &Buffer{ctx: c, Flags: flags, data: data}, nil
}

// Number of floats in the buffer
func (b *Buffer) Len() int { return len(b.data) }

// Device-side view of the buffer contents, for use inside kernels
func (b *Buffer) Data() []float32 { return b.data }

// Returns the buffer memory to the context. Further use of the buffer is an error
func (b *Buffer) Release() error {
	if b.data == nil {
		return ErrReleased
	}
	b.ctx.mu.Lock()
	b.ctx.allocated -= uint64(len(b.data)) * 4
	b.ctx.mu.Unlock()
	hc.PoolFloat32.Put(b.data)
	b.data = nil
	return nil
}
