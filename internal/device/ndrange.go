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
	"fmt"
	"sync"
	"sync/atomic"
)

// A 2D grid of work-items, split into work-groups of Local size
type NDRange struct {
	Global [2]int
	Local  [2]int
}

// Number of work-groups along each dimension
func (r NDRange) Groups() [2]int {
	return [2]int{r.Global[0] / r.Local[0], r.Global[1] / r.Local[1]}
}

func (r NDRange) GroupSize() int { return r.Local[0] * r.Local[1] }

func (r NDRange) String() string {
	return fmt.Sprintf("global %dx%d local %dx%d", r.Global[0], r.Global[1], r.Local[0], r.Local[1])
}

// A data-parallel kernel. Func runs once per work-item
type Kernel struct {
	Name           string
	LocalMemFloats int // local scratch per work-group
	Func           func(wi *WorkItem)
}

// Execution properties of a kernel on a device
type KernelInfo struct {
	Name              string `json:"name"`
	WorkGroupSize     int    `json:"workGroupSize"`
	PreferredMultiple int    `json:"preferredWorkGroupSizeMultiple"`
	LocalMemBytes     uint64 `json:"localMemBytes"`
}

func (c *Context) KernelInfo(k *Kernel) KernelInfo {
	return KernelInfo{
		Name:              k.Name,
		WorkGroupSize:     c.info.MaxWorkGroupSize,
		PreferredMultiple: c.info.CacheLine / 4,
		LocalMemBytes:     uint64(k.LocalMemFloats) * 4,
	}
}

func (ki KernelInfo) String() string {
	return fmt.Sprintf(`Info for kernel %s:
  work group size=%d
  preferred work group size multiple=%d
  local mem size=%d
`, ki.Name, ki.WorkGroupSize, ki.PreferredMultiple, ki.LocalMemBytes)
}

// Checks the grid against the device limits and the kernel's local memory needs
func (c *Context) validate(k *Kernel, r NDRange) error {
	for d := 0; d < 2; d++ {
		if r.Global[d] <= 0 || r.Local[d] <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidNDRange, r)
		}
		if r.Global[d]%r.Local[d] != 0 {
			return fmt.Errorf("%w: %s, global size not a multiple of local size in dimension %d", ErrInvalidNDRange, r, d)
		}
	}
	if r.GroupSize() > c.info.MaxWorkGroupSize {
		return fmt.Errorf("%w: %s, group size %d exceeds %d", ErrInvalidNDRange, r, r.GroupSize(), c.info.MaxWorkGroupSize)
	}
	if k.LocalMemFloats < 0 || k.LocalMemFloats*4 > c.info.LocalMemBytes {
		return fmt.Errorf("%w: %s needs %d bytes, device has %d", ErrLocalMemory, k.Name, k.LocalMemFloats*4, c.info.LocalMemBytes)
	}
	if k.Func == nil {
		return fmt.Errorf("%w: kernel %s has no function", ErrInvalidNDRange, k.Name)
	}
	return nil
}

// Enqueues execution of the kernel over the grid. Never blocks on completion; use Finish or a
// blocking read to synchronize. The grid is validated before enqueueing
func (q *Queue) EnqueueNDRange(k *Kernel, r NDRange) error {
	if err := q.ctx.validate(k, r); err != nil {
		return err
	}
	return q.submit("kernel "+k.Name, false, func() error {
		q.ctx.run(k, r)
		return nil
	})
}

// Executes all work-groups of the grid, at most ComputeUnits of them concurrently.
// No ordering between groups is guaranteed
func (c *Context) run(k *Kernel, r NDRange) {
	groups := r.Groups()
	numGroups := groups[0] * groups[1]
	workers := c.info.ComputeUnits
	if workers > numGroups {
		workers = numGroups
	}

	var next atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				g := int(next.Add(1) - 1)
				if g >= numGroups {
					return
				}
				c.runGroup(k, r, [2]int{g % groups[0], g / groups[0]})
			}
		}()
	}
	wg.Wait()
}

// Executes one work-group. Each work-item runs on its own goroutine, so that Barrier is a true
// rendezvous. Local scratch is drawn from the pool with undefined contents and returned afterwards
func (c *Context) runGroup(k *Kernel, r NDRange, groupID [2]int) {
	var local []float32
	if k.LocalMemFloats > 0 {
		local = c.scratch.Get(k.LocalMemFloats)
		defer c.scratch.Put(local)
	}
	size := r.GroupSize()
	barrier := NewBarrier(size)

	var wg sync.WaitGroup
	wg.Add(size)
	for ly := 0; ly < r.Local[1]; ly++ {
		for lx := 0; lx < r.Local[0]; lx++ {
			wi := &WorkItem{
				localID:    [2]int{lx, ly},
				groupID:    groupID,
				localSize:  r.Local,
				globalSize: r.Global,
				Local:      local,
				barrier:    barrier,
			}
			go func() {
				defer wg.Done()
				defer barrier.Leave()
				k.Func(wi)
			}()
		}
	}
	wg.Wait()
}

// One work-item of a kernel execution. Local is the scratch memory shared by its work-group
type WorkItem struct {
	localID    [2]int
	groupID    [2]int
	localSize  [2]int
	globalSize [2]int
	Local      []float32
	barrier    *Barrier
}

func (wi *WorkItem) GlobalID(dim int) int {
	return wi.groupID[dim]*wi.localSize[dim] + wi.localID[dim]
}
func (wi *WorkItem) LocalID(dim int) int    { return wi.localID[dim] }
func (wi *WorkItem) GroupID(dim int) int    { return wi.groupID[dim] }
func (wi *WorkItem) LocalSize(dim int) int  { return wi.localSize[dim] }
func (wi *WorkItem) GlobalSize(dim int) int { return wi.globalSize[dim] }

// Waits until all work-items of the group reach the barrier. Writes to Local before the barrier
// are visible to all work-items of the group after it
func (wi *WorkItem) Barrier() { wi.barrier.Wait() }
