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

package internal

import (
	"runtime"
	"sync"
)

// Allocations above this many elements are logged with current memory statistics
const largeAllocation = 10000000

// Pool of constant sized arrays of given type, to reduce memory allocation overhead.
// Arrays handed out by Get contain stale data from previous users
type ArrayPool[T any] struct {
	mu sync.RWMutex
	m  map[int]*sync.Pool
}

func NewArrayPool[T any]() *ArrayPool[T] {
	return &ArrayPool[T]{m: make(map[int]*sync.Pool)}
}

// Shared pool for float32 arrays, used for device buffers and work-group scratch memory
var PoolFloat32 = NewArrayPool[float32]()

// Clears all memory pools and triggers garbage collection
func ClearPools() {
	PoolFloat32.Clear()
	runtime.GC()
}

// Drops all pooled arrays
func (p *ArrayPool[T]) Clear() {
	p.mu.Lock()
	p.m = make(map[int]*sync.Pool)
	p.mu.Unlock()
}

// Returns a pool for arrays of the given size
func (p *ArrayPool[T]) getSized(size int) *sync.Pool {
	p.mu.RLock()
	pool := p.m[size]
	p.mu.RUnlock()
	if pool != nil {
		return pool
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if pool = p.m[size]; pool == nil {
		pool = &sync.Pool{
			New: func() interface{} {
				res := make([]T, size)
				if size > largeAllocation {
					logMemStats("make", size)
				}
				return &res
			},
		}
		p.m[size] = pool
	}
	return pool
}

// Retrieves an array of given size from the pool
func (p *ArrayPool[T]) Get(size int) []T {
	arr := p.getSized(size).Get().(*[]T)
	return (*arr)[:size]
}

// Returns an array to the pool. The caller must not use it afterwards
func (p *ArrayPool[T]) Put(arr []T) {
	if cap(arr) == 0 {
		return
	}
	full := arr[:cap(arr)]
	p.getSized(cap(arr)).Put(&full)
	if cap(arr) > largeAllocation {
		logMemStats("put ", cap(arr))
	}
}

func logMemStats(op string, size int) {
	m := runtime.MemStats{}
	runtime.ReadMemStats(&m)
	LogPrintf("%s %d alloc %d totalAlloc %d sys %d (all MiB)\n", op, size, m.Alloc/1024/1024, m.TotalAlloc/1024/1024, m.Sys/1024/1024)
}
