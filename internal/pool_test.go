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
	"testing"
)

func TestArrayPoolSizes(t *testing.T) {
	p := NewArrayPool[float32]()
	for _, size := range []int{1, 7, 64, 4096} {
		arr := p.Get(size)
		if len(arr) != size {
			t.Errorf("len(Get(%d))=%d; want %d", size, len(arr), size)
		}
		for i := range arr {
			arr[i] = float32(i)
		}
		p.Put(arr)
		again := p.Get(size)
		if len(again) != size {
			t.Errorf("len(Get(%d)) after Put=%d; want %d", size, len(again), size)
		}
	}
}

func TestArrayPoolClear(t *testing.T) {
	p := NewArrayPool[int32]()
	p.Put(p.Get(16))
	p.Clear()
	if n := len(p.m); n != 0 {
		t.Errorf("len(p.m)=%d after Clear; want 0", n)
	}
	p.Put(nil)
}
