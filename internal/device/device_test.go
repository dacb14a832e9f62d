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
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func newTestContext() *Context {
	return NewContext(Options{GlobalMemBytes: 1 << 20, ComputeUnits: 4})
}

func TestDetect(t *testing.T) {
	info := Detect()
	if info.ComputeUnits <= 0 || info.MaxWorkGroupSize <= 0 || info.LocalMemBytes <= 0 || info.CacheLine <= 0 {
		t.Errorf("Detect() = %+v; want positive limits", info)
	}
	if info.Name == "" {
		t.Errorf("Detect() gave empty name")
	}
}

func TestAllocation(t *testing.T) {
	ctx := NewContext(Options{GlobalMemBytes: 1000})
	a, err := ctx.CreateBuffer(ReadOnly, 200)
	if err != nil {
		t.Fatal(err)
	}
	if got := ctx.Allocated(); got != 800 {
		t.Errorf("Allocated() = %d; want 800", got)
	}
	if _, err := ctx.CreateBuffer(WriteOnly, 100); !errors.Is(err, ErrAllocation) {
		t.Errorf("over budget allocation = %v; want %v", err, ErrAllocation)
	}
	if _, err := ctx.CreateBuffer(WriteOnly, 0); !errors.Is(err, ErrAllocation) {
		t.Errorf("empty allocation = %v; want %v", err, ErrAllocation)
	}
	if err := a.Release(); err != nil {
		t.Fatal(err)
	}
	if err := a.Release(); !errors.Is(err, ErrReleased) {
		t.Errorf("double release = %v; want %v", err, ErrReleased)
	}
	b, err := ctx.CreateBuffer(ReadWrite, 250)
	if err != nil {
		t.Fatalf("allocation after release: %s", err)
	}
	for i, v := range b.Data() {
		if v != 0 {
			t.Fatalf("new buffer[%d] = %f; want 0", i, v)
		}
	}
	b.Release()
}

func TestFlatTransfer(t *testing.T) {
	ctx := newTestContext()
	q := ctx.CreateQueue()
	defer q.Release()
	buf, _ := ctx.CreateBuffer(ReadWrite, 10)
	defer buf.Release()

	if err := q.EnqueueWriteBuffer(buf, false, 2, []float32{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	out := make([]float32, 5)
	if err := q.EnqueueReadBuffer(buf, true, 1, out); err != nil {
		t.Fatal(err)
	}
	want := []float32{0, 1, 2, 3, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %f; want %f", i, out[i], want[i])
		}
	}
	if err := q.EnqueueWriteBuffer(buf, true, 8, []float32{1, 2, 3}); !errors.Is(err, ErrTransferMismatch) {
		t.Errorf("overlong write = %v; want %v", err, ErrTransferMismatch)
	}
}

func TestRectTransfer(t *testing.T) {
	ctx := newTestContext()
	q := ctx.CreateQueue()
	defer q.Release()

	// 5x3 host image into a buffer with pitch 8
	const w, h, pitch = 5, 3, 8
	host := make([]float32, w*h)
	for i := range host {
		host[i] = float32(i + 1)
	}
	buf, _ := ctx.CreateBuffer(ReadWrite, pitch*h)
	defer buf.Release()
	up := Rect{Region: [2]int{w, h}, BufferRowPitch: pitch, HostRowPitch: w}
	if err := q.EnqueueWriteRect(buf, true, up, host); err != nil {
		t.Fatal(err)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < pitch; x++ {
			want := float32(0)
			if x < w {
				want = host[y*w+x]
			}
			if got := buf.Data()[y*pitch+x]; got != want {
				t.Errorf("buffer (%d,%d) = %f; want %f", x, y, got, want)
			}
		}
	}

	// Read back the 3x1 interior with origin (1,1) on both sides
	back := make([]float32, w*h)
	down := Rect{BufferOrigin: [2]int{1, 1}, HostOrigin: [2]int{1, 1}, Region: [2]int{w - 2, h - 2}, BufferRowPitch: pitch, HostRowPitch: w}
	if err := q.EnqueueReadRect(buf, true, down, back); err != nil {
		t.Fatal(err)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			want := float32(0)
			if x >= 1 && x < w-1 && y >= 1 && y < h-1 {
				want = host[y*w+x]
			}
			if got := back[y*w+x]; got != want {
				t.Errorf("host (%d,%d) = %f; want %f", x, y, got, want)
			}
		}
	}
}

func TestRectMismatch(t *testing.T) {
	ctx := newTestContext()
	q := ctx.CreateQueue()
	defer q.Release()
	buf, _ := ctx.CreateBuffer(ReadWrite, 8*3)
	defer buf.Release()
	host := make([]float32, 5*3)
	sentinel := float32(42)
	buf.Data()[0] = sentinel

	tests := []Rect{
		{Region: [2]int{5, 3}, BufferRowPitch: 4, HostRowPitch: 5},                             // row exceeds buffer pitch
		{Region: [2]int{5, 3}, BufferRowPitch: 8, HostRowPitch: 4},                             // row exceeds host pitch
		{Region: [2]int{5, 4}, BufferRowPitch: 8, HostRowPitch: 5},                             // too many rows
		{Region: [2]int{0, 3}, BufferRowPitch: 8, HostRowPitch: 5},                             // empty
		{BufferOrigin: [2]int{4, 0}, Region: [2]int{5, 3}, BufferRowPitch: 8, HostRowPitch: 5}, // origin pushes row past pitch
		{HostOrigin: [2]int{-1, 0}, Region: [2]int{4, 3}, BufferRowPitch: 8, HostRowPitch: 5},  // negative origin
		{BufferOrigin: [2]int{0, 1}, Region: [2]int{5, 3}, BufferRowPitch: 8, HostRowPitch: 5}, // buffer overrun
	}
	for i, r := range tests {
		if err := q.EnqueueWriteRect(buf, true, r, host); !errors.Is(err, ErrTransferMismatch) {
			t.Errorf("case %d: %v; want %v", i, err, ErrTransferMismatch)
		}
		if err := q.EnqueueReadRect(buf, true, r, host); !errors.Is(err, ErrTransferMismatch) {
			t.Errorf("case %d read: %v; want %v", i, err, ErrTransferMismatch)
		}
	}
	if buf.Data()[0] != sentinel {
		t.Errorf("rejected transfer modified the buffer")
	}
}

func TestQueueOrder(t *testing.T) {
	ctx := newTestContext()
	q := ctx.CreateQueue()
	var order []int
	var mu sync.Mutex
	for i := 0; i < 100; i++ {
		i := i
		q.submit("append", false, func() error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}
	if err := q.Finish(); err != nil {
		t.Fatal(err)
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("command %d ran at position %d", v, i)
		}
	}
	if len(order) != 100 {
		t.Errorf("%d commands ran; want 100", len(order))
	}
	if err := q.Release(); err != nil {
		t.Fatal(err)
	}
	if err := q.Finish(); !errors.Is(err, ErrReleased) {
		t.Errorf("Finish after release = %v; want %v", err, ErrReleased)
	}
}

func TestQueueError(t *testing.T) {
	ctx := newTestContext()
	q := ctx.CreateQueue()
	defer q.Release()
	boom := errors.New("boom")
	q.submit("first", false, func() error { return boom })
	q.submit("second", false, func() error { return errors.New("later") })
	if err := q.Finish(); !errors.Is(err, boom) {
		t.Errorf("Finish() = %v; want %v", err, boom)
	}
	if err := q.Finish(); err != nil {
		t.Errorf("second Finish() = %v; want nil", err)
	}
}

func TestBlockingErrorReportedOnce(t *testing.T) {
	ctx := newTestContext()
	q := ctx.CreateQueue()
	defer q.Release()
	boom := errors.New("boom")
	if err := q.submit("blocking", true, func() error { return boom }); !errors.Is(err, boom) {
		t.Errorf("blocking submit = %v; want %v", err, boom)
	}
	if err := q.Finish(); err != nil {
		t.Errorf("Finish() after failed blocking command = %v; want nil", err)
	}

	// failed non-blocking commands still surface at Finish
	q.submit("async", false, func() error { return boom })
	if err := q.Finish(); !errors.Is(err, boom) {
		t.Errorf("Finish() after failed non-blocking command = %v; want %v", err, boom)
	}
}

func TestNDRangeValidation(t *testing.T) {
	ctx := NewContext(Options{MaxWorkGroupSize: 64, LocalMemBytes: 1024})
	q := ctx.CreateQueue()
	defer q.Release()
	noop := func(*WorkItem) {}
	tests := []struct {
		k    *Kernel
		r    NDRange
		want error
	}{
		{&Kernel{Name: "ok", Func: noop}, NDRange{[2]int{16, 16}, [2]int{8, 8}}, nil},
		{&Kernel{Name: "zero", Func: noop}, NDRange{[2]int{0, 16}, [2]int{8, 8}}, ErrInvalidNDRange},
		{&Kernel{Name: "ragged", Func: noop}, NDRange{[2]int{20, 16}, [2]int{8, 8}}, ErrInvalidNDRange},
		{&Kernel{Name: "big", Func: noop}, NDRange{[2]int{32, 32}, [2]int{16, 16}}, ErrInvalidNDRange},
		{&Kernel{Name: "local", LocalMemFloats: 257, Func: noop}, NDRange{[2]int{16, 16}, [2]int{8, 8}}, ErrLocalMemory},
		{&Kernel{Name: "nofunc"}, NDRange{[2]int{16, 16}, [2]int{8, 8}}, ErrInvalidNDRange},
	}
	for _, test := range tests {
		if err := q.EnqueueNDRange(test.k, test.r); !errors.Is(err, test.want) {
			t.Errorf("%s: %v; want %v", test.k.Name, err, test.want)
		}
	}
	if err := q.Finish(); err != nil {
		t.Fatal(err)
	}
}

// Each group stages its global IDs into local memory, synchronizes, then writes the values of the
// mirrored work-item. Without a working barrier, items would read unwritten scratch
func TestNDRangeBarrier(t *testing.T) {
	ctx := NewContext(Options{ComputeUnits: 3})
	q := ctx.CreateQueue()
	defer q.Release()
	const gx, gy, lx, ly = 32, 12, 8, 4
	out, _ := ctx.CreateBuffer(WriteOnly, gx*gy)
	defer out.Release()
	k := &Kernel{
		Name:           "mirror",
		LocalMemFloats: lx * ly,
		Func: func(wi *WorkItem) {
			l := wi.LocalID(1)*wi.LocalSize(0) + wi.LocalID(0)
			wi.Local[l] = float32(wi.GlobalID(1)*wi.GlobalSize(0) + wi.GlobalID(0))
			wi.Barrier()
			n := wi.LocalSize(0) * wi.LocalSize(1)
			out.Data()[wi.GlobalID(1)*wi.GlobalSize(0)+wi.GlobalID(0)] = wi.Local[n-1-l]
		},
	}
	for i := 0; i < 3; i++ {
		if err := q.EnqueueNDRange(k, NDRange{Global: [2]int{gx, gy}, Local: [2]int{lx, ly}}); err != nil {
			t.Fatal(err)
		}
	}
	if err := q.Finish(); err != nil {
		t.Fatal(err)
	}
	for y := 0; y < gy; y++ {
		for x := 0; x < gx; x++ {
			groupX, groupY := x/lx, y/ly
			mx := groupX*lx + (lx - 1 - x%lx)
			my := groupY*ly + (ly - 1 - y%ly)
			if got, want := out.Data()[y*gx+x], float32(my*gx+mx); got != want {
				t.Errorf("(%d,%d) = %f; want %f", x, y, got, want)
			}
		}
	}
}

func TestNDRangeCoversGrid(t *testing.T) {
	ctx := NewContext(Options{ComputeUnits: 2})
	q := ctx.CreateQueue()
	defer q.Release()
	var count atomic.Int64
	k := &Kernel{Name: "count", Func: func(wi *WorkItem) { count.Add(1) }}
	if err := q.EnqueueNDRange(k, NDRange{Global: [2]int{24, 10}, Local: [2]int{4, 5}}); err != nil {
		t.Fatal(err)
	}
	q.Finish()
	if got := count.Load(); got != 240 {
		t.Errorf("%d work-items ran; want 240", got)
	}
}

func TestBarrierLeave(t *testing.T) {
	b := NewBarrier(3)
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); b.Leave() }()
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			b.Wait()
			b.Wait()
			b.Leave()
		}()
	}
	wg.Wait()
}

func TestKernelInfo(t *testing.T) {
	ctx := NewContext(Options{MaxWorkGroupSize: 256})
	ki := ctx.KernelInfo(&Kernel{Name: "k", LocalMemFloats: 484})
	if ki.WorkGroupSize != 256 || ki.LocalMemBytes != 1936 {
		t.Errorf("KernelInfo() = %+v", ki)
	}
	if ki.PreferredMultiple != ctx.Info().CacheLine/4 {
		t.Errorf("preferred multiple %d; want %d", ki.PreferredMultiple, ctx.Info().CacheLine/4)
	}
	if s := ki.String(); strings.Contains(s, "private") || !strings.Contains(s, "local mem size=1936") {
		t.Errorf("KernelInfo.String() = %q", s)
	}
}
