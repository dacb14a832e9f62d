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

package stencil

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mlnoga/haloconv/internal/device"
	"github.com/mlnoga/haloconv/internal/filter"
	"github.com/mlnoga/haloconv/internal/tiling"
)

// Parameters of one tiled convolution run
type Job struct {
	WGX    int           `json:"wgx"`
	WGY    int           `json:"wgy"`
	Layout tiling.Layout `json:"layout"`
	Loops  int           `json:"loops"`
}

// Default job: 8x8 work-groups on the padded layout
var DefaultJob = Job{WGX: 8, WGY: 8, Layout: tiling.Optimized, Loops: 1}

// Outcome of a tiled convolution run
type Result struct {
	Geometry   *tiling.Geometry
	KernelInfo device.KernelInfo
	Output     []float32     // width*height, border pixels zero
	Elapsed    time.Duration // all loops, excluding transfers
	Loops      int
}

// Average kernel time per loop
func (r *Result) PerLoop() time.Duration {
	return r.Elapsed / time.Duration(r.Loops)
}

// Runs tiled convolutions on a device context. An engine owns one command queue and runs one job at a time
type Engine struct {
	ctx   *device.Context
	queue *device.Queue
	mu    sync.Mutex
	Log   io.Writer // progress output, may be nil
}

// Creates an engine with its own command queue on the given context
func NewEngine(ctx *device.Context, log io.Writer) *Engine {
	return &Engine{ctx: ctx, queue: ctx.CreateQueue(), Log: log}
}

func (e *Engine) Context() *device.Context { return e.ctx }

// Releases the command queue of the engine
func (e *Engine) Release() error {
	return e.queue.Release()
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.Log != nil {
		fmt.Fprintf(e.Log, format, args...)
	}
}

// Convolves the width x height image with the given kernel on the device. Partitions the grid,
// allocates buffers, uploads the image, enqueues job.Loops launches without intermediate
// synchronization, waits for completion, downloads the interior and releases the buffers.
// All loops compute the same result from the same input
func (e *Engine) Run(img []float32, width, height int, k *filter.Kernel, job Job) (*Result, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if job.Loops < 1 {
		return nil, fmt.Errorf("need at least one loop, got %d", job.Loops)
	}
	if len(img) != width*height {
		return nil, fmt.Errorf("image of %d pixels does not match %dx%d", len(img), width, height)
	}
	g, err := tiling.Partition(width, height, job.WGX, job.WGY, k.Width, job.Layout)
	if err != nil {
		return nil, err
	}
	e.logf("Tiling %s\n", g)

	in, err := e.ctx.CreateBuffer(device.ReadOnly, g.DeviceFloats())
	if err != nil {
		return nil, err
	}
	defer in.Release()
	out, err := e.ctx.CreateBuffer(device.WriteOnly, g.DeviceFloats())
	if err != nil {
		return nil, err
	}
	defer out.Release()
	weights, err := e.ctx.CreateBuffer(device.ReadOnly, len(k.Weights))
	if err != nil {
		return nil, err
	}
	defer weights.Release()

	if err := e.upload(g, in, img); err != nil {
		return nil, err
	}
	if err := e.queue.EnqueueWriteBuffer(weights, true, 0, k.Weights); err != nil {
		return nil, err
	}

	kernel := NewKernel(g, in, out, weights)
	info := e.ctx.KernelInfo(kernel)
	e.logf("%s", info)
	r := device.NDRange{Global: g.Global, Local: g.Local}

	if err := e.queue.Finish(); err != nil {
		return nil, err
	}
	start := time.Now()
	for loop := 0; loop < job.Loops; loop++ {
		if err := e.queue.EnqueueNDRange(kernel, r); err != nil {
			e.queue.Finish() // launches already enqueued still use the buffers
			return nil, err
		}
	}
	if err := e.queue.Finish(); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	res := &Result{Geometry: g, KernelInfo: info, Output: make([]float32, width*height), Elapsed: elapsed, Loops: job.Loops}
	if err := e.download(g, out, res.Output); err != nil {
		return nil, err
	}
	return res, nil
}

// Copies the logical image to the device. The padded layout needs a rectangular copy with
// independent row pitches, the unpadded layout is a flat copy
func (e *Engine) upload(g *tiling.Geometry, in *device.Buffer, img []float32) error {
	if g.DeviceWidth == g.Width {
		return e.queue.EnqueueWriteBuffer(in, true, 0, img)
	}
	return e.queue.EnqueueWriteRect(in, true, UploadRect(g), img)
}

// Copies the interior of the device output back to the host. The border is never written by the
// kernel and is not transferred
func (e *Engine) download(g *tiling.Geometry, out *device.Buffer, host []float32) error {
	return e.queue.EnqueueReadRect(out, true, DownloadRect(g), host)
}

// Transfer region placing the width x height host image at the origin of the device buffer
func UploadRect(g *tiling.Geometry) device.Rect {
	return device.Rect{
		Region:         [2]int{g.Width, g.Height},
		BufferRowPitch: g.DeviceWidth,
		HostRowPitch:   g.Width,
	}
}

// Transfer region of the interior pixels, at the same origin in device buffer and host image
func DownloadRect(g *tiling.Geometry) device.Rect {
	x, y, w, h := g.InteriorRect()
	return device.Rect{
		BufferOrigin:   [2]int{x, y},
		HostOrigin:     [2]int{x, y},
		Region:         [2]int{w, h},
		BufferRowPitch: g.DeviceWidth,
		HostRowPitch:   g.Width,
	}
}
