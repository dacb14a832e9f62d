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

// Package conv holds the convolution operators: filter selection, the reference and tiled
// convolutions, and their comparison.
package conv

import (
	"fmt"
	"time"

	"github.com/mlnoga/haloconv/internal/filter"
	"github.com/mlnoga/haloconv/internal/gray"
	"github.com/mlnoga/haloconv/internal/ops"
	"github.com/mlnoga/haloconv/internal/reference"
	"github.com/mlnoga/haloconv/internal/stats"
	"github.com/mlnoga/haloconv/internal/stencil"
	"github.com/mlnoga/haloconv/internal/tiling"
)

// Selects the convolution kernel for a frame, either a named preset or explicit weights
type OpFilter struct {
	ops.OpUnaryBase
	Preset  string    `json:"preset"`
	Sigma   float32   `json:"sigma"`
	Width   int       `json:"width"`
	Weights []float32 `json:"weights"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpFilterDefault() }) } // register the operator for JSON decoding

func NewOpFilterDefault() *OpFilter { return NewOpFilter(filter.DefaultPreset, 1) }

func NewOpFilter(preset string, sigma float32) *OpFilter {
	op := OpFilter{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "filter", Active: true}},
		Preset:      preset,
		Sigma:       sigma,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Builds the kernel described by the operator
func (op *OpFilter) Kernel() (*filter.Kernel, error) {
	if len(op.Weights) > 0 {
		return filter.New("custom", op.Width, op.Weights)
	}
	return filter.Preset(op.Preset, op.Sigma)
}

func (op *OpFilter) Apply(f *ops.Frame, c *ops.Context) (*ops.Frame, error) {
	k, err := op.Kernel()
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	f.Kernel = k
	fmt.Fprintf(c.Log, "%d: Using filter %s\n", f.ID, k)
	return f, nil
}

// Convolves a frame sequentially on the host, producing the reference result
type OpReference struct {
	ops.OpUnaryBase
	Loops int `json:"loops"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpReferenceDefault() }) } // register the operator for JSON decoding

func NewOpReferenceDefault() *OpReference { return NewOpReference(1) }

func NewOpReference(loops int) *OpReference {
	op := OpReference{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "reference", Active: true}},
		Loops:       loops,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

func (op *OpReference) Apply(f *ops.Frame, c *ops.Context) (*ops.Frame, error) {
	if f.Kernel == nil {
		return nil, fmt.Errorf("%d: no filter selected for %s", f.ID, op.Type)
	}
	loops := op.Loops
	if loops < 1 {
		loops = 1
	}
	in := f.Input
	g, err := tiling.Partition(in.Width, in.Height, 1, 1, f.Kernel.Width, tiling.Unoptimized)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}

	out := gray.NewImageFromImage(in)
	start := time.Now()
	for loop := 0; loop < loops; loop++ {
		if err := reference.ConvolveInto(out.Data, in.Data, in.Width, in.Height, f.Kernel); err != nil {
			return nil, fmt.Errorf("%d: %w", f.ID, err)
		}
	}
	elapsed := time.Since(start)

	timing := stats.NewTiming("cpu", in.Width, in.Height, g.Flops(), elapsed/time.Duration(loops))
	f.CPU, f.CPUTiming = out, &timing
	fmt.Fprintf(c.Log, "%d: Reference %s", f.ID, timing)
	return f, nil
}

// Convolves a frame with the halo-staged tiled kernel on the device of the context
type OpTiled struct {
	ops.OpUnaryBase
	stencil.Job
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpTiledDefault() }) } // register the operator for JSON decoding

func NewOpTiledDefault() *OpTiled { return NewOpTiled(stencil.DefaultJob) }

func NewOpTiled(job stencil.Job) *OpTiled {
	op := OpTiled{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "tiled", Active: true}},
		Job:         job,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

func (op *OpTiled) Apply(f *ops.Frame, c *ops.Context) (*ops.Frame, error) {
	if f.Kernel == nil {
		return nil, fmt.Errorf("%d: no filter selected for %s", f.ID, op.Type)
	}
	in := f.Input
	res, err := c.Engine.Run(in.Data, in.Width, in.Height, f.Kernel, op.Job)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	out := gray.NewImageFromImage(in)
	out.Data = res.Output

	timing := stats.NewTiming("device", in.Width, in.Height, res.Geometry.Flops(), res.PerLoop())
	f.Device, f.DeviceTiming = out, &timing
	fmt.Fprintf(c.Log, "%d: Tiled %s", f.ID, timing)
	return f, nil
}

// Compares the reference and tiled results of a frame
type OpCompare struct {
	ops.OpUnaryBase
	Tolerance      float32 `json:"tolerance"`
	FailOnMismatch bool    `json:"failOnMismatch"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpCompareDefault() }) } // register the operator for JSON decoding

// Default tolerance for interior pixels, relative to the reference sample where it exceeds one
const DefaultTolerance = 1e-4

func NewOpCompareDefault() *OpCompare { return NewOpCompare(DefaultTolerance, false) }

func NewOpCompare(tolerance float32, failOnMismatch bool) *OpCompare {
	op := OpCompare{
		OpUnaryBase:    ops.OpUnaryBase{OpBase: ops.OpBase{Type: "compare", Active: true}},
		Tolerance:      tolerance,
		FailOnMismatch: failOnMismatch,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

func (op *OpCompare) Apply(f *ops.Frame, c *ops.Context) (*ops.Frame, error) {
	if f.CPU == nil || f.Device == nil || f.Kernel == nil {
		return nil, fmt.Errorf("%d: compare needs reference and tiled results", f.ID)
	}
	cmp, err := stats.Compare(f.CPU.Data, f.Device.Data, f.CPU.Width, f.CPU.Height, f.Kernel.Half(), op.Tolerance)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	f.Comparison = cmp
	fmt.Fprintf(c.Log, "%d: %s", f.ID, cmp)
	if f.CPUTiming != nil && f.DeviceTiming != nil {
		fmt.Fprintf(c.Log, "%d: Device speedup over reference %.2fx\n", f.ID, f.DeviceTiming.Speedup(*f.CPUTiming))
	}
	if op.FailOnMismatch && !cmp.Match() {
		return nil, fmt.Errorf("%d: %d interior and %d border pixels differ", f.ID, cmp.Mismatches, cmp.BorderMismatches)
	}
	return f, nil
}

// Options for a complete benchmark pipeline on already loaded frames
type Benchmark struct {
	Preset    string      `json:"preset"`
	Sigma     float32     `json:"sigma"`
	Job       stencil.Job `json:"job"`
	CPULoops  int         `json:"cpuLoops"`
	Tolerance float32     `json:"tolerance"`
	OutCPU    string      `json:"outCPU"`
	OutDevice string      `json:"outDevice"`
	OutDiff   string      `json:"outDiff"`
}

// Builds the sequence filter, reference, tiled, compare and the configured saves
func NewOpBenchmark(b Benchmark) *ops.OpSequence {
	seq := ops.NewOpSequence(
		NewOpFilter(b.Preset, b.Sigma),
		NewOpReference(b.CPULoops),
		NewOpTiled(b.Job),
		NewOpCompare(b.Tolerance, false),
	)
	for _, s := range []struct{ name, image string }{{b.OutCPU, "cpu"}, {b.OutDevice, "device"}, {b.OutDiff, "diff"}} {
		if s.name != "" {
			seq.Append(ops.NewOpSave(s.name, s.image))
		}
	}
	return seq
}
