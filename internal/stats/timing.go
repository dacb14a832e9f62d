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

// Package stats reports throughput of convolution runs and compares their results.
package stats

import (
	"fmt"
	"time"
)

// Throughput of one convolution pass, as average over a number of loops
type Timing struct {
	Name          string  `json:"name"`
	Seconds       float64 `json:"seconds"` // per loop
	MPixelsPerSec float64 `json:"mpixelsPerSec"`
	GBPerSec      float64 `json:"gbPerSec"` // one float read and one written per pixel
	GFlopsPerSec  float64 `json:"gflopsPerSec"`
}

// Derives throughput from the time per loop. Flops counts the operations of one pass
func NewTiming(name string, width, height int, flops float64, perLoop time.Duration) Timing {
	s := perLoop.Seconds()
	if s <= 0 {
		s = 1e-9
	}
	pixels := float64(width) * float64(height)
	return Timing{
		Name:          name,
		Seconds:       perLoop.Seconds(),
		MPixelsPerSec: pixels / 1e6 / s,
		GBPerSec:      2 * pixels * 4 / 1e9 / s,
		GFlopsPerSec:  flops / 1e9 / s,
	}
}

func (t Timing) String() string {
	return fmt.Sprintf("%s: %f s\n%f MPixels/s\n%f GB/s\n%f GFlop/s\n", t.Name, t.Seconds, t.MPixelsPerSec, t.GBPerSec, t.GFlopsPerSec)
}

// Ratio of the throughput of t over the throughput of base
func (t Timing) Speedup(base Timing) float64 {
	if t.Seconds <= 0 {
		return 0
	}
	return base.Seconds / t.Seconds
}
