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

// Package device emulates a data-parallel accelerator on the host processor: buffers in device
// global memory, in-order command queues, and kernels executed as 2D grids of work-groups whose
// work-items share local scratch memory and synchronize on a barrier.
package device

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"
)

const (
	defaultMaxWorkGroupSize = 1024
	defaultLocalMemBytes    = 32 * 1024
	defaultCacheLine        = 64
)

// Device properties, detected from the host processor
type Info struct {
	Name             string   `json:"name"`
	Vendor           string   `json:"vendor"`
	PhysicalCores    int      `json:"physicalCores"`
	LogicalCores     int      `json:"logicalCores"`
	ThreadsPerCore   int      `json:"threadsPerCore"`
	ComputeUnits     int      `json:"computeUnits"`     // work-groups executing concurrently
	MaxWorkGroupSize int      `json:"maxWorkGroupSize"` // work-items per group
	CacheLine        int      `json:"cacheLine"`        // bytes
	LocalMemBytes    int      `json:"localMemBytes"`    // local scratch per work-group
	GlobalMemBytes   uint64   `json:"globalMemBytes"`   // 0 if unlimited
	Features         []string `json:"features"`
}

// Detects the host processor and physical memory
func Detect() Info {
	c := cpuid.CPU
	info := Info{
		Name:             strings.TrimSpace(c.BrandName),
		Vendor:           c.VendorString,
		PhysicalCores:    c.PhysicalCores,
		LogicalCores:     c.LogicalCores,
		ThreadsPerCore:   c.ThreadsPerCore,
		ComputeUnits:     c.LogicalCores,
		MaxWorkGroupSize: defaultMaxWorkGroupSize,
		CacheLine:        c.CacheLine,
		LocalMemBytes:    c.Cache.L1D,
		GlobalMemBytes:   memory.TotalMemory(),
	}
	if info.Name == "" {
		info.Name = runtime.GOARCH + " host processor"
	}
	if info.ComputeUnits <= 0 {
		info.ComputeUnits = runtime.NumCPU()
	}
	if info.CacheLine <= 0 {
		info.CacheLine = defaultCacheLine
	}
	if info.LocalMemBytes <= 0 {
		info.LocalMemBytes = defaultLocalMemBytes
	}
	for _, f := range []struct {
		name string
		has  bool
	}{
		{"sse4", c.SSE4()}, {"sse4.2", c.SSE42()}, {"avx", c.AVX()}, {"avx2", c.AVX2()},
		{"fma3", c.FMA3()}, {"avx512f", c.AVX512F()},
	} {
		if f.has {
			info.Features = append(info.Features, f.name)
		}
	}
	return info
}

// Pretty-prints device info, one property per line
func (i Info) String() string {
	global := "unlimited"
	if i.GlobalMemBytes > 0 {
		global = fmt.Sprintf("%d MiB", i.GlobalMemBytes/1024/1024)
	}
	return fmt.Sprintf(`Device name:         %s
Vendor:              %s
Cores:               %d physical, %d logical, %d threads per core
Compute units:       %d
Max work-group size: %d
Cache line:          %d bytes
Local memory:        %d bytes
Global memory:       %s
Features:            %s
`, i.Name, i.Vendor, i.PhysicalCores, i.LogicalCores, i.ThreadsPerCore, i.ComputeUnits,
		i.MaxWorkGroupSize, i.CacheLine, i.LocalMemBytes, global, strings.Join(i.Features, " "))
}
