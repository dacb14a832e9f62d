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

// Package stencil implements the halo-staged tiled convolution on a device, and the host protocol
// that partitions the image, transfers it and launches the kernel.
package stencil

import (
	"github.com/mlnoga/haloconv/internal/device"
	"github.com/mlnoga/haloconv/internal/tiling"
)

// Builds the tiled convolution kernel for the given geometry. Each work-group cooperatively stages
// its tile plus halo from in into local memory, synchronizes, then each work-item computes one
// output sample from local memory only and writes it to out with the device row stride.
// Samples outside the logical image are staged as zero and never contribute to interior outputs
func NewKernel(g *tiling.Geometry, in, out, filter *device.Buffer) *device.Kernel {
	width, height := g.Width, g.Height
	deviceWidth := g.DeviceWidth
	localWidth, localHeight := g.LocalWidth, g.LocalHeight
	fw, half, padding := g.FilterWidth, g.Half, g.Padding

	return &device.Kernel{
		Name:           "convolution",
		LocalMemFloats: g.LocalMemFloats(),
		Func: func(wi *device.WorkItem) {
			src, dst, weights, local := in.Data(), out.Data(), filter.Data(), wi.Local

			groupStartCol := wi.GroupID(0) * wi.LocalSize(0)
			groupStartRow := wi.GroupID(1) * wi.LocalSize(1)
			localCol, localRow := wi.LocalID(0), wi.LocalID(1)
			globalCol, globalRow := groupStartCol+localCol, groupStartRow+localRow

			// Cooperative halo load, striding by the group size until the tile is covered
			for i := localRow; i < localHeight; i += wi.LocalSize(1) {
				curRow := groupStartRow + i
				for j := localCol; j < localWidth; j += wi.LocalSize(0) {
					curCol := groupStartCol + j
					if curRow < height && curCol < width {
						local[i*localWidth+j] = src[curRow*deviceWidth+curCol]
					} else {
						local[i*localWidth+j] = 0
					}
				}
			}

			wi.Barrier()

			// Items at the rounded-up grid edges have no interior pixel to compute
			if globalRow >= height-padding || globalCol >= width-padding {
				return
			}
			sum := float32(0)
			for i := 0; i < fw; i++ {
				row := local[(localRow+i)*localWidth+localCol:]
				w := weights[i*fw:]
				for j := 0; j < fw; j++ {
					sum += float32(row[j] * w[j])
				}
			}
			dst[(globalRow+half)*deviceWidth+globalCol+half] = sum
		},
	}
}
