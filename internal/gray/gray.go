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

// Package gray holds single-channel floating point intensity images,
// the grayscale reduction from RGB bitmaps and the output writers.
package gray

import (
	"fmt"

	"github.com/mlnoga/haloconv/internal/pnm"
)

// Perceptual channel weights of the grayscale reduction
const (
	WeightR = float32(0.21)
	WeightG = float32(0.72)
	WeightB = float32(0.07)
)

// A single-channel intensity image in row-major order, values nominally in [0,1]
type Image struct {
	ID     int       // Sequential ID number, for log output
	Width  int       // Width in pixels, also the row stride of Data
	Height int       // Height in pixels
	Data   []float32 // Intensities
}

// Creates a zero-filled image of given dimensions
func NewImage(width, height int) *Image {
	return &Image{Width: width, Height: height, Data: make([]float32, width*height)}
}

// Creates a new image with the same dimensions and ID, and a zero-filled data array
func NewImageFromImage(img *Image) *Image {
	res := NewImage(img.Width, img.Height)
	res.ID = img.ID
	return res
}

func (img *Image) Pixels() int { return img.Width * img.Height }

func (img *Image) DimensionsToString() string {
	return fmt.Sprintf("%dx%d", img.Width, img.Height)
}

// Reduces an RGB bitmap to intensities: gray = 0.21 r/max + 0.72 g/max + 0.07 b/max.
// Evaluated in float32 with a fixed operation order, so identical inputs give bit-identical outputs
func FromRGB(p *pnm.RGB) *Image {
	img := NewImage(p.Width, p.Height)
	max := float32(p.Max)
	for n := range img.Data {
		r, g, b := float32(p.R[n]), float32(p.G[n]), float32(p.B[n])
		img.Data[n] = float32(WeightR*r)/max + float32(WeightG*g)/max + float32(WeightB*b)/max
	}
	return img
}

// Converts intensities back to an RGB bitmap with r=g=b=int(v*max), clamped to [0,max]
func (img *Image) ToRGB(max int) *pnm.RGB {
	p := pnm.NewRGB(img.Width, img.Height, max)
	fmax := float32(max)
	for n, v := range img.Data {
		f := v * fmax
		var q int32
		if f >= fmax {
			q = int32(max)
		} else if f > 0 { // also rejects NaN
			q = int32(f)
		}
		p.R[n], p.G[n], p.B[n] = q, q, q
	}
	return p
}
