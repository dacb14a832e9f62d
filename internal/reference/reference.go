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

// Package reference holds the sequential convolver the tiled device results are checked against.
package reference

import (
	"fmt"

	hc "github.com/mlnoga/haloconv/internal"
	"github.com/mlnoga/haloconv/internal/filter"
)

// Convolves a width x height image with the given kernel, returning a new image. Interior pixels
// whose full filter window lies inside the image receive the filter response. Border pixels within
// the half width of the kernel are left at zero
func Convolve(in []float32, width, height int, k *filter.Kernel) ([]float32, error) {
	if err := hc.CheckDimensions(width, height, hc.MaxPixels); err != nil {
		return nil, err
	}
	out := make([]float32, width*height)
	if err := ConvolveInto(out, in, width, height, k); err != nil {
		return nil, err
	}
	return out, nil
}

// Convolves into the given output buffer, which must not alias the input. Border pixels of out are not touched
func ConvolveInto(out, in []float32, width, height int, k *filter.Kernel) error {
	if err := k.Validate(); err != nil {
		return err
	}
	if err := hc.CheckDimensions(width, height, hc.MaxPixels); err != nil {
		return err
	}
	if len(in) != width*height || len(out) != width*height {
		return fmt.Errorf("image %dx%d does not match buffers of %d and %d pixels", width, height, len(in), len(out))
	}
	fw, half := k.Width, k.Half()
	if width < fw || height < fw {
		return fmt.Errorf("image %dx%d smaller than %dx%d filter", width, height, fw, fw)
	}

	// Summation order and rounding match the device kernel, so both agree bit for bit
	for row := half; row < height-half; row++ {
		for col := half; col < width-half; col++ {
			sum := float32(0)
			for i := 0; i < fw; i++ {
				inRow := in[(row-half+i)*width+col-half:]
				kRow := k.Weights[i*fw:]
				for j := 0; j < fw; j++ {
					sum += float32(inRow[j] * kRow[j])
				}
			}
			out[row*width+col] = sum
		}
	}
	return nil
}
