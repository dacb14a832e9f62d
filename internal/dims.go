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
	"errors"
	"fmt"
)

// Largest image accepted anywhere, in pixels. A float32 plane of this size takes 1 GiB
const MaxPixels = 1 << 28

var ErrDimensions = errors.New("invalid image dimensions")

// Checks that width and height are positive and that width*height does not exceed maxPixels.
// The test divides instead of multiplying, so huge dimensions cannot wrap around
func CheckDimensions(width, height, maxPixels int) error {
	if width <= 0 || height <= 0 || width > maxPixels/height {
		return fmt.Errorf("%w: %dx%d, want positive and at most %d pixels", ErrDimensions, width, height, maxPixels)
	}
	return nil
}
