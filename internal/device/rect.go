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
	"fmt"
)

// Rectangular region for transfers between host memory and a buffer. Coordinates are (x, y) in
// elements, row pitches are in elements and are independent for buffer and host
type Rect struct {
	BufferOrigin   [2]int
	HostOrigin     [2]int
	Region         [2]int // width, height
	BufferRowPitch int
	HostRowPitch   int
}

// Checks that the region is non-empty, that each row fits within its pitch on both sides, and that
// the last row ends within the buffer and the host slice
func (r Rect) check(buf *Buffer, hostLen int) error {
	if buf == nil || buf.data == nil {
		return fmt.Errorf("%w: no buffer", ErrTransferMismatch)
	}
	if r.Region[0] <= 0 || r.Region[1] <= 0 {
		return fmt.Errorf("%w: empty region %dx%d", ErrTransferMismatch, r.Region[0], r.Region[1])
	}
	if err := checkSide("buffer", r.BufferOrigin, r.Region, r.BufferRowPitch, len(buf.data)); err != nil {
		return err
	}
	return checkSide("host", r.HostOrigin, r.Region, r.HostRowPitch, hostLen)
}

func checkSide(side string, origin, region [2]int, pitch, length int) error {
	if origin[0] < 0 || origin[1] < 0 {
		return fmt.Errorf("%w: negative %s origin (%d,%d)", ErrTransferMismatch, side, origin[0], origin[1])
	}
	if origin[0]+region[0] > pitch {
		return fmt.Errorf("%w: %s row of %d at x=%d exceeds pitch %d", ErrTransferMismatch, side, region[0], origin[0], pitch)
	}
	end := (origin[1]+region[1]-1)*pitch + origin[0] + region[0]
	if end > length {
		return fmt.Errorf("%w: %s region ends at %d, length %d", ErrTransferMismatch, side, end, length)
	}
	return nil
}

// Copies the region row by row, into the buffer if toBuffer is set, else into host
func (r Rect) copyRows(buf, host []float32, toBuffer bool) {
	for y := 0; y < r.Region[1]; y++ {
		b := (r.BufferOrigin[1]+y)*r.BufferRowPitch + r.BufferOrigin[0]
		h := (r.HostOrigin[1]+y)*r.HostRowPitch + r.HostOrigin[0]
		if toBuffer {
			copy(buf[b:b+r.Region[0]], host[h:h+r.Region[0]])
		} else {
			copy(host[h:h+r.Region[0]], buf[b:b+r.Region[0]])
		}
	}
}
