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

package pnm

import (
	"fmt"

	"github.com/valyala/fastrand"

	hc "github.com/mlnoga/haloconv/internal"
)

// Synthesizes a random RGB bitmap with channel values in [0,max]. Identical seeds give identical images
func Random(width, height, max int, seed uint32) *RGB {
	p := NewRGB(width, height, max)
	rng := fastrand.RNG{}
	if seed == 0 {
		seed = 1 // a zero state makes the generator reseed from the clock
	}
	rng.Seed(seed)
	n := uint32(max + 1)
	for i := 0; i < p.Pixels(); i++ {
		p.R[i] = int32(rng.Uint32n(n))
		p.G[i] = int32(rng.Uint32n(n))
		p.B[i] = int32(rng.Uint32n(n))
	}
	return p
}

// Parses a WxH dimension string such as 1024x768
func ParseDimensions(s string) (width, height int, err error) {
	n, err := fmt.Sscanf(s, "%dx%d", &width, &height)
	if err != nil || n != 2 {
		return 0, 0, fmt.Errorf("invalid dimensions '%s', want WxH", s)
	}
	if err := hc.CheckDimensions(width, height, hc.MaxPixels); err != nil {
		return 0, 0, err
	}
	return width, height, nil
}
