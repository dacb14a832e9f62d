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

// Package pnm reads and writes RGB bitmaps as three integer channel buffers.
// Plain (P3) and binary (P6) portable pixmaps are parsed natively, other
// formats go through the image package decoders.
package pnm

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	_ "golang.org/x/image/tiff"

	hc "github.com/mlnoga/haloconv/internal"
)

var ErrFormat = errors.New("pnm: invalid pixmap")

// An RGB bitmap decoded into three equal-length integer channel buffers in row-major order
type RGB struct {
	Width  int     // Image width in pixels
	Height int     // Image height in pixels
	Max    int     // Maximum channel value, e.g. 255 or 65535
	R      []int32 // Red channel
	G      []int32 // Green channel
	B      []int32 // Blue channel
}

// Creates a black RGB bitmap of given dimensions
func NewRGB(width, height, max int) *RGB {
	n := width * height
	return &RGB{
		Width:  width,
		Height: height,
		Max:    max,
		R:      make([]int32, n),
		G:      make([]int32, n),
		B:      make([]int32, n),
	}
}

// Number of pixels per channel
func (p *RGB) Pixels() int { return p.Width * p.Height }

// Read an RGB bitmap from the file with the given name. Decompresses gzip if .gz or .gzip suffix is present.
func ReadFile(fileName string) (*RGB, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	lExt := strings.ToLower(path.Ext(fileName))
	if lExt == ".gz" || lExt == ".gzip" {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}

	p, err := Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}
	return p, nil
}

// Decode an RGB bitmap. PPM is detected by its magic number, everything else is handed to image.Decode
func Decode(r io.Reader) (*RGB, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFormat, err.Error())
	}
	switch string(magic) {
	case "P3", "P6":
		return decodePPM(br)
	}
	img, _, err := image.Decode(br)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if err := hc.CheckDimensions(b.Dx(), b.Dy(), hc.MaxPixels); err != nil {
		return nil, fmt.Errorf("pnm: %w", err)
	}
	return FromImage(img), nil
}

// Converts a Go image to an RGB bitmap. 16-bit images keep their full range, everything else is reduced to 8 bits
func FromImage(img image.Image) *RGB {
	b := img.Bounds()
	max, shift := 255, uint32(8)
	switch img.(type) {
	case *image.RGBA64, *image.NRGBA64, *image.Gray16:
		max, shift = 65535, 0
	}
	p := NewRGB(b.Dx(), b.Dy(), max)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*p.Width + x
			p.R[i], p.G[i], p.B[i] = int32(r>>shift), int32(g>>shift), int32(bl>>shift)
		}
	}
	return p
}

// Parses a plain (P3) or binary (P6) portable pixmap
func decodePPM(br *bufio.Reader) (*RGB, error) {
	magic, err := nextToken(br)
	if err != nil {
		return nil, err
	}
	var header [3]int
	for i := range header {
		tok, err := nextToken(br)
		if err != nil {
			return nil, err
		}
		if header[i], err = strconv.Atoi(tok); err != nil || header[i] <= 0 {
			return nil, fmt.Errorf("%w: bad header value '%s'", ErrFormat, tok)
		}
	}
	width, height, max := header[0], header[1], header[2]
	if max > 65535 {
		return nil, fmt.Errorf("%w: maximum value %d out of range", ErrFormat, max)
	}
	if err := hc.CheckDimensions(width, height, hc.MaxPixels); err != nil {
		return nil, fmt.Errorf("pnm: %w", err)
	}

	p := NewRGB(width, height, max)
	chans := [3][]int32{p.R, p.G, p.B}
	if magic == "P3" {
		for i := 0; i < p.Pixels(); i++ {
			for c := 0; c < 3; c++ {
				tok, err := nextToken(br)
				if err != nil {
					return nil, fmt.Errorf("%w: pixel %d: %s", ErrFormat, i, err.Error())
				}
				v, err := strconv.Atoi(tok)
				if err != nil || v < 0 || v > max {
					return nil, fmt.Errorf("%w: pixel %d: bad value '%s'", ErrFormat, i, tok)
				}
				chans[c][i] = int32(v)
			}
		}
		return p, nil
	}

	// binary raster follows a single whitespace character after the maximum value,
	// which nextToken has already consumed
	bytesPerValue := 1
	if max > 255 {
		bytesPerValue = 2
	}
	row := make([]byte, width*3*bytesPerValue)
	for y := 0; y < height; y++ {
		if _, err := io.ReadFull(br, row); err != nil {
			return nil, fmt.Errorf("%w: row %d: %s", ErrFormat, y, err.Error())
		}
		for x := 0; x < width; x++ {
			for c := 0; c < 3; c++ {
				var v int32
				if bytesPerValue == 1 {
					v = int32(row[x*3+c])
				} else {
					o := (x*3 + c) * 2
					v = int32(row[o])<<8 | int32(row[o+1])
				}
				chans[c][y*width+x] = v
			}
		}
	}
	return p, nil
}

// Returns the next whitespace-separated token, skipping # comments to end of line.
// Consumes exactly one whitespace character after the token
func nextToken(br *bufio.Reader) (string, error) {
	b := strings.Builder{}
	for {
		c, err := br.ReadByte()
		if err != nil {
			if err == io.EOF && b.Len() > 0 {
				return b.String(), nil
			}
			return "", fmt.Errorf("%w: unexpected end of data", ErrFormat)
		}
		switch {
		case c == '#' && b.Len() == 0:
			if _, err := br.ReadString('\n'); err != nil {
				return "", fmt.Errorf("%w: unexpected end of data in comment", ErrFormat)
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f':
			if b.Len() > 0 {
				return b.String(), nil
			}
		default:
			b.WriteByte(c)
		}
	}
}

// Write the bitmap as plain PPM (P3) to the file with the given name
func (p *RGB) WriteFile(fileName string) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := p.Encode(writer); err != nil {
		return err
	}
	return writer.Flush()
}

// Valid values per output line of a plain PPM
const valuesPerLine = 12

// Write the bitmap as plain PPM (P3)
func (p *RGB) Encode(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "P3\n%d %d\n%d\n", p.Width, p.Height, p.Max); err != nil {
		return err
	}
	line := make([]byte, 0, valuesPerLine*6)
	n := 0
	for i := 0; i < p.Pixels(); i++ {
		for _, v := range [3]int32{p.R[i], p.G[i], p.B[i]} {
			if n > 0 {
				line = append(line, ' ')
			}
			line = strconv.AppendInt(line, int64(v), 10)
			n++
			if n == valuesPerLine {
				line = append(line, '\n')
				if _, err := w.Write(line); err != nil {
					return err
				}
				line, n = line[:0], 0
			}
		}
	}
	if n > 0 {
		line = append(line, '\n')
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}
