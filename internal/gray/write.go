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

package gray

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/tiff"
)

var ErrUnknownSuffix = errors.New("unknown output file suffix")

// Write the image to the given file, choosing the format from the suffix.
// PPM output scales intensities by ppmMax, all other formats map [0,1] to their full range
func (img *Image) WriteFile(fileName string, ppmMax int) error {
	fnLower := strings.ToLower(fileName)
	switch {
	case strings.HasSuffix(fnLower, ".ppm"):
		return img.ToRGB(ppmMax).WriteFile(fileName)
	case strings.HasSuffix(fnLower, ".jpg") || strings.HasSuffix(fnLower, ".jpeg"):
		return img.WriteMonoJPGToFile(fileName, 0, 1, 1, 95)
	case strings.HasSuffix(fnLower, ".tif") || strings.HasSuffix(fnLower, ".tiff"):
		return img.WriteMonoTIFF16ToFile(fileName, 0, 1, 1)
	case strings.HasSuffix(fnLower, ".png"):
		return img.writeToFile(fileName, func(w io.Writer) error { return png.Encode(w, img.toGray16(0, 1, 1)) })
	}
	return fmt.Errorf("%w: %s", ErrUnknownSuffix, fileName)
}

func (img *Image) writeToFile(fileName string, encode func(w io.Writer) error) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := encode(writer); err != nil {
		return err
	}
	return writer.Flush()
}

// Maps a value into [0,1] with given min, max and inverse gamma. NaNs map to zero
func normalize(v, min, scale float32, gammaInv float64) float32 {
	v = (v - min) * scale
	// replace NaNs with zeros for export, else JPG output breaks
	if math.IsNaN(float64(v)) || v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	if gammaInv != 1.0 {
		v = float32(math.Pow(float64(v), gammaInv))
	}
	return v
}

// Write the image to JPG, using the given min, max and gamma.
func (img *Image) WriteMonoJPGToFile(fileName string, min, max, gamma float32, quality int) error {
	return img.writeToFile(fileName, func(w io.Writer) error { return img.WriteMonoJPG(w, min, max, gamma, quality) })
}

// Write the image to JPG, using the given min, max and gamma.
func (img *Image) WriteMonoJPG(writer io.Writer, min, max, gamma float32, quality int) error {
	out := image.NewGray(image.Rect(0, 0, img.Width, img.Height))
	scale := 1.0 / (max - min)
	gammaInv := float64(1.0 / gamma)
	for y := 0; y < img.Height; y++ {
		yoffset := y * img.Width
		for x := 0; x < img.Width; x++ {
			v := normalize(img.Data[yoffset+x], min, scale, gammaInv)
			out.SetGray(x, y, color.Gray{uint8(v * 255)})
		}
	}
	return jpeg.Encode(writer, out, &jpeg.Options{Quality: quality})
}

// Write the image to 16-bit TIFF, using the given min, max and gamma.
func (img *Image) WriteMonoTIFF16ToFile(fileName string, min, max, gamma float32) error {
	return img.writeToFile(fileName, func(w io.Writer) error { return img.WriteMonoTIFF16(w, min, max, gamma) })
}

// Write the image to 16-bit TIFF, using the given min, max and gamma.
func (img *Image) WriteMonoTIFF16(writer io.Writer, min, max, gamma float32) error {
	return tiff.Encode(writer, img.toGray16(min, max, gamma), &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}

func (img *Image) toGray16(min, max, gamma float32) *image.Gray16 {
	out := image.NewGray16(image.Rect(0, 0, img.Width, img.Height))
	scale := 1 / (max - min)
	gammaInv := float64(1.0 / gamma)
	for y := 0; y < img.Height; y++ {
		yoffset := y * img.Width
		for x := 0; x < img.Width; x++ {
			v := normalize(img.Data[yoffset+x], min, scale, gammaInv)
			out.SetGray16(x, y, color.Gray16{uint16(v * 65535)})
		}
	}
	return out
}

// Colors of the difference map for zero and for full-scale differences
var (
	diffColorLow  = colorful.Color{R: 0, G: 0, B: 0.35}
	diffColorHigh = colorful.Color{R: 1, G: 0.85, B: 0.1}
)

// Write the absolute difference |a-b| of two equally sized images as false-color JPG.
// Differences are scaled by 1/scale, or by the largest difference if scale<=0
func WriteDiffJPGToFile(fileName string, a, b *Image, scale float32) error {
	return a.writeToFile(fileName, func(w io.Writer) error { return WriteDiffJPG(w, a, b, scale) })
}

// Write the absolute difference |a-b| of two equally sized images as false-color JPG.
// Differences are scaled by 1/scale, or by the largest difference if scale<=0
func WriteDiffJPG(writer io.Writer, a, b *Image, scale float32) error {
	out, err := DiffImage(a, b, scale)
	if err != nil {
		return err
	}
	return jpeg.Encode(writer, out, &jpeg.Options{Quality: 95})
}

// Renders the absolute difference |a-b| of two equally sized images on a blended HCL color ramp
func DiffImage(a, b *Image, scale float32) (*image.RGBA, error) {
	if a.Width != b.Width || a.Height != b.Height {
		return nil, fmt.Errorf("difference of %s and %s image", a.DimensionsToString(), b.DimensionsToString())
	}
	if scale <= 0 {
		for i, v := range a.Data {
			if d := float32(math.Abs(float64(v - b.Data[i]))); d > scale {
				scale = d
			}
		}
		if scale <= 0 {
			scale = 1
		}
	}

	out := image.NewRGBA(image.Rect(0, 0, a.Width, a.Height))
	for y := 0; y < a.Height; y++ {
		for x := 0; x < a.Width; x++ {
			i := y*a.Width + x
			d := float64(math.Abs(float64(a.Data[i]-b.Data[i]))) / float64(scale)
			if math.IsNaN(d) || d > 1 {
				d = 1
			}
			r, g, bl := diffColorLow.BlendHcl(diffColorHigh, d).Clamped().RGB255()
			out.SetRGBA(x, y, color.RGBA{r, g, bl, 255})
		}
	}
	return out, nil
}
