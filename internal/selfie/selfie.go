// Package selfie prepares a selfie image for a face search.
package selfie

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"os"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/eventlens/internal/constants"
)

// Prepare decodes an image and downscales it to fit within maxSize (width or
// height), keeping the aspect ratio. The result is always a JPEG. A JPEG that
// already fits is returned unchanged, EXIF included. Otherwise the EXIF
// orientation is applied to the pixels and transparency is flattened onto white.
func Prepare(data []byte, maxSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("selfie image is empty")
	}
	if maxSize <= 0 {
		maxSize = constants.MaxSelfieSize
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	fits := width <= maxSize && height <= maxSize

	if fits && format == "jpeg" {
		return data, nil
	}

	orientation := readOrientation(data)
	rawWidth, rawHeight := width, height
	if fits {
		return encode(orient(flatten(img, rawWidth, rawHeight), orientation))
	}

	// fit the displayed shape, then scale the stored one
	if orientation >= 5 {
		width, height = height, width
	}
	newWidth, newHeight := fit(width, height, maxSize)
	rawWidth, rawHeight = newWidth, newHeight
	if orientation >= 5 {
		rawWidth, rawHeight = newHeight, newWidth
	}
	return encode(orient(flatten(img, rawWidth, rawHeight), orientation))
}

// PrepareFile reads and prepares a selfie from disk
func PrepareFile(path string, maxSize int) ([]byte, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided selfie path
	if err != nil {
		return nil, fmt.Errorf("could not read selfie: %w", err)
	}
	return Prepare(data, maxSize)
}

func fit(width, height, maxSize int) (int, int) {
	if width > height {
		return maxSize, max(1, int(float64(height)*float64(maxSize)/float64(width)))
	}
	return max(1, int(float64(width)*float64(maxSize)/float64(height))), maxSize
}

// flatten draws img scaled to width x height over a white background.
func flatten(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	src := img.Bounds()
	if src.Dx() == width && src.Dy() == height {
		draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Over)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Over, nil)
	return dst
}

// readOrientation returns the EXIF orientation (1-8), or 1 when the image
// carries none.
func readOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err := tag.Int(0)
	if err != nil || o < 1 || o > 8 {
		return 1
	}
	return o
}

// orient turns stored pixels into their displayed layout.
func orient(src *image.RGBA, orientation int) *image.RGBA {
	if orientation <= 1 || orientation > 8 {
		return src
	}

	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dw, dh := w, h
	if orientation >= 5 {
		dw, dh = h, w
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	for y := range dh {
		for x := range dw {
			var sx, sy int
			switch orientation {
			case 2:
				sx, sy = w-1-x, y
			case 3:
				sx, sy = w-1-x, h-1-y
			case 4:
				sx, sy = x, h-1-y
			case 5:
				sx, sy = y, x
			case 6:
				sx, sy = y, h-1-x
			case 7:
				sx, sy = w-1-y, h-1-x
			case 8:
				sx, sy = w-1-y, x
			}
			dst.SetRGBA(x, y, src.RGBAAt(sx, sy))
		}
	}
	return dst
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: constants.SelfieJPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
