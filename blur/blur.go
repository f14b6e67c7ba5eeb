package blur

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

const (
	MinRadius = 1
	MaxRadius = 25
)

var (
	ErrNilImage      = errors.New("blur: nil image")
	ErrEmptyImage    = errors.New("blur: empty image")
	ErrInvalidRadius = errors.New("blur: radius out of range")
	ErrInvalidScale  = errors.New("blur: compress scale out of range")
)

// Sigma map a blur radius to the gaussian standard deviation.
func Sigma(radius int) float64 {
	return 0.4*float64(radius) + 0.6
}

// Blur downscale src by compressScale and blur the result. The returned image
// has the compressed size, callers stretch it back when displaying.
func Blur(src image.Image, radius int, compressScale float64) (*image.NRGBA, error) {
	if src == nil {
		return nil, ErrNilImage
	}
	if radius < MinRadius || radius > MaxRadius {
		return nil, fmt.Errorf("%w: should be between %d and %d, %d provided", ErrInvalidRadius, MinRadius, MaxRadius, radius)
	}
	if math.IsNaN(compressScale) || compressScale <= 0 || compressScale > 1 {
		return nil, fmt.Errorf("%w: should be in (0, 1], %v provided", ErrInvalidScale, compressScale)
	}

	bounds := src.Bounds()
	if bounds.Empty() {
		return nil, ErrEmptyImage
	}

	width, height := Compressed(bounds.Dx(), bounds.Dy(), compressScale)
	scaled := imaging.Resize(src, width, height, imaging.NearestNeighbor)
	return imaging.Blur(scaled, Sigma(radius)), nil
}

// Compressed return the size of a width x height image scaled by
// compressScale, never smaller than 1x1.
func Compressed(width, height int, compressScale float64) (int, int) {
	w := int(math.Round(float64(width) * compressScale))
	h := int(math.Round(float64(height) * compressScale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}
