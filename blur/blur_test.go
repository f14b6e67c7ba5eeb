package blur

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidation(t *testing.T) {
	src := imaging.New(10, 10, color.White)

	_, err := Blur(nil, 5, 0.5)
	require.ErrorIs(t, err, ErrNilImage)

	for _, radius := range []int{-1, 0, 26, 100} {
		_, err = Blur(src, radius, 0.5)
		require.ErrorIs(t, err, ErrInvalidRadius, "radius %d", radius)
	}

	for _, scale := range []float64{-0.5, 0, 1.01, 2} {
		_, err = Blur(src, 5, scale)
		require.ErrorIs(t, err, ErrInvalidScale, "scale %v", scale)
	}

	_, err = Blur(image.NewNRGBA(image.Rect(0, 0, 0, 0)), 5, 0.5)
	require.ErrorIs(t, err, ErrEmptyImage)
}

func TestBoundaryValues(t *testing.T) {
	src := imaging.New(8, 8, color.White)

	for _, radius := range []int{MinRadius, MaxRadius} {
		out, err := Blur(src, radius, 1)
		require.NoError(t, err)
		require.Equal(t, src.Bounds().Size(), out.Bounds().Size())
	}
}

func TestCompressedSize(t *testing.T) {
	cases := []struct {
		w, h  int
		scale float64
		ew    int
		eh    int
	}{
		{100, 50, 0.5, 50, 25},
		{3, 3, 0.5, 2, 2},
		{640, 480, 0.2, 128, 96},
		{4, 4, 0.01, 1, 1},
	}
	for _, c := range cases {
		out, err := Blur(imaging.New(c.w, c.h, color.Black), 3, c.scale)
		require.NoError(t, err)
		assert.Equal(t, c.ew, out.Bounds().Dx(), "%dx%d at %v", c.w, c.h, c.scale)
		assert.Equal(t, c.eh, out.Bounds().Dy(), "%dx%d at %v", c.w, c.h, c.scale)
	}
}

func TestUniformImage(t *testing.T) {
	fill := color.NRGBA{R: 200, G: 100, B: 50, A: 255}
	out, err := Blur(imaging.New(20, 20, fill), 10, 1)
	require.NoError(t, err)

	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			c := out.NRGBAAt(x, y)
			assert.InDelta(t, fill.R, c.R, 1)
			assert.InDelta(t, fill.G, c.G, 1)
			assert.InDelta(t, fill.B, c.B, 1)
		}
	}
}

func TestEdgeSmoothed(t *testing.T) {
	// left half black, right half white.
	src := imaging.New(20, 4, color.Black)
	for y := 0; y < 4; y++ {
		for x := 10; x < 20; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}

	out, err := Blur(src, 5, 1)
	require.NoError(t, err)

	left, right := out.NRGBAAt(9, 2).R, out.NRGBAAt(10, 2).R
	assert.Greater(t, left, uint8(0))
	assert.Less(t, right, uint8(255))
	assert.Less(t, left, right)
}

func TestSigma(t *testing.T) {
	assert.InDelta(t, 1.0, Sigma(1), 1e-9)
	assert.InDelta(t, 10.6, Sigma(25), 1e-9)
}
