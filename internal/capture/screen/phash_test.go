package screen

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

// checkerboard builds a deterministic high-contrast test frame.
func checkerboard(w, h, cell int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	return img
}

func TestPerceptualHashBitStable(t *testing.T) {
	img := checkerboard(640, 480, 40)
	h1 := PerceptualHash(img)
	h2 := PerceptualHash(checkerboard(640, 480, 40))
	assert.Equal(t, h1, h2, "same pixels must hash identically across runs")
	assert.Len(t, h1, 32, "md5 hex digest")
}

func TestPerceptualHashDetectsChange(t *testing.T) {
	base := checkerboard(640, 480, 40)
	inverted := checkerboard(640, 480, 40)
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			c := inverted.RGBAAt(x, y)
			inverted.SetRGBA(x, y, color.RGBA{R: 255 - c.R, G: 255 - c.G, B: 255 - c.B, A: 255})
		}
	}
	assert.NotEqual(t, PerceptualHash(base), PerceptualHash(inverted))
}

func TestPerceptualHashIgnoresScale(t *testing.T) {
	// The same scene at two resolutions downsamples to the same 16x16
	// grid, so the hashes match: resolution changes alone are not
	// "the screen changed".
	assert.Equal(t,
		PerceptualHash(checkerboard(320, 320, 20)),
		PerceptualHash(checkerboard(640, 640, 40)))
}

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"primary", "all", "specific", "combined"} {
		m, err := ParseMode(valid)
		assert.NoError(t, err)
		assert.EqualValues(t, valid, m)
	}

	m, err := ParseMode("")
	assert.NoError(t, err)
	assert.Equal(t, ModePrimary, m)

	_, err = ParseMode("everything")
	assert.Error(t, err)
}
