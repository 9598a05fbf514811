package screen

import (
	"crypto/md5"
	"encoding/hex"
	"image"

	xdraw "golang.org/x/image/draw"
)

// PerceptualHash computes the change-detection key for a frame: the
// image is downsampled to 16x16 grayscale, each pixel is compared
// against the mean, the 256 resulting bits are joined as an ASCII '0'/'1'
// string and digested with MD5 (hex). Equality of two hashes means the
// frames are visually near-identical; collisions on near-identical
// images are acceptable since this is a change filter, not an integrity
// check. MD5 is deliberate: the digest only needs to be cheap and
// stable, not cryptographic.
func PerceptualHash(img image.Image) string {
	const side = 16

	small := image.NewRGBA(image.Rect(0, 0, side, side))
	xdraw.ApproxBiLinear.Scale(small, small.Bounds(), img, img.Bounds(), xdraw.Src, nil)

	var gray [side * side]uint8
	var sum int
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			i := small.PixOffset(x, y)
			r, g, b := small.Pix[i], small.Pix[i+1], small.Pix[i+2]
			// ITU-R BT.601 luma, integer arithmetic.
			l := uint8((299*int(r) + 587*int(g) + 114*int(b)) / 1000)
			gray[y*side+x] = l
			sum += int(l)
		}
	}
	avg := sum / (side * side)

	bits := make([]byte, side*side)
	for i, l := range gray {
		if int(l) > avg {
			bits[i] = '1'
		} else {
			bits[i] = '0'
		}
	}

	digest := md5.Sum(bits)
	return hex.EncodeToString(digest[:])
}
