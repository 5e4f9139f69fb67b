package tray

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

const iconSize = 32

// Icon renders the tray icon: a speaker with two sound waves.
func Icon() []byte {
	img := image.NewNRGBA(image.Rect(0, 0, iconSize, iconSize))
	ink := color.NRGBA{R: 0x2b, G: 0x8a, B: 0xd6, A: 0xff}

	// Speaker body and cone.
	fillRect(img, 4, 12, 10, 20, ink)
	for x := 10; x < 17; x++ {
		spread := x - 10
		fillRect(img, x, 12-spread, x+1, 20+spread, ink)
	}
	// Waves as concentric arcs right of the cone.
	for _, r := range []int{6, 10} {
		arc(img, 17, 16, r, ink)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func fillRect(img *image.NRGBA, x0, y0, x1, y1 int, c color.NRGBA) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}

// arc draws the right half of a two-pixel-thick ring centered on (cx, cy).
func arc(img *image.NRGBA, cx, cy, r int, c color.NRGBA) {
	outer, inner := (r+1)*(r+1), (r-1)*(r-1)
	for y := cy - r - 1; y <= cy+r+1; y++ {
		for x := cx + 1; x <= cx+r+1; x++ {
			dx, dy := x-cx, y-cy
			d := dx*dx + dy*dy
			if d <= outer && d >= inner && dx*2 > abs(dy) {
				img.SetNRGBA(x, y, c)
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
