package screens

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// NewFrame allocates a black frame of the panel's resolution.
func NewFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	return img
}

// DrawTextCentered draws s horizontally centered, offset vertically from
// the frame's middle by yOffset pixels.
func DrawTextCentered(img *image.RGBA, s string, yOffset int, c color.Color) {
	face := basicfont.Face7x13
	b := img.Bounds()

	width := font.MeasureString(face, s).Ceil()
	x := b.Min.X + (b.Dx()-width)/2
	y := b.Min.Y + b.Dy()/2 + yOffset + face.Metrics().Ascent.Ceil()/2

	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
