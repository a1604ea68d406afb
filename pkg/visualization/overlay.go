package visualization

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// captionHeight is the height of the strip reserved for the label.
const captionHeight = 20

// Annotate enlarges img by an integer factor with nearest-neighbour
// sampling, so every bin stays a sharp block, and writes label into a black
// strip below the map. The result is at least wide enough for the label.
func Annotate(img image.Image, label string, scale int) *image.RGBA {
	if scale < 1 {
		scale = 1
	}
	face := basicfont.Face7x13
	src := img.Bounds()
	mapW, mapH := src.Dx()*scale, src.Dy()*scale

	width := mapW
	if textW := font.MeasureString(face, label).Round() + 10; textW > width {
		width = textW
	}
	out := image.NewRGBA(image.Rect(0, 0, width, mapH+captionHeight))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.NearestNeighbor.Scale(out, image.Rect(0, 0, mapW, mapH), img, src, draw.Src, nil)

	d := &font.Drawer{
		Dst:  out,
		Src:  image.NewUniform(color.RGBA{220, 220, 220, 255}),
		Face: face,
		Dot:  fixed.P(5, mapH+15),
	}
	d.DrawString(label)
	return out
}
