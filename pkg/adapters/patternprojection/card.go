package patternprojection

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
)

// barColors are the SMPTE style colour bars of the test card.
var barColors = []color.RGBA{
	{0xc0, 0xc0, 0xc0, 0xff},
	{0xc0, 0xc0, 0x00, 0xff},
	{0x00, 0xc0, 0xc0, 0xff},
	{0x00, 0xc0, 0x00, 0xff},
	{0xc0, 0x00, 0xc0, 0xff},
	{0xc0, 0x00, 0x00, 0xff},
	{0x00, 0x00, 0xc0, 0xff},
}

// card renders the test card of one display.
type card struct {
	dc       *gg.Context
	width    int
	height   int
	density  float64
	label    string
	fontPath string
}

func newCard(width, height, density int, label, fontPath string) *card {
	if density <= 0 {
		density = 1
	}
	return &card{
		dc:       gg.NewContext(width, height),
		width:    width,
		height:   height,
		density:  float64(density),
		label:    label,
		fontPath: fontPath,
	}
}

// render draws frame n and returns the canvas image. The image is reused
// by the next call.
func (c *card) render(n int, at time.Time) image.Image {
	dc := c.dc
	w, h := float64(c.width), float64(c.height)

	dc.SetRGB(0, 0, 0)
	dc.Clear()

	barW := w / float64(len(barColors))
	for i, col := range barColors {
		dc.SetColor(col)
		dc.DrawRectangle(float64(i)*barW, 0, barW+1, h*0.7)
		dc.Fill()
	}

	// A sweeping marker makes every frame differ.
	x := math.Mod(float64(n)*4*c.density, w)
	dc.SetRGB(1, 1, 1)
	dc.DrawRectangle(x, h*0.7, 4*c.density, h*0.3)
	dc.Fill()

	radius := math.Min(w, h) * 0.2
	dc.SetLineWidth(2 * c.density)
	dc.DrawCircle(w/2, h*0.35, radius)
	dc.Stroke()

	if c.fontPath != "" {
		// The built in face is used when the font cannot be loaded.
		_ = dc.LoadFontFace(c.fontPath, 12*c.density)
	}
	dc.DrawStringAnchored(c.label, w/2, h*0.8, 0.5, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%s  #%d", at.Format("15:04:05.000"), n), w/2, h*0.9, 0.5, 0.5)

	return dc.Image()
}

// fit scales img to width x height. Images already at that size are
// returned unchanged.
func fit(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
