package processor

import (
	"fmt"
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/adjust"
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/buzzzzx/shanbor/internal/model"
)

// preset tints every pixel towards a color, blending in Lab space.
type preset struct {
	tint     colorful.Color
	strength float64
}

var presets = map[model.FilterKind]preset{
	model.FilterOceanic: {tint: mustHex("#00628b"), strength: 0.30},
	model.FilterIslands: {tint: mustHex("#3e9b6c"), strength: 0.25},
	model.FilterMarine:  {tint: mustHex("#0b3d91"), strength: 0.35},
}

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

func applyPreset(img image.Image, kind model.FilterKind) (image.Image, error) {
	if kind == model.FilterUnspecified {
		return img, nil
	}

	p, ok := presets[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown filter %s", ErrInvalidStep, kind)
	}

	return adjust.Apply(img, p.apply), nil
}

// apply works on alpha-premultiplied pixels as produced by bild.
func (p preset) apply(c color.RGBA) color.RGBA {
	src, ok := colorful.MakeColor(c)
	if !ok {
		return c
	}

	r, g, b := src.BlendLab(p.tint, p.strength).Clamped().RGB255()

	return color.RGBA{
		R: premultiply(r, c.A),
		G: premultiply(g, c.A),
		B: premultiply(b, c.A),
		A: c.A,
	}
}

func premultiply(v, a uint8) uint8 {
	return uint8(uint16(v) * uint16(a) / 0xff)
}
