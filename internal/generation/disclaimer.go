package generation

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/clone"
	"github.com/anthonynsimon/bild/transform"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/config"
)

var errImageTooSmall = errors.New("disclaimer: image too small for text")

// Disclaimer stamps a line of white text with a soft shadow into the
// bottom-right corner of an image.
type Disclaimer struct {
	Text     string
	FontSize int
	Padding  int
}

// NewDisclaimer returns nil when stamping is disabled.
func NewDisclaimer(cfg config.DisclaimerConfig) *Disclaimer {
	if !cfg.Enabled {
		return nil
	}
	d := &Disclaimer{Text: cfg.Text, FontSize: cfg.FontSize, Padding: cfg.Padding}
	if d.Text == "" {
		d.Text = config.DefaultDisclaimerText
	}
	if d.FontSize <= 0 {
		d.FontSize = 20
	}
	return d
}

// Stamp decodes data, draws the text and re-encodes it. PNG input stays PNG;
// everything else comes back as JPEG.
func (d *Disclaimer) Stamp(data []byte) ([]byte, string, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("disclaimer: decode: %w", err)
	}
	out := clone.AsRGBA(src)
	b := out.Bounds()

	label := d.label()
	lb := label.Bounds()
	scale := float64(d.FontSize) / float64(basicfont.Face7x13.Height)
	w, h := int(float64(lb.Dx())*scale), int(float64(lb.Dy())*scale)
	if maxW := b.Dx() - 2*d.Padding; w > maxW {
		// shrink to fit narrow images
		h = h * maxW / max(w, 1)
		w = maxW
	}
	if w < lb.Dx()/2 || h <= 0 || h > b.Dy()-2*d.Padding {
		return nil, "", errImageTooSmall
	}
	scaled := transform.Resize(label, w, h, transform.Linear)

	at := image.Pt(b.Max.X-d.Padding-w, b.Max.Y-d.Padding-h)
	draw.Draw(out, image.Rectangle{Min: at, Max: at.Add(image.Pt(w, h))}, scaled, image.Point{}, draw.Over)

	var buf bytes.Buffer
	if format == "png" {
		if err := png.Encode(&buf, out); err != nil {
			return nil, "", fmt.Errorf("disclaimer: encode: %w", err)
		}
		return buf.Bytes(), "image/png", nil
	}
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: 95}); err != nil {
		return nil, "", fmt.Errorf("disclaimer: encode: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}

// label renders the text at the face's native size on a transparent canvas:
// a blurred black copy offset by one pixel, then the white text over it.
func (d *Disclaimer) label() *image.RGBA {
	face := basicfont.Face7x13
	const margin = 3
	width := font.MeasureString(face, d.Text).Ceil() + 2*margin
	height := face.Height + 2*margin
	ascent := face.Ascent + margin

	shadow := image.NewRGBA(image.Rect(0, 0, width, height))
	(&font.Drawer{Dst: shadow, Src: image.NewUniform(color.Black), Face: face, Dot: fixed.P(margin+1, ascent+1)}).DrawString(d.Text)
	canvas := blur.Gaussian(shadow, 1)

	(&font.Drawer{Dst: canvas, Src: image.NewUniform(color.White), Face: face, Dot: fixed.P(margin, ascent)}).DrawString(d.Text)
	return canvas
}
