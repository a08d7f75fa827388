package overlay

import (
	"image"
	"image/color"
	"image/draw"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/fzipp/bmfont"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Font draws single lines of text onto an RGBA canvas.
type Font interface {
	// DrawString draws text with its top left corner at pt and returns the
	// advance in pixels.
	DrawString(dst *image.RGBA, pt image.Point, text string, c color.Color) int
	LineHeight() int
}

type glyph struct {
	bounds   image.Rectangle
	offset   image.Point
	xAdvance int
	page     int
}

type kerningPair struct {
	first, second rune
}

// BitmapFont is an AngelCode BMFont with its page sheets decoded.
type BitmapFont struct {
	Face       string
	lineHeight int
	glyphs     map[rune]glyph
	kernings   map[kerningPair]int
	pages      map[int]image.Image
}

// LoadBitmapFont reads a .fnt descriptor and the page images next to it.
func LoadBitmapFont(path string) (*BitmapFont, error) {
	f, err := bmfont.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load bitmap font %s", path)
	}
	desc := f.Descriptor

	bf := &BitmapFont{
		Face:       desc.Info.Face,
		lineHeight: int(desc.Common.LineHeight),
		glyphs:     make(map[rune]glyph, len(desc.Chars)),
		kernings:   make(map[kerningPair]int, len(desc.Kerning)),
		pages:      make(map[int]image.Image, len(desc.Pages)),
	}
	for _, g := range desc.Chars {
		x, y := int(g.X), int(g.Y)
		bf.glyphs[rune(g.ID)] = glyph{
			bounds:   image.Rect(x, y, x+int(g.Width), y+int(g.Height)),
			offset:   image.Pt(int(g.XOffset), int(g.YOffset)),
			xAdvance: int(g.XAdvance),
			page:     int(g.Page),
		}
	}
	for pair, k := range desc.Kerning {
		bf.kernings[kerningPair{rune(pair.First), rune(pair.Second)}] = int(k.Amount)
	}

	dir := filepath.Dir(path)
	for _, p := range desc.Pages {
		img, err := decodeImage(filepath.Join(dir, p.File))
		if err != nil {
			return nil, errors.Wrapf(err, "font page %d", p.ID)
		}
		bf.pages[int(p.ID)] = img
	}
	return bf, nil
}

func decodeImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	return img, err
}

func (f *BitmapFont) LineHeight() int {
	return f.lineHeight
}

// DrawString draws text tinted with c. Page sheets are used as coverage
// masks, so white-on-transparent fonts work best.
func (f *BitmapFont) DrawString(dst *image.RGBA, pt image.Point, text string, c color.Color) int {
	src := image.NewUniform(c)
	x := pt.X
	prev := rune(-1)
	for _, r := range text {
		g, ok := f.glyphs[r]
		if !ok {
			g, ok = f.glyphs['?']
			if !ok {
				continue
			}
		}
		if prev >= 0 {
			x += f.kernings[kerningPair{prev, r}]
		}
		if page, ok := f.pages[g.page]; ok {
			at := image.Pt(x, pt.Y).Add(g.offset)
			target := image.Rectangle{Min: at, Max: at.Add(g.bounds.Size())}
			draw.DrawMask(dst, target, src, image.Point{}, page, g.bounds.Min, draw.Over)
		}
		x += g.xAdvance
		prev = r
	}
	return x - pt.X
}

// fixedFont renders with the built in 7x13 face. It is used when no
// bitmap font is configured.
type fixedFont struct {
	face font.Face
}

// DefaultFont returns a font that needs no files.
func DefaultFont() Font {
	return fixedFont{face: basicfont.Face7x13}
}

func (f fixedFont) LineHeight() int {
	return f.face.Metrics().Height.Ceil()
}

func (f fixedFont) DrawString(dst *image.RGBA, pt image.Point, text string, c color.Color) int {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: f.face,
		Dot:  fixed.P(pt.X, pt.Y+f.face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
	return (d.Dot.X - fixed.I(pt.X)).Ceil()
}

// upscale enlarges src by an integer factor without filtering.
func upscale(src *image.RGBA, factor int) *image.RGBA {
	if factor <= 1 {
		return src
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}
