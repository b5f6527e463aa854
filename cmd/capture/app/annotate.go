package app

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/roman-kulish/phenox-pilot/internal/phenox"
)

const (
	dpi     float64 = 72
	hinting string  = "full"
	size    float64 = 14
	spacing float64 = 1.1

	markerSize = 4
)

var markerColor = color.RGBA{R: 0xff, G: 0x30, B: 0x30, A: 0xff}

// CaptureInfo describes a frame for the info bar.
type CaptureInfo struct {
	Camera      phenox.CameraID
	Timestamp   time.Time
	FailedPolls int
	Features    []phenox.FeaturePoint
}

type Annotator struct {
	context *freetype.Context
}

func NewAnnotator() (*Annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	context := freetype.NewContext()
	context.SetDPI(dpi)
	context.SetFont(parsedFont)
	context.SetFontSize(size)
	context.SetSrc(image.White)

	switch hinting {
	case "full":
		context.SetHinting(font.HintingFull)
	default:
		context.SetHinting(font.HintingNone)
	}

	return &Annotator{context: context}, nil
}

// Scale enlarges a frame by an integer factor.
func Scale(src image.Image, factor int) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// Annotate draws feature markers and the info bar onto img, which is the
// frame scaled by factor.
func (a *Annotator) Annotate(img *image.RGBA, factor int, info *CaptureInfo) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func(*image.RGBA, int, *CaptureInfo) error
	}{
		{"drawing features", a.drawFeatures},
		{"drawing info", a.drawInfo},
	}
	for _, op := range ops {
		if err := op.fn(img, factor, info); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}

	return nil
}

func (a *Annotator) drawFeatures(img *image.RGBA, factor int, info *CaptureInfo) error {
	for _, p := range info.Features {
		px, py := int(p.RawX)*factor, int(p.RawY)*factor

		// draw a cross on the feature point
		for i := -markerSize; i <= markerSize; i++ {
			img.Set(px+i, py, markerColor)
			img.Set(px, py+i, markerColor)
		}
	}

	return nil
}

func (a *Annotator) drawInfo(img *image.RGBA, _ int, info *CaptureInfo) error {
	// positioning
	imgSize := img.Bounds().Size()
	top, left := imgSize.Y-int(math.Round(size*spacing*3)), 3

	// darken the bar so the text stays readable over bright frames
	bar := image.Rect(0, top-int(size), imgSize.X, imgSize.Y)
	draw.Draw(img, bar, image.NewUniform(color.RGBA{A: 0x90}), image.Point{}, draw.Over)

	strings := []string{
		fmt.Sprintf("Camera: %s, captured %s", info.Camera, humanize.Time(info.Timestamp)),
		"Time: " + info.Timestamp.Format(time.DateTime),
		fmt.Sprintf("Failed polls: %s, features: %s", humanize.Comma(int64(info.FailedPolls)), humanize.Comma(int64(len(info.Features)))),
	}

	// drawing
	pt := freetype.Pt(left, top)
	for _, s := range strings {
		if _, err := a.context.DrawString(s, pt); err != nil {
			return err
		}
		pt.Y += a.context.PointToFixed(size * spacing)
	}

	return nil
}
