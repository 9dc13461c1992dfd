// Package icons composes the "answered" variant of site icons.
package icons

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/pario-ai/sxsearch/pkg/errs"
)

// DefaultCheckMarkSize is the edge length of the rendered check-mark overlay.
const DefaultCheckMarkSize = 128

// Compositor draws an overlay on top of a base image.
type Compositor interface {
	Overlay(basePath, overlayPath, destPath string) error
}

// PNGCompositor scales the overlay to the base's bounds, draws it over the
// base and writes the result as PNG.
type PNGCompositor struct{}

// Overlay implements Compositor.
func (PNGCompositor) Overlay(basePath, overlayPath, destPath string) error {
	base, err := decodeFile(basePath)
	if err != nil {
		return err
	}
	overlay, err := decodeFile(overlayPath)
	if err != nil {
		return err
	}

	bounds := base.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), base, bounds.Min, draw.Src)
	draw.Draw(out, out.Bounds(), scale(overlay, out.Bounds()), image.Point{}, draw.Over)

	return writePNG(destPath, out)
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.IO("open image", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errs.IO("decode image", fmt.Errorf("%s: %w", path, err))
	}
	return img, nil
}

// scale resizes src to r with nearest-neighbour sampling.
func scale(src image.Image, r image.Rectangle) image.Image {
	sb := src.Bounds()
	if sb.Dx() == r.Dx() && sb.Dy() == r.Dy() {
		return src
	}
	dst := image.NewNRGBA(r)
	for y := 0; y < r.Dy(); y++ {
		sy := sb.Min.Y + y*sb.Dy()/r.Dy()
		for x := 0; x < r.Dx(); x++ {
			sx := sb.Min.X + x*sb.Dx()/r.Dx()
			dst.Set(r.Min.X+x, r.Min.Y+y, src.At(sx, sy))
		}
	}
	return dst
}

func writePNG(path string, img image.Image) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.IO("create icon dir", err)
	}
	tmp, err := os.CreateTemp(dir, ".png-*")
	if err != nil {
		return errs.IO("create icon file", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return errs.IO("encode png", err)
	}
	if err := tmp.Close(); err != nil {
		return errs.IO("write png", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errs.IO("save png", err)
	}
	return nil
}

// EnsureCheckMark renders the check-mark overlay to path unless it exists.
func EnsureCheckMark(path string, size int) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return errs.IO("stat check mark", err)
	}
	if size <= 0 {
		size = DefaultCheckMarkSize
	}
	return writePNG(path, CheckMark(size))
}

var (
	badgeGreen = color.NRGBA{R: 0x2f, G: 0x9e, B: 0x44, A: 0xff}
	tickWhite  = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// CheckMark draws a transparent square with a green badge and a white tick
// in the bottom-right corner.
func CheckMark(size int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))

	s := float64(size)
	cx, cy, radius := 0.72*s, 0.72*s, 0.26*s
	width := 0.16

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			// badge-relative coordinates, unit radius
			u := (float64(x) + 0.5 - cx) / radius
			v := (float64(y) + 0.5 - cy) / radius
			if u*u+v*v > 1 {
				continue
			}
			if segmentDist(u, v, -0.5, 0.0, -0.15, 0.35) < width ||
				segmentDist(u, v, -0.15, 0.35, 0.5, -0.35) < width {
				img.SetNRGBA(x, y, tickWhite)
				continue
			}
			img.SetNRGBA(x, y, badgeGreen)
		}
	}
	return img
}

// segmentDist is the distance from (px, py) to the segment (ax, ay)-(bx, by).
func segmentDist(px, py, ax, ay, bx, by float64) float64 {
	dx, dy := bx-ax, by-ay
	t := ((px-ax)*dx + (py-ay)*dy) / (dx*dx + dy*dy)
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(px-(ax+t*dx), py-(ay+t*dy))
}
