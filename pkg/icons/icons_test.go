package icons

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/sxsearch/pkg/errs"
)

var red = color.NRGBA{R: 0xff, A: 0xff}

func writeSolid(t *testing.T, path string, size int, c color.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func readPNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	return img
}

func TestEnsureCheckMark(t *testing.T) {
	path := filepath.Join(t.TempDir(), "icons", "check.png")
	require.NoError(t, EnsureCheckMark(path, 64))

	img := readPNG(t, path)
	assert.Equal(t, 64, img.Bounds().Dx())

	_, _, _, a := img.At(0, 0).RGBA()
	assert.Zero(t, a, "top-left corner is transparent")
	_, _, _, a = img.At(46, 46).RGBA()
	assert.NotZero(t, a, "badge is drawn")

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, EnsureCheckMark(path, 256))
	again, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), again.Size(), "existing overlay is kept")
}

func TestOverlay(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "so.png")
	overlay := filepath.Join(dir, "check.png")
	dest := filepath.Join(dir, "so-answered.png")

	writeSolid(t, base, 32, red)
	require.NoError(t, EnsureCheckMark(overlay, 128))

	require.NoError(t, PNGCompositor{}.Overlay(base, overlay, dest))

	img := readPNG(t, dest)
	assert.Equal(t, image.Rect(0, 0, 32, 32), img.Bounds())
	assert.Equal(t, red, color.NRGBAModel.Convert(img.At(1, 1)))
	assert.NotEqual(t, red, color.NRGBAModel.Convert(img.At(23, 23)))
}

func TestOverlayMissingBase(t *testing.T) {
	dir := t.TempDir()
	overlay := filepath.Join(dir, "check.png")
	require.NoError(t, EnsureCheckMark(overlay, 16))

	err := PNGCompositor{}.Overlay(filepath.Join(dir, "nope.png"), overlay, filepath.Join(dir, "out.png"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrIO))
	assert.NoFileExists(t, filepath.Join(dir, "out.png"))
}

func TestOverlayUndecodableBase(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(base, []byte("not an image"), 0o644))
	overlay := filepath.Join(dir, "check.png")
	require.NoError(t, EnsureCheckMark(overlay, 16))

	err := PNGCompositor{}.Overlay(base, overlay, filepath.Join(dir, "out.png"))
	assert.True(t, errors.Is(err, errs.ErrIO))
}
