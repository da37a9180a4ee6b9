// Package imageio converts between image files and the float rasters used
// by the optimizers.
package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	xdraw "golang.org/x/image/draw"

	"github.com/roach88/orbitsplat/internal/ir"
)

// FromImage converts img to an RGB raster. Alpha is dropped.
func FromImage(img image.Image) *ir.Image {
	b := img.Bounds()
	out := ir.NewImage(b.Dx(), b.Dy())
	for y := range b.Dy() {
		for x := range b.Dx() {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			out.Set(x, y, [3]float32{float32(c.R) / 255, float32(c.G) / 255, float32(c.B) / 255})
		}
	}
	return out
}

// MaskFromImage reads coverage from img: the alpha channel when the image
// has transparency, otherwise its luminance.
func MaskFromImage(img image.Image) *ir.Mask {
	b := img.Bounds()
	out := ir.NewMask(b.Dx(), b.Dy())
	opaque := isOpaque(img)
	for y := range b.Dy() {
		for x := range b.Dx() {
			px := img.At(b.Min.X+x, b.Min.Y+y)
			var v float32
			if opaque {
				g := color.GrayModel.Convert(px).(color.Gray)
				v = float32(g.Y) / 255
			} else {
				_, _, _, a := px.RGBA()
				v = float32(a) / 0xffff
			}
			out.Set(x, y, v)
		}
	}
	return out
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return true
}

// ToImage converts a raster to 8-bit RGBA, clamping to [0, 1].
func ToImage(im *ir.Image) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, im.Width, im.Height))
	for y := range im.Height {
		for x := range im.Width {
			c := im.At(x, y)
			out.SetNRGBA(x, y, color.NRGBA{R: to8(c[0]), G: to8(c[1]), B: to8(c[2]), A: 255})
		}
	}
	return out
}

func to8(v float32) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, float64(v))) * 255))
}

// Resize resamples im to width x height with Catmull-Rom filtering.
func Resize(im *ir.Image, width, height int) *ir.Image {
	if im.Width == width && im.Height == height {
		return im.Clone()
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), ToImage(im), image.Rect(0, 0, im.Width, im.Height), xdraw.Src, nil)
	return FromImage(dst)
}

// ResizeMask resamples m to width x height with bilinear filtering.
func ResizeMask(m *ir.Mask, width, height int) *ir.Mask {
	if m.Width == width && m.Height == height {
		out := ir.NewMask(width, height)
		copy(out.Pix, m.Pix)
		return out
	}
	src := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Pix {
		src.Pix[i] = to8(v)
	}
	dst := image.NewGray(image.Rect(0, 0, width, height))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	out := ir.NewMask(width, height)
	for i, v := range dst.Pix {
		out.Pix[i] = float32(v) / 255
	}
	return out
}

// Decode reads a PNG or JPEG image.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	return img, err
}

// EncodePNG writes im as PNG.
func EncodePNG(w io.Writer, im *ir.Image) error {
	return png.Encode(w, ToImage(im))
}

// LoadImage reads an image file into an RGB raster.
func LoadImage(path string) (*ir.Image, error) {
	img, err := open(path)
	if err != nil {
		return nil, err
	}
	return FromImage(img), nil
}

// LoadMask reads an image file into a coverage mask.
func LoadMask(path string) (*ir.Mask, error) {
	img, err := open(path)
	if err != nil {
		return nil, err
	}
	return MaskFromImage(img), nil
}

// SavePNG writes im to path, creating parent directories.
func SavePNG(path string, im *ir.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodePNG(f, im); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

func open(path string) (image.Image, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ir.NewUserInputError(ir.ErrCodeFileNotFound, "image not found", map[string]string{"path": path})
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := Decode(f)
	if err != nil {
		return nil, ir.NewUserInputError(ir.ErrCodeInvalidInput,
			fmt.Sprintf("decode image: %v", err), map[string]string{"path": path})
	}
	return img, nil
}

// ListImages returns the .png, .jpg and .jpeg files in dir sorted by name,
// which defines the reference image order.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ir.NewUserInputError(ir.ErrCodeFileNotFound, "image directory not found", map[string]string{"path": dir})
	}
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
