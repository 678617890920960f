// Package imageprep turns image files into normalized model input tensors.
package imageprep

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultSize is the square input resolution the plant disease model expects.
const DefaultSize = 224

// Channels is the number of color channels fed to the model (RGB).
const Channels = 3

var (
	// ErrNotFound is returned when the image file does not exist.
	ErrNotFound = errors.New("image not found")
	// ErrDecode is returned when the image content cannot be decoded.
	ErrDecode = errors.New("image decode failed")
)

// Layout is the memory order of the produced tensor.
type Layout int

const (
	// NHWC is [batch, height, width, channels], the Keras default.
	NHWC Layout = iota
	// NCHW is [batch, channels, height, width].
	NCHW
)

func (l Layout) String() string {
	if l == NCHW {
		return "nchw"
	}
	return "nhwc"
}

// ParseLayout parses "nhwc" or "nchw" (case insensitive).
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nhwc":
		return NHWC, nil
	case "nchw":
		return NCHW, nil
	default:
		return NHWC, fmt.Errorf("unknown tensor layout %q", s)
	}
}

var interpolations = map[string]resize.InterpolationFunction{
	"nearest":  resize.NearestNeighbor,
	"bilinear": resize.Bilinear,
	"bicubic":  resize.Bicubic,
	"mitchell": resize.MitchellNetravali,
	"lanczos2": resize.Lanczos2,
	"lanczos3": resize.Lanczos3,
}

// ParseInterpolation maps a resampling name to its nfnt/resize function.
// An empty name selects nearest neighbour.
func ParseInterpolation(s string) (resize.InterpolationFunction, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		name = "nearest"
	}
	fn, ok := interpolations[name]
	if !ok {
		return resize.NearestNeighbor, fmt.Errorf("unknown interpolation %q", s)
	}
	return fn, nil
}

// Load opens and decodes the image at path.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Decode decodes an image from r and reports its format name.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, format, nil
}

// Preprocessor resizes images and converts them to float32 tensors in [0,1].
type Preprocessor struct {
	Size          int
	Layout        Layout
	Interpolation resize.InterpolationFunction
}

// New returns a Preprocessor producing size×size tensors.
func New(size int, layout Layout, interp resize.InterpolationFunction) Preprocessor {
	if size <= 0 {
		size = DefaultSize
	}
	return Preprocessor{Size: size, Layout: layout, Interpolation: interp}
}

// Default returns the 224×224 NHWC nearest-neighbour preprocessor.
func Default() Preprocessor {
	return New(DefaultSize, NHWC, resize.NearestNeighbor)
}

// size is Size, or DefaultSize for a zero Preprocessor.
func (p Preprocessor) size() int {
	if p.Size <= 0 {
		return DefaultSize
	}
	return p.Size
}

// Shape returns the single-image tensor shape.
func (p Preprocessor) Shape() []int64 {
	s := int64(p.size())
	if p.Layout == NCHW {
		return []int64{1, Channels, s, s}
	}
	return []int64{1, s, s, Channels}
}

// Len is the number of values Tensor produces.
func (p Preprocessor) Len() int {
	size := p.size()
	return Channels * size * size
}

// Tensor resizes img and returns its RGB values scaled to [0,1].
// Alpha is discarded.
func (p Preprocessor) Tensor(img image.Image) []float32 {
	size := p.size()
	resized := img
	b := img.Bounds()
	if b.Dx() != size || b.Dy() != size {
		resized = resize.Resize(uint(size), uint(size), img, p.Interpolation)
	}

	bounds := resized.Bounds()
	plane := size * size
	data := make([]float32, Channels*plane)

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := color.NRGBAModel.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			r := float32(c.R) / 255.0
			g := float32(c.G) / 255.0
			bl := float32(c.B) / 255.0

			idx := y*size + x
			if p.Layout == NCHW {
				data[idx] = r
				data[plane+idx] = g
				data[2*plane+idx] = bl
			} else {
				data[idx*Channels] = r
				data[idx*Channels+1] = g
				data[idx*Channels+2] = bl
			}
		}
	}

	return data
}

// LoadTensor loads the image at path and preprocesses it.
func (p Preprocessor) LoadTensor(path string) ([]float32, error) {
	img, err := Load(path)
	if err != nil {
		return nil, err
	}
	return p.Tensor(img), nil
}
