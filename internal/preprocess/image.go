// Package preprocess turns encoded images into fixed-size, mean-subtracted
// tensors: aspect-preserving resize to a 256 pixel short side, then a random,
// centered or five-way crop to 224x224.
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"math"
	"math/rand"

	"github.com/anthonynsimon/bild/transform"
	"github.com/nfnt/resize"

	apperrors "github.com/Brownie44l1/fashionai/internal/pkg/errors"
)

const (
	// ResizeFloor is the length of the shorter side after resizing.
	ResizeFloor = 256

	Height   = 224
	Width    = 224
	Channels = 3
)

// ChannelMeans are subtracted from the R, G and B channels.
var ChannelMeans = [Channels]float32{123.68, 116.78, 103.94}

// CropMethod names a spatial crop of the resized image.
type CropMethod string

const (
	CropCenter      CropMethod = "center"
	CropTopLeft     CropMethod = "topleft"
	CropTopRight    CropMethod = "topright"
	CropBottomLeft  CropMethod = "bottomleft"
	CropBottomRight CropMethod = "bottomright"
	CropRandom      CropMethod = "random"
)

// PredictCrops is the fixed crop order of a CropSet.
var PredictCrops = []CropMethod{CropCenter, CropTopLeft, CropTopRight, CropBottomLeft, CropBottomRight}

// ParseCropMethod maps a name to a CropMethod. Unknown names select a random crop.
func ParseCropMethod(s string) CropMethod {
	switch m := CropMethod(s); m {
	case CropCenter, CropTopLeft, CropTopRight, CropBottomLeft, CropBottomRight:
		return m
	default:
		return CropRandom
	}
}

// Decode decodes JPEG or PNG bytes into an RGBA image anchored at the origin.
func Decode(raw []byte) (*image.RGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, apperrors.DecodeError("cannot decode image", err)
	}
	return toRGBA(img), nil
}

// toRGBA returns img as a compact RGBA anchored at the origin.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) && rgba.Stride == 4*rgba.Rect.Dx() {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// ResizeMin scales img so its shorter side equals side, keeping the aspect ratio.
func ResizeMin(img image.Image, side int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var nw, nh int
	if h <= w {
		nh = side
		nw = int(math.Round(float64(w) * float64(side) / float64(h)))
	} else {
		nw = side
		nh = int(math.Round(float64(h) * float64(side) / float64(w)))
	}

	return toRGBA(resize.Resize(uint(nw), uint(nh), img, resize.Bilinear))
}

// Crop cuts an h x w window out of img. rng is only used by CropRandom.
func Crop(img *image.RGBA, method CropMethod, h, w int, rng *rand.Rand) (*image.RGBA, error) {
	H, W := img.Rect.Dy(), img.Rect.Dx()
	if H < h || W < w {
		return nil, apperrors.ValidationError("image smaller than crop size").
			WithDetail("size", fmt.Sprintf("%dx%d", W, H))
	}

	var top, left int
	switch method {
	case CropCenter:
		top, left = (H-h)/2, (W-w)/2
	case CropTopLeft:
		top, left = 0, 0
	case CropTopRight:
		top, left = 0, W-w
	case CropBottomLeft:
		top, left = H-h, 0
	case CropBottomRight:
		top, left = H-h, W-w
	default:
		top, left = rng.Intn(H-h+1), rng.Intn(W-w+1)
	}

	window := image.Rect(left, top, left+w, top+h).Add(img.Rect.Min)
	return toRGBA(transform.Crop(img, window)), nil
}

// FlipLeftRight mirrors img horizontally.
func FlipLeftRight(img *image.RGBA) *image.RGBA {
	return toRGBA(transform.FlipH(toRGBA(img)))
}

// EncodeJPEG encodes img for display.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
