package preprocess

import (
	"image"
	"math/rand"

	"github.com/Brownie44l1/fashionai/internal/dataset"
)

// Tensor is a float32 image in HWC layout.
type Tensor struct {
	Height   int
	Width    int
	Channels int
	Data     []float32
}

// Shape returns the HWC shape.
func (t Tensor) Shape() []int64 {
	return []int64{int64(t.Height), int64(t.Width), int64(t.Channels)}
}

// CHW returns the data reordered channel-major, for models that expect NCHW input.
func (t Tensor) CHW() []float32 {
	plane := t.Height * t.Width
	out := make([]float32, len(t.Data))
	for i := 0; i < plane; i++ {
		for c := 0; c < t.Channels; c++ {
			out[c*plane+i] = t.Data[i*t.Channels+c]
		}
	}
	return out
}

// ToTensor converts img to HWC floats and subtracts ChannelMeans.
func ToTensor(img *image.RGBA) Tensor {
	b := img.Rect
	h, w := b.Dy(), b.Dx()
	data := make([]float32, h*w*Channels)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			i := (y*w + x) * Channels
			for c := 0; c < Channels; c++ {
				data[i+c] = float32(img.Pix[off+c]) - ChannelMeans[c]
			}
		}
	}

	return Tensor{Height: h, Width: w, Channels: Channels, Data: data}
}

// Stages holds every intermediate image of one preprocessing pass.
type Stages struct {
	Raw     *image.RGBA
	Resized *image.RGBA
	// Crops are the final spatial crops, flips included, before mean subtraction.
	Crops   []*image.RGBA
	Tensors []Tensor
}

// Trace runs the full pipeline for mode and keeps the intermediates.
//
// train: one random crop, flipped with probability 0.5.
// eval: one centered crop.
// predict: the five PredictCrops followed by their mirror images.
func Trace(raw []byte, mode dataset.Mode, rng *rand.Rand) (*Stages, error) {
	decoded, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	resized := ResizeMin(decoded, ResizeFloor)

	var crops []*image.RGBA
	switch mode {
	case dataset.ModeTrain:
		c, err := Crop(resized, CropRandom, Height, Width, rng)
		if err != nil {
			return nil, err
		}
		if rng.Float64() < 0.5 {
			c = FlipLeftRight(c)
		}
		crops = []*image.RGBA{c}
	case dataset.ModeEval:
		c, err := Crop(resized, CropCenter, Height, Width, rng)
		if err != nil {
			return nil, err
		}
		crops = []*image.RGBA{c}
	default:
		crops = make([]*image.RGBA, 0, 2*len(PredictCrops))
		for _, m := range PredictCrops {
			c, err := Crop(resized, m, Height, Width, rng)
			if err != nil {
				return nil, err
			}
			crops = append(crops, c)
		}
		for i := 0; i < len(PredictCrops); i++ {
			crops = append(crops, FlipLeftRight(crops[i]))
		}
	}

	tensors := make([]Tensor, len(crops))
	for i, c := range crops {
		tensors[i] = ToTensor(c)
	}

	return &Stages{Raw: decoded, Resized: resized, Crops: crops, Tensors: tensors}, nil
}

// Preprocess returns one tensor in train and eval modes and the ten-tensor
// CropSet in predict mode.
func Preprocess(raw []byte, mode dataset.Mode, rng *rand.Rand) ([]Tensor, error) {
	st, err := Trace(raw, mode, rng)
	if err != nil {
		return nil, err
	}
	return st.Tensors, nil
}
