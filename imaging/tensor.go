package imaging

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
)

const (
	TensorChannels = 3
	TensorSize     = 512
	// 1 x 3 x 512 x 512
	TensorElements = TensorChannels * TensorSize * TensorSize
)

var ErrInvalidTensor = errors.New("invalid image tensor")

// ImageNet statistics the place recognition backbones were trained with.
var (
	Mean = [TensorChannels]float32{0.485, 0.456, 0.406}
	Std  = [TensorChannels]float32{0.229, 0.224, 0.225}
)

// ToTensor resizes the image to size x size and lays it out as a normalized
// CHW float32 tensor.
func ToTensor(img image.Image, size int) []float32 {
	resized := Resize(dropAlpha(img), size, size)
	b := resized.Bounds()
	plane := size * size
	tensor := make([]float32, TensorChannels*plane)

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, bl, _ := resized.At(b.Min.X+x, b.Min.Y+y).RGBA()
			idx := y*size + x
			tensor[idx] = (float32(r>>8)/255 - Mean[0]) / Std[0]
			tensor[plane+idx] = (float32(g>>8)/255 - Mean[1]) / Std[1]
			tensor[2*plane+idx] = (float32(bl>>8)/255 - Mean[2]) / Std[2]
		}
	}

	return tensor
}

// EncodeTensor serializes the tensor as base64 over raw little-endian float32.
func EncodeTensor(tensor []float32) string {
	buf := make([]byte, 4*len(tensor))
	for i, v := range tensor {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeTensor reverses EncodeTensor, the buffer must hold exactly elements floats.
func DecodeTensor(encoded string, elements int) ([]float32, error) {
	buf, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTensor, err)
	}
	if len(buf) != 4*elements {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidTensor, 4*elements, len(buf))
	}

	tensor := make([]float32, elements)
	for i := range tensor {
		tensor[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return tensor, nil
}

type opaque interface {
	Opaque() bool
}

// dropAlpha keeps the straight colour of every pixel and discards transparency.
func dropAlpha(img image.Image) image.Image {
	if o, ok := img.(opaque); ok && o.Opaque() {
		return img
	}

	b := img.Bounds()
	flat := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			flat.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return flat
}
