package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/nfnt/resize"
)

// Decode reads a JPEG or PNG image.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error decoding image: %w", err)
	}
	return img, nil
}

func LoadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// ChannelCount is the number of channels the decoded image carries when
// turned into a tensor without conversion: gray and paletted images have
// one, images with an alpha channel or CMYK have four.
func ChannelCount(img image.Image) int {
	if _, ok := img.(*image.Paletted); ok {
		return 1
	}
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model, color.AlphaModel, color.Alpha16Model:
		return 1
	case color.NRGBAModel, color.NRGBA64Model, color.CMYKModel:
		return 4
	}
	return 3
}

// Resize scales the image to exactly width x height, images already at that
// size are returned as is.
func Resize(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	return resize.Resize(uint(width), uint(height), img, resize.Bilinear)
}
