package slicer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"math"
	"path"
	"path/filepath"
	"strings"

	"github.com/d0rc/geo-locator/dataset"
	image_store "github.com/d0rc/geo-locator/image-store"
	"github.com/d0rc/geo-locator/imaging"
	"github.com/d0rc/geo-locator/settings"
	"github.com/rs/zerolog"
)

const (
	DefaultPanoWidth = 3328
	DefaultCropSize  = 512

	CropStepDegrees  = 30
	CropsPerPanorama = 360 / CropStepDegrees

	// the centre column of a panorama looks opposite to the capture heading
	PanoCenterOffsetDegrees = 180

	ImagesDir = "Images"
)

var ErrInvalidHeading = errors.New("invalid heading")

// DimensionMismatchError is returned for panoramas which are not W x H with three channels.
type DimensionMismatchError struct {
	Path     string
	Expected [3]int
	Actual   [3]int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch for %s: expected %dx%dx%d, got %dx%dx%d",
		e.Path,
		e.Expected[0], e.Expected[1], e.Expected[2],
		e.Actual[0], e.Actual[1], e.Actual[2])
}

// ValidateHeading truncates heading to whole degrees and checks it lies in [0, 360].
func ValidateHeading(heading float64) (int, error) {
	if math.IsNaN(heading) || math.IsInf(heading, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidHeading, heading)
	}
	h := int(heading)
	if h < 0 || h > 360 {
		return 0, fmt.Errorf("%w: %v is outside [0, 360]", ErrInvalidHeading, heading)
	}
	return h, nil
}

func NorthHeading(panoHeading int) int {
	return ((PanoCenterOffsetDegrees-panoHeading)%360 + 360) % 360
}

// HeadingOffset is the column of the panorama looking north.
func HeadingOffset(panoHeading, panoWidth int) int {
	return NorthHeading(panoHeading) * panoWidth / 360
}

// CropOffset is the first column of the crop looking at cropHeading.
func CropOffset(panoHeading, cropHeading, panoWidth int) int {
	return (HeadingOffset(panoHeading, panoWidth) + cropHeading*panoWidth/360) % panoWidth
}

func CropHeadings() []int {
	headings := make([]int, 0, CropsPerPanorama)
	for h := 0; h < 360; h += CropStepDegrees {
		headings = append(headings, h)
	}
	return headings
}

// CropName returns the manifest-relative path of a crop, Images/<stem>_crop_<heading>.jpg.
func CropName(parentPath string, cropHeading int) string {
	base := filepath.Base(filepath.FromSlash(parentPath))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return path.Join(ImagesDir, fmt.Sprintf("%s_crop_%03d.jpg", stem, cropHeading))
}

type Crop struct {
	Heading int
	Offset  int
	Image   *image.RGBA
}

// Crops cuts a panorama of width panoWidth into CropsPerPanorama square
// windows of the panorama height, wrapping around the right edge.
func Crops(img image.Image, panoHeading float64, panoWidth, cropSize int) ([]Crop, error) {
	h, err := ValidateHeading(panoHeading)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	channels := imaging.ChannelCount(img)
	if bounds.Dx() != panoWidth || bounds.Dy() != cropSize || channels != 3 {
		return nil, &DimensionMismatchError{
			Expected: [3]int{panoWidth, cropSize, 3},
			Actual:   [3]int{bounds.Dx(), bounds.Dy(), channels},
		}
	}

	doubled := image.NewRGBA(image.Rect(0, 0, 2*panoWidth, cropSize))
	draw.Draw(doubled, image.Rect(0, 0, panoWidth, cropSize), img, bounds.Min, draw.Src)
	draw.Draw(doubled, image.Rect(panoWidth, 0, 2*panoWidth, cropSize), img, bounds.Min, draw.Src)

	crops := make([]Crop, 0, CropsPerPanorama)
	for _, cropHeading := range CropHeadings() {
		offset := CropOffset(h, cropHeading, panoWidth)
		window := doubled.SubImage(image.Rect(offset, 0, offset+cropSize, cropSize)).(*image.RGBA)
		if window.Bounds().Dx() != cropSize || window.Bounds().Dy() != cropSize {
			return nil, &DimensionMismatchError{
				Expected: [3]int{cropSize, cropSize, 3},
				Actual:   [3]int{window.Bounds().Dx(), window.Bounds().Dy(), 3},
			}
		}
		crops = append(crops, Crop{Heading: cropHeading, Offset: offset, Image: window})
	}

	return crops, nil
}

type Slicer struct {
	settings *settings.SlicerConfigurationSection
	sink     image_store.Store
	lg       zerolog.Logger
}

func NewSlicer(config *settings.SlicerConfigurationSection, sink image_store.Store, lg zerolog.Logger) *Slicer {
	return &Slicer{
		settings: config,
		sink:     sink,
		lg:       lg,
	}
}

// SlicePanorama cuts one panorama, stores the crops and returns their samples.
func (s *Slicer) SlicePanorama(ctx context.Context, pano *dataset.Sample) ([]*dataset.Sample, error) {
	img, err := imaging.LoadImage(pano.AbsoluteImagePath)
	if err != nil {
		return nil, err
	}

	crops, err := Crops(img, pano.HeadingAngle, s.settings.PanoWidth, s.settings.CropSize)
	if err != nil {
		var dimErr *DimensionMismatchError
		if errors.As(err, &dimErr) {
			dimErr.Path = pano.AbsoluteImagePath
		}
		return nil, err
	}

	quality := s.settings.JpegQuality
	if quality <= 0 {
		quality = jpeg.DefaultQuality
	}

	samples := make([]*dataset.Sample, 0, len(crops))
	for _, crop := range crops {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		buf := bytes.Buffer{}
		if err := jpeg.Encode(&buf, crop.Image, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("error encoding crop %d of %s: %w", crop.Heading, pano.ImagePath, err)
		}

		name := CropName(pano.ImagePath, crop.Heading)
		if err := s.sink.Put(ctx, name, buf.Bytes()); err != nil {
			return nil, fmt.Errorf("error storing %s: %w", name, err)
		}

		samples = append(samples, pano.Crop(name, s.sink.Location(name), float64(crop.Heading)))
	}

	return samples, nil
}
