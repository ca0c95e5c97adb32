package dataset

// Sample is a single geolocated image: a full panorama or one of its crops.
type Sample struct {
	ImagePath           string  `json:"ImagePath"`
	Lon                 float64 `json:"Lon"`
	Lat                 float64 `json:"Lat"`
	Altitude            float64 `json:"Altitude"`
	HeadingAngle        float64 `json:"HeadingAngle"`
	StreetName          string  `json:"StreetName"`
	ArtifactProbability float64 `json:"ArtifactProbability"`

	// derived at runtime, never written back into a manifest
	IsActive          bool      `json:"-"`
	Descriptor        []float32 `json:"-"`
	AbsoluteImagePath string    `json:"-"`
}

type Coordinates struct {
	Lon float64 `json:"Lon"`
	Lat float64 `json:"Lat"`
}

type DatasetInfo struct {
	SampleDistance  float64       `json:"SampleDistance"`
	SliceCount      int           `json:"SliceCount"`
	SampleCount     int           `json:"SampleCount"`
	BoundingPolygon []Coordinates `json:"BoundingPolygon"`
}

type SampleDataset struct {
	Info    DatasetInfo `json:"Info"`
	Samples []*Sample   `json:"Samples"`
}

// Crop copies everything but the image location and heading into a new sample.
func (s *Sample) Crop(imagePath, absoluteImagePath string, heading float64) *Sample {
	return &Sample{
		ImagePath:           imagePath,
		AbsoluteImagePath:   absoluteImagePath,
		HeadingAngle:        heading,
		Lon:                 s.Lon,
		Lat:                 s.Lat,
		Altitude:            s.Altitude,
		StreetName:          s.StreetName,
		ArtifactProbability: s.ArtifactProbability,
		IsActive:            true,
	}
}
