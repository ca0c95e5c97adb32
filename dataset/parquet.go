package dataset

import (
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

type ParquetSample struct {
	Id                  string  `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	ImagePath           string  `parquet:"name=image_path, type=BYTE_ARRAY, convertedtype=UTF8"`
	AbsoluteImagePath   string  `parquet:"name=absolute_image_path, type=BYTE_ARRAY, convertedtype=UTF8"`
	Lon                 float64 `parquet:"name=lon, type=DOUBLE"`
	Lat                 float64 `parquet:"name=lat, type=DOUBLE"`
	Altitude            float64 `parquet:"name=altitude, type=DOUBLE"`
	HeadingAngle        float64 `parquet:"name=heading_angle, type=DOUBLE"`
	StreetName          string  `parquet:"name=street_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	ArtifactProbability float64 `parquet:"name=artifact_probability, type=DOUBLE"`
}

const parquetParallelism = 4

// ExportParquet writes one row per sample, keyed by its vector store id.
func ExportParquet(path string, ds *SampleDataset) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("error creating parquet file %s: %w", path, err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(ParquetSample), parquetParallelism)
	if err != nil {
		return fmt.Errorf("error creating parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, s := range ds.Samples {
		row := ParquetSample{
			Id:                  BuildUniqueSampleId(s),
			ImagePath:           s.ImagePath,
			AbsoluteImagePath:   s.AbsoluteImagePath,
			Lon:                 s.Lon,
			Lat:                 s.Lat,
			Altitude:            s.Altitude,
			HeadingAngle:        s.HeadingAngle,
			StreetName:          s.StreetName,
			ArtifactProbability: s.ArtifactProbability,
		}
		if err = pw.Write(row); err != nil {
			return fmt.Errorf("error writing parquet row %s: %w", s.ImagePath, err)
		}
	}

	if err = pw.WriteStop(); err != nil {
		return fmt.Errorf("error finishing parquet file %s: %w", path, err)
	}

	return nil
}

func ReadParquet(path string) ([]ParquetSample, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("error opening parquet file %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(ParquetSample), parquetParallelism)
	if err != nil {
		return nil, fmt.Errorf("error creating parquet reader: %w", err)
	}
	defer pr.ReadStop()

	rows := make([]ParquetSample, int(pr.GetNumRows()))
	if err = pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("error reading parquet rows: %w", err)
	}

	return rows, nil
}
