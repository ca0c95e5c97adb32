package slicer

import (
	"context"
	"runtime"

	"github.com/d0rc/geo-locator/dataset"
	"github.com/d0rc/geo-locator/metrics"
	"github.com/shirou/gopsutil/cpu"
	"golang.org/x/sync/errgroup"
)

type SliceFailure struct {
	Sample *dataset.Sample
	Err    error
}

type Result struct {
	// crops in input panorama order, the crops of one panorama are contiguous
	Samples  []*dataset.Sample
	Failures []SliceFailure
}

// ProgressStages are the counters SliceAll advances.
var ProgressStages = []metrics.Stage{
	{Title: "panoramas", Counter: "slicer.processed"},
	{Title: "failed", Counter: "slicer.failures"},
	{Title: "crops", Counter: "slicer.crops"},
}

func DefaultWorkers() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// SliceAll runs SlicePanorama over panos on a bounded pool. A failing panorama
// is recorded in Result.Failures and never stops its siblings, only context
// cancellation does.
func (s *Slicer) SliceAll(ctx context.Context, panos []*dataset.Sample, workers int) (*Result, error) {
	if workers <= 0 {
		workers = DefaultWorkers()
	}

	perPano := make([][]*dataset.Sample, len(panos))
	errs := make([]error, len(panos))

	metrics.SetTotal("slicer.processed", metrics.Get("slicer.processed")+int64(len(panos)))

	g := errgroup.Group{}
	g.SetLimit(workers)
	for idx, pano := range panos {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			crops, err := s.SlicePanorama(ctx, pano)
			metrics.Tick("slicer.processed", 1)
			if err != nil {
				metrics.Tick("slicer.failures", 1)
				s.lg.Error().Err(err).
					Str("image", pano.ImagePath).
					Msg("error slicing panorama")
				errs[idx] = err
				return nil
			}
			metrics.Tick("slicer.panoramas", 1)
			metrics.Tick("slicer.crops", int64(len(crops)))
			perPano[idx] = crops
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{
		Samples: make([]*dataset.Sample, 0, len(panos)*CropsPerPanorama),
	}
	for idx := range panos {
		if errs[idx] != nil {
			result.Failures = append(result.Failures, SliceFailure{Sample: panos[idx], Err: errs[idx]})
			continue
		}
		result.Samples = append(result.Samples, perPano[idx]...)
	}

	return result, nil
}

// SliceDataset slices every panorama of ds into a new dataset of crops.
func (s *Slicer) SliceDataset(ctx context.Context, ds *dataset.SampleDataset, workers int) (*dataset.SampleDataset, []SliceFailure, error) {
	result, err := s.SliceAll(ctx, ds.Samples, workers)
	if err != nil {
		return nil, nil, err
	}

	out := &dataset.SampleDataset{
		Info:    ds.Info,
		Samples: result.Samples,
	}
	out.Info.SliceCount = CropsPerPanorama
	out.Info.SampleCount = len(result.Samples)

	return out, result.Failures, nil
}
