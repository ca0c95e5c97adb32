package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/d0rc/geo-locator/dataset"
	image_store "github.com/d0rc/geo-locator/image-store"
	"github.com/d0rc/geo-locator/metrics"
	"github.com/d0rc/geo-locator/settings"
	"github.com/d0rc/geo-locator/slicer"
	"github.com/d0rc/geo-locator/utils"
	"github.com/dustin/go-humanize"
	"github.com/logrusorgru/aurora"
)

var configPath = flag.String("config", "", "path to the configuration file, defaults are used when empty")
var datasetPath = flag.String("dataset", "", "panorama dataset manifest (.json or .json.xz)")
var outputPath = flag.String("output", "", "output folder for the sliced dataset")
var workers = flag.Int("workers", 0, "number of slicing workers, logical CPUs when 0")
var progressInterval = flag.Int("progress-interval", 5000, "interval to print progress (ms), 0 disables")

func main() {
	flag.Parse()
	lg := utils.ConsoleInit("process-panos")

	if *datasetPath == "" || *outputPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	config, err := settings.ProcessConfigurationFile(*configPath)
	if err != nil {
		lg.Fatal().Err(err).Msg("error loading configuration")
	}
	if *workers == 0 {
		*workers = config.Slicer.Workers
	}

	panos, err := dataset.LoadDataset(*datasetPath)
	if err != nil {
		lg.Fatal().Err(err).Msg("error loading dataset")
	}

	if err := os.MkdirAll(*outputPath, 0o755); err != nil {
		lg.Fatal().Err(err).Msg("error creating output folder")
	}

	sink, err := image_store.NewFromConfig(&config.ObjectStore, *outputPath)
	if err != nil {
		lg.Fatal().Err(err).Msg("error creating image store")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	lg.Info().
		Int("panoramas", len(panos.Samples)).
		Str("output", *outputPath).
		Msg("slicing panoramas")

	progressCtx, stopProgress := context.WithCancel(ctx)
	go metrics.ReportProgress(progressCtx, os.Stdout, time.Duration(*progressInterval)*time.Millisecond, slicer.ProgressStages)

	s := slicer.NewSlicer(&config.Slicer, sink, lg)
	sliced, failures, err := s.SliceDataset(ctx, panos, *workers)
	stopProgress()
	if err != nil {
		lg.Fatal().Err(err).Msg("error slicing panoramas")
	}

	manifest := filepath.Join(*outputPath, "metadata.json")
	if err := dataset.SaveDataset(manifest, sliced); err != nil {
		lg.Fatal().Err(err).Msg("error saving sliced dataset")
	}

	fmt.Printf("Panoramas: %s, crops: %s, failed: %s, manifest: %s\n",
		aurora.BrightCyan(humanize.Comma(int64(len(panos.Samples)))),
		aurora.Green(humanize.Comma(int64(len(sliced.Samples)))),
		aurora.Red(humanize.Comma(int64(len(failures)))),
		manifest)
	for _, failure := range failures {
		fmt.Printf("%s %s: %v\n", aurora.Red("FAILED"), failure.Sample.ImagePath, failure.Err)
	}
}
