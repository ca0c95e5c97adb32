package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/d0rc/geo-locator/dataset"
	"github.com/d0rc/geo-locator/engines"
	image_store "github.com/d0rc/geo-locator/image-store"
	"github.com/d0rc/geo-locator/ingest"
	"github.com/d0rc/geo-locator/metrics"
	"github.com/d0rc/geo-locator/settings"
	"github.com/d0rc/geo-locator/utils"
	"github.com/d0rc/geo-locator/vectors"
)

var configPath = flag.String("config", "config.yaml", "path to the configuration file")
var datasetPath = flag.String("dataset", "", "dataset to load into the vector db")
var collection = flag.String("db-collection-name", "", "collection name, overrides vector-db.collection")
var regionTag = flag.String("region-tag", "", "region tag, overrides ingest.region-tag")
var clip = flag.Bool("clip", false, "skip samples outside of the dataset bounding polygon")
var counters = flag.Bool("counters", false, "print pipeline counters when done")
var progressInterval = flag.Int("progress-interval", 5000, "interval to print progress (ms), 0 disables")

func main() {
	flag.Parse()
	lg := utils.ConsoleInit("load-images")

	if *datasetPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	config, err := settings.ProcessConfigurationFile(*configPath)
	if err != nil {
		lg.Fatal().Err(err).Msg("error loading configuration")
	}
	if *collection != "" {
		config.VectorDB.Collection = *collection
	}
	if *regionTag != "" {
		config.Ingest.RegionTag = *regionTag
	}
	if *clip {
		config.Ingest.ClipToBounds = true
	}
	utils.RaiseOpenFilesLimit(65536)

	ds, err := dataset.LoadDataset(*datasetPath)
	if err != nil {
		lg.Fatal().Err(err).Msg("error loading dataset")
	}

	db, err := vectors.NewVectorDB(&config.VectorDB, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("error connecting to vector db")
	}
	defer db.Close()

	loader := ingest.NewLoader(config, db, engines.NewRemoteInferenceEngine(&config.Inference, lg), lg)
	if config.ObjectStore.Type != "" && config.ObjectStore.Type != "local" {
		store, err := image_store.NewFromConfig(&config.ObjectStore, "")
		if err != nil {
			lg.Fatal().Err(err).Msg("error creating image store")
		}
		loader = loader.WithImageStore(store)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := loader.Prepare(ctx); err != nil {
		lg.Fatal().Err(err).Msg("error preparing collection")
	}

	lg.Info().
		Str("dataset", *datasetPath).
		Str("collection", config.VectorDB.Collection).
		Str("region", config.Ingest.RegionTag).
		Msg("loading dataset")

	progressCtx, stopProgress := context.WithCancel(ctx)
	go metrics.ReportProgress(progressCtx, os.Stdout, time.Duration(*progressInterval)*time.Millisecond, ingest.ProgressStages)

	report, err := loader.LoadImagesIntoDB(ctx, ds)
	stopProgress()
	if report != nil {
		report.Print(os.Stdout)
	}
	if *counters {
		ingest.PrintCounters(os.Stdout)
	}
	if err != nil {
		lg.Fatal().Err(err).Msg("error loading images into db")
	}
}
