package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/d0rc/geo-locator/dataset"
	"github.com/d0rc/geo-locator/engines"
	"github.com/d0rc/geo-locator/evaluation"
	"github.com/d0rc/geo-locator/settings"
	"github.com/d0rc/geo-locator/utils"
	"github.com/d0rc/geo-locator/vectors"
	"github.com/dustin/go-humanize"
	"github.com/logrusorgru/aurora"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
)

// dataset-tool info <manifest>
// dataset-tool export-parquet -output samples.parquet <manifest>
// dataset-tool evaluate -config config.yaml -output result.json <manifest>

var configPath = flag.String("config", "config.yaml", "path to the configuration file (evaluate)")
var outputPath = flag.String("output", "", "output file")
var radius = flag.Float64("radius", 25, "hit radius in meters (evaluate)")
var recall = flag.String("recall", "1,5,10,20", "comma separated recall@N intervals (evaluate)")
var regions = flag.String("regions", "", "comma separated regions to search in (evaluate)")

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] info|export-parquet|evaluate <manifest>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	lg := utils.ConsoleInit("dataset-tool")

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}
	command, manifest := flag.Arg(0), flag.Arg(1)

	ds, err := dataset.LoadDataset(manifest)
	if err != nil {
		lg.Fatal().Err(err).Msg("error loading dataset")
	}

	switch command {
	case "info":
		printInfo(ds)
	case "export-parquet":
		if *outputPath == "" {
			lg.Fatal().Msg("-output is required")
		}
		if err := dataset.ExportParquet(*outputPath, ds); err != nil {
			lg.Fatal().Err(err).Msg("error exporting parquet")
		}
		lg.Info().Int("samples", len(ds.Samples)).Str("output", *outputPath).Msg("parquet written")
	case "evaluate":
		evaluate(ds, lg)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func printInfo(ds *dataset.SampleDataset) {
	bounds := ds.Bounds()
	streets := make(map[string]int)
	active := 0
	for _, sample := range ds.Samples {
		streets[sample.StreetName]++
		if sample.IsActive {
			active++
		}
	}

	fmt.Printf("Samples: %s (%s active), streets: %s\n",
		aurora.BrightCyan(humanize.Comma(int64(len(ds.Samples)))),
		humanize.Comma(int64(active)),
		humanize.Comma(int64(len(streets))))

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Field", "Value"})
	tw.Append([]string{"SampleDistance", fmt.Sprintf("%g", ds.Info.SampleDistance)})
	tw.Append([]string{"SliceCount", fmt.Sprintf("%d", ds.Info.SliceCount)})
	tw.Append([]string{"SampleCount", fmt.Sprintf("%d", ds.Info.SampleCount)})
	tw.Append([]string{"BoundingPolygon", fmt.Sprintf("%d vertices", len(ds.Info.BoundingPolygon))})
	tw.Append([]string{"Lon range", fmt.Sprintf("%.6f .. %.6f", bounds[0], bounds[2])})
	tw.Append([]string{"Lat range", fmt.Sprintf("%.6f .. %.6f", bounds[1], bounds[3])})
	tw.Render()
}

func evaluate(ds *dataset.SampleDataset, lg zerolog.Logger) {
	config, err := settings.ProcessConfigurationFile(*configPath)
	if err != nil {
		lg.Fatal().Err(err).Msg("error loading configuration")
	}

	intervals := make([]int, 0)
	for _, part := range strings.Split(*recall, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			lg.Fatal().Err(err).Str("recall", *recall).Msg("error parsing recall intervals")
		}
		intervals = append(intervals, n)
	}
	var regionList []string
	if *regions != "" {
		regionList = strings.Split(*regions, ",")
	}

	db, err := vectors.NewVectorDB(&config.VectorDB, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("error connecting to vector db")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	evaluator := evaluation.NewEvaluator(db, engines.NewRemoteInferenceEngine(&config.Inference, lg), config.VectorDB.Collection, lg)
	result, err := evaluator.Evaluate(ctx, ds, evaluation.Settings{
		Radius:           *radius,
		RecallIntervalls: intervals,
		Regions:          regionList,
		BatchSize:        config.Inference.MaxBatchSize,
	})
	if err != nil {
		lg.Fatal().Err(err).Msg("error evaluating dataset")
	}

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Recall@N", "Hits", "Percent"})
	for idx, n := range result.RecallIntervalls {
		tw.Append([]string{
			fmt.Sprintf("%d", n),
			fmt.Sprintf("%d/%d", result.RecallCounts[idx], len(result.PredictionPairs)),
			fmt.Sprintf("%5.2f%%", result.RecallPercentages[idx]),
		})
	}
	tw.Render()

	if *outputPath != "" {
		data, err := json.MarshalIndent(result, "", "    ")
		if err != nil {
			lg.Fatal().Err(err).Msg("error marshaling evaluation result")
		}
		if err := os.WriteFile(*outputPath, data, 0o644); err != nil {
			lg.Fatal().Err(err).Msg("error writing evaluation result")
		}
	}
}
