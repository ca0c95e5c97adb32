package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/d0rc/geo-locator/cmds"
	"github.com/d0rc/geo-locator/evaluation"
	"github.com/d0rc/geo-locator/imaging"
	"github.com/d0rc/geo-locator/utils"
	"github.com/dustin/go-humanize"
	"github.com/logrusorgru/aurora"
	"github.com/olekukonko/tablewriter"
)

var serverUrl = flag.String("server", "http://127.0.0.1:9000", "geo-server base url")
var imagePath = flag.String("image", "", "photo to locate")
var limit = flag.Int("limit", 10, "number of matches")
var offset = flag.Int("offset", 0, "number of matches to skip")
var regions = flag.String("regions", "", "comma separated list of regions to search in")
var hnswEf = flag.Uint64("hnsw-ef", 0, "search beam size, server default when 0")
var exact = flag.Bool("exact", false, "exhaustive search")
var truthLon = flag.Float64("lon", 0, "known longitude, prints distances when set with -lat")
var truthLat = flag.Float64("lat", 0, "known latitude")

func main() {
	flag.Parse()
	lg := utils.ConsoleInit("query-tool")

	if *imagePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	img, err := imaging.LoadImage(*imagePath)
	if err != nil {
		lg.Fatal().Err(err).Msg("error loading image")
	}

	request := &cmds.ProcessImageRequest{
		Image:  imaging.EncodeTensor(imaging.ToTensor(img, imaging.TensorSize)),
		Limit:  *limit,
		Offset: *offset,
		HnswEf: *hnswEf,
		Exact:  *exact,
	}
	if *regions != "" {
		request.Regions = strings.Split(*regions, ",")
	}

	body, err := json.Marshal(request)
	if err != nil {
		lg.Fatal().Err(err).Msg("error marshaling request")
	}

	started := time.Now()
	client := http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Post(strings.TrimRight(*serverUrl, "/")+"/process-image", "application/json", bytes.NewReader(body))
	if err != nil {
		lg.Fatal().Err(err).Msg("error sending request")
	}
	defer resp.Body.Close()

	result, err := io.ReadAll(resp.Body)
	if err != nil {
		lg.Fatal().Err(err).Msg("error reading response")
	}
	if resp.StatusCode != http.StatusOK {
		lg.Fatal().Int("status", resp.StatusCode).Str("response", string(result)).Msg("server returned an error")
	}

	response := &cmds.ProcessImageResponse{}
	if err := json.Unmarshal(result, response); err != nil {
		lg.Fatal().Err(err).Msg("error parsing response")
	}

	fmt.Printf("%s matches in %s (%s sent)\n",
		aurora.BrightCyan(len(response.Result)),
		time.Since(started),
		humanize.Bytes(uint64(len(body))))

	withTruth := *truthLon != 0 || *truthLat != 0
	header := []string{"#", "Score", "Lon", "Lat", "Heading", "Street", "Region"}
	if withTruth {
		header = append(header, "Distance")
	}
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader(header)
	for idx, hit := range response.Result {
		sample := evaluation.SampleFromPayload(hit.Payload)
		region, _ := hit.Payload["Region"].(string)
		row := []string{
			fmt.Sprintf("%d", *offset+idx+1),
			fmt.Sprintf("%5.4f", hit.Score),
			fmt.Sprintf("%.6f", sample.Lon),
			fmt.Sprintf("%.6f", sample.Lat),
			fmt.Sprintf("%.0f", sample.HeadingAngle),
			sample.StreetName,
			region,
		}
		if withTruth {
			meters := evaluation.HaversineMeters(*truthLon, *truthLat, sample.Lon, sample.Lat)
			row = append(row, humanize.SIWithDigits(meters, 1, "m"))
		}
		tw.Append(row)
	}
	tw.Render()
}
