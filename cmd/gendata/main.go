// Command gendata writes a synthetic spatially autocorrelated
// observation set to CSV, in the layout the harness loads.
package main

import (
	"encoding/csv"
	"flag"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"spatialcv/internal/dataset"
)

func main() {
	var (
		out         = flag.String("out", "observations.csv", "Output CSV path")
		n           = flag.Int("n", 350, "Number of observations")
		blobs       = flag.Int("blobs", 8, "Number of latent spatial clusters")
		correlation = flag.Float64("correlation", 0.85, "Spatial signal strength in [0, 1]")
		noise       = flag.Float64("noise", 0.35, "Predictor noise standard deviation")
		seed        = flag.Int64("seed", 1, "Generator seed")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := dataset.SyntheticConfig{
		N:           *n,
		Blobs:       *blobs,
		Extent:      100,
		Noise:       *noise,
		Correlation: *correlation,
		Seed:        *seed,
	}
	set, err := dataset.GenerateSynthetic(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to generate observation set")
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create output file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := append([]string{"x", "y", "response"}, set.PredictorNames()...)
	if err := w.Write(header); err != nil {
		log.Fatal().Err(err).Msg("Failed to write header")
	}

	for i := 0; i < set.Len(); i++ {
		o := set.Observation(i)
		record := []string{
			strconv.FormatFloat(o.X, 'f', 6, 64),
			strconv.FormatFloat(o.Y, 'f', 6, 64),
			boolTo01(o.Response),
		}
		for _, v := range o.Predictors {
			record = append(record, strconv.FormatFloat(v, 'f', 6, 64))
		}
		if err := w.Write(record); err != nil {
			log.Fatal().Err(err).Msg("Failed to write record")
		}
	}

	pos, neg := set.ClassCounts()
	log.Info().
		Str("path", *out).
		Int("observations", set.Len()).
		Int("positive", pos).
		Int("negative", neg).
		Msg("Synthetic observation set written")
}

func boolTo01(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
