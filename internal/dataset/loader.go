package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Reserved column names. Every other header column is treated as a
// numeric predictor.
const (
	colX        = "x"
	colY        = "y"
	colResponse = "response"
)

// LoadCSV reads an observation set from a CSV file. The header must
// contain "x", "y" and "response" columns; all remaining columns are
// parsed as numeric predictors in header order.
func LoadCSV(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open observation file: %w", err)
	}
	defer f.Close()

	set, err := parseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	log.Info().
		Str("path", path).
		Int("observations", set.Len()).
		Strs("predictors", set.PredictorNames()).
		Msg("Loaded observation set")

	return set, nil
}

// RemoteLoader fetches observation sets from an external data-serving
// collaborator over HTTP. The response body is expected in the same CSV
// layout LoadCSV accepts.
type RemoteLoader struct {
	client *resty.Client
}

// NewRemoteLoader builds a loader with the given request timeout and a
// small retry budget for transient failures.
func NewRemoteLoader(timeout time.Duration) *RemoteLoader {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond)
	return &RemoteLoader{client: client}
}

// Fetch downloads and parses an observation set from url.
func (rl *RemoteLoader) Fetch(url string) (*Set, error) {
	resp, err := rl.client.R().Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch observation set: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("fetch observation set: unexpected status %d from %s", resp.StatusCode(), url)
	}

	set, err := parseCSV(strings.NewReader(resp.String()))
	if err != nil {
		return nil, fmt.Errorf("parse response from %s: %w", url, err)
	}

	log.Info().
		Str("url", url).
		Int("observations", set.Len()).
		Msg("Fetched observation set")

	return set, nil
}

func parseCSV(r io.Reader) (*Set, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	xCol, yCol, respCol := -1, -1, -1
	var names []string
	var predCols []int
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case colX:
			xCol = i
		case colY:
			yCol = i
		case colResponse:
			respCol = i
		case "id":
			// Positional IDs are assigned on load; an id column is ignored.
		default:
			names = append(names, strings.TrimSpace(name))
			predCols = append(predCols, i)
		}
	}
	if xCol < 0 || yCol < 0 || respCol < 0 {
		return nil, fmt.Errorf("header must contain %q, %q and %q columns", colX, colY, colResponse)
	}
	if len(predCols) == 0 {
		return nil, fmt.Errorf("header contains no predictor columns")
	}

	var obs []Observation
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		x, err := strconv.ParseFloat(record[xCol], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad x value %q", line, record[xCol])
		}
		y, err := strconv.ParseFloat(record[yCol], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad y value %q", line, record[yCol])
		}
		resp, err := parseResponse(record[respCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		preds := make([]float64, len(predCols))
		for j, col := range predCols {
			v, err := strconv.ParseFloat(record[col], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad %s value %q", line, names[j], record[col])
			}
			preds[j] = v
		}

		obs = append(obs, Observation{X: x, Y: y, Predictors: preds, Response: resp})
	}

	return New(names, obs)
}

func parseResponse(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes":
		return true, nil
	case "0", "false", "f", "no":
		return false, nil
	}
	return false, fmt.Errorf("bad response value %q", v)
}
