// Command importstations loads rain-gauge stations into the backend selected
// by DATA_SOURCE, from either a gauge network CSV export or a GeoJSON
// FeatureCollection. Stations are upserted by gauge ID, so re-running an
// import is safe. Invalid rows are skipped and reported.
//
// Usage:
//
//	go run ./cmd/importstations -csv data/aws_data_9pm.csv
//	go run ./cmd/importstations -geojson sample_data/rain_gauge.geojson
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/floodguard-geodata-service/internal/config"
	"github.com/couchcryptid/floodguard-geodata-service/internal/domain"
	"github.com/couchcryptid/floodguard-geodata-service/internal/observability"
	"github.com/couchcryptid/floodguard-geodata-service/internal/pipeline"
	"github.com/couchcryptid/floodguard-geodata-service/internal/service"
	"github.com/joho/godotenv"
	"github.com/paulmach/orb/geojson"
)

// candidate is a parsed station or the reason its source row was rejected.
type candidate struct {
	source  string
	station domain.WeatherStation
	err     error
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	csvPath := flag.String("csv", "", "gauge network CSV export")
	geojsonPath := flag.String("geojson", "", "GeoJSON FeatureCollection of stations")
	dryRun := flag.Bool("dry-run", false, "parse and report without writing")
	flag.Parse()

	if (*csvPath == "") == (*geojsonPath == "") {
		flag.Usage()
		return fmt.Errorf("exactly one of -csv or -geojson is required")
	}

	var candidates []candidate
	var err error
	if *csvPath != "" {
		candidates, err = loadCSV(*csvPath)
	} else {
		candidates, err = loadGeoJSON(*geojsonPath)
	}
	if err != nil {
		return err
	}

	stations := make([]domain.WeatherStation, 0, len(candidates))
	skipped := 0
	for _, c := range candidates {
		if c.err != nil {
			log.Printf("skip %s: %v", c.source, c.err)
			skipped++
			continue
		}
		stations = append(stations, c.station)
	}
	log.Printf("parsed %d stations, %d skipped", len(stations), skipped)

	if *dryRun || len(stations) == 0 {
		return nil
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := service.OpenBackend(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	svc := service.New(backend, logger, metrics)
	defer svc.Close()

	imported := 0
	for _, st := range stations {
		if _, err := svc.UpsertStation(ctx, st); err != nil {
			if domain.IsRetryable(err) || ctx.Err() != nil {
				return fmt.Errorf("import stopped after %d stations: %w", imported, err)
			}
			log.Printf("skip %s: %v", st.GaugeID, err)
			skipped++
			continue
		}
		imported++
	}

	log.Printf("weather stations: %d imported, %d skipped into %s backend", imported, skipped, svc.BackendName())
	return nil
}

func loadCSV(path string) ([]candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	rows, err := pipeline.ReadGaugeCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	out := make([]candidate, 0, len(rows))
	for _, row := range rows {
		st, err := domain.ParseGaugeRecord(row.Record)
		out = append(out, candidate{source: fmt.Sprintf("line %d", row.Line), station: st, err: err})
	}
	return out, nil
}

func loadGeoJSON(path string) ([]candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	out := make([]candidate, 0, len(fc.Features))
	for i, f := range fc.Features {
		st, err := domain.StationFromFeature(f)
		out = append(out, candidate{source: fmt.Sprintf("feature %d", i), station: st, err: err})
	}
	return out, nil
}
