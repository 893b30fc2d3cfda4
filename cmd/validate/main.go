// Command validate checks the data held by the backend selected by
// DATA_SOURCE: every station and report must satisfy the entity invariants,
// keys must be unique, and, given a gauge CSV export, every valid row must
// have been imported with matching coordinates and readings.
//
// Usage:
//
//	go run ./cmd/validate
//	go run ./cmd/validate -csv data/aws_data_9pm.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/couchcryptid/floodguard-geodata-service/internal/config"
	"github.com/couchcryptid/floodguard-geodata-service/internal/domain"
	"github.com/couchcryptid/floodguard-geodata-service/internal/observability"
	"github.com/couchcryptid/floodguard-geodata-service/internal/pipeline"
	"github.com/couchcryptid/floodguard-geodata-service/internal/service"
	"github.com/joho/godotenv"
)

const coordTolerance = 1e-6

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	csvPath := flag.String("csv", "", "optional gauge CSV export to compare against")
	samples := flag.Int("samples", 5, "number of sample stations to print")
	flag.Parse()

	if code := run(*csvPath, *samples); code != 0 {
		os.Exit(code)
	}
}

func run(csvPath string, samples int) int {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		return 1
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	backend, err := service.OpenBackend(ctx, cfg, logger, metrics)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open backend: %v\n", err)
		return 1
	}
	svc := service.New(backend, logger, metrics)
	defer svc.Close()

	// ── Load data ──
	fmt.Printf("=== FloodGuard Data Validation (%s backend) ===\n\n", svc.BackendName())

	stations, err := svc.ListStations(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: list stations: %v\n", err)
		return 1
	}
	reports, err := svc.ListReports(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: list reports: %v\n", err)
		return 1
	}

	// ── Run validation phases ──
	phases := []*phase{
		validateStations(stations),
		validateReports(reports),
	}
	if csvPath != "" {
		rows, err := loadCSV(csvPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load CSV: %v\n", err)
			return 1
		}
		phases = append(phases, validateCSVParity(rows, stations))
	}

	printSamples(stations, samples)

	// ── Report results ──
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d stations, %d reports\n", len(stations), len(reports))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadCSV(path string) ([]pipeline.GaugeRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return pipeline.ReadGaugeCSV(f)
}

// ── Phases ──

func validateStations(stations []domain.WeatherStation) *phase {
	p := &phase{name: "Station invariants"}
	seen := make(map[string]bool, len(stations))
	for _, st := range stations {
		if err := st.Validate(); err != nil {
			p.errorf("station %q: %v", st.GaugeID, err)
		}
		if seen[st.GaugeID] {
			p.errorf("duplicate gauge_id %q", st.GaugeID)
		}
		seen[st.GaugeID] = true
		if st.Name == "" {
			p.errorf("station %q: empty name", st.GaugeID)
		}
	}
	return p
}

func validateReports(reports []domain.FloodReport) *phase {
	p := &phase{name: "Report invariants"}
	seen := make(map[string]bool, len(reports))
	for _, r := range reports {
		if r.ID == "" {
			p.errorf("report at %s has no id", r.Position)
		} else if seen[r.ID] {
			p.errorf("duplicate report id %q", r.ID)
		}
		seen[r.ID] = true
		if err := r.Validate(); err != nil {
			p.errorf("report %q: %v", r.ID, err)
		}
	}
	return p
}

// validateCSVParity checks every importable CSV row against the stored station.
func validateCSVParity(rows []pipeline.GaugeRow, stations []domain.WeatherStation) *phase {
	p := &phase{name: "CSV export vs stored stations"}
	byID := make(map[string]domain.WeatherStation, len(stations))
	for _, st := range stations {
		byID[st.GaugeID] = st
	}

	for _, row := range rows {
		want, err := domain.ParseGaugeRecord(row.Record)
		if err != nil {
			continue // rejected by the importer too
		}
		got, ok := byID[want.GaugeID]
		if !ok {
			p.errorf("line %d: gauge %s not imported", row.Line, want.GaugeID)
			continue
		}
		if math.Abs(got.Position.Lat-want.Position.Lat) > coordTolerance ||
			math.Abs(got.Position.Lon-want.Position.Lon) > coordTolerance {
			p.errorf("line %d: gauge %s at %s, want %s", row.Line, want.GaugeID, got.Position, want.Position)
		}
		if !sameReading(got.RainfallMM, want.RainfallMM) {
			p.errorf("line %d: gauge %s rainfall %s, want %s", row.Line, want.GaugeID, reading(got.RainfallMM), reading(want.RainfallMM))
		}
	}
	return p
}

func sameReading(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return math.Abs(*a-*b) <= coordTolerance
}

func reading(v *float64) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%g", *v)
}

func printSamples(stations []domain.WeatherStation, n int) {
	if n <= 0 || len(stations) == 0 {
		return
	}
	sorted := append([]domain.WeatherStation(nil), stations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].GaugeID < sorted[j].GaugeID })
	if len(sorted) > n {
		sorted = sorted[:n]
	}

	fmt.Printf("Sample stations (first %d):\n", len(sorted))
	for _, st := range sorted {
		fmt.Printf("  %s  %-24s rainfall=%s mm  temperature=%s  humidity=%s%%\n",
			st.GaugeID, st.Name, reading(st.RainfallMM), reading(st.Temperature), reading(st.Humidity))
	}
	fmt.Println()
}
