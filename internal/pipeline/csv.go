package pipeline

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/couchcryptid/floodguard-geodata-service/internal/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadGaugeCSV reads a rain-gauge network export. Columns are matched by
// header name, so their order does not matter; a leading byte order mark is
// ignored. Rows are returned unparsed with their 1-based line numbers.
func ReadGaugeCSV(r io.Reader) ([]GaugeRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("read csv: missing header row")
	}

	colIdx := map[string]int{}
	for i, h := range rows[0] {
		colIdx[strings.TrimSpace(h)] = i
	}
	for _, required := range []string{"AWS ID", "Latitude", "Longitude"} {
		if _, ok := colIdx[required]; !ok {
			return nil, fmt.Errorf("read csv: missing column %q", required)
		}
	}

	out := make([]GaugeRow, 0, len(rows)-1)
	for i, row := range rows[1:] {
		out = append(out, GaugeRow{
			Line: i + 2,
			Record: domain.RawGaugeRecord{
				GaugeID:     get(row, colIdx, "AWS ID"),
				Location:    get(row, colIdx, "AWS Location"),
				MandalName:  get(row, colIdx, "Mandal Name"),
				DateTime:    get(row, colIdx, "Date & Time"),
				LastUpdated: get(row, colIdx, "Last Updated"),
				Latitude:    get(row, colIdx, "Latitude"),
				Longitude:   get(row, colIdx, "Longitude"),
				RainfallMM:  get(row, colIdx, "Rainfall* (mm)"),
				Temperature: get(row, colIdx, "Temperature"),
				Humidity:    get(row, colIdx, "Humidity(%)"),
			},
		})
	}
	return out, nil
}

// GaugeRow is one data row of a gauge export.
type GaugeRow struct {
	Line   int
	Record domain.RawGaugeRecord
}

func get(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
