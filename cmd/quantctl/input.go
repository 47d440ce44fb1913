package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fractal-lba/quantcore/internal/forecast"
	"github.com/fractal-lba/quantcore/internal/points"
)

// readInput returns the bytes of path ("-" for stdin) and its format.
func readInput(path string) ([]byte, string, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, "", fmt.Errorf("read input: %w", err)
	}

	format := strings.ToLower(inputFormat)
	if format == "" {
		if strings.EqualFold(filepath.Ext(path), ".csv") {
			format = "csv"
		} else {
			format = "json"
		}
	}
	if format != "json" && format != "csv" {
		return nil, "", fmt.Errorf("unknown input format %q", inputFormat)
	}
	return data, format, nil
}

func decodeJSON(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode JSON input: %w", err)
	}
	return nil
}

func readCSV(data []byte) (header []string, rows [][]string, err error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("decode CSV input: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("decode CSV input: missing header row")
	}
	header = make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}
	return header, records[1:], nil
}

// pointsFromCSV reads one point per row. The optional "id" and "label"
// columns are copied; every other column is a numeric dimension. Empty
// cells leave the dimension unset.
func pointsFromCSV(data []byte) ([]points.Point, error) {
	header, rows, err := readCSV(data)
	if err != nil {
		return nil, err
	}
	pts := make([]points.Point, 0, len(rows))
	for i, row := range rows {
		p := points.Point{ID: strconv.Itoa(i + 1), Dimensions: map[string]float64{}}
		for j, cell := range row {
			cell = strings.TrimSpace(cell)
			switch name := strings.ToLower(header[j]); {
			case name == "id":
				if cell != "" {
					p.ID = cell
				}
			case name == "label":
				p.Label = cell
			case cell == "":
			default:
				v, err := strconv.ParseFloat(cell, 64)
				if err != nil {
					return nil, fmt.Errorf("row %d column %q: %w", i+2, header[j], err)
				}
				p.Dimensions[header[j]] = v
			}
		}
		pts = append(pts, p)
	}
	return pts, nil
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// seriesFromCSV reads "timestamp,value" rows.
func seriesFromCSV(data []byte) ([]forecast.TimeSeriesPoint, error) {
	header, rows, err := readCSV(data)
	if err != nil {
		return nil, err
	}
	ts, val := -1, -1
	for i, h := range header {
		switch strings.ToLower(h) {
		case "timestamp", "time", "date":
			ts = i
		case "value":
			val = i
		}
	}
	if ts < 0 || val < 0 {
		return nil, fmt.Errorf("CSV series needs timestamp and value columns, got %v", header)
	}

	series := make([]forecast.TimeSeriesPoint, 0, len(rows))
	for i, row := range rows {
		t, err := parseTime(strings.TrimSpace(row[ts]))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[val]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		series = append(series, forecast.TimeSeriesPoint{Timestamp: t, Value: v})
	}
	return series, nil
}

// variablesFromCSV reads one column per variable.
func variablesFromCSV(data []byte) (map[string][]float64, error) {
	header, rows, err := readCSV(data)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]float64, len(header))
	for i, row := range rows {
		for j, cell := range row {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i+2, header[j], err)
			}
			out[header[j]] = append(out[header[j]], v)
		}
	}
	return out, nil
}
