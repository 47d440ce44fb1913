package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestPointsFromCSV(t *testing.T) {
	data := []byte("id,label,revenue,cost\nacme,big,100,40\n,small,20,\n")

	pts, err := pointsFromCSV(data)
	require.NoError(t, err)
	require.Len(t, pts, 2)

	assert.Equal(t, "acme", pts[0].ID)
	assert.Equal(t, "big", pts[0].Label)
	assert.Equal(t, map[string]float64{"revenue": 100, "cost": 40}, pts[0].Dimensions)

	assert.Equal(t, "2", pts[1].ID, "missing id falls back to the row number")
	assert.Equal(t, map[string]float64{"revenue": 20}, pts[1].Dimensions, "empty cells leave the dimension unset")
}

func TestPointsFromCSVBadNumber(t *testing.T) {
	_, err := pointsFromCSV([]byte("id,x\na,abc\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `row 2 column "x"`)
}

func TestReadCSVEmpty(t *testing.T) {
	_, _, err := readCSV(nil)
	require.Error(t, err)
}

func TestSeriesFromCSV(t *testing.T) {
	data := []byte("date,value\n2024-01-01,10\n2024-01-02,12.5\n")

	series, err := seriesFromCSV(data)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), series[1].Timestamp)
	assert.Equal(t, 12.5, series[1].Value)
}

func TestParseTimeLayouts(t *testing.T) {
	for _, s := range []string{"2024-03-01T10:00:00Z", "2024-03-01 10:00:00", "2024-03-01"} {
		_, err := parseTime(s)
		assert.NoError(t, err, s)
	}
	_, err := parseTime("03/01/2024")
	assert.Error(t, err)
}

func TestVariablesFromCSV(t *testing.T) {
	vars, err := variablesFromCSV([]byte("price,demand\n10,100\n11,95\n"))
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 11}, vars["price"])
	assert.Equal(t, []float64{100, 95}, vars["demand"])
}

func TestReadInputFormat(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "points.CSV")
	require.NoError(t, os.WriteFile(csvPath, []byte("x\n1\n"), 0o600))
	jsonPath := filepath.Join(dir, "req.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{}`), 0o600))

	_, format, err := readInput(csvPath)
	require.NoError(t, err)
	assert.Equal(t, "csv", format)

	_, format, err = readInput(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "json", format)

	inputFormat = "xml"
	t.Cleanup(func() { inputFormat = "" })
	_, _, err = readInput(jsonPath)
	assert.Error(t, err)
}

func TestParseAssignment(t *testing.T) {
	name, v, err := parseAssignment(" price = 12.5")
	require.NoError(t, err)
	assert.Equal(t, "price", name)
	assert.Equal(t, 12.5, v)

	for _, bad := range []string{"price", "=3", "price=abc"} {
		_, _, err := parseAssignment(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoadGraphAcceptsEnvelope(t *testing.T) {
	dir := t.TempDir()
	bare := filepath.Join(dir, "bare.json")
	wrapped := filepath.Join(dir, "wrapped.json")
	graph := `{"variables":[{"name":"a","type":"continuous"}],"relationships":[]}`
	require.NoError(t, os.WriteFile(bare, []byte(graph), 0o600))
	require.NoError(t, os.WriteFile(wrapped, []byte(`{"result":`+graph+`,"confidence":0.8}`), 0o600))

	for _, path := range []string{bare, wrapped} {
		g, err := loadGraph(path)
		require.NoError(t, err, path)
		require.Len(t, g.Variables, 1)
		assert.Equal(t, "a", g.Variables[0].Name)
	}

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{}`), 0o600))
	_, err := loadGraph(empty)
	assert.Error(t, err)
}

func TestWriteResultYAMLUsesJSONNames(t *testing.T) {
	v := struct {
		PathStrength float64 `json:"path_strength"`
		Target       string  `json:"target"`
	}{0.5, "demand"}

	var buf bytes.Buffer
	require.NoError(t, writeResult(&buf, "yaml", v))

	var out map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, 0.5, out["path_strength"])
	assert.Equal(t, "demand", out["target"])

	buf.Reset()
	require.NoError(t, writeResult(&buf, "json", v))
	assert.Contains(t, buf.String(), "\n  \"target\": \"demand\"")

	assert.Error(t, writeResult(&buf, "xml", v))
}
