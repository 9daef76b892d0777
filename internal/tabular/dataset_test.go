package tabular

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() *Dataset {
	return &Dataset{
		Columns: []string{"model_group", "kilometers", "color", "doors"},
		Rows: []Row{
			{"model_group": "sedan", "kilometers": int64(15000), "color": "red", "doors": int64(4)},
			{"model_group": "suv", "kilometers": 82000.5, "color": "black"},
			{"model_group": "van", "kilometers": int64(120000), "color": "white", "doors": int64(5)},
		},
	}
}

func TestSaveLoad(t *testing.T) {
	tests := []struct {
		name string
		file string
	}{
		{name: "spreadsheet", file: "cars.xlsx"},
		{name: "csv", file: "cars.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)

			require.NoError(t, Save(path, sampleDataset()))

			got, err := Load(path)
			require.NoError(t, err)

			assert.Equal(t, []string{"model_group", "kilometers", "color", "doors"}, got.Columns)
			require.Equal(t, 3, got.Len())
			assert.Equal(t, int64(15000), got.Rows[0]["kilometers"])
			assert.Equal(t, 82000.5, got.Rows[1]["kilometers"])
			assert.Equal(t, "black", got.Rows[1]["color"])
			assert.NotContains(t, got.Rows[1], "doors", "empty cell must stay absent")
			assert.Equal(t, int64(5), got.Rows[2]["doors"])
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	emptyCSV := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(emptyCSV, nil, 0o644))

	dupCSV := filepath.Join(dir, "dup.csv")
	require.NoError(t, os.WriteFile(dupCSV, []byte("a,a\n1,2\n"), 0o644))

	notXLSX := filepath.Join(dir, "broken.xlsx")
	require.NoError(t, os.WriteFile(notXLSX, []byte("not a zip"), 0o644))

	tests := []struct {
		name    string
		path    string
		wantErr error
		wantMsg string
	}{
		{name: "missing file", path: filepath.Join(dir, "missing.xlsx"), wantMsg: "failed to open workbook"},
		{name: "unsupported extension", path: filepath.Join(dir, "cars.parquet"), wantErr: ErrUnsupportedFormat},
		{name: "empty csv", path: emptyCSV, wantMsg: "is empty"},
		{name: "duplicate header", path: dupCSV, wantMsg: "duplicate column"},
		{name: "corrupt workbook", path: notXLSX, wantMsg: "failed to open workbook"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestLoad_ShortRecordsKeepRowCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b,c\n1\n\"x\",,3\n,,\n"), 0o644))

	got, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 3, got.Len())
	assert.Equal(t, Row{"a": int64(1)}, got.Rows[0])
	assert.Equal(t, Row{"a": "x", "c": int64(3)}, got.Rows[1])
	assert.Empty(t, got.Rows[2])
}

func TestEnsureColumn(t *testing.T) {
	d := sampleDataset()

	d.EnsureColumn("predicted_price")
	d.EnsureColumn("predicted_price")
	d.EnsureColumn("color")

	assert.Equal(t, []string{"model_group", "kilometers", "color", "doors", "predicted_price"}, d.Columns)
}

func TestParseCell(t *testing.T) {
	tests := []struct {
		raw    string
		want   any
		wantOK bool
	}{
		{raw: "42", want: int64(42), wantOK: true},
		{raw: " -7 ", want: int64(-7), wantOK: true},
		{raw: "3.25", want: 3.25, wantOK: true},
		{raw: "1e3", want: 1000.0, wantOK: true},
		{raw: "Diesel", want: "Diesel", wantOK: true},
		{raw: "NaN", want: "NaN", wantOK: true},
		{raw: "inf", want: "inf", wantOK: true},
		{raw: "   ", wantOK: false},
		{raw: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := parseCell(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
