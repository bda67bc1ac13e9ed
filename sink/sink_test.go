package sink

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pevans/wfleet/ship"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// Test helper: create sample records
func createTestRecords() []ship.Record {
	created := time.Date(2022, 3, 30, 21, 5, 9, 0, time.UTC)

	arktika := ship.New("9734642", "160001", "", "rsclass")
	arktika.Flag = "Россия"
	arktika.MainName = "АРКТИКА"
	arktika.SecondaryName = "ARKTIKA"
	arktika.HomePort = "Мурманск"
	arktika.CallSign = "UCJK"
	arktika.ExtendedInfoURL = "https://lk.rs-class.org/regbook/vessel?id=42"
	arktika.CreatedAt = created

	sibir := ship.New("", "170002", "", "rsclass")
	sibir.MainName = "СИБИРЬ, \"ледокол\""
	sibir.ExtendedInfoURL = "-"
	sibir.CreatedAt = created

	return []ship.Record{arktika, sibir}
}

func TestPrepare(t *testing.T) {
	dir := t.TempDir()

	assert.ErrorIs(t, Prepare(" "), ErrEmptyDestination)
	assert.ErrorIs(t, Prepare(dir), ErrDestinationInvalid)

	nested := filepath.Join(dir, "a", "b", "ships.csv")
	require.NoError(t, Prepare(nested))
	assert.DirExists(t, filepath.Join(dir, "a", "b"))
}

// TestCSVSink_Write verifies header and rows in canonical order
func TestCSVSink_Write(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out", "ships.csv")

	require.NoError(t, NewCSVSink().Write(createTestRecords(), dest))

	f, err := os.Open(dest)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, ship.Header, rows[0])
	assert.Equal(t, "АРКТИКА", rows[1][1])
	assert.Equal(t, "9734642", rows[1][7])
	assert.Equal(t, "30-Mar-2022 21:05:09", rows[1][15])
	assert.Equal(t, "СИБИРЬ, \"ледокол\"", rows[2][1])
}

// TestJSONSink_Empty verifies an empty record set becomes an empty array
func TestJSONSink_Empty(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "ships.json")

	require.NoError(t, NewJSONSink().Write(nil, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestJSONSink_Write(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "ships.json")
	records := createTestRecords()

	require.NoError(t, NewJSONSink().Write(records, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)

	var got []ship.Record
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 2)
	assert.Equal(t, records[0].Key(), got[0].Key())
	assert.Equal(t, "ARKTIKA", got[0].SecondaryName)
}

// TestExcelSink_Write verifies the workbook sheet, header and rows
func TestExcelSink_Write(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "ships.xlsx")

	require.NoError(t, NewExcelSink().Write(createTestRecords(), dest))

	f, err := excelize.OpenFile(dest)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{DefaultSheet}, f.GetSheetList())

	rows, err := f.GetRows(DefaultSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, ship.Header, rows[0])
	assert.Equal(t, "Россия", rows[1][0])
	assert.Equal(t, "UCJK", rows[1][4])
	assert.Equal(t, "170002", rows[2][5])
}

// TestSQLiteSink_Write verifies records land in the ships table
func TestSQLiteSink_Write(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "ships.db")

	require.NoError(t, NewSQLiteSink().Write(createTestRecords(), dest))

	db, err := sql.Open("sqlite3", dest)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM ships").Scan(&count))
	assert.Equal(t, 2, count)

	var name string
	require.NoError(t, db.QueryRow("SELECT main_name FROM ships WHERE imo_number = ?", "9734642").Scan(&name))
	assert.Equal(t, "АРКТИКА", name)
}

// TestSink_Overwrite verifies every sink replaces an existing file and
// leaves no temporary files behind
func TestSink_Overwrite(t *testing.T) {
	for _, format := range Formats() {
		t.Run(format, func(t *testing.T) {
			s, ext, err := ForFormat(format)
			require.NoError(t, err)

			dir := t.TempDir()
			dest := filepath.Join(dir, "ships"+ext)
			require.NoError(t, os.WriteFile(dest, []byte("stale"), 0o644))

			records := createTestRecords()
			require.NoError(t, s.Write(records, dest))
			require.NoError(t, s.Write(records[:1], dest))

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			require.Len(t, entries, 1, "temporary files must be cleaned up")
			assert.Equal(t, "ships"+ext, entries[0].Name())
		})
	}
}

// TestSink_DirectoryDestination verifies a directory is rejected and left
// untouched
func TestSink_DirectoryDestination(t *testing.T) {
	for _, format := range Formats() {
		s, _, err := ForFormat(format)
		require.NoError(t, err)

		dir := t.TempDir()
		err = s.Write(createTestRecords(), dir)
		assert.ErrorIs(t, err, ErrDestinationInvalid, format)
	}
}

func TestForFormat(t *testing.T) {
	s, ext, err := ForFormat(" XLSX ")
	require.NoError(t, err)
	assert.IsType(t, &ExcelSink{}, s)
	assert.Equal(t, ".xlsx", ext)

	_, _, err = ForFormat("parquet")
	assert.ErrorIs(t, err, ErrUnknownFormat)

	assert.Equal(t, []string{"csv", "json", "sqlite", "xlsx"}, Formats())
}
