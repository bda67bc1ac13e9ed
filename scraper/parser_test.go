package scraper

import (
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMarker = "Результат запроса более 1000 записей! Уточните параметры запроса"

// Test helper: wrap table rows in a result page
func resultPage(rows ...string) string {
	return `<html><body>
<table class="table">
<thead><tr><th>Флаг</th><th>Название</th><th>Порт</th><th>Позывной</th><th>Рег. №</th><th>IMO</th></tr></thead>
<tbody id="myTable0">` + strings.Join(rows, "\n") + `</tbody>
</table>
</body></html>`
}

// Test helper: create a parser with the rs-class layout
func createTestParser() *Parser {
	table := NewTableConfig("tbody#myTable0 tr")
	table.BaseURL = "https://lk.rs-class.org/regbook/"
	p := NewParser(table, "rsclass", MarkerPredicate(testMarker))
	p.SetLogger(log.New(io.Discard))
	return p
}

const arktikaRow = `<tr>
	<td><img src="/flags/ru.png" title="Россия"></td>
	<td><a href="vessel?id=42">АРКТИКА</a><div>ARKTIKA</div></td>
	<td>Мурманск</td>
	<td>UCJK</td>
	<td>160001</td>
	<td>9734642</td>
</tr>`

const sibirRow = `<tr>
	<td><img src="/flags/ru.png" title="Россия"></td>
	<td>СИБИРЬ <div>SIBIR</div></td>
	<td>Санкт-Петербург</td>
	<td>UBNM7</td>
	<td>170002</td>
	<td></td>
</tr>`

// TestParse_Rows verifies records are built from result rows
func TestParse_Rows(t *testing.T) {
	p := createTestParser()

	result, err := p.Parse(resultPage(arktikaRow, sibirRow))
	require.NoError(t, err)
	assert.False(t, result.TooBroad)
	assert.Zero(t, result.SkippedRows)
	require.Len(t, result.Records, 2)

	arktika := result.Records[0]
	assert.Equal(t, "9734642", arktika.IMONumber)
	assert.Equal(t, "160001", arktika.ProprietaryNumber1)
	assert.Empty(t, arktika.ProprietaryNumber2)
	assert.Equal(t, "rsclass", arktika.SourceSystem)
	assert.Equal(t, "Россия", arktika.Flag)
	assert.Equal(t, "АРКТИКА", arktika.MainName)
	assert.Equal(t, "ARKTIKA", arktika.SecondaryName)
	assert.Equal(t, "Мурманск", arktika.HomePort)
	assert.Equal(t, "UCJK", arktika.CallSign)
	assert.Equal(t, "https://lk.rs-class.org/regbook/vessel?id=42", arktika.ExtendedInfoURL)
	assert.False(t, arktika.CreatedAt.IsZero())

	sibir := result.Records[1]
	assert.Empty(t, sibir.IMONumber, "missing IMO is allowed when registry number exists")
	assert.Equal(t, "170002", sibir.ProprietaryNumber1)
	assert.Equal(t, "СИБИРЬ", sibir.MainName)
	assert.Equal(t, "SIBIR", sibir.SecondaryName)
	assert.Equal(t, NoExtendedInfo, sibir.ExtendedInfoURL)
}

// TestParse_TooBroad verifies the over-cap marker yields a too-broad result
func TestParse_TooBroad(t *testing.T) {
	p := createTestParser()

	body := `<html><body><div class="alert">` + testMarker + `</div></body></html>`
	result, err := p.Parse(body)
	require.NoError(t, err)
	assert.True(t, result.TooBroad)
	assert.Empty(t, result.Records)
}

// TestParse_EmptyTable verifies an empty but present table is not too broad
func TestParse_EmptyTable(t *testing.T) {
	p := createTestParser()

	result, err := p.Parse(resultPage())
	require.NoError(t, err)
	assert.False(t, result.TooBroad, "empty table must be distinguishable from too broad")
	assert.Empty(t, result.Records)
}

// TestParse_NoTable verifies a page without a result table is empty
func TestParse_NoTable(t *testing.T) {
	p := createTestParser()

	result, err := p.Parse(`<html><body><p>Ничего не найдено</p></body></html>`)
	require.NoError(t, err)
	assert.False(t, result.TooBroad)
	assert.Empty(t, result.Records)
}

// TestParse_EmptyBody verifies an empty body is an empty result
func TestParse_EmptyBody(t *testing.T) {
	p := createTestParser()

	result, err := p.Parse("  \n")
	require.NoError(t, err)
	assert.False(t, result.TooBroad)
	assert.Empty(t, result.Records)
}

// TestParse_SkipsBadRows verifies short rows and rows without identity are
// skipped without failing the batch
func TestParse_SkipsBadRows(t *testing.T) {
	p := createTestParser()

	shortRow := `<tr><td>only</td><td>two</td></tr>`
	noIdentity := `<tr><td>РФ</td><td>БЕЗ НОМЕРА</td><td>Порт</td><td>XX</td><td> </td><td></td></tr>`

	result, err := p.Parse(resultPage(shortRow, arktikaRow, noIdentity))
	require.NoError(t, err)
	assert.Equal(t, 2, result.SkippedRows)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "9734642", result.Records[0].IMONumber)
}

// TestParse_FlagTextFallback verifies flag text is used without an image
func TestParse_FlagTextFallback(t *testing.T) {
	p := createTestParser()

	row := `<tr><td> Панама </td><td>OCEAN</td><td>Panama</td><td>3E2</td><td>1</td><td>9000001</td></tr>`
	result, err := p.Parse(resultPage(row))
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "Панама", result.Records[0].Flag)
	assert.Equal(t, "OCEAN", result.Records[0].MainName)
	assert.Empty(t, result.Records[0].SecondaryName)
}

// TestParse_NilPredicate verifies a parser without predicate never flags
// responses as too broad
func TestParse_NilPredicate(t *testing.T) {
	p := NewParser(NewTableConfig("tbody#myTable0 tr"), "rsclass", nil)
	p.SetLogger(log.New(io.Discard))

	result, err := p.Parse(`<p>` + testMarker + `</p>`)
	require.NoError(t, err)
	assert.False(t, result.TooBroad)
}

func TestMarkerPredicate(t *testing.T) {
	pred := MarkerPredicate("", "too many", "слишком много")

	assert.True(t, pred("there are too many results"))
	assert.True(t, pred("найдено слишком много судов"))
	assert.False(t, pred("no results"))
	assert.False(t, MarkerPredicate()("anything"))
	assert.False(t, MarkerPredicate("")("anything"), "empty marker must not match everything")
}

func TestTableConfig_MinCells(t *testing.T) {
	assert.Equal(t, 6, NewTableConfig("tr").minCells())

	custom := TableConfig{IMOColumn: 9}
	assert.Equal(t, 10, custom.minCells())
}
