package sources

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRSClass verifies the built-in rs-class.org definition
func TestRSClass(t *testing.T) {
	s := RSClass()

	require.NoError(t, s.Validate())
	assert.Equal(t, "rsclass", s.Name)
	assert.Equal(t, http.MethodPost, s.Method)
	assert.Equal(t, "https://lk.rs-class.org/regbook/regbookVessel?ln=ru", s.URL)
	assert.True(t, s.InsecureSkipVerify)
	assert.Equal(t, "tbody#myTable0 tr", s.Table.RowSelector)
	assert.Equal(t, 5, s.Table.IMOColumn)
	assert.Equal(t, 4, s.Table.RegNumberColumn)
	require.Len(t, s.TooBroadMarkers, 1)
}

func TestSource_Params(t *testing.T) {
	s := RSClass()
	s.ExtraParams = map[string]string{"ln": "ru", "namer": "ignored"}

	params := s.Params("Я-Ё")
	assert.Equal(t, map[string]string{"ln": "ru", "namer": "Я-Ё"}, params)
	assert.Equal(t, "ignored", s.ExtraParams["namer"], "extra params must not be mutated")
}

// TestSource_Parser verifies the parser uses the source's markers and name
func TestSource_Parser(t *testing.T) {
	s := RSClass()

	result, err := s.Parser().Parse("<p>" + s.TooBroadMarkers[0] + "</p>")
	require.NoError(t, err)
	assert.True(t, result.TooBroad)
}

func TestSource_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Source)
		err    error
	}{
		{"no url", func(s *Source) { s.URL = "" }, ErrMissingURL},
		{"bad method", func(s *Source) { s.Method = "PUT" }, ErrInvalidMethod},
		{"no query param", func(s *Source) { s.QueryParam = " " }, ErrMissingQueryParam},
		{"no row selector", func(s *Source) { s.Table.RowSelector = "" }, ErrMissingRowSelector},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := RSClass()
			tt.modify(&s)
			assert.ErrorIs(t, s.Validate(), tt.err)
		})
	}

	lower := RSClass()
	lower.Method = "get"
	assert.NoError(t, lower.Validate())
}

// TestRegistry_Lookup verifies case-insensitive lookup
func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()

	s, err := r.Lookup(" RSClass ")
	require.NoError(t, err)
	assert.Equal(t, RSClassName, s.Name)

	_, err = r.Lookup("marinetraffic")
	assert.ErrorIs(t, err, ErrSourceNotFound)

	_, err = Lookup("rsclass")
	assert.NoError(t, err)
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry()

	err := r.Register(RSClass())
	assert.ErrorIs(t, err, ErrDuplicateSource)
}

// TestRegistry_LoadFile verifies extra sources are read from YAML
func TestRegistry_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	content := `
sources:
  - name: rivreg
    url: https://www.rivreg.ru/activities/class/regbook/
    method: get
    query_param: q
    extra_params:
      page: "1"
    table:
      row_selector: "table.reg tbody tr"
      flag_column: 0
      name_column: 1
      home_port_column: 2
      call_sign_column: 3
      reg_number_column: 4
      imo_column: 5
    too_broad_markers:
      - "Слишком много результатов"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	r := NewRegistry()
	require.NoError(t, r.LoadFile(path))
	assert.Equal(t, []string{"rivreg", "rsclass"}, r.Names())

	s, err := r.Lookup("rivreg")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, s.Method)
	assert.Equal(t, "table.reg tbody tr", s.Table.RowSelector)
	assert.Equal(t, map[string]string{"page": "1", "q": "AB"}, s.Params("AB"))
}

func TestRegistry_LoadFileMissing(t *testing.T) {
	r := NewRegistry()
	assert.NoError(t, r.LoadFile(filepath.Join(t.TempDir(), "absent.yaml")))
	assert.Equal(t, []string{"rsclass"}, r.Names())
}

func TestRegistry_LoadFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sources:\n  - name: broken\n"), 0o600))

	err := NewRegistry().LoadFile(path)
	assert.ErrorIs(t, err, ErrMissingURL)
}
