package sources

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/pevans/wfleet/scraper"
	"gopkg.in/yaml.v3"
)

// Custom errors for source operations
var (
	ErrSourceNotFound     = errors.New("source not found")
	ErrDuplicateSource    = errors.New("source with this name already exists")
	ErrInvalidMethod      = errors.New("method must be GET or POST")
	ErrMissingURL         = errors.New("source URL is empty")
	ErrMissingQueryParam  = errors.New("source query parameter is empty")
	ErrMissingRowSelector = errors.New("source row selector is empty")
)

// RSClassName is the source system name of the rs-class.org register book.
const RSClassName = "rsclass"

// Source describes how to search one registry and read its result table.
type Source struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	Method string `yaml:"method"` // "GET" or "POST"
	// QueryParam carries the search token; POST sends it as a form field.
	QueryParam  string            `yaml:"query_param"`
	ExtraParams map[string]string `yaml:"extra_params,omitempty"`
	// InsecureSkipVerify is only set for registries serving broken
	// certificates.
	InsecureSkipVerify bool                `yaml:"insecure_skip_verify"`
	Table              scraper.TableConfig `yaml:"table"`
	TooBroadMarkers    []string            `yaml:"too_broad_markers"`
}

// RSClass returns the source definition of the rs-class.org register book.
func RSClass() Source {
	table := scraper.NewTableConfig("tbody#myTable0 tr")
	table.BaseURL = "https://lk.rs-class.org/regbook/"

	return Source{
		Name:               RSClassName,
		URL:                "https://lk.rs-class.org/regbook/regbookVessel?ln=ru",
		Method:             http.MethodPost,
		QueryParam:         "namer",
		InsecureSkipVerify: true,
		Table:              table,
		TooBroadMarkers: []string{
			"Результат запроса более 1000 записей! Уточните параметры запроса",
		},
	}
}

// Validate checks the source has everything a search needs.
func (s Source) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("source name is empty")
	}
	if strings.TrimSpace(s.URL) == "" {
		return ErrMissingURL
	}
	method := strings.ToUpper(s.Method)
	if method != http.MethodGet && method != http.MethodPost {
		return ErrInvalidMethod
	}
	if strings.TrimSpace(s.QueryParam) == "" {
		return ErrMissingQueryParam
	}
	if strings.TrimSpace(s.Table.RowSelector) == "" {
		return ErrMissingRowSelector
	}
	return nil
}

// Params returns the request parameters searching for token.
func (s Source) Params(token string) map[string]string {
	params := make(map[string]string, len(s.ExtraParams)+1)
	for k, v := range s.ExtraParams {
		params[k] = v
	}
	params[s.QueryParam] = token
	return params
}

// Parser creates a result parser for the source's table layout.
func (s Source) Parser() *scraper.Parser {
	return scraper.NewParser(s.Table, s.Name, scraper.MarkerPredicate(s.TooBroadMarkers...))
}

// Registry holds named sources.
type Registry struct {
	sources map[string]Source
}

// NewRegistry creates a registry holding the built-in sources.
func NewRegistry() *Registry {
	r := &Registry{sources: make(map[string]Source)}
	// Built-ins are valid by construction
	_ = r.Register(RSClass())
	return r
}

// Register adds a source. Names are case-insensitive.
func (r *Registry) Register(s Source) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid source %q: %w", s.Name, err)
	}

	key := strings.ToLower(s.Name)
	if _, ok := r.sources[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSource, s.Name)
	}
	s.Method = strings.ToUpper(s.Method)
	r.sources[key] = s
	return nil
}

// Lookup returns the source registered under name.
func (r *Registry) Lookup(name string) (Source, error) {
	s, ok := r.sources[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Source{}, fmt.Errorf("%w: %s", ErrSourceNotFound, name)
	}
	return s, nil
}

// Names lists registered source names in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for _, s := range r.sources {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

// sourcesFile is the layout of a YAML file with extra source definitions.
type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// LoadFile registers every source defined in a YAML file. A missing file
// is not an error.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read sources file: %w", err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse sources file: %w", err)
	}

	for _, s := range file.Sources {
		if err := r.Register(s); err != nil {
			return err
		}
	}
	return nil
}

// Lookup finds a built-in source by name.
func Lookup(name string) (Source, error) {
	return NewRegistry().Lookup(name)
}
