package scraper

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
	"github.com/pevans/wfleet/ship"
)

// NoExtendedInfo is stored in Record.ExtendedInfoURL when a row has no link
// to an extended info page.
const NoExtendedInfo = "-"

// TooBroadFunc reports whether a response body is the registry's "too many
// results" page rather than a result table. The wording of that page is an
// unversioned external contract, so detection is pluggable.
type TooBroadFunc func(body string) bool

// MarkerPredicate returns a TooBroadFunc that matches when the body contains
// any of the given markers. Empty markers are ignored.
func MarkerPredicate(markers ...string) TooBroadFunc {
	var nonEmpty []string
	for _, m := range markers {
		if m != "" {
			nonEmpty = append(nonEmpty, m)
		}
	}

	return func(body string) bool {
		for _, m := range nonEmpty {
			if strings.Contains(body, m) {
				return true
			}
		}
		return false
	}
}

// Result holds the ships extracted from one search response.
type Result struct {
	Records []ship.Record
	// TooBroad is set when the query matched more records than the registry
	// reports. Records is empty in that case.
	TooBroad bool
	// SkippedRows counts table rows that could not be turned into a record.
	SkippedRows int
	// Degraded is set by callers when the body stood in for a non-success
	// HTTP response. Such a result is empty but not a genuine empty result.
	Degraded bool
}

// Parser turns registry search responses into ship records.
type Parser struct {
	table    TableConfig
	source   string
	tooBroad TooBroadFunc
	logger   *log.Logger
}

// NewParser creates a parser for the given table layout. Every record it
// produces is tagged with source as its source system. A nil tooBroad
// predicate never reports a response as too broad.
func NewParser(table TableConfig, source string, tooBroad TooBroadFunc) *Parser {
	if tooBroad == nil {
		tooBroad = func(string) bool { return false }
	}

	return &Parser{
		table:    table,
		source:   source,
		tooBroad: tooBroad,
		logger:   log.Default(),
	}
}

// SetLogger replaces the parser's logger.
func (p *Parser) SetLogger(logger *log.Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Parse extracts ship records from a response body. A body signalling too
// many results yields an empty, TooBroad result. A body without a result
// table yields an empty result. Rows lacking cells or identity are skipped.
func (p *Parser) Parse(body string) (Result, error) {
	if strings.TrimSpace(body) == "" {
		p.logger.Warn("Got empty response body")
		return Result{}, nil
	}

	if p.tooBroad(body) {
		return Result{TooBroad: true}, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to parse HTML: %w", err)
	}

	result := Result{}
	doc.Find(p.table.RowSelector).Each(func(i int, row *goquery.Selection) {
		record, err := p.parseRow(row)
		if err != nil {
			p.logger.Debug("Skipping row", "row", i, "err", err)
			result.SkippedRows++
			return
		}
		result.Records = append(result.Records, record)
	})

	return result, nil
}

// parseRow builds one record from a table row.
func (p *Parser) parseRow(row *goquery.Selection) (ship.Record, error) {
	cells := row.Find("td")
	if cells.Length() < p.table.minCells() {
		return ship.Record{}, fmt.Errorf("row has %d cells, need %d", cells.Length(), p.table.minCells())
	}

	cell := func(i int) *goquery.Selection {
		return cells.Eq(i)
	}

	record := ship.New(
		cellText(cell(p.table.IMOColumn)),
		cellText(cell(p.table.RegNumberColumn)),
		"",
		p.source,
	)
	if err := record.Validate(); err != nil {
		return ship.Record{}, err
	}

	// Flag is the title of the flag image, some layouts print it as text
	flagCell := cell(p.table.FlagColumn)
	record.Flag = strings.TrimSpace(flagCell.Find("img").AttrOr("title", ""))
	if record.Flag == "" {
		record.Flag = cellText(flagCell)
	}

	nameCell := cell(p.table.NameColumn)
	record.MainName = ownText(nameCell)
	record.SecondaryName = normalize(nameCell.Find("div").First().Text())
	record.ExtendedInfoURL = p.extendedInfoURL(nameCell)

	record.HomePort = cellText(cell(p.table.HomePortColumn))
	record.CallSign = cellText(cell(p.table.CallSignColumn))

	return record, nil
}

// extendedInfoURL returns the absolute link found in the cell, or
// NoExtendedInfo.
func (p *Parser) extendedInfoURL(s *goquery.Selection) string {
	href, ok := s.Find("a[href]").First().Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return NoExtendedInfo
	}

	if p.table.BaseURL == "" {
		return href
	}

	base, err := url.Parse(p.table.BaseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// cellText returns the whitespace-normalized text of a cell.
func cellText(s *goquery.Selection) string {
	return normalize(s.Text())
}

// ownText returns the text of the selection's direct text nodes and inline
// links, leaving out nested block elements such as the secondary name div.
func ownText(s *goquery.Selection) string {
	var parts []string
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "div" {
			return
		}
		if text := normalize(c.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, " ")
}

// normalize collapses runs of whitespace into single spaces.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
