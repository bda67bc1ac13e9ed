package scraper

// TableConfig defines how ship rows are extracted from a registry search
// result page. Column indexes are zero-based positions of <td> cells within
// a row.
type TableConfig struct {
	RowSelector string `yaml:"row_selector"`

	FlagColumn      int `yaml:"flag_column"`
	NameColumn      int `yaml:"name_column"` // main name text, secondary name in a nested <div>
	HomePortColumn  int `yaml:"home_port_column"`
	CallSignColumn  int `yaml:"call_sign_column"`
	RegNumberColumn int `yaml:"reg_number_column"`
	IMOColumn       int `yaml:"imo_column"`

	// BaseURL resolves relative links to a ship's extended info page.
	BaseURL string `yaml:"base_url,omitempty"`
}

// NewTableConfig creates a table configuration with the rs-class.org column
// layout: flag, names, home port, call sign, registry number, IMO number.
func NewTableConfig(rowSelector string) TableConfig {
	return TableConfig{
		RowSelector:     rowSelector,
		FlagColumn:      0,
		NameColumn:      1,
		HomePortColumn:  2,
		CallSignColumn:  3,
		RegNumberColumn: 4,
		IMOColumn:       5,
	}
}

// minCells returns the number of cells a row needs to hold every configured
// column.
func (c TableConfig) minCells() int {
	highest := c.FlagColumn
	for _, col := range []int{c.NameColumn, c.HomePortColumn, c.CallSignColumn, c.RegNumberColumn, c.IMOColumn} {
		if col > highest {
			highest = col
		}
	}
	return highest + 1
}
