package ship

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// Errors returned by Record.Validate
var (
	ErrNoSourceSystem = errors.New("source system is empty")
	ErrNoIdentity     = errors.New("record has no imo number or proprietary number")
)

// TimestampLayout is the layout used when a record's creation time is
// rendered as text (spreadsheet and CSV cells).
const TimestampLayout = "02-Jan-2006 15:04:05"

// Key is the composite identity of a ship record. Two records with equal keys
// describe the same ship as seen by the same source system.
type Key struct {
	IMONumber          string `json:"imo_number"`
	ProprietaryNumber1 string `json:"proprietary_number1"`
	ProprietaryNumber2 string `json:"proprietary_number2"`
	SourceSystem       string `json:"source_system"`
}

// String renders the key as a slash-separated tuple, mostly for logs.
func (k Key) String() string {
	return strings.Join([]string{k.IMONumber, k.ProprietaryNumber1, k.ProprietaryNumber2, k.SourceSystem}, "/")
}

// Less orders keys field by field. Used to give sinks a stable row order.
func (k Key) Less(other Key) bool {
	if k.SourceSystem != other.SourceSystem {
		return k.SourceSystem < other.SourceSystem
	}
	if k.IMONumber != other.IMONumber {
		return k.IMONumber < other.IMONumber
	}
	if k.ProprietaryNumber1 != other.ProprietaryNumber1 {
		return k.ProprietaryNumber1 < other.ProprietaryNumber1
	}
	return k.ProprietaryNumber2 < other.ProprietaryNumber2
}

// Record is a single normalized ship entry scraped from a registry. Records
// are built once by a parser and treated as immutable values afterwards.
type Record struct {
	// Identity
	IMONumber          string `json:"imo_number"`
	ProprietaryNumber1 string `json:"proprietary_number1"` // registry number
	ProprietaryNumber2 string `json:"proprietary_number2"`
	SourceSystem       string `json:"source_system"`

	Flag                    string `json:"flag"`
	MainName                string `json:"main_name"`
	SecondaryName           string `json:"secondary_name"`
	HomePort                string `json:"home_port"`
	CallSign                string `json:"call_sign"`
	Project                 string `json:"project"`
	Owner                   string `json:"owner"`
	OwnerAddress            string `json:"owner_address"`
	OwnerRegistrationNumber string `json:"owner_registration_number"`
	OwnerRegistrationDate   string `json:"owner_registration_date"`

	ExtendedInfoURL string    `json:"extended_info_url"`
	CreatedAt       time.Time `json:"created_at"`
}

// New creates a record with the given identity and the current time as its
// creation timestamp.
func New(imoNumber, proprietaryNumber1, proprietaryNumber2, sourceSystem string) Record {
	return Record{
		IMONumber:          strings.TrimSpace(imoNumber),
		ProprietaryNumber1: strings.TrimSpace(proprietaryNumber1),
		ProprietaryNumber2: strings.TrimSpace(proprietaryNumber2),
		SourceSystem:       sourceSystem,
		CreatedAt:          time.Now(),
	}
}

// Key returns the composite identity of the record.
func (r Record) Key() Key {
	return Key{
		IMONumber:          r.IMONumber,
		ProprietaryNumber1: r.ProprietaryNumber1,
		ProprietaryNumber2: r.ProprietaryNumber2,
		SourceSystem:       r.SourceSystem,
	}
}

// Validate checks that the record carries a usable identity: a source system
// and at least one of the imo/proprietary numbers.
func (r Record) Validate() error {
	if strings.TrimSpace(r.SourceSystem) == "" {
		return ErrNoSourceSystem
	}
	if strings.TrimSpace(r.IMONumber) == "" &&
		strings.TrimSpace(r.ProprietaryNumber1) == "" &&
		strings.TrimSpace(r.ProprietaryNumber2) == "" {
		return ErrNoIdentity
	}
	return nil
}

// Header is the column order shared by every tabular sink.
var Header = []string{
	"flag",
	"main_name",
	"secondary_name",
	"home_port",
	"call_sign",
	"reg_number",
	"proprietary_number2",
	"imo_number",
	"project",
	"owner",
	"owner_address",
	"owner_registration_number",
	"owner_registration_date",
	"source_system",
	"extended_info_url",
	"created_at",
}

// Fields returns the record's values in Header order.
func (r Record) Fields() []string {
	createdAt := ""
	if !r.CreatedAt.IsZero() {
		createdAt = r.CreatedAt.Format(TimestampLayout)
	}

	return []string{
		r.Flag,
		r.MainName,
		r.SecondaryName,
		r.HomePort,
		r.CallSign,
		r.ProprietaryNumber1,
		r.ProprietaryNumber2,
		r.IMONumber,
		r.Project,
		r.Owner,
		r.OwnerAddress,
		r.OwnerRegistrationNumber,
		r.OwnerRegistrationDate,
		r.SourceSystem,
		r.ExtendedInfoURL,
		createdAt,
	}
}

// SortedRecords flattens a keyed record set into a slice ordered by key.
func SortedRecords(records map[Key]Record) []Record {
	keys := make([]Key, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].Less(keys[j])
	})

	result := make([]Record, 0, len(keys))
	for _, k := range keys {
		result = append(result, records[k])
	}
	return result
}
