package schema

import (
	"encoding/json"
	"time"

	"github.com/invopop/jsonschema"
)

type Movie struct {
	Title      string            `json:"title" jsonschema_description:"Title as written in the dataset; unique within a franchise"`
	Franchise  string            `json:"franchise" jsonschema_description:"Slug of the franchise dataset the movie was loaded from"`
	ReleaseRaw string            `json:"release_raw,omitempty" jsonschema_description:"Release date exactly as it appears in the CSV"`
	Released   Date              `json:"released" jsonschema_description:"Parsed release date (YYYY-MM-DD), null when the raw value could not be parsed"`
	Critic     Score             `json:"critic" jsonschema_description:"Critic rating (e.g. Rotten Tomatoes)"`
	Audience   Score             `json:"audience" jsonschema_description:"Audience rating"`
	Tier       string            `json:"tier,omitempty" jsonschema_description:"Personal tier bucket (SS, S, A, ...), distinct from the numeric scores"`
	Phase      string            `json:"phase,omitempty" jsonschema_description:"Phase or saga grouping label"`
	Trailer    string            `json:"trailer,omitempty" jsonschema_description:"Trailer URL"`
	Poster     string            `json:"poster" jsonschema_description:"Poster URL from the dataset or a file name derived from the title"`
	Extra      map[string]string `json:"extra,omitempty" jsonschema_description:"Columns the loader does not recognise, kept verbatim"`
}

// Year returns the release year, or 0 when unknown.
func (m Movie) Year() int {
	if m.Released.IsZero() {
		return 0
	}
	return m.Released.Year()
}

// Score is a rating as written plus its percent value when it parses.
type Score struct {
	Raw     string   `json:"raw,omitempty" jsonschema_description:"Rating as written in the CSV (94%, 8.1/10, ...)"`
	Percent *float64 `json:"percent,omitempty" jsonschema_description:"Rating normalised to 0-100"`
}

func (s Score) Valid() bool { return s.Percent != nil }

// Date is a calendar day. The zero value marshals to null.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func NewDate(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return err
	}
	*d = Date{t}
	return nil
}

func (Date) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string", Format: "date"},
			{Type: "null"},
		},
	}
}

type Franchise struct {
	Slug      string `json:"slug" yaml:"slug"`
	Name      string `json:"name" yaml:"name"`
	Movies    string `json:"movies_file" yaml:"movies"`
	Prequels  string `json:"prequels_file,omitempty" yaml:"prequels"`
	PosterDir string `json:"-" yaml:"poster_dir"`
}

// PrequelMap maps a movie title to the titles of its direct prequels.
type PrequelMap map[string][]string

// CharacterMap maps a character name to the projects they appear in.
type CharacterMap map[string][]string

// Dataset is everything loaded for one franchise.
type Dataset struct {
	Franchise Franchise `json:"franchise"`
	Movies    []Movie   `json:"movies"`
	Warnings  []string  `json:"warnings,omitempty"`
}
