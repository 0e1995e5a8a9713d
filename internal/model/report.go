package model

import "time"

// Field is one key/value cell of a report row.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Row is an ordered list of fields.
type Row []Field

// Get returns the value of the named field.
func (r Row) Get(key string) (string, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Section is a headed list of rows. Row and field order is significant.
type Section struct {
	Heading string `json:"heading"`
	Rows    []Row  `json:"rows"`
}

// Report is the structured output of a run, ready for rendering or delivery.
type Report struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Environment string    `json:"environment,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Sections    []Section `json:"sections"`
}

// Section returns the section with the given heading.
func (r *Report) Section(heading string) (Section, bool) {
	for _, s := range r.Sections {
		if s.Heading == heading {
			return s, true
		}
	}
	return Section{}, false
}
