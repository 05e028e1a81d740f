package fiscaldata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Record is one raw auction record exactly as the API returned it. Numbers are
// kept as json.Number so re-serialization does not alter them.
type Record map[string]any

// Page is the decoded form of a page body.
type Page struct {
	Data  []Record       `json:"data"`
	Links map[string]any `json:"links"`
}

// ParsePage decodes a page body. The body must hold exactly one JSON value;
// anything after it other than whitespace is an error.
func ParsePage(body []byte) (*Page, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var p Page
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode page: trailing data after JSON value")
	}
	return &p, nil
}

// HasNext reports whether the page advertises a continuation. Only a
// non-empty string counts; null, "" or any other type ends pagination.
func (p *Page) HasNext() bool {
	next, ok := p.Links["next"].(string)
	return ok && next != ""
}

// String returns the record's value for key when it is a non-empty string.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}
