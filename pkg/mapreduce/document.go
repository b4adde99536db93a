// Package mapreduce implements the HSN2 job views: a mapper that summarises
// file and url documents under their job, and a classification counting
// reducer that supports rereduce over partial results.
package mapreduce

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Field is an optional document attribute. HSN2 writes some attributes as
// strings and others (job, parent) as numbers, so both are accepted and kept
// in their textual form.
type Field struct {
	value string
	set   bool
}

// Some returns a present Field holding s.
func Some(s string) Field {
	return Field{value: s, set: true}
}

// Int returns a present Field holding the decimal form of n.
func Int(n int64) Field {
	return Field{value: strconv.FormatInt(n, 10), set: true}
}

// Get returns the value and whether it is present.
func (f Field) Get() (string, bool) {
	return f.value, f.set
}

// Present reports whether the attribute was set.
func (f Field) Present() bool {
	return f.set
}

// String returns the value, or "" when absent.
func (f Field) String() string {
	return f.value
}

// MarshalJSON writes absent fields as null.
func (f Field) MarshalJSON() ([]byte, error) {
	if !f.set {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

func (f *Field) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = Field{}
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = Some(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("field must be a string or a number, got %s", data)
	}
	*f = Some(n.String())
	return nil
}

// Document is a stored HSN2 object as read from the database.
type Document struct {
	ID             string `json:"_id"`
	Rev            string `json:"_rev,omitempty"`
	Type           string `json:"type"`
	Job            Field  `json:"job"`
	Classification Field  `json:"classification"`
	Origin         Field  `json:"origin"`
	URLOriginal    Field  `json:"url_original"`
	MimeType       Field  `json:"mime type"`
	Parent         Field  `json:"parent"`
}

// Value is what the mapper emits for one document.
type Value struct {
	ObjectID       string `json:"object_id"`
	Classification Field  `json:"classification"`
	Origin         Field  `json:"origin"`
	Display        string `json:"display"`
	Parent         Field  `json:"parent"`
}
