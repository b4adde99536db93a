package console

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/CERT-Polska/hsn2-console/pkg/mapreduce"
)

// ParseExport decodes documents from a plain JSON array, a _find response
// ({"docs": [...]}) or an _all_docs?include_docs=true response
// ({"rows": [{"doc": {...}}]}). Design documents are skipped.
func ParseExport(data []byte) ([]mapreduce.Document, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty export")
	}

	var docs []mapreduce.Document
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, err
		}
	case '{':
		var wrapper struct {
			Docs []mapreduce.Document `json:"docs"`
			Rows []struct {
				Doc *mapreduce.Document `json:"doc"`
			} `json:"rows"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, err
		}
		docs = wrapper.Docs
		for _, r := range wrapper.Rows {
			if r.Doc != nil {
				docs = append(docs, *r.Doc)
			}
		}
		if wrapper.Docs == nil && wrapper.Rows == nil {
			return nil, fmt.Errorf("object export needs a docs or rows member")
		}
	default:
		return nil, fmt.Errorf("export must be a JSON array or object")
	}

	out := docs[:0]
	for _, d := range docs {
		if strings.HasPrefix(d.ID, "_design/") {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}
