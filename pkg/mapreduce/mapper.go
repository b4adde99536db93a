package mapreduce

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Emitter receives one (key, value) pair from Map.
type Emitter func(key string, value Value)

// Map emits a summary of doc keyed by its job when doc is a file or url
// object. Any other type emits nothing.
func Map(doc Document, emit Emitter) error {
	if doc.Type != "file" && doc.Type != "url" {
		return nil
	}

	objectID, err := ObjectID(doc.ID)
	if err != nil {
		return err
	}

	emit(doc.Job.String(), Value{
		ObjectID:       objectID,
		Classification: doc.Classification,
		Origin:         doc.Origin,
		Display:        display(doc),
		Parent:         doc.Parent,
	})
	return nil
}

// MapByType is Map keyed by job and object type, the grouping of the
// classification view. Keys are built with TypeKey.
func MapByType(doc Document, emit Emitter) error {
	return Map(doc, func(_ string, value Value) {
		emit(TypeKey(doc.Job.String(), doc.Type), value)
	})
}

// TypeKey returns the JSON form of the view key [job, type].
func TypeKey(job, typ string) string {
	key, _ := json.Marshal([]string{job, typ})
	return string(key)
}

// SplitTypeKey reverses TypeKey.
func SplitTypeKey(key string) (job, typ string, err error) {
	var parts []string
	if err := json.Unmarshal([]byte(key), &parts); err != nil || len(parts) != 2 {
		return "", "", fmt.Errorf("%q is not a [job, type] key", key)
	}
	return parts[0], parts[1], nil
}

// ObjectID returns the segment of id between the first and second colon.
func ObjectID(id string) (string, error) {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) < 2 {
		return "", fmt.Errorf("%w: %q has no ':' separator", ErrMalformedIdentifier, id)
	}
	return parts[1], nil
}

func display(doc Document) string {
	if u, ok := doc.URLOriginal.Get(); ok && u != "" {
		return u
	}
	return "File (" + doc.MimeType.String() + ")"
}
