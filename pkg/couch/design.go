package couch

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

const (
	DesignID = "_design/hr"

	ListView           = "list_by_job_id"
	ClassificationView = "classification_by_job_id"
)

//go:embed views
var builtinViews embed.FS

// View is one map/reduce pair of a design document.
type View struct {
	Map    string `json:"map"`
	Reduce string `json:"reduce,omitempty"`
}

// DesignDoc is the _design/hr document holding the console views.
type DesignDoc struct {
	ID       string          `json:"_id"`
	Rev      string          `json:"_rev,omitempty"`
	Language string          `json:"language"`
	Views    map[string]View `json:"views"`
}

// DesignDocument returns _design/hr built from the views shipped with the console.
func DesignDocument() (*DesignDoc, error) {
	sub, err := fs.Sub(builtinViews, "views")
	if err != nil {
		return nil, err
	}
	return loadViews(sub)
}

// LoadViewDir builds _design/hr from <dir>/<view>/{map,reduce}.js files.
func LoadViewDir(dir string) (*DesignDoc, error) {
	if _, err := os.Stat(filepath.Clean(dir)); err != nil {
		return nil, fmt.Errorf("failed to open view directory: %w", err)
	}
	return loadViews(os.DirFS(dir))
}

func loadViews(fsys fs.FS) (*DesignDoc, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list views: %w", err)
	}

	design := &DesignDoc{
		ID:       DesignID,
		Language: "javascript",
		Views:    make(map[string]View),
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		var view View
		for _, part := range []struct {
			file string
			dst  *string
		}{
			{"map.js", &view.Map},
			{"reduce.js", &view.Reduce},
		} {
			data, err := fs.ReadFile(fsys, path.Join(entry.Name(), part.file))
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return nil, fmt.Errorf("failed to read view %s: %w", entry.Name(), err)
			}
			*part.dst = string(data)
		}
		if view.Map == "" {
			return nil, fmt.Errorf("view %s has no map.js", entry.Name())
		}
		design.Views[entry.Name()] = view
	}

	if len(design.Views) == 0 {
		return nil, fmt.Errorf("no views found")
	}
	return design, nil
}
