package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is the on-disk catalog format.
//
// Example (YAML):
//
//	profilePath: Profile And Settings.Profile Info.ProfileMap
//	entries:
//	  - path: Comment.Comments.CommentsList
//	    table: comments
//	    mode: array
//	    columns:
//	      - {source: date, column: comment_date}
//	    dateFields: [comment_date]
type File struct {
	ProfilePath string  `json:"profilePath" yaml:"profilePath"`
	Entries     []Entry `json:"entries" yaml:"entries"`
}

// Format is the serialization used by LoadFile and Write.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks a format from the file extension; anything that is not
// .yaml/.yml is treated as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// LoadFile reads a catalog file.
//
// Errors:
//   - read/parse failures are wrapped with the path.
//   - structural problems are reported by New (unknown mode, duplicate path, ...).
func LoadFile(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	c, err := Parse(b, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a catalog document.
func Parse(b []byte, f Format) (*Catalog, error) {
	var file File
	switch f {
	case FormatYAML:
		if err := yaml.Unmarshal(b, &file); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&file); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	}
	if len(file.Entries) == 0 {
		return nil, fmt.Errorf("catalog has no entries")
	}
	if file.ProfilePath == "" {
		file.ProfilePath = ProfilePath
	}
	return New(file.ProfilePath, file.Entries)
}

// Write serializes c in format f.
func Write(w io.Writer, c *Catalog, f Format) error {
	file := File{ProfilePath: c.profile, Entries: c.entries}
	switch f {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(file); err != nil {
			return fmt.Errorf("catalog: encode yaml: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(file); err != nil {
			return fmt.Errorf("catalog: encode json: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("catalog: unsupported format %q", f)
	}
}
