// Package catalog provides the file catalog source and its change watcher.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	doc "github.com/artpar/flowgate/domain/catalog"
	"github.com/artpar/flowgate/ports"
	"gopkg.in/yaml.v3"
)

// Format is a catalog document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf picks the format from a file extension. Anything that is not
// .json is read as YAML.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Decode parses a catalog document. Unknown fields are rejected.
func Decode(data []byte, format Format) (doc.Definition, error) {
	var def doc.Definition
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&def); err != nil {
			return doc.Definition{}, fmt.Errorf("parse catalog json: %w", err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil && !errors.Is(err, io.EOF) {
			return doc.Definition{}, fmt.Errorf("parse catalog yaml: %w", err)
		}
	}
	return def.Normalize(), nil
}

// Encode renders a catalog document.
func Encode(def doc.Definition, format Format) ([]byte, error) {
	if format == FormatJSON {
		return json.MarshalIndent(def, "", "  ")
	}
	return yaml.Marshal(def)
}

// FileSource loads the catalog from a YAML or JSON file.
type FileSource struct {
	path string
}

// NewFileSource creates a source for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Name implements ports.CatalogSource.
func (s *FileSource) Name() string { return "file:" + s.path }

// Path returns the catalog file path.
func (s *FileSource) Path() string { return s.path }

// Load implements ports.CatalogSource.
func (s *FileSource) Load(ctx context.Context) (doc.Definition, error) {
	if err := ctx.Err(); err != nil {
		return doc.Definition{}, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return doc.Definition{}, fmt.Errorf("read catalog: %w", err)
	}
	def, err := Decode(data, FormatOf(s.path))
	if err != nil {
		return doc.Definition{}, fmt.Errorf("%s: %w", s.path, err)
	}
	return def, nil
}

var _ ports.CatalogSource = (*FileSource)(nil)
