// Package importer reads book lists from YAML, JSON or Markdown notes and
// adds them to a catalog.
package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/shelf/internal/models"
)

// Format names an import file format.
type Format string

const (
	FormatYAML     Format = "yaml"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// FormatFromPath guesses the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".md", ".markdown":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("importer: cannot infer format of %q (want .yaml, .yml, .json or .md)", path)
}

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatYAML, FormatJSON, FormatMarkdown:
		return f, nil
	case "yml":
		return FormatYAML, nil
	case "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("importer: unknown format %q", s)
}

// readStatus decodes read_status given as a bool or as a text label.
type readStatus bool

func (r *readStatus) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*r = readStatus(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("read_status: %s", data)
	}
	v, err := models.ParseReadLabel(s)
	if err != nil {
		return fmt.Errorf("read_status: %w", err)
	}
	*r = readStatus(v)
	return nil
}

func (r *readStatus) UnmarshalYAML(node *yaml.Node) error {
	var b bool
	if err := node.Decode(&b); err == nil {
		*r = readStatus(b)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("read_status: line %d: %w", node.Line, err)
	}
	v, err := models.ParseReadLabel(s)
	if err != nil {
		return fmt.Errorf("read_status: line %d: %w", node.Line, err)
	}
	*r = readStatus(v)
	return nil
}

// item is one imported row. It uses the catalog document keys; year is
// accepted as a short form of publication_year.
type item struct {
	Title           string     `json:"title" yaml:"title"`
	Author          string     `json:"author" yaml:"author"`
	PublicationYear int        `json:"publication_year" yaml:"publication_year"`
	Year            int        `json:"year" yaml:"year"`
	Genre           string     `json:"genre" yaml:"genre"`
	ReadStatus      readStatus `json:"read_status" yaml:"read_status"`
	Read            *bool      `json:"read" yaml:"read"`
}

func (it item) book() models.NewBook {
	year := it.PublicationYear
	if year == 0 {
		year = it.Year
	}
	read := bool(it.ReadStatus)
	if it.Read != nil {
		read = *it.Read
	}
	return models.NewBook{
		Title:           it.Title,
		Author:          it.Author,
		PublicationYear: year,
		Genre:           it.Genre,
		ReadStatus:      read,
	}
}

// wrapped is the alternative document shape {"books": [...]}.
type wrapped struct {
	Books []item `json:"books" yaml:"books"`
}

// Parse decodes data in the given format. YAML and JSON accept either a
// list of books or an object with a "books" list. Markdown yields the single
// book described by the note's frontmatter. Blank input yields no books.
func Parse(data []byte, format Format) ([]models.NewBook, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []models.NewBook{}, nil
	}

	var items []item
	switch format {
	case FormatJSON:
		if trimmed[0] == '{' {
			var w wrapped
			if err := json.Unmarshal(trimmed, &w); err != nil {
				return nil, fmt.Errorf("importer: parse json: %w", err)
			}
			items = w.Books
		} else if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("importer: parse json: %w", err)
		}
	case FormatYAML:
		var node yaml.Node
		if err := yaml.Unmarshal(trimmed, &node); err != nil {
			return nil, fmt.Errorf("importer: parse yaml: %w", err)
		}
		root := &node
		if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
			root = root.Content[0]
		}
		if root.Kind == yaml.MappingNode {
			var w wrapped
			if err := root.Decode(&w); err != nil {
				return nil, fmt.Errorf("importer: parse yaml: %w", err)
			}
			items = w.Books
		} else if err := root.Decode(&items); err != nil {
			return nil, fmt.Errorf("importer: parse yaml: %w", err)
		}
	case FormatMarkdown:
		it, err := parseNote(data)
		if err != nil {
			return nil, err
		}
		items = []item{it}
	default:
		return nil, fmt.Errorf("importer: unknown format %q", format)
	}

	out := make([]models.NewBook, 0, len(items))
	for _, it := range items {
		out = append(out, it.book())
	}
	return out, nil
}
