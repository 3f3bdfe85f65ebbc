package importer

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// parseNote reads a book from a Markdown note whose YAML frontmatter carries
// the book fields. The title falls back to the first H1 heading.
func parseNote(data []byte) (item, error) {
	block, body, ok := splitFrontmatter(data)
	if !ok {
		return item{}, fmt.Errorf("importer: parse markdown: no frontmatter")
	}
	var it item
	if err := yaml.Unmarshal(block, &it); err != nil {
		return item{}, fmt.Errorf("importer: parse markdown frontmatter: %w", err)
	}
	if strings.TrimSpace(it.Title) == "" {
		it.Title = firstHeading(body)
	}
	return it, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body.
func splitFrontmatter(data []byte) ([]byte, string, bool) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), false
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), false
	}

	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")
	return rest[:idx], body, true
}

func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
