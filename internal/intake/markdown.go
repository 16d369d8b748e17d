package intake

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Markdown extracts classifiable text from Markdown notes. YAML frontmatter
// is parsed so its title and tags lead the returned text; the other
// frontmatter keys are dropped. Invalid frontmatter is kept as body text.
type Markdown struct{}

type frontmatter struct {
	Title string   `yaml:"title"`
	Tags  []string `yaml:"tags"`
}

// Extract reads path and returns title, tags and body separated by newlines.
func (Markdown) Extract(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("markdown: %w", err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("markdown: %s is not valid UTF-8", path)
	}

	fm, body := splitFrontmatter(data)
	var parts []string
	if fm.Title != "" {
		parts = append(parts, fm.Title)
	}
	if len(fm.Tags) > 0 {
		parts = append(parts, strings.Join(fm.Tags, " "))
	}
	if b := strings.TrimSpace(body); b != "" {
		parts = append(parts, b)
	}
	return strings.Join(parts, "\n"), nil
}

// splitFrontmatter separates a leading ----delimited YAML block from the body.
func splitFrontmatter(data []byte) (frontmatter, string) {
	const delim = "---"
	var fm frontmatter

	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return fm, string(data)
	}
	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return fm, string(data)
	}
	if err := yaml.Unmarshal(rest[:idx], &fm); err != nil {
		return frontmatter{}, string(data)
	}
	return fm, string(rest[idx+1+len(delim):])
}
