// Package importer bulk-loads Markdown product documents as page entities.
// Each file becomes one tenant-scoped page snapshot delivered through the
// regular on-write hook, so imports flow through the same queue and indexing
// path as entity writes from the product layer.
package importer

import (
	"bufio"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ParsedDoc is one Markdown file reduced to the fields a page entity needs.
type ParsedDoc struct {
	// Title comes from frontmatter, the first H1 heading, or the filename,
	// in that order.
	Title string

	// Body is the Markdown body with frontmatter stripped and [[links]]
	// flattened to their display text.
	Body string

	// Attributes holds frontmatter scalars (status, owner, ...) plus the
	// source path and section derived from the directory layout.
	Attributes map[string]string

	// UpdatedAt is the frontmatter date when present, zero otherwise.
	UpdatedAt time.Time
}

// ParseMarkdown parses one file's content. relativePath names the file
// within the import root and feeds the title and section fallbacks.
func ParseMarkdown(content []byte, relativePath string) (*ParsedDoc, error) {
	fm, body, err := splitFrontmatter(string(content))
	if err != nil {
		return nil, fmt.Errorf("frontmatter parse error in %s: %w", relativePath, err)
	}

	title := frontmatterString(fm, "title")
	if title == "" {
		if h1 := firstHeading(body); h1 != "" {
			title = h1
			body = stripHeading(body, h1)
		}
	}
	if title == "" {
		title = titleFromPath(relativePath)
	}

	attrs := map[string]string{
		"source_path": filepath.ToSlash(relativePath),
	}
	if section := sectionFromPath(relativePath); section != "" {
		attrs["section"] = section
	}
	for key, raw := range fm {
		switch key {
		case "title", "date", "created", "updated":
			continue
		}
		if s, ok := raw.(string); ok && s != "" {
			attrs[key] = s
		}
	}
	if tags := frontmatterTags(fm); len(tags) > 0 {
		attrs["tags"] = strings.Join(tags, ", ")
	}

	return &ParsedDoc{
		Title:      title,
		Body:       flattenLinks(strings.TrimSpace(body)),
		Attributes: attrs,
		UpdatedAt:  frontmatterTime(fm),
	}, nil
}

// splitFrontmatter separates YAML frontmatter (between --- delimiters) from
// the body. Files without frontmatter come back with an empty map.
func splitFrontmatter(text string) (map[string]interface{}, string, error) {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return map[string]interface{}{}, text, nil
	}

	closeIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			closeIdx = i
			break
		}
	}
	if closeIdx == -1 {
		return map[string]interface{}{}, text, nil
	}

	fm := make(map[string]interface{})
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:closeIdx], "\n")), &fm); err != nil {
		return nil, "", fmt.Errorf("invalid YAML: %w", err)
	}
	return fm, strings.Join(lines[closeIdx+1:], "\n"), nil
}

// firstHeading returns the text of the first ATX H1 in the body.
func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}

// stripHeading removes the first H1 line whose text matches title, so the
// title is not repeated inside the page body.
func stripHeading(body, title string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "# ") && strings.TrimSpace(line[2:]) == title {
			return strings.Join(append(lines[:i], lines[i+1:]...), "\n")
		}
	}
	return body
}

// titleFromPath turns "release-notes/q3_plan.md" into "q3 plan".
func titleFromPath(rel string) string {
	base := filepath.Base(rel)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.ReplaceAll(name, "_", " ")
	return strings.TrimSpace(name)
}

// sectionFromPath returns the top-level directory of the relative path, or
// "" for files at the import root.
func sectionFromPath(rel string) string {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) > 1 {
		return strings.ToLower(strings.TrimSpace(parts[0]))
	}
	return ""
}

func frontmatterString(fm map[string]interface{}, key string) string {
	if s, ok := fm[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// frontmatterTags reads tags as either a YAML list or a comma-separated
// string.
func frontmatterTags(fm map[string]interface{}) []string {
	var tags []string
	switch v := fm["tags"].(type) {
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				tags = append(tags, strings.TrimSpace(s))
			}
		}
	case string:
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}
	return tags
}

// frontmatterTime tries the common date keys and layouts.
func frontmatterTime(fm map[string]interface{}) time.Time {
	layouts := []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}
	for _, key := range []string{"date", "updated", "created"} {
		raw, ok := fm[key]
		if !ok {
			continue
		}
		if t, ok := raw.(time.Time); ok {
			return t
		}
		s := strings.TrimSpace(fmt.Sprintf("%v", raw))
		for _, layout := range layouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

// linkRe matches [[target]] and [[target|display]] document links.
var linkRe = regexp.MustCompile(`\[\[([^\]|]+)(?:\|([^\]]+))?\]\]`)

// flattenLinks replaces [[links]] with their display text so the indexed
// content reads as prose.
func flattenLinks(body string) string {
	return linkRe.ReplaceAllStringFunc(body, func(match string) string {
		groups := linkRe.FindStringSubmatch(match)
		if groups[2] != "" {
			return strings.TrimSpace(groups[2])
		}
		return strings.TrimSpace(groups[1])
	})
}
