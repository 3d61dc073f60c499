// internal/skills/loader.go
package skills

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LoadDir reads every skill under dir. Two layouts are accepted:
//
//	skills/my-skill.md          standalone markdown file
//	skills/my-skill/SKILL.md    directory holding a SKILL.md
//
// Files may open with YAML-ish frontmatter carrying name, description and
// tags; everything after it is the instruction body. A missing directory
// is not an error.
func LoadDir(dir string) ([]Skill, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("skills directory not found, skipping", "dir", dir)
			return nil, nil
		}
		return nil, fmt.Errorf("read skills directory: %w", err)
	}

	var out []Skill
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			path = filepath.Join(path, "SKILL.md")
			if _, err := os.Stat(path); err != nil {
				continue
			}
		} else if filepath.Ext(entry.Name()) != ".md" {
			continue
		}

		skill, err := loadFile(path)
		if err != nil {
			slog.Warn("failed to load skill", "path", path, "error", err)
			continue
		}
		out = append(out, skill)
	}
	return out, nil
}

func loadFile(path string) (Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Skill{}, fmt.Errorf("read skill file: %w", err)
	}
	content := string(data)

	if rest, ok := strings.CutPrefix(content, "---"); ok {
		if end := strings.Index(rest, "---"); end >= 0 {
			frontmatter := strings.TrimSpace(rest[:end])
			body := strings.TrimSpace(rest[end+3:])

			skill := Skill{
				Name:        frontmatterField(frontmatter, "name"),
				Description: frontmatterField(frontmatter, "description"),
				Content:     body,
				Tags:        frontmatterList(frontmatter, "tags"),
			}
			if skill.Name == "" {
				skill.Name = nameFromPath(path)
			}
			if skill.Description == "" {
				skill.Description = firstLineOrHeading(body)
			}
			return skill, nil
		}
	}

	return Skill{
		Name:        nameFromPath(path),
		Description: firstLineOrHeading(content),
		Content:     content,
	}, nil
}

// frontmatterField pulls a simple "key: value" line out of the frontmatter.
func frontmatterField(frontmatter, key string) string {
	prefix := key + ":"
	for _, line := range strings.Split(frontmatter, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, prefix); ok {
			value := strings.Trim(strings.TrimSpace(rest), `"'`)
			if value != "" {
				return value
			}
		}
	}
	return ""
}

// frontmatterList pulls a "key: [a, b, c]" line out of the frontmatter.
func frontmatterList(frontmatter, key string) []string {
	prefix := key + ":"
	for _, line := range strings.Split(frontmatter, "\n") {
		line = strings.TrimSpace(line)
		rest, ok := strings.CutPrefix(line, prefix)
		if !ok {
			continue
		}
		rest = strings.TrimSpace(rest)
		if !strings.HasPrefix(rest, "[") || !strings.HasSuffix(rest, "]") {
			continue
		}
		var out []string
		for _, item := range strings.Split(rest[1:len(rest)-1], ",") {
			item = strings.Trim(strings.TrimSpace(item), `"'`)
			if item != "" {
				out = append(out, item)
			}
		}
		return out
	}
	return nil
}

func nameFromPath(path string) string {
	// SKILL.md inside a directory takes the directory's name.
	if filepath.Base(path) == "SKILL.md" {
		return filepath.Base(filepath.Dir(path))
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// firstLineOrHeading returns the first heading text, or the first
// non-empty line, as a fallback description.
func firstLineOrHeading(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if heading, ok := strings.CutPrefix(line, "#"); ok {
			return strings.TrimSpace(strings.TrimLeft(heading, "#"))
		}
		return line
	}
	return "No description"
}
