package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/user/marmot/internal/runtime"
	"github.com/user/marmot/internal/skills"
)

// WriteSkillFile lets the model author new skills on disk.
type WriteSkillFile struct {
	skillsDir string
}

func NewWriteSkillFile(skillsDir string) *WriteSkillFile {
	return &WriteSkillFile{skillsDir: skillsDir}
}

func (t *WriteSkillFile) Name() string { return "write_skill_file" }
func (t *WriteSkillFile) Description() string {
	return "Write a file into a skill directory under the configured skills folder. Use this to create SKILL.md and any supporting files (reference docs, templates, scripts). Call reload_skills after ALL files for the skill are written."
}
func (t *WriteSkillFile) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"skill_name": {"type": "string", "description": "Skill directory name: lowercase letters, numbers, hyphens only, max 64 chars (e.g. 'creating-reports')"},
			"relative_path": {"type": "string", "description": "Path within the skill directory, e.g. 'SKILL.md', 'reference.md', 'scripts/helper.py'"},
			"content": {"type": "string", "description": "Full file content to write"}
		},
		"required": ["skill_name", "relative_path", "content"]
	}`)
}

func (t *WriteSkillFile) Execute(_ context.Context, call runtime.Call) (string, error) {
	var params struct {
		SkillName    string `json:"skill_name"`
		RelativePath string `json:"relative_path"`
		Content      string `json:"content"`
	}
	if err := json.Unmarshal(call.Args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.SkillName == "" {
		return "", fmt.Errorf("Missing 'skill_name' argument")
	}
	if params.RelativePath == "" {
		return "", fmt.Errorf("Missing 'relative_path' argument")
	}
	if err := validateSkillName(params.SkillName); err != nil {
		return "", fmt.Errorf("invalid skill_name: %w", err)
	}
	if err := validateSkillPath(params.RelativePath); err != nil {
		return "", fmt.Errorf("invalid relative_path: %w", err)
	}

	target := filepath.Join(t.skillsDir, params.SkillName, params.RelativePath)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create directories: %w", err)
	}
	if err := os.WriteFile(target, []byte(params.Content), 0o644); err != nil {
		return "", fmt.Errorf("write skill file: %w", err)
	}
	slog.Info("skill file written", "path", target)
	return "Written: " + target, nil
}

// ReloadSkills re-reads the skills directory and swaps the live registry.
type ReloadSkills struct {
	skillsDir string
	registry  *skills.Registry
}

func NewReloadSkills(skillsDir string, registry *skills.Registry) *ReloadSkills {
	return &ReloadSkills{skillsDir: skillsDir, registry: registry}
}

func (t *ReloadSkills) Name() string { return "reload_skills" }
func (t *ReloadSkills) Description() string {
	return "Reload all skills from the skills directory into memory. Call this after writing skill files to make the new skill immediately active without restarting the bot."
}
func (t *ReloadSkills) Parameters() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *ReloadSkills) Execute(_ context.Context, _ runtime.Call) (string, error) {
	loaded, err := skills.LoadDir(t.skillsDir)
	if err != nil {
		return "", fmt.Errorf("reload skills: %w", err)
	}
	t.registry.Replace(loaded)
	slog.Info("skills reloaded", "count", len(loaded))
	return fmt.Sprintf("Skills reloaded. %d skill(s) now active.", len(loaded)), nil
}

// validateSkillName restricts skill directories to lowercase letters,
// digits and hyphens, at most 64 chars.
func validateSkillName(name string) error {
	if len(name) > 64 {
		return fmt.Errorf("skill name too long (%d chars, max 64)", len(name))
	}
	for _, c := range name {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return fmt.Errorf("skill name may only contain lowercase letters, numbers and hyphens")
		}
	}
	return nil
}

// validateSkillPath rejects absolute paths and traversal out of the skill
// directory.
func validateSkillPath(relative string) error {
	if filepath.IsAbs(relative) {
		return fmt.Errorf("path must be relative")
	}
	clean := filepath.Clean(relative)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path must stay inside the skill directory")
	}
	return nil
}
