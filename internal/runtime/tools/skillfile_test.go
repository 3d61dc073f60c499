package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/marmot/internal/skills"
)

func TestWriteSkillFile_ThenReload(t *testing.T) {
	skillsDir := t.TempDir()
	write := NewWriteSkillFile(skillsDir)
	registry := skills.NewRegistry()
	reload := NewReloadSkills(skillsDir, registry)
	ctx := context.Background()

	_, err := write.Execute(ctx, callWith(t, map[string]any{
		"skill_name":    "weekly-report",
		"relative_path": "SKILL.md",
		"content":       "# Weekly Report\n\nCollect the numbers first.",
	}))
	if err != nil {
		t.Fatalf("write_skill_file failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(skillsDir, "weekly-report", "SKILL.md")); err != nil {
		t.Fatalf("skill file not on disk: %v", err)
	}

	result, err := reload.Execute(ctx, callWith(t, map[string]any{}))
	if err != nil {
		t.Fatalf("reload_skills failed: %v", err)
	}
	if !strings.Contains(result, "1 skill(s) now active") {
		t.Errorf("unexpected result: %q", result)
	}
	if _, ok := registry.Get("weekly-report"); !ok {
		t.Error("reloaded registry should contain the new skill")
	}
}

func TestWriteSkillFile_RejectsBadNames(t *testing.T) {
	write := NewWriteSkillFile(t.TempDir())
	ctx := context.Background()

	bad := []map[string]any{
		{"skill_name": "Has Spaces", "relative_path": "SKILL.md", "content": "x"},
		{"skill_name": "UPPER", "relative_path": "SKILL.md", "content": "x"},
		{"skill_name": strings.Repeat("a", 65), "relative_path": "SKILL.md", "content": "x"},
		{"skill_name": "ok-name", "relative_path": "../escape.md", "content": "x"},
		{"skill_name": "ok-name", "relative_path": "/etc/passwd", "content": "x"},
	}
	for _, argsMap := range bad {
		if _, err := write.Execute(ctx, callWith(t, argsMap)); err == nil {
			t.Errorf("expected rejection for %v", argsMap)
		}
	}
}
