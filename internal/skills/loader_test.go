package skills

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSkill(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write skill: %v", err)
	}
}

func TestLoadDir_Frontmatter(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "review.md", `---
name: code-review
description: How to review code
tags: [coding, review]
---
# Code Review

Always check error handling first.`)

	loaded, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d skills, want 1", len(loaded))
	}
	s := loaded[0]
	if s.Name != "code-review" {
		t.Errorf("Name = %q, want code-review", s.Name)
	}
	if s.Description != "How to review code" {
		t.Errorf("Description = %q", s.Description)
	}
	if len(s.Tags) != 2 || s.Tags[0] != "coding" || s.Tags[1] != "review" {
		t.Errorf("Tags = %v", s.Tags)
	}
	if strings.Contains(s.Content, "---") || !strings.Contains(s.Content, "error handling") {
		t.Errorf("Content not stripped of frontmatter: %q", s.Content)
	}
}

func TestLoadDir_NoFrontmatter(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "cooking.md", "# Cooking Tips\n\nSalt early.")

	loaded, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d skills, want 1", len(loaded))
	}
	if loaded[0].Name != "cooking" {
		t.Errorf("Name = %q, want file stem", loaded[0].Name)
	}
	if loaded[0].Description != "Cooking Tips" {
		t.Errorf("Description = %q, want first heading", loaded[0].Description)
	}
}

func TestLoadDir_SkillDirectory(t *testing.T) {
	dir := t.TempDir()
	skillDir := filepath.Join(dir, "deploys")
	if err := os.MkdirAll(skillDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeSkill(t, skillDir, "SKILL.md", "Check the rollout dashboard before deploying.")
	// Directories without SKILL.md and non-markdown files are ignored.
	if err := os.MkdirAll(filepath.Join(dir, "empty"), 0755); err != nil {
		t.Fatal(err)
	}
	writeSkill(t, dir, "notes.txt", "not a skill")

	loaded, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d skills, want 1", len(loaded))
	}
	if loaded[0].Name != "deploys" {
		t.Errorf("Name = %q, want directory name", loaded[0].Name)
	}
}

func TestLoadDir_MissingDirectory(t *testing.T) {
	loaded, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("missing directory should not error: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("loaded %d skills from missing dir", len(loaded))
	}
}

func TestRegistry_ReplaceAndBuildContext(t *testing.T) {
	reg := NewRegistry()
	if ctx := reg.BuildContext(); ctx != "" {
		t.Errorf("empty registry should build empty context, got %q", ctx)
	}

	reg.Replace([]Skill{
		{Name: "b-skill", Content: "second"},
		{Name: "a-skill", Content: "first"},
	})
	if reg.Len() != 2 {
		t.Fatalf("Len = %d, want 2", reg.Len())
	}

	listed := reg.List()
	if listed[0].Name != "a-skill" || listed[1].Name != "b-skill" {
		t.Errorf("List should sort by name: %v", listed)
	}

	ctx := reg.BuildContext()
	if !strings.Contains(ctx, "## Skill: a-skill") || !strings.Contains(ctx, "first") {
		t.Errorf("BuildContext missing skill body: %q", ctx)
	}

	// Replace swaps the whole set.
	reg.Replace([]Skill{{Name: "only", Content: "x"}})
	if reg.Len() != 1 {
		t.Errorf("Replace should swap wholesale, Len = %d", reg.Len())
	}
	if _, ok := reg.Get("a-skill"); ok {
		t.Error("old skill should be gone after Replace")
	}
}
