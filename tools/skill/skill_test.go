package skill

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSkill(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadWithFrontmatter(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "git-workflow", `---
description: Git branching workflow
tags: git, vcs
---
Always branch from main.`)

	l := NewLoaderDirs(dir)
	got := l.Load("git-workflow")
	want := "<skill name=\"git-workflow\">\nAlways branch from main.\n</skill>"
	if got != want {
		t.Fatalf("load = %q, want %q", got, want)
	}
}

func TestDescriptionsIncludeTags(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "git-workflow", "---\ndescription: Git branching workflow\ntags: git, vcs\n---\nbody")

	desc := NewLoaderDirs(dir).Descriptions()
	if !strings.Contains(desc, "- git-workflow: Git branching workflow [git, vcs]") {
		t.Fatalf("descriptions = %q", desc)
	}
}

func TestDescriptionFallsBackToFirstParagraph(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "deploy", "# Deploying\n\nShip via the release\npipeline.\n\nMore detail later.")

	desc := NewLoaderDirs(dir).Descriptions()
	if !strings.Contains(desc, "- deploy: Ship via the release pipeline.") {
		t.Fatalf("descriptions = %q", desc)
	}
}

func TestDescriptionsEmpty(t *testing.T) {
	if got := NewLoaderDirs(t.TempDir()).Descriptions(); got != "(no skills available)" {
		t.Fatalf("descriptions = %q", got)
	}
}

func TestDirectoryPrecedence(t *testing.T) {
	hidden := t.TempDir()
	visible := t.TempDir()
	writeSkill(t, hidden, "deploy", "hidden body")
	writeSkill(t, visible, "deploy", "visible body")

	got := NewLoaderDirs(hidden, visible).Load("deploy")
	if !strings.Contains(got, "hidden body") || strings.Contains(got, "visible body") {
		t.Fatalf("load = %q", got)
	}
}

func TestFuzzyResolution(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "git-workflow", "body")

	l := NewLoaderDirs(dir)
	for _, ref := range []string{"Git Workflow", "git_workflow", "workflow-git", "skills/git-workflow.md", "gitworkflow"} {
		got := l.Load(ref)
		if !strings.Contains(got, "<skill name=\"git-workflow\">") {
			t.Errorf("ref %q not resolved: %q", ref, got)
		}
	}
}

func TestAliasFrontmatter(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "code-review", "---\naliases: review, cr\n---\nbody")

	got := NewLoaderDirs(dir).Load("cr")
	if !strings.Contains(got, "<skill name=\"code-review\">") {
		t.Fatalf("alias not resolved: %q", got)
	}
}

func TestUnknownSkillSuggests(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "git-workflow", "body")

	got := NewLoaderDirs(dir).Load("git-workflw")
	if !strings.HasPrefix(got, "Error: Unknown skill 'git-workflw'. Did you mean: ") {
		t.Fatalf("load = %q", got)
	}
	if !strings.Contains(got, "git-workflow") {
		t.Fatalf("suggestion missing: %q", got)
	}
}

func TestUnknownSkillNoSkills(t *testing.T) {
	got := NewLoaderDirs(t.TempDir()).Load("anything")
	if !strings.Contains(got, "Available: (none)") {
		t.Fatalf("load = %q", got)
	}
}

func TestRenderCatalog(t *testing.T) {
	dir := t.TempDir()
	if got := NewLoaderDirs(dir).RenderCatalog(); !strings.HasPrefix(got, "No skills found.") {
		t.Fatalf("empty catalog = %q", got)
	}
	writeSkill(t, dir, "deploy", "---\ndescription: Ship it\n---\nbody")
	got := NewLoaderDirs(dir).RenderCatalog()
	if !strings.Contains(got, "- deploy: Ship it (") || !strings.Contains(got, "deploy.md)") {
		t.Fatalf("catalog = %q", got)
	}
}

func TestExecute(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "deploy", "body")
	l := NewLoaderDirs(dir)

	result, err := l.Execute(context.Background(), "load_skill", json.RawMessage(`{"name":"deploy"}`))
	if err != nil {
		t.Fatal(err)
	}
	if result.Error != "" || !strings.Contains(result.Content, "<skill name=\"deploy\">") {
		t.Fatalf("result = %+v", result)
	}

	result, _ = l.Execute(context.Background(), "load_skill", json.RawMessage(`{"name":"nope"}`))
	if !strings.HasPrefix(result.Error, "Unknown skill 'nope'") {
		t.Fatalf("error = %q", result.Error)
	}
}
