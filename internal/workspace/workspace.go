// Package workspace confines filesystem and shell activity to a single
// directory tree and enforces command safety policies.
package workspace

import (
	"fmt"
	"path/filepath"
	"strings"
)

// dangerousSubstrings reject a shell command outright, regardless of role.
var dangerousSubstrings = []string{"rm -rf /", "sudo", "shutdown", "reboot", "> /dev/"}

// Root is a canonical workspace directory below which all filesystem
// operations are confined.
type Root struct {
	path string
}

// NewRoot canonicalizes dir and returns the workspace root.
func NewRoot(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return &Root{path: abs}, nil
}

// Path returns the canonical root directory.
func (r *Root) Path() string {
	return r.path
}

// Resolve joins path (relative or absolute) against the root, canonicalizes
// it, and verifies the result stays inside the tree.
func (r *Root) Resolve(path string) (string, error) {
	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(r.path, candidate)
	}
	candidate = filepath.Clean(candidate)

	// Canonicalize through the deepest existing ancestor so symlinked
	// components cannot step outside the tree.
	if resolved, err := filepath.EvalSymlinks(candidate); err == nil {
		candidate = resolved
	} else {
		dir := filepath.Dir(candidate)
		if resolvedDir, dirErr := filepath.EvalSymlinks(dir); dirErr == nil {
			candidate = filepath.Join(resolvedDir, filepath.Base(candidate))
		}
	}

	rel, err := filepath.Rel(r.path, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return candidate, nil
}

// CheckCommand rejects commands containing dangerous substrings.
func CheckCommand(command string) error {
	for _, s := range dangerousSubstrings {
		if strings.Contains(command, s) {
			return fmt.Errorf("Dangerous command blocked")
		}
	}
	return nil
}

// readOnlyRoles are role names that restrict a teammate to read-only
// filesystem and shell access.
var readOnlyRoles = map[string]bool{
	"readonly":  true,
	"read-only": true,
	"review":    true,
	"reviewer":  true,
	"qa":        true,
	"research":  true,
	"auditor":   true,
	"observer":  true,
}

// IsReadOnlyRole reports whether the role name implies read-only access.
func IsReadOnlyRole(role string) bool {
	return readOnlyRoles[strings.ToLower(strings.TrimSpace(role))]
}

// readOnlyCommands is the bash allowlist for read-only roles. sed is allowed
// only without -i; git is allowed only with the subcommands below.
var readOnlyCommands = map[string]bool{
	"pwd":  true,
	"ls":   true,
	"cat":  true,
	"head": true,
	"tail": true,
	"wc":   true,
	"rg":   true,
	"find": true,
	"sed":  true,
	"git":  true,
}

var readOnlyGitSubcommands = map[string]bool{
	"status":    true,
	"diff":      true,
	"log":       true,
	"show":      true,
	"branch":    true,
	"rev-parse": true,
}

// shellMetacharacters disqualify a command from the read-only allowlist
// because they can chain or redirect into writes.
var shellMetacharacters = []string{";", "&&", "||", "|", ">", "<", "$(", "`", "\n"}

// CheckReadOnlyCommand verifies a bash command against the read-only
// allowlist. The returned error message describes the violation.
func CheckReadOnlyCommand(command string) error {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return fmt.Errorf("bash command is empty")
	}
	for _, meta := range shellMetacharacters {
		if strings.Contains(trimmed, meta) {
			if meta == "\n" {
				return fmt.Errorf("bash command contains a newline")
			}
			return fmt.Errorf("bash command contains '%s'", meta)
		}
	}

	fields := strings.Fields(trimmed)
	name := fields[0]
	if !readOnlyCommands[name] {
		return fmt.Errorf("bash command '%s' is not in the read-only allowlist", name)
	}
	switch name {
	case "sed":
		for _, f := range fields[1:] {
			if f == "-i" || strings.HasPrefix(f, "-i.") || strings.HasPrefix(f, "--in-place") {
				return fmt.Errorf("sed -i modifies files")
			}
		}
	case "git":
		if len(fields) < 2 || !readOnlyGitSubcommands[fields[1]] {
			return fmt.Errorf("git subcommand is not in the read-only allowlist")
		}
	}
	return nil
}
