// Package skill loads Markdown skill files from the workspace and exposes
// them to agents via the load_skill tool. Metadata goes into the system
// prompt; full bodies are pulled on demand.
package skill

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
	"golang.org/x/text/unicode/norm"

	anuris "github.com/anuris-ai/anuris"
)

// Skill is one loaded skill file.
type Skill struct {
	Name        string
	Description string
	Tags        string
	Body        string
	Path        string
}

// Loader scans skill directories on every public call so runtime edits are
// visible without restarts. The hidden directory takes precedence over the
// visible one.
type Loader struct {
	dirs []string
}

// NewLoader creates a loader over the default directories under
// workspaceRoot: .anuris_skills (higher precedence) and skills.
func NewLoader(workspaceRoot string) *Loader {
	return &Loader{dirs: []string{
		filepath.Join(workspaceRoot, ".anuris_skills"),
		filepath.Join(workspaceRoot, "skills"),
	}}
}

// NewLoaderDirs creates a loader over explicit directories, earlier
// directories taking precedence.
func NewLoaderDirs(dirs ...string) *Loader {
	return &Loader{dirs: dirs}
}

// scan reads all skill files and rebuilds the alias map.
func (l *Loader) scan() (map[string]Skill, map[string]string) {
	skills := make(map[string]Skill)
	aliases := make(map[string]string)
	for _, dir := range l.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".md") {
				names = append(names, entry.Name())
			}
		}
		sort.Strings(names)
		for _, fileName := range names {
			name := strings.TrimSuffix(fileName, ".md")
			if _, exists := skills[name]; exists {
				continue
			}
			path := filepath.Join(dir, fileName)
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			meta, body := parseFrontmatter(string(data))
			description := meta["description"]
			if description == "" {
				description = firstParagraph(body)
			}
			if description == "" {
				description = "No description"
			}
			skills[name] = Skill{
				Name:        name,
				Description: description,
				Tags:        meta["tags"],
				Body:        body,
				Path:        path,
			}
			for alias := range buildAliases(name, meta["aliases"], meta["tags"]) {
				if _, exists := aliases[alias]; !exists {
					aliases[alias] = name
				}
			}
		}
	}
	return skills, aliases
}

// Descriptions returns compact metadata for system-prompt injection.
func (l *Loader) Descriptions() string {
	skills, _ := l.scan()
	if len(skills) == 0 {
		return "(no skills available)"
	}
	lines := make([]string, 0, len(skills))
	for _, name := range sortedKeys(skills) {
		s := skills[name]
		line := fmt.Sprintf("- %s: %s", name, s.Description)
		if s.Tags != "" {
			line += fmt.Sprintf(" [%s]", s.Tags)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// RenderCatalog returns a human-readable catalog with paths, for host
// commands.
func (l *Loader) RenderCatalog() string {
	skills, _ := l.scan()
	if len(skills) == 0 {
		return "No skills found. Add Markdown files under .anuris_skills/ or skills/."
	}
	lines := make([]string, 0, len(skills))
	for _, name := range sortedKeys(skills) {
		s := skills[name]
		lines = append(lines, fmt.Sprintf("- %s: %s (%s)", name, s.Description, s.Path))
	}
	return strings.Join(lines, "\n")
}

// Load resolves name through the alias map and returns the wrapped skill
// body, or an error string with a close-match suggestion.
func (l *Loader) Load(name string) string {
	skills, aliases := l.scan()
	resolved := resolveName(name, skills, aliases)
	s, ok := skills[resolved]
	if !ok {
		available := strings.Join(sortedKeys(skills), ", ")
		if available == "" {
			available = "(none)"
		}
		if hint := suggest(name, skills, aliases); hint != "" {
			return fmt.Sprintf("Error: Unknown skill '%s'. Did you mean: %s? Available: %s", name, hint, available)
		}
		return fmt.Sprintf("Error: Unknown skill '%s'. Available: %s", name, available)
	}
	return fmt.Sprintf("<skill name=%q>\n%s\n</skill>", resolved, s.Body)
}

// --- tool surface ---

func (l *Loader) Definitions() []anuris.ToolDefinition {
	return []anuris.ToolDefinition{{
		Name:        "load_skill",
		Description: "Load the full body of a named skill. Use when a listed skill matches the current task.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"name":{"type":"string","description":"Skill name from the available skills list"}},"required":["name"]}`),
	}}
}

func (l *Loader) Execute(ctx context.Context, _ string, args json.RawMessage) (anuris.ToolResult, error) {
	var params struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return anuris.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	out := l.Load(params.Name)
	if strings.HasPrefix(out, "Error: ") {
		return anuris.ToolResult{Error: strings.TrimPrefix(out, "Error: ")}, nil
	}
	return anuris.ToolResult{Content: out}, nil
}

// --- parsing and resolution ---

var frontmatterRe = regexp.MustCompile(`(?s)^---\n(.*?)\n---\n(.*)`)

func parseFrontmatter(text string) (map[string]string, string) {
	m := frontmatterRe.FindStringSubmatch(text)
	if m == nil {
		return map[string]string{}, strings.TrimSpace(text)
	}
	meta := make(map[string]string)
	for _, line := range strings.Split(strings.TrimSpace(m[1]), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		meta[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return meta, strings.TrimSpace(m[2])
}

// firstParagraph extracts the first paragraph of the Markdown body, used as
// the description when frontmatter has none.
func firstParagraph(body string) string {
	src := []byte(body)
	doc := goldmark.DefaultParser().Parse(gmtext.NewReader(src))
	var out string
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		p, ok := n.(*ast.Paragraph)
		if !ok {
			return ast.WalkContinue, nil
		}
		var b strings.Builder
		lines := p.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.Write(seg.Value(src))
			b.WriteString(" ")
		}
		out = strings.Join(strings.Fields(b.String()), " ")
		return ast.WalkStop, nil
	})
	return out
}

var nonNameRe = regexp.MustCompile(`[^a-z0-9_-]+`)
var dashRunRe = regexp.MustCompile(`-{2,}`)

// normalize folds a raw skill reference to canonical form: NFKC, lowercase,
// last path segment, no .md suffix, dashes for everything else.
func normalize(raw string) string {
	s := norm.NFKC.String(strings.TrimSpace(raw))
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, `\`, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(s, ".md")
	s = nonNameRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	s = strings.ReplaceAll(s, "_", "-")
	s = dashRunRe.ReplaceAllString(s, "-")
	return s
}

// tokenSignature returns the sorted dash-joined tokens of a normalized name,
// or "" for single-token names.
func tokenSignature(token string) string {
	var parts []string
	for _, p := range strings.Split(token, "-") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return ""
	}
	sort.Strings(parts)
	return strings.Join(parts, "-")
}

func buildAliases(name, aliasesRaw, tagsRaw string) map[string]bool {
	aliases := make(map[string]bool)
	add := func(s string) {
		if s == "" {
			return
		}
		aliases[s] = true
		if sig := tokenSignature(s); sig != "" {
			aliases[sig] = true
		}
	}

	canonical := normalize(name)
	if canonical != "" {
		aliases[canonical] = true
		if after, ok := strings.CutPrefix(canonical, "nb-"); ok {
			aliases[after] = true
		}
		aliases[strings.ReplaceAll(canonical, "-", "")] = true
		if sig := tokenSignature(canonical); sig != "" {
			aliases[sig] = true
		}
	}
	for _, tag := range strings.Split(tagsRaw, ",") {
		add(normalize(tag))
	}
	for _, alias := range strings.Split(aliasesRaw, ",") {
		add(normalize(alias))
	}
	delete(aliases, "")
	return aliases
}

func resolveName(requested string, skills map[string]Skill, aliases map[string]string) string {
	exact := strings.TrimSpace(requested)
	if _, ok := skills[exact]; ok {
		return exact
	}

	normalized := normalize(requested)
	if normalized == "" {
		return exact
	}
	if _, ok := skills[normalized]; ok {
		return normalized
	}
	if canonical, ok := aliases[normalized]; ok {
		return canonical
	}
	if sig := tokenSignature(normalized); sig != "" {
		if canonical, ok := aliases[sig]; ok {
			return canonical
		}
	}
	if after, ok := strings.CutPrefix(normalized, "nb-"); ok {
		if canonical, ok := aliases[after]; ok {
			return canonical
		}
	} else if _, ok := skills["nb-"+normalized]; ok {
		return "nb-" + normalized
	}
	return exact
}

// suggest returns up to three close canonical names by edit-distance ratio.
func suggest(requested string, skills map[string]Skill, aliases map[string]string) string {
	normalized := normalize(requested)
	candidates := make(map[string]bool, len(skills)+len(aliases))
	for name := range skills {
		candidates[name] = true
	}
	for alias := range aliases {
		candidates[alias] = true
	}

	type match struct {
		name  string
		ratio float64
	}
	var matches []match
	for _, c := range sortedBoolKeys(candidates) {
		if r := similarity(normalized, c); r >= 0.5 {
			matches = append(matches, match{c, r})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].ratio > matches[j].ratio })
	if len(matches) > 3 {
		matches = matches[:3]
	}

	var canonical []string
	seen := make(map[string]bool)
	for _, m := range matches {
		name := m.name
		if c, ok := aliases[name]; ok {
			name = c
		}
		if !seen[name] {
			seen[name] = true
			canonical = append(canonical, name)
		}
	}
	return strings.Join(canonical, ", ")
}

// similarity is 1 - levenshtein/maxlen, a cheap stand-in for sequence ratio.
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	longest := max(len(a), len(b))
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func sortedKeys(m map[string]Skill) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedBoolKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
