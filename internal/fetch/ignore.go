package fetch

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ignoreMatcher applies gitignore-style patterns during folder walks.
// Supported syntax: comments, negation with !, directory-only patterns with
// a trailing slash, anchoring with a leading or embedded slash, * ? and **.
// Later patterns win, as in git.
type ignoreMatcher struct {
	rules []ignoreRule
}

type ignoreRule struct {
	re       *regexp.Regexp
	negation bool
	dirOnly  bool
}

// loadIgnoreFile reads a .gitignore at the folder root. A missing file
// yields an empty matcher.
func loadIgnoreFile(root string) *ignoreMatcher {
	m := &ignoreMatcher{}
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		return m
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m.addPattern(scanner.Text())
	}
	return m
}

func (m *ignoreMatcher) addPattern(pattern string) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return
	}

	rule := ignoreRule{}
	if strings.HasPrefix(pattern, "!") {
		rule.negation = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		rule.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	// A slash anywhere but the end anchors the pattern to the root.
	anchored := strings.Contains(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "/")

	re, err := compileIgnorePattern(pattern, anchored)
	if err != nil {
		return
	}
	rule.re = re
	m.rules = append(m.rules, rule)
}

// compileIgnorePattern turns a gitignore glob into a regexp over the
// slash-separated relative path.
func compileIgnorePattern(pattern string, anchored bool) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	if !anchored {
		b.WriteString(`(?:.*/)?`)
	}

	i := 0
	for i < len(pattern) {
		switch {
		case strings.HasPrefix(pattern[i:], "**/"):
			b.WriteString(`(?:.*/)?`)
			i += 3
		case strings.HasPrefix(pattern[i:], "**"):
			b.WriteString(`.*`)
			i += 2
		case pattern[i] == '*':
			b.WriteString(`[^/]*`)
			i++
		case pattern[i] == '?':
			b.WriteString(`[^/]`)
			i++
		default:
			b.WriteString(regexp.QuoteMeta(string(pattern[i])))
			i++
		}
	}
	b.WriteString(`$`)
	return regexp.Compile(b.String())
}

// Match reports whether the relative path is ignored. Paths use forward
// slashes. An ignored directory ignores everything below it.
func (m *ignoreMatcher) Match(rel string, isDir bool) bool {
	rel = filepath.ToSlash(rel)
	ignored := false
	for _, rule := range m.rules {
		if rule.matches(rel, isDir) {
			ignored = !rule.negation
		}
	}
	return ignored
}

func (r ignoreRule) matches(rel string, isDir bool) bool {
	if r.re.MatchString(rel) && (isDir || !r.dirOnly) {
		return true
	}
	// Any matching ancestor directory excludes the whole subtree.
	for parent := parentDir(rel); parent != "." && parent != "/"; parent = parentDir(parent) {
		if r.re.MatchString(parent) {
			return true
		}
	}
	return false
}

func parentDir(p string) string {
	return filepath.ToSlash(filepath.Dir(p))
}
