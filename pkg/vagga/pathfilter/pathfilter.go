// Package pathfilter implements the glob/regex walker used by build
// steps that snapshot working-copy trees into the container hash (Copy,
// Git, SubConfig). Semantics are ported from vagga's original path_filter
// crate: a compiled, ordered rule list where the first matching rule
// wins, and excluded directories are pruned rather than descended into.
package pathfilter

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Entry is one walked path, relative to the root that was walked.
type Entry struct {
	RelPath string
	IsDir   bool
}

// PathFilter is a compiled rule set: either a glob rule list or an
// ignore/include regex pair.
type PathFilter struct {
	globRules []globRule
	ignoreRe  *regexp.Regexp
	includeRe *regexp.Regexp
	isRegex   bool
}

type globRule struct {
	exclude  bool
	dirOnly  bool
	anchored bool
	pattern  string
}

// Glob compiles a sequence of include/exclude lines into a PathFilter.
// A leading '!' marks an exclude rule, a leading '/' anchors the rule to
// the walked root instead of any subtree, and a trailing '/' restricts
// the rule to a directory and everything beneath it.
func Glob(rules []string) (*PathFilter, error) {
	pf := &PathFilter{}
	for _, r := range rules {
		if r == "" {
			continue
		}
		rule := globRule{}
		s := r
		if strings.HasPrefix(s, "!") {
			rule.exclude = true
			s = s[1:]
		}
		if strings.HasPrefix(s, "/") {
			rule.anchored = true
			s = strings.TrimPrefix(s, "/")
		}
		if strings.HasSuffix(s, "/") {
			rule.dirOnly = true
			s = strings.TrimSuffix(s, "/")
		}
		// "/**/*.rs" is equivalent to the unanchored "*.rs".
		if strings.HasPrefix(s, "**/") {
			rule.anchored = false
			s = strings.TrimPrefix(s, "**/")
		}
		rule.pattern = s
		pf.globRules = append(pf.globRules, rule)
	}
	return pf, nil
}

// MustGlob is Glob but panics on error; used for the default "/" filter.
func MustGlob(rules []string) *PathFilter {
	pf, err := Glob(rules)
	if err != nil {
		panic(err)
	}
	return pf
}

// Regex compiles an optional ignore pattern (directories/files matching
// it are pruned) and an optional include pattern (only matching entries
// are walked) into a PathFilter.
func Regex(ignore, include *string) (*PathFilter, error) {
	pf := &PathFilter{isRegex: true}
	if ignore != nil && *ignore != "" {
		re, err := regexp.Compile(*ignore)
		if err != nil {
			return nil, err
		}
		pf.ignoreRe = re
	}
	if include != nil && *include != "" {
		re, err := regexp.Compile(*include)
		if err != nil {
			return nil, err
		}
		pf.includeRe = re
	}
	return pf, nil
}

// covers reports whether rule applies to relPath, either by matching it
// directly or because relPath is nested under a directory the rule
// names. Used for file inclusion and for directory-pruning decisions.
func covers(rule globRule, relPath string) bool {
	if rule.dirOnly {
		if rule.anchored {
			return relPath == rule.pattern || strings.HasPrefix(relPath, rule.pattern+"/")
		}
		for _, part := range strings.Split(relPath, "/") {
			if ok, _ := filepath.Match(rule.pattern, part); ok {
				return true
			}
		}
		return false
	}

	if rule.anchored {
		if rule.pattern == "" {
			return true // the bare "/" rule matches everything
		}
		if relPath == rule.pattern || strings.HasPrefix(relPath, rule.pattern+"/") {
			return true
		}
		ok, _ := filepath.Match(rule.pattern, relPath)
		return ok
	}

	if strings.Contains(rule.pattern, "/") {
		if ok, _ := filepath.Match(rule.pattern, relPath); ok {
			return true
		}
		parts := strings.Split(relPath, "/")
		for i := range parts {
			suffix := strings.Join(parts[i:], "/")
			if ok, _ := filepath.Match(rule.pattern, suffix); ok {
				return true
			}
		}
		return false
	}

	ok, _ := filepath.Match(rule.pattern, filepath.Base(relPath))
	return ok
}

// dirSelfMatch reports whether rule explicitly names relPath as a
// directory in its own right (not merely a descendant of a named
// directory). Only dirOnly rules can do this; it is how a build step
// decides to list the directory entry itself, as distinct from covering
// its contents.
func dirSelfMatch(rule globRule, relPath string) bool {
	if !rule.dirOnly {
		return false
	}
	if rule.anchored {
		return relPath == rule.pattern
	}
	ok, _ := filepath.Match(rule.pattern, filepath.Base(relPath))
	return ok
}

func (pf *PathFilter) includeFile(relPath string) bool {
	for _, rule := range pf.globRules {
		if covers(rule, relPath) {
			return !rule.exclude
		}
	}
	return false
}

func (pf *PathFilter) includeDirSelf(relPath string) bool {
	for _, rule := range pf.globRules {
		if dirSelfMatch(rule, relPath) {
			return !rule.exclude
		}
	}
	return false
}

func (pf *PathFilter) pruneDir(relPath string) bool {
	for _, rule := range pf.globRules {
		if covers(rule, relPath) {
			return rule.exclude
		}
	}
	return false
}

// Walk performs a lazy, finite, non-restartable walk over root,
// producing entries in deterministic lexicographic order. Excluded
// directories are pruned, not descended into.
func (pf *PathFilter) Walk(root string) ([]Entry, error) {
	var out []Entry
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if pf.isRegex {
			if pf.ignoreRe != nil && pf.ignoreRe.MatchString(rel) {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if pf.includeRe != nil && !pf.includeRe.MatchString(rel) {
				return nil
			}
			out = append(out, Entry{RelPath: rel, IsDir: info.IsDir()})
			return nil
		}

		if info.IsDir() {
			if pf.pruneDir(rel) {
				return filepath.SkipDir
			}
			if pf.includeDirSelf(rel) {
				out = append(out, Entry{RelPath: rel, IsDir: true})
			}
			return nil
		}

		if pf.includeFile(rel) {
			out = append(out, Entry{RelPath: rel, IsDir: false})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelPath < out[j].RelPath })
	return out, nil
}
