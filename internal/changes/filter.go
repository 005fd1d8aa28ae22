// Package changes turns file system events and VCS diffs into change sets
// and drives re-evaluation in watch mode.
//
// Producers (the fsnotify Watcher and git diffs) feed raw events through a
// Debouncer into Compute, which applies the watch/ignore Filter. A Session
// assigns each resulting ChangeSet a sequence number and hands it to the
// single-slot Mailbox, so at most one set is pending while a pass runs.
package changes

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Filter decides which paths are watched. A path is included when it
// matches at least one watch pattern and no ignore pattern.
//
// Pattern forms:
//
//	*.go       glob matched against the base name and the full path
//	.go        bare extension, same as *.go
//	vendor/    any path that has a "vendor" directory component
//	**/gen.go  glob matched against every suffix of the path
type Filter struct {
	watch  []string
	ignore []string
}

// NewFilter validates the patterns and returns a Filter.
// An empty watch list matches every path.
func NewFilter(watch, ignore []string) (*Filter, error) {
	f := &Filter{}
	for _, p := range watch {
		p, err := normalizePattern(p)
		if err != nil {
			return nil, fmt.Errorf("watch pattern: %w", err)
		}
		if p != "" {
			f.watch = append(f.watch, p)
		}
	}
	for _, p := range ignore {
		p, err := normalizePattern(p)
		if err != nil {
			return nil, fmt.Errorf("ignore pattern: %w", err)
		}
		if p != "" {
			f.ignore = append(f.ignore, p)
		}
	}
	return f, nil
}

func normalizePattern(p string) (string, error) {
	p = strings.TrimSpace(filepath.ToSlash(p))
	if p == "" {
		return "", nil
	}
	if strings.HasPrefix(p, ".") && !strings.ContainsAny(p, "*?[/") && len(p) > 1 {
		p = "*" + p
	}
	glob := strings.TrimSuffix(strings.TrimPrefix(p, "**/"), "/")
	if _, err := path.Match(glob, ""); err != nil {
		return "", fmt.Errorf("%q: %w", p, err)
	}
	return p, nil
}

// Match reports whether p is watched and not ignored.
func (f *Filter) Match(p string) bool {
	if f == nil {
		return true
	}
	p = cleanPath(p)
	if f.Ignored(p) {
		return false
	}
	if len(f.watch) == 0 {
		return true
	}
	for _, pattern := range f.watch {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// Ignored reports whether p matches an ignore pattern. Ignore always wins
// over watch.
func (f *Filter) Ignored(p string) bool {
	if f == nil {
		return false
	}
	p = cleanPath(p)
	for _, pattern := range f.ignore {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// IgnoredDir reports whether a directory should be skipped entirely.
func (f *Filter) IgnoredDir(dir string) bool {
	if f == nil {
		return false
	}
	dir = cleanPath(dir)
	if dir == "." || dir == "" {
		return false
	}
	return f.Ignored(dir + "/")
}

func cleanPath(p string) string {
	p = filepath.ToSlash(p)
	p = strings.TrimPrefix(p, "./")
	return p
}

func matchPattern(pattern, p string) bool {
	if dir, ok := strings.CutSuffix(pattern, "/"); ok {
		return hasDirComponent(dir, p)
	}
	if rest, ok := strings.CutPrefix(pattern, "**/"); ok {
		for suffix := p; ; {
			if ok, _ := path.Match(rest, suffix); ok {
				return true
			}
			i := strings.IndexByte(suffix, '/')
			if i < 0 {
				return false
			}
			suffix = suffix[i+1:]
		}
	}
	if ok, _ := path.Match(pattern, p); ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		ok, _ := path.Match(pattern, path.Base(p))
		return ok
	}
	return false
}

// hasDirComponent reports whether dir (which may itself contain slashes)
// names a directory along p. The final element of p counts as a directory
// only when p ends with a slash.
func hasDirComponent(dir, p string) bool {
	isDir := strings.HasSuffix(p, "/")
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if !isDir {
		parts = parts[:len(parts)-1]
	}
	want := strings.Split(dir, "/")
	for i := 0; i+len(want) <= len(parts); i++ {
		matched := true
		for j, w := range want {
			if ok, _ := path.Match(w, parts[i+j]); !ok {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}
