package mirror

import (
	"bufio"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"
)

// IgnoreList excludes paths (relative to the tree roots) from synchronization.
// Ignored entries are invisible on both sides: never copied, never removed.
type IgnoreList struct {
	ignore *gitignore.GitIgnore
	rules  int
}

// NewIgnoreList compiles gitignore-style lines. Blank lines and comments are skipped.
func NewIgnoreList(lines ...string) *IgnoreList {
	rules := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rules = append(rules, line)
	}
	return &IgnoreList{
		ignore: gitignore.CompileIgnoreLines(rules...),
		rules:  len(rules),
	}
}

// LoadIgnoreList reads patterns from path. A missing file yields an empty list.
func LoadIgnoreList(fs afero.Fs, path string) (*IgnoreList, error) {
	if path == "" {
		return NewIgnoreList(), nil
	}

	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, fmt.Errorf("stat ignore file: %w", err)
	}
	if !exists {
		slog.Warn("ignore file not found, nothing will be ignored", "path", path)
		return NewIgnoreList(), nil
	}

	file, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ignore file: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ignore file: %w", err)
	}

	list := NewIgnoreList(lines...)
	slog.Info("loaded ignore file", "path", path, "rules", list.rules)
	return list, nil
}

// Rules returns the number of compiled patterns
func (l *IgnoreList) Rules() int {
	if l == nil {
		return 0
	}
	return l.rules
}

// ShouldIgnore reports whether relPath matches. Directories are matched with a trailing slash
// so that patterns like "build/" apply to them.
func (l *IgnoreList) ShouldIgnore(relPath string, isDir bool) bool {
	if l == nil || l.rules == 0 {
		return false
	}
	relPath = filepath.ToSlash(relPath)
	if isDir && !strings.HasSuffix(relPath, "/") {
		relPath += "/"
	}
	return l.ignore.MatchesPath(relPath)
}
