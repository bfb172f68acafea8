// Package envfile reads and rewrites a line-oriented KEY=value credential
// file (conventionally .env). Unrelated lines, comments and ordering are
// preserved across rewrites; writes go through a temp file and rename so a
// crash mid-write cannot truncate the stored tokens. Single-writer: the tool
// assumes no other process rewrites the file concurrently.
package envfile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store is a handle to one credential file.
type Store struct {
	path string
}

// New returns a Store for path. The file may not exist yet; it is created on
// the first Set.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load parses the file into a key→value map. A missing file yields an empty
// map, not an error, so first-run authorization can populate it.
func (s *Store) Load() (map[string]string, error) {
	out := map[string]string{}
	f, err := os.Open(filepath.Clean(s.path))
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if eq := strings.IndexByte(line, '='); eq > 0 {
			key := strings.TrimSpace(line[:eq])
			val := strings.TrimSpace(line[eq+1:])
			out[key] = val
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return out, nil
}

// Get returns the value for key or "" when absent or the file is unreadable.
func (s *Store) Get(key string) string {
	vals, err := s.Load()
	if err != nil {
		return ""
	}
	return vals[key]
}

// Set replaces the values of the given keys in place, appending keys the file
// does not contain yet. Every other line (comments, blanks, unrelated keys)
// is written back untouched. The rewrite is atomic: temp file in the same
// directory, then rename.
func (s *Store) Set(pairs map[string]string) error {
	var lines []string
	if data, err := os.ReadFile(filepath.Clean(s.path)); err == nil {
		lines = strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		if len(lines) == 1 && lines[0] == "" {
			lines = nil
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", s.path, err)
	}

	written := map[string]bool{}
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		eq := strings.IndexByte(trimmed, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(trimmed[:eq])
		if val, ok := pairs[key]; ok {
			lines[i] = key + "=" + val
			written[key] = true
		}
	}
	// deterministic append order for keys not yet in the file
	for _, key := range sortedKeys(pairs) {
		if !written[key] {
			lines = append(lines, key+"="+pairs[key])
		}
	}

	return s.writeAtomic(strings.Join(lines, "\n") + "\n")
}

func (s *Store) writeAtomic(content string) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".env-*")
	if err != nil {
		return fmt.Errorf("create temp credential file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp credential file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
