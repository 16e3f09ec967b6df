// Package manifest reads .scp data-file manifests: one utterance per line,
// an utterance key followed by the value (usually a path or a command).
package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Entry is one line of a manifest.
type Entry struct {
	Key   string
	Value string
	Line  int
}

// Manifest is a parsed .scp file.
type Manifest struct {
	Path    string
	Entries []Entry
	index   map[string]int
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	defer f.Close()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	m.Path = path
	return m, nil
}

// Parse reads manifest lines from r. Blank lines and lines starting with '#'
// are skipped; a key without a value or a repeated key is an error.
func Parse(r io.Reader) (*Manifest, error) {
	m := &Manifest{index: make(map[string]int)}
	var errs []string

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		key, value := text, ""
		if i := strings.IndexAny(text, " \t"); i >= 0 {
			key, value = text[:i], strings.TrimSpace(text[i+1:])
		}
		if value == "" {
			errs = append(errs, fmt.Sprintf("line %d: key '%s' has no value", line, key))
			continue
		}
		if prev, dup := m.index[key]; dup {
			errs = append(errs, fmt.Sprintf("line %d: duplicate key '%s' (first on line %d)", line, key, m.Entries[prev].Line))
			continue
		}

		m.index[key] = len(m.Entries)
		m.Entries = append(m.Entries, Entry{Key: key, Value: value, Line: line})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if len(errs) > 0 {
		return nil, &ParseError{Errors: errs}
	}
	return m, nil
}

// ParseError holds every malformed line of a manifest.
type ParseError struct {
	Errors []string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed manifest:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Lookup returns the value recorded for key.
func (m *Manifest) Lookup(key string) (string, bool) {
	i, ok := m.index[key]
	if !ok {
		return "", false
	}
	return m.Entries[i].Value, true
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	return len(m.Entries)
}

// Missing returns the keys of m that other does not contain, in file order.
func (m *Manifest) Missing(other *Manifest) []string {
	var out []string
	for _, e := range m.Entries {
		if _, ok := other.Lookup(e.Key); !ok {
			out = append(out, e.Key)
		}
	}
	return out
}
