package jobfile

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// ParseError reports a malformed line in a descriptor.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Load reads and parses the descriptor at path.
func Load(path string) (*Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading job file: %w", err)
	}
	defer f.Close()

	d, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return d, nil
}

var exclusionClause = regexp.MustCompile(`^\(\s*Machine\s*=!=\s*"((?:[^"\\]|\\.)*)"\s*\)$`)

// Parse reads a descriptor. Keys are matched case-insensitively with
// underscores ignored; unrecognised directives are kept in Extra.
func Parse(r io.Reader) (*Descriptor, error) {
	d := &Descriptor{}
	queued := false

	lines, err := logicalLines(r)
	if err != nil {
		return nil, err
	}

	for _, ln := range lines {
		text := ln.text
		if queued {
			return nil, &ParseError{Line: ln.num, Msg: "directive after Queue"}
		}

		if fields := strings.Fields(text); strings.EqualFold(fields[0], "queue") {
			d.Queue = 1
			if len(fields) > 2 {
				return nil, &ParseError{Line: ln.num, Msg: "queue statements with item lists are not supported"}
			}
			if len(fields) == 2 {
				n, err := strconv.Atoi(fields[1])
				if err != nil {
					return nil, &ParseError{Line: ln.num, Msg: fmt.Sprintf("invalid queue count '%s'", fields[1])}
				}
				d.Queue = n
			}
			queued = true
			continue
		}

		eq := strings.IndexByte(text, '=')
		if eq <= 0 {
			return nil, &ParseError{Line: ln.num, Msg: "expected 'key = value'"}
		}
		key := strings.TrimSpace(text[:eq])
		value := strings.TrimSpace(text[eq+1:])

		if err := d.set(key, value); err != nil {
			return nil, &ParseError{Line: ln.num, Msg: err.Error()}
		}
	}

	if !queued {
		return nil, &ParseError{Line: len(lines), Msg: "missing Queue statement"}
	}
	return d, nil
}

func (d *Descriptor) set(key, value string) error {
	var err error
	switch normalizeKey(key) {
	case "universe":
		d.Universe = value
	case "executable":
		d.Executable = value
	case "arguments":
		d.Arguments, err = parseArguments(value)
	case "requirements":
		d.ExcludedMachines, d.Constraints = parseRequirements(value)
	case "requestcpus":
		d.RequestCPUs, err = parseCount(key, value)
	case "requestgpus":
		d.RequestGPUs, err = parseCount(key, value)
	case "requestmemory":
		d.RequestMemory, err = ParseMemory(value)
	case "log":
		d.Log = value
	case "output":
		d.Output = value
	case "error":
		d.Error = value
	default:
		if d.Extra == nil {
			d.Extra = make(map[string]string)
		}
		d.Extra[key] = value
	}
	return err
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.ReplaceAll(key, "_", ""))
}

type logicalLine struct {
	num  int
	text string
}

// logicalLines strips comments and blank lines and joins continuations. Each
// logical line is numbered by the physical line it starts on.
func logicalLines(r io.Reader) ([]logicalLine, error) {
	var (
		out     []logicalLine
		pending strings.Builder
		start   int
	)
	scanner := bufio.NewScanner(r)
	num := 0
	for scanner.Scan() {
		num++
		raw := strings.TrimRight(scanner.Text(), " \t\r")
		trimmed := strings.TrimSpace(raw)
		if pending.Len() == 0 && (trimmed == "" || strings.HasPrefix(trimmed, "#")) {
			continue
		}
		if pending.Len() == 0 {
			start = num
		}
		if strings.HasSuffix(raw, `\`) {
			pending.WriteString(strings.TrimSpace(strings.TrimSuffix(raw, `\`)))
			pending.WriteByte(' ')
			continue
		}
		pending.WriteString(trimmed)
		out = append(out, logicalLine{num: start, text: strings.TrimSpace(pending.String())})
		pending.Reset()
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if pending.Len() > 0 {
		return nil, &ParseError{Line: start, Msg: "unterminated line continuation"}
	}
	return out, nil
}

// parseArguments accepts the quoted form written by Render. An unquoted
// value is split on whitespace.
func parseArguments(value string) ([]string, error) {
	if !strings.HasPrefix(value, `"`) {
		return strings.Fields(value), nil
	}
	if len(value) < 2 || !strings.HasSuffix(value, `"`) {
		return nil, fmt.Errorf("unterminated arguments string")
	}
	value = strings.ReplaceAll(value[1:len(value)-1], `""`, `"`)

	var (
		args    []string
		current strings.Builder
		inArg   bool
		quoted  bool
	)
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case quoted && c == '\'':
			if i+1 < len(value) && value[i+1] == '\'' {
				current.WriteByte(c)
				i++
				continue
			}
			quoted = false
		case quoted:
			current.WriteByte(c)
		case c == '\'':
			quoted, inArg = true, true
		case unicode.IsSpace(rune(c)):
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}
		default:
			current.WriteByte(c)
			inArg = true
		}
	}
	if quoted {
		return nil, fmt.Errorf("unterminated single quote in arguments")
	}
	if inArg {
		args = append(args, current.String())
	}
	return args, nil
}

// parseRequirements splits the expression at top-level && and recovers the
// machine exclusions. Other clauses are returned as constraints.
func parseRequirements(expr string) (excluded, constraints []string) {
	for _, clause := range splitConjunction(expr) {
		if m := exclusionClause.FindStringSubmatch(clause); m != nil {
			if name, err := strconv.Unquote(`"` + m[1] + `"`); err == nil {
				excluded = append(excluded, name)
				continue
			}
		}
		constraints = append(constraints, clause)
	}
	return excluded, constraints
}

// splitConjunction splits expr on its top-level && operators. An expression
// with a top-level || is one clause, since && binds tighter.
func splitConjunction(expr string) []string {
	var (
		parts   []string
		depth   int
		quoted  bool
		or      bool
		current strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			parts = append(parts, s)
		}
		current.Reset()
	}
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case quoted:
			if c == '\\' && i+1 < len(expr) {
				current.WriteByte(c)
				i++
				c = expr[i]
			} else if c == '"' {
				quoted = false
			}
		case c == '"':
			quoted = true
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == '|' && depth == 0 && i+1 < len(expr) && expr[i+1] == '|':
			or = true
		case c == '&' && depth == 0 && i+1 < len(expr) && expr[i+1] == '&':
			flush()
			i++
			continue
		}
		current.WriteByte(c)
	}
	flush()
	if or {
		if s := strings.TrimSpace(expr); s != "" {
			return []string{s}
		}
		return nil
	}
	return parts
}

// enclosed reports whether expr is wrapped in one pair of parentheses, as in
// "(A || B)" but not "(A) || (B)".
func enclosed(expr string) bool {
	expr = strings.TrimSpace(expr)
	if len(expr) < 2 || expr[0] != '(' {
		return false
	}
	depth := 0
	quoted := false
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case quoted:
			if c == '\\' {
				i++
			} else if c == '"' {
				quoted = false
			}
		case c == '"':
			quoted = true
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i == len(expr)-1
			}
		}
	}
	return false
}

func parseCount(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid count '%s'", key, value)
	}
	return n, nil
}

// MaxMemory is the largest memory request accepted, in megabytes.
const MaxMemory = math.MaxInt32

// ParseMemory converts a memory request to megabytes. A bare number is
// already megabytes; K, M, G and T suffixes (optionally followed by B) are
// binary multiples.
func ParseMemory(value string) (int, error) {
	s := strings.ToUpper(strings.TrimSpace(value))

	scales := map[string]float64{
		"K": 1.0 / 1024, "KB": 1.0 / 1024,
		"M": 1, "MB": 1,
		"G": 1024, "GB": 1024,
		"T": 1024 * 1024, "TB": 1024 * 1024,
	}
	scale := 1.0
	if i := strings.IndexFunc(s, unicode.IsLetter); i >= 0 {
		unit := s[i:]
		var ok bool
		if scale, ok = scales[unit]; !ok {
			return 0, fmt.Errorf("invalid memory '%s': unknown unit '%s'", value, unit)
		}
		s = strings.TrimSpace(s[:i])
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("invalid memory '%s'", value)
	}
	mb := math.Ceil(f * scale)
	if mb > MaxMemory {
		return 0, fmt.Errorf("invalid memory '%s': exceeds the limit of %d MB", value, MaxMemory)
	}
	return int(mb), nil
}
