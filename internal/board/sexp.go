// Package board implements the in-memory PCB document model: parsing and
// serializing the KiCad-style s-expression board format, and the mutation
// operations the orchestrator applies to a working copy.
//
// sexp.go is a small streaming s-expression reader/writer. General-purpose
// sexp libraries either load the whole file as untyped cons cells or mangle
// KiCad's quoting rules, so the codec is kept local and minimal: atoms,
// quoted strings, and nested lists.
package board

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// node is a single s-expression: either an atom (possibly quoted in the
// source) or a list of child nodes.
type node struct {
	atom   string
	quoted bool
	list   []*node
	isList bool
}

func atomNode(v string) *node          { return &node{atom: v} }
func quotedNode(v string) *node        { return &node{atom: v, quoted: true} }
func listNode(children ...*node) *node { return &node{list: children, isList: true} }

// name returns the leading symbol of a list node, or "" if absent.
func (n *node) name() string {
	if !n.isList || len(n.list) == 0 || n.list[0].isList {
		return ""
	}
	return n.list[0].atom
}

// child returns the first child list whose leading symbol matches key.
func (n *node) child(key string) *node {
	for _, c := range n.list {
		if c.isList && c.name() == key {
			return c
		}
	}
	return nil
}

// children returns all child lists whose leading symbol matches key.
func (n *node) children(key string) []*node {
	var out []*node
	for _, c := range n.list {
		if c.isList && c.name() == key {
			out = append(out, c)
		}
	}
	return out
}

// arg returns the atom at position i (position 0 is the list's name).
func (n *node) arg(i int) (string, bool) {
	if !n.isList || i < 0 || i >= len(n.list) || n.list[i].isList {
		return "", false
	}
	return n.list[i].atom, true
}

// floatArg parses the atom at position i as a float.
func (n *node) floatArg(i int) (float64, error) {
	s, ok := n.arg(i)
	if !ok {
		return 0, fmt.Errorf("missing numeric argument %d in (%s ...)", i, n.name())
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("argument %d of (%s ...): %q is not a number", i, n.name(), s)
	}
	return v, nil
}

// intArg parses the atom at position i as an int.
func (n *node) intArg(i int) (int, error) {
	s, ok := n.arg(i)
	if !ok {
		return 0, fmt.Errorf("missing integer argument %d in (%s ...)", i, n.name())
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("argument %d of (%s ...): %q is not an integer", i, n.name(), s)
	}
	return v, nil
}

// sexpScanner tokenizes an s-expression stream, tracking the current line
// for error reporting.
type sexpScanner struct {
	r    *bufio.Reader
	line int
}

func newSexpScanner(r io.Reader) *sexpScanner {
	return &sexpScanner{r: bufio.NewReader(r), line: 1}
}

func (s *sexpScanner) readRune() (rune, error) {
	ch, _, err := s.r.ReadRune()
	if ch == '\n' {
		s.line++
	}
	return ch, err
}

func (s *sexpScanner) unread(ch rune) {
	if ch == '\n' {
		s.line--
	}
	_ = s.r.UnreadRune()
}

// parseSexp reads the next complete s-expression from the stream. Returns
// io.EOF once the stream contains only whitespace.
func (s *sexpScanner) parseSexp() (*node, error) {
	if err := s.skipSpace(); err != nil {
		return nil, err
	}
	ch, err := s.readRune()
	if err != nil {
		return nil, err
	}
	switch ch {
	case '(':
		return s.parseList()
	case ')':
		return nil, fmt.Errorf("line %d: unexpected ')'", s.line)
	case '"':
		v, err := s.parseQuoted()
		if err != nil {
			return nil, err
		}
		return quotedNode(v), nil
	default:
		s.unread(ch)
		v, err := s.parseAtom()
		if err != nil {
			return nil, err
		}
		return atomNode(v), nil
	}
}

func (s *sexpScanner) parseList() (*node, error) {
	n := &node{isList: true}
	for {
		if err := s.skipSpace(); err != nil {
			return nil, fmt.Errorf("line %d: unterminated list", s.line)
		}
		ch, err := s.readRune()
		if err != nil {
			return nil, fmt.Errorf("line %d: unterminated list", s.line)
		}
		if ch == ')' {
			return n, nil
		}
		s.unread(ch)
		child, err := s.parseSexp()
		if err != nil {
			return nil, err
		}
		n.list = append(n.list, child)
	}
}

func (s *sexpScanner) parseQuoted() (string, error) {
	var b strings.Builder
	for {
		ch, err := s.readRune()
		if err != nil {
			return "", fmt.Errorf("line %d: unterminated string", s.line)
		}
		switch ch {
		case '"':
			return b.String(), nil
		case '\\':
			esc, err := s.readRune()
			if err != nil {
				return "", fmt.Errorf("line %d: unterminated escape", s.line)
			}
			switch esc {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			default:
				b.WriteRune(esc)
			}
		default:
			b.WriteRune(ch)
		}
	}
}

func (s *sexpScanner) parseAtom() (string, error) {
	var b strings.Builder
	for {
		ch, err := s.readRune()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if ch == '(' || ch == ')' || ch == '"' || isSpace(ch) {
			s.unread(ch)
			break
		}
		b.WriteRune(ch)
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("line %d: empty atom", s.line)
	}
	return b.String(), nil
}

func (s *sexpScanner) skipSpace() error {
	for {
		ch, err := s.readRune()
		if err != nil {
			return err
		}
		if !isSpace(ch) {
			s.unread(ch)
			return nil
		}
	}
}

func isSpace(ch rune) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

// writeSexp renders a node tree in the KiCad layout convention: lists that
// contain sub-lists break across lines with two-space indentation, flat
// lists stay inline. Output is deterministic for a given tree.
func writeSexp(w *strings.Builder, n *node, indent int) {
	if !n.isList {
		writeAtom(w, n)
		return
	}
	w.WriteByte('(')
	multiline := false
	for _, c := range n.list[min(1, len(n.list)):] {
		if c.isList {
			multiline = true
			break
		}
	}
	for i, c := range n.list {
		if i > 0 {
			if multiline && c.isList {
				w.WriteByte('\n')
				w.WriteString(strings.Repeat("  ", indent+1))
			} else {
				w.WriteByte(' ')
			}
		}
		writeSexp(w, c, indent+1)
	}
	if multiline {
		w.WriteByte('\n')
		w.WriteString(strings.Repeat("  ", indent))
	}
	w.WriteByte(')')
}

func writeAtom(w *strings.Builder, n *node) {
	if n.quoted || n.atom == "" || strings.ContainsAny(n.atom, "() \t\n\"") {
		w.WriteByte('"')
		for _, ch := range n.atom {
			switch ch {
			case '"', '\\':
				w.WriteByte('\\')
				w.WriteRune(ch)
			case '\n':
				w.WriteString(`\n`)
			default:
				w.WriteRune(ch)
			}
		}
		w.WriteByte('"')
		return
	}
	w.WriteString(n.atom)
}

// formatFloat renders a coordinate with up to six decimal places, trimming
// trailing zeros the way pcbnew does.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		s = "0"
	}
	return s
}

func floatNode(v float64) *node { return atomNode(formatFloat(v)) }
func intNode(v int) *node       { return atomNode(strconv.Itoa(v)) }
