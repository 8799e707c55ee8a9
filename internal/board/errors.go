package board

import "fmt"

// ParseError reports malformed board input. It is fatal to the load
// operation only; no document is produced.
type ParseError struct {
	Path string // source path when loading from disk, "" for readers
	Line int    // 1-based line in the source, 0 when unknown
	Msg  string
}

func (e *ParseError) Error() string {
	switch {
	case e.Path != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Msg)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Path, e.Msg)
	case e.Line > 0:
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	default:
		return e.Msg
	}
}

// InvariantError reports a mutation that would break referential integrity.
// The document is left untouched; the failed action is rejected locally.
type InvariantError struct {
	Op     string // mutation name, e.g. "add_track"
	Entity string // offending entity id
	Msg    string
}

func (e *InvariantError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Entity, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func invariantf(op, entity, format string, args ...any) *InvariantError {
	return &InvariantError{Op: op, Entity: entity, Msg: fmt.Sprintf(format, args...)}
}
