package runstats

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrLoad            = errors.New("load error")
	ErrFieldAccess     = errors.New("field access error")
	ErrEmptyInput      = errors.New("empty input")
)

// LoadError reports a file that could not be read or does not hold a JSON array.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("load: %s", e.Err)
	}
	return fmt.Sprintf("load %s: %s", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool { return target == ErrLoad }

// FieldAccessError locates a record whose Meta does not expose a usable value.
type FieldAccessError struct {
	Index  int
	Field  string
	Reason string
}

func (e *FieldAccessError) Error() string {
	return fmt.Sprintf("record %d: field %q: %s", e.Index, e.Field, e.Reason)
}

func (e *FieldAccessError) Is(target error) bool { return target == ErrFieldAccess }
