package shard

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrIO       = errors.New("io error")
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("shard closed")
	ErrFull     = errors.New("shard data log exceeds 32-bit offsets")
)

// IOError a failed file operation; errors.Is(err, ErrIO) holds for it
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }

func ioError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&IOError{Op: op, Path: path, Err: err})
}
