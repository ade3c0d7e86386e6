package shm

import (
	"errors"
	"fmt"
)

// Op identifies the setup step that failed
type Op string

const (
	OpCreate Op = "create"
	OpOpen   Op = "open"
	OpResize Op = "resize"
	OpMap    Op = "map"
)

// Sentinels matched by errors.Is against an *Error
var (
	ErrCreate = errors.New("shm: create failed")
	ErrOpen   = errors.New("shm: open failed")
	ErrResize = errors.New("shm: resize failed")
	ErrMap    = errors.New("shm: map failed")

	ErrInvalidName = errors.New("shm: invalid name")
	ErrClosed      = errors.New("shm: already closed")
)

// Error is a setup failure on a named IPC object
type Error struct {
	Op   Op
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("shm %s %s: %v", e.Op, e.Name, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Op
func (e *Error) Is(target error) bool {
	switch e.Op {
	case OpCreate:
		return target == ErrCreate
	case OpOpen:
		return target == ErrOpen
	case OpResize:
		return target == ErrResize
	case OpMap:
		return target == ErrMap
	}
	return false
}

// validName enforces POSIX naming for shm objects and semaphores: one
// leading slash and nothing else that would make it a path
func validName(name string) error {
	if len(name) < 2 || name[0] != '/' {
		return fmt.Errorf("%w: %q must start with '/'", ErrInvalidName, name)
	}
	for i := 1; i < len(name); i++ {
		if name[i] == '/' {
			return fmt.Errorf("%w: %q contains '/'", ErrInvalidName, name)
		}
	}
	if len(name) > 250 {
		return fmt.Errorf("%w: %q too long", ErrInvalidName, name)
	}
	return nil
}
