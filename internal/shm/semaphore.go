//go:build linux

package shm

/*
#cgo LDFLAGS: -lrt -lpthread

#include <stdlib.h>
#include <errno.h>
#include <fcntl.h>
#include <time.h>
#include <semaphore.h>

// sem_open is variadic and cannot be called from Go directly.
// Returns NULL and sets *err on failure.
static sem_t* sem_create(const char* name, unsigned int mode, unsigned int initial, int* err) {
    sem_t* s = sem_open(name, O_CREAT | O_EXCL, (mode_t)mode, initial);
    if (s == SEM_FAILED) {
        *err = errno;
        return NULL;
    }
    return s;
}

static sem_t* sem_attach(const char* name, int* err) {
    sem_t* s = sem_open(name, 0);
    if (s == SEM_FAILED) {
        *err = errno;
        return NULL;
    }
    return s;
}

static int sem_remove(const char* name) {
    if (sem_unlink(name) != 0) {
        return errno;
    }
    return 0;
}

static int sem_release(sem_t* s) {
    if (sem_post(s) != 0) {
        return errno;
    }
    return 0;
}

static int sem_detach(sem_t* s) {
    if (sem_close(s) != 0) {
        return errno;
    }
    return 0;
}

static int sem_value(sem_t* s, int* out) {
    if (sem_getvalue(s, out) != 0) {
        return errno;
    }
    return 0;
}

// Returns 0 when acquired, -1 on timeout, errno otherwise.
// EINTR retries against the same absolute deadline.
static int sem_acquire_timed(sem_t* s, long long timeout_ns) {
    if (timeout_ns <= 0) {
        for (;;) {
            if (sem_trywait(s) == 0) {
                return 0;
            }
            if (errno == EINTR) {
                continue;
            }
            return errno == EAGAIN ? -1 : errno;
        }
    }

    struct timespec ts;
    if (clock_gettime(CLOCK_REALTIME, &ts) != 0) {
        return errno;
    }
    ts.tv_sec += timeout_ns / 1000000000LL;
    ts.tv_nsec += timeout_ns % 1000000000LL;
    if (ts.tv_nsec >= 1000000000L) {
        ts.tv_sec += 1;
        ts.tv_nsec -= 1000000000L;
    }

    for (;;) {
        if (sem_timedwait(s, &ts) == 0) {
            return 0;
        }
        if (errno == EINTR) {
            continue;
        }
        return errno == ETIMEDOUT ? -1 : errno;
    }
}
*/
import "C"

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"
	"unsafe"

	"github.com/hashicorp/go-multierror"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/logger"
)

// AcquireResult is the outcome of a bounded wait. A timeout is an expected
// result, not an error.
type AcquireResult int

const (
	Acquired AcquireResult = iota
	TimedOut
)

func (r AcquireResult) String() string {
	if r == Acquired {
		return "acquired"
	}
	return "timed out"
}

// acquireSlice bounds each wait inside Acquire so ctx is noticed promptly
const acquireSlice = 100 * time.Millisecond

// Semaphore is a named POSIX counting semaphore shared between processes
type Semaphore struct {
	name  string
	owner bool
	sem   *C.sem_t
}

// CreateSemaphore creates a named semaphore with the given initial count,
// unlinking any stale one first
func CreateSemaphore(name string, perm os.FileMode, initial uint) (*Semaphore, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	// Ignore the result, there usually is nothing to remove
	C.sem_remove(cName)

	var errno C.int
	sem := C.sem_create(cName, C.uint(perm.Perm()), C.uint(initial), &errno)
	if sem == nil {
		return nil, &Error{Op: OpCreate, Name: name, Err: syscall.Errno(errno)}
	}

	// glibc backs named semaphores with /dev/shm/sem.<name>
	if err := os.Chmod(shmDir+"/sem."+name[1:], perm.Perm()); err != nil {
		logger.Debug("Semaphore", "chmod %s: %v", name, err)
	}

	logger.Debug("Semaphore", "Created %s (initial=%d)", name, initial)
	return &Semaphore{name: name, owner: true, sem: sem}, nil
}

// OpenSemaphore attaches to an existing named semaphore
func OpenSemaphore(name string) (*Semaphore, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	var errno C.int
	sem := C.sem_attach(cName, &errno)
	if sem == nil {
		return nil, &Error{Op: OpOpen, Name: name, Err: syscall.Errno(errno)}
	}
	return &Semaphore{name: name, sem: sem}, nil
}

// Name returns the semaphore's name
func (s *Semaphore) Name() string {
	return s.name
}

// AcquireTimed waits up to d for the count to become positive and
// decrements it. d <= 0 polls once.
func (s *Semaphore) AcquireTimed(d time.Duration) (AcquireResult, error) {
	if s.sem == nil {
		return TimedOut, ErrClosed
	}

	switch rc := C.sem_acquire_timed(s.sem, C.longlong(d.Nanoseconds())); {
	case rc == 0:
		return Acquired, nil
	case rc < 0:
		return TimedOut, nil
	default:
		return TimedOut, &os.SyscallError{Syscall: "sem_timedwait", Err: syscall.Errno(rc)}
	}
}

// Acquire blocks until the semaphore is acquired or ctx is done
func (s *Semaphore) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait := acquireSlice
		if deadline, ok := ctx.Deadline(); ok {
			if left := time.Until(deadline); left < wait {
				wait = left
			}
		}

		res, err := s.AcquireTimed(wait)
		if err != nil {
			return err
		}
		if res == Acquired {
			return nil
		}
	}
}

// Release increments the count. It never blocks.
func (s *Semaphore) Release() error {
	if s.sem == nil {
		return ErrClosed
	}
	if rc := C.sem_release(s.sem); rc != 0 {
		return &os.SyscallError{Syscall: "sem_post", Err: syscall.Errno(rc)}
	}
	return nil
}

// Value returns the current count
func (s *Semaphore) Value() (int, error) {
	if s.sem == nil {
		return 0, ErrClosed
	}
	var v C.int
	if rc := C.sem_value(s.sem, &v); rc != 0 {
		return 0, &os.SyscallError{Syscall: "sem_getvalue", Err: syscall.Errno(rc)}
	}
	return int(v), nil
}

// Destroy closes and unlinks the semaphore, attempting both steps
func (s *Semaphore) Destroy() error {
	return s.release(true)
}

// Close detaches from the semaphore without unlinking it (reader side)
func (s *Semaphore) Close() error {
	return s.release(false)
}

func (s *Semaphore) release(unlink bool) error {
	if s.sem == nil {
		return nil
	}

	var result *multierror.Error

	if rc := C.sem_detach(s.sem); rc != 0 {
		result = multierror.Append(result, &os.SyscallError{Syscall: "sem_close", Err: syscall.Errno(rc)})
	}
	s.sem = nil

	if unlink && s.owner {
		cName := C.CString(s.name)
		rc := C.sem_remove(cName)
		C.free(unsafe.Pointer(cName))
		if rc != 0 && !errors.Is(syscall.Errno(rc), syscall.ENOENT) {
			result = multierror.Append(result, &os.SyscallError{Syscall: "sem_unlink", Err: syscall.Errno(rc)})
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		logger.Error("Semaphore", "Releasing %s: %v", s.name, err)
		return err
	}
	return nil
}
