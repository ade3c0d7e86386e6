//go:build linux

package shm

import (
	"errors"
	"os"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-grabber/internal/logger"
)

// shmDir is where glibc's shm_open keeps named objects
const shmDir = "/dev/shm"

// Region is a named block of shared memory mapped read/write
type Region struct {
	name  string
	owner bool
	fd    int
	mem   []byte
}

func shmPath(name string) string {
	return shmDir + name
}

// CreateRegion creates a fresh shared memory object of exactly size bytes.
// A stale object left under name by a crashed run is unlinked first.
func CreateRegion(name string, perm os.FileMode, size int) (*Region, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, &Error{Op: OpResize, Name: name, Err: unix.EINVAL}
	}

	path := shmPath(name)
	// Ignore the result, there usually is nothing to remove
	_ = unix.Unlink(path)

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_NOFOLLOW|unix.O_CLOEXEC, uint32(perm.Perm()))
	if err != nil {
		return nil, &Error{Op: OpCreate, Name: name, Err: err}
	}

	r := &Region{name: name, owner: true, fd: fd}

	// umask must not narrow what readers in other processes are allowed
	if err := unix.Fchmod(fd, uint32(perm.Perm())); err != nil {
		r.abort()
		return nil, &Error{Op: OpCreate, Name: name, Err: err}
	}

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		r.abort()
		return nil, &Error{Op: OpResize, Name: name, Err: err}
	}

	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		r.abort()
		return nil, &Error{Op: OpMap, Name: name, Err: err}
	}
	r.mem = mem

	logger.Debug("Region", "Created %s (%d bytes)", name, size)
	return r, nil
}

// OpenRegion maps an existing region created by another process
func OpenRegion(name string) (*Region, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	fd, err := unix.Open(shmPath(name), unix.O_RDWR|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &Error{Op: OpOpen, Name: name, Err: err}
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, &Error{Op: OpOpen, Name: name, Err: err}
	}
	if st.Size <= 0 {
		unix.Close(fd)
		return nil, &Error{Op: OpOpen, Name: name, Err: unix.ENODATA}
	}

	mem, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, &Error{Op: OpMap, Name: name, Err: err}
	}

	return &Region{name: name, fd: fd, mem: mem}, nil
}

// Name returns the region's shm name
func (r *Region) Name() string {
	return r.name
}

// Bytes returns the mapped memory. Valid only until Destroy or Close.
func (r *Region) Bytes() []byte {
	return r.mem
}

// Size returns the mapped length
func (r *Region) Size() int {
	return len(r.mem)
}

// abort releases a half-created region; no kernel object may leak
func (r *Region) abort() {
	unix.Close(r.fd)
	r.fd = -1
	unix.Unlink(shmPath(r.name))
}

// Destroy unmaps, closes and unlinks the region. Every step runs even if an
// earlier one failed; the combined failure is returned and logged.
func (r *Region) Destroy() error {
	return r.release(true)
}

// Close unmaps and closes the region without unlinking it (reader side)
func (r *Region) Close() error {
	return r.release(false)
}

func (r *Region) release(unlink bool) error {
	if r.fd < 0 && r.mem == nil {
		return nil
	}

	var result *multierror.Error

	if r.mem != nil {
		if err := unix.Munmap(r.mem); err != nil {
			result = multierror.Append(result, &os.PathError{Op: "munmap", Path: r.name, Err: err})
		}
		r.mem = nil
	}

	if r.fd >= 0 {
		if err := unix.Close(r.fd); err != nil {
			result = multierror.Append(result, &os.PathError{Op: "close", Path: r.name, Err: err})
		}
		r.fd = -1
	}

	if unlink && r.owner {
		if err := unix.Unlink(shmPath(r.name)); err != nil && !errors.Is(err, unix.ENOENT) {
			result = multierror.Append(result, &os.PathError{Op: "unlink", Path: r.name, Err: err})
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		logger.Error("Region", "Releasing %s: %v", r.name, err)
		return err
	}
	return nil
}
