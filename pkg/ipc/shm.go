package ipc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// shmDir is where named POSIX shared-memory objects appear on Linux.
const shmDir = "/dev/shm"

var errTimeout = errors.New("ipc: timed out")

// shmPath returns the backing path for a named region.
func shmPath(name string) string {
	return filepath.Join(shmDir, name)
}

// createRegion creates (or truncates) the named shared-memory region with
// the given size and maps it shared.
func createRegion(name string, size int) ([]byte, error) {
	path := shmPath(name)
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create shm %s: %w", path, err)
	}
	defer unix.Close(fd)
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		return nil, fmt.Errorf("size shm %s: %w", path, err)
	}
	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("map shm %s: %w", path, err)
	}
	return mem, nil
}

// openRegion maps an existing named region shared.
func openRegion(name string) ([]byte, error) {
	path := shmPath(name)
	fd, err := unix.Open(path, unix.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open shm %s: %w", path, err)
	}
	defer unix.Close(fd)
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("stat shm %s: %w", path, err)
	}
	mem, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("map shm %s: %w", path, err)
	}
	return mem, nil
}

// unmapRegion releases a mapping.
func unmapRegion(mem []byte) {
	if mem != nil {
		_ = unix.Munmap(mem)
	}
}

// unlinkRegion removes the named region. Mapped users keep their view until
// they unmap.
func unlinkRegion(name string) {
	_ = os.Remove(shmPath(name))
}
