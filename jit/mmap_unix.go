//go:build unix

package jit

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// mapExecutable copies code into fresh anonymous pages and flips them to
// read+execute. Pages are never writable and executable at once.
func mapExecutable(code []byte) ([]byte, error) {
	size := len(code)
	if page := unix.Getpagesize(); size%page != 0 {
		size += page - size%page
	}
	if size == 0 {
		size = unix.Getpagesize()
	}
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrap(err, "mmap")
	}
	copy(mem, code)
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		unix.Munmap(mem)
		return nil, errors.Wrap(err, "mprotect")
	}
	return mem, nil
}

func unmap(mem []byte) error {
	return errors.Wrap(unix.Munmap(mem), "munmap")
}
