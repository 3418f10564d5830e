//go:build linux

package hostmem

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func (h HugePageSize) mmapFlags() int {
	switch h {
	case HugePage2MB:
		return unix.MAP_HUGETLB | unix.MAP_HUGE_2MB
	case HugePage1GB:
		return unix.MAP_HUGETLB | unix.MAP_HUGE_1GB
	}
	return 0
}

// MapAnonymous maps an anonymous region of the given size, optionally
// backed by huge pages. MAP_POPULATE pre-faults the region so the DMA
// path never stalls on first touch.
func MapAnonymous(size int, huge HugePageSize) (*Buffer, error) {
	if size <= 0 || size%WordSize != 0 {
		return nil, ErrNotWordAligned
	}
	mem, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_POPULATE|huge.mmapFlags(),
	)
	if err != nil {
		return nil, fmt.Errorf("mmap anonymous buffer (%d bytes, hugepages=%s): %w",
			size, huge, err)
	}
	return &Buffer{mem: mem, unmap: unix.Munmap}, nil
}

// MapFile maps a file-backed region of the given size, creating and
// growing the file as needed. Pointing path into a hugetlbfs mount gives
// a huge-page-backed buffer that survives for inspection after the run.
// If removeOnClose is set the file is unlinked when the Buffer is closed.
func MapFile(path string, size int, removeOnClose bool) (*Buffer, error) {
	if size <= 0 || size%WordSize != 0 {
		return nil, ErrNotWordAligned
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening buffer file: %w", err)
	}
	defer f.Close()

	if err := f.Truncate(int64(size)); err != nil {
		return nil, fmt.Errorf("sizing buffer file to %d bytes: %w", size, err)
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|unix.MAP_POPULATE,
	)
	if err != nil {
		return nil, fmt.Errorf("mmap buffer file %q: %w", path, err)
	}

	unmap := unix.Munmap
	if removeOnClose {
		unmap = func(mem []byte) error {
			return errors.Join(unix.Munmap(mem), os.Remove(path))
		}
	}
	return &Buffer{mem: mem, unmap: unmap}, nil
}
