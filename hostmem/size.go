package hostmem

import (
	"errors"
	"fmt"
	"strconv"
)

// HugePageSize selects the kernel huge page granularity backing the buffer.
type HugePageSize int

const (
	HugePageNone HugePageSize = iota // regular 4 KiB pages
	HugePage2MB
	HugePage1GB
)

func (h HugePageSize) String() string {
	switch h {
	case HugePage2MB:
		return "2MB"
	case HugePage1GB:
		return "1GB"
	}
	return "none"
}

var ErrBadBufferSize = errors.New("hostmem: invalid buffer size")

// ParseBufferSize parses a buffer size string like "10MB" or "1GB" and
// derives the huge page granularity from the unit: MB selects 2 MiB huge
// pages (the value is rounded down to a 2 MiB multiple, minimum 2 MiB),
// GB selects 1 GiB huge pages.
func ParseBufferSize(s string) (size int, huge HugePageSize, err error) {
	if len(s) < 3 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadBufferSize, s)
	}
	unit := s[len(s)-2:]
	value, convErr := strconv.Atoi(s[:len(s)-2])
	if convErr != nil || value <= 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadBufferSize, s)
	}

	switch unit {
	case "MB":
		if value < 2 {
			value = 2
		}
		return (value - value%2) << 20, HugePage2MB, nil
	case "GB":
		return value << 30, HugePage1GB, nil
	}
	return 0, 0, fmt.Errorf("%w: unknown unit in %q", ErrBadBufferSize, s)
}
