// Package hostmem provides the host-side DMA buffer: one contiguous
// region allocated for the lifetime of a run, handed out to the rest of
// the benchmark as bounds-checked superpage views.
//
// The region's contents are written by the DMA channel and read back by
// the readout loop, so all 32-bit word access goes through Word/SetWord,
// which decode on every call instead of holding decoded values across
// hardware-visible mutations.
package hostmem

import (
	"errors"
	"fmt"
)

// WordSize is the size of the data generator's word unit in bytes.
const WordSize = 4

var ErrNotWordAligned = errors.New("hostmem: size must be a multiple of the 32-bit word size")

// Buffer owns a contiguous page-aligned memory region divided into
// equal-size superpages. It is never resized; Close releases it.
type Buffer struct {
	mem   []byte
	unmap func(mem []byte) error
}

// FromSlice wraps an existing byte slice as a Buffer. Used by tests and
// by callers that manage the allocation themselves.
func FromSlice(mem []byte) (*Buffer, error) {
	if len(mem)%WordSize != 0 {
		return nil, ErrNotWordAligned
	}
	return &Buffer{mem: mem}, nil
}

// Size returns the total buffer size in bytes.
func (b *Buffer) Size() int { return len(b.mem) }

// Superpage returns the view of the superpage at the given byte offset.
// The returned slice aliases the buffer region; ownership of the region
// follows the free-list/readout-queue hand-off, not this call.
func (b *Buffer) Superpage(offset uint64, size int) ([]byte, error) {
	end := offset + uint64(size)
	if size <= 0 || end > uint64(len(b.mem)) || end < offset {
		return nil, fmt.Errorf("hostmem: superpage (offset=%#x size=%#x) out of bounds (buffer=%#x)",
			offset, size, len(b.mem))
	}
	return b.mem[offset:end], nil
}

// Close releases the underlying region if this Buffer owns a mapping.
func (b *Buffer) Close() error {
	if b.unmap == nil || b.mem == nil {
		return nil
	}
	err := b.unmap(b.mem)
	b.mem = nil
	return err
}

// Word reads the i-th 32-bit little-endian word of region.
// The load is performed on every call; callers must not cache the result
// across points where the hardware may rewrite the region.
func Word(region []byte, i int) uint32 {
	w := region[i*WordSize : i*WordSize+WordSize]
	return uint32(w[0]) | uint32(w[1])<<8 | uint32(w[2])<<16 | uint32(w[3])<<24
}

// SetWord writes the i-th 32-bit little-endian word of region.
func SetWord(region []byte, i int, v uint32) {
	w := region[i*WordSize : i*WordSize+WordSize]
	w[0] = byte(v)
	w[1] = byte(v >> 8)
	w[2] = byte(v >> 16)
	w[3] = byte(v >> 24)
}

// Words returns the number of 32-bit words in region.
func Words(region []byte) int { return len(region) / WordSize }

// Scrub overwrites every word of region with the sentinel value.
// Scrubbing twice yields the same contents as scrubbing once.
func Scrub(region []byte, sentinel uint32) {
	for i, n := 0, Words(region); i < n; i++ {
		SetWord(region, i, sentinel)
	}
}
