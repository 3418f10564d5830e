// Package daq defines the host-facing contract of the data-acquisition
// card: the card/framing variants, the data generator patterns, the
// superpage descriptor, and the queue-oriented Channel interface the
// transfer pipeline drives. It also provides an in-process emulated
// channel producing generator-pattern data for benchmarking and tests.
package daq

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownCardType = errors.New("unknown card type")
	ErrUnknownPattern  = errors.New("unknown generator pattern")
)

// CardType selects the card-specific data framing. The set of hardware
// variants is closed, so behavior dispatches on this tag, not on an
// open-ended interface.
type CardType int

const (
	// CardCRORC frames each page with the event counter in the leading
	// word followed by a fixed-size data header.
	CardCRORC CardType = iota
	// CardCRU writes the generator pattern to every 8th 32-bit word.
	CardCRU
)

func (c CardType) String() string {
	switch c {
	case CardCRORC:
		return "CRORC"
	case CardCRU:
		return "CRU"
	}
	return fmt.Sprintf("CardType(%d)", int(c))
}

// ParseCardType parses a card type name, case-insensitively.
func ParseCardType(s string) (CardType, error) {
	switch strings.ToUpper(s) {
	case "CRORC":
		return CardCRORC, nil
	case "CRU":
		return CardCRU, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCardType, s)
}

// GeneratorPattern selects the synthetic data sequence the card's data
// generator emits.
type GeneratorPattern int

const (
	PatternIncremental GeneratorPattern = iota
	PatternAlternating
	PatternConstant
	// PatternRandom produces unverifiable data; selecting it with
	// integrity checking enabled is a configuration error.
	PatternRandom
)

func (p GeneratorPattern) String() string {
	switch p {
	case PatternIncremental:
		return "INCREMENTAL"
	case PatternAlternating:
		return "ALTERNATING"
	case PatternConstant:
		return "CONSTANT"
	case PatternRandom:
		return "RANDOM"
	}
	return fmt.Sprintf("GeneratorPattern(%d)", int(p))
}

// ParsePattern parses a generator pattern name, case-insensitively.
func ParsePattern(s string) (GeneratorPattern, error) {
	switch strings.ToUpper(s) {
	case "INCREMENTAL":
		return PatternIncremental, nil
	case "ALTERNATING":
		return PatternAlternating, nil
	case "CONSTANT":
		return PatternConstant, nil
	case "RANDOM":
		return PatternRandom, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPattern, s)
}

// RegDebugReadWrite is the index of the card's debug scratch register,
// the target of the register stress writer.
const RegDebugReadWrite uint32 = 0x28

// Superpage describes one contiguous DMA transfer unit within the host
// buffer, identified by its byte offset and size.
type Superpage struct {
	Offset uint64
	Size   int

	// Filled is set by the channel once the transfer completed.
	Filled bool
	// Received is the number of bytes the channel transferred into the
	// superpage. Equals Size for a fully filled superpage.
	Received int
}

// Channel is the queue-oriented contract of the hardware DMA channel.
//
// The transfer methods form two queues: a submission queue the feeder
// tops up with empty superpages, and a completion queue it reaps filled
// ones from. All transfer methods must be called from a single goroutine
// (the feeder); Temperature and WriteRegister may be called concurrently
// from the telemetry and stress-writer goroutines.
type Channel interface {
	// CardType reports the framing variant of the card.
	CardType() CardType

	// Reset re-initializes the channel. Only valid before StartDMA.
	Reset() error
	// StartDMA arms the channel; StopDMA halts it after the run.
	StartDMA() error
	StopDMA() error

	// FillSuperpages asks the channel to make transfer progress on the
	// superpages it already holds.
	FillSuperpages()
	// SubmissionSlots returns the number of free submission queue slots.
	SubmissionSlots() int
	// Submit hands an empty superpage to the channel. Calling it with a
	// full submission queue is a programming error.
	Submit(sp Superpage)

	// CompletedCount returns the number of superpages the channel holds
	// in its completion queue (filled or in flight).
	CompletedCount() int
	// PeekCompleted inspects the head completion without releasing it.
	// Only valid when CompletedCount() > 0.
	PeekCompleted() Superpage
	// ReleaseCompleted frees the head completion slot, returning the
	// superpage region to host ownership.
	ReleaseCompleted()

	// Temperature reports the card temperature in °C, if available.
	Temperature() (float64, bool)
	// WriteRegister writes a 32-bit value to a card register.
	WriteRegister(index, value uint32)
}
