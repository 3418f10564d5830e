package daq

import (
	"math/rand"

	"github.com/daqlab/dmabench-go/hostmem"
)

// PatternStride is the word interval at which the CRU data generator
// writes pattern words; words in between carry no verifiable data.
const PatternStride = 8

// HeaderWords is the size of the CRORC data header in 32-bit words.
// The header region is not covered by the generator pattern.
const HeaderWords = 8

// ExpectedWord returns the generator-pattern value for word index i of a
// page emitted with the given event counter. It is a pure function of
// (counter, i); the verifier uses it as the integrity oracle and the
// emulated channel uses it to produce data.
func ExpectedWord(card CardType, pat GeneratorPattern, counter uint32, i int) uint32 {
	switch pat {
	case PatternAlternating:
		return 0xa5a5a5a5
	case PatternConstant:
		return 0x12345678
	}

	// Incremental, card-specific.
	switch card {
	case CardCRU:
		return counter*256 + uint32(i)/PatternStride
	default: // CardCRORC
		return uint32(i) - 1
	}
}

// CounterFromPage recovers the event counter the generator used for a
// page, from the page's leading word. Used to seed the expected counter
// on the first page and to resynchronize after a mismatch.
func CounterFromPage(card CardType, page []byte) uint32 {
	w0 := hostmem.Word(page, 0)
	if card == CardCRU {
		return w0 / 256
	}
	return w0
}

// FillPage writes one generator frame for the given event counter into
// page, exactly as the card's data generator would.
func FillPage(card CardType, pat GeneratorPattern, counter uint32, page []byte) {
	words := hostmem.Words(page)

	if pat == PatternRandom {
		for i := 0; i < words; i++ {
			hostmem.SetWord(page, i, rand.Uint32())
		}
		return
	}

	switch card {
	case CardCRU:
		for i := 0; i < words; i++ {
			var v uint32
			if i%PatternStride == 0 {
				v = ExpectedWord(card, pat, counter, i)
			}
			hostmem.SetWord(page, i, v)
		}
	default: // CardCRORC
		hostmem.SetWord(page, 0, counter)
		for i := 1; i < HeaderWords && i < words; i++ {
			hostmem.SetWord(page, i, 0)
		}
		for i := HeaderWords; i < words; i++ {
			hostmem.SetWord(page, i, ExpectedWord(card, pat, counter, i))
		}
	}
}
