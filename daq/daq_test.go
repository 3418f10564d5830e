package daq_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daqlab/dmabench-go/daq"
	"github.com/daqlab/dmabench-go/hostmem"
)

func TestParseCardType(t *testing.T) {
	ct, err := daq.ParseCardType("cru")
	require.NoError(t, err)
	require.Equal(t, daq.CardCRU, ct)

	ct, err = daq.ParseCardType("CRORC")
	require.NoError(t, err)
	require.Equal(t, daq.CardCRORC, ct)

	_, err = daq.ParseCardType("XYZ")
	require.ErrorIs(t, err, daq.ErrUnknownCardType)
}

func TestParsePattern(t *testing.T) {
	for name, want := range map[string]daq.GeneratorPattern{
		"incremental": daq.PatternIncremental,
		"ALTERNATING": daq.PatternAlternating,
		"Constant":    daq.PatternConstant,
		"random":      daq.PatternRandom,
	} {
		p, err := daq.ParsePattern(name)
		require.NoError(t, err)
		require.Equal(t, want, p)
	}
	_, err := daq.ParsePattern("")
	require.ErrorIs(t, err, daq.ErrUnknownPattern)
}

func TestExpectedWordIsPure(t *testing.T) {
	a := daq.ExpectedWord(daq.CardCRU, daq.PatternIncremental, 7, 16)
	b := daq.ExpectedWord(daq.CardCRU, daq.PatternIncremental, 7, 16)
	require.Equal(t, a, b)
	require.Equal(t, uint32(7*256+2), a)

	require.Equal(t, uint32(9),
		daq.ExpectedWord(daq.CardCRORC, daq.PatternIncremental, 123, 10))
	require.Equal(t, uint32(0xa5a5a5a5),
		daq.ExpectedWord(daq.CardCRU, daq.PatternAlternating, 0, 0))
	require.Equal(t, uint32(0x12345678),
		daq.ExpectedWord(daq.CardCRORC, daq.PatternConstant, 0, 64))
}

func TestCounterFromPage(t *testing.T) {
	page := make([]byte, 64)

	daq.FillPage(daq.CardCRORC, daq.PatternIncremental, 42, page)
	require.Equal(t, uint32(42), daq.CounterFromPage(daq.CardCRORC, page))

	daq.FillPage(daq.CardCRU, daq.PatternIncremental, 42, page)
	require.Equal(t, uint32(42), daq.CounterFromPage(daq.CardCRU, page))
}

func TestEmulatorTransfersInOrder(t *testing.T) {
	const pageSize = 64
	const spSize = 4 * pageSize

	buf, err := hostmem.FromSlice(make([]byte, 2*spSize))
	require.NoError(t, err)

	emu, err := daq.NewEmulator(buf, daq.EmulatorConfig{
		Card:     daq.CardCRORC,
		Pattern:  daq.PatternIncremental,
		PageSize: pageSize,
	})
	require.NoError(t, err)
	require.NoError(t, emu.StartDMA())

	emu.Submit(daq.Superpage{Offset: 0, Size: spSize})
	emu.Submit(daq.Superpage{Offset: spSize, Size: spSize})
	require.Equal(t, 0, emu.CompletedCount())

	emu.FillSuperpages()
	require.Equal(t, 2, emu.CompletedCount())

	sp := emu.PeekCompleted()
	require.True(t, sp.Filled)
	require.Equal(t, uint64(0), sp.Offset)
	require.Equal(t, spSize, sp.Received)

	// Event counters advance by one per page, across superpages.
	for p := uint32(0); p < 8; p++ {
		region, err := buf.Superpage(uint64(p)*pageSize, pageSize)
		require.NoError(t, err)
		require.Equal(t, p, hostmem.Word(region, 0), "page %d leading word", p)
	}

	emu.ReleaseCompleted()
	emu.ReleaseCompleted()
	require.Equal(t, 0, emu.CompletedCount())
	require.NoError(t, emu.StopDMA())
}

func TestEmulatorSubmissionSlots(t *testing.T) {
	buf, err := hostmem.FromSlice(make([]byte, 1024))
	require.NoError(t, err)
	emu, err := daq.NewEmulator(buf, daq.EmulatorConfig{
		Card:            daq.CardCRU,
		Pattern:         daq.PatternConstant,
		PageSize:        64,
		SubmissionSlots: 2,
	})
	require.NoError(t, err)
	require.NoError(t, emu.StartDMA())

	require.Equal(t, 2, emu.SubmissionSlots())
	emu.Submit(daq.Superpage{Offset: 0, Size: 128})
	emu.Submit(daq.Superpage{Offset: 128, Size: 128})
	require.Equal(t, 0, emu.SubmissionSlots())

	require.Panics(t, func() {
		emu.Submit(daq.Superpage{Offset: 256, Size: 128})
	})
}

func TestEmulatorRegisterWrites(t *testing.T) {
	buf, err := hostmem.FromSlice(make([]byte, 256))
	require.NoError(t, err)
	emu, err := daq.NewEmulator(buf, daq.EmulatorConfig{
		Card: daq.CardCRU, Pattern: daq.PatternConstant, PageSize: 64,
	})
	require.NoError(t, err)

	for i := uint32(0); i < 100; i++ {
		emu.WriteRegister(daq.RegDebugReadWrite, i)
	}
	emu.WriteRegister(0x10, 1) // non-debug registers are ignored
	require.Equal(t, int64(100), emu.DebugWrites())

	temp, ok := emu.Temperature()
	require.True(t, ok)
	require.Greater(t, temp, 0.0)
}
