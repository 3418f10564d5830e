package daq

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/daqlab/dmabench-go/hostmem"
)

var (
	ErrDMANotStarted     = errors.New("daq: DMA not started")
	ErrDMAAlreadyRunning = errors.New("daq: DMA already running")
)

const (
	// DefaultSubmissionSlots mirrors the depth of the card's internal
	// superpage submission queue.
	DefaultSubmissionSlots = 32
	// DefaultTransfersPerFill bounds how many superpages one
	// FillSuperpages call completes, so filling interleaves with the
	// feeder's own queue work the way real transfer completion does.
	DefaultTransfersPerFill = 2

	emulatedTemperature = 42.5
)

// EmulatorConfig configures an emulated DMA channel.
type EmulatorConfig struct {
	Card     CardType
	Pattern  GeneratorPattern
	PageSize int

	// SubmissionSlots is the submission queue depth.
	// Defaults to DefaultSubmissionSlots.
	SubmissionSlots int
	// TransfersPerFill is the number of superpages completed per
	// FillSuperpages call. Defaults to DefaultTransfersPerFill.
	TransfersPerFill int

	// Corrupt, if set, is invoked on every page after it is generated
	// and may overwrite page contents. Test hook for fault injection.
	Corrupt func(page []byte, pageIndex int64)
}

// Emulator is an in-process Channel implementation that fills submitted
// superpages with generator-pattern data. It stands in for the hardware
// DMA engine in benchmarks without a card and in tests.
//
// Transfer methods are not safe for concurrent use (single feeder
// goroutine, per the Channel contract). Temperature and WriteRegister
// are safe to call from other goroutines.
type Emulator struct {
	conf EmulatorConfig
	buf  *hostmem.Buffer

	started bool
	pending []Superpage // submitted, awaiting transfer
	done    []Superpage // filled, awaiting release

	counter   uint32 // generator event counter
	pageIndex int64  // pages generated so far

	debugWrites atomic.Int64
	debugValue  atomic.Uint32
}

// NewEmulator creates an emulated channel transferring into buf.
func NewEmulator(buf *hostmem.Buffer, conf EmulatorConfig) (*Emulator, error) {
	if conf.PageSize <= 0 || conf.PageSize%hostmem.WordSize != 0 {
		return nil, fmt.Errorf("daq: invalid page size %d", conf.PageSize)
	}
	if conf.SubmissionSlots <= 0 {
		conf.SubmissionSlots = DefaultSubmissionSlots
	}
	if conf.TransfersPerFill <= 0 {
		conf.TransfersPerFill = DefaultTransfersPerFill
	}
	return &Emulator{conf: conf, buf: buf}, nil
}

func (e *Emulator) CardType() CardType { return e.conf.Card }

// Reset drops all queued superpages and rewinds the data generator.
func (e *Emulator) Reset() error {
	if e.started {
		return ErrDMAAlreadyRunning
	}
	e.pending = nil
	e.done = nil
	e.counter = 0
	e.pageIndex = 0
	return nil
}

func (e *Emulator) StartDMA() error {
	if e.started {
		return ErrDMAAlreadyRunning
	}
	e.started = true
	return nil
}

func (e *Emulator) StopDMA() error {
	if !e.started {
		return ErrDMANotStarted
	}
	e.started = false
	return nil
}

// FillSuperpages transfers generator data into up to TransfersPerFill
// submitted superpages and moves them to the completion queue.
func (e *Emulator) FillSuperpages() {
	if !e.started {
		return
	}
	for n := 0; n < e.conf.TransfersPerFill && len(e.pending) > 0; n++ {
		sp := e.pending[0]
		e.pending = e.pending[1:]

		region, err := e.buf.Superpage(sp.Offset, sp.Size)
		if err != nil {
			panic(fmt.Sprintf("daq: submitted superpage out of bounds: %v", err))
		}

		pages := sp.Size / e.conf.PageSize
		for p := 0; p < pages; p++ {
			page := region[p*e.conf.PageSize : (p+1)*e.conf.PageSize]
			FillPage(e.conf.Card, e.conf.Pattern, e.counter, page)
			if e.conf.Corrupt != nil {
				e.conf.Corrupt(page, e.pageIndex)
			}
			e.counter++
			e.pageIndex++
		}

		sp.Filled = true
		sp.Received = pages * e.conf.PageSize
		e.done = append(e.done, sp)
	}
}

func (e *Emulator) SubmissionSlots() int {
	return e.conf.SubmissionSlots - len(e.pending)
}

func (e *Emulator) Submit(sp Superpage) {
	if len(e.pending) >= e.conf.SubmissionSlots {
		panic("daq: submit into full submission queue")
	}
	sp.Filled = false
	sp.Received = 0
	e.pending = append(e.pending, sp)
}

func (e *Emulator) CompletedCount() int { return len(e.done) }

func (e *Emulator) PeekCompleted() Superpage {
	if len(e.done) == 0 {
		panic("daq: peek on empty completion queue")
	}
	return e.done[0]
}

func (e *Emulator) ReleaseCompleted() {
	if len(e.done) == 0 {
		panic("daq: release on empty completion queue")
	}
	e.done = e.done[1:]
}

func (e *Emulator) Temperature() (float64, bool) {
	return emulatedTemperature, true
}

// WriteRegister records writes to the debug scratch register; other
// registers are accepted and ignored.
func (e *Emulator) WriteRegister(index, value uint32) {
	if index == RegDebugReadWrite {
		e.debugValue.Store(value)
		e.debugWrites.Add(1)
	}
}

// DebugWrites returns the number of writes issued to the debug register.
func (e *Emulator) DebugWrites() int64 { return e.debugWrites.Load() }
