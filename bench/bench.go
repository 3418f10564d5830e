// Package bench implements the DMA benchmark pipeline: a feeder loop
// keeping the hardware channel supplied with empty superpages, a readout
// loop verifying and recycling filled ones, and the telemetry and stress
// perturbations layered on top.
//
// Superpage offsets circulate through a closed ring:
//
//	free-list → channel → readout-queue → readout loop → free-list
//
// Each offset is owned by exactly one stage at a time; the two bounded
// SPSC queues and that single-owner rule are the only synchronization on
// the data path.
package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/daqlab/dmabench-go/daq"
	"github.com/daqlab/dmabench-go/hostmem"
	"github.com/daqlab/dmabench-go/pause"
	"github.com/daqlab/dmabench-go/spsc"
	"github.com/daqlab/dmabench-go/verify"
)

var (
	ErrBadPageSize       = errors.New("bench: page size must be a positive multiple of the word size")
	ErrBadSuperpageSize  = errors.New("bench: superpage size must be a positive multiple of the page size")
	ErrBufferTooSmall    = errors.New("bench: buffer is smaller than the superpage size")
	ErrHammerUnsupported = errors.New("bench: register stress writer is only supported on CRU cards")
)

// ScrubValue is the sentinel word pages are reset to after readout when
// page scrubbing is enabled.
const ScrubValue uint32 = 0xCcccCccc

// DefaultDrainTimeout bounds how long shutdown waits for superpages
// still in flight with the channel.
const DefaultDrainTimeout = 10 * time.Millisecond

// Config is the benchmark configuration after CLI/file parsing.
type Config struct {
	// MaxPages limits the number of pages to transfer; <= 0 means
	// unbounded (run until interrupted).
	MaxPages int64

	SuperpageSize int
	PageSize      int

	// Pattern the card's data generator is configured to emit.
	Pattern daq.GeneratorPattern
	// SkipErrorCheck disables integrity verification.
	SkipErrorCheck bool
	// NoResync disables re-seeding the expected counter after a mismatch.
	NoResync bool

	// PageScrub overwrites each page with ScrubValue after readout.
	PageScrub bool
	// RandomPause injects randomized stalls into both pipeline loops.
	RandomPause bool
	// BarHammer runs the register stress writer alongside the transfer.
	BarHammer bool

	// Verbose enables the periodic status line.
	Verbose bool

	// DumpFormat/DumpTo select the optional raw page dump.
	DumpFormat DumpFormat
	DumpTo     io.Writer

	// DrainTimeout bounds the shutdown drain.
	// Defaults to DefaultDrainTimeout.
	DrainTimeout time.Duration

	// Console receives the status display and pause notices.
	// Defaults to os.Stdout.
	Console io.Writer
}

// Pipeline coordinates one benchmark run. It owns the buffer accounting
// (free-list and readout queue) for the run's lifetime; the buffer and
// channel are borrowed collaborators.
type Pipeline struct {
	conf Config
	buf  *hostmem.Buffer
	ch   daq.Channel

	maxSuperpages     int
	pagesPerSuperpage int

	// freeList is produced by the readout loop, consumed by the feeder;
	// readoutQueue is produced by the feeder, consumed by the readout
	// loop. Strict SPSC on both.
	freeList     *spsc.OffsetQueue
	readoutQueue *spsc.OffsetQueue

	verifier *verify.Verifier // nil when SkipErrorCheck

	stop         atomic.Bool
	pushedPages  atomic.Int64
	readPages    atomic.Int64
	drainPopped  atomic.Int64
	hammerWrites atomic.Int64

	inFlight int // superpages held by the channel; feeder/drain only

	// Run timestamps in unix nanoseconds, atomic so the telemetry loop
	// and Snapshot can read them while the run is in progress.
	startedNS, endedNS atomic.Int64

	dumpErr error
}

// New validates conf against the buffer and channel and builds a
// pipeline. Configuration errors are fatal and reported before anything
// starts moving.
func New(conf Config, buf *hostmem.Buffer, ch daq.Channel) (*Pipeline, error) {
	if conf.PageSize <= 0 || conf.PageSize%hostmem.WordSize != 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadPageSize, conf.PageSize)
	}
	if conf.SuperpageSize <= 0 || conf.SuperpageSize%conf.PageSize != 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadSuperpageSize, conf.SuperpageSize)
	}
	if buf.Size() < conf.SuperpageSize {
		return nil, fmt.Errorf("%w: buffer %d, superpage %d",
			ErrBufferTooSmall, buf.Size(), conf.SuperpageSize)
	}
	if conf.BarHammer && ch.CardType() != daq.CardCRU {
		return nil, fmt.Errorf("%w: card is %s", ErrHammerUnsupported, ch.CardType())
	}
	if conf.DumpFormat != DumpNone && conf.DumpTo == nil {
		return nil, errors.New("bench: dump format set without a dump sink")
	}
	if conf.DrainTimeout <= 0 {
		conf.DrainTimeout = DefaultDrainTimeout
	}
	if conf.Console == nil {
		conf.Console = os.Stdout
	}

	p := &Pipeline{
		conf:              conf,
		buf:               buf,
		ch:                ch,
		maxSuperpages:     buf.Size() / conf.SuperpageSize,
		pagesPerSuperpage: conf.SuperpageSize / conf.PageSize,
	}

	if !conf.SkipErrorCheck {
		v, err := verify.New(ch.CardType(), conf.Pattern, !conf.NoResync)
		if err != nil {
			return nil, err
		}
		p.verifier = v
	}

	p.freeList = spsc.New(p.maxSuperpages + 1)
	p.readoutQueue = spsc.New(p.maxSuperpages + 1)
	return p, nil
}

// MaxSuperpages returns the number of superpages the buffer holds.
func (p *Pipeline) MaxSuperpages() int { return p.maxSuperpages }

// PagesPerSuperpage returns the number of pages per superpage.
func (p *Pipeline) PagesPerSuperpage() int { return p.pagesPerSuperpage }

// Run executes the benchmark until the page limit is reached or ctx is
// canceled. It starts the channel's DMA, spawns the feeder, telemetry
// and optional stress-writer goroutines, runs the readout loop on the
// calling goroutine, then joins everything, drains superpages still in
// flight and stops the DMA.
func (p *Pipeline) Run(ctx context.Context) error {
	for i := 0; i < p.maxSuperpages; i++ {
		if !p.freeList.TryPush(uint64(i * p.conf.SuperpageSize)) {
			panic("bench: free-list cannot hold initial superpage set")
		}
	}

	if err := p.ch.StartDMA(); err != nil {
		return fmt.Errorf("starting DMA: %w", err)
	}

	var wg sync.WaitGroup
	p.startedNS.Store(time.Now().UnixNano())

	if p.conf.BarHammer {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.hammerLoop()
		}()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		p.feederLoop()
	}()
	go func() {
		defer wg.Done()
		p.telemetryLoop(ctx)
	}()

	p.readoutLoop()
	p.stop.Store(true) // unblock feeder/telemetry if readout exited first
	wg.Wait()
	p.endedNS.Store(time.Now().UnixNano())

	p.drain()

	if err := p.ch.StopDMA(); err != nil {
		return fmt.Errorf("stopping DMA: %w", err)
	}
	if p.dumpErr != nil {
		return fmt.Errorf("writing page dump: %w", p.dumpErr)
	}
	return nil
}

// feederLoop keeps the channel's submission queue topped up from the
// free-list and reaps completed superpages into the readout queue.
func (p *Pipeline) feederLoop() {
	stalls := pause.New(p.conf.RandomPause)
	stalls.OnPause(p.pauseNotice)

	for !p.stop.Load() {
		// The page limit is checked before supplying more work, never
		// mid-transfer.
		if p.conf.MaxPages > 0 && p.pushedPages.Load() >= p.conf.MaxPages {
			return
		}

		stalls.PauseIfNeeded()

		p.ch.FillSuperpages()

		// Hand free superpages to the channel until one side runs dry.
		for p.ch.SubmissionSlots() > 0 {
			offset, ok := p.freeList.TryPop()
			if !ok {
				break
			}
			p.ch.Submit(daq.Superpage{Offset: offset, Size: p.conf.SuperpageSize})
			p.inFlight++
		}

		// Reap at most the head completion per iteration. If the readout
		// queue is full the superpage stays with the channel; a filled
		// superpage is never dropped.
		if p.ch.CompletedCount() > 0 {
			sp := p.ch.PeekCompleted()
			if sp.Filled {
				// The pushed counter is bumped before the offset becomes
				// visible to the readout loop, so pushed >= read holds at
				// every observation point.
				n := int64(p.pagesPerSuperpage)
				p.pushedPages.Add(n)
				if p.readoutQueue.TryPush(sp.Offset) {
					p.ch.ReleaseCompleted()
					p.inFlight--
				} else {
					p.pushedPages.Add(-n)
				}
			}
		}
	}
}

// readoutLoop consumes filled superpages, processes every page and
// returns the offset to the free-list. It is the sole authority for
// signaling stop on the page-limit path.
func (p *Pipeline) readoutLoop() {
	stalls := pause.New(p.conf.RandomPause)
	stalls.OnPause(p.pauseNotice)

	for !p.stop.Load() {
		if p.limitReached() {
			p.stop.Store(true)
			return
		}

		stalls.PauseIfNeeded()

		offset, ok := p.readoutQueue.TryPop()
		if !ok {
			continue
		}

		region, err := p.buf.Superpage(offset, p.conf.SuperpageSize)
		if err != nil {
			panic(fmt.Sprintf("bench: readout queue produced bad offset: %v", err))
		}

		for i := 0; i < p.pagesPerSuperpage; i++ {
			if p.limitReached() {
				// Limit hit mid-superpage: skip the remaining pages so the
				// readout count lands exactly on the limit. The superpage
				// is still recycled below.
				break
			}
			event := p.readPages.Add(1) - 1
			page := region[i*p.conf.PageSize : (i+1)*p.conf.PageSize]
			p.readoutPage(page, event)
		}

		if !p.freeList.TryPush(offset) {
			// Structurally impossible unless a superpage was returned
			// twice; a data error cannot cause this.
			panic("bench: free-list overflow: superpage double-returned")
		}
	}
}

func (p *Pipeline) limitReached() bool {
	return p.conf.MaxPages > 0 && p.readPages.Load() >= p.conf.MaxPages
}

// readoutPage runs the per-page steps: optional dump, verification,
// optional scrub.
func (p *Pipeline) readoutPage(page []byte, event int64) {
	if p.conf.DumpFormat != DumpNone && p.dumpErr == nil {
		if err := dumpPage(p.conf.DumpTo, p.conf.DumpFormat, page, event); err != nil {
			// Remember the first sink failure and stop dumping; the
			// transfer itself keeps going.
			p.dumpErr = err
		}
	}

	if p.verifier != nil {
		p.verifier.VerifyPage(page, event)
	}

	if p.conf.PageScrub {
		hostmem.Scrub(page, ScrubValue)
	}
}

// drain recovers superpages left in the readout queue and with the
// channel after the loops exited. Their payload is discarded: the pages
// are counted as popped on drain, not as read.
func (p *Pipeline) drain() {
	for {
		offset, ok := p.readoutQueue.TryPop()
		if !ok {
			break
		}
		p.drainPopped.Add(int64(p.pagesPerSuperpage))
		if !p.freeList.TryPush(offset) {
			panic("bench: free-list overflow on drain")
		}
	}

	deadline := time.Now().Add(p.conf.DrainTimeout)
	for p.inFlight > 0 && time.Now().Before(deadline) {
		p.ch.FillSuperpages()
		if p.ch.CompletedCount() == 0 {
			continue
		}
		sp := p.ch.PeekCompleted()
		if !sp.Filled {
			continue
		}
		p.drainPopped.Add(int64(sp.Received / p.conf.PageSize))
		p.ch.ReleaseCompleted()
		p.inFlight--
		if !p.freeList.TryPush(sp.Offset) {
			panic("bench: free-list overflow on drain")
		}
	}
}

func (p *Pipeline) pauseNotice(d time.Duration) {
	fmt.Fprintf(p.conf.Console, "sw pause %-4d ms\n", d.Milliseconds())
}
