package bench

import (
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/daqlab/dmabench-go/hostmem"
)

// Snapshot is a point-in-time view of the run counters. Mid-run values
// are eventually consistent; after Run returns they are exact.
type Snapshot struct {
	Elapsed      time.Duration
	PushedPages  int64
	ReadPages    int64
	Errors       int64 // -1 when checking is disabled
	DrainPopped  int64
	HammerWrites int64

	FreeSuperpages int
}

// Snapshot returns the current counters.
func (p *Pipeline) Snapshot() Snapshot {
	endNS := p.endedNS.Load()
	if endNS == 0 {
		endNS = time.Now().UnixNano()
	}
	errs := int64(-1)
	if p.verifier != nil {
		errs = p.verifier.ErrorCount()
	}
	return Snapshot{
		Elapsed:        time.Duration(endNS - p.startedNS.Load()),
		PushedPages:    p.pushedPages.Load(),
		ReadPages:      p.readPages.Load(),
		Errors:         errs,
		DrainPopped:    p.drainPopped.Load(),
		HammerWrites:   p.hammerWrites.Load(),
		FreeSuperpages: p.freeList.Len(),
	}
}

// WriteReport renders the final run statistics to w.
func (p *Pipeline) WriteReport(w io.Writer) {
	s := p.Snapshot()
	pr := message.NewPrinter(language.English)

	seconds := s.Elapsed.Seconds()
	bytes := float64(s.ReadPages) * float64(p.conf.PageSize)
	gb := bytes / 1e9
	gbps := gb / seconds

	put := func(label string, format string, a ...any) {
		pr.Fprintf(w, "  %-22s  ", label)
		pr.Fprintf(w, format, a...)
		pr.Fprintln(w)
	}

	pr.Fprintln(w)
	put("Seconds", "%.3f", seconds)
	put("Pages", "%d", s.ReadPages)
	if bytes > 0 {
		put("Bytes", "%.0f (%s)", bytes, humanize.Bytes(uint64(bytes)))
		put("GB", "%.3f", gb)
		put("GB/s", "%.3f", gbps)
		put("Gb/s", "%.3f", gbps*8)
	}
	if s.Errors < 0 {
		put("Errors", "n/a")
	} else {
		put("Errors", "%d", s.Errors)
	}
	if s.DrainPopped > 0 {
		put("Popped on drain", "%d", s.DrainPopped)
	}

	if p.conf.BarHammer {
		writeBytes := float64(s.HammerWrites) * hostmem.WordSize
		put("BAR writes", "%d", s.HammerWrites)
		put("BAR write size (bytes)", "%d", hostmem.WordSize)
		put("BAR MB", "%.3f", writeBytes/1e6)
		put("BAR MB/s", "%.3f", writeBytes/1e6/seconds)
	}
	pr.Fprintln(w)
}

// WriteErrorLog writes the recorded mismatches, one line each, to w.
// A no-op when integrity checking is disabled.
func (p *Pipeline) WriteErrorLog(w io.Writer) error {
	if p.verifier == nil {
		return nil
	}
	return p.verifier.WriteLog(w)
}

// ErrorSummary returns the recorded mismatch lines truncated to maxChars
// for console echoing. The second value is the number of truncated
// characters.
func (p *Pipeline) ErrorSummary(maxChars int) (string, int) {
	if p.verifier == nil {
		return "", 0
	}
	var sb strings.Builder
	if err := p.verifier.WriteLog(&sb); err != nil {
		return "", 0
	}
	s := sb.String()
	if len(s) <= maxChars {
		return s, 0
	}
	return s[:maxChars], len(s) - maxChars
}
