package bench

import (
	"context"
	"fmt"
	"time"
)

// lowPriorityInterval is the period of the telemetry pass.
const lowPriorityInterval = 10 * time.Millisecond

// statusNewlineEvery is how often the status display commits a line to
// the scrollback instead of rewriting in place.
const statusNewlineEvery = time.Minute

// telemetryLoop runs the low-priority pass: it watches for an external
// interrupt (ctx cancellation) and refreshes the status display. Stop is
// advisory; this loop signals the pipeline loops to cease supplying new
// work but never aborts a superpage mid-verification. The page-limit
// stop is owned by the readout loop, never set here.
func (p *Pipeline) telemetryLoop(ctx context.Context) {
	ticker := time.NewTicker(lowPriorityInterval)
	defer ticker.Stop()

	headerPrinted := false
	pendingNewline := false

	for !p.stop.Load() {
		select {
		case <-ctx.Done():
			fmt.Fprintf(p.conf.Console, "\n\nInterrupted\n")
			p.stop.Store(true)
			return
		case <-ticker.C:
		}

		if !p.conf.Verbose {
			continue
		}
		if !headerPrinted {
			p.printStatusHeader()
			headerPrinted = true
		}
		p.printStatusLine(&pendingNewline)
	}
}

func (p *Pipeline) printStatusHeader() {
	fmt.Fprintf(p.conf.Console, "\n  %-8s   %-12s  %-12s  %-12s  %-5s",
		"Time", "Pushed", "Read", "Errors", "°C")
	fmt.Fprintf(p.conf.Console, "\n  %02d:%02d:%02d   %-12s  %-12s  %-12s  %-5s",
		0, 0, 0, "-", "-", "-", "-")
}

func (p *Pipeline) printStatusLine(pendingNewline *bool) {
	elapsed := time.Duration(time.Now().UnixNano() - p.startedNS.Load())
	h := int(elapsed.Hours())
	m := int(elapsed.Minutes()) % 60
	s := int(elapsed.Seconds()) % 60

	errs := "n/a"
	if p.verifier != nil {
		errs = fmt.Sprintf("%d", p.verifier.ErrorCount())
	}

	temp := "n/a"
	if t, ok := p.ch.Temperature(); ok {
		temp = fmt.Sprintf("%-5.1f", t)
	}

	fmt.Fprintf(p.conf.Console, "\r  %02d:%02d:%02d   %-12d  %-12d  %-12s  %-5s",
		h, m, s,
		p.pushedPages.Load(),
		p.readPages.Load(),
		errs, temp)

	// Commit a line to the scrollback once per interval.
	within := elapsed % statusNewlineEvery
	if *pendingNewline && within < time.Second {
		fmt.Fprintln(p.conf.Console)
		*pendingNewline = false
	}
	if within >= time.Second {
		*pendingNewline = true
	}
}
