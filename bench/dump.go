package bench

import (
	"fmt"
	"io"

	"github.com/daqlab/dmabench-go/hostmem"
)

// DumpFormat selects the optional raw page dump written during readout.
type DumpFormat int

const (
	DumpNone DumpFormat = iota
	// DumpASCII writes a human-readable per-page word listing.
	DumpASCII
	// DumpBinary writes the raw page bytes.
	DumpBinary
)

// wordsPerDumpLine is the ASCII dump row width.
const wordsPerDumpLine = 8

func dumpPage(w io.Writer, format DumpFormat, page []byte, event int64) error {
	switch format {
	case DumpASCII:
		return dumpASCII(w, page, event)
	case DumpBinary:
		_, err := w.Write(page)
		return err
	}
	return nil
}

func dumpASCII(w io.Writer, page []byte, event int64) error {
	if _, err := fmt.Fprintf(w, "Event #%d\n", event); err != nil {
		return err
	}
	words := hostmem.Words(page)
	for i := 0; i < words; i += wordsPerDumpLine {
		for j := 0; j < wordsPerDumpLine && i+j < words; j++ {
			if _, err := fmt.Fprintf(w, "%d ", hostmem.Word(page, i+j)); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}
