//go:build linux

// Command dmabench drives sustained DMA transfer from a data-acquisition
// card into a host buffer, verifies every transferred page against the
// card's generator pattern and reports throughput and error statistics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"gopkg.in/yaml.v3"

	"github.com/daqlab/dmabench-go/bench"
	"github.com/daqlab/dmabench-go/daq"
	"github.com/daqlab/dmabench-go/hostmem"
)

const (
	readoutErrorsPath = "readout_errors.txt"
	readoutASCIIPath  = "readout_data.txt"
	readoutBinPath    = "readout_data.bin"

	// Max error-log characters echoed to the console.
	errorEchoChars = 2000
)

type Config struct {
	Pages        int64  `yaml:"pages"`
	BufferSize   string `yaml:"buffer-size"`
	SuperpageMiB int    `yaml:"superpage-size-mib"`
	PageSize     int    `yaml:"page-size"`
	Card         string `yaml:"card"`
	Pattern      string `yaml:"pattern"`
	NoErrorCheck bool   `yaml:"no-errorcheck"`
	NoResync     bool   `yaml:"no-resync"`
	PageReset    bool   `yaml:"page-reset"`
	RandomPause  bool   `yaml:"random-pause"`
	BarHammer    bool   `yaml:"bar-hammer"`
	Reset        bool   `yaml:"reset"`
	ToFileASCII  bool   `yaml:"to-file-ascii"`
	ToFileBin    bool   `yaml:"to-file-bin"`
	BufferFile   string `yaml:"buffer-file"`
	RmBufferFile bool   `yaml:"rm-buffer-file"`
	Verbose      bool   `yaml:"verbose"`
}

func defaultConfig() Config {
	return Config{
		Pages:        1500,
		BufferSize:   "10MB",
		SuperpageMiB: 1,
		PageSize:     8192,
		Card:         "CRU",
		Pattern:      "INCREMENTAL",
	}
}

func loadConfig() (*Config, error) {
	fConfig := flag.String("config", "", "path to config YAML file")
	fPages := flag.Int64("pages", 1500, "pages to transfer, <= 0 for infinite")
	fBufferSize := flag.String("buffer-size", "10MB",
		"buffer size in MB or GB; MB selects 2MB hugepages (rounded down to a 2MB multiple), GB selects 1GB hugepages")
	fSuperpage := flag.Int("superpage-size", 1, "superpage size in MiB")
	fPageSize := flag.Int("page-size", 8192, "DMA page size in bytes")
	fCard := flag.String("card", "CRU", "card type [CRORC, CRU]")
	fPattern := flag.String("pattern", "INCREMENTAL",
		"generator pattern [INCREMENTAL, ALTERNATING, CONSTANT, RANDOM]")
	fNoCheck := flag.Bool("no-errorcheck", false, "skip error checking")
	fNoResync := flag.Bool("no-resync", false, "disable counter resync")
	fPageReset := flag.Bool("page-reset", false, "reset page to default values after readout (slow)")
	fRandomPause := flag.Bool("random-pause", false, "randomly pause readout")
	fBarHammer := flag.Bool("bar-hammer", false,
		"stress the BAR with repeated writes and measure performance")
	fReset := flag.Bool("reset", false, "reset channel during initialization")
	fASCII := flag.Bool("to-file-ascii", false, "read out to file in ASCII format")
	fBin := flag.Bool("to-file-bin", false, "read out to file in binary format")
	fBufferFile := flag.String("buffer-file", "",
		"back the buffer with this file (e.g. on a hugetlbfs mount) instead of anonymous hugepages")
	fRmBufferFile := flag.Bool("rm-buffer-file", false, "remove the buffer file after the benchmark")
	fVerbose := flag.Bool("v", false, "verbose status output")

	flag.Parse()

	conf := defaultConfig()
	if *fConfig != "" {
		b, err := os.ReadFile(*fConfig)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &conf); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	}

	// Apply CLI overrides for flags that were set explicitly.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "pages":
			conf.Pages = *fPages
		case "buffer-size":
			conf.BufferSize = *fBufferSize
		case "superpage-size":
			conf.SuperpageMiB = *fSuperpage
		case "page-size":
			conf.PageSize = *fPageSize
		case "card":
			conf.Card = *fCard
		case "pattern":
			conf.Pattern = *fPattern
		case "no-errorcheck":
			conf.NoErrorCheck = *fNoCheck
		case "no-resync":
			conf.NoResync = *fNoResync
		case "page-reset":
			conf.PageReset = *fPageReset
		case "random-pause":
			conf.RandomPause = *fRandomPause
		case "bar-hammer":
			conf.BarHammer = *fBarHammer
		case "reset":
			conf.Reset = *fReset
		case "to-file-ascii":
			conf.ToFileASCII = *fASCII
		case "to-file-bin":
			conf.ToFileBin = *fBin
		case "buffer-file":
			conf.BufferFile = *fBufferFile
		case "rm-buffer-file":
			conf.RmBufferFile = *fRmBufferFile
		case "v":
			conf.Verbose = *fVerbose
		}
	})

	// Validate.
	if conf.ToFileASCII && conf.ToFileBin {
		return nil, errors.New("file output can't be both ASCII and binary")
	}
	if conf.SuperpageMiB <= 0 {
		return nil, fmt.Errorf("invalid superpage size %d MiB", conf.SuperpageMiB)
	}

	return &conf, nil
}

func fatalIf(err error, msgf string, a ...any) {
	if err != nil {
		fmt.Fprintf(os.Stderr, msgf+": %v\n", append(a, err)...)
		os.Exit(1)
	}
}

func main() {
	conf, err := loadConfig()
	fatalIf(err, "reading config")

	fmt.Fprintf(os.Stderr, "FINAL CONFIG:\n")
	b, err := yaml.Marshal(conf)
	fatalIf(err, "encoding final YAML config")
	_, _ = os.Stderr.Write(b)
	fmt.Fprintln(os.Stderr)

	card, err := daq.ParseCardType(conf.Card)
	fatalIf(err, "parsing card type")
	patt, err := daq.ParsePattern(conf.Pattern)
	fatalIf(err, "parsing generator pattern")

	bufferSize, hugePage, err := hostmem.ParseBufferSize(conf.BufferSize)
	fatalIf(err, "parsing buffer size")
	superpageSize := conf.SuperpageMiB << 20

	var buf *hostmem.Buffer
	if conf.BufferFile != "" {
		fmt.Fprintf(os.Stderr, "Using buffer file path: %s\n", conf.BufferFile)
		buf, err = hostmem.MapFile(conf.BufferFile, bufferSize, conf.RmBufferFile)
	} else {
		buf, err = hostmem.MapAnonymous(bufferSize, hugePage)
	}
	fatalIf(err, "mapping buffer")
	defer buf.Close()

	channel, err := daq.NewEmulator(buf, daq.EmulatorConfig{
		Card:     card,
		Pattern:  patt,
		PageSize: conf.PageSize,
	})
	fatalIf(err, "opening channel")

	if conf.Reset {
		fmt.Fprintf(os.Stderr, "Resetting channel...")
		fatalIf(channel.Reset(), "resetting channel")
		fmt.Fprintf(os.Stderr, " done!\n")
	}

	var dumpFormat bench.DumpFormat
	var dumpTo io.Writer
	switch {
	case conf.ToFileASCII:
		f, err := os.Create(readoutASCIIPath)
		fatalIf(err, "creating ASCII readout file")
		defer f.Close()
		dumpFormat, dumpTo = bench.DumpASCII, f
	case conf.ToFileBin:
		f, err := os.Create(readoutBinPath)
		fatalIf(err, "creating binary readout file")
		defer f.Close()
		dumpFormat, dumpTo = bench.DumpBinary, f
	}

	p, err := bench.New(bench.Config{
		MaxPages:       conf.Pages,
		SuperpageSize:  superpageSize,
		PageSize:       conf.PageSize,
		Pattern:        patt,
		SkipErrorCheck: conf.NoErrorCheck,
		NoResync:       conf.NoResync,
		PageScrub:      conf.PageReset,
		RandomPause:    conf.RandomPause,
		BarHammer:      conf.BarHammer,
		Verbose:        conf.Verbose,
		DumpFormat:     dumpFormat,
		DumpTo:         dumpTo,
	}, buf, channel)
	fatalIf(err, "configuring benchmark")

	fmt.Fprintf(os.Stderr, "Max superpages       %d\n", p.MaxSuperpages())
	fmt.Fprintf(os.Stderr, "Pages per superpage  %d\n", p.PagesPerSuperpage())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	fmt.Println("### Starting benchmark")
	fatalIf(p.Run(ctx), "running benchmark")

	outputErrors(p, conf.Verbose, conf.NoErrorCheck)
	p.WriteReport(os.Stdout)

	s := p.Snapshot()
	if s.DrainPopped > 0 {
		fmt.Printf("Popped %d excess pages\n", s.DrainPopped)
	}
	fmt.Println("### Benchmark complete")
}

// outputErrors echoes recorded mismatches to the console (truncated) and
// persists the full capped log to readoutErrorsPath.
func outputErrors(p *bench.Pipeline, verbose, noCheck bool) {
	if noCheck {
		return
	}

	if verbose {
		summary, truncated := p.ErrorSummary(errorEchoChars)
		if summary != "" {
			fmt.Println("Errors:")
			fmt.Print(summary)
			if truncated > 0 {
				fmt.Printf("\n... more follow (%d characters)\n", truncated)
			}
		}
	}

	f, err := os.Create(readoutErrorsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating error log: %v\n", err)
		return
	}
	defer f.Close()
	if err := p.WriteErrorLog(f); err != nil {
		fmt.Fprintf(os.Stderr, "writing error log: %v\n", err)
	}
}
