// Command-line interface for exporting multiresolution pyramids of raw volumes
// to chunked stores.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/pprof"
	"strings"
	"syscall"

	"github.com/janelia-flyem/mipexport/config"
	"github.com/janelia-flyem/mipexport/mip"
	"github.com/janelia-flyem/mipexport/pyramid"
	"github.com/janelia-flyem/mipexport/storage"

	_ "github.com/janelia-flyem/mipexport/storage/badger"
	_ "github.com/janelia-flyem/mipexport/storage/blobstore"
	_ "github.com/janelia-flyem/mipexport/storage/memstore"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// TOML configuration file.
	configFile = flag.String("config", "", "")

	// JSON level list overriding the configuration's levels.
	levelsFile = flag.String("levels", "", "")

	// Number of workers overriding the configuration.
	numThreads = flag.Int("threads", 0, "")

	// Profile CPU usage using standard gotest system.
	cpuprofile = flag.String("cpuprofile", "", "")
)

const helpMessage = `
mipexport writes a multiresolution pyramid of a raw volume to a chunked store

Usage: mipexport [options] <command>

      -config     =string   TOML configuration file.
      -levels     =string   JSON level list, overrides [[level]] tables.
      -threads    =number   Number of worker threads.
      -cpuprofile =string   Write CPU profile to this file.
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

Commands:

	export     Export the configured source (default).
	engines    List available storage engines.
	help
`

var usage = func() {
	fmt.Print(helpMessage)
}

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() >= 1 && strings.ToLower(flag.Args()[0]) == "help" {
		*showHelp = true
	}
	if *runVerbose {
		mip.Verbose = true
		mip.SetLogMode(mip.DebugMode)
	}
	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	err := run()
	mip.Shutdown()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// run executes the command named by the first argument.  Deferred cleanup, including
// the CPU profile, completes before it returns.
func run() error {
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	// Capture ctrl+c and other interrupts.  Cancellation stops the export after
	// chunks in flight are written.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopSig := make(chan os.Signal, 1)
	go func() {
		for sig := range stopSig {
			log.Printf("Stop signal captured: %q.  Stopping after chunks in flight...\n", sig)
			cancel()
		}
	}()
	signal.Notify(stopSig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stopSig)

	command := "export"
	if flag.NArg() >= 1 {
		command = strings.ToLower(flag.Args()[0])
	}
	switch command {
	case "export":
		return doExport(ctx)
	case "engines":
		fmt.Println(storage.EnginesAvailable())
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func doExport(ctx context.Context) error {
	c, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	c.Logging.SetLogger()
	if *levelsFile != "" {
		c.Export.LevelsJSON = *levelsFile
	}
	if *numThreads > 0 {
		c.Export.Threads = *numThreads
	}

	src, err := c.OpenSource()
	if err != nil {
		return err
	}
	defer src.Close()
	levels, err := c.Levels(src.Dims())
	if err != nil {
		return err
	}
	ref, err := c.StoreRef()
	if err != nil {
		return err
	}
	sink, err := storage.Open(ref)
	if err != nil {
		return err
	}
	defer sink.Close()

	cfg := c.ExportConfig(src)
	mip.Infof("Exporting %s %s volume %q to %s with %d levels, %d threads, %s policy\n",
		src.Dims(), src.DataType(), c.Source.Path, ref, len(levels), cfg.Threads, cfg.Policy)
	info, err := pyramid.Export(ctx, src, sink, levels, cfg)
	if info != nil {
		data, jerr := info.JSON()
		if jerr == nil {
			fmt.Println(string(data))
		}
		if !info.Complete() {
			mip.Warningf("Pyramid is incomplete, see chunksFailed in descriptor\n")
		}
	}
	return err
}
