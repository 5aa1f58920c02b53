package main

import (
	"flag"
	"fmt"
	"os"

	"memsim/internal/config"
	"memsim/internal/logger"
	"memsim/internal/runner"

	"github.com/charmbracelet/log"
)

// Main entry point for the memory simulator.
func main() {
	options := runner.Runner{}
	var configFile string

	flag.BoolVar(&options.Help, "h", false, "Show help")
	flag.BoolVar(&options.Verbose, "v", false, "Verbose mode")
	flag.BoolVar(&options.Trace, "t", false, "Trace log entries as they happen")
	flag.BoolVar(&options.NoColor, "n", false, "No color")
	flag.BoolVar(&options.CollectAtEnd, "g", false, "Run a GC cycle after the program finishes")
	flag.IntVar(&options.MaxFrames, "f", runner.DefaultMaxFrames, "Frame budget")
	flag.StringVar(&configFile, "c", "", "Config file (memsim.toml)")
	flag.StringVar(&options.DumpFile, "o", "", "Write a CBOR snapshot of the final state")

	flag.Parse()
	args := flag.Args()

	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			logger.Init(cfg.Log.Level, options.Verbose, options.NoColor)
			log.Fatal("Invalid configuration", "error", err)
		}
		cfg = loaded
	}
	options.Config = cfg

	logger.Init(cfg.Log.Level, options.Verbose, options.NoColor)
	if options.Help {
		fmt.Printf("Usage: %s [options] [program.yaml]\n", os.Args[0])
		fmt.Println("Runs the built-in demo when no program is given.")
		fmt.Println("Options:")
		flag.PrintDefaults()
		return
	}

	if len(args) > 0 {
		options.ProgramFile = args[0]
	}

	if err := options.Run(); err != nil {
		log.Fatal("Simulation failed", "error", err)
	}
}
