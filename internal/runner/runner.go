package runner

import (
	"errors"
	"fmt"
	"io"
	"os"

	"memsim/internal/config"
	"memsim/pkg/color"
	"memsim/pkg/interpreter"
	"memsim/pkg/program"
	"memsim/pkg/scheduler"
	"memsim/pkg/snapshot"

	"github.com/charmbracelet/log"
)

// DefaultMaxFrames bounds a headless run when no limit is given.
const DefaultMaxFrames = 1_000_000

var ErrIncomplete = errors.New("program did not finish")

type Runner struct {
	Help         bool           // Show help message
	Verbose      bool           // Print the classified program before running
	Trace        bool           // Echo log entries as they are recorded
	NoColor      bool           // Disable colored output
	CollectAtEnd bool           // Run a GC cycle after the program finishes
	MaxFrames    int            // Frame budget for the headless clock
	ProgramFile  string         // YAML program, the demo when empty
	DumpFile     string         // Where to write a CBOR snapshot of the final state
	Config       *config.Config // Simulator configuration, defaults when nil
	Out          io.Writer      // Report destination, stdout when nil
}

// Run loads the program, drives it with a fixed frame clock until it
// completes or halts, and prints the execution report.
func (opts *Runner) Run() error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	if opts.NoColor {
		color.EnableColor(false)
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	prog, err := opts.loadProgram()
	if err != nil {
		return err
	}

	if opts.Verbose {
		printProgram(out, prog)
	}

	iopts := cfg.InterpreterOptions()
	if opts.Trace {
		fmt.Fprintln(out, color.Heading("Trace"))
		iopts = append(iopts, interpreter.WithWriter(out))
	}

	it := interpreter.New(prog, iopts...)
	s := scheduler.New(it, cfg.SchedulerOptions()...)

	frame := cfg.Scheduler.Frame.Duration
	maxFrames := opts.MaxFrames
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}

	s.Play()
	frames := 0
	for ; frames < maxFrames && (s.Playing() || it.Collector().Active()); frames++ {
		s.Tick(frame)
	}

	if !it.Done() {
		return fmt.Errorf("%w: stopped at %s after %d instructions in %d frames",
			ErrIncomplete, it.Stats().CurrentFunctionName, it.Stats().InstructionsExecuted, frames)
	}
	log.Info("program finished", "status", it.State().Status, "frames", frames)

	if opts.CollectAtEnd {
		if err := s.TriggerGC(); err != nil {
			return fmt.Errorf("garbage collection failed: %w", err)
		}
		for it.Collector().Active() {
			s.Tick(frame)
		}
	}

	if err := it.Heap().Validate(); err != nil {
		return fmt.Errorf("heap layout is inconsistent: %w", err)
	}

	printReport(out, it)

	if opts.DumpFile != "" {
		if err := snapshot.WriteFile(opts.DumpFile, it); err != nil {
			return err
		}
		log.Info("snapshot written", "file", opts.DumpFile)
	}

	if it.State().Status == interpreter.Halted {
		log.Warn("program halted", "errors", len(it.Errors()))
	}

	return nil
}

func (opts *Runner) loadProgram() (*program.Program, error) {
	if opts.ProgramFile == "" {
		log.Debug("no program file, running the demo")
		return program.Demo(), nil
	}

	log.Info("Processing file", "file", opts.ProgramFile)
	return program.Load(opts.ProgramFile)
}
