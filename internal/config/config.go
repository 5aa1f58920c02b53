// Package config handles memsim.toml simulator configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"memsim/pkg/gc"
	"memsim/pkg/interpreter"
	"memsim/pkg/memory"
	"memsim/pkg/scheduler"

	"github.com/BurntSushi/toml"
)

var ErrInvalid = errors.New("invalid configuration")

// Config represents a memsim.toml file.
type Config struct {
	Heap      Heap      `toml:"heap"`
	Scheduler Scheduler `toml:"scheduler"`
	GC        GC        `toml:"gc"`
	Log       Log       `toml:"log"`
}

// Heap configures the simulated address space.
type Heap struct {
	Base uint64 `toml:"base"`
	Size int    `toml:"size"`
}

// Scheduler configures the execution clock.
type Scheduler struct {
	Interval Duration `toml:"interval"`  // time per instruction at speed 1
	Frame    Duration `toml:"frame"`     // host frame delta used by the headless runner
	Speed    float64  `toml:"speed"`     // initial multiplier
	MinSpeed float64  `toml:"min_speed"` // lower clamp for SetSpeed
	MaxSpeed float64  `toml:"max_speed"` // upper clamp for SetSpeed
	MaxDepth int      `toml:"max_depth"` // call depth limit, 0 = unlimited
	MaxSteps int      `toml:"max_steps"` // instruction limit, 0 = unlimited
}

// GC configures collector pacing.
type GC struct {
	Mark  Duration `toml:"mark"`
	Sweep Duration `toml:"sweep"`
}

// Log configures the diagnostic logger.
type Log struct {
	Level string `toml:"level"`
}

// Duration is a time.Duration written as a string ("250ms") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText renders the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Heap: Heap{
			Base: memory.DefaultBase,
			Size: memory.DefaultSize,
		},
		Scheduler: Scheduler{
			Interval: Duration{scheduler.DefaultInterval},
			Frame:    Duration{16 * time.Millisecond},
			Speed:    1,
			MinSpeed: scheduler.DefaultMinSpeed,
			MaxSpeed: scheduler.DefaultMaxSpeed,
			MaxDepth: interpreter.DefaultMaxDepth,
		},
		GC: GC{
			Mark:  Duration{gc.DefaultMarkDuration},
			Sweep: Duration{gc.DefaultSweepDuration},
		},
		Log: Log{Level: "warn"},
	}
}

// Load parses a TOML file on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalid, path, strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects values the simulator cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Heap.Size <= 0:
		return fmt.Errorf("%w: heap.size must be positive, got %d", ErrInvalid, c.Heap.Size)
	case c.Scheduler.Interval.Duration <= 0:
		return fmt.Errorf("%w: scheduler.interval must be positive", ErrInvalid)
	case c.Scheduler.Frame.Duration <= 0:
		return fmt.Errorf("%w: scheduler.frame must be positive", ErrInvalid)
	case c.Scheduler.MinSpeed <= 0 || c.Scheduler.MaxSpeed < c.Scheduler.MinSpeed:
		return fmt.Errorf("%w: speed range [%v, %v] is empty or not positive", ErrInvalid, c.Scheduler.MinSpeed, c.Scheduler.MaxSpeed)
	case c.Scheduler.Speed <= 0:
		return fmt.Errorf("%w: scheduler.speed must be positive", ErrInvalid)
	case c.Scheduler.MaxDepth < 0 || c.Scheduler.MaxSteps < 0:
		return fmt.Errorf("%w: limits cannot be negative", ErrInvalid)
	case c.GC.Mark.Duration < 0 || c.GC.Sweep.Duration < 0:
		return fmt.Errorf("%w: gc phase durations cannot be negative", ErrInvalid)
	}
	return nil
}

// InterpreterOptions translates the configuration into interpreter options.
func (c *Config) InterpreterOptions() []interpreter.Option {
	return []interpreter.Option{
		interpreter.WithHeap(c.Heap.Base, c.Heap.Size),
		interpreter.WithGCPacing(c.GC.Mark.Duration, c.GC.Sweep.Duration),
		interpreter.WithMaxDepth(c.Scheduler.MaxDepth),
		interpreter.WithMaxSteps(c.Scheduler.MaxSteps),
	}
}

// SchedulerOptions translates the configuration into scheduler options.
func (c *Config) SchedulerOptions() []scheduler.Option {
	return []scheduler.Option{
		scheduler.WithInterval(c.Scheduler.Interval.Duration),
		scheduler.WithSpeedRange(c.Scheduler.MinSpeed, c.Scheduler.MaxSpeed),
		scheduler.WithSpeed(c.Scheduler.Speed),
	}
}
