package scheduler

import (
	"errors"
	"fmt"
	"time"

	"memsim/pkg/interpreter"

	"github.com/charmbracelet/log"
)

const (
	DefaultInterval = 500 * time.Millisecond // time per instruction at speed 1
	DefaultMinSpeed = 0.1
	DefaultMaxSpeed = 10.0

	speedFloor = 0.01 // lowest speed any range may clamp to
)

var ErrInvalidSpeed = errors.New("speed must be positive")

// Scheduler is the clock of the simulator. The host calls Tick once per frame
// with the elapsed time; while playing, at most one instruction runs per tick.
type Scheduler struct {
	it *interpreter.Interpreter

	playing bool
	speed   float64
	acc     time.Duration

	interval time.Duration
	minSpeed float64
	maxSpeed float64
}

type Option func(*Scheduler)

// WithInterval sets the time between instructions at speed 1
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithSpeedRange clamps SetSpeed to [min, max]
func WithSpeedRange(min, max float64) Option {
	return func(s *Scheduler) {
		s.minSpeed = min
		s.maxSpeed = max
	}
}

// WithSpeed sets the initial speed multiplier
func WithSpeed(speed float64) Option {
	return func(s *Scheduler) { s.speed = speed }
}

// New creates a paused scheduler driving it
func New(it *interpreter.Interpreter, opts ...Option) *Scheduler {
	s := &Scheduler{
		it:       it,
		speed:    1,
		interval: DefaultInterval,
		minSpeed: DefaultMinSpeed,
		maxSpeed: DefaultMaxSpeed,
	}

	for _, o := range opts {
		o(s)
	}

	if s.minSpeed < speedFloor {
		s.minSpeed = speedFloor
	}
	if s.maxSpeed < s.minSpeed {
		s.maxSpeed = s.minSpeed
	}

	s.speed = s.clamp(s.speed)
	return s
}

// Interpreter returns the driven interpreter
func (s *Scheduler) Interpreter() *interpreter.Interpreter {
	return s.it
}

// Playing reports whether auto-run is on
func (s *Scheduler) Playing() bool {
	return s.playing
}

// Speed returns the current speed multiplier
func (s *Scheduler) Speed() float64 {
	return s.speed
}

// Play starts auto-run. It has no effect once the program has finished.
func (s *Scheduler) Play() {
	if s.it.Done() {
		log.Debug("play ignored, program finished", "status", s.it.State().Status)
		return
	}
	s.playing = true
}

// Pause stops auto-run
func (s *Scheduler) Pause() {
	s.playing = false
	s.acc = 0
}

// Step pauses auto-run and executes exactly one instruction
func (s *Scheduler) Step() (bool, error) {
	s.Pause()
	return s.it.Step()
}

// SetSpeed changes the speed multiplier, clamped to the configured range
func (s *Scheduler) SetSpeed(speed float64) error {
	if speed <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, speed)
	}
	s.speed = s.clamp(speed)
	return nil
}

// Reset pauses and restores the interpreter to its initial state
func (s *Scheduler) Reset() {
	s.Pause()
	s.it.Reset()
}

// TriggerGC starts a collection; stepping resumes once it finishes
func (s *Scheduler) TriggerGC() error {
	return s.it.TriggerGC()
}

// Threshold returns the accumulated time needed for one instruction
func (s *Scheduler) Threshold() time.Duration {
	return time.Duration(float64(s.interval) / s.speed)
}

// Tick advances the clock by dt. A running collection consumes the tick;
// otherwise, while playing, one instruction runs when enough time has
// accumulated. It reports whether an instruction executed.
func (s *Scheduler) Tick(dt time.Duration) bool {
	if s.it.Collector().Active() {
		s.it.AdvanceGC(dt)
		return false
	}

	if !s.playing {
		return false
	}

	s.acc += dt
	threshold := s.Threshold()
	if s.acc < threshold {
		return false
	}

	// carry the remainder but never enough for a second instruction
	s.acc -= threshold
	if s.acc >= threshold {
		s.acc = 0
	}

	halted, err := s.it.Step()
	if err != nil {
		log.Warn("auto-run stopped", "error", err)
		s.Pause()
		return false
	}

	if halted {
		log.Info("auto-run finished", "status", s.it.State().Status)
		s.Pause()
	}

	return true
}

func (s *Scheduler) clamp(speed float64) float64 {
	if speed < s.minSpeed {
		return s.minSpeed
	}
	if speed > s.maxSpeed {
		return s.maxSpeed
	}
	return speed
}
