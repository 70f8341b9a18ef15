package eeg

import (
	"math"
	"math/rand"
	"time"
)

// Artifact and noise constants.
const (
	BlinkAmplitude       = 50000.0 // uV spike added to delta on a blink
	JawClenchNoise       = 15000.0 // broad EMG bleed at jerk == 5
	DefaultBlinkChance   = 0.05
	jawClenchJerkTrigger = 2.0
	jawClenchJerkScale   = 5.0
	jitterFraction       = 0.2
	noiseRetention       = 0.95
	noiseInnovation      = 0.05
	noiseAmplitude       = 1000.0
)

// State is the behavioral label that modulates an epoch.
type State string

// Known behavioral states. States without a modulation row pass through.
const (
	StateNeutral    State = "NEUTRAL"
	StateFocused    State = "FOCUSED"
	StateDistracted State = "DISTRACTED"
	StateStressed   State = "STRESSED"
	StateDrowsy     State = "DROWSY"
)

// ModulationTable maps a state to per-band multipliers.
type ModulationTable map[State]map[Band]float64

// DefaultModulation is the state → band → multiplier table.
var DefaultModulation = ModulationTable{
	StateFocused: {
		LowBeta: 1.5, // concentration
		Theta:   0.6,
	},
	StateDistracted: {
		Theta:   1.8,
		Delta:   1.2,
		LowBeta: 0.7,
	},
	StateStressed: {
		HighBeta: 2.0,
		LowGamma: 1.5,
		LowAlpha: 0.4,
	},
}

// Modifiers carries movement-derived inputs that inject artifacts.
type Modifiers struct {
	// MouseJerk is the pointer jerk magnitude for the epoch window.
	MouseJerk float64
}

// Synthesizer produces one BandPowers epoch per call. The colored-noise memory
// is owned by the instance, so a session must use its own Synthesizer.
// A Synthesizer is not safe for concurrent use.
type Synthesizer struct {
	base        BandPowers
	noise       [NumBands]float64
	modulation  ModulationTable
	jitter      float64
	blinkChance float64
	rng         *rand.Rand
}

// Option applies a configuration option to the Synthesizer.
type Option func(*Synthesizer)

// WithSeed makes the synthesizer deterministic.
func WithSeed(seed int64) Option {
	return func(s *Synthesizer) {
		s.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // simulation, not crypto
	}
}

// WithBasePowers overrides the resting-state baselines.
func WithBasePowers(base BandPowers) Option {
	return func(s *Synthesizer) {
		s.base = base
	}
}

// WithModulation replaces the state modulation table.
func WithModulation(table ModulationTable) Option {
	return func(s *Synthesizer) {
		if table != nil {
			s.modulation = table
		}
	}
}

// WithBlinkChance sets the per-epoch probability of a blink artifact.
func WithBlinkChance(p float64) Option {
	return func(s *Synthesizer) {
		if p >= 0 && p <= 1 {
			s.blinkChance = p
		}
	}
}

// WithJitter sets the uniform jitter as a fraction of each base power.
func WithJitter(fraction float64) Option {
	return func(s *Synthesizer) {
		if fraction >= 0 {
			s.jitter = fraction
		}
	}
}

// NewSynthesizer creates a synthesizer with zeroed noise state.
func NewSynthesizer(opts ...Option) *Synthesizer {
	s := &Synthesizer{
		base:        DefaultBasePowers,
		modulation:  DefaultModulation,
		jitter:      jitterFraction,
		blinkChance: DefaultBlinkChance,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // simulation, not crypto
	}
	return s
}

// GenerateEpoch returns one epoch for state. mods may be nil.
//
// Order: base, jitter, colored noise, state multiplier, jaw artifact,
// blink artifact, clamp.
func (s *Synthesizer) GenerateEpoch(state State, mods *Modifiers) BandPowers {
	var p BandPowers
	for b := Band(0); b < NumBands; b++ {
		base := s.base[b]
		spread := math.Abs(base * s.jitter)
		p[b] = base + s.uniform(-spread, spread) + s.colored(b)
	}

	for b, factor := range s.modulation[state] {
		p[b] *= factor
	}

	if mods != nil && mods.MouseJerk > jawClenchJerkTrigger {
		artifact := JawClenchNoise * (mods.MouseJerk / jawClenchJerkScale)
		p[HighBeta] += artifact
		p[LowGamma] += artifact
	}

	if s.rng.Float64() < s.blinkChance {
		p[Delta] += BlinkAmplitude
		p[Theta] += BlinkAmplitude / 2
	}

	for b := range p {
		if p[b] < 0 {
			p[b] = 0
		}
	}
	return p
}

// NoiseState returns a copy of the per-band colored-noise memory.
func (s *Synthesizer) NoiseState() [NumBands]float64 {
	return s.noise
}

// colored advances the one-pole low-pass filter on white noise for band b.
func (s *Synthesizer) colored(b Band) float64 {
	white := s.uniform(-1, 1)
	s.noise[b] = noiseRetention*s.noise[b] + noiseInnovation*white
	return s.noise[b] * noiseAmplitude
}

func (s *Synthesizer) uniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + s.rng.Float64()*(hi-lo)
}
