package replay

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/okian/neurobloom/internal/domain/interaction"
	"github.com/okian/neurobloom/pkg/logger"
)

// Typing and pointer generation ranges, in milliseconds and pixels.
const (
	minKeystrokes     = 20
	keystrokeRange    = 40
	dwellMin          = 60.0
	dwellRange        = 90.0
	flightMin         = 80.0
	flightRange       = 220.0
	backspaceChance   = 0.08
	pointerSamples    = 60
	pointerIntervalMS = 16.0
	pointerStepMax    = 12.0
	pauseChance       = 0.1
	pauseMS           = 400.0
)

var letters = []string{"A", "S", "D", "F", "J", "K", "L", "E", "R", "T", "N", "O"}

// Generator builds synthetic interaction batches. It is not safe for
// concurrent use.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a generator. A zero seed uses the current time.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rng: rand.New(rand.NewSource(seed))} //nolint:gosec // synthetic input, not security sensitive
}

// Batch returns one ordered batch of keystrokes and pointer samples.
func (g *Generator) Batch() interaction.Batch {
	return interaction.Batch{Keys: g.keys(), Pointer: g.pointer()}
}

func (g *Generator) keys() []interaction.KeyEvent {
	n := minKeystrokes + g.rng.Intn(keystrokeRange)
	events := make([]interaction.KeyEvent, 0, 2*n)

	t := 0.0
	for i := 0; i < n; i++ {
		key := letters[g.rng.Intn(len(letters))]
		if g.rng.Float64() < backspaceChance {
			key = interaction.BackspaceKey
		}
		press := t
		release := press + dwellMin + g.rng.Float64()*dwellRange
		events = append(events,
			interaction.KeyEvent{Timestamp: press, Key: key, Type: interaction.Press},
			interaction.KeyEvent{Timestamp: release, Key: key, Type: interaction.Release},
		)
		t = release + flightMin + g.rng.Float64()*flightRange
	}
	return events
}

func (g *Generator) pointer() []interaction.PointerEvent {
	events := make([]interaction.PointerEvent, pointerSamples)

	x, y, t := 400.0, 300.0, 0.0
	heading := g.rng.Float64() * 2 * math.Pi
	for i := range events {
		events[i] = interaction.PointerEvent{Timestamp: t, X: x, Y: y}

		t += pointerIntervalMS
		if g.rng.Float64() < pauseChance {
			t += pauseMS
			continue
		}
		heading += (g.rng.Float64() - 0.5) * math.Pi / 4
		step := g.rng.Float64() * pointerStepMax
		x += step * math.Cos(heading)
		y += step * math.Sin(heading)
	}
	return events
}

// generateSubmissions creates one submission per session with unique IDs.
func generateSubmissions(ctx context.Context, config *Config, stats *Stats) ([]Submission, error) {
	logger.Get().Info(ctx, "generating sessions", logger.Int("sessions", config.Sessions))

	gen := NewGenerator(config.Seed)
	subs := make([]Submission, config.Sessions)
	for i := range subs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during generation: %w", err)
		}
		batch := gen.Batch()
		if err := batch.Validate(); err != nil {
			return nil, fmt.Errorf("generated batch %d: %w", i, err)
		}
		subs[i] = Submission{
			SessionID:   uuid.NewString(),
			VideoURL:    config.VideoURL,
			Interaction: &batch,
		}
	}

	stats.SessionsGenerated = len(subs)
	logger.Get().Info(ctx, "generated sessions", logger.Int("count", len(subs)))
	return subs, nil
}
