// Package fusion combines one EEG epoch, one interaction feature set and one
// frame of vision metrics into a bounded metric snapshot.
package fusion

import (
	"math"

	"github.com/okian/neurobloom/internal/domain/eeg"
	"github.com/okian/neurobloom/internal/domain/interaction"
	"github.com/okian/neurobloom/internal/domain/vision"
)

// Fusion constants.
const (
	BlinkVariabilityPlaceholder = 0.5

	fatigueAlphaScale     = 20000.0
	fatigueActiveVelocity = 1.0
	jerkWeight            = 10.0
	gazeFocusWeight       = 0.5
	idleFocusWeight       = 0.3
	errorWeight           = 2.0
	flightVarScale        = 1000.0
	headStabilityCeiling  = 100.0
	lookawayScale         = 10.0
	secondsPerMinute      = 60.0
)

// Metric names, in report order.
const (
	EngagementScore         = "engagement_score"
	MotorFatigueRate        = "motor_fatigue_rate"
	FocusRatio              = "focus_ratio"
	HyperactivityIndex      = "hyperactivity_index"
	ThetaBetaRatio          = "theta_beta_ratio"
	LookawayFrequency       = "lookaway_frequency"
	CognitiveLoadIndex      = "cognitive_load_index"
	StressIndex             = "stress_index"
	HeadStability           = "head_stability"
	WritingConsistencyScore = "writing_consistency_score"
	BlinkVariability        = "blink_variability"
	DistractionTimeSec      = "distraction_time_sec"
)

// Names lists the twelve snapshot fields in report order.
var Names = []string{
	EngagementScore, MotorFatigueRate, FocusRatio, HyperactivityIndex,
	ThetaBetaRatio, LookawayFrequency, CognitiveLoadIndex, StressIndex,
	HeadStability, WritingConsistencyScore, BlinkVariability, DistractionTimeSec,
}

// Snapshot is the fused output of one tick.
type Snapshot struct {
	EngagementScore         float64 `json:"engagement_score"`
	MotorFatigueRate        float64 `json:"motor_fatigue_rate"`
	FocusRatio              float64 `json:"focus_ratio"`
	HyperactivityIndex      float64 `json:"hyperactivity_index"`
	ThetaBetaRatio          float64 `json:"theta_beta_ratio"`
	LookawayFrequency       float64 `json:"lookaway_frequency"`
	CognitiveLoadIndex      float64 `json:"cognitive_load_index"`
	StressIndex             float64 `json:"stress_index"`
	HeadStability           float64 `json:"head_stability"`
	WritingConsistencyScore float64 `json:"writing_consistency_score"`
	BlinkVariability        float64 `json:"blink_variability"`
	DistractionTimeSec      float64 `json:"distraction_time_sec"`
}

// Map returns the snapshot keyed by metric name.
func (s Snapshot) Map() map[string]float64 {
	return map[string]float64{
		EngagementScore:         s.EngagementScore,
		MotorFatigueRate:        s.MotorFatigueRate,
		FocusRatio:              s.FocusRatio,
		HyperactivityIndex:      s.HyperactivityIndex,
		ThetaBetaRatio:          s.ThetaBetaRatio,
		LookawayFrequency:       s.LookawayFrequency,
		CognitiveLoadIndex:      s.CognitiveLoadIndex,
		StressIndex:             s.StressIndex,
		HeadStability:           s.HeadStability,
		WritingConsistencyScore: s.WritingConsistencyScore,
		BlinkVariability:        s.BlinkVariability,
		DistractionTimeSec:      s.DistractionTimeSec,
	}
}

// Values returns the fields in Names order.
func (s Snapshot) Values() []float64 {
	return []float64{
		s.EngagementScore, s.MotorFatigueRate, s.FocusRatio, s.HyperactivityIndex,
		s.ThetaBetaRatio, s.LookawayFrequency, s.CognitiveLoadIndex, s.StressIndex,
		s.HeadStability, s.WritingConsistencyScore, s.BlinkVariability, s.DistractionTimeSec,
	}
}

// FromValues is the inverse of Values. Missing trailing values are zero.
func FromValues(v []float64) Snapshot {
	var full [12]float64
	copy(full[:], v)
	return Snapshot{
		EngagementScore:         full[0],
		MotorFatigueRate:        full[1],
		FocusRatio:              full[2],
		HyperactivityIndex:      full[3],
		ThetaBetaRatio:          full[4],
		LookawayFrequency:       full[5],
		CognitiveLoadIndex:      full[6],
		StressIndex:             full[7],
		HeadStability:           full[8],
		WritingConsistencyScore: full[9],
		BlinkVariability:        full[10],
		DistractionTimeSec:      full[11],
	}
}

// Compute fuses one tick. It never fails: every ratio with a zero
// denominator resolves to 0. Beta is the low-beta band; alpha sums low and
// high alpha. Head stability is not clamped and goes negative for yaw > 100.
func Compute(p eeg.BandPowers, in interaction.Features, v vision.Metrics) Snapshot {
	theta := p[eeg.Theta]
	beta := p[eeg.LowBeta]
	alpha := p.Alpha()

	motorFatigue := 0.0
	if in.VelocityAvg > fatigueActiveVelocity {
		motorFatigue = alpha / fatigueAlphaScale
	}

	focus := clamp(1-(v.GazeDeviation*gazeFocusWeight+in.IdleRatio*idleFocusWeight), 0, 1)
	writing := clamp(1-math.Min(1, in.ErrorRate*errorWeight+in.FlightTimeVar/flightVarScale), 0, 1)

	return Snapshot{
		EngagementScore:         round2(safeDiv(beta, theta+alpha)),
		MotorFatigueRate:        round2(motorFatigue),
		FocusRatio:              round2(focus),
		HyperactivityIndex:      round2(in.JerkAvg*jerkWeight + math.Abs(v.YawVelocity)),
		ThetaBetaRatio:          round2(safeDiv(theta, beta)),
		LookawayFrequency:       round1(v.GazeDeviation * lookawayScale),
		CognitiveLoadIndex:      round2(safeDiv(p.Gamma(), theta)),
		StressIndex:             round2(safeDiv(p[eeg.HighBeta], alpha)),
		HeadStability:           round1(headStabilityCeiling - math.Abs(v.YawVelocity)),
		WritingConsistencyScore: round2(writing),
		BlinkVariability:        BlinkVariabilityPlaceholder,
		DistractionTimeSec:      round1((1 - focus) * secondsPerMinute),
	}
}

// safeDiv returns 0 unless den is positive.
func safeDiv(num, den float64) float64 {
	if !(den > 0) {
		return 0
	}
	return num / den
}

func clamp(x, lo, hi float64) float64 {
	switch {
	case math.IsNaN(x):
		return lo
	case x < lo:
		return lo
	case x > hi:
		return hi
	}
	return x
}

// Round rounds x to the given number of decimals, half away from zero.
func Round(x float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(x*scale) / scale
}

func round1(x float64) float64 { return Round(x, 1) }
func round2(x float64) float64 { return Round(x, 2) }
