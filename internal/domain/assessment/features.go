// Package assessment turns a session report into screening predictions via
// named predictors held in an explicit registry.
package assessment

import (
	"fmt"

	"github.com/okian/neurobloom/internal/domain/fusion"
	"github.com/okian/neurobloom/internal/domain/interaction"
)

// SchemaVersion is bumped whenever FeatureVector fields change meaning.
const SchemaVersion = 1

// Extra feature names beyond the fused metrics.
const (
	FeatureFlightTimeVar = "flight_time_var"
	FeatureDwellTimeAvg  = "dwell_time_avg"
	FeatureErrorRate     = "error_rate"
	FeatureVelocityAvg   = "velocity_avg"
	FeatureJerkAvg       = "jerk_avg"
	FeatureIdleRatio     = "idle_ratio"
	FeatureBlinkCount    = "blink_count"
)

// FeatureVector is the named input every predictor consumes. Fields are read
// by name, never by position.
type FeatureVector struct {
	Version     int                  `json:"version"`
	Report      fusion.Snapshot      `json:"report"`
	Interaction interaction.Features `json:"interaction"`
	BlinkCount  int                  `json:"blink_count"`
}

// NewFeatureVector builds a vector at the current schema version.
func NewFeatureVector(report fusion.Snapshot, in interaction.Features, blinks int) FeatureVector {
	return FeatureVector{
		Version:     SchemaVersion,
		Report:      report,
		Interaction: in,
		BlinkCount:  blinks,
	}
}

// Validate rejects vectors from another schema version.
func (v FeatureVector) Validate() error {
	if v.Version != SchemaVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrSchemaVersion, v.Version, SchemaVersion)
	}
	return nil
}

// Lookup returns a feature by name.
func (v FeatureVector) Lookup(name string) (float64, error) {
	if x, ok := v.Report.Map()[name]; ok {
		return x, nil
	}
	switch name {
	case FeatureFlightTimeVar:
		return v.Interaction.FlightTimeVar, nil
	case FeatureDwellTimeAvg:
		return v.Interaction.DwellTimeAvg, nil
	case FeatureErrorRate:
		return v.Interaction.ErrorRate, nil
	case FeatureVelocityAvg:
		return v.Interaction.VelocityAvg, nil
	case FeatureJerkAvg:
		return v.Interaction.JerkAvg, nil
	case FeatureIdleRatio:
		return v.Interaction.IdleRatio, nil
	case FeatureBlinkCount:
		return float64(v.BlinkCount), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFeature, name)
}
