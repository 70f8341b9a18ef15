// Package eeg synthesizes plausible 8-band EEG power epochs that respond to a
// behavioral state label.
package eeg

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Band indexes one of the eight spectral power bands.
type Band int

// Bands in ascending frequency order.
const (
	Delta Band = iota
	Theta
	LowAlpha
	HighAlpha
	LowBeta
	HighBeta
	LowGamma
	MidGamma

	NumBands
)

var bandNames = [NumBands]string{
	"delta", "theta", "low_alpha", "high_alpha",
	"low_beta", "high_beta", "low_gamma", "mid_gamma",
}

func (b Band) String() string {
	if b < 0 || b >= NumBands {
		return fmt.Sprintf("band(%d)", int(b))
	}
	return bandNames[b]
}

// ParseBand maps a band name such as "low_beta" to its Band.
func ParseBand(name string) (Band, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, s := range bandNames {
		if s == n {
			return Band(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownBand, name)
}

// BandPowers holds one epoch of spectral power, indexed by Band.
type BandPowers [NumBands]float64

// Alpha is the summed low and high alpha power.
func (p BandPowers) Alpha() float64 { return p[LowAlpha] + p[HighAlpha] }

// Gamma is the summed low and mid gamma power.
func (p BandPowers) Gamma() float64 { return p[LowGamma] + p[MidGamma] }

// Map returns the powers keyed by band name.
func (p BandPowers) Map() map[string]float64 {
	out := make(map[string]float64, NumBands)
	for i, v := range p {
		out[bandNames[i]] = v
	}
	return out
}

// BandPowersFromMap builds BandPowers from a name-keyed map. Missing bands are zero.
func BandPowersFromMap(m map[string]float64) (BandPowers, error) {
	var p BandPowers
	for name, v := range m {
		b, err := ParseBand(name)
		if err != nil {
			return BandPowers{}, err
		}
		p[b] = v
	}
	return p, nil
}

// MarshalJSON encodes the powers as a name-keyed object.
func (p BandPowers) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Map())
}

// UnmarshalJSON decodes a name-keyed object.
func (p *BandPowers) UnmarshalJSON(data []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	v, err := BandPowersFromMap(m)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// DefaultBasePowers are resting-state baselines in uV^2/Hz.
var DefaultBasePowers = BandPowers{
	Delta:     20000,
	Theta:     10000,
	LowAlpha:  15000,
	HighAlpha: 15000,
	LowBeta:   8000,
	HighBeta:  8000,
	LowGamma:  3000,
	MidGamma:  2000,
}
