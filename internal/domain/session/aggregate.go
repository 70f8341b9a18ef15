package session

import "github.com/okian/neurobloom/internal/domain/fusion"

// Aggregate averages every field across snapshots and rounds to 2 decimals.
func Aggregate(snaps []fusion.Snapshot) (fusion.Snapshot, error) {
	if len(snaps) == 0 {
		return fusion.Snapshot{}, ErrNoData
	}
	sums := make([]float64, len(fusion.Names))
	for _, s := range snaps {
		for i, v := range s.Values() {
			sums[i] += v
		}
	}
	n := float64(len(snaps))
	for i := range sums {
		sums[i] = fusion.Round(sums[i]/n, 2)
	}
	return fusion.FromValues(sums), nil
}
