package replay

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/okian/neurobloom/internal/domain/fusion"
	"github.com/okian/neurobloom/pkg/logger"
)

// bound is an inclusive range. Head stability has no lower bound.
type bound struct {
	lo, hi float64
}

var bounds = map[string]bound{
	fusion.EngagementScore:         {0, math.Inf(1)},
	fusion.MotorFatigueRate:        {0, math.Inf(1)},
	fusion.FocusRatio:              {0, 1},
	fusion.HyperactivityIndex:      {0, math.Inf(1)},
	fusion.ThetaBetaRatio:          {0, math.Inf(1)},
	fusion.LookawayFrequency:       {0, math.Inf(1)},
	fusion.CognitiveLoadIndex:      {0, math.Inf(1)},
	fusion.StressIndex:             {0, math.Inf(1)},
	fusion.HeadStability:           {math.Inf(-1), 100},
	fusion.WritingConsistencyScore: {0, 1},
	fusion.BlinkVariability:        {fusion.BlinkVariabilityPlaceholder, fusion.BlinkVariabilityPlaceholder},
	fusion.DistractionTimeSec:      {0, 60},
}

// VerifyReport checks that a terminal report is either the full metric set
// within bounds or exactly one "error" entry holding a message.
func VerifyReport(report map[string]any) error {
	if msg, ok := report["error"]; ok {
		if len(report) != 1 {
			return fmt.Errorf("%w: error report carries %d fields", ErrInvalidReport, len(report))
		}
		if s, ok := msg.(string); !ok || strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: error is not a message", ErrInvalidReport)
		}
		return nil
	}

	if len(report) != len(fusion.Names) {
		return fmt.Errorf("%w: %d fields, want %d", ErrInvalidReport, len(report), len(fusion.Names))
	}
	for _, name := range fusion.Names {
		raw, ok := report[name]
		if !ok {
			return fmt.Errorf("%w: missing %s", ErrInvalidReport, name)
		}
		v, ok := raw.(float64)
		if !ok || math.IsNaN(v) {
			return fmt.Errorf("%w: %s is not a number", ErrInvalidReport, name)
		}
		b := bounds[name]
		if v < b.lo || v > b.hi {
			return fmt.Errorf("%w: %s=%g outside [%g, %g]", ErrInvalidReport, name, v, b.lo, b.hi)
		}
	}
	return nil
}

// verifyReports tallies terminal states and validates every terminal report.
func verifyReports(ctx context.Context, config *Config, reports []Report, stats *Stats) error {
	log := logger.Get().Named("verify")
	log.Info(ctx, "verifying reports", logger.Int("reports", len(reports)))

	var invalid []string
	for _, rep := range reports {
		switch {
		case !rep.Terminal():
			stats.ReportsPending++
			continue
		case rep.Status == statusCompleted:
			stats.ReportsCompleted++
		default:
			stats.ReportsFailed++
		}
		if err := VerifyReport(rep.Report); err != nil {
			stats.ReportsInvalid++
			invalid = append(invalid, rep.SessionID)
			log.Warn(ctx, "invalid report", logger.SessionID(rep.SessionID), logger.Error(err))
		}
	}

	if config.Verbose {
		displayMetricSummary(ctx, reports)
	}

	if len(invalid) > 0 {
		sort.Strings(invalid)
		return fmt.Errorf("%w: %d invalid reports, first %s", ErrVerification, len(invalid), invalid[0])
	}
	log.Info(ctx, "verification completed",
		logger.Int("completed", stats.ReportsCompleted),
		logger.Int("failed", stats.ReportsFailed),
		logger.Int("pending", stats.ReportsPending),
	)
	return nil
}

// displayMetricSummary logs the mean of each metric over completed reports.
func displayMetricSummary(ctx context.Context, reports []Report) {
	sums := make(map[string]float64, len(fusion.Names))
	n := 0
	for _, rep := range reports {
		if rep.Status != statusCompleted {
			continue
		}
		n++
		for _, name := range fusion.Names {
			if v, ok := rep.Report[name].(float64); ok {
				sums[name] += v
			}
		}
	}
	if n == 0 {
		return
	}

	fields := make([]logger.Field, 0, len(fusion.Names)+1)
	fields = append(fields, logger.Int("sessions", n))
	for _, name := range fusion.Names {
		fields = append(fields, logger.Float64(name, fusion.Round(sums[name]/float64(n), 2)))
	}
	logger.Get().Info(ctx, "metric means", fields...)
}
