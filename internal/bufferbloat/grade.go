// Package bufferbloat grades latency-under-load and estimates it from an
// idle baseline.
package bufferbloat

import "github.com/internet-performance-optimizer/internal/models"

// Grade boundaries in milliseconds of latency increase. Lower bounds are
// inclusive: exactly 10ms is an A.
const (
	thresholdAPlus = 10.0
	thresholdA     = 30.0
	thresholdB     = 100.0
	thresholdC     = 200.0
	thresholdD     = 400.0
)

// Grade maps a latency increase in milliseconds to a letter grade.
func Grade(increaseMs float64) models.Grade {
	switch {
	case increaseMs < thresholdAPlus:
		return models.GradeAPlus
	case increaseMs < thresholdA:
		return models.GradeA
	case increaseMs < thresholdB:
		return models.GradeB
	case increaseMs < thresholdC:
		return models.GradeC
	case increaseMs < thresholdD:
		return models.GradeD
	default:
		return models.GradeF
	}
}
