package app

import (
	"math"

	"quiz-engine-service/internal/domain"
)

// GradeScaling adapts batch difficulty and size to a student's school grade.
type GradeScaling struct {
	Difficulty      domain.Difficulty
	CountMultiplier float64
}

// ScaleForGrade maps a grade to a difficulty and a count multiplier.
// Grades below 1 are treated as grade 1.
func ScaleForGrade(grade int) GradeScaling {
	switch {
	case grade <= 3:
		return GradeScaling{Difficulty: domain.DifficultyEasy, CountMultiplier: 0.5}
	case grade <= 6:
		return GradeScaling{Difficulty: domain.DifficultyMedium, CountMultiplier: 0.75}
	default:
		return GradeScaling{Difficulty: domain.DifficultyHard, CountMultiplier: 1}
	}
}

// Apply scales limit, rounding half away from zero, and never returns less than 1.
func (g GradeScaling) Apply(limit int) int {
	n := int(math.Round(float64(limit) * g.CountMultiplier))
	if n < 1 {
		return 1
	}
	return n
}
