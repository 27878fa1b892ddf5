package services

import (
	"math"

	"github.com/Dosada05/debate-arena/models"
)

// K-фактор по числу сыгранных матчей: новички двигаются быстрее.
func kFactor(matchesPlayed int) int {
	switch {
	case matchesPlayed < 30:
		return 40
	case matchesPlayed < 100:
		return 20
	default:
		return 10
	}
}

// expectedScore — логистическое ожидание исхода для рейтинга ra против rb.
func expectedScore(ra, rb int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(rb-ra)/400.0))
}

// computeRatingDeltas считает пару дельт рейтинга для стороны A (игрок с
// меньшим id) и стороны B. actualA: 1 — победа A, 0 — поражение, 0.5 — ничья.
//
// Нулевая сумма гарантируется побитово: применяется только K-фактор стороны A,
// её дельта округляется, сторона B получает точное отрицание (не независимое
// округление со своим K). Если проигравший упёрся бы в пол рейтинга, величина
// дельты уменьшается так, чтобы он встал ровно на пол — нулевая сумма
// сохраняется.
func computeRatingDeltas(ra, rb, playedA int, actualA float64) (deltaA, deltaB int) {
	ka := float64(kFactor(playedA))
	ea := expectedScore(ra, rb)

	rawDeltaA := ka * (actualA - ea)
	newA := int(math.Round(float64(ra) + rawDeltaA))
	deltaA = newA - ra
	deltaB = -deltaA

	// Зажим на пол: уменьшаем модуль обеих дельт симметрично.
	if ra+deltaA < models.RatingFloor {
		deltaA = models.RatingFloor - ra
		deltaB = -deltaA
	}
	if rb+deltaB < models.RatingFloor {
		deltaB = models.RatingFloor - rb
		deltaA = -deltaB
	}
	return deltaA, deltaB
}
