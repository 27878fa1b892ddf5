package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
)

// Scorer оценивает отправленный аргумент. Контракт: результат в [0,1],
// детерминирован для одинаковых входов (никакой скрытой случайности —
// повтор той же последовательности отправок обязан дать тот же результат),
// сбой оценки — ошибка, а не тихий ноль.
type Scorer interface {
	Score(ctx context.Context, content string, roundNumber int) (float64, error)
}

// BasisPointsMax — оценки квантуются в целые базисные пункты (1.0 -> 10000),
// чтобы агрегация и тай-брейки считались точной целочисленной арифметикой.
const BasisPointsMax = 10000

// QuantizeScore переводит сырую оценку в базисные пункты с проверкой диапазона.
func QuantizeScore(raw float64) (int, error) {
	if math.IsNaN(raw) || raw < 0 || raw > 1 {
		return 0, fmt.Errorf("%w: got %v", ErrScoreOutOfRange, raw)
	}
	return int(math.Round(raw * BasisPointsMax)), nil
}

type hashScorer struct{}

// NewHashScorer возвращает детерминированную заглушку оценщика: FNV-1a от
// (номер раунда, текст), нормированный в [0,1]. Настоящая оценка аргументов
// живёт во внешнем AI-сервисе; ядру важен только контракт.
func NewHashScorer() Scorer {
	return hashScorer{}
}

func (hashScorer) Score(_ context.Context, content string, roundNumber int) (float64, error) {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d:", roundNumber)
	if _, err := h.Write([]byte(content)); err != nil {
		return 0, fmt.Errorf("failed to hash submission content: %w", err)
	}
	// Старшие 53 бита в мантиссу: равномерно в [0,1).
	return float64(h.Sum64()>>11) / float64(1<<53), nil
}
