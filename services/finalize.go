package services

import (
	"fmt"

	"github.com/Dosada05/debate-arena/models"
)

// Веса раундов: Opening 40%, Rebuttal 40%, Closing 20%. Взвешенный агрегат
// хранится умноженным на 10 (4/4/2 в базисных пунктах) — точная целочисленная
// форма, без потерь на делении.
func weightedAggregate(opening, rebuttal, closing int) int {
	return 4*opening + 4*rebuttal + 2*closing
}

type playerTally struct {
	playerID int64
	byRound  [models.RoundsPerPlayer + 1]int // индекс — номер раунда
	weighted int
	// reasoning — невзвешенная сумма трёх раундов, только для тай-брейка.
	reasoning int
}

// matchOutcome — результат финализации до записи в хранилище.
type matchOutcome struct {
	P1Score  int
	P2Score  int
	WinnerID int64
	// IsDraw — точное равенство взвешенных агрегатов. Победитель всё равно
	// назначается каскадом, но рейтинг считает такой матч ничьёй.
	IsDraw bool
	// Decision — какая ступень каскада решила исход, для журнала.
	Decision string
}

const (
	decisionWeighted  = "weighted_aggregate"
	decisionRebuttal  = "rebuttal_score"
	decisionReasoning = "reasoning_aggregate"
	decisionPlayerID  = "lower_player_id"
	decisionSolo      = "solo"
)

// computeOutcome агрегирует полностью заблокированный набор раундов и
// определяет победителя. Любая неполнота набора — фатальное нарушение
// инварианта: финализация не имеет права работать с неполными данными.
func computeOutcome(match *models.Match, rounds []*models.MatchRound) (*matchOutcome, error) {
	expected := match.ExpectedRoundSlots()
	if len(rounds) != expected {
		return nil, fmt.Errorf("%w: match %d has %d round slots, expected %d",
			ErrIncompleteRounds, match.ID, len(rounds), expected)
	}

	p1 := &playerTally{playerID: match.P1ID}
	var p2 *playerTally
	if match.P2ID != nil {
		p2 = &playerTally{playerID: *match.P2ID}
	}

	seen := make(map[[2]int64]bool, expected)
	for _, round := range rounds {
		if !round.IsSubmitted || !round.IsLocked || round.Score == nil {
			return nil, fmt.Errorf("%w: match %d round %d for player %d is not submitted",
				ErrIncompleteRounds, match.ID, round.RoundNumber, round.PlayerID)
		}
		if round.RoundNumber < models.RoundOpening || round.RoundNumber > models.RoundClosing {
			return nil, fmt.Errorf("%w: match %d has round number %d",
				ErrIncompleteRounds, match.ID, round.RoundNumber)
		}
		key := [2]int64{round.PlayerID, int64(round.RoundNumber)}
		if seen[key] {
			return nil, fmt.Errorf("%w: match %d has duplicate slot (player %d, round %d)",
				ErrIncompleteRounds, match.ID, round.PlayerID, round.RoundNumber)
		}
		seen[key] = true

		switch {
		case round.PlayerID == p1.playerID:
			p1.byRound[round.RoundNumber] = *round.Score
		case p2 != nil && round.PlayerID == p2.playerID:
			p2.byRound[round.RoundNumber] = *round.Score
		default:
			return nil, fmt.Errorf("%w: match %d has round slot for non-participant %d",
				ErrIncompleteRounds, match.ID, round.PlayerID)
		}
	}

	tally(p1)
	if p2 != nil {
		tally(p2)
	}

	if p2 == nil {
		// Одиночный (fallback) матч: единственный человек и есть победитель.
		return &matchOutcome{
			P1Score:  p1.weighted,
			P2Score:  0,
			WinnerID: p1.playerID,
			Decision: decisionSolo,
		}, nil
	}

	outcome := &matchOutcome{
		P1Score: p1.weighted,
		P2Score: p2.weighted,
		IsDraw:  p1.weighted == p2.weighted,
	}

	// Каскад тай-брейков, транскрибирован из продуктового поведения:
	// взвешенный агрегат -> оценка Rebuttal -> невзвешенная сумма -> меньший id.
	// Последняя ступень произвольна, но воспроизводима.
	switch {
	case p1.weighted != p2.weighted:
		outcome.Decision = decisionWeighted
		outcome.WinnerID = higher(p1, p2, p1.weighted, p2.weighted)
	case p1.byRound[models.RoundRebuttal] != p2.byRound[models.RoundRebuttal]:
		outcome.Decision = decisionRebuttal
		outcome.WinnerID = higher(p1, p2, p1.byRound[models.RoundRebuttal], p2.byRound[models.RoundRebuttal])
	case p1.reasoning != p2.reasoning:
		outcome.Decision = decisionReasoning
		outcome.WinnerID = higher(p1, p2, p1.reasoning, p2.reasoning)
	default:
		outcome.Decision = decisionPlayerID
		outcome.WinnerID = p1.playerID
		if p2.playerID < p1.playerID {
			outcome.WinnerID = p2.playerID
		}
	}
	return outcome, nil
}

func tally(t *playerTally) {
	t.weighted = weightedAggregate(
		t.byRound[models.RoundOpening],
		t.byRound[models.RoundRebuttal],
		t.byRound[models.RoundClosing],
	)
	t.reasoning = t.byRound[models.RoundOpening] + t.byRound[models.RoundRebuttal] + t.byRound[models.RoundClosing]
}

func higher(p1, p2 *playerTally, v1, v2 int) int64 {
	if v1 > v2 {
		return p1.playerID
	}
	return p2.playerID
}
