package services

import (
	"errors"
	"fmt"
)

// Базовая таксономия ошибок ядра. Конкретные ошибки ниже оборачивают базовые,
// поэтому вызывающий может проверять errors.Is и на конкретную, и на базовую.
var (
	// Операция над занятым/заблокированным/дублирующимся ресурсом. Вызывающий
	// может повторить или проигнорировать.
	ErrConflict = errors.New("conflict")
	// Раунд отправлен вне очереди. Вызывающему следует подождать.
	ErrOrderViolation = errors.New("round order violation")
	// Некорректный ввод. Не ретраится.
	ErrValidation = errors.New("validation failed")
	// Запрошенный матч/раунд/игрок отсутствует.
	ErrNotFound = errors.New("requested resource not found")
	// Структурно невозможное состояние: неполные раунды при финализации,
	// повторный обсчёт рейтинга, победитель вне участников. Фатально —
	// транзакция откатывается целиком, наверх уходит с повышенной серьёзностью.
	ErrInternalInvariant = errors.New("internal invariant violated")
)

// Ошибки очереди подбора
var (
	ErrAlreadyQueued       = fmt.Errorf("%w: player already has an active queue entry", ErrConflict)
	ErrPlayerInActiveMatch = fmt.Errorf("%w: player already has an unfinished match", ErrConflict)
	ErrQueueEntryMissing   = fmt.Errorf("%w: queue entry", ErrNotFound)
)

// Ошибки матчей и раундов
var (
	ErrMatchNotFoundForPlayer = fmt.Errorf("%w: match", ErrNotFound)
	ErrRoundSlotMissing       = fmt.Errorf("%w: round slot", ErrNotFound)
	ErrMatchLocked            = fmt.Errorf("%w: match is locked", ErrConflict)
	ErrMatchNotInProgress     = fmt.Errorf("%w: match is not in progress", ErrConflict)
	ErrRoundAlreadySubmitted  = fmt.Errorf("%w: round slot already submitted", ErrConflict)
	ErrRoundOutOfOrder        = fmt.Errorf("%w: previous round is not fully locked", ErrOrderViolation)
	ErrRoundNumberInvalid     = fmt.Errorf("%w: round number must be 1, 2 or 3", ErrValidation)
	ErrContentRequired        = fmt.Errorf("%w: submission content must not be empty", ErrValidation)
	ErrSelfMatch              = fmt.Errorf("%w: player cannot be matched against themselves", ErrValidation)
)

// Нарушения инвариантов
var (
	ErrIncompleteRounds    = fmt.Errorf("%w: finalize requires a complete, fully submitted round set", ErrInternalInvariant)
	ErrScoreOutOfRange     = fmt.Errorf("%w: scorer returned a value outside [0,1]", ErrInternalInvariant)
	ErrRatingDoubleApply   = fmt.Errorf("%w: rating already processed for this match", ErrInternalInvariant)
	ErrWinnerNotSet        = fmt.Errorf("%w: finalized match has no winner", ErrInternalInvariant)
	ErrWinnerNotPlayer     = fmt.Errorf("%w: winner is not a match participant", ErrInternalInvariant)
	ErrMatchNotSealed      = fmt.Errorf("%w: rating engine requires a finalized, locked match", ErrInternalInvariant)
	ErrRatingRowMissing    = fmt.Errorf("%w: player rating row missing at rating time", ErrInternalInvariant)
	ErrTransactionRequired = fmt.Errorf("%w: operation requires a database transaction", ErrInternalInvariant)
)
