package services

import "time"

// Clock абстрагирует источник времени и отложенные задачи, чтобы тесты могли
// управлять временем детерминированно. Единственная отменяемая операция ядра —
// таймер конвертации в fallback.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

func NewRealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
