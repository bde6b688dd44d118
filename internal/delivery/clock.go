package delivery

import "time"

// Clock абстрагирует время для планировщика повторов. В тестах подменяется
// управляемой реализацией, чтобы не ждать реальные таймауты.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer — хэндл отложенного вызова.
type Timer interface {
	Stop() bool
}

type realClock struct{}

// NewRealClock возвращает Clock поверх пакета time.
func NewRealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

type realTimer struct{ t *time.Timer }

func (rt realTimer) Stop() bool { return rt.t.Stop() }
