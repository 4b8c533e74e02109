// Package netstack — сетевой стек для сессии NTP: однопоточный цикл событий,
// разрешение имён и UDP транспорт с собственным таймаутом ответа.
//
// Резолвер и транспорт выполняют сетевые операции в своих горутинах, но все
// обратные вызовы доставляют через Stack, поэтому сессия видит их строго по одному.
package netstack

import (
	"context"
	"errors"
	"sync/atomic"
)

var (
	// ErrStopped — стек остановлен, событие не будет доставлено.
	ErrStopped = errors.New("netstack: stopped")
	// ErrAlreadyRun — Run уже вызывался на этом стеке.
	ErrAlreadyRun = errors.New("netstack: already run")
)

const defaultQueue = 16

// Stack — контекст обработки событий: очередь функций, выполняемых в Run.
type Stack struct {
	events  chan func()
	done    chan struct{}
	started atomic.Bool
}

// NewStack создаёт стек с очередью событий заданной длины (0 = 16).
func NewStack(queue int) *Stack {
	if queue <= 0 {
		queue = defaultQueue
	}
	return &Stack{
		events: make(chan func(), queue),
		done:   make(chan struct{}),
	}
}

// Post ставит fn в очередь. Блокируется, пока очередь полна; после остановки
// Run возвращает ErrStopped.
func (s *Stack) Post(fn func()) error {
	select {
	case <-s.done:
		return ErrStopped
	default:
	}
	select {
	case s.events <- fn:
		return nil
	case <-s.done:
		return ErrStopped
	}
}

// Do выполняет fn в контексте стека и ждёт завершения.
func (s *Stack) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := s.Post(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run выполняет события по одному до отмены ctx. Стек не перезапускается:
// повторный вызов сразу возвращает ErrAlreadyRun.
func (s *Stack) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-s.events:
			fn()
		}
	}
}

// Done закрывается, когда Run завершился.
func (s *Stack) Done() <-chan struct{} {
	return s.done
}
