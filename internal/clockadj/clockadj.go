// Package clockadj устанавливает системные часы по времени, полученному от сервера.
package clockadj

import (
	"fmt"
	"time"
)

// DefaultStepLimit — порог, выше которого часы ставятся скачком, а не подстраиваются.
const DefaultStepLimit = 500 * time.Millisecond

// MaxSlew — предел ADJ_OFFSET: ядро обрезает коррекцию до ±0.5s, поэтому
// порог step не может быть больше.
const MaxSlew = 500 * time.Millisecond

// Action — что сделано с часами.
type Action int

const (
	ActionNone Action = iota
	ActionSlew
	ActionStep
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionSlew:
		return "slew"
	case ActionStep:
		return "step"
	default:
		return "unknown"
	}
}

// Adjuster приводит системные часы к опорному времени.
type Adjuster struct {
	StepLimit time.Duration
	Now       func() time.Time

	// Для тестов; по умолчанию adjtimex / clock_settime.
	stepFn func(time.Time) error
	slewFn func(time.Duration) error
}

// NewAdjuster создаёт Adjuster с порогом stepLimit (0 = 500ms, не больше MaxSlew).
func NewAdjuster(stepLimit time.Duration) *Adjuster {
	if stepLimit <= 0 {
		stepLimit = DefaultStepLimit
	}
	if stepLimit > MaxSlew {
		stepLimit = MaxSlew
	}
	return &Adjuster{
		StepLimit: stepLimit,
		Now:       time.Now,
		stepFn:    step,
		slewFn:    slew,
	}
}

// Apply сравнивает ref с системным временем: при |offset| > StepLimit ставит часы
// скачком, иначе подстраивает. Возвращает действие и смещение ref - now.
func (a *Adjuster) Apply(ref time.Time) (Action, time.Duration, error) {
	offset := ref.Sub(a.Now())
	if offset == 0 {
		return ActionNone, 0, nil
	}
	limit := a.StepLimit
	if limit <= 0 || limit > MaxSlew {
		limit = MaxSlew
	}
	if offset > limit || offset < -limit {
		if err := a.stepFn(ref); err != nil {
			return ActionStep, offset, fmt.Errorf("clock step: %w", err)
		}
		return ActionStep, offset, nil
	}
	if err := a.slewFn(offset); err != nil {
		return ActionSlew, offset, fmt.Errorf("clock slew: %w", err)
	}
	return ActionSlew, offset, nil
}
