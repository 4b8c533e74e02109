//go:build !linux

package clockadj

import (
	"errors"
	"time"
)

var errUnsupported = errors.New("clockadj: not supported on this platform")

// slew — на не-Linux коррекция не выполняется.
func slew(offset time.Duration) error {
	_ = offset
	return errUnsupported
}

// step — на не-Linux установка времени не выполняется.
func step(t time.Time) error {
	_ = t
	return errUnsupported
}
