package errors

import (
	"sync"

	zlog "github.com/rs/zerolog/log"
)

var (
	warnMu      sync.RWMutex
	warnHandler func(error)
)

// Warn reports a non-fatal condition such as a ConvergenceWarning. By default
// it is written at warn level to the global zerolog logger.
func Warn(w error) {
	if w == nil {
		return
	}
	warnMu.RLock()
	h := warnHandler
	warnMu.RUnlock()
	if h != nil {
		h(w)
		return
	}
	zlog.Warn().Err(w).Msg("warning")
}

// SetWarningHandler replaces the destination of Warn and returns the previous
// handler. Passing nil restores the default.
func SetWarningHandler(h func(error)) func(error) {
	warnMu.Lock()
	defer warnMu.Unlock()
	prev := warnHandler
	warnHandler = h
	return prev
}
