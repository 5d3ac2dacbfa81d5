package safego

import (
	"fmt"

	"go.uber.org/zap"
)

// Go launches a goroutine with panic recovery.
// If the goroutine panics, the panic value is logged and the goroutine exits
// cleanly instead of crashing the process.
func Go(logger *zap.Logger, name string, fn func()) {
	go func() {
		defer recoverAndLog(logger, name, nil)
		fn()
	}()
}

// Run executes fn on the calling goroutine and converts a panic into an error.
// Used for per-update work (a Telegram message, a websocket frame) where one bad
// input must not take the loop down with it.
func Run(logger *zap.Logger, name string, fn func() error) (err error) {
	defer recoverAndLog(logger, name, &err)
	return fn()
}

func recoverAndLog(logger *zap.Logger, name string, errOut *error) {
	r := recover()
	if r == nil {
		return
	}
	logger.Error("Goroutine panicked",
		zap.String("goroutine", name),
		zap.Any("panic", r),
		zap.Stack("stack"),
	)
	if errOut != nil {
		*errOut = fmt.Errorf("%s panicked: %v", name, r)
	}
}
