package safe

import (
	"PPSignal/logger"
	"PPSignal/tools/errs"

	"go.uber.org/zap"
)

// Go starts f in a goroutine that recovers from panic,
// so that panics don't crash the entire program.
func Go(name string, f func()) {
	go Run(name, f)
}

// Run calls f and recovers a panic, returning it as an error.
func Run(name string, f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.ErrPanic(r)
			logger.Error("panic recovered", zap.String("task", name), zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	f()
	return nil
}
