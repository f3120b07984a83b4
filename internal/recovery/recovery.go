// internal/recovery/recovery.go
package recovery

import (
	"os"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// exit is replaced in tests
var exit = os.Exit

// HandlePanic should be deferred at the top of main() or goroutines.
// It logs panic details and exits with code 1.
func HandlePanic() {
	if r := recover(); r != nil {
		logPanic(r)
		exit(1)
	}
}

// HandlePanicFunc logs panic details, calls the provided cleanup function
// and exits with code 1.
func HandlePanicFunc(cleanup func()) {
	if r := recover(); r != nil {
		logPanic(r)
		if cleanup != nil {
			cleanup()
		}
		exit(1)
	}
}

func logPanic(r any) {
	logrus.WithFields(logrus.Fields{
		"panic": r,
		"stack": string(debug.Stack()),
	}).Error("FATAL: recovered from panic")
}

// Usage in goroutines (with cleanup):
//go func() {
//	defer recovery.HandlePanicFunc(func() {
//		close(a.done)
//	})
//	a.run(ctx)
//}()
