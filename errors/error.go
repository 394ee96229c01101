// Package errors holds the control values raised by handlers and converted into responses
// by the recovery middleware.
package errors

import (
	"fmt"
	"runtime/debug"
)

// Error wraps err with the current goroutine's stack trace.
func Error(err error) error {
	return fmt.Errorf("%w\n%s", err, string(debug.Stack()))
}
