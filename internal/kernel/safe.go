package kernel

import "fmt"

// runSafely calls fn and prefixes its error with scope. A panic in fn is
// returned as an error instead of taking the process down.
func runSafely(scope string, fn func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%s: panic: %v", scope, recovered)
		}
	}()

	if callErr := fn(); callErr != nil {
		return fmt.Errorf("%s: %w", scope, callErr)
	}

	return nil
}
