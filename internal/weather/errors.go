package weather

import "errors"

// Error kinds. Every stage wraps its cause with one of these so callers can
// branch with errors.Is.
var (
	ErrConfig      = errors.New("config error")
	ErrFetch       = errors.New("fetch error")
	ErrAggregation = errors.New("aggregation error")
	ErrAuth        = errors.New("auth error")
	ErrWrite       = errors.New("write error")
)

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrConfig):
		return 2
	case errors.Is(err, ErrFetch):
		return 3
	case errors.Is(err, ErrAggregation):
		return 4
	case errors.Is(err, ErrAuth):
		return 5
	case errors.Is(err, ErrWrite):
		return 6
	default:
		return 1
	}
}
