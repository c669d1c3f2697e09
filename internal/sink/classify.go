package sink

import (
	"errors"
	"fmt"
	"io/fs"

	"golang.org/x/sys/unix"
)

// classify wraps err with the sentinel describing it. Space and quota
// errors map to ErrQuotaExceeded, missing or forbidden paths to
// ErrSinkUnavailable when unavailable is set, everything else to
// ErrIOFailure.
func classify(op string, err error, unavailable bool) error {
	switch {
	case errors.Is(err, ErrIOFailure), errors.Is(err, ErrQuotaExceeded), errors.Is(err, ErrSinkUnavailable):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, unix.ENOSPC), errors.Is(err, unix.EDQUOT):
		return fmt.Errorf("%w: %s: %w", ErrQuotaExceeded, op, err)
	case unavailable && (errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) || errors.Is(err, unix.EROFS)):
		return fmt.Errorf("%w: %s: %w", ErrSinkUnavailable, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrIOFailure, op, err)
}
