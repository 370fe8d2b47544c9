package cache

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrUnavailable is reported when the backing store cannot be reached.
	// It is never retried internally.
	ErrUnavailable = errors.New("cache: backing store unavailable")

	// ErrCoercion is reported when a stored value cannot be converted to the
	// requested type.
	ErrCoercion = errors.New("cache: coercion failed")

	// ErrFetch is reported when the external fetch of a memoized resource
	// fails or times out. Nothing is cached when it is returned.
	ErrFetch = errors.New("cache: fetch failed")
)

func unavailable(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return errors.Mark(errors.Wrapf(err, "cache: %s", op), ErrUnavailable)
}

func coercionError(err error, format string, args ...interface{}) error {
	if errors.Is(err, ErrCoercion) {
		return err
	}
	if err == nil {
		return errors.Mark(errors.Newf(format, args...), ErrCoercion)
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrCoercion)
}

func fetchError(err error, url string) error {
	if errors.Is(err, ErrFetch) {
		return err
	}
	return errors.Mark(errors.Wrapf(err, "cache: fetch %s", url), ErrFetch)
}
