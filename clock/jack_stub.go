//go:build !jack

package clock

import "github.com/pkg/errors"

// ErrNoJack is returned by NewJack in builds without the jack tag.
var ErrNoJack = errors.New("clock: built without JACK support (use -tags jack)")

func NewJack(name string, proc Processor) (Driver, error) {
	return nil, ErrNoJack
}
